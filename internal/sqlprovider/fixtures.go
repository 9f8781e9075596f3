package sqlprovider

import "github.com/google/uuid"

// Customer and Order are the demo entity pair exercised by the CLI and
// this package's own tests: Order depends on Customer (session:"dependsOn"),
// Customer implements session.Notifier via Subscribe/Rename to exercise
// the subscription change-detection strategy end to end, and Order uses
// a generated UUID key to prove primary keys need not be integers.
//
// Each field carries two independent tags: `session:"..."` is read by
// internal/mapping.StructMapper (identity, dependency graph); `db:"..."`
// is read by this package's reflectColumns (SQL column mapping). Neither
// package understands the other's tag.
type Customer struct {
	ID       int    `session:"pk" db:"id,pk"`
	Name     string `db:"name"`
	Orders   []*Order `session:"dependents"`
	onChange func()
}

// Subscribe implements the session package's Notifier capability.
func (c *Customer) Subscribe(onBeforeChange func()) { c.onChange = onBeforeChange }

// Rename is the only mutator on Customer.Name, so it is the single place
// that must fire onChange before the field actually changes.
func (c *Customer) Rename(name string) {
	if c.onChange != nil {
		c.onChange()
	}
	c.Name = name
}

type Order struct {
	ID         string `session:"pk" db:"id,pk"`
	CustomerID int    `db:"customer_id"`
	Customer   *Customer `session:"dependsOn"`
	Total      int    `db:"total"`
}

// NewOrderID generates a fresh Order primary key.
func NewOrderID() string { return uuid.NewString() }

// CreateSchema creates the backing tables for Customer/Order, using
// syntax both modernc.org/sqlite and go-sql-driver/mysql accept.
const CreateSchema = `
CREATE TABLE IF NOT EXISTS customers (
	id   INTEGER PRIMARY KEY,
	name VARCHAR(255) NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id          VARCHAR(36) PRIMARY KEY,
	customer_id INTEGER NOT NULL,
	total       INTEGER NOT NULL
);
`
