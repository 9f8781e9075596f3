package sqlprovider

import "fmt"

// Driver names the database/sql driver backing a Provider. Both values
// are real, registered drivers selectable from the demo CLI (this
// package's own tests run against sqlite only):
// modernc.org/sqlite for the zero-dependency default, go-sql-driver/mysql
// for the network-backed alternative (the same two-driver split the
// original storage layer this module is grounded on makes between its
// embedded and server-mode backends).
type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverMySQL  Driver = "mysql"
)

// Config selects the driver and connection string for Open.
type Config struct {
	Driver Driver
	DSN    string
}

func (c Config) driverName() (string, error) {
	switch c.Driver {
	case DriverSQLite:
		return "sqlite", nil
	case DriverMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("sqlprovider: unknown driver %q", c.Driver)
	}
}
