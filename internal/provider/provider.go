// Package provider is the boundary the session consumes from an
// external query provider (§4.B): CRUD tables, a transaction primitive,
// and a streaming executor. The session never builds SQL or expression
// trees itself — that translation is the provider's job; see
// internal/sqlprovider for the concrete adapter this module ships.
package provider

import (
	"context"

	"github.com/entitykit/session/internal/mapping"
)

// Command is an opaque, already-built query or statement handed to an
// Executor. The session treats it as a value to pass through; building
// one from an expression tree is outside the session's scope.
type Command struct {
	Text string
	Args []any
}

// Row is a single positional/named result row an Executor hands to a
// Projector. The concrete shape is provider-specific (internal/sqlprovider
// backs it with *sql.Rows).
type Row interface {
	Scan(dest ...any) error
}

// Projector materializes one Row into a value of the caller's entity
// type. The intercepting provider (internal/session) wraps a Projector
// passed through Execute/ExecuteDeferred so the resulting entity is
// interned before the caller sees it, for entities whose session table
// already exists; other projectors are passed through unwrapped.
type Projector func(row Row) (any, error)

// Cursor streams materialized values one at a time. Enumeration is
// lazy: Next only advances (and only runs the Projector) when the
// caller asks for the next row.
type Cursor interface {
	Next(ctx context.Context) bool
	Current() any
	Err() error
	Close() error
}

// Executor runs commands and streams projected results (§4.B: "create_executor
// with streaming Execute, and batch/deferred/command variants").
type Executor interface {
	// Execute runs cmd and streams rows through projector, lazily.
	Execute(ctx context.Context, cmd Command, entity mapping.EntityDescriptor, projector Projector) (Cursor, error)

	// ExecuteDeferred is the non-streaming (eager) variant: it runs
	// cmd and materializes every row immediately.
	ExecuteDeferred(ctx context.Context, cmd Command, entity mapping.EntityDescriptor, projector Projector) ([]any, error)

	// ExecuteCommand runs a non-projecting statement (INSERT/UPDATE/
	// DELETE issued directly, outside the CRUDTable helpers) and
	// returns the number of affected rows.
	ExecuteCommand(ctx context.Context, cmd Command) (rowsAffected int64, err error)
}

// CRUDTable is the underlying per-entity-type table the session's
// SessionTable submits changes to.
type CRUDTable interface {
	Insert(ctx context.Context, instance any) error
	Update(ctx context.Context, instance any) error
	InsertOrUpdate(ctx context.Context, instance any) error
	Delete(ctx context.Context, instance any) error
	GetByID(ctx context.Context, key any) (any, error)
}

// Provider is the full external query provider the session wraps.
type Provider interface {
	// Execute evaluates an arbitrary expression against the store and
	// returns its value (e.g. a scalar aggregate). Not entity-materializing.
	Execute(ctx context.Context, expr any) (any, error)

	// Text renders expr as the query text that would be sent to the
	// store, for diagnostics.
	Text(expr any) string

	// GetTable returns the CRUD-capable table backing entity.
	GetTable(ctx context.Context, entity mapping.EntityDescriptor) (CRUDTable, error)

	// DoTransacted runs work inside a single transaction, rolling back
	// on any error work returns.
	DoTransacted(ctx context.Context, work func(ctx context.Context) error) error

	// CreateExecutor returns a fresh Executor bound to this provider.
	CreateExecutor() Executor
}
