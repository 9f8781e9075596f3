// Package sqlprovider is the concrete provider.Provider adapter backing
// the entity session with a real database/sql connection (§4.B's
// "internal/sqlprovider" boundary implementation). It supports both
// modernc.org/sqlite (pure Go, the default) and github.com/go-sql-driver/mysql
// (for a server-backed deployment), the same embedded/server split
// beads's dolt storage backend makes, grounded here on ordinary SQL
// rather than a versioned engine.
package sqlprovider

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/entitykit/session/internal/mapping"
	"github.com/entitykit/session/internal/provider"
)

var providerTracer = otel.Tracer("github.com/entitykit/session/internal/sqlprovider")

// Open opens a database/sql connection for cfg's driver and pings it.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	driverName, err := cfg.driverName()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlprovider: open %s: %w", cfg.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlprovider: ping %s: %w", cfg.Driver, err)
	}
	return db, nil
}

// Provider is the concrete provider.Provider backed by db. Register
// every entity type the session will use with RegisterTable before
// calling Session.GetTable for it.
type Provider struct {
	db *sql.DB

	mu     sync.Mutex
	tables map[mapping.EntityDescriptor]*sqlTable
}

func New(db *sql.DB) *Provider {
	return &Provider{db: db, tables: make(map[mapping.EntityDescriptor]*sqlTable)}
}

// RegisterTable associates entity with the SQL table tableName, using
// sample (a zero value or nil pointer of the entity's Go type) to
// discover its `db:"..."` column tags.
func (p *Provider) RegisterTable(entity mapping.EntityDescriptor, tableName string, sample any) error {
	t, err := newSQLTable(p.db, tableName, sample)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.tables[entity] = t
	p.mu.Unlock()
	return nil
}

// Execute implements provider.Provider for opaque, non-entity
// expressions: expr must be a provider.Command for this adapter, since
// sqlprovider carries no expression-tree builder of its own.
func (p *Provider) Execute(ctx context.Context, expr any) (any, error) {
	cmd, ok := expr.(provider.Command)
	if !ok {
		return nil, fmt.Errorf("sqlprovider: Execute expects a provider.Command, got %T", expr)
	}
	row := connFromContext(ctx, p.db).QueryRowContext(ctx, cmd.Text, cmd.Args...)
	var result any
	if err := row.Scan(&result); err != nil {
		return nil, wrapSQLError("execute scalar", err)
	}
	return result, nil
}

// Text implements provider.Provider.
func (p *Provider) Text(expr any) string {
	if cmd, ok := expr.(provider.Command); ok {
		return cmd.Text
	}
	return fmt.Sprintf("%v", expr)
}

// GetTable implements provider.Provider.
func (p *Provider) GetTable(ctx context.Context, entity mapping.EntityDescriptor) (provider.CRUDTable, error) {
	p.mu.Lock()
	t, ok := p.tables[entity]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sqlprovider: no table registered for %s (%s)", entity.TableID, entity.Type)
	}
	return t, nil
}

// DoTransacted implements provider.Provider: it opens a SQL transaction,
// threads it through ctx so every CRUD/executor call inside work runs
// against it, and retries the whole transaction on a transient
// lock/connection failure (internal/storage/dolt/store.go's withRetry,
// generalized to both drivers this package supports).
func (p *Provider) DoTransacted(ctx context.Context, work func(ctx context.Context) error) error {
	ctx, span := providerTracer.Start(ctx, "sqlprovider.DoTransacted")
	defer span.End()

	err := withRetry(ctx, func() error {
		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return wrapSQLError("begin transaction", err)
		}
		if err := work(withTx(ctx, tx)); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return wrapSQLError("commit transaction", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// CreateExecutor implements provider.Provider.
func (p *Provider) CreateExecutor() provider.Executor {
	return &sqlExecutor{db: p.db}
}

var _ provider.Provider = (*Provider)(nil)
