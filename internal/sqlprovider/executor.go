package sqlprovider

import (
	"context"
	"database/sql"

	"github.com/entitykit/session/internal/mapping"
	"github.com/entitykit/session/internal/provider"
)

// rowAdapter satisfies provider.Row over *sql.Rows.
type rowAdapter struct{ rows *sql.Rows }

func (r rowAdapter) Scan(dest ...any) error { return r.rows.Scan(dest...) }

// rowsCursor satisfies provider.Cursor, projecting lazily on Next.
type rowsCursor struct {
	rows      *sql.Rows
	projector provider.Projector
	current   any
	err       error
}

func (c *rowsCursor) Next(ctx context.Context) bool {
	if !c.rows.Next() {
		return false
	}
	if c.projector == nil {
		return true
	}
	v, err := c.projector(rowAdapter{rows: c.rows})
	if err != nil {
		c.err = err
		return false
	}
	c.current = v
	return true
}

func (c *rowsCursor) Current() any { return c.current }

func (c *rowsCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *rowsCursor) Close() error { return c.rows.Close() }

// sqlExecutor implements provider.Executor by sending Command.Text
// straight to the database, resolving the active transaction (if any)
// from context the same way sqlTable does.
type sqlExecutor struct {
	db *sql.DB
}

func (e *sqlExecutor) Execute(ctx context.Context, cmd provider.Command, entity mapping.EntityDescriptor, projector provider.Projector) (provider.Cursor, error) {
	rows, err := connFromContext(ctx, e.db).QueryContext(ctx, cmd.Text, cmd.Args...)
	if err != nil {
		return nil, wrapSQLError("execute", err)
	}
	return &rowsCursor{rows: rows, projector: projector}, nil
}

func (e *sqlExecutor) ExecuteDeferred(ctx context.Context, cmd provider.Command, entity mapping.EntityDescriptor, projector provider.Projector) ([]any, error) {
	cur, err := e.Execute(ctx, cmd, entity, projector)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []any
	for cur.Next(ctx) {
		out = append(out, cur.Current())
	}
	if err := cur.Err(); err != nil {
		return nil, wrapSQLError("execute deferred", err)
	}
	return out, nil
}

func (e *sqlExecutor) ExecuteCommand(ctx context.Context, cmd provider.Command) (int64, error) {
	res, err := connFromContext(ctx, e.db).ExecContext(ctx, cmd.Text, cmd.Args...)
	if err != nil {
		return 0, wrapSQLError("execute command", err)
	}
	return res.RowsAffected()
}

var _ provider.Executor = (*sqlExecutor)(nil)
