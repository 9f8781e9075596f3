package sqlprovider

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// conn is the subset of *sql.DB / *sql.Tx this package needs. Every CRUD
// and executor call resolves one of these from context so that work
// done inside DoTransacted's callback runs against the open transaction
// instead of auto-committing each statement on its own connection.
type conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type txKey struct{}

func withTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func connFromContext(ctx context.Context, db *sql.DB) conn {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// retryMaxElapsed bounds how long withRetry keeps retrying a transient
// failure, the way beads's server-mode dolt store caps its backoff.
const retryMaxElapsed = 10 * time.Second

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// isRetryableError reports whether err is a transient lock/connection
// failure worth retrying, covering both sqlite's "database is locked"
// (modernc.org/sqlite under write contention) and go-sql-driver/mysql's
// stale-connection/lock-wait errors.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"):
		return true
	case strings.Contains(msg, "sqlite_busy"):
		return true
	case strings.Contains(msg, "driver: bad connection"):
		return true
	case strings.Contains(msg, "invalid connection"):
		return true
	case strings.Contains(msg, "lock wait timeout"):
		return true
	case strings.Contains(msg, "deadlock found"):
		return true
	default:
		return false
	}
}

// withRetry retries op against transient lock/connection errors using an
// exponential backoff, matching the shape of withRetry in
// internal/storage/dolt/store.go but applied uniformly rather than only
// in server mode — sqlite's writer-lock contention needs the same
// treatment the mysql driver does.
func withRetry(ctx context.Context, op func() error) error {
	bo := newRetryBackoff()
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isRetryableError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}
