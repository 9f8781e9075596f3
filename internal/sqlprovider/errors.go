package sqlprovider

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors, wrapped with operation context the way beads's
// sqlite storage layer wraps database/sql errors (internal/storage/sqlite/errors.go).
var (
	ErrNotFound     = errors.New("sqlprovider: not found")
	ErrNoPrimaryKey = errors.New("sqlprovider: type has no column tagged db:\"...,pk\"")
)

// wrapSQLError converts sql.ErrNoRows to ErrNotFound and attaches op
// context to any other error, mirroring wrapDBError in the teacher.
func wrapSQLError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlprovider: %s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("sqlprovider: %s: %w", op, err)
}
