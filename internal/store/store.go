package store

import (
	"context"
	"database/sql"
	"errors"

	"modernc.org/sqlite"
)

// DBTX is the subset of *sql.DB and *sql.Tx the stores need. Coordinator and
// ledger operations construct stores over a transaction; read-only callers
// construct them over the pool directly.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlite extended result code for a UNIQUE constraint violation.
const sqliteConstraintUnique = 2067

// IsUniqueViolation reports whether err is a sqlite UNIQUE constraint failure.
// This is the authoritative duplicate-serial check: application-level
// pre-checks can race, the constraint cannot.
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqliteConstraintUnique
}
