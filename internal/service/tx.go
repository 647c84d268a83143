package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// withTx runs fn inside one transaction. The connection is opened with
// _txlock=immediate, so BeginTx takes the sqlite writer lock up front; a
// read-then-write sequence inside fn can therefore never interleave with
// another writer. Any error rolls everything back, leaving session and item
// state exactly as before the call.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Error("failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
