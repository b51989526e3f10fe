package postgres

import (
	"context"

	ierr "github.com/flexprice/invoicer/internal/errors"
)

// AdvisoryXactLock takes a transaction scoped advisory lock on key. It blocks
// until the lock is free and is released when the transaction ends.
func (db *DB) AdvisoryXactLock(ctx context.Context, key string) error {
	tx, ok := GetTx(ctx)
	if !ok {
		return ierr.NewError("advisory lock requires a transaction").
			WithHint("Run the operation inside WithTx").
			WithReportableDetails(map[string]any{"key": key}).
			Mark(ierr.ErrInvalidOperation)
	}

	q := NewTracedQuerier(tx.Tx, db.logger, tx.ID)
	if _, err := q.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to acquire lock").
			WithReportableDetails(map[string]any{"key": key}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}
