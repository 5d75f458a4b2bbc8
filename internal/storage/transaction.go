package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// TxFunc is a unit of work run by WithTransaction.
type TxFunc func(*sql.Tx) error

// WithTransaction runs fn in one transaction. The DSN opens transactions with
// BEGIN IMMEDIATE, so a second writer (the CLI while the daemon ticks) waits on
// busy_timeout here instead of failing halfway through a read-modify-write.
// Anything but a clean return from fn, panics included, rolls back.
func (db *DB) WithTransaction(ctx context.Context, fn TxFunc) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
