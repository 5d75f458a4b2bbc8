package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/bucket"
)

// LocalRepository persists one or more clients' local aggregates. The recorder
// and the sync daemon share it; both go through a transaction per change.
type LocalRepository struct {
	db *DB
}

// NewLocalRepository creates a repository on db.
func NewLocalRepository(db *DB) *LocalRepository {
	return &LocalRepository{db: db}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// LoadLocal returns the persisted snapshot and unflushed count for clientID. ok is
// false when nothing has been saved for the client yet.
func (r *LocalRepository) LoadLocal(ctx context.Context, clientID string) (aggregate.ClientSnapshot, int64, bool, error) {
	return loadLocal(ctx, r.db.conn, clientID)
}

func loadLocal(ctx context.Context, q queryer, clientID string) (aggregate.ClientSnapshot, int64, bool, error) {
	var (
		version   int64
		pending   int64
		updatedAt sql.NullTime
	)
	err := q.QueryRowContext(ctx, `
		SELECT version, pending, updated_at
		FROM local_state
		WHERE client_id = ?
	`, clientID).Scan(&version, &pending, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return aggregate.ClientSnapshot{}, 0, false, nil
	}
	if err != nil {
		return aggregate.ClientSnapshot{}, 0, false, fmt.Errorf("failed to load local state: %w", err)
	}

	snap := aggregate.ClientSnapshot{
		ClientID: clientID,
		Version:  uint64(version),
		Buckets:  make(map[bucket.Key]aggregate.BucketAggregate),
	}
	if updatedAt.Valid {
		snap.UpdatedAt = updatedAt.Time
	}

	rows, err := q.QueryContext(ctx, `
		SELECT bucket_key, count, win_count, loss_count, total_respect, total_energy, last_updated
		FROM local_buckets
		WHERE client_id = ?
	`, clientID)
	if err != nil {
		return aggregate.ClientSnapshot{}, 0, false, fmt.Errorf("failed to load local buckets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			key         string
			agg         aggregate.BucketAggregate
			lastUpdated sql.NullTime
		)
		if err := rows.Scan(&key, &agg.Count, &agg.WinCount, &agg.LossCount, &agg.TotalRespect, &agg.TotalEnergy, &lastUpdated); err != nil {
			return aggregate.ClientSnapshot{}, 0, false, fmt.Errorf("failed to scan local bucket: %w", err)
		}
		if lastUpdated.Valid {
			agg.LastUpdated = lastUpdated.Time
		}
		snap.Buckets[bucket.Key(key)] = agg
	}
	if err := rows.Err(); err != nil {
		return aggregate.ClientSnapshot{}, 0, false, fmt.Errorf("failed to iterate local buckets: %w", err)
	}

	return snap, pending, true, nil
}

// SaveLocal replaces the persisted state of snap.ClientID.
func (r *LocalRepository) SaveLocal(ctx context.Context, snap aggregate.ClientSnapshot, pending int64) error {
	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		return saveLocal(ctx, tx, snap, pending)
	})
}

func saveLocal(ctx context.Context, tx *sql.Tx, snap aggregate.ClientSnapshot, pending int64) error {
	if snap.ClientID == "" {
		return errors.New("snapshot has no client id")
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO local_state (client_id, version, pending, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			version = excluded.version,
			pending = excluded.pending,
			updated_at = excluded.updated_at
	`, snap.ClientID, int64(snap.Version), pending, nullTime(snap.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save local state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM local_buckets WHERE client_id = ?`, snap.ClientID); err != nil {
		return fmt.Errorf("failed to clear local buckets: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO local_buckets (client_id, bucket_key, count, win_count, loss_count, total_respect, total_energy, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare bucket insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for key, agg := range snap.Buckets {
		if _, err := stmt.ExecContext(ctx, snap.ClientID, string(key), agg.Count, agg.WinCount, agg.LossCount,
			agg.TotalRespect, agg.TotalEnergy, nullTime(agg.LastUpdated)); err != nil {
			return fmt.Errorf("failed to save bucket %s: %w", key, err)
		}
	}
	return nil
}

// Update loads the persisted state of local's client into local, applies fn, and
// saves the result, all in one transaction. A concurrent writer waits on the
// database lock instead of losing an increment.
func (r *LocalRepository) Update(ctx context.Context, local *aggregate.Local, fn func(*aggregate.Local) error) error {
	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		snap, pending, ok, err := loadLocal(ctx, tx, local.ClientID())
		if err != nil {
			return err
		}
		if ok {
			local.Restore(snap, pending)
		}

		if err := fn(local); err != nil {
			return err
		}

		snap, pending = local.SnapshotPending()
		return saveLocal(ctx, tx, snap, pending)
	})
}

// MarkFlushed lowers the persisted unflushed count of clientID by n, never below
// zero. Outcomes recorded after the push started stay pending.
func (r *LocalRepository) MarkFlushed(ctx context.Context, clientID string, n int64) error {
	if n <= 0 {
		return nil
	}
	_, err := r.db.conn.ExecContext(ctx, `
		UPDATE local_state SET pending = MAX(pending - ?, 0) WHERE client_id = ?
	`, n, clientID)
	if err != nil {
		return fmt.Errorf("failed to mark flushed: %w", err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
