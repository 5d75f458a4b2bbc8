package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/remote"
)

// SnapshotStore is a remote.Store backed by the snapshots table. The snapshot
// server uses it as its document store.
type SnapshotStore struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSnapshotStore creates a store on db. A nil logger falls back to slog.Default().
func NewSnapshotStore(db *DB, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{db: db, logger: logger, now: time.Now}
}

var _ remote.Store = (*SnapshotStore)(nil)

// Get returns the snapshot stored for clientID.
func (s *SnapshotStore) Get(ctx context.Context, clientID string) (aggregate.ClientSnapshot, bool, error) {
	var body string
	err := s.db.conn.QueryRowContext(ctx, `SELECT body FROM snapshots WHERE client_id = ?`, clientID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return aggregate.ClientSnapshot{}, false, nil
	}
	if err != nil {
		return aggregate.ClientSnapshot{}, false, fmt.Errorf("failed to get snapshot: %w", err)
	}

	snap, err := decodeSnapshot(clientID, body)
	if err != nil {
		return aggregate.ClientSnapshot{}, false, err
	}
	return snap, true, nil
}

// Put stores snapshot under clientID unless a newer version is already stored.
func (s *SnapshotStore) Put(ctx context.Context, clientID string, snapshot aggregate.ClientSnapshot) error {
	snapshot.ClientID = clientID
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		var stored int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM snapshots WHERE client_id = ?`, clientID).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to read stored version: %w", err)
		default:
			if err := remote.CheckVersion(aggregate.ClientSnapshot{Version: uint64(stored)}, snapshot); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshots (client_id, version, updated_at, body, stored_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(client_id) DO UPDATE SET
				version = excluded.version,
				updated_at = excluded.updated_at,
				body = excluded.body,
				stored_at = excluded.stored_at
		`, clientID, int64(snapshot.Version), nullTime(snapshot.UpdatedAt), string(body), s.now().UTC())
		if err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
		return nil
	})
}

// List returns up to limit snapshots with client ids after cursor. A row whose
// body does not decode is logged and counted in Skipped; it still advances the
// cursor.
func (s *SnapshotStore) List(ctx context.Context, cursor string, limit int) (remote.Page, error) {
	if limit <= 0 {
		limit = remote.DefaultPageSize
	}

	// One extra row tells whether another page follows.
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT client_id, body FROM snapshots
		WHERE client_id > ?
		ORDER BY client_id
		LIMIT ?
	`, cursor, limit+1)
	if err != nil {
		return remote.Page{}, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		page    remote.Page
		scanned int
		lastID  string
	)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return remote.Page{}, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if scanned == limit {
			page.NextCursor = lastID
			break
		}
		scanned++
		lastID = id

		snap, err := decodeSnapshot(id, body)
		if err != nil {
			page.Skipped++
			s.logger.Warn("skipping undecodable snapshot", "client_id", id, "error", err)
			continue
		}
		page.Snapshots = append(page.Snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return remote.Page{}, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return page, nil
}

// Count returns the number of stored snapshots.
func (s *SnapshotStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

func decodeSnapshot(clientID, body string) (aggregate.ClientSnapshot, error) {
	var snap aggregate.ClientSnapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return aggregate.ClientSnapshot{}, fmt.Errorf("snapshot %s: %w", clientID, err)
	}
	snap.ClientID = clientID
	return snap, nil
}
