// Package postgres is a remote.Store on PostgreSQL for snapshot servers shared by
// many clients.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/remote"
)

//go:embed schema.sql
var schema embed.FS

// Store keeps one row per client snapshot.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ remote.Store = (*Store)(nil)

// Open connects to dsn. A nil logger falls back to slog.Default().
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p, logger: logger}, nil
}

func (s *Store) Close()                         { s.pool.Close() }
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, string(sqlBytes))
	return err
}

func (s *Store) Get(ctx context.Context, clientID string) (aggregate.ClientSnapshot, bool, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM snapshots WHERE client_id = $1`, clientID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return aggregate.ClientSnapshot{}, false, nil
	}
	if err != nil {
		return aggregate.ClientSnapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}
	snap, err := decode(clientID, body)
	if err != nil {
		return aggregate.ClientSnapshot{}, false, err
	}
	return snap, true, nil
}

// Put upserts snapshot. The WHERE clause on the conflict branch makes the
// version check and the write a single statement.
func (s *Store) Put(ctx context.Context, clientID string, snapshot aggregate.ClientSnapshot) error {
	snapshot.ClientID = clientID
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	var updatedAt any
	if !snapshot.UpdatedAt.IsZero() {
		updatedAt = snapshot.UpdatedAt
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO snapshots (client_id, version, updated_at, body, stored_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (client_id) DO UPDATE
		  SET version = EXCLUDED.version,
		      updated_at = EXCLUDED.updated_at,
		      body = EXCLUDED.body,
		      stored_at = now()
		WHERE snapshots.version <= EXCLUDED.version
	`, clientID, int64(snapshot.Version), updatedAt, body)
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: client %s, got %d", remote.ErrStaleVersion, clientID, snapshot.Version)
	}
	return nil
}

func (s *Store) List(ctx context.Context, cursor string, limit int) (remote.Page, error) {
	if limit <= 0 {
		limit = remote.DefaultPageSize
	}

	rows, err := s.pool.Query(ctx, `
		SELECT client_id, body FROM snapshots
		 WHERE client_id > $1
		 ORDER BY client_id
		 LIMIT $2
	`, cursor, limit+1)
	if err != nil {
		return remote.Page{}, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var (
		page    remote.Page
		scanned int
		lastID  string
	)
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return remote.Page{}, err
		}
		if scanned == limit {
			page.NextCursor = lastID
			break
		}
		scanned++
		lastID = id

		snap, err := decode(id, body)
		if err != nil {
			page.Skipped++
			s.logger.Warn("skipping undecodable snapshot", "client_id", id, "error", err)
			continue
		}
		page.Snapshots = append(page.Snapshots, snap)
	}
	return page, rows.Err()
}

// Count returns the number of stored snapshots.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*)::int FROM snapshots`).Scan(&n)
	return n, err
}

func decode(clientID string, body []byte) (aggregate.ClientSnapshot, error) {
	var snap aggregate.ClientSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return aggregate.ClientSnapshot{}, fmt.Errorf("snapshot %s: %w", clientID, err)
	}
	snap.ClientID = clientID
	return snap, nil
}
