package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ramonehamilton/matchup-companion/internal/stats"
)

// CurveRepository stores the refined level -> total stats curve.
type CurveRepository struct {
	db *DB
}

// NewCurveRepository creates a repository on db.
func NewCurveRepository(db *DB) *CurveRepository {
	return &CurveRepository{db: db}
}

// LoadCurve returns the saved curve, or stats.ErrEmptyCurve when none was saved.
func (r *CurveRepository) LoadCurve(ctx context.Context) (stats.Curve, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT level, total FROM stat_curve ORDER BY level`)
	if err != nil {
		return stats.Curve{}, fmt.Errorf("failed to load stat curve: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var anchors []stats.Anchor
	for rows.Next() {
		var a stats.Anchor
		if err := rows.Scan(&a.Level, &a.Total); err != nil {
			return stats.Curve{}, fmt.Errorf("failed to scan anchor: %w", err)
		}
		anchors = append(anchors, a)
	}
	if err := rows.Err(); err != nil {
		return stats.Curve{}, fmt.Errorf("failed to iterate anchors: %w", err)
	}
	if len(anchors) == 0 {
		return stats.Curve{}, stats.ErrEmptyCurve
	}
	return stats.NewCurve(anchors)
}

// SaveCurve replaces the saved curve with c.
func (r *CurveRepository) SaveCurve(ctx context.Context, c stats.Curve) error {
	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM stat_curve`); err != nil {
			return fmt.Errorf("failed to clear stat curve: %w", err)
		}
		for _, a := range c.Anchors() {
			if _, err := tx.ExecContext(ctx, `INSERT INTO stat_curve (level, total) VALUES (?, ?)`, a.Level, a.Total); err != nil {
				return fmt.Errorf("failed to save anchor %d: %w", a.Level, err)
			}
		}
		return nil
	})
}
