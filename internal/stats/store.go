package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// CurveStore persists the refined curve between restarts.
type CurveStore interface {
	LoadCurve(ctx context.Context) (Curve, error)
	SaveCurve(ctx context.Context, c Curve) error
}

// MemoryCurveStore keeps the curve in process memory. It is the default when no
// persistent store is configured.
type MemoryCurveStore struct {
	mu    sync.Mutex
	curve Curve
}

// LoadCurve returns the last saved curve, or ErrEmptyCurve if none was saved.
func (s *MemoryCurveStore) LoadCurve(ctx context.Context) (Curve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curve.Len() == 0 {
		return Curve{}, ErrEmptyCurve
	}
	return s.curve, nil
}

// SaveCurve stores c.
func (s *MemoryCurveStore) SaveCurve(ctx context.Context, c Curve) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.curve = c
	return nil
}

// LoadOrDefault loads the persisted curve and falls back to fallback when nothing
// has been saved yet.
func LoadOrDefault(ctx context.Context, store CurveStore, fallback Curve) (Curve, error) {
	c, err := store.LoadCurve(ctx)
	if errors.Is(err, ErrEmptyCurve) {
		return fallback, nil
	}
	if err != nil {
		return Curve{}, fmt.Errorf("load stat curve: %w", err)
	}
	return c, nil
}
