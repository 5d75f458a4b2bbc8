package stats

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// DefaultEMAWeight is the share a new observation gets when folded into an anchor.
const DefaultEMAWeight = 0.2

// EstimatorConfig configures an Estimator.
type EstimatorConfig struct {
	// EMAWeight is the weight of a new observation in (0, 1]. Default: 0.2
	EMAWeight float64
}

// DefaultEstimatorConfig returns the default estimator configuration.
func DefaultEstimatorConfig() *EstimatorConfig {
	return &EstimatorConfig{EMAWeight: DefaultEMAWeight}
}

// Estimator serves level -> total stats estimates and refines its curve from
// observed stats. It is safe for concurrent use.
type Estimator struct {
	mu     sync.RWMutex
	curve  Curve
	weight float64
}

// NewEstimator creates an estimator over curve. An empty curve is rejected.
func NewEstimator(curve Curve, config *EstimatorConfig) (*Estimator, error) {
	if curve.Len() == 0 {
		return nil, ErrEmptyCurve
	}
	if config == nil {
		config = DefaultEstimatorConfig()
	}
	w := config.EMAWeight
	if w <= 0 || w > 1 || math.IsNaN(w) {
		return nil, fmt.Errorf("ema weight must be in (0, 1], got %v", w)
	}
	return &Estimator{curve: curve, weight: w}, nil
}

// Estimate returns the estimated total stats at level.
func (e *Estimator) Estimate(level int) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.curve.Estimate(level)
}

// UpdateAnchor folds an observed total into the anchor nearest to level using an
// exponential moving average, and returns the updated anchor. Invalid observations
// are ignored.
func (e *Estimator) UpdateAnchor(level int, observed float64) (Anchor, bool) {
	if math.IsNaN(observed) || math.IsInf(observed, 0) || observed <= 0 {
		return Anchor{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.curve.nearest(level)
	old := e.curve.anchors[i]
	updated := old.Total*(1-e.weight) + observed*e.weight
	e.curve = e.curve.withAnchor(i, updated)
	return Anchor{Level: old.Level, Total: updated}, true
}

// Curve returns the current curve.
func (e *Estimator) Curve() Curve {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.curve
}

// Replace swaps in a new curve, e.g. after the anchor file changed.
func (e *Estimator) Replace(c Curve) error {
	if c.Len() == 0 {
		return ErrEmptyCurve
	}
	e.mu.Lock()
	e.curve = c
	e.mu.Unlock()
	return nil
}

// Save persists the current curve to store.
func (e *Estimator) Save(ctx context.Context, store CurveStore) error {
	if err := store.SaveCurve(ctx, e.Curve()); err != nil {
		return fmt.Errorf("save stat curve: %w", err)
	}
	return nil
}
