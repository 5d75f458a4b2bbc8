// Package matchup is the entry point used by presentation layers: it records
// fight outcomes and answers "how hard is this fight" from local history, the
// community aggregate and an optional external predictor.
package matchup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/bucket"
	"github.com/ramonehamilton/matchup-companion/internal/daemon"
	"github.com/ramonehamilton/matchup-companion/internal/predictor"
	"github.com/ramonehamilton/matchup-companion/internal/scoring"
	"github.com/ramonehamilton/matchup-companion/internal/stats"
)

// DefaultPredictTimeout bounds how long Score waits for the external predictor.
const DefaultPredictTimeout = 300 * time.Millisecond

// Journal applies a change to the local aggregator and persists the result
// atomically with respect to other processes sharing the same data directory.
type Journal interface {
	Update(ctx context.Context, local *aggregate.Local, fn func(*aggregate.Local) error) error
}

// Config wires an Advisor. Local and Estimator are required; every other
// collaborator falls back to a null object.
type Config struct {
	Local      *aggregate.Local
	Estimator  *stats.Estimator
	Engine     *scoring.Engine
	Predictor  predictor.Predictor
	Scheduler  *daemon.Scheduler
	Cache      *daemon.GlobalCache
	CurveStore stats.CurveStore

	// Journal persists each recorded outcome when set.
	Journal Journal

	// PredictTimeout bounds a single predictor call (default: 300ms)
	PredictTimeout time.Duration

	Logger *slog.Logger
}

// Advisor scores matchups and records outcomes.
type Advisor struct {
	local          *aggregate.Local
	estimator      *stats.Estimator
	engine         *scoring.Engine
	predictor      predictor.Predictor
	scheduler      *daemon.Scheduler
	cache          *daemon.GlobalCache
	curveStore     stats.CurveStore
	journal        Journal
	predictTimeout time.Duration
	logger         *slog.Logger
}

// New creates an Advisor.
func New(cfg Config) (*Advisor, error) {
	if cfg.Local == nil {
		return nil, errors.New("matchup: local aggregator is required")
	}
	if cfg.Estimator == nil {
		return nil, errors.New("matchup: stat estimator is required")
	}

	a := &Advisor{
		local:          cfg.Local,
		estimator:      cfg.Estimator,
		engine:         cfg.Engine,
		predictor:      cfg.Predictor,
		scheduler:      cfg.Scheduler,
		cache:          cfg.Cache,
		curveStore:     cfg.CurveStore,
		journal:        cfg.Journal,
		predictTimeout: cfg.PredictTimeout,
		logger:         cfg.Logger,
	}
	if a.engine == nil {
		a.engine = scoring.NewEngine(nil, a.estimator)
	}
	if a.predictor == nil {
		a.predictor = predictor.Noop{}
	}
	if a.cache == nil {
		if a.scheduler != nil {
			a.cache = a.scheduler.Cache()
		} else {
			a.cache = daemon.NewGlobalCache()
		}
	}
	if a.curveStore == nil {
		a.curveStore = &stats.MemoryCurveStore{}
	}
	if a.predictTimeout <= 0 {
		a.predictTimeout = DefaultPredictTimeout
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// RecordOutcome records a finished fight into the local aggregator.
func (a *Advisor) RecordOutcome(match bucket.MatchContext, outcome aggregate.Outcome) bucket.Key {
	key := a.local.RecordOutcome(match, outcome)
	a.logger.Debug("recorded outcome", "bucket", string(key), "won", outcome.Won)
	return key
}

// Record is RecordOutcome followed by a write through the journal. Without a
// journal it only updates memory.
func (a *Advisor) Record(ctx context.Context, match bucket.MatchContext, outcome aggregate.Outcome) (bucket.Key, error) {
	if a.journal == nil {
		return a.RecordOutcome(match, outcome), nil
	}

	var key bucket.Key
	err := a.journal.Update(ctx, a.local, func(l *aggregate.Local) error {
		key = l.RecordOutcome(match, outcome)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("record outcome: %w", err)
	}
	a.logger.Debug("recorded outcome", "bucket", string(key), "won", outcome.Won)
	return key, nil
}

// Reset discards every local counter and persists the empty aggregate.
func (a *Advisor) Reset(ctx context.Context) error {
	if a.journal == nil {
		a.local.Reset()
		return nil
	}
	return a.journal.Update(ctx, a.local, func(l *aggregate.Local) error {
		l.Reset()
		return nil
	})
}

// Score rates a potential fight. It reads only cached data; the sole wait is the
// predictor call, bounded by PredictTimeout. A stale global aggregate triggers a
// background refresh and is served as-is meanwhile.
func (a *Advisor) Score(ctx context.Context, match bucket.MatchContext) scoring.MatchupScore {
	key := a.local.Keyer().Key(match)

	var local, global *aggregate.BucketAggregate
	if agg, ok := a.local.Bucket(key); ok {
		local = &agg
	}
	if agg, ok := a.cache.Community(key); ok {
		global = &agg
	}

	var external *scoring.ExternalPrediction
	predictCtx, cancel := context.WithTimeout(ctx, a.predictTimeout)
	if pred, ok := a.predictor.Predict(predictCtx, match); ok {
		external = &pred
	}
	cancel()

	if a.scheduler != nil {
		a.scheduler.TriggerRefresh()
	}

	score := a.engine.Score(match, local, global, external)
	score.AsOf = a.cache.AsOf()
	return score
}

// ObserveStats folds an observed total for a level into the stat curve and
// persists the updated curve.
func (a *Advisor) ObserveStats(ctx context.Context, level int, total float64) (stats.Anchor, error) {
	anchor, ok := a.estimator.UpdateAnchor(level, total)
	if !ok {
		return stats.Anchor{}, fmt.Errorf("ignored observation %v for level %d", total, level)
	}
	if err := a.estimator.Save(ctx, a.curveStore); err != nil {
		return anchor, fmt.Errorf("failed to persist stat curve: %w", err)
	}
	return anchor, nil
}

// Refresh rebuilds the global aggregate now when it is stale. Without a
// scheduler it is a no-op.
func (a *Advisor) Refresh(ctx context.Context) (aggregate.Global, error) {
	if a.scheduler == nil {
		return a.cache.Load(), nil
	}
	return a.scheduler.RefreshIfStale(ctx)
}

// Status summarizes the advisor's state.
type Status struct {
	ClientID      string         `json:"client_id"`
	Version       uint64         `json:"version"`
	LocalBuckets  int            `json:"local_buckets"`
	LocalOutcomes int64          `json:"local_outcomes"`
	Pending       int64          `json:"pending"`
	GlobalBuckets int            `json:"global_buckets"`
	GlobalClients int            `json:"global_clients"`
	AsOf          time.Time      `json:"as_of"`
	CurveAnchors  int            `json:"curve_anchors"`
	Sync          *daemon.Status `json:"sync,omitempty"`
}

// Status returns a point-in-time summary.
func (a *Advisor) Status() Status {
	snap, pending := a.local.SnapshotPending()
	global := a.cache.Load()

	st := Status{
		ClientID:      snap.ClientID,
		Version:       snap.Version,
		LocalBuckets:  len(snap.Buckets),
		LocalOutcomes: snap.TotalCount(),
		Pending:       pending,
		GlobalBuckets: len(global.Buckets),
		GlobalClients: global.Clients,
		AsOf:          global.AsOf,
		CurveAnchors:  a.estimator.Curve().Len(),
	}
	if a.scheduler != nil {
		syncStatus := a.scheduler.Status()
		st.Sync = &syncStatus
	}
	return st
}

// Local returns the local aggregator.
func (a *Advisor) Local() *aggregate.Local { return a.local }

// Estimator returns the stat estimator.
func (a *Advisor) Estimator() *stats.Estimator { return a.estimator }
