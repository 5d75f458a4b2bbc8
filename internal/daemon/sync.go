package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/metrics"
	"github.com/ramonehamilton/matchup-companion/internal/remote"
)

// ErrSyncInProgress is returned when a push or pull of the same kind is already running.
var ErrSyncInProgress = errors.New("sync already in progress")

// SyncEventType represents the type of sync event.
type SyncEventType string

const (
	SyncEventPushStarted    SyncEventType = "sync:push_started"
	SyncEventPushCompleted  SyncEventType = "sync:push_completed"
	SyncEventPullStarted    SyncEventType = "sync:pull_started"
	SyncEventMergeProgress  SyncEventType = "sync:merge_progress"
	SyncEventMergeCompleted SyncEventType = "sync:merge_completed"
	SyncEventError          SyncEventType = "sync:error"
)

// SyncEvent represents an event emitted by the scheduler.
type SyncEvent struct {
	Type      SyncEventType `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Data      interface{}   `json:"data,omitempty"`
}

// EventEmitter is an interface for emitting sync events.
type EventEmitter interface {
	Emit(event SyncEvent)
}

// PushResult describes a completed push.
type PushResult struct {
	Version  uint64        `json:"version"`
	Flushed  int64         `json:"flushed"`
	Stale    bool          `json:"stale"`
	Duration time.Duration `json:"duration"`
}

// MergeResult describes a published global aggregate.
type MergeResult struct {
	Clients  int           `json:"clients"`
	Buckets  int           `json:"buckets"`
	Skipped  int           `json:"skipped"`
	AsOf     time.Time     `json:"as_of"`
	Duration time.Duration `json:"duration"`
}

// LocalStore is the persisted copy of the client's own aggregator. The scheduler
// reloads from it before pushing so outcomes recorded by other processes are
// included, and only ever decrements the persisted pending count.
type LocalStore interface {
	LoadLocal(ctx context.Context, clientID string) (snapshot aggregate.ClientSnapshot, pending int64, ok bool, err error)
	MarkFlushed(ctx context.Context, clientID string, n int64) error
}

// SchedulerConfig holds configuration for the sync scheduler.
type SchedulerConfig struct {
	// TickInterval is how often the background loop runs (0 = no background loop)
	TickInterval time.Duration

	// PushBatchThreshold is the number of pending outcomes that triggers a push
	PushBatchThreshold int64

	// MaxPushDelay pushes any pending outcomes once this long has passed since
	// the last push, even below the batch threshold
	MaxPushDelay time.Duration

	// MaxStaleness is the age after which the global aggregate is recomputed
	MaxStaleness time.Duration

	// SyncTimeout is the maximum time to wait for a single remote call
	SyncTimeout time.Duration

	// MaxSnapshotsPerPass bounds merge work per tick (0 = unbounded)
	MaxSnapshotsPerPass int

	// PageSize is the page size used when listing remote snapshots
	PageSize int

	Logger *slog.Logger
	Now    func() time.Time
}

// DefaultSchedulerConfig returns a SchedulerConfig with sensible defaults.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		TickInterval:        30 * time.Second,
		PushBatchThreshold:  10,
		MaxPushDelay:        2 * time.Minute,
		MaxStaleness:        5 * time.Minute,
		SyncTimeout:         10 * time.Second,
		MaxSnapshotsPerPass: 0,
		PageSize:            remote.DefaultPageSize,
	}
}

// Scheduler pushes the local snapshot and rebuilds the global aggregate in the
// background. At most one push and one pull run at a time; a failed call leaves
// local state and the cached global untouched until the next tick.
type Scheduler struct {
	local   *aggregate.Local
	store   remote.Store
	merger  *aggregate.Merger
	cache   *GlobalCache
	emitter EventEmitter
	metrics *metrics.SyncMetrics
	persist LocalStore
	config  *SchedulerConfig
	logger  *slog.Logger
	now     func() time.Time

	pushing atomic.Bool
	pulling atomic.Bool

	mu        sync.Mutex
	pass      *aggregate.Pass
	passOwn   aggregate.ClientSnapshot
	passStart time.Time
	lastPush  time.Time
	lastPull  time.Time
	lastErr   error

	// pushWindow is when the current MaxPushDelay window opened: scheduler
	// creation or the last successful push.
	pushWindow time.Time

	// For the background loop
	stopChan chan struct{}
	doneChan chan struct{}
}

// SchedulerDeps are the collaborators of a Scheduler. Only Local is required.
type SchedulerDeps struct {
	Local   *aggregate.Local
	Store   remote.Store
	Cache   *GlobalCache
	Emitter EventEmitter
	Metrics *metrics.SyncMetrics
	Persist LocalStore
}

// NewScheduler creates a scheduler. Missing collaborators get null-object
// defaults: a Noop store, a fresh cache and fresh metrics.
func NewScheduler(deps SchedulerDeps, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	if deps.Store == nil {
		deps.Store = remote.Noop{}
	}
	if deps.Cache == nil {
		deps.Cache = NewGlobalCache()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewSyncMetrics()
	}

	return &Scheduler{
		local:      deps.Local,
		store:      deps.Store,
		merger:     aggregate.NewMerger(&aggregate.MergerConfig{Logger: logger, Now: now}),
		cache:      deps.Cache,
		emitter:    deps.Emitter,
		metrics:    deps.Metrics,
		persist:    deps.Persist,
		config:     config,
		logger:     logger,
		now:        now,
		pushWindow: now(),
	}
}

// Cache returns the global cache the scheduler publishes to.
func (s *Scheduler) Cache() *GlobalCache { return s.cache }

// Metrics returns the scheduler's metrics.
func (s *Scheduler) Metrics() *metrics.SyncMetrics { return s.metrics }

// TickResult reports what a tick did. Errors are informational: the scheduler
// has already logged them and will retry on a later tick.
type TickResult struct {
	Push    *PushResult
	Merge   *MergeResult
	PushErr error
	PullErr error
}

// Tick runs one scheduling round: push when enough outcomes are pending or the
// oldest one has waited too long, then pull and merge when the cached global is
// stale or a bounded pass is still in progress.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	var res TickResult

	if err := s.reload(ctx); err != nil {
		s.logger.Warn("failed to reload local snapshot", "error", err)
	}
	if s.shouldPush() {
		res.Push, res.PushErr = s.Push(ctx)
	}
	if s.shouldPull() {
		res.Merge, res.PullErr = s.PullAndMerge(ctx)
	}
	return res
}

func (s *Scheduler) shouldPush() bool {
	pending := s.local.Pending()
	if pending <= 0 {
		return false
	}
	if pending >= s.config.PushBatchThreshold {
		return true
	}

	s.mu.Lock()
	window := s.pushWindow
	s.mu.Unlock()
	return s.now().Sub(window) >= s.config.MaxPushDelay
}

func (s *Scheduler) shouldPull() bool {
	s.mu.Lock()
	inProgress := s.pass != nil
	s.mu.Unlock()
	return inProgress || s.cache.Stale(s.now(), s.config.MaxStaleness)
}

// reload refreshes the in-memory aggregator from the persisted copy.
func (s *Scheduler) reload(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	snap, pending, ok, err := s.persist.LoadLocal(ctx, s.local.ClientID())
	if err != nil || !ok {
		return err
	}
	if snap.Version >= s.local.Snapshot().Version {
		s.local.Restore(snap, pending)
	}
	return nil
}

// Push sends the full local snapshot to the remote store. On success the pushed
// outcomes are acknowledged; on failure nothing changes locally. A stale-version
// rejection counts as acknowledged: the store already holds newer data for this
// client.
func (s *Scheduler) Push(ctx context.Context) (*PushResult, error) {
	if !s.pushing.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.pushing.Store(false)

	start := s.now()
	s.emit(SyncEventPushStarted, nil)

	snapshot, pending := s.local.SnapshotPending()
	result := &PushResult{Version: snapshot.Version, Flushed: pending}

	callCtx, cancel := s.withTimeout(ctx)
	err := s.store.Put(callCtx, snapshot.ClientID, snapshot)
	cancel()

	result.Duration = s.now().Sub(start)
	switch {
	case errors.Is(err, remote.ErrStaleVersion):
		s.metrics.StalePushes.Add(1)
		s.logger.Warn("remote store holds a newer snapshot for this client", "version", snapshot.Version, "error", err)
		result.Stale = true
	case err != nil:
		s.metrics.RecordPush(result.Duration, err)
		s.fail("push", err)
		return nil, fmt.Errorf("failed to push snapshot: %w", err)
	}
	s.metrics.RecordPush(result.Duration, nil)

	s.local.MarkFlushed(pending)
	if s.persist != nil {
		if err := s.persist.MarkFlushed(ctx, snapshot.ClientID, pending); err != nil {
			s.logger.Warn("failed to persist flush marker", "error", err)
		}
	}

	s.mu.Lock()
	s.lastPush = s.now()
	s.pushWindow = s.lastPush
	s.lastErr = nil
	s.mu.Unlock()

	s.emit(SyncEventPushCompleted, result)
	return result, nil
}

// PullAndMerge lists every remote snapshot and merges them into a new global
// aggregate. With MaxSnapshotsPerPass set, a large merge is spread over several
// calls and the previous global keeps being served until the pass completes; the
// returned MergeResult is nil until then. A failed listing keeps the previous
// global and its timestamp.
func (s *Scheduler) PullAndMerge(ctx context.Context) (*MergeResult, error) {
	if !s.pulling.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.pulling.Store(false)

	s.mu.Lock()
	pass := s.pass
	s.mu.Unlock()

	if pass == nil {
		var err error
		pass, err = s.beginPass(ctx)
		if err != nil {
			return nil, err
		}
	}

	done, err := pass.Step(ctx, s.config.MaxSnapshotsPerPass)
	if err != nil {
		s.fail("merge", err)
		return nil, fmt.Errorf("merge interrupted: %w", err)
	}
	if !done {
		s.emit(SyncEventMergeProgress, map[string]int{"remaining": pass.Remaining()})
		return nil, nil
	}

	global := pass.Result()

	s.mu.Lock()
	own := s.passOwn
	duration := s.now().Sub(s.passStart)
	s.pass = nil
	s.passOwn = aggregate.ClientSnapshot{}
	s.lastErr = nil
	s.mu.Unlock()
	s.cache.Publish(global, own)

	s.metrics.RecordMerge(duration, global.Skipped)
	result := &MergeResult{
		Clients:  global.Clients,
		Buckets:  len(global.Buckets),
		Skipped:  global.Skipped,
		AsOf:     global.AsOf,
		Duration: duration,
	}
	s.logger.Debug("published global aggregate", "clients", result.Clients, "buckets", result.Buckets, "skipped", result.Skipped)
	s.emit(SyncEventMergeCompleted, result)
	return result, nil
}

func (s *Scheduler) beginPass(ctx context.Context) (*aggregate.Pass, error) {
	start := s.now()
	s.emit(SyncEventPullStarted, nil)

	callCtx, cancel := s.withTimeout(ctx)
	snapshots, err := remote.ListAll(callCtx, s.store, s.config.PageSize)
	cancel()

	s.metrics.RecordPull(s.now().Sub(start), err)
	if err != nil {
		s.fail("pull", err)
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	// The local copy is at least as new as whatever the store holds for us.
	own := s.local.Snapshot()
	snapshots[own.ClientID] = own

	pass := s.merger.Begin(snapshots)
	s.mu.Lock()
	s.pass = pass
	s.passOwn = own
	s.passStart = start
	s.lastPull = s.now()
	s.mu.Unlock()
	return pass, nil
}

// RefreshIfStale rebuilds the global aggregate when it is older than
// MaxStaleness. It returns the cached global, which is the previous one when the
// refresh failed or has not completed yet.
func (s *Scheduler) RefreshIfStale(ctx context.Context) (aggregate.Global, error) {
	if !s.shouldPull() {
		return s.cache.Load(), nil
	}
	_, err := s.PullAndMerge(ctx)
	if errors.Is(err, ErrSyncInProgress) {
		err = nil
	}
	return s.cache.Load(), err
}

// TriggerRefresh starts RefreshIfStale in the background when the cache is stale.
// It never blocks the caller.
func (s *Scheduler) TriggerRefresh() {
	if !s.shouldPull() || s.pulling.Load() {
		return
	}
	go func() {
		if _, err := s.RefreshIfStale(context.Background()); err != nil {
			s.logger.Debug("background refresh failed", "error", err)
		}
	}()
}

// IsPushing returns true if a push is in flight.
func (s *Scheduler) IsPushing() bool { return s.pushing.Load() }

// IsPulling returns true if a pull or merge is in flight.
func (s *Scheduler) IsPulling() bool { return s.pulling.Load() }

// Status is a point-in-time view of the scheduler.
type Status struct {
	Pushing       bool      `json:"pushing"`
	Pulling       bool      `json:"pulling"`
	Pending       int64     `json:"pending"`
	LastPush      time.Time `json:"last_push"`
	LastPull      time.Time `json:"last_pull"`
	AsOf          time.Time `json:"as_of"`
	Stale         bool      `json:"stale"`
	PassRemaining int       `json:"pass_remaining"`
	LastError     string    `json:"last_error,omitempty"`
}

// Status returns the scheduler's current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{
		LastPush: s.lastPush,
		LastPull: s.lastPull,
	}
	if s.pass != nil {
		st.PassRemaining = s.pass.Remaining()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()

	st.Pushing = s.pushing.Load()
	st.Pulling = s.pulling.Load()
	st.Pending = s.local.Pending()
	st.AsOf = s.cache.AsOf()
	st.Stale = s.cache.Stale(s.now(), s.config.MaxStaleness)
	return st
}

// Start starts the background tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s.config.TickInterval <= 0 {
		return
	}

	s.mu.Lock()
	if s.stopChan != nil {
		s.mu.Unlock()
		return // Already running
	}
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	stopChan, doneChan := s.stopChan, s.doneChan
	s.mu.Unlock()

	go func() {
		defer close(doneChan)
		ticker := time.NewTicker(s.config.TickInterval)
		defer ticker.Stop()

		s.Tick(ctx)
		for {
			select {
			case <-ticker.C:
				s.Tick(ctx)
			case <-stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the background loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopChan == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	doneChan := s.doneChan
	s.mu.Unlock()

	// Wait for goroutine to finish
	<-doneChan

	s.mu.Lock()
	s.stopChan = nil
	s.doneChan = nil
	s.mu.Unlock()
}

func (s *Scheduler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.SyncTimeout > 0 {
		return context.WithTimeout(ctx, s.config.SyncTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Scheduler) fail(op string, err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	s.logger.Warn("sync failed, serving cached data", "op", op, "transport", remote.IsTransport(err), "error", err)
	s.emit(SyncEventError, map[string]string{"op": op, "error": err.Error()})
}

func (s *Scheduler) emit(t SyncEventType, data interface{}) {
	if s.emitter != nil {
		s.emitter.Emit(SyncEvent{Type: t, Timestamp: s.now(), Data: data})
	}
}
