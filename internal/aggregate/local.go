package aggregate

import (
	"sync"
	"time"

	"github.com/ramonehamilton/matchup-companion/internal/bucket"
)

// Local owns the bucketed outcome counters of exactly one client. Writes take a
// single coarse lock; the write volume is a handful of fights per minute.
type Local struct {
	clientID string
	keyer    bucket.Keyer
	now      func() time.Time

	mu        sync.RWMutex
	buckets   map[bucket.Key]BucketAggregate
	updatedAt time.Time
	version   uint64
	pending   int64
}

// LocalOption configures a Local aggregator.
type LocalOption func(*Local)

// WithClock overrides the time source used for LastUpdated stamps.
func WithClock(now func() time.Time) LocalOption {
	return func(l *Local) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLocal creates an empty aggregator for clientID.
func NewLocal(clientID string, keyer bucket.Keyer, opts ...LocalOption) *Local {
	l := &Local{
		clientID: clientID,
		keyer:    keyer,
		now:      time.Now,
		buckets:  make(map[bucket.Key]BucketAggregate),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ClientID returns the owning client's opaque id.
func (l *Local) ClientID() string { return l.clientID }

// Keyer returns the keyer used to bucket outcomes.
func (l *Local) Keyer() bucket.Keyer { return l.keyer }

// RecordOutcome adds one observed outcome to the bucket matching ctx and returns
// that key. Negative or non-finite respect and energy are clamped to zero.
func (l *Local) RecordOutcome(ctx bucket.MatchContext, o Outcome) bucket.Key {
	key := l.keyer.Key(ctx)
	now := l.now()

	delta := BucketAggregate{
		Count:        1,
		TotalRespect: clampNonNegative(o.Respect),
		TotalEnergy:  clampNonNegative(o.Energy),
		LastUpdated:  now,
	}
	if o.Won {
		delta.WinCount = 1
	} else {
		delta.LossCount = 1
	}

	l.mu.Lock()
	l.buckets[key] = l.buckets[key].Merge(delta)
	l.updatedAt = now
	l.version++
	l.pending++
	l.mu.Unlock()

	return key
}

// Bucket returns a copy of the aggregate stored under key.
func (l *Local) Bucket(key bucket.Key) (BucketAggregate, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	agg, ok := l.buckets[key]
	return agg, ok
}

// Lookup returns the aggregate for the bucket that ctx falls into.
func (l *Local) Lookup(ctx bucket.MatchContext) (BucketAggregate, bool) {
	return l.Bucket(l.keyer.Key(ctx))
}

// Snapshot returns a deep copy of the aggregator state.
func (l *Local) Snapshot() ClientSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Local) snapshotLocked() ClientSnapshot {
	buckets := make(map[bucket.Key]BucketAggregate, len(l.buckets))
	for k, v := range l.buckets {
		buckets[k] = v
	}
	return ClientSnapshot{
		ClientID:  l.clientID,
		UpdatedAt: l.updatedAt,
		Version:   l.version,
		Buckets:   buckets,
	}
}

// SnapshotPending returns a deep copy together with the pending count observed
// under the same lock, so a push acknowledges exactly what it carried.
func (l *Local) SnapshotPending() (ClientSnapshot, int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked(), l.pending
}

// Pending returns the number of outcomes recorded since the last flush.
func (l *Local) Pending() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pending
}

// MarkFlushed acknowledges n outcomes as pushed. Outcomes recorded while the push
// was in flight stay pending.
func (l *Local) MarkFlushed(n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending -= n
	if l.pending < 0 {
		l.pending = 0
	}
}

// Restore replaces the aggregator state with a previously persisted snapshot.
// Malformed or invalid buckets are dropped. pending is the unflushed count that
// was persisted alongside the snapshot.
func (l *Local) Restore(s ClientSnapshot, pending int64) {
	buckets := make(map[bucket.Key]BucketAggregate, len(s.Buckets))
	for k, v := range s.Buckets {
		if v.Validate() != nil {
			continue
		}
		buckets[k] = v
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = buckets
	l.updatedAt = s.UpdatedAt
	l.version = s.Version
	l.pending = pending
}

// Reset discards all counters. The version keeps increasing so that the next
// push supersedes whatever the remote store holds.
func (l *Local) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[bucket.Key]BucketAggregate)
	l.updatedAt = l.now()
	l.version++
	l.pending = 1 // the empty snapshot still has to reach the remote store
}
