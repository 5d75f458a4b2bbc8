package aggregate

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/matchup-companion/internal/bucket"
)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestLocal_RecordOutcome(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	local := NewLocal("client-a", bucket.NewKeyer(5), WithClock(fixedClock(now)))
	ctx := bucket.MatchContext{SelfLevel: 20, OpponentLevel: 22, ChainCount: 15}

	key := local.RecordOutcome(ctx, Outcome{Won: true, Respect: 3.5, Energy: 25})
	local.RecordOutcome(ctx, Outcome{Won: false, Respect: 0, Energy: 25})
	local.RecordOutcome(ctx, Outcome{Won: true, Respect: 4, Energy: 25})

	assert.Equal(t, bucket.Key("L16-20__L21-25__C10-49__PEACE"), key)

	agg, ok := local.Bucket(key)
	require.True(t, ok)
	assert.Equal(t, BucketAggregate{
		Count: 3, WinCount: 2, LossCount: 1,
		TotalRespect: 7.5, TotalEnergy: 75,
		LastUpdated: now,
	}, agg)

	viaCtx, ok := local.Lookup(ctx)
	require.True(t, ok)
	assert.Equal(t, agg, viaCtx)
	assert.Equal(t, int64(3), local.Pending())
}

func TestLocal_ClampsMalformedOutcomeValues(t *testing.T) {
	local := NewLocal("client-a", bucket.NewKeyer(5))
	key := local.RecordOutcome(bucket.MatchContext{SelfLevel: 1, OpponentLevel: 1}, Outcome{Won: false, Respect: -5, Energy: math.NaN()})

	agg, ok := local.Bucket(key)
	require.True(t, ok)
	assert.Equal(t, int64(1), agg.Count)
	assert.Equal(t, int64(1), agg.LossCount)
	assert.Zero(t, agg.TotalRespect)
	assert.Zero(t, agg.TotalEnergy)
	assert.NoError(t, agg.Validate())
}

func TestLocal_SnapshotIsACopy(t *testing.T) {
	local := NewLocal("client-a", bucket.NewKeyer(5))
	ctx := bucket.MatchContext{SelfLevel: 5, OpponentLevel: 5}
	key := local.RecordOutcome(ctx, Outcome{Won: true, Energy: 25})

	snap := local.Snapshot()
	assert.Equal(t, "client-a", snap.ClientID)
	assert.Equal(t, uint64(1), snap.Version)

	local.RecordOutcome(ctx, Outcome{Won: true, Energy: 25})
	assert.Equal(t, int64(1), snap.Buckets[key].Count, "snapshot must not see later writes")
	assert.Equal(t, uint64(2), local.Snapshot().Version)
}

func TestLocal_PendingAndFlush(t *testing.T) {
	local := NewLocal("client-a", bucket.NewKeyer(5))
	ctx := bucket.MatchContext{SelfLevel: 5, OpponentLevel: 5}
	for i := 0; i < 5; i++ {
		local.RecordOutcome(ctx, Outcome{Won: i%2 == 0})
	}
	require.Equal(t, int64(5), local.Pending())

	// Two more arrive while a push of the first five is in flight.
	local.RecordOutcome(ctx, Outcome{})
	local.RecordOutcome(ctx, Outcome{})
	local.MarkFlushed(5)
	assert.Equal(t, int64(2), local.Pending())

	local.MarkFlushed(10)
	assert.Zero(t, local.Pending())
}

func TestLocal_ResetAndRestore(t *testing.T) {
	local := NewLocal("client-a", bucket.NewKeyer(5))
	ctx := bucket.MatchContext{SelfLevel: 5, OpponentLevel: 5}
	local.RecordOutcome(ctx, Outcome{Won: true})
	saved := local.Snapshot()

	local.Reset()
	snap := local.Snapshot()
	assert.Empty(t, snap.Buckets)
	assert.Greater(t, snap.Version, saved.Version)
	assert.Equal(t, int64(1), local.Pending())

	saved.Buckets["broken"] = BucketAggregate{Count: 5, WinCount: 1}
	local.Restore(saved, 0)
	restored := local.Snapshot()
	assert.Len(t, restored.Buckets, 1, "invalid buckets are dropped on restore")
	assert.Equal(t, saved.Version, restored.Version)
	assert.Zero(t, local.Pending())
}

func TestLocal_ConcurrentWritersAndReaders(t *testing.T) {
	local := NewLocal("client-a", bucket.NewKeyer(5))
	ctx := bucket.MatchContext{SelfLevel: 30, OpponentLevel: 30, AtWar: true}
	key := local.Keyer().Key(ctx)

	const writers, perWriter = 8, 250
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				local.RecordOutcome(ctx, Outcome{Won: (w+i)%3 == 0, Respect: 1, Energy: 25})
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			if agg, ok := local.Bucket(key); ok {
				// A reader never sees a half-applied update.
				if agg.Count != agg.WinCount+agg.LossCount {
					t.Errorf("torn read: %+v", agg)
					return
				}
			}
		}
	}()

	wg.Wait()
	<-done

	agg, ok := local.Bucket(key)
	require.True(t, ok)
	assert.Equal(t, int64(writers*perWriter), agg.Count)
	assert.Equal(t, float64(writers*perWriter), agg.TotalRespect)
}
