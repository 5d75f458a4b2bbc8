package remote

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/bucket"
)

const testKey = bucket.Key("L1-5__L1-5__C0-9__PEACE")

func snapshot(id string, version uint64, count, wins int64) aggregate.ClientSnapshot {
	return aggregate.ClientSnapshot{
		ClientID:  id,
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Version:   version,
		Buckets: map[bucket.Key]aggregate.BucketAggregate{
			testKey: {Count: count, WinCount: wins, LossCount: count - wins},
		},
	}
}

func TestMemory_GetPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Put(ctx, "a", snapshot("ignored", 1, 3, 2)))
	got, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", got.ClientID, "path id wins over body id")
	assert.Equal(t, int64(3), got.Buckets[testKey].Count)

	// The stored copy is isolated from the caller's map.
	got.Buckets[testKey] = aggregate.BucketAggregate{}
	again, _, _ := m.Get(ctx, "a")
	assert.Equal(t, int64(3), again.Buckets[testKey].Count)
}

func TestMemory_RejectsOlderVersion(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Put(ctx, "a", snapshot("a", 5, 10, 5)))
	err := m.Put(ctx, "a", snapshot("a", 4, 1, 1))
	assert.ErrorIs(t, err, ErrStaleVersion)

	// Same version is accepted; a reset client re-sends its latest state.
	require.NoError(t, m.Put(ctx, "a", snapshot("a", 5, 11, 5)))
	got, _, _ := m.Get(ctx, "a")
	assert.Equal(t, int64(11), got.Buckets[testKey].Count)
}

func TestMemory_ListPages(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 7; i++ {
		require.NoError(t, m.Put(ctx, fmt.Sprintf("client-%d", i), snapshot("", 1, 1, 1)))
	}

	page, err := m.List(ctx, "", 3)
	require.NoError(t, err)
	require.Len(t, page.Snapshots, 3)
	assert.Equal(t, "client-0", page.Snapshots[0].ClientID)
	assert.Equal(t, "client-2", page.NextCursor)

	page, err = m.List(ctx, page.NextCursor, 3)
	require.NoError(t, err)
	assert.Equal(t, "client-3", page.Snapshots[0].ClientID)

	page, err = m.List(ctx, "client-5", 3)
	require.NoError(t, err)
	assert.Len(t, page.Snapshots, 1)
	assert.Empty(t, page.NextCursor)
}

func TestListAll(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 25; i++ {
		require.NoError(t, m.Put(ctx, fmt.Sprintf("c%02d", i), snapshot("", 1, 2, 1)))
	}

	all, err := ListAll(ctx, m, 4)
	require.NoError(t, err)
	assert.Len(t, all, 25)
	assert.Contains(t, all, "c24")

	all, err = ListAll(ctx, NewMemory(), 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

type stuckStore struct{ Noop }

func (stuckStore) List(context.Context, string, int) (Page, error) {
	return Page{NextCursor: "same"}, nil
}

type failingStore struct{ Noop }

func (failingStore) List(context.Context, string, int) (Page, error) {
	return Page{}, &TransportError{Op: "list", Err: context.DeadlineExceeded}
}

func TestListAll_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := ListAll(ctx, stuckStore{}, 10)
	assert.Error(t, err)

	_, err = ListAll(ctx, failingStore{}, 10)
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = ListAll(cancelled, NewMemory(), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var s Store = Noop{}

	require.NoError(t, s.Put(ctx, "a", snapshot("a", 1, 1, 1)))
	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := ListAll(ctx, s, 10)
	require.NoError(t, err)
	assert.Empty(t, all)
}
