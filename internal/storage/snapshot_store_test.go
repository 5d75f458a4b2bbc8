package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/bucket"
	"github.com/ramonehamilton/matchup-companion/internal/remote"
)

func snapshot(version uint64, count int64) aggregate.ClientSnapshot {
	return aggregate.ClientSnapshot{
		Version: version,
		Buckets: map[bucket.Key]aggregate.BucketAggregate{
			"L1-5__L1-5__C0-9__PEACE": {Count: count, WinCount: count},
		},
	}
}

func TestSnapshotStore_GetPut(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore(setupTestDB(t), nil)

	_, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "a", snapshot(2, 5)))
	got, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", got.ClientID)
	assert.Equal(t, int64(5), got.TotalCount())

	// Same version is accepted, older is rejected.
	require.NoError(t, store.Put(ctx, "a", snapshot(2, 6)))
	err = store.Put(ctx, "a", snapshot(1, 9))
	assert.ErrorIs(t, err, remote.ErrStaleVersion)

	got, _, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.TotalCount())
}

func TestSnapshotStore_ListPages(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore(setupTestDB(t), nil)

	for i := 0; i < 7; i++ {
		require.NoError(t, store.Put(ctx, fmt.Sprintf("client-%02d", i), snapshot(1, int64(i+1))))
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	page, err := store.List(ctx, "", 3)
	require.NoError(t, err)
	require.Len(t, page.Snapshots, 3)
	assert.Equal(t, "client-02", page.NextCursor)

	all, err := remote.ListAll(ctx, store, 3)
	require.NoError(t, err)
	assert.Len(t, all, 7)
	assert.Equal(t, int64(7), all["client-06"].TotalCount())

	last, err := store.List(ctx, "client-05", 3)
	require.NoError(t, err)
	assert.Len(t, last.Snapshots, 1)
	assert.Empty(t, last.NextCursor)
}

func TestSnapshotStore_MalformedBucketsAreReported(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewSnapshotStore(db, nil)

	_, err := db.Conn().Exec(`INSERT INTO snapshots (client_id, version, body, stored_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		"bad", 1, `{"version":1,"buckets":{"L1-5__L1-5__C0-9__PEACE":{"count":"many"}}}`)
	require.NoError(t, err)

	got, ok, err := store.Get(ctx, "bad")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got.Buckets)
	assert.Len(t, got.Malformed, 1)
}

func TestSnapshotStore_ListSkipsUndecodableRows(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewSnapshotStore(db, nil)

	require.NoError(t, store.Put(ctx, "client-a", snapshot(1, 2)))
	_, err := db.Conn().Exec(`INSERT INTO snapshots (client_id, version, body, stored_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		"client-b", 1, `{"version":"oops"}`)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "client-c", snapshot(1, 5)))

	page, err := store.List(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Skipped)
	require.Len(t, page.Snapshots, 1)
	assert.Equal(t, "client-b", page.NextCursor, "a skipped row still advances the cursor")

	all, err := remote.ListAll(ctx, store, 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, int64(5), all["client-c"].TotalCount())
	assert.NotContains(t, all, "client-b")
}
