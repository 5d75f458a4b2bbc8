package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/bucket"
	"github.com/ramonehamilton/matchup-companion/internal/remote"
)

// openTestStore connects to MATCHUP_TEST_DATABASE_URL and skips when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("MATCHUP_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MATCHUP_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, dsn, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Migrate(ctx))
	_, err = s.pool.Exec(ctx, `TRUNCATE snapshots`)
	require.NoError(t, err)
	return s
}

func snap(version uint64, count int64) aggregate.ClientSnapshot {
	return aggregate.ClientSnapshot{
		Version: version,
		Buckets: map[bucket.Key]aggregate.BucketAggregate{
			"L1-5__L1-5__C0-9__PEACE": {Count: count, WinCount: count},
		},
	}
}

func TestStore_PutGetVersioning(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "a", snap(3, 4)))
	require.NoError(t, s.Put(ctx, "a", snap(3, 5)))
	assert.ErrorIs(t, s.Put(ctx, "a", snap(2, 9)), remote.ErrStaleVersion)

	got, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), got.TotalCount())
}

func TestStore_ListAll(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Put(ctx, fmt.Sprintf("c%02d", i), snap(1, 1)))
	}
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	all, err := remote.ListAll(ctx, s, 2)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStore_ListSkipsUndecodableRows(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Put(ctx, "c00", snap(1, 1)))
	_, err := s.pool.Exec(ctx, `INSERT INTO snapshots (client_id, version, body) VALUES ($1, 1, $2)`,
		"c01", `{"version":"oops"}`)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "c02", snap(1, 3)))

	all, err := remote.ListAll(ctx, s, 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.NotContains(t, all, "c01")
}
