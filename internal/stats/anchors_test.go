package stats

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTable = `anchors:
  - level: 1
    total: 50
  - level: 50
    total: 5000
`

func TestParseAnchors(t *testing.T) {
	c, err := ParseAnchors([]byte(sampleTable))
	require.NoError(t, err)
	assert.Equal(t, []Anchor{{1, 50}, {50, 5000}}, c.Anchors())

	_, err = ParseAnchors([]byte("anchors: []\n"))
	assert.ErrorIs(t, err, ErrEmptyCurve)

	_, err = ParseAnchors([]byte("anchors:\n  - level: 1\n    totl: 5\n"))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestWriteAndLoadAnchorFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchors.yaml")
	require.NoError(t, WriteAnchorFile(path, DefaultCurve()))

	c, err := LoadAnchorFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultCurve().Anchors(), c.Anchors())

	_, err = LoadAnchorFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchAnchorFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anchors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTable), 0o644))

	var mu sync.Mutex
	var got []Curve

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- WatchAnchorFile(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)), func(c Curve) {
			mu.Lock()
			got = append(got, c)
			mu.Unlock()
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte(sampleTable), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("anchors:\n  - level: 10\n    total: 999\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range got {
			if c.Len() == 1 && c.Estimate(10) == 999 {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
