package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/bucket"
	"github.com/ramonehamilton/matchup-companion/internal/config"
	"github.com/ramonehamilton/matchup-companion/internal/daemon"
	"github.com/ramonehamilton/matchup-companion/internal/identity"
	"github.com/ramonehamilton/matchup-companion/internal/predictor"
	"github.com/ramonehamilton/matchup-companion/internal/remote"
	"github.com/ramonehamilton/matchup-companion/internal/stats"
)

var fastKDF = &identity.KDFConfig{Argon2Time: 1, Argon2Memory: 1024, Argon2Threads: 1}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Client.DataDir = t.TempDir()
	return cfg
}

func openApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, Options{Logger: NewLogger(io.Discard, true), KDF: fastKDF})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

var fight = bucket.MatchContext{
	SelfLevel:     12,
	OpponentLevel: 14,
	ChainCount:    3,
}

func TestNew_Defaults(t *testing.T) {
	cfg := testConfig(t)
	a := openApp(t, cfg)

	assert.FileExists(t, filepath.Join(cfg.Client.DataDir, DatabaseFile))
	assert.FileExists(t, filepath.Join(cfg.Client.DataDir, SaltFile))
	require.NoError(t, identity.Validate(a.ClientID))
	assert.Nil(t, a.Remote)
	assert.Nil(t, a.Scheduler)
	assert.IsType(t, predictor.Noop{}, a.Predictor)
	assert.Equal(t, stats.DefaultCurve().Len(), a.Estimator.Curve().Len())

	score := a.Advisor.Score(context.Background(), fight)
	assert.GreaterOrEqual(t, score.Value, 0.0)
	assert.LessOrEqual(t, score.Value, 5.0)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bucket.LevelBandWidth = 0

	_, err := New(context.Background(), cfg, Options{Logger: NewLogger(io.Discard, false)})
	assert.True(t, config.IsConfigurationError(err))
}

func TestNew_MissingAnchorFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Curve.AnchorFile = filepath.Join(cfg.Client.DataDir, "missing.yaml")

	_, err := New(context.Background(), cfg, Options{Logger: NewLogger(io.Discard, false), KDF: fastKDF})
	assert.True(t, config.IsConfigurationError(err))
}

func TestNew_RestoresRecordedOutcomes(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	first, err := New(ctx, cfg, Options{Logger: NewLogger(io.Discard, false), KDF: fastKDF})
	require.NoError(t, err)
	_, err = first.Advisor.Record(ctx, fight, aggregate.Outcome{Won: true})
	require.NoError(t, err)
	_, err = first.Advisor.Record(ctx, fight, aggregate.Outcome{Won: false})
	require.NoError(t, err)
	clientID := first.ClientID
	require.NoError(t, first.Close())

	second := openApp(t, cfg)
	assert.Equal(t, clientID, second.ClientID, "salt is reused")

	agg, ok := second.Local.Lookup(fight)
	require.True(t, ok)
	assert.Equal(t, int64(2), agg.Count)
	assert.Equal(t, int64(1), agg.WinCount)
	assert.Equal(t, int64(2), second.Local.Pending())
}

func TestNew_PersistedCurveWins(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	first, err := New(ctx, cfg, Options{Logger: NewLogger(io.Discard, false), KDF: fastKDF})
	require.NoError(t, err)
	before := first.Estimator.Estimate(10)
	_, err = first.Advisor.ObserveStats(ctx, 10, before*2)
	require.NoError(t, err)
	after := first.Estimator.Estimate(10)
	require.NoError(t, first.Close())
	require.NotEqual(t, before, after)

	second := openApp(t, cfg)
	assert.InDelta(t, after, second.Estimator.Estimate(10), 1e-9)
}

func TestNew_AnchorFile(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(cfg.Client.DataDir, "anchors.yaml")
	curve := stats.MustCurve([]stats.Anchor{{Level: 1, Total: 100}, {Level: 50, Total: 5000}})
	require.NoError(t, stats.WriteAnchorFile(path, curve))
	cfg.Curve.AnchorFile = path

	a := openApp(t, cfg)
	assert.Equal(t, 2, a.Estimator.Curve().Len())
	assert.InDelta(t, 100, a.Estimator.Estimate(1), 1e-9)
}

func TestNew_MemoryRemoteSyncs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.Kind = config.RemoteMemory
	cfg.Sync.PushBatchThreshold = 1
	a := openApp(t, cfg)
	require.NotNil(t, a.Scheduler)

	sink := &recordingEmitter{}
	a.AttachEmitter(sink)

	ctx := context.Background()
	_, err := a.Advisor.Record(ctx, fight, aggregate.Outcome{Won: true})
	require.NoError(t, err)

	result := a.Scheduler.Tick(ctx)
	require.NoError(t, result.PushErr)

	mem, ok := a.Remote.(*remote.Memory)
	require.True(t, ok)
	assert.Equal(t, 1, mem.Len())
	assert.Equal(t, int64(0), a.Local.Pending())
	assert.NotEmpty(t, sink.events())
}

func TestNew_HTTPRemoteAndPredictor(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.Kind = config.RemoteHTTP
	cfg.Remote.BaseURL = "http://127.0.0.1:1"
	cfg.Predictor.Enabled = true
	cfg.Predictor.BaseURL = "http://127.0.0.1:1"

	a := openApp(t, cfg)
	assert.IsType(t, &remote.HTTPStore{}, a.Remote)
	assert.IsType(t, &predictor.HTTP{}, a.Predictor)

	// Unreachable collaborators still yield a score.
	score := a.Advisor.Score(context.Background(), fight)
	assert.NotEmpty(t, score.Label)
}

func TestWatchCurve(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(cfg.Client.DataDir, "anchors.yaml")
	require.NoError(t, stats.WriteAnchorFile(path, stats.DefaultCurve()))
	cfg.Curve.AnchorFile = path
	cfg.Curve.Watch = true
	a := openApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.WatchCurve(ctx) }()

	replacement := stats.MustCurve([]stats.Anchor{{Level: 1, Total: 42}, {Level: 99, Total: 9999}})
	require.Eventually(t, func() bool {
		_ = stats.WriteAnchorFile(path, replacement)
		return a.Estimator.Curve().Len() == 2
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	saved, err := a.Curves.LoadCurve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Len())
}

func TestWatchCurve_Disabled(t *testing.T) {
	a := openApp(t, testConfig(t))
	assert.NoError(t, a.WatchCurve(context.Background()))
}

func TestNewLogger(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()

	NewLogger(f, false).Debug("hidden")
	NewLogger(f, true).Debug("shown")

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

type recordingEmitter struct {
	mu   sync.Mutex
	seen []daemon.SyncEvent
}

func (r *recordingEmitter) Emit(e daemon.SyncEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, e)
}

func (r *recordingEmitter) events() []daemon.SyncEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]daemon.SyncEvent(nil), r.seen...)
}
