// Package app assembles a matchup advisor from the configuration file: local
// database, client identity, stat curve, scoring engine, predictor, snapshot
// store and sync scheduler.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/bucket"
	"github.com/ramonehamilton/matchup-companion/internal/config"
	"github.com/ramonehamilton/matchup-companion/internal/daemon"
	"github.com/ramonehamilton/matchup-companion/internal/identity"
	"github.com/ramonehamilton/matchup-companion/internal/matchup"
	"github.com/ramonehamilton/matchup-companion/internal/predictor"
	"github.com/ramonehamilton/matchup-companion/internal/remote"
	"github.com/ramonehamilton/matchup-companion/internal/scoring"
	"github.com/ramonehamilton/matchup-companion/internal/stats"
	"github.com/ramonehamilton/matchup-companion/internal/storage"
)

const (
	// DatabaseFile is the local database inside the data directory.
	DatabaseFile = "companion.db"

	// SaltFile holds the install salt inside the data directory.
	SaltFile = "install.salt"
)

// Options tunes New beyond what the configuration file covers.
type Options struct {
	// Logger defaults to NewLogger(os.Stderr, cfg.App.DebugMode).
	Logger *slog.Logger

	// KDF overrides the Argon2 parameters used to derive the client id.
	KDF *identity.KDFConfig
}

// App holds every component of a running advisor.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DataDir  string
	ClientID string

	DB        *storage.DB
	LocalRepo *storage.LocalRepository
	Curves    *storage.CurveRepository

	Local     *aggregate.Local
	Estimator *stats.Estimator
	Engine    *scoring.Engine
	Predictor predictor.Predictor
	Remote    remote.Store
	Scheduler *daemon.Scheduler
	Advisor   *matchup.Advisor

	events *relay
}

// NewLogger returns a text logger at info level, or debug level when debug is set.
func NewLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// New validates cfg and builds an App. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(os.Stderr, cfg.App.DebugMode)
	}

	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}

	clientID, err := identity.Resolve(identity.Options{
		ClientID:     cfg.Client.ClientID,
		PlayerSecret: cfg.Client.PlayerSecret,
		SaltPath:     filepath.Join(dataDir, SaltFile),
		KDF:          opts.KDF,
	})
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(storage.DefaultConfig(filepath.Join(dataDir, DatabaseFile)))
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	a := &App{
		Config:    cfg,
		Logger:    logger,
		DataDir:   dataDir,
		ClientID:  clientID,
		DB:        db,
		LocalRepo: storage.NewLocalRepository(db),
		Curves:    storage.NewCurveRepository(db),
		events:    &relay{},
	}

	a.Local = aggregate.NewLocal(clientID, bucket.NewKeyer(cfg.Bucket.LevelBandWidth))
	snap, pending, ok, err := a.LocalRepo.LoadLocal(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("load local aggregate: %w", err)
	}
	if ok {
		a.Local.Restore(snap, pending)
	}

	if a.Estimator, err = a.loadEstimator(ctx); err != nil {
		return nil, err
	}

	a.Engine = scoring.NewEngine(scoringConfig(cfg.Scoring), a.Estimator)

	if a.Predictor, err = newPredictor(cfg, logger); err != nil {
		return nil, err
	}

	if a.Remote, err = newRemote(cfg, logger); err != nil {
		return nil, err
	}

	if a.Remote != nil {
		timings, err := cfg.GetSyncTimings()
		if err != nil {
			return nil, config.Invalid("sync", "invalid timings", err)
		}
		a.Scheduler = daemon.NewScheduler(daemon.SchedulerDeps{
			Local:   a.Local,
			Store:   a.Remote,
			Emitter: a.events,
			Persist: a.LocalRepo,
		}, &daemon.SchedulerConfig{
			TickInterval:        timings.TickInterval,
			PushBatchThreshold:  cfg.Sync.PushBatchThreshold,
			MaxPushDelay:        timings.MaxPushDelay,
			MaxStaleness:        timings.MaxStaleness,
			SyncTimeout:         timings.SyncTimeout,
			MaxSnapshotsPerPass: cfg.Sync.MaxSnapshotsPerPass,
			PageSize:            cfg.Sync.PageSize,
			Logger:              logger,
		})
	}

	predictTimeout, err := cfg.GetPredictorTimeout()
	if err != nil {
		return nil, config.Invalid("predictor.timeout", "invalid duration", err)
	}

	a.Advisor, err = matchup.New(matchup.Config{
		Local:          a.Local,
		Estimator:      a.Estimator,
		Engine:         a.Engine,
		Predictor:      a.Predictor,
		Scheduler:      a.Scheduler,
		CurveStore:     a.Curves,
		Journal:        a.LocalRepo,
		PredictTimeout: predictTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("advisor ready",
		"client_id", clientID,
		"data_dir", dataDir,
		"remote", cfg.Remote.Kind,
		"predictor", cfg.Predictor.Enabled,
		"local_outcomes", a.Local.Snapshot().TotalCount())
	return a, nil
}

// loadEstimator prefers the persisted curve, then the anchor file, then the
// built-in table.
func (a *App) loadEstimator(ctx context.Context) (*stats.Estimator, error) {
	base := stats.DefaultCurve()
	if path := a.Config.Curve.AnchorFile; path != "" {
		c, err := stats.LoadAnchorFile(path)
		if err != nil {
			return nil, config.Invalid("curve.anchor_file", "cannot load anchor table", err)
		}
		base = c
	}

	curve, err := stats.LoadOrDefault(ctx, a.Curves, base)
	if err != nil {
		return nil, err
	}
	return stats.NewEstimator(curve, &stats.EstimatorConfig{EMAWeight: a.Config.Curve.EMAWeight})
}

func scoringConfig(s config.ScoringConfig) *scoring.Config {
	c := scoring.DefaultConfig()
	c.MinSamplesForConfidence = s.MinSamplesForConfidence
	c.MinLocalSamples = s.MinLocalSamples
	c.MaxExternalWeight = s.MaxExternalWeight
	c.ExternalPseudoCount = s.ExternalPseudoCount
	c.BaselinePriorSamples = s.BaselinePriorSamples
	return c
}

func newPredictor(cfg *config.Config, logger *slog.Logger) (predictor.Predictor, error) {
	if !cfg.Predictor.Enabled {
		return predictor.Noop{}, nil
	}
	timeout, err := cfg.GetPredictorTimeout()
	if err != nil {
		return nil, config.Invalid("predictor.timeout", "invalid duration", err)
	}
	return predictor.NewHTTP(predictor.HTTPOptions{
		BaseURL:        cfg.Predictor.BaseURL,
		RateLimit:      rate.Limit(cfg.Predictor.RequestsPerSecond),
		Timeout:        timeout,
		TrustModelFlag: cfg.Scoring.ModelDeployed,
		Logger:         logger,
	}), nil
}

// newRemote returns nil when sharing is disabled.
func newRemote(cfg *config.Config, logger *slog.Logger) (remote.Store, error) {
	switch cfg.Remote.Kind {
	case config.RemoteHTTP:
		timeout, err := cfg.GetRemoteTimeout()
		if err != nil {
			return nil, config.Invalid("remote.timeout", "invalid duration", err)
		}
		httpCfg := remote.DefaultHTTPConfig(cfg.Remote.BaseURL)
		httpCfg.Timeout = timeout
		httpCfg.MaxRetries = cfg.Remote.MaxRetries
		httpCfg.Logger = logger
		return remote.NewHTTPStore(httpCfg), nil
	case config.RemoteMemory:
		return remote.NewMemory(), nil
	default:
		return nil, nil
	}
}

// AttachEmitter forwards scheduler events to e from now on.
func (a *App) AttachEmitter(e daemon.EventEmitter) {
	a.events.attach(e)
}

// WatchCurve reloads the anchor table into the estimator whenever the file
// changes. It returns immediately when watching is disabled and otherwise
// blocks until ctx is done.
func (a *App) WatchCurve(ctx context.Context) error {
	if !a.Config.Curve.Watch || a.Config.Curve.AnchorFile == "" {
		return nil
	}
	return stats.WatchAnchorFile(ctx, a.Config.Curve.AnchorFile, a.Logger, func(c stats.Curve) {
		if err := a.Estimator.Replace(c); err != nil {
			a.Logger.Warn("rejected anchor table", "error", err)
			return
		}
		if err := a.Estimator.Save(context.WithoutCancel(ctx), a.Curves); err != nil {
			a.Logger.Warn("failed to persist reloaded curve", "error", err)
		}
	})
}

// Close stops the scheduler and closes the database.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	return a.DB.Close()
}

// relay lets the event sink be attached after the scheduler is built.
type relay struct {
	mu      sync.RWMutex
	emitter daemon.EventEmitter
}

func (r *relay) attach(e daemon.EventEmitter) {
	r.mu.Lock()
	r.emitter = e
	r.mu.Unlock()
}

func (r *relay) Emit(event daemon.SyncEvent) {
	r.mu.RLock()
	e := r.emitter
	r.mu.RUnlock()
	if e != nil {
		e.Emit(event)
	}
}
