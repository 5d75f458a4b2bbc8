package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Remote store kinds.
const (
	RemoteNone   = "none"
	RemoteHTTP   = "http"
	RemoteMemory = "memory"
)

// ConfigurationError reports an invalid or missing setting. It is raised at
// startup and is never recovered from.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Invalid builds a ConfigurationError.
func Invalid(field, reason string, err error) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason, Err: err}
}

// Config represents the application configuration.
type Config struct {
	// Client identity and local storage
	Client ClientConfig `toml:"client"`

	// Bucketing of match contexts
	Bucket BucketConfig `toml:"bucket"`

	// Scoring thresholds and weights
	Scoring ScoringConfig `toml:"scoring"`

	// Background push/pull scheduling
	Sync SyncConfig `toml:"sync"`

	// Shared snapshot store
	Remote RemoteConfig `toml:"remote"`

	// Optional external predictor
	Predictor PredictorConfig `toml:"predictor"`

	// Level to total-stats curve
	Curve CurveConfig `toml:"curve"`

	// Application configuration
	App AppConfig `toml:"app"`
}

// ClientConfig identifies this install.
type ClientConfig struct {
	PlayerSecret string `toml:"player_secret"` // Hashed into an opaque client id, never sent
	ClientID     string `toml:"client_id"`     // Explicit opaque id; generated when empty
	DataDir      string `toml:"data_dir"`      // Directory for the local database
}

// BucketConfig contains bucketing settings.
type BucketConfig struct {
	LevelBandWidth int `toml:"level_band_width"` // Levels per band (e.g., 5 gives L1-5, L6-10)
}

// ScoringConfig contains scoring thresholds.
type ScoringConfig struct {
	MinSamplesForConfidence int64   `toml:"min_samples_for_confidence"` // Community bucket size required
	MinLocalSamples         int64   `toml:"min_local_samples"`          // Local bucket size required
	MaxExternalWeight       float64 `toml:"max_external_weight"`        // Cap on the predictor's share
	ExternalPseudoCount     float64 `toml:"external_pseudo_count"`      // Samples one prediction is worth
	BaselinePriorSamples    float64 `toml:"baseline_prior_samples"`     // Samples the baseline is worth
	ModelDeployed           bool    `toml:"model_deployed"`             // Trust the predictor's model flag
}

// SyncConfig contains scheduler settings.
type SyncConfig struct {
	TickInterval        string `toml:"tick_interval"`          // Background loop period (e.g., "30s")
	PushBatchThreshold  int64  `toml:"push_batch_threshold"`   // Pending outcomes that trigger a push
	MaxPushDelay        string `toml:"max_push_delay"`         // Push anything pending after this long
	MaxStaleness        string `toml:"max_staleness"`          // Recompute the global aggregate after this long
	SyncTimeout         string `toml:"sync_timeout"`           // Bound on a single remote call
	MaxSnapshotsPerPass int    `toml:"max_snapshots_per_pass"` // Merge work per tick (0 = unbounded)
	PageSize            int    `toml:"page_size"`              // Page size when listing snapshots
}

// RemoteConfig selects and configures the snapshot store.
type RemoteConfig struct {
	Kind       string `toml:"kind"`        // "none", "http" or "memory"
	BaseURL    string `toml:"base_url"`    // Snapshot server URL for kind "http"
	Timeout    string `toml:"timeout"`     // Per-request timeout
	MaxRetries int    `toml:"max_retries"` // Retries on network errors and 5xx
}

// PredictorConfig configures the external predictor.
type PredictorConfig struct {
	Enabled           bool    `toml:"enabled"`
	BaseURL           string  `toml:"base_url"`
	Timeout           string  `toml:"timeout"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// CurveConfig configures the stat curve.
type CurveConfig struct {
	AnchorFile string  `toml:"anchor_file"` // YAML anchor table; built-in table when empty
	EMAWeight  float64 `toml:"ema_weight"`  // Weight of a new observation
	Watch      bool    `toml:"watch"`       // Reload the anchor file when it changes
}

// AppConfig contains general application settings.
type AppConfig struct {
	DebugMode bool `toml:"debug_mode"` // Enable debug logging
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{},
		Bucket: BucketConfig{
			LevelBandWidth: 5,
		},
		Scoring: ScoringConfig{
			MinSamplesForConfidence: 10,
			MinLocalSamples:         3,
			MaxExternalWeight:       0.5,
			ExternalPseudoCount:     25,
			BaselinePriorSamples:    5,
			ModelDeployed:           false,
		},
		Sync: SyncConfig{
			TickInterval:        "30s",
			PushBatchThreshold:  10,
			MaxPushDelay:        "2m",
			MaxStaleness:        "5m",
			SyncTimeout:         "10s",
			MaxSnapshotsPerPass: 0,
			PageSize:            100,
		},
		Remote: RemoteConfig{
			Kind:       RemoteNone,
			Timeout:    "10s",
			MaxRetries: 2,
		},
		Predictor: PredictorConfig{
			Enabled:           false,
			Timeout:           "300ms",
			RequestsPerSecond: 5,
		},
		Curve: CurveConfig{
			EMAWeight: 0.2,
		},
		App: AppConfig{
			DebugMode: false,
		},
	}
}

// Dir returns the configuration directory, creating it if needed.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".matchup-companion")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}

// Path returns the default configuration file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads the configuration from the default path.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration from path. Returns the default config if the
// file doesn't exist. Keys missing from the file keep their defaults.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return config, nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo saves the configuration to path.
func (c *Config) SaveTo(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	// The file can hold the player secret.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if id := c.Client.ClientID; id != "" && strings.TrimSpace(id) != id {
		return Invalid("client.client_id", "must not have surrounding whitespace", nil)
	}

	if c.Bucket.LevelBandWidth <= 0 {
		return Invalid("bucket.level_band_width", fmt.Sprintf("must be positive, got %d", c.Bucket.LevelBandWidth), nil)
	}

	s := c.Scoring
	if s.MinSamplesForConfidence < 0 {
		return Invalid("scoring.min_samples_for_confidence", "cannot be negative", nil)
	}
	if s.MinLocalSamples < 0 {
		return Invalid("scoring.min_local_samples", "cannot be negative", nil)
	}
	if !inUnitInterval(s.MaxExternalWeight) {
		return Invalid("scoring.max_external_weight", fmt.Sprintf("must be within [0, 1], got %v", s.MaxExternalWeight), nil)
	}
	if !positive(s.ExternalPseudoCount) {
		return Invalid("scoring.external_pseudo_count", "must be positive", nil)
	}
	if !positive(s.BaselinePriorSamples) {
		return Invalid("scoring.baseline_prior_samples", "must be positive", nil)
	}

	for field, value := range map[string]string{
		"sync.tick_interval":  c.Sync.TickInterval,
		"sync.max_push_delay": c.Sync.MaxPushDelay,
		"sync.max_staleness":  c.Sync.MaxStaleness,
		"sync.sync_timeout":   c.Sync.SyncTimeout,
		"remote.timeout":      c.Remote.Timeout,
		"predictor.timeout":   c.Predictor.Timeout,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return Invalid(field, fmt.Sprintf("invalid duration %q", value), err)
		}
		if d <= 0 {
			return Invalid(field, fmt.Sprintf("must be positive, got %q", value), nil)
		}
	}
	if c.Sync.PushBatchThreshold < 1 {
		return Invalid("sync.push_batch_threshold", "must be at least 1", nil)
	}
	if c.Sync.MaxSnapshotsPerPass < 0 {
		return Invalid("sync.max_snapshots_per_pass", "cannot be negative", nil)
	}
	if c.Sync.PageSize < 1 {
		return Invalid("sync.page_size", "must be at least 1", nil)
	}

	switch c.Remote.Kind {
	case RemoteNone, RemoteMemory:
	case RemoteHTTP:
		if c.Remote.BaseURL == "" {
			return Invalid("remote.base_url", "required for kind \"http\"", nil)
		}
	default:
		return Invalid("remote.kind", fmt.Sprintf("unknown kind %q", c.Remote.Kind), nil)
	}
	if c.Remote.MaxRetries < 0 {
		return Invalid("remote.max_retries", "cannot be negative", nil)
	}

	if c.Predictor.Enabled {
		if c.Predictor.BaseURL == "" {
			return Invalid("predictor.base_url", "required when the predictor is enabled", nil)
		}
		if !positive(c.Predictor.RequestsPerSecond) {
			return Invalid("predictor.requests_per_second", "must be positive", nil)
		}
	}

	if !positive(c.Curve.EMAWeight) || c.Curve.EMAWeight > 1 {
		return Invalid("curve.ema_weight", fmt.Sprintf("must be within (0, 1], got %v", c.Curve.EMAWeight), nil)
	}
	if c.Curve.Watch && c.Curve.AnchorFile == "" {
		return Invalid("curve.watch", "requires curve.anchor_file", nil)
	}

	return nil
}

// SyncTimings holds the parsed sync durations.
type SyncTimings struct {
	TickInterval time.Duration
	MaxPushDelay time.Duration
	MaxStaleness time.Duration
	SyncTimeout  time.Duration
}

// GetSyncTimings returns the sync durations.
func (c *Config) GetSyncTimings() (SyncTimings, error) {
	var t SyncTimings
	var err error
	if t.TickInterval, err = time.ParseDuration(c.Sync.TickInterval); err != nil {
		return t, err
	}
	if t.MaxPushDelay, err = time.ParseDuration(c.Sync.MaxPushDelay); err != nil {
		return t, err
	}
	if t.MaxStaleness, err = time.ParseDuration(c.Sync.MaxStaleness); err != nil {
		return t, err
	}
	if t.SyncTimeout, err = time.ParseDuration(c.Sync.SyncTimeout); err != nil {
		return t, err
	}
	return t, nil
}

// GetRemoteTimeout returns the remote request timeout as a duration.
func (c *Config) GetRemoteTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Remote.Timeout)
}

// GetPredictorTimeout returns the predictor timeout as a duration.
func (c *Config) GetPredictorTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Predictor.Timeout)
}

// DataDir returns the data directory, defaulting to the config directory.
func (c *Config) DataDir() (string, error) {
	if c.Client.DataDir != "" {
		if err := os.MkdirAll(c.Client.DataDir, 0o755); err != nil {
			return "", fmt.Errorf("create data directory: %w", err)
		}
		return c.Client.DataDir, nil
	}
	return Dir()
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func inUnitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
