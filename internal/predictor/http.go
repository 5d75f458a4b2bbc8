package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ramonehamilton/matchup-companion/internal/bucket"
	"github.com/ramonehamilton/matchup-companion/internal/scoring"
)

const (
	// DefaultTimeout bounds a single prediction request.
	DefaultTimeout = 500 * time.Millisecond

	// Backoff settings after a failed request
	InitialBackoff = 2 * time.Second
	MaxBackoff     = 60 * time.Second
	BackoffFactor  = 2.0
)

// DefaultRateLimit is 5 requests per second.
var DefaultRateLimit = rate.Every(200 * time.Millisecond)

// HTTPOptions configures the HTTP predictor.
type HTTPOptions struct {
	// BaseURL of the prediction service; requests go to BaseURL + "/predict"
	BaseURL string

	// RateLimit controls request frequency (default: 5 req/second)
	RateLimit rate.Limit

	// Timeout for HTTP requests (default: 500ms)
	Timeout time.Duration

	// TrustModelFlag passes the service's model_deployed flag through. When
	// false every prediction is treated as coming from a heuristic.
	TrustModelFlag bool

	// HTTPClient allows custom HTTP client
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Stats tracks predictor request outcomes.
type Stats struct {
	TotalRequests   int64
	FailedRequests  int64
	RateLimited     int64
	LastSuccessTime time.Time
	LastFailureTime time.Time
}

// HTTP asks a remote prediction service for win probabilities. It never waits
// for the rate limiter: a request over budget yields no prediction.
type HTTP struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	trustModel bool
	logger     *slog.Logger

	mu              sync.Mutex
	stats           Stats
	backoff         time.Duration
	lastFailureTime time.Time
}

// NewHTTP creates an HTTP predictor.
func NewHTTP(options HTTPOptions) *HTTP {
	if options.RateLimit == 0 {
		options.RateLimit = DefaultRateLimit
	}
	if options.Timeout == 0 {
		options.Timeout = DefaultTimeout
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: options.Timeout}
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTP{
		endpoint:   strings.TrimRight(options.BaseURL, "/") + "/predict",
		httpClient: httpClient,
		limiter:    rate.NewLimiter(options.RateLimit, 1),
		trustModel: options.TrustModelFlag,
		logger:     logger,
		backoff:    InitialBackoff,
	}
}

type predictRequest struct {
	SelfLevel     int           `json:"self_level"`
	OpponentLevel int           `json:"opponent_level"`
	ChainCount    int           `json:"chain_count"`
	AtWar         bool          `json:"at_war"`
	SelfStats     *bucket.Stats `json:"self_stats,omitempty"`
	OpponentStats *bucket.Stats `json:"opponent_stats,omitempty"`
}

type predictResponse struct {
	WinProbability *float64 `json:"win_probability"`
	ModelDeployed  bool     `json:"model_deployed"`
}

// Predict implements Predictor.
func (p *HTTP) Predict(ctx context.Context, match bucket.MatchContext) (scoring.ExternalPrediction, bool) {
	if p.inBackoff() {
		return scoring.ExternalPrediction{}, false
	}
	if !p.limiter.Allow() {
		p.update(func(s *Stats) { s.RateLimited++ })
		return scoring.ExternalPrediction{}, false
	}

	pred, err := p.request(ctx, match)
	if err != nil {
		p.recordFailure()
		p.logger.Debug("external prediction unavailable", "error", err)
		return scoring.ExternalPrediction{}, false
	}
	p.recordSuccess()
	return pred, true
}

func (p *HTTP) request(ctx context.Context, match bucket.MatchContext) (scoring.ExternalPrediction, error) {
	p.update(func(s *Stats) { s.TotalRequests++ })

	body, err := json.Marshal(predictRequest{
		SelfLevel:     match.SelfLevel,
		OpponentLevel: match.OpponentLevel,
		ChainCount:    match.ChainCount,
		AtWar:         match.AtWar,
		SelfStats:     match.SelfStats,
		OpponentStats: match.OpponentStats,
	})
	if err != nil {
		return scoring.ExternalPrediction{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return scoring.ExternalPrediction{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return scoring.ExternalPrediction{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return scoring.ExternalPrediction{}, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(msg))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return scoring.ExternalPrediction{}, fmt.Errorf("failed to parse prediction: %w", err)
	}
	if out.WinProbability == nil {
		return scoring.ExternalPrediction{}, fmt.Errorf("prediction missing win_probability")
	}
	prob := *out.WinProbability
	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		return scoring.ExternalPrediction{}, fmt.Errorf("win_probability %v out of range", prob)
	}

	return scoring.ExternalPrediction{
		WinProbability: prob,
		ModelDeployed:  p.trustModel && out.ModelDeployed,
		Source:         "http",
	}, nil
}

// Stats returns a copy of the request statistics.
func (p *HTTP) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *HTTP) update(fn func(*Stats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}

func (p *HTTP) inBackoff() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.lastFailureTime.IsZero() && time.Since(p.lastFailureTime) < p.backoff
}

// recordFailure records a failed request and increases backoff.
func (p *HTTP) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if !p.lastFailureTime.IsZero() {
		p.backoff = time.Duration(float64(p.backoff) * BackoffFactor)
		if p.backoff > MaxBackoff {
			p.backoff = MaxBackoff
		}
	}
	p.lastFailureTime = now
	p.stats.FailedRequests++
	p.stats.LastFailureTime = now
}

// recordSuccess records a successful request and resets backoff.
func (p *HTTP) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.backoff = InitialBackoff
	p.lastFailureTime = time.Time{}
	p.stats.LastSuccessTime = time.Now()
}
