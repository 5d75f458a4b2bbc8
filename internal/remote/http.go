package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
)

// HTTPConfig holds configuration for the snapshot server client.
type HTTPConfig struct {
	// BaseURL is the base URL of the snapshot server (e.g., "http://localhost:8420")
	BaseURL string

	// Timeout is the timeout for individual requests
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts on network errors and 5xx
	MaxRetries int

	// RetryBaseDelay is the base delay for exponential backoff
	RetryBaseDelay time.Duration

	// Logger for request failures
	Logger *slog.Logger
}

// DefaultHTTPConfig returns an HTTPConfig with sensible defaults.
func DefaultHTTPConfig(baseURL string) *HTTPConfig {
	return &HTTPConfig{
		BaseURL:        baseURL,
		Timeout:        10 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: 250 * time.Millisecond,
	}
}

// HTTPStore is a Store backed by the snapshot server's REST API.
type HTTPStore struct {
	config     *HTTPConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPStore creates a new snapshot server client.
func NewHTTPStore(config *HTTPConfig) *HTTPStore {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPStore{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

type snapshotEnvelope struct {
	Data aggregate.ClientSnapshot `json:"data"`
}

// listEnvelope keeps each snapshot raw so that one undecodable entry does not
// take the rest of the page with it.
type listEnvelope struct {
	Data       []json.RawMessage `json:"data"`
	NextCursor string            `json:"next_cursor"`
}

// statusError is a non-retryable, non-2xx answer from the server.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.code, e.body)
}

func (s *HTTPStore) Get(ctx context.Context, clientID string) (aggregate.ClientSnapshot, bool, error) {
	var env snapshotEnvelope
	err := s.doRequest(ctx, http.MethodGet, snapshotPath(clientID), nil, &env)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return aggregate.ClientSnapshot{}, false, nil
		}
		return aggregate.ClientSnapshot{}, false, wrapTransport("get", err)
	}
	return env.Data, true, nil
}

func (s *HTTPStore) Put(ctx context.Context, clientID string, snapshot aggregate.ClientSnapshot) error {
	snapshot.ClientID = clientID
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	err = s.doRequest(ctx, http.MethodPut, snapshotPath(clientID), body, nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusConflict {
			return fmt.Errorf("%w: %s", ErrStaleVersion, se.body)
		}
		return wrapTransport("put", err)
	}
	return nil
}

func (s *HTTPStore) List(ctx context.Context, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var env listEnvelope
	if err := s.doRequest(ctx, http.MethodGet, "/api/v1/snapshots?"+q.Encode(), nil, &env); err != nil {
		return Page{}, wrapTransport("list", err)
	}

	page := Page{NextCursor: env.NextCursor, Snapshots: make([]aggregate.ClientSnapshot, 0, len(env.Data))}
	for i, raw := range env.Data {
		var snap aggregate.ClientSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			page.Skipped++
			s.logger.Warn("skipping undecodable snapshot", "cursor", cursor, "index", i, "error", err)
			continue
		}
		page.Snapshots = append(page.Snapshots, snap)
	}
	return page, nil
}

// Healthy reports whether the server answers its health check.
func (s *HTTPStore) Healthy(ctx context.Context) bool {
	return s.doRequest(ctx, http.MethodGet, "/health", nil, nil) == nil
}

func snapshotPath(clientID string) string {
	return "/api/v1/snapshots/" + url.PathEscape(clientID)
}

// wrapTransport turns everything except a definite server answer into a
// TransportError.
func wrapTransport(op string, err error) error {
	var se *statusError
	if errors.As(err, &se) && se.code < 500 {
		return fmt.Errorf("remote %s: %w", op, err)
	}
	return &TransportError{Op: op, Err: err}
}

// doRequest performs an HTTP request with retry logic.
func (s *HTTPStore) doRequest(ctx context.Context, method, path string, body []byte, result interface{}) error {
	target := strings.TrimRight(s.config.BaseURL, "/") + path

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := s.config.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		retry, err := s.attempt(ctx, method, target, body, result)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
		s.logger.Debug("snapshot server request failed", "method", method, "path", path, "attempt", attempt+1, "error", err)
	}

	return lastErr
}

func (s *HTTPStore) attempt(ctx context.Context, method, target string, body []byte, result interface{}) (retry bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("request failed: %w", err)
		}
		return true, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		//nolint:errcheck // Ignore error on cleanup
		_ = resp.Body.Close()
	}()

	// Check for server errors (5xx) - these are retryable
	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return true, &statusError{code: resp.StatusCode, body: string(msg)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, &statusError{code: resp.StatusCode, body: string(msg)}
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return false, nil
}
