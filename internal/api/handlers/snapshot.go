package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/api/response"
	"github.com/ramonehamilton/matchup-companion/internal/api/websocket"
	"github.com/ramonehamilton/matchup-companion/internal/identity"
	"github.com/ramonehamilton/matchup-companion/internal/metrics"
	"github.com/ramonehamilton/matchup-companion/internal/remote"
)

const (
	// MaxPageSize caps the limit query parameter.
	MaxPageSize = 1000

	// MaxSnapshotBytes caps a PUT body.
	MaxSnapshotBytes = 4 << 20

	// EventSnapshotUpdated is broadcast after every accepted PUT.
	EventSnapshotUpdated = "snapshot:updated"
)

// Broadcaster publishes an event to connected dashboards.
type Broadcaster interface {
	BroadcastEvent(event websocket.Event) bool
}

// SnapshotHandler serves the snapshot document store.
type SnapshotHandler struct {
	store   remote.Store
	metrics *metrics.ServerMetrics
	events  Broadcaster
	logger  *slog.Logger
}

// NewSnapshotHandler creates a handler on store. metrics and events may be nil.
func NewSnapshotHandler(store remote.Store, m *metrics.ServerMetrics, events Broadcaster, logger *slog.Logger) *SnapshotHandler {
	if m == nil {
		m = metrics.NewServerMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotHandler{store: store, metrics: m, events: events, logger: logger}
}

// ListSnapshots returns one page of snapshots ordered by client id.
func (h *SnapshotHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	h.metrics.Lists.Add(1)

	limit := remote.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = min(n, MaxPageSize)
	}

	page, err := h.store.List(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		h.fail(w, "list", err)
		return
	}
	snapshots := page.Snapshots
	if snapshots == nil {
		snapshots = []aggregate.ClientSnapshot{}
	}
	response.Cursor(w, snapshots, page.NextCursor)
}

// GetSnapshot returns the snapshot of one client.
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	h.metrics.Gets.Add(1)

	clientID := chi.URLParam(r, "clientID")
	if err := identity.Validate(clientID); err != nil {
		response.BadRequest(w, err)
		return
	}

	snap, ok, err := h.store.Get(r.Context(), clientID)
	if err != nil {
		h.fail(w, "get", err)
		return
	}
	if !ok {
		response.NotFound(w, fmt.Errorf("no snapshot for %s", clientID))
		return
	}
	response.Success(w, snap)
}

// PutSnapshot replaces the snapshot of one client. Snapshots with malformed or
// invalid buckets are rejected whole; an older version answers 409.
func (h *SnapshotHandler) PutSnapshot(w http.ResponseWriter, r *http.Request) {
	h.metrics.Puts.Add(1)

	clientID := chi.URLParam(r, "clientID")
	if err := identity.Validate(clientID); err != nil {
		response.BadRequest(w, err)
		return
	}

	var snap aggregate.ClientSnapshot
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxSnapshotBytes)).Decode(&snap); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}
	if err := validateSnapshot(snap); err != nil {
		response.BadRequest(w, err)
		return
	}

	if err := h.store.Put(r.Context(), clientID, snap); err != nil {
		if errors.Is(err, remote.ErrStaleVersion) {
			h.metrics.Conflicts.Add(1)
			response.Conflict(w, err)
			return
		}
		h.fail(w, "put", err)
		return
	}

	h.logger.Debug("stored snapshot", "client_id", clientID, "version", snap.Version, "buckets", len(snap.Buckets))
	if h.events != nil {
		h.events.BroadcastEvent(websocket.Event{
			Type: EventSnapshotUpdated,
			Data: map[string]interface{}{"client_id": clientID, "version": snap.Version},
		})
	}
	response.NoContent(w)
}

// GetMetrics returns request counters and latency percentiles.
func (h *SnapshotHandler) GetMetrics(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, h.metrics.Stats())
}

func (h *SnapshotHandler) fail(w http.ResponseWriter, op string, err error) {
	h.metrics.Errors.Add(1)
	h.logger.Error("snapshot store failed", "op", op, "error", err)
	if remote.IsTransport(err) {
		response.ServiceUnavailable(w, err)
		return
	}
	response.InternalError(w, err)
}

func validateSnapshot(snap aggregate.ClientSnapshot) error {
	if len(snap.Malformed) > 0 {
		return snap.Malformed[0]
	}
	for key, agg := range snap.Buckets {
		if !key.Valid() {
			return fmt.Errorf("invalid bucket key %q", key)
		}
		if err := agg.Validate(); err != nil {
			return fmt.Errorf("bucket %s: %w", key, err)
		}
	}
	return nil
}
