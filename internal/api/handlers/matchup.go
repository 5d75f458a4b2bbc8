package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/api/response"
	"github.com/ramonehamilton/matchup-companion/internal/bucket"
	"github.com/ramonehamilton/matchup-companion/internal/matchup"
	"github.com/ramonehamilton/matchup-companion/internal/remote"
)

// MatchupHandler exposes the local advisor to dashboards and overlays.
type MatchupHandler struct {
	advisor *matchup.Advisor
}

// NewMatchupHandler creates a new MatchupHandler.
func NewMatchupHandler(advisor *matchup.Advisor) *MatchupHandler {
	return &MatchupHandler{advisor: advisor}
}

// OutcomeRequest is the body of POST /outcomes.
type OutcomeRequest struct {
	Match   bucket.MatchContext `json:"match"`
	Won     bool                `json:"won"`
	Respect float64             `json:"respect"`
	Energy  float64             `json:"energy"`
}

// ObservationRequest is the body of POST /observations.
type ObservationRequest struct {
	Level int     `json:"level"`
	Total float64 `json:"total"`
}

// GlobalSummary describes the community aggregate without its buckets.
type GlobalSummary struct {
	Buckets int       `json:"buckets"`
	Clients int       `json:"clients"`
	Skipped int       `json:"skipped"`
	AsOf    time.Time `json:"as_of"`
}

// Score rates the fight described by the request body.
func (h *MatchupHandler) Score(w http.ResponseWriter, r *http.Request) {
	var match bucket.MatchContext
	if err := json.NewDecoder(r.Body).Decode(&match); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}
	response.Success(w, h.advisor.Score(r.Context(), match))
}

// RecordOutcome records one finished fight.
func (h *MatchupHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var req OutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}

	key, err := h.advisor.Record(r.Context(), req.Match, aggregate.Outcome{Won: req.Won, Respect: req.Respect, Energy: req.Energy})
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.Created(w, map[string]string{"bucket": string(key)})
}

// ObserveStats feeds an observed total into the stat curve.
func (h *MatchupHandler) ObserveStats(w http.ResponseWriter, r *http.Request) {
	var req ObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}

	anchor, err := h.advisor.ObserveStats(r.Context(), req.Level, req.Total)
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	response.Success(w, anchor)
}

// GetStatus returns the advisor and sync status.
func (h *MatchupHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, h.advisor.Status())
}

// Refresh pulls and merges every snapshot now.
func (h *MatchupHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	global, err := h.advisor.Refresh(r.Context())
	if err != nil {
		if remote.IsTransport(err) {
			response.ServiceUnavailable(w, err)
			return
		}
		response.InternalError(w, err)
		return
	}
	response.Success(w, GlobalSummary{
		Buckets: len(global.Buckets),
		Clients: global.Clients,
		Skipped: global.Skipped,
		AsOf:    global.AsOf,
	})
}
