// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/harmonia-live/resonance/internal/dna"
	"github.com/harmonia-live/resonance/internal/insights"
	"github.com/harmonia-live/resonance/internal/ledger"
	"github.com/harmonia-live/resonance/internal/match"
	"github.com/harmonia-live/resonance/internal/metrics"
	"github.com/harmonia-live/resonance/internal/rollup"
	"github.com/harmonia-live/resonance/internal/traits"
	"github.com/harmonia-live/resonance/internal/validation"
	"github.com/harmonia-live/resonance/internal/verify"
)

// StrengthReader reads domain strength rows.
type StrengthReader interface {
	DomainStrength(ctx context.Context, entityID string, domain traits.Domain, key string) (traits.Strength, error)
}

// Pinger reports storage liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds every endpoint's dependencies.
type Handler struct {
	recorder  *ledger.Recorder
	strengths StrengthReader
	dna       *dna.Builder
	insights  *insights.Service
	rollups   *rollup.Builder
	engine    *match.Engine
	verifier  *verify.Verifier
	pinger    Pinger
	logger    zerolog.Logger
}

// NewHandler wires the handler.
func NewHandler(
	recorder *ledger.Recorder,
	strengths StrengthReader,
	dnaBuilder *dna.Builder,
	insightsSvc *insights.Service,
	rollups *rollup.Builder,
	engine *match.Engine,
	verifier *verify.Verifier,
	pinger Pinger,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		recorder:  recorder,
		strengths: strengths,
		dna:       dnaBuilder,
		insights:  insightsSvc,
		rollups:   rollups,
		engine:    engine,
		verifier:  verifier,
		pinger:    pinger,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// eventRequest is the POST /api/v1/events body.
type eventRequest struct {
	EventType  string         `json:"event_type" validate:"required"`
	ActorID    string         `json:"actor_id" validate:"required"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	OccurredAt *time.Time     `json:"occurred_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RecordEvent appends one interaction to the event ledger.
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	var opts []ledger.RecordOption
	if req.EntityID != "" {
		opts = append(opts, ledger.WithEntity(req.EntityType, req.EntityID))
	}
	if req.SessionID != "" {
		opts = append(opts, ledger.WithSession(req.SessionID))
	}
	if req.OccurredAt != nil {
		opts = append(opts, ledger.WithOccurredAt(*req.OccurredAt))
	}

	id, err := h.recorder.Record(r.Context(), ledger.EventType(req.EventType), req.ActorID, ledger.Payload(req.Metadata), opts...)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownEventType) || errors.Is(err, ledger.ErrMissingActor) {
			writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Event append failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to record event")
		return
	}

	writeSuccess(w, http.StatusCreated, map[string]any{"id": id})
}

// financeRequest is the POST /api/v1/finance body.
type financeRequest struct {
	CorrelationID string `json:"correlation_id" validate:"required"`
	WalletID      string `json:"wallet_id" validate:"required"`
	Direction     string `json:"direction" validate:"required,oneof=debit credit"`
	AmountCents   int64  `json:"amount_cents" validate:"required,gt=0"`
}

// RecordFinanceEntry appends one row to the financial ledger.
func (h *Handler) RecordFinanceEntry(w http.ResponseWriter, r *http.Request) {
	var req financeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	entry := &verify.FinanceEntry{
		CorrelationID: req.CorrelationID,
		WalletID:      req.WalletID,
		Direction:     verify.Direction(req.Direction),
		AmountCents:   req.AmountCents,
	}
	if err := h.verifier.RecordFinanceEntry(r.Context(), entry); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	writeSuccess(w, http.StatusCreated, map[string]any{"id": entry.ID})
}

// Strength returns the strength row for an entity and domain. The key
// query parameter selects a trait key; absent, the domain total.
func (h *Handler) Strength(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	domain := traits.Domain(r.URL.Query().Get("domain"))
	if !domain.Valid() {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, "unknown or missing domain")
		return
	}
	key := r.URL.Query().Get("key")

	strength, err := h.strengths.DomainStrength(r.Context(), entityID, domain, key)
	if err != nil {
		h.logger.Error().Err(err).Msg("Strength lookup failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to read strength")
		return
	}
	writeSuccess(w, http.StatusOK, strength)
}

// DNA returns the entity's audience vector.
func (h *Handler) DNA(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	vector, err := h.dna.Vector(r.Context(), entityID)
	if err != nil {
		h.logger.Error().Err(err).Msg("DNA build failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to build vector")
		return
	}
	writeSuccess(w, http.StatusOK, vector)
}

// Metric computes one derived metric for an entity.
func (h *Handler) Metric(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	metric := chi.URLParam(r, "metric")

	timeRange := traits.TimeRange(r.URL.Query().Get("time_range"))
	if timeRange == "" {
		timeRange = traits.RangeAllTime
	}

	result, err := h.insights.Compute(r.Context(), metric, entityID, timeRange)
	if err != nil {
		if errors.Is(err, insights.ErrUnknownMetric) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		if !timeRange.Valid() {
			writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Metric computation failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to compute metric")
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// Leaderboard returns the ranked board for a domain and time range.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	domain := traits.Domain(chi.URLParam(r, "domain"))

	timeRange := traits.TimeRange(r.URL.Query().Get("time_range"))
	if timeRange == "" {
		timeRange = traits.RangeAllTime
	}
	limit := queryInt(r, "limit", 0)

	rows, err := h.rollups.Leaderboard(r.Context(), domain, timeRange, limit)
	if err != nil {
		if !domain.Valid() || !timeRange.Valid() {
			writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Leaderboard read failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to read leaderboard")
		return
	}
	writeList(w, rows, len(rows))
}

// matchRequest is the POST /api/v1/match and /match/explain body.
type matchRequest struct {
	EntityA string `json:"entity_a" validate:"required"`
	EntityB string `json:"entity_b" validate:"required"`
	Context string `json:"context,omitempty"`
}

// Match scores one entity pair.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	metrics.MatchRequestsTotal.WithLabelValues(req.Context).Inc()
	result, err := h.engine.Match(r.Context(), req.EntityA, req.EntityB, match.Context(req.Context))
	if err != nil {
		metrics.MatchErrors.WithLabelValues("pair").Inc()
		h.logger.Error().Err(err).Msg("Match failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to score match")
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// matchBatchRequest is the POST /api/v1/match/batch body.
type matchBatchRequest struct {
	EntityID   string   `json:"entity_id" validate:"required"`
	Candidates []string `json:"candidates" validate:"required,min=1"`
	Context    string   `json:"context,omitempty"`
	Limit      int      `json:"limit,omitempty" validate:"min=0"`
	Diversify  bool     `json:"diversify,omitempty"`
}

// MatchBatch ranks candidates against one entity.
func (h *Handler) MatchBatch(w http.ResponseWriter, r *http.Request) {
	var req matchBatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	// Rank the full candidate set first so diversification samples from
	// everything below the top slots, then cut to the requested limit.
	batchLimit := 0
	if !req.Diversify {
		batchLimit = req.Limit
	}
	metrics.MatchRequestsTotal.WithLabelValues(req.Context).Inc()
	results, err := h.engine.MatchBatch(r.Context(), req.EntityID, req.Candidates, match.Context(req.Context), batchLimit)
	if err != nil {
		metrics.MatchErrors.WithLabelValues("batch").Inc()
		h.logger.Error().Err(err).Msg("Batch match failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to score batch")
		return
	}
	if req.Diversify {
		results = h.engine.Diversify(results, req.Limit)
	}
	writeList(w, results, len(results))
}

// MatchExplain scores one pair and decomposes the result.
func (h *Handler) MatchExplain(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	explanation, err := h.engine.Explain(r.Context(), req.EntityA, req.EntityB, match.Context(req.Context))
	if err != nil {
		h.logger.Error().Err(err).Msg("Match explain failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to explain match")
		return
	}
	writeSuccess(w, http.StatusOK, explanation)
}

// Health reports process and storage liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternalError, "storage unavailable")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validateRequest checks a decoded body against its validate tags and
// writes the failure envelope itself. Returns false when the request was
// rejected.
func validateRequest(w http.ResponseWriter, req any) bool {
	if err := validation.ValidateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return false
	}
	return true
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
