// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harmonia-live/resonance/internal/metrics"
)

// RouterConfig tunes rate limits and cross-origin access on the HTTP
// surface.
type RouterConfig struct {
	// IngestRequestsPerMinute caps ledger and finance writes per client IP.
	IngestRequestsPerMinute int

	// QueryRequestsPerMinute caps read and match endpoints per client IP.
	QueryRequestsPerMinute int

	// CORSAllowedOrigins lists origins allowed to call the API from a
	// browser. Empty allows any origin.
	CORSAllowedOrigins []string
}

// NewRouter assembles the full route tree.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	if cfg.IngestRequestsPerMinute <= 0 {
		cfg.IngestRequestsPerMinute = 600
	}
	if cfg.QueryRequestsPerMinute <= 0 {
		cfg.QueryRequestsPerMinute = 1000
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestMetrics)

	// Ingest: the two append-only write paths.
	r.Route("/api/v1/events", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.IngestRequestsPerMinute, time.Minute))
		r.Post("/", h.RecordEvent)
	})
	r.Route("/api/v1/finance", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.IngestRequestsPerMinute, time.Minute))
		r.Post("/", h.RecordFinanceEntry)
	})

	// Query and matching surface.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.QueryRequestsPerMinute, time.Minute))

		r.Get("/entities/{entityID}/strength", h.Strength)
		r.Get("/entities/{entityID}/dna", h.DNA)
		r.Get("/entities/{entityID}/metrics/{metric}", h.Metric)
		r.Get("/leaderboards/{domain}", h.Leaderboard)

		r.Post("/match", h.Match)
		r.Post("/match/batch", h.MatchBatch)
		r.Post("/match/explain", h.MatchExplain)
	})

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestMetrics records request counts and latency per route pattern, so
// path parameters do not explode label cardinality.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.APIRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}
