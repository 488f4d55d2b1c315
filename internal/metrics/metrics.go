// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Package metrics exposes Prometheus instrumentation for the analytics core:
// ledger write path, trait processing, rollup refresh, matching, and
// cross-ledger verification.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ledger write path
	LedgerAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_appends_total",
			Help: "Total number of ledger entries appended",
		},
		[]string{"category", "event_type"},
	)

	LedgerAppendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_append_errors_total",
			Help: "Total number of rejected ledger appends",
		},
		[]string{"reason"},
	)

	LedgerAppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_append_duration_seconds",
			Help:    "Duration of ledger append inserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Trait mutation processor
	ProcessorBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "processor_batches_total",
			Help: "Total number of processor batch runs",
		},
	)

	ProcessorEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_entries_total",
			Help: "Total number of ledger entries handled by the processor",
		},
		[]string{"outcome"}, // "processed", "unrouted", "failed"
	)

	ProcessorMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_mutations_total",
			Help: "Total number of trait mutations written",
		},
		[]string{"domain"},
	)

	ProcessorSkippedBindings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "processor_skipped_bindings_total",
			Help: "Total number of (domain,key) contributions skipped due to malformed metadata",
		},
	)

	ProcessorBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "processor_batch_duration_seconds",
			Help:    "Duration of processor batch runs in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// Leaderboard rollups
	RollupRebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollup_rebuilds_total",
			Help: "Total number of leaderboard rollup rebuilds",
		},
		[]string{"time_range", "domain"},
	)

	RollupRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollup_rebuild_duration_seconds",
			Help:    "Duration of full leaderboard rebuild cycles in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Matching engine
	MatchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_requests_total",
			Help: "Total number of match computations",
		},
		[]string{"context"},
	)

	MatchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_errors_total",
			Help: "Total number of failed match computations",
		},
		[]string{"reason"},
	)

	// Cross-ledger verifier
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifications_total",
			Help: "Total number of cross-ledger verifications",
		},
		[]string{"result"}, // "verified", "failed", "missing"
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)
