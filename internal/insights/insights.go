// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Package insights computes derived audience metrics from mutation
// history. Metrics are computed on demand, never stored: the mutation
// ledger is the single source of truth and a metric is always a pure
// function of it plus a time window.
package insights

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/harmonia-live/resonance/internal/traits"
)

// Metric names accepted by the service.
const (
	MetricGenreDiversity   = "genre_diversity"
	MetricRepeatEngagement = "repeat_engagement"
	MetricRevenuePerActor  = "revenue_per_actor"
	MetricGeographicReach  = "geographic_reach"
)

// MetricNames lists every metric the service can compute.
var MetricNames = []string{
	MetricGenreDiversity,
	MetricRepeatEngagement,
	MetricRevenuePerActor,
	MetricGeographicReach,
}

// ErrUnknownMetric is returned for a metric name outside MetricNames.
var ErrUnknownMetric = fmt.Errorf("unknown metric")

// Store is the query surface the metric computations need. All windowed
// queries treat the zero cutoff as unbounded.
type Store interface {
	// CulturalKeyWeights returns the positive cultural key distribution
	// for the entity: trait key to summed effective delta.
	CulturalKeyWeights(ctx context.Context, entityID string, since time.Time) (map[string]float64, error)

	// ActorInteractionCounts returns one distinct-entry count per actor
	// who interacted with the entity in the window.
	ActorInteractionCounts(ctx context.Context, entityID string, since time.Time) ([]int64, error)

	// EconomicRevenue returns summed raw monetary deltas and the distinct
	// contributing actor count.
	EconomicRevenue(ctx context.Context, entityID string, since time.Time) (float64, int64, error)

	// SpatialKeyCount returns the number of distinct spatial keys.
	SpatialKeyCount(ctx context.Context, entityID string, since time.Time) (int64, error)
}

// Result is one computed metric value with its inputs echoed back.
type Result struct {
	EntityID   string           `json:"entity_id"`
	Metric     string           `json:"metric"`
	TimeRange  traits.TimeRange `json:"time_range"`
	Value      float64          `json:"value"`
	ComputedAt time.Time        `json:"computed_at"`
}

// Service computes derived metrics.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a metric service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Compute evaluates the named metric for the entity over the time range.
func (s *Service) Compute(ctx context.Context, metric, entityID string, timeRange traits.TimeRange) (*Result, error) {
	if !timeRange.Valid() {
		return nil, fmt.Errorf("unknown time range %q", timeRange)
	}
	now := s.now().UTC()
	since, _ := timeRange.Cutoff(now)

	var (
		value float64
		err   error
	)
	switch metric {
	case MetricGenreDiversity:
		value, err = s.genreDiversity(ctx, entityID, since)
	case MetricRepeatEngagement:
		value, err = s.repeatEngagement(ctx, entityID, since)
	case MetricRevenuePerActor:
		value, err = s.revenuePerActor(ctx, entityID, since)
	case MetricGeographicReach:
		value, err = s.geographicReach(ctx, entityID, since)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		EntityID:   entityID,
		Metric:     metric,
		TimeRange:  timeRange,
		Value:      value,
		ComputedAt: now,
	}, nil
}

// genreDiversity is the Shannon entropy of the cultural key distribution,
// normalized by the maximum entropy for the observed key count so the
// result lands in [0, 1]. Zero or one key yields 0: a single-genre
// audience has no diversity, however strong the signal.
func (s *Service) genreDiversity(ctx context.Context, entityID string, since time.Time) (float64, error) {
	weights, err := s.store.CulturalKeyWeights(ctx, entityID, since)
	if err != nil {
		return 0, fmt.Errorf("genre diversity: %w", err)
	}
	return NormalizedEntropy(weights), nil
}

// repeatEngagement is the share of actors with more than one interaction.
// No actors yields 0.
func (s *Service) repeatEngagement(ctx context.Context, entityID string, since time.Time) (float64, error) {
	counts, err := s.store.ActorInteractionCounts(ctx, entityID, since)
	if err != nil {
		return 0, fmt.Errorf("repeat engagement: %w", err)
	}
	if len(counts) == 0 {
		return 0, nil
	}
	repeat := 0
	for _, n := range counts {
		if n > 1 {
			repeat++
		}
	}
	return float64(repeat) / float64(len(counts)), nil
}

// revenuePerActor is total economic value divided by distinct spending
// actors. No spenders yields 0, not a division error.
func (s *Service) revenuePerActor(ctx context.Context, entityID string, since time.Time) (float64, error) {
	total, actors, err := s.store.EconomicRevenue(ctx, entityID, since)
	if err != nil {
		return 0, fmt.Errorf("revenue per actor: %w", err)
	}
	if actors == 0 {
		return 0, nil
	}
	return total / float64(actors), nil
}

// geographicReach is the count of distinct spatial keys.
func (s *Service) geographicReach(ctx context.Context, entityID string, since time.Time) (float64, error) {
	count, err := s.store.SpatialKeyCount(ctx, entityID, since)
	if err != nil {
		return 0, fmt.Errorf("geographic reach: %w", err)
	}
	return float64(count), nil
}

// NormalizedEntropy computes Shannon entropy over the weight distribution,
// divided by log2(n) so the result is in [0, 1]. Non-positive weights are
// ignored; fewer than two positive weights yield 0.
func NormalizedEntropy(weights map[string]float64) float64 {
	var total float64
	n := 0
	for _, w := range weights {
		if w > 0 {
			total += w
			n++
		}
	}
	if n < 2 || total <= 0 {
		return 0
	}

	var entropy float64
	for _, w := range weights {
		if w <= 0 {
			continue
		}
		p := w / total
		entropy -= p * math.Log2(p)
	}

	normalized := entropy / math.Log2(float64(n))
	// Guard against float drift pushing a uniform distribution past 1.
	return math.Min(math.Max(normalized, 0), 1)
}
