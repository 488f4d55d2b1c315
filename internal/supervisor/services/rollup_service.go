// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LeaderboardBuilder is the rebuild surface of rollup.Builder.
type LeaderboardBuilder interface {
	RebuildAll(ctx context.Context) error
}

// RollupServiceConfig tunes the refresh loop.
type RollupServiceConfig struct {
	// Interval is how often boards are rebuilt.
	Interval time.Duration

	// RebuildOnStartup refreshes all boards before the first tick, so a
	// fresh deployment serves boards immediately.
	RebuildOnStartup bool
}

// RollupService periodically rebuilds every leaderboard.
type RollupService struct {
	builder LeaderboardBuilder
	config  RollupServiceConfig
	logger  zerolog.Logger
	name    string
}

// NewRollupService creates a new rollup service wrapper.
func NewRollupService(builder LeaderboardBuilder, cfg RollupServiceConfig, logger zerolog.Logger) *RollupService {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &RollupService{
		builder: builder,
		config:  cfg,
		logger:  logger.With().Str("service", "rollup").Logger(),
		name:    "rollup-builder",
	}
}

// Serve implements suture.Service.
func (s *RollupService) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Bool("rebuild_on_startup", s.config.RebuildOnStartup).
		Msg("rollup service starting")

	if s.config.RebuildOnStartup {
		if err := s.rebuild(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("rollup service shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := s.rebuild(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

func (s *RollupService) rebuild(ctx context.Context) error {
	start := time.Now()
	if err := s.builder.RebuildAll(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("leaderboard refresh incomplete")
		return err
	}
	s.logger.Debug().
		Dur("duration", time.Since(start)).
		Msg("leaderboards refreshed")
	return nil
}

// String returns the service name for logging.
func (s *RollupService) String() string {
	return s.name
}
