// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmonia-live/resonance/internal/verify"
)

// LedgerVerifier is the sweep surface of verify.Verifier.
type LedgerVerifier interface {
	// VerifyPending reconciles a batch of unverified correlations and
	// reports the per-outcome counts.
	VerifyPending(ctx context.Context) (verify.SweepResult, error)
}

// VerifierServiceConfig tunes the reconciliation loop.
type VerifierServiceConfig struct {
	// Interval is how often a verification sweep runs.
	Interval time.Duration
}

// VerifierService runs cross-ledger verification sweeps on a schedule.
type VerifierService struct {
	verifier LedgerVerifier
	config   VerifierServiceConfig
	logger   zerolog.Logger
	name     string
}

// NewVerifierService creates a new verifier service wrapper.
func NewVerifierService(verifier LedgerVerifier, cfg VerifierServiceConfig, logger zerolog.Logger) *VerifierService {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	return &VerifierService{
		verifier: verifier,
		config:   cfg,
		logger:   logger.With().Str("service", "verifier").Logger(),
		name:     "ledger-verifier",
	}
}

// Serve implements suture.Service.
func (s *VerifierService) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Msg("verifier service starting")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("verifier service shutting down")
			return ctx.Err()
		case <-ticker.C:
			sweep, err := s.verifier.VerifyPending(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn().Err(err).Msg("verification sweep failed")
				continue
			}
			if sweep.Failed > 0 || sweep.Missing > 0 {
				s.logger.Warn().
					Int("checked", sweep.Checked).
					Int("failed", sweep.Failed).
					Int("missing", sweep.Missing).
					Msg("sweep found unreconciled correlations")
			}
		}
	}
}

// String returns the service name for logging.
func (s *VerifierService) String() string {
	return s.name
}
