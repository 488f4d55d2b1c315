// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Package services provides suture service wrappers for the background
// workers and the HTTP server.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmonia-live/resonance/internal/traits"
)

// TraitProcessor is the batch-processing surface of traits.Processor.
type TraitProcessor interface {
	// RunBatch fetches and processes one batch of unprocessed entries.
	RunBatch(ctx context.Context) (traits.BatchResult, error)
}

// ProcessorServiceConfig tunes the processing loop.
type ProcessorServiceConfig struct {
	// Interval is the pause between polls when the ledger is drained.
	Interval time.Duration
}

// ProcessorService runs the trait mutation processor as a supervised
// loop. While the ledger has backlog it processes continuously; once a
// batch comes back empty it falls back to polling on the interval.
type ProcessorService struct {
	processor TraitProcessor
	config    ProcessorServiceConfig
	logger    zerolog.Logger
	name      string
}

// NewProcessorService creates a new processor service wrapper.
func NewProcessorService(processor TraitProcessor, cfg ProcessorServiceConfig, logger zerolog.Logger) *ProcessorService {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &ProcessorService{
		processor: processor,
		config:    cfg,
		logger:    logger.With().Str("service", "trait-processor").Logger(),
		name:      "trait-processor",
	}
}

// Serve implements suture.Service.
func (s *ProcessorService) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Msg("trait processor starting")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		result, err := s.processor.RunBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info().Msg("trait processor shutting down")
				return ctx.Err()
			}
			// Batch errors are transient by assumption; the breaker inside
			// the processor handles a persistently failing store.
			s.logger.Warn().Err(err).Msg("batch processing failed")
		}

		// Keep draining while there is backlog.
		if err == nil && result.Fetched > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("trait processor shutting down")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// String returns the service name for logging.
func (s *ProcessorService) String() string {
	return s.name
}
