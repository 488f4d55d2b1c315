// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Command server runs the Resonance analytics core: the event ledger
// ingest API, the trait mutation processor, leaderboard rollups, the
// matching engine, and the cross-ledger verifier, all under one
// supervision tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harmonia-live/resonance/internal/api"
	"github.com/harmonia-live/resonance/internal/config"
	"github.com/harmonia-live/resonance/internal/database"
	"github.com/harmonia-live/resonance/internal/dna"
	"github.com/harmonia-live/resonance/internal/insights"
	"github.com/harmonia-live/resonance/internal/ledger"
	"github.com/harmonia-live/resonance/internal/logging"
	"github.com/harmonia-live/resonance/internal/match"
	"github.com/harmonia-live/resonance/internal/rollup"
	"github.com/harmonia-live/resonance/internal/supervisor"
	"github.com/harmonia-live/resonance/internal/supervisor/services"
	"github.com/harmonia-live/resonance/internal/traits"
	"github.com/harmonia-live/resonance/internal/verify"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logger.Info().
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Path).
		Msg("Starting Resonance")

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("Database close failed")
		}
	}()

	// Core components. The database value implements every store
	// interface; packages only see the slice they declared.
	recorder := ledger.NewRecorder(db)

	processor, err := traits.NewProcessor(db, db, traits.ProcessorConfig{
		Consumer:                cfg.Processor.Consumer,
		BatchSize:               cfg.Processor.BatchSize,
		DecayHalfLife:           cfg.Processor.DecayHalfLife,
		DrainBatchesPerSecond:   cfg.Processor.DrainBatchesPerSecond,
		BreakerFailureThreshold: cfg.Processor.BreakerFailureThreshold,
		BreakerTimeout:          cfg.Processor.BreakerTimeout,
	})
	if err != nil {
		return fmt.Errorf("create processor: %w", err)
	}

	rollups := rollup.NewBuilder(db, cfg.Rollup.Limit, logger)
	dnaBuilder := dna.NewBuilder(db)
	insightsSvc := insights.NewService(db)

	vectors := dna.NewCachedSource(dnaBuilder, 30*time.Second)
	defer vectors.Stop()

	engineOpts := []match.Option{match.WithRandomShare(cfg.Match.RandomShare)}
	if cfg.Match.Seed != 0 {
		rng := rand.New(rand.NewSource(cfg.Match.Seed))
		engineOpts = append(engineOpts, match.WithRandSource(rng.Intn))
	}
	engine := match.NewEngine(vectors, engineOpts...)

	verifier, err := verify.NewVerifier(db, db, verify.Config{
		MinAge:         cfg.Verifier.GracePeriod,
		BatchSize:      cfg.Verifier.BatchSize,
		ToleranceCents: cfg.Verifier.ToleranceCents,
	}, logger)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}

	// HTTP surface.
	handler := api.NewHandler(recorder, db, dnaBuilder, insightsSvc, rollups, engine, verifier, db, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		IngestRequestsPerMinute: cfg.Server.RateLimitRequests,
		CORSAllowedOrigins:      cfg.Server.CORSAllowedOrigins,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	// Supervision tree: workers in one layer, HTTP in another.
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddWorkerService(services.NewProcessorService(processor, services.ProcessorServiceConfig{
		Interval: cfg.Processor.Interval,
	}, logger))
	tree.AddWorkerService(services.NewRollupService(rollups, services.RollupServiceConfig{
		Interval:         cfg.Rollup.Interval,
		RebuildOnStartup: true,
	}, logger))
	tree.AddWorkerService(services.NewVerifierService(verifier, services.VerifierServiceConfig{
		Interval: cfg.Verifier.Interval,
	}, logger))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("addr", server.Addr).Msg("Resonance running")

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		for _, svc := range report {
			logger.Warn().Str("service", svc.Name).Msg("Service did not stop cleanly")
		}
	}

	logger.Info().Msg("Resonance stopped")
	return nil
}
