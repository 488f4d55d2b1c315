// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package traits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/harmonia-live/resonance/internal/ledger"
	"github.com/harmonia-live/resonance/internal/logging"
	"github.com/harmonia-live/resonance/internal/metrics"
)

// LedgerSource is the processor's read side of the ledger. Implemented by
// the database package.
type LedgerSource interface {
	// UnprocessedBatch returns the oldest entries, up to limit, not yet
	// processed by the named consumer.
	UnprocessedBatch(ctx context.Context, consumer string, limit int) ([]ledger.Entry, error)

	// MarkProcessed records the entry as processed for the named consumer.
	// This is the only write the processor performs against the ledger.
	MarkProcessed(ctx context.Context, entryID uuid.UUID, consumer string) error
}

// MutationStore persists mutations and strength increments. Implemented by
// the database package.
type MutationStore interface {
	// ApplyMutation writes m and increments the per-key and domain-total
	// strength rows by its effective delta, atomically. When a record for
	// m's (source entry, domain, key) already exists the call is a no-op
	// reporting false, so reprocessing cannot double count and cannot
	// leave a mutation row without its strength increment.
	ApplyMutation(ctx context.Context, m *Mutation) (bool, error)
}

// ProcessorConfig holds the processor's tunables.
type ProcessorConfig struct {
	// Consumer names this processor in the ledger's processing side-table.
	Consumer string

	// BatchSize bounds one RunBatch invocation.
	BatchSize int

	// DecayHalfLife controls the recency decay applied at processing time.
	DecayHalfLife time.Duration

	// DrainBatchesPerSecond rate-limits Drain. 0 disables the limiter.
	DrainBatchesPerSecond float64

	// BreakerFailureThreshold is the number of consecutive ledger read
	// failures before the circuit opens. 0 = 5.
	BreakerFailureThreshold uint32

	// BreakerTimeout is the open-state duration before a half-open probe.
	// 0 = 10s.
	BreakerTimeout time.Duration
}

// BatchResult reports aggregate counts for one batch run. A batch always
// completes and reports counts rather than aborting on the first bad entry.
type BatchResult struct {
	Fetched         int `json:"fetched"`
	Processed       int `json:"processed"`
	Unrouted        int `json:"unrouted"`
	Mutations       int `json:"mutations"`
	SkippedBindings int `json:"skipped_bindings"`
	Failed          int `json:"failed"`
}

// add accumulates r into the receiver, for Drain.
func (r *BatchResult) add(other BatchResult) {
	r.Fetched += other.Fetched
	r.Processed += other.Processed
	r.Unrouted += other.Unrouted
	r.Mutations += other.Mutations
	r.SkippedBindings += other.SkippedBindings
	r.Failed += other.Failed
}

// Processor converts unprocessed ledger entries into mutation records and
// strength increments. It holds no long-lived state: each invocation runs
// one bounded batch to completion, and because mutation inserts are
// conflict-ignoring, concurrent or repeated invocations are safe.
type Processor struct {
	source  LedgerSource
	store   MutationStore
	config  ProcessorConfig
	logger  zerolog.Logger
	limiter *rate.Limiter

	// breaker guards the ledger read path so a failing store does not get
	// hammered by the periodic trigger.
	breaker *gobreaker.CircuitBreaker[[]ledger.Entry]

	// now is injectable for tests.
	now func() time.Time
}

// NewProcessor creates a Processor. Source and store are required.
func NewProcessor(source LedgerSource, store MutationStore, cfg ProcessorConfig) (*Processor, error) {
	if source == nil {
		return nil, fmt.Errorf("ledger source required")
	}
	if store == nil {
		return nil, fmt.Errorf("mutation store required")
	}
	if cfg.Consumer == "" {
		return nil, fmt.Errorf("consumer name required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.DecayHalfLife <= 0 {
		cfg.DecayHalfLife = 30 * 24 * time.Hour
	}
	threshold := cfg.BreakerFailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.DrainBatchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.DrainBatchesPerSecond), 1)
	}

	breaker := gobreaker.NewCircuitBreaker[[]ledger.Entry](gobreaker.Settings{
		Name:    "ledger-reader",
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})

	return &Processor{
		source:  source,
		store:   store,
		config:  cfg,
		logger:  logging.With().Str("component", "processor").Str("consumer", cfg.Consumer).Logger(),
		limiter: limiter,
		breaker: breaker,
		now:     time.Now,
	}, nil
}

// RunBatch fetches and processes one bounded batch of unprocessed entries.
// Per-entry failures are contained: the batch continues and the counts
// report the damage. A context cancellation stops after the current entry;
// unmarked entries are simply reprocessed on the next run.
func (p *Processor) RunBatch(ctx context.Context) (BatchResult, error) {
	start := time.Now()
	var result BatchResult

	entries, err := p.breaker.Execute(func() ([]ledger.Entry, error) {
		return p.source.UnprocessedBatch(ctx, p.config.Consumer, p.config.BatchSize)
	})
	if err != nil {
		return result, fmt.Errorf("fetch unprocessed batch: %w", err)
	}
	result.Fetched = len(entries)

	for i := range entries {
		if ctx.Err() != nil {
			break
		}
		p.processEntry(ctx, &entries[i], &result)
	}

	metrics.ProcessorBatchesTotal.Inc()
	metrics.ProcessorBatchDuration.Observe(time.Since(start).Seconds())

	if result.Fetched > 0 {
		p.logger.Info().
			Int("fetched", result.Fetched).
			Int("processed", result.Processed).
			Int("unrouted", result.Unrouted).
			Int("mutations", result.Mutations).
			Int("skipped_bindings", result.SkippedBindings).
			Int("failed", result.Failed).
			Msg("batch complete")
	}

	return result, nil
}

// Drain runs batches until the backlog is empty, bounded by the configured
// rate limiter. Intended for catch-up after downtime.
func (p *Processor) Drain(ctx context.Context) (BatchResult, error) {
	var total BatchResult
	for {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return total, err
			}
		}
		res, err := p.RunBatch(ctx)
		total.add(res)
		if err != nil {
			return total, err
		}
		if res.Fetched == 0 {
			return total, nil
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

// processEntry applies the routing table to one entry and updates the
// result counts. Store failures leave the entry unmarked so the next batch
// retries it; the mutation uniqueness constraint prevents double counting.
func (p *Processor) processEntry(ctx context.Context, entry *ledger.Entry, result *BatchResult) {
	bindings, routed := Route(entry.EventType)
	if !routed {
		// Routing gap: a no-op, but still marked processed.
		if err := p.source.MarkProcessed(ctx, entry.ID, p.config.Consumer); err != nil {
			result.Failed++
			metrics.ProcessorEntriesTotal.WithLabelValues("failed").Inc()
			p.logger.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("mark processed failed")
			return
		}
		result.Unrouted++
		metrics.ProcessorEntriesTotal.WithLabelValues("unrouted").Inc()
		return
	}

	now := p.now()
	decay := RecencyDecay(now.Sub(entry.OccurredAt), p.config.DecayHalfLife)

	if entry.EntityID == "" {
		// Routed event with no target entity: nothing to attribute the
		// deltas to. Skip all contributions but do not stall the batch.
		result.SkippedBindings += len(bindings)
		metrics.ProcessorSkippedBindings.Add(float64(len(bindings)))
		p.logger.Warn().
			Str("entry_id", entry.ID.String()).
			Str("event_type", string(entry.EventType)).
			Msg("routed entry has no target entity, contributions skipped")
	} else {
		for _, binding := range bindings {
			mutation, err := p.buildMutation(entry, binding, decay, now)
			if err != nil {
				// Malformed metadata skips only this contribution.
				result.SkippedBindings++
				metrics.ProcessorSkippedBindings.Inc()
				p.logger.Warn().
					Err(err).
					Str("entry_id", entry.ID.String()).
					Str("event_type", string(entry.EventType)).
					Str("domain", string(binding.Domain)).
					Msg("contribution skipped")
				continue
			}

			applied, err := p.store.ApplyMutation(ctx, mutation)
			if err != nil {
				result.Failed++
				metrics.ProcessorEntriesTotal.WithLabelValues("failed").Inc()
				p.logger.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("apply mutation failed")
				return
			}
			if !applied {
				// Reprocessing: the mutation and its strength increment
				// landed together in an earlier transaction.
				continue
			}

			result.Mutations++
			metrics.ProcessorMutationsTotal.WithLabelValues(string(binding.Domain)).Inc()
		}
	}

	// Mark processed only after mutation rows are durably written. A crash
	// before this point reprocesses the entry; conflict-ignore inserts make
	// that safe.
	if err := p.source.MarkProcessed(ctx, entry.ID, p.config.Consumer); err != nil {
		result.Failed++
		metrics.ProcessorEntriesTotal.WithLabelValues("failed").Inc()
		p.logger.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("mark processed failed")
		return
	}

	result.Processed++
	metrics.ProcessorEntriesTotal.WithLabelValues("processed").Inc()
}

// buildMutation evaluates one binding against the entry.
func (p *Processor) buildMutation(entry *ledger.Entry, binding Binding, decay float64, now time.Time) (*Mutation, error) {
	key, err := binding.Key(entry.Metadata)
	if err != nil {
		return nil, err
	}
	rawDelta, err := binding.Delta(entry.Metadata)
	if err != nil {
		return nil, err
	}

	return &Mutation{
		ID:             uuid.New(),
		SourceEntryID:  entry.ID,
		ActorID:        entry.ActorID,
		EntityID:       entry.EntityID,
		Domain:         binding.Domain,
		Key:            key,
		RawDelta:       rawDelta,
		Weight:         binding.Weight,
		RecencyDecay:   decay,
		EffectiveDelta: rawDelta * binding.Weight * decay,
		OccurredAt:     entry.OccurredAt,
		ProcessedAt:    now,
	}, nil
}

// IsMalformedMetadata reports whether err stems from a missing or invalid
// payload field.
func IsMalformedMetadata(err error) bool {
	return errors.Is(err, ErrMalformedMetadata)
}
