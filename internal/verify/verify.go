// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Package verify reconciles the financial ledger against the event
// ledger. Every monetary event is recorded twice, by independent code
// paths, and linked through a shared correlation id; the verifier
// periodically checks that both sides agree on amount and wallet and
// stamps the finance rows with the outcome plus an integrity hash.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harmonia-live/resonance/internal/ledger"
	"github.com/harmonia-live/resonance/internal/metrics"
)

// Direction labels which way money moved on a finance entry.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// FinanceEntry is one row of the financial ledger.
type FinanceEntry struct {
	ID            uuid.UUID  `json:"id"`
	CorrelationID string     `json:"correlation_id"`
	WalletID      string     `json:"wallet_id"`
	Direction     Direction  `json:"direction"`
	AmountCents   int64      `json:"amount_cents"`
	Verified      *bool      `json:"verified,omitempty"`
	Hash          string     `json:"verification_hash,omitempty"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Verification is the reconciliation outcome for one correlation id.
type Verification struct {
	CorrelationID string    `json:"correlation_id"`
	Verified      bool      `json:"verified"`
	AmountsMatch  bool      `json:"amounts_match"`
	WalletsMatch  bool      `json:"wallets_match"`
	EventFound    bool      `json:"event_found"`
	FinanceFound  bool      `json:"finance_found"`
	Hash          string    `json:"hash"`
	VerifiedAt    time.Time `json:"verified_at"`
}

// SweepResult reports one verification sweep's outcomes.
type SweepResult struct {
	Checked  int `json:"checked"`
	Verified int `json:"verified"`
	Failed   int `json:"failed"`
	Missing  int `json:"missing"`
}

// FinanceStore is the finance-ledger persistence surface.
type FinanceStore interface {
	// InsertFinanceEntry appends one finance row. Finance rows are
	// immutable except for the verification columns.
	InsertFinanceEntry(ctx context.Context, entry *FinanceEntry) error

	// FinanceEntriesByCorrelation returns every finance row sharing the
	// correlation id, oldest first.
	FinanceEntriesByCorrelation(ctx context.Context, correlationID string) ([]FinanceEntry, error)

	// PendingCorrelations returns correlation ids of finance rows that
	// have never been verified and are older than the cutoff, up to limit.
	PendingCorrelations(ctx context.Context, olderThan time.Time, limit int) ([]string, error)

	// SetVerification stamps every finance row for the correlation id
	// with the outcome.
	SetVerification(ctx context.Context, v *Verification) error
}

// EventSource looks up the event-ledger side of a correlation.
type EventSource interface {
	// EventEntryByCorrelation returns the entry whose metadata carries
	// the correlation id, or (nil, nil) when none exists.
	EventEntryByCorrelation(ctx context.Context, correlationID string) (*ledger.Entry, error)
}

// DefaultToleranceCents is the largest absolute amount difference still
// considered a match. Rounding at currency-conversion boundaries can
// shift totals by one cent.
const DefaultToleranceCents = 1

// Config tunes the verification sweep.
type Config struct {
	// MinAge is how old a finance row must be before verification is
	// attempted, giving the event side time to land.
	MinAge time.Duration

	// BatchSize caps correlations verified per sweep.
	BatchSize int

	// ToleranceCents overrides DefaultToleranceCents when positive.
	ToleranceCents int64
}

// Verifier runs reconciliation sweeps.
type Verifier struct {
	finance FinanceStore
	events  EventSource
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

// NewVerifier wires a verifier over both ledgers.
func NewVerifier(finance FinanceStore, events EventSource, cfg Config, logger zerolog.Logger) (*Verifier, error) {
	if finance == nil || events == nil {
		return nil, fmt.Errorf("verifier requires both stores")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ToleranceCents <= 0 {
		cfg.ToleranceCents = DefaultToleranceCents
	}
	return &Verifier{
		finance: finance,
		events:  events,
		cfg:     cfg,
		logger:  logger.With().Str("component", "verifier").Logger(),
		now:     time.Now,
	}, nil
}

// RecordFinanceEntry validates and appends a finance row.
func (v *Verifier) RecordFinanceEntry(ctx context.Context, entry *FinanceEntry) error {
	if entry.CorrelationID == "" {
		return fmt.Errorf("finance entry missing correlation id")
	}
	if entry.WalletID == "" {
		return fmt.Errorf("finance entry missing wallet id")
	}
	if entry.Direction != DirectionDebit && entry.Direction != DirectionCredit {
		return fmt.Errorf("unknown direction %q", entry.Direction)
	}
	if entry.AmountCents <= 0 {
		return fmt.Errorf("finance entry amount must be positive")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = v.now().UTC()
	}
	return v.finance.InsertFinanceEntry(ctx, entry)
}

// VerifyPending sweeps unverified correlations, reporting how many were
// checked and how each reconciliation came out. A single bad correlation
// is recorded and does not abort the sweep.
func (v *Verifier) VerifyPending(ctx context.Context) (SweepResult, error) {
	var sweep SweepResult
	cutoff := v.now().UTC().Add(-v.cfg.MinAge)
	pending, err := v.finance.PendingCorrelations(ctx, cutoff, v.cfg.BatchSize)
	if err != nil {
		return sweep, fmt.Errorf("list pending correlations: %w", err)
	}

	for _, cid := range pending {
		if err := ctx.Err(); err != nil {
			return sweep, err
		}
		result, err := v.Verify(ctx, cid)
		if err != nil {
			v.logger.Error().Err(err).Str("correlation_id", cid).Msg("Verification failed")
			continue
		}
		sweep.Checked++
		switch {
		case !result.EventFound || !result.FinanceFound:
			sweep.Missing++
		case result.Verified:
			sweep.Verified++
		default:
			sweep.Failed++
		}
		if !result.Verified {
			v.logger.Warn().
				Str("correlation_id", cid).
				Bool("amounts_match", result.AmountsMatch).
				Bool("wallets_match", result.WalletsMatch).
				Bool("event_found", result.EventFound).
				Msg("Cross-ledger verification mismatch")
		}
	}

	if sweep.Checked > 0 {
		v.logger.Info().
			Int("checked", sweep.Checked).
			Int("verified", sweep.Verified).
			Int("failed", sweep.Failed).
			Int("missing", sweep.Missing).
			Msg("Verification sweep complete")
	}
	return sweep, nil
}

// Verify reconciles one correlation id and persists the outcome. A missing
// side on either ledger is a failed verification, not an error.
func (v *Verifier) Verify(ctx context.Context, correlationID string) (*Verification, error) {
	finance, err := v.finance.FinanceEntriesByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("load finance entries: %w", err)
	}

	event, err := v.events.EventEntryByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("load event entry: %w", err)
	}

	result := Reconcile(correlationID, finance, event, v.now().UTC(), v.cfg.ToleranceCents)

	if err := v.finance.SetVerification(ctx, result); err != nil {
		return nil, fmt.Errorf("persist verification: %w", err)
	}

	switch {
	case !result.EventFound || !result.FinanceFound:
		metrics.VerificationsTotal.WithLabelValues("missing").Inc()
	case result.Verified:
		metrics.VerificationsTotal.WithLabelValues("verified").Inc()
	default:
		metrics.VerificationsTotal.WithLabelValues("failed").Inc()
	}

	return result, nil
}

// Reconcile compares the finance rows for a correlation against the event
// ledger entry. The event side's expected amount and wallet come from its
// metadata; the finance side's amount is the sum of its debit rows, so a
// split payment still reconciles against a single event. Credit rows
// (refunds, adjustments) stay out of the total: the event records what was
// charged, not the net position.
func Reconcile(correlationID string, finance []FinanceEntry, event *ledger.Entry, at time.Time, toleranceCents int64) *Verification {
	result := &Verification{
		CorrelationID: correlationID,
		FinanceFound:  len(finance) > 0,
		VerifiedAt:    at,
	}

	var financeTotal int64
	wallets := make(map[string]struct{})
	for _, f := range finance {
		if f.Direction == DirectionDebit {
			financeTotal += f.AmountCents
		}
		wallets[f.WalletID] = struct{}{}
	}

	if event == nil {
		result.Hash = verificationHash(correlationID, financeTotal, 0, wallets, "", at)
		return result
	}
	result.EventFound = true

	eventAmount := int64(0)
	if raw, ok := event.Metadata.Float("amount_cents"); ok {
		eventAmount = int64(raw)
	}
	eventWallet, _ := event.Metadata.String("wallet_id")

	if toleranceCents < 0 {
		toleranceCents = DefaultToleranceCents
	}
	diff := financeTotal - eventAmount
	if diff < 0 {
		diff = -diff
	}
	result.AmountsMatch = diff <= toleranceCents

	_, walletKnown := wallets[eventWallet]
	result.WalletsMatch = eventWallet != "" && walletKnown

	result.Verified = result.FinanceFound && result.AmountsMatch && result.WalletsMatch
	result.Hash = verificationHash(correlationID, financeTotal, eventAmount, wallets, eventWallet, at)
	return result
}

// verificationHash produces a stable sha256 digest over the reconciled
// facts, giving downstream audit tooling a tamper-evident record of what
// was compared.
func verificationHash(correlationID string, financeTotal, eventAmount int64, wallets map[string]struct{}, eventWallet string, at time.Time) string {
	walletList := make([]string, 0, len(wallets))
	for w := range wallets {
		walletList = append(walletList, w)
	}
	sort.Strings(walletList)

	var b strings.Builder
	b.WriteString(correlationID)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(financeTotal, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(eventAmount, 10))
	b.WriteByte('|')
	b.WriteString(strings.Join(walletList, ","))
	b.WriteByte('|')
	b.WriteString(eventWallet)
	b.WriteByte('|')
	b.WriteString(at.UTC().Format(time.RFC3339Nano))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
