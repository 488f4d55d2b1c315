// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package verify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harmonia-live/resonance/internal/ledger"
)

// mockFinanceStore keeps finance rows and verification stamps in memory.
type mockFinanceStore struct {
	entries       []FinanceEntry
	verifications map[string]*Verification
}

func newMockFinanceStore() *mockFinanceStore {
	return &mockFinanceStore{verifications: make(map[string]*Verification)}
}

func (m *mockFinanceStore) InsertFinanceEntry(_ context.Context, entry *FinanceEntry) error {
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockFinanceStore) FinanceEntriesByCorrelation(_ context.Context, correlationID string) ([]FinanceEntry, error) {
	var out []FinanceEntry
	for _, e := range m.entries {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockFinanceStore) PendingCorrelations(_ context.Context, olderThan time.Time, limit int) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, e := range m.entries {
		if _, done := m.verifications[e.CorrelationID]; done {
			continue
		}
		if e.CreatedAt.After(olderThan) || seen[e.CorrelationID] {
			continue
		}
		seen[e.CorrelationID] = true
		out = append(out, e.CorrelationID)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *mockFinanceStore) SetVerification(_ context.Context, v *Verification) error {
	m.verifications[v.CorrelationID] = v
	return nil
}

// mockEventSource serves one entry per correlation id.
type mockEventSource struct {
	entries map[string]*ledger.Entry
}

func (m *mockEventSource) EventEntryByCorrelation(_ context.Context, correlationID string) (*ledger.Entry, error) {
	return m.entries[correlationID], nil
}

func ticketEvent(correlationID, walletID string, amountCents int64) *ledger.Entry {
	now := time.Now().UTC()
	return &ledger.Entry{
		ID:        uuid.New(),
		ActorID:   "fan-1",
		Category:  ledger.CategoryCommerce,
		EventType: ledger.EventTicketPurchased,
		Metadata: ledger.Payload{
			"correlation_id": correlationID,
			"wallet_id":      walletID,
			"amount_cents":   float64(amountCents),
		},
		OccurredAt: now,
		CreatedAt:  now,
	}
}

func financeRow(correlationID, walletID string, amountCents int64) FinanceEntry {
	return FinanceEntry{
		ID:            uuid.New(),
		CorrelationID: correlationID,
		WalletID:      walletID,
		Direction:     DirectionDebit,
		AmountCents:   amountCents,
		CreatedAt:     time.Now().UTC().Add(-time.Hour),
	}
}

func creditRow(correlationID, walletID string, amountCents int64) FinanceEntry {
	row := financeRow(correlationID, walletID, amountCents)
	row.Direction = DirectionCredit
	return row
}

func newTestVerifier(t *testing.T, finance FinanceStore, events EventSource) *Verifier {
	t.Helper()
	v, err := NewVerifier(finance, events, Config{MinAge: time.Minute, BatchSize: 10}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestReconcileMatching(t *testing.T) {
	finance := []FinanceEntry{financeRow("corr-1", "W1", 10_000)}
	event := ticketEvent("corr-1", "W1", 10_000)

	result := Reconcile("corr-1", finance, event, time.Now().UTC(), DefaultToleranceCents)

	if !result.Verified || !result.AmountsMatch || !result.WalletsMatch || !result.EventFound || !result.FinanceFound {
		t.Errorf("matching pair result = %+v, want fully verified", result)
	}
	if result.Hash == "" {
		t.Error("verification must carry a hash")
	}
}

func TestReconcileAmountMismatch(t *testing.T) {
	// $100 on the finance side against $90 on the event side, same wallet:
	// wallets agree, amounts do not, verification fails.
	finance := []FinanceEntry{financeRow("corr-1", "W1", 10_000)}
	event := ticketEvent("corr-1", "W1", 9_000)

	result := Reconcile("corr-1", finance, event, time.Now().UTC(), DefaultToleranceCents)

	if result.Verified {
		t.Error("mismatched amounts must not verify")
	}
	if result.AmountsMatch {
		t.Error("amounts_match must be false")
	}
	if !result.WalletsMatch {
		t.Error("wallets_match must stay true")
	}
}

func TestReconcileOneCentTolerance(t *testing.T) {
	tests := []struct {
		name        string
		eventCents  int64
		wantAmounts bool
	}{
		{"exact", 10_000, true},
		{"one cent under", 9_999, true},
		{"one cent over", 10_001, true},
		{"two cents off", 9_998, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finance := []FinanceEntry{financeRow("corr-1", "W1", 10_000)}
			event := ticketEvent("corr-1", "W1", tt.eventCents)
			result := Reconcile("corr-1", finance, event, time.Now().UTC(), DefaultToleranceCents)
			if result.AmountsMatch != tt.wantAmounts {
				t.Errorf("amounts_match = %v, want %v", result.AmountsMatch, tt.wantAmounts)
			}
		})
	}
}

func TestReconcileWalletMismatch(t *testing.T) {
	finance := []FinanceEntry{financeRow("corr-1", "W1", 10_000)}
	event := ticketEvent("corr-1", "W2", 10_000)

	result := Reconcile("corr-1", finance, event, time.Now().UTC(), DefaultToleranceCents)

	if result.Verified || result.WalletsMatch {
		t.Errorf("wallet mismatch result = %+v, want unverified", result)
	}
	if !result.AmountsMatch {
		t.Error("amounts still match")
	}
}

func TestReconcileMissingEvent(t *testing.T) {
	finance := []FinanceEntry{financeRow("corr-1", "W1", 10_000)}

	result := Reconcile("corr-1", finance, nil, time.Now().UTC(), DefaultToleranceCents)

	if result.Verified || result.EventFound {
		t.Errorf("missing event result = %+v, want unverified", result)
	}
	if result.Hash == "" {
		t.Error("even a failed verification carries a hash")
	}
}

func TestReconcileCreditRowsExcluded(t *testing.T) {
	// A partial refund beside the original charge: only the debit counts
	// against the event's recorded amount.
	finance := []FinanceEntry{
		financeRow("corr-1", "W1", 10_000),
		creditRow("corr-1", "W1", 1_000),
	}
	event := ticketEvent("corr-1", "W1", 10_000)

	result := Reconcile("corr-1", finance, event, time.Now().UTC(), DefaultToleranceCents)
	if !result.Verified || !result.AmountsMatch {
		t.Errorf("refunded charge result = %+v, want verified", result)
	}
}

func TestReconcileCreditOnlyCorrelation(t *testing.T) {
	// No debit rows at all: the zero total cannot match a real charge.
	finance := []FinanceEntry{creditRow("corr-1", "W1", 10_000)}
	event := ticketEvent("corr-1", "W1", 10_000)

	result := Reconcile("corr-1", finance, event, time.Now().UTC(), DefaultToleranceCents)
	if result.Verified || result.AmountsMatch {
		t.Errorf("credit-only result = %+v, want unverified", result)
	}
}

func TestReconcileSplitPayment(t *testing.T) {
	// Two finance rows summing to the event amount still reconcile.
	finance := []FinanceEntry{
		financeRow("corr-1", "W1", 6_000),
		financeRow("corr-1", "W1", 4_000),
	}
	event := ticketEvent("corr-1", "W1", 10_000)

	result := Reconcile("corr-1", finance, event, time.Now().UTC(), DefaultToleranceCents)
	if !result.Verified {
		t.Errorf("split payment result = %+v, want verified", result)
	}
}

func TestReconcileHashStable(t *testing.T) {
	finance := []FinanceEntry{financeRow("corr-1", "W1", 10_000)}
	event := ticketEvent("corr-1", "W1", 10_000)
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	h1 := Reconcile("corr-1", finance, event, at, DefaultToleranceCents).Hash
	h2 := Reconcile("corr-1", finance, event, at, DefaultToleranceCents).Hash
	if h1 != h2 {
		t.Error("hash must be deterministic for identical inputs")
	}

	h3 := Reconcile("corr-1", finance, ticketEvent("corr-1", "W1", 9_000), at, DefaultToleranceCents).Hash
	if h1 == h3 {
		t.Error("hash must change when compared facts change")
	}
}

func TestVerifyPendingSweep(t *testing.T) {
	finance := newMockFinanceStore()
	events := &mockEventSource{entries: map[string]*ledger.Entry{
		"corr-ok":  ticketEvent("corr-ok", "W1", 10_000),
		"corr-bad": ticketEvent("corr-bad", "W1", 9_000),
	}}
	v := newTestVerifier(t, finance, events)

	ctx := context.Background()
	for _, row := range []FinanceEntry{
		financeRow("corr-ok", "W1", 10_000),
		financeRow("corr-bad", "W1", 10_000),
		financeRow("corr-missing", "W1", 2_500),
	} {
		row := row
		if err := v.RecordFinanceEntry(ctx, &row); err != nil {
			t.Fatalf("RecordFinanceEntry: %v", err)
		}
	}

	sweep, err := v.VerifyPending(ctx)
	if err != nil {
		t.Fatalf("VerifyPending: %v", err)
	}
	want := SweepResult{Checked: 3, Verified: 1, Failed: 1, Missing: 1}
	if sweep != want {
		t.Fatalf("sweep = %+v, want %+v", sweep, want)
	}

	if r := finance.verifications["corr-ok"]; r == nil || !r.Verified {
		t.Errorf("corr-ok = %+v, want verified", r)
	}
	if r := finance.verifications["corr-bad"]; r == nil || r.Verified {
		t.Errorf("corr-bad = %+v, want unverified", r)
	}
	if r := finance.verifications["corr-missing"]; r == nil || r.Verified || r.EventFound {
		t.Errorf("corr-missing = %+v, want unverified with no event", r)
	}

	// A second sweep finds nothing pending.
	sweep, err = v.VerifyPending(ctx)
	if err != nil {
		t.Fatalf("second VerifyPending: %v", err)
	}
	if sweep.Checked != 0 {
		t.Errorf("second sweep checked %d, want 0", sweep.Checked)
	}
}

func TestVerifyMissingFinance(t *testing.T) {
	// The event ledger knows the correlation but the finance ledger never
	// recorded it: an unverified outcome, not an error.
	finance := newMockFinanceStore()
	events := &mockEventSource{entries: map[string]*ledger.Entry{
		"corr-ghost": ticketEvent("corr-ghost", "W1", 10_000),
	}}
	v := newTestVerifier(t, finance, events)

	result, err := v.Verify(context.Background(), "corr-ghost")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Verified || result.FinanceFound {
		t.Errorf("result = %+v, want unverified with no finance rows", result)
	}
	if !result.EventFound {
		t.Error("event side was present and must be reported found")
	}
	if result.Hash == "" {
		t.Error("even a one-sided verification carries a hash")
	}
}

func TestRecordFinanceEntryValidation(t *testing.T) {
	v := newTestVerifier(t, newMockFinanceStore(), &mockEventSource{})
	ctx := context.Background()

	tests := []struct {
		name  string
		entry FinanceEntry
	}{
		{"missing correlation", FinanceEntry{WalletID: "W1", Direction: DirectionDebit, AmountCents: 100}},
		{"missing wallet", FinanceEntry{CorrelationID: "c", Direction: DirectionDebit, AmountCents: 100}},
		{"bad direction", FinanceEntry{CorrelationID: "c", WalletID: "W1", Direction: "sideways", AmountCents: 100}},
		{"zero amount", FinanceEntry{CorrelationID: "c", WalletID: "W1", Direction: DirectionCredit, AmountCents: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := tt.entry
			if err := v.RecordFinanceEntry(ctx, &entry); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRecordFinanceEntryFillsDefaults(t *testing.T) {
	store := newMockFinanceStore()
	v := newTestVerifier(t, store, &mockEventSource{})

	entry := FinanceEntry{
		CorrelationID: "corr-1",
		WalletID:      "W1",
		Direction:     DirectionCredit,
		AmountCents:   500,
	}
	if err := v.RecordFinanceEntry(context.Background(), &entry); err != nil {
		t.Fatalf("RecordFinanceEntry: %v", err)
	}
	if entry.ID == uuid.Nil {
		t.Error("id not assigned")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("created_at not assigned")
	}
}
