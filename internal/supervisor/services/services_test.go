// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmonia-live/resonance/internal/traits"
	"github.com/harmonia-live/resonance/internal/verify"
)

// mockProcessor serves a scripted sequence of batch results.
type mockProcessor struct {
	results []traits.BatchResult
	calls   atomic.Int64
	err     error
}

func (m *mockProcessor) RunBatch(_ context.Context) (traits.BatchResult, error) {
	n := m.calls.Add(1)
	if m.err != nil {
		return traits.BatchResult{}, m.err
	}
	if int(n) <= len(m.results) {
		return m.results[n-1], nil
	}
	return traits.BatchResult{}, nil
}

func TestProcessorServiceDrainsBacklog(t *testing.T) {
	// Two busy batches, then empty; the service must keep going without
	// waiting on the ticker between the busy ones.
	p := &mockProcessor{results: []traits.BatchResult{
		{Fetched: 10, Processed: 10},
		{Fetched: 3, Processed: 3},
		{},
	}}
	s := NewProcessorService(p, ProcessorServiceConfig{Interval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for p.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("processor ran %d batches before blocking, want 3", p.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}
}

func TestProcessorServiceSurvivesBatchErrors(t *testing.T) {
	p := &mockProcessor{err: errors.New("store down")}
	s := NewProcessorService(p, ProcessorServiceConfig{Interval: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for p.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("processor retried %d times, want at least 3", p.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}
}

// mockBuilder counts rebuilds.
type mockBuilder struct {
	calls atomic.Int64
	err   error
}

func (m *mockBuilder) RebuildAll(_ context.Context) error {
	m.calls.Add(1)
	return m.err
}

func TestRollupServiceRebuildOnStartup(t *testing.T) {
	b := &mockBuilder{}
	s := NewRollupService(b, RollupServiceConfig{Interval: time.Hour, RebuildOnStartup: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for b.calls.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("startup rebuild never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}
}

func TestRollupServicePeriodicRebuild(t *testing.T) {
	b := &mockBuilder{err: errors.New("one board broke")}
	s := NewRollupService(b, RollupServiceConfig{Interval: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	// Rebuild errors without cancellation must not kill the loop.
	deadline := time.After(2 * time.Second)
	for b.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("rebuilt %d times, want at least 2", b.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}
}

// mockVerifier counts sweeps.
type mockVerifier struct {
	calls atomic.Int64
	err   error
}

func (m *mockVerifier) VerifyPending(_ context.Context) (verify.SweepResult, error) {
	m.calls.Add(1)
	return verify.SweepResult{}, m.err
}

func TestVerifierServiceSweeps(t *testing.T) {
	v := &mockVerifier{err: errors.New("transient")}
	s := NewVerifierService(v, VerifierServiceConfig{Interval: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for v.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("swept %d times, want at least 2", v.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}
}

// mockHTTPServer scripts ListenAndServe/Shutdown behavior.
type mockHTTPServer struct {
	listenErr   error
	shutdownErr error
	shutdown    atomic.Bool
	release     chan struct{}
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{release: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.release
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(_ context.Context) error {
	m.shutdown.Store(true)
	close(m.release)
	return m.shutdownErr
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	srv := newMockHTTPServer()
	s := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}
	if !srv.shutdown.Load() {
		t.Error("server was not shut down gracefully")
	}
}

func TestHTTPServerServiceListenFailure(t *testing.T) {
	srv := newMockHTTPServer()
	srv.listenErr = errors.New("bind: address already in use")
	s := NewHTTPServerService(srv, time.Second)

	if err := s.Serve(context.Background()); err == nil {
		t.Error("listen failure must surface")
	}
}

func TestServiceNames(t *testing.T) {
	names := map[string]interface{ String() string }{
		"trait-processor": NewProcessorService(&mockProcessor{}, ProcessorServiceConfig{}, zerolog.Nop()),
		"rollup-builder":  NewRollupService(&mockBuilder{}, RollupServiceConfig{}, zerolog.Nop()),
		"ledger-verifier": NewVerifierService(&mockVerifier{}, VerifierServiceConfig{}, zerolog.Nop()),
		"http-server":     NewHTTPServerService(newMockHTTPServer(), 0),
	}
	for want, svc := range names {
		if got := svc.String(); got != want {
			t.Errorf("service name = %q, want %q", got, want)
		}
	}
}
