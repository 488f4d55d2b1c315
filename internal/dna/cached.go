// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package dna

import (
	"context"
	"time"

	"github.com/harmonia-live/resonance/internal/cache"
)

// CachedSource wraps a Builder with a short-TTL vector cache. Batch
// matching hits the same entity repeatedly; a freshly built vector is
// good enough for the cache window since strengths only accumulate.
type CachedSource struct {
	builder *Builder
	cache   *cache.Cache[*Vector]
}

// NewCachedSource creates a caching wrapper around the builder.
func NewCachedSource(builder *Builder, ttl time.Duration) *CachedSource {
	return &CachedSource{
		builder: builder,
		cache:   cache.New[*Vector](ttl),
	}
}

// Vector returns the cached vector for the entity, building it on a miss.
func (s *CachedSource) Vector(ctx context.Context, entityID string) (*Vector, error) {
	if v, ok := s.cache.Get(entityID); ok {
		return v, nil
	}
	v, err := s.builder.Vector(ctx, entityID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(entityID, v)
	return v, nil
}

// Invalidate drops the entity's cached vector.
func (s *CachedSource) Invalidate(entityID string) {
	s.cache.Invalidate(entityID)
}

// Stop terminates the cache janitor.
func (s *CachedSource) Stop() {
	s.cache.Stop()
}
