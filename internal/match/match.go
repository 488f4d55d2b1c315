// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Package match scores audience compatibility between entities. A match
// is a weighted blend of per-domain cosine similarities over DNA vectors,
// dampened by the geometric mean of both confidence scores so thin data
// cannot produce a loud match.
package match

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/harmonia-live/resonance/internal/dna"
	"github.com/harmonia-live/resonance/internal/traits"
)

// Context selects the weighting profile for a match.
type Context string

const (
	ContextRecommendation Context = "recommendation"
	ContextTargeting      Context = "targeting"
	ContextCollab         Context = "collab"
	ContextEvent          Context = "event"
)

// Contexts lists the named weighting profiles.
var Contexts = []Context{
	ContextRecommendation,
	ContextTargeting,
	ContextCollab,
	ContextEvent,
}

// ErrDimensionMismatch means two vectors were built from different
// dimension layouts and cannot be compared.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Weights assigns one weight per domain; a valid profile sums to 1.
type Weights map[traits.Domain]float64

// contextWeights holds the built-in profiles. Each profile leans on the
// domains that predict success for its use case: recommendation on taste,
// targeting on spend, collab on taste and behavior evenly, event on taste
// and geography.
var contextWeights = map[Context]Weights{
	ContextRecommendation: {
		traits.DomainCultural:   0.5,
		traits.DomainBehavioral: 0.2,
		traits.DomainEconomic:   0.1,
		traits.DomainSpatial:    0.2,
	},
	ContextTargeting: {
		traits.DomainEconomic:   0.5,
		traits.DomainBehavioral: 0.2,
		traits.DomainCultural:   0.2,
		traits.DomainSpatial:    0.1,
	},
	ContextCollab: {
		traits.DomainCultural:   0.35,
		traits.DomainBehavioral: 0.35,
		traits.DomainEconomic:   0.15,
		traits.DomainSpatial:    0.15,
	},
	ContextEvent: {
		traits.DomainCultural:   0.35,
		traits.DomainSpatial:    0.35,
		traits.DomainBehavioral: 0.15,
		traits.DomainEconomic:   0.15,
	},
}

// ContextWeights returns the profile for the context. Unknown contexts
// fall back to an even split across domains.
func ContextWeights(c Context) Weights {
	if w, ok := contextWeights[c]; ok {
		return w
	}
	even := make(Weights, len(traits.Domains))
	for _, d := range traits.Domains {
		even[d] = 1.0 / float64(len(traits.Domains))
	}
	return even
}

// Result is one scored pair.
type Result struct {
	EntityA        string                    `json:"entity_a"`
	EntityB        string                    `json:"entity_b"`
	Context        Context                   `json:"context"`
	Score          float64                   `json:"score"`
	DomainScores   map[traits.Domain]float64 `json:"domain_scores"`
	ConfidenceA    float64                   `json:"confidence_a"`
	ConfidenceB    float64                   `json:"confidence_b"`
	Interpretation string                    `json:"interpretation"`
	Reasons        []string                  `json:"reasons"`
}

// Contribution is one domain's share of the raw score.
type Contribution struct {
	Domain       traits.Domain `json:"domain"`
	Score        float64       `json:"score"`
	Weight       float64       `json:"weight"`
	Contribution float64       `json:"contribution"`
}

// Explanation breaks a score into per-domain contributions, largest first.
type Explanation struct {
	Result         *Result        `json:"result"`
	Weights        Weights        `json:"weights"`
	Contributions  []Contribution `json:"contributions"`
	Strongest      traits.Domain  `json:"strongest_domain"`
	Weakest        traits.Domain  `json:"weakest_domain"`
	Dampening      float64        `json:"confidence_dampening"`
	RawScore       float64        `json:"raw_score"`
	Recommendation string         `json:"recommendation"`
}

// DomainSimilarity is the cosine similarity of two aligned dimension
// slices, clamped to [0, 1]. Either side being all-zero yields 0: absence
// of signal is not agreement.
func DomainSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d dimensions", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Min(math.Max(sim, 0), 1), nil
}

// Similarity scores a pair of vectors under the context's weights.
func Similarity(a, b *dna.Vector, context Context) (*Result, error) {
	weights := ContextWeights(context)

	result := &Result{
		EntityA:      a.EntityID,
		EntityB:      b.EntityID,
		Context:      context,
		DomainScores: make(map[traits.Domain]float64, len(traits.Domains)),
		ConfidenceA:  a.Confidence,
		ConfidenceB:  b.Confidence,
	}

	var raw float64
	for _, domain := range traits.Domains {
		sim, err := DomainSimilarity(a.Domains[domain], b.Domains[domain])
		if err != nil {
			return nil, fmt.Errorf("domain %s: %w", domain, err)
		}
		result.DomainScores[domain] = sim
		raw += weights[domain] * sim
	}

	result.Score = raw * math.Sqrt(a.Confidence*b.Confidence)
	result.Interpretation = Interpret(result.Score)
	result.Reasons = reasons(result)

	return result, nil
}

// Interpret labels a score. Buckets are fixed so the label for a given
// score never depends on the candidate pool.
func Interpret(score float64) string {
	switch {
	case score >= 0.9:
		return "Exceptional match"
	case score >= 0.8:
		return "Excellent match"
	case score >= 0.7:
		return "Very strong match"
	case score >= 0.6:
		return "Strong match"
	case score >= 0.5:
		return "Good match"
	case score >= 0.4:
		return "Moderate match"
	case score >= 0.3:
		return "Fair match"
	default:
		return "Poor match"
	}
}

// reasons produces human-readable drivers for the score: strongly aligned
// domains first, context-specific highlights second, and a data-volume
// caveat when confidence dragged the score down.
func reasons(r *Result) []string {
	var out []string

	domainPhrases := map[traits.Domain]string{
		traits.DomainCultural:   "closely aligned taste profiles",
		traits.DomainBehavioral: "similar engagement patterns",
		traits.DomainEconomic:   "comparable spending behavior",
		traits.DomainSpatial:    "overlapping geographic footprints",
	}

	for _, domain := range traits.Domains {
		score := r.DomainScores[domain]
		switch {
		case score >= 0.7:
			out = append(out, domainPhrases[domain])
		case score >= 0.6:
			out = append(out, "partially "+domainPhrases[domain])
		}
	}

	switch r.Context {
	case ContextTargeting:
		if r.DomainScores[traits.DomainEconomic] >= 0.7 {
			out = append(out, "audience monetizes like the campaign's proven segments")
		}
	case ContextEvent:
		if r.DomainScores[traits.DomainSpatial] >= 0.7 {
			out = append(out, "audiences concentrate in the same markets")
		}
	case ContextCollab:
		if r.DomainScores[traits.DomainCultural] >= 0.7 && r.DomainScores[traits.DomainBehavioral] >= 0.7 {
			out = append(out, "fanbases likely to cross-engage")
		}
	}

	if minConf := math.Min(r.ConfidenceA, r.ConfidenceB); minConf < 0.5 {
		out = append(out, "limited interaction history lowers confidence in this score")
	}

	if len(out) == 0 {
		out = append(out, "no strongly aligned domains")
	}
	return out
}

// VectorSource provides DNA vectors to the engine.
type VectorSource interface {
	Vector(ctx context.Context, entityID string) (*dna.Vector, error)
}

// Engine scores entity pairs by id.
type Engine struct {
	vectors     VectorSource
	randomShare float64
	randIntn    func(n int) int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandomShare sets the fraction of batch slots reserved for random
// exploration candidates, clamped to [0, 1].
func WithRandomShare(share float64) Option {
	return func(e *Engine) {
		e.randomShare = math.Min(math.Max(share, 0), 1)
	}
}

// WithRandSource overrides the random source, for deterministic tests.
func WithRandSource(randIntn func(n int) int) Option {
	return func(e *Engine) {
		e.randIntn = randIntn
	}
}

// NewEngine creates a matching engine over the vector source.
func NewEngine(vectors VectorSource, opts ...Option) *Engine {
	e := &Engine{
		vectors:     vectors,
		randomShare: 0.3,
		randIntn:    rand.Intn,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Match scores one pair.
func (e *Engine) Match(ctx context.Context, entityA, entityB string, matchCtx Context) (*Result, error) {
	a, err := e.vectors.Vector(ctx, entityA)
	if err != nil {
		return nil, fmt.Errorf("vector for %s: %w", entityA, err)
	}
	b, err := e.vectors.Vector(ctx, entityB)
	if err != nil {
		return nil, fmt.Errorf("vector for %s: %w", entityB, err)
	}
	return Similarity(a, b, matchCtx)
}

// MatchBatch scores the entity against every candidate and returns the
// best matches, highest score first, up to limit. A candidate whose
// vector cannot be built fails the whole batch; candidate lists come from
// callers who own the ids.
func (e *Engine) MatchBatch(ctx context.Context, entityID string, candidates []string, matchCtx Context, limit int) ([]*Result, error) {
	base, err := e.vectors.Vector(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("vector for %s: %w", entityID, err)
	}

	results := make([]*Result, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate == entityID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		other, err := e.vectors.Vector(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("vector for %s: %w", candidate, err)
		}
		result, err := Similarity(base, other, matchCtx)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].EntityB < results[j].EntityB
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Diversify reserves a share of result slots for randomly chosen
// candidates from outside the top ranks, breaking the feedback loop where
// established entities monopolize every surface. Ordering within the
// returned slice is still score-descending.
func (e *Engine) Diversify(ranked []*Result, limit int) []*Result {
	if limit <= 0 || limit >= len(ranked) || e.randomShare <= 0 {
		if limit > 0 && len(ranked) > limit {
			return ranked[:limit]
		}
		return ranked
	}

	randomSlots := int(math.Round(float64(limit) * e.randomShare))
	if randomSlots >= limit {
		randomSlots = limit - 1
	}
	topSlots := limit - randomSlots

	out := make([]*Result, 0, limit)
	out = append(out, ranked[:topSlots]...)

	// Sample without replacement from the remainder.
	pool := make([]*Result, len(ranked)-topSlots)
	copy(pool, ranked[topSlots:])
	for i := 0; i < randomSlots && len(pool) > 0; i++ {
		j := e.randIntn(len(pool))
		out = append(out, pool[j])
		pool = append(pool[:j], pool[j+1:]...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Explain scores one pair and decomposes the result into weighted
// per-domain contributions, ordered largest first.
func (e *Engine) Explain(ctx context.Context, entityA, entityB string, matchCtx Context) (*Explanation, error) {
	result, err := e.Match(ctx, entityA, entityB, matchCtx)
	if err != nil {
		return nil, err
	}

	weights := ContextWeights(matchCtx)
	contributions := make([]Contribution, 0, len(traits.Domains))
	var raw float64
	for _, domain := range traits.Domains {
		score := result.DomainScores[domain]
		contributions = append(contributions, Contribution{
			Domain:       domain,
			Score:        score,
			Weight:       weights[domain],
			Contribution: weights[domain] * score,
		})
		raw += weights[domain] * score
	}
	sort.SliceStable(contributions, func(i, j int) bool {
		return contributions[i].Contribution > contributions[j].Contribution
	})

	return &Explanation{
		Result:         result,
		Weights:        weights,
		Contributions:  contributions,
		Strongest:      contributions[0].Domain,
		Weakest:        contributions[len(contributions)-1].Domain,
		Dampening:      math.Sqrt(result.ConfidenceA * result.ConfidenceB),
		RawScore:       raw,
		Recommendation: Recommend(result.Score),
	}, nil
}

// Recommend turns a final score into a short next-step suggestion. Buckets
// are fixed, like Interpret's, so the text never depends on the pool.
func Recommend(score float64) string {
	switch {
	case score >= 0.8:
		return "Prioritize this pairing; the audiences overlap across the domains that matter here."
	case score >= 0.6:
		return "Pursue this pairing; alignment is solid, review the weakest domain before committing."
	case score >= 0.4:
		return "Test this pairing on a small scale before investing further."
	case score >= 0.2:
		return "Deprioritize this pairing unless the stronger domains are the only ones that matter."
	default:
		return "Look elsewhere; these audiences share too little to build on."
	}
}
