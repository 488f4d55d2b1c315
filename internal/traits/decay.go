// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package traits

import (
	"math"
	"time"
)

// decayFloor keeps very old events from vanishing entirely; an interaction
// that happened is still a signal, however faint.
const decayFloor = 0.05

// RecencyDecay returns the multiplier applied to a delta for the age of its
// source event at processing time. Exponential half-life decay: an event one
// half-life old contributes 50%, two half-lives 25%, floored at decayFloor.
//
// The result is evaluated once when the mutation is recorded and frozen into
// the effective delta; strengths do not continue to decay afterwards.
func RecencyDecay(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1.0
	}
	if halfLife <= 0 {
		return 1.0
	}
	d := math.Exp2(-float64(age) / float64(halfLife))
	if d < decayFloor {
		return decayFloor
	}
	return d
}
