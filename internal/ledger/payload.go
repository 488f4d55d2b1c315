// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package ledger

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Payload is the open attribute map attached to a ledger entry. Values are
// the JSON scalar set plus nested maps: string, float64, bool,
// map[string]any. Readers must declare only the keys they need and tolerate
// the absence of all others.
type Payload map[string]any

// String returns the string value for key. The second return is false when
// the key is absent or holds a non-string value.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float returns the numeric value for key. JSON round-trips store all
// numbers as float64; int and int64 values set in-process are coerced.
func (p Payload) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Bool returns the boolean value for key.
func (p Payload) Bool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Map returns the nested map value for key.
func (p Payload) Map(key string) (Payload, bool) {
	v, ok := p[key]
	if !ok {
		return nil, false
	}
	switch m := v.(type) {
	case Payload:
		return m, true
	case map[string]any:
		return Payload(m), true
	default:
		return nil, false
	}
}

// MarshalPayload serializes the payload for the ledger's JSON column.
// A nil payload serializes as an empty object.
func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		p = Payload{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// UnmarshalPayload deserializes a ledger JSON column back into a Payload.
func UnmarshalPayload(data []byte) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, nil
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}
