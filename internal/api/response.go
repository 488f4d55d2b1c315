// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Package api provides the HTTP surface: Chi routing, request handling,
// and a standardized response envelope shared by every endpoint.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/harmonia-live/resonance/internal/logging"
)

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *Meta     `json:"meta,omitempty"`
}

// APIError carries a machine-readable code beside the human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta is optional response metadata.
type Meta struct {
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Count      int       `json:"count,omitempty"`
}

// Error codes shared across endpoints.
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// writeSuccess writes a 2xx envelope with the payload.
func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeResponse(w, status, Response{
		Success: true,
		Data:    data,
		Meta:    &Meta{Timestamp: time.Now().UTC()},
	})
}

// writeList writes a 200 envelope with a count in the metadata.
func writeList(w http.ResponseWriter, data any, count int) {
	writeResponse(w, http.StatusOK, Response{
		Success: true,
		Data:    data,
		Meta:    &Meta{Timestamp: time.Now().UTC(), Count: count},
	})
}

// writeError writes an error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeResponse(w, status, Response{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &Meta{Timestamp: time.Now().UTC()},
	})
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// Headers are gone; all we can do is log.
		logging.Error().Err(err).Msg("Failed to encode API response")
	}
}

// decodeBody decodes a JSON request body into dst, rejecting unknown
// fields so typos surface as 400s instead of silently dropped input.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
