// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/camrelay/internal/auth"
	"github.com/ManuGH/camrelay/internal/log"
	"github.com/ManuGH/camrelay/internal/proxy"
	"github.com/ManuGH/camrelay/internal/registry"
)

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("relay: bad request")

// errorBody is the JSON error shape of every relay endpoint.
type errorBody struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

// classify maps err to a status code and a client-safe detail.
func classify(err error) (int, string) {
	var authErr *auth.Error
	switch {
	case errors.As(err, &authErr):
		return authErr.HTTPStatus(), authErr.Detail()
	case errors.Is(err, registry.ErrNotRegistered):
		return http.StatusNotFound, "device not registered"
	case errors.Is(err, registry.ErrExpired):
		return http.StatusNotFound, "device registration expired"
	case errors.Is(err, registry.ErrInactive):
		return http.StatusServiceUnavailable, "device inactive"
	case errors.Is(err, registry.ErrInvalidName):
		return http.StatusBadRequest, "invalid device name"
	case errors.Is(err, registry.ErrInvalidURL):
		return http.StatusBadRequest, "invalid device url"
	case errors.Is(err, registry.ErrInvalidRoles):
		return http.StatusBadRequest, "invalid role set"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "malformed request body"
	case errors.Is(err, proxy.ErrRateLimited):
		return http.StatusTooManyRequests, "too many requests"
	case errors.Is(err, proxy.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, "device timed out"
	case errors.Is(err, proxy.ErrUpstreamError):
		return http.StatusBadGateway, "device unreachable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError renders err as JSON. Server-side failures are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)

	logger := log.WithComponentFromContext(r.Context(), "relay")
	ev := logger.Debug()
	if status >= http.StatusInternalServerError {
		ev = logger.Warn()
	}
	ev.Err(err).
		Str(log.FieldEvent, "request.failed").
		Str(log.FieldPath, r.URL.Path).
		Int(log.FieldStatus, status).
		Msg("request failed")

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorBody{Detail: detail, RequestID: log.RequestIDFromContext(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
