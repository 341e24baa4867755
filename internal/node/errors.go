// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package node

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/camrelay/internal/codec"
	"github.com/ManuGH/camrelay/internal/log"
	"github.com/ManuGH/camrelay/internal/stream"
)

var errBadParam = errors.New("node: invalid parameter")

type errorBody struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadParam):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, stream.ErrNotFound):
		return http.StatusNotFound, "File not found"
	case errors.Is(err, stream.ErrClosed):
		return http.StatusServiceUnavailable, "stream shutting down"
	case errors.Is(err, codec.ErrHardwareUnavailable):
		return http.StatusServiceUnavailable, "camera unavailable"
	case errors.Is(err, codec.ErrUnsupportedPlatform):
		return http.StatusNotImplemented, "streaming unsupported on this platform"
	case errors.Is(err, codec.ErrStartTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "stream did not start in time"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// Client went away; nothing to write.
		return
	}
	if status >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "node")
		logger.Error().Err(err).
			Str(log.FieldEvent, "request.failed").
			Str(log.FieldPath, r.URL.Path).
			Int(log.FieldStatus, status).
			Msg("request failed")
	}
	writeJSON(w, status, errorBody{Detail: detail, RequestID: log.RequestIDFromContext(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
