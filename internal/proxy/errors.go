// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proxy

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamTimeout means the node did not answer within the forward timeout.
	ErrUpstreamTimeout = errors.New("proxy: upstream timeout")
	// ErrUpstreamError means the node could not be reached or the exchange broke.
	ErrUpstreamError = errors.New("proxy: upstream error")
	// ErrRateLimited means the device's request budget is exhausted.
	ErrRateLimited = errors.New("proxy: device rate limited")
)

// UpstreamError is a failed fetch from a node. It matches either
// ErrUpstreamTimeout or ErrUpstreamError via errors.Is.
type UpstreamError struct {
	Device string
	URL    string
	Kind   error
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%v: %s (%s): %v", e.Kind, e.Device, e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{e.Kind, e.Err} }
