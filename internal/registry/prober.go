// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/camrelay/internal/metrics"
	"github.com/ManuGH/camrelay/internal/platform/httpx"
)

// Prober checks whether a node answers at baseURL.
type Prober interface {
	Probe(ctx context.Context, baseURL string) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, baseURL string) error

func (f ProberFunc) Probe(ctx context.Context, baseURL string) error { return f(ctx, baseURL) }

// HTTPProber issues GET {baseURL}/status; any 2xx is alive.
type HTTPProber struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPProber returns a prober with a hardened client bounded by timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{Client: httpx.NewClient(timeout), Timeout: timeout}
}

func (p *HTTPProber) Probe(ctx context.Context, baseURL string) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := p.probe(ctx, baseURL)
	metrics.ObserveProbe(err == nil, time.Since(start))
	return err
}

func (p *HTTPProber) probe(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/status", nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status probe returned %d", resp.StatusCode)
	}
	return nil
}
