// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/camrelay/internal/log"
	"github.com/ManuGH/camrelay/internal/metrics"
	"github.com/ManuGH/camrelay/internal/platform/httpx"
)

// RegistrarOptions configure self-registration with the relay.
type RegistrarOptions struct {
	// RelayURL is the relay's internal listener.
	RelayURL string
	Name     string
	// AdvertiseURL is the base URL the relay uses to reach this node.
	AdvertiseURL string
	Interval     time.Duration
	Timeout      time.Duration
	Client       *http.Client
}

// Registrar announces the node to the relay on a fixed interval so that its
// registration never reaches the relay's TTL.
type Registrar struct {
	opts       RegistrarOptions
	client     *http.Client
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger
}

// NewRegistrar builds a registrar. Interval defaults to one minute.
func NewRegistrar(opts RegistrarOptions) *Registrar {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = httpx.New(httpx.Options{Timeout: opts.Timeout, Traced: true})
	}
	return &Registrar{
		opts:   opts,
		client: client,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 15 * time.Second
			return b
		},
		logger: log.WithComponent("registrar"),
	}
}

// Run registers immediately and then every interval until ctx is done.
func (r *Registrar) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		if err := r.Register(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).
				Str(log.FieldEvent, "registration.failed").
				Str(log.FieldURL, r.opts.RelayURL).
				Msg("registration with relay failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Register posts the node's name and URL to the relay, retrying transient
// failures for at most one interval.
func (r *Registrar) Register(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"name": r.opts.Name, "url": r.opts.AdvertiseURL})
	if err != nil {
		return err
	}
	target := strings.TrimRight(r.opts.RelayURL, "/") + "/register"

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.post(ctx, target, body)
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxElapsedTime(r.opts.Interval),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.IncSelfRegistration("retry")
			r.logger.Warn().Err(err).Dur("retry_in", next).Msg("registration attempt failed")
		}),
	)
	if err != nil {
		metrics.IncSelfRegistration("failed")
		return err
	}
	metrics.IncSelfRegistration("ok")
	r.logger.Debug().
		Str(log.FieldEvent, "registration.ok").
		Str(log.FieldDevice, r.opts.Name).
		Msg("registered with relay")
	return nil
}

func (r *Registrar) post(ctx context.Context, target string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		// 4xx other than 429 is permanent.
		return backoff.Permanent(fmt.Errorf("relay rejected registration: %s: %s", resp.Status, bytes.TrimSpace(detail)))
	default:
		return fmt.Errorf("relay returned %s", resp.Status)
	}
}
