// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package proxy forwards viewer requests to camera nodes. Segment responses
// are cached; playlists and everything else always go upstream.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/ManuGH/camrelay/internal/auth"
	"github.com/ManuGH/camrelay/internal/log"
	"github.com/ManuGH/camrelay/internal/metrics"
	"github.com/ManuGH/camrelay/internal/platform/httpx"
	"github.com/ManuGH/camrelay/internal/ratelimit"
	"github.com/ManuGH/camrelay/internal/registry"
	"github.com/ManuGH/camrelay/internal/telemetry"
)

const (
	// DefaultTimeout bounds one fetch from a node, cold start included.
	DefaultTimeout = 20 * time.Second

	maxBodyBytes = 64 << 20
)

// Resolver is the part of the registry the forwarder needs.
type Resolver interface {
	Device(ctx context.Context, name string) (registry.Device, error)
	Resolve(ctx context.Context, name string) (string, error)
}

// Request is one forward.
type Request struct {
	Device string
	Path   string
	Query  url.Values
	Role   auth.Role
}

// Response is a buffered upstream response. Cached responses are shared
// between callers and must not be mutated.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

type pathKind string

const (
	kindSegment  pathKind = "segment"
	kindPlaylist pathKind = "playlist"
	kindOther    pathKind = "other"
)

func classify(path string) pathKind {
	switch {
	case strings.HasSuffix(path, ".ts"):
		return kindSegment
	case strings.HasSuffix(path, ".m3u8"):
		return kindPlaylist
	default:
		return kindOther
	}
}

// Options configure a Forwarder.
type Options struct {
	Timeout   time.Duration
	CacheSize int
	// DeviceRPS limits forwards per device; zero disables the limiter.
	DeviceRPS   float64
	DeviceBurst int
	// Client overrides the traced default client.
	Client *http.Client
}

// Forwarder resolves a device and relays one request to it.
type Forwarder struct {
	resolver Resolver
	client   *http.Client
	timeout  time.Duration
	cache    *SegmentCache
	group    singleflight.Group
	limiter  *ratelimit.Limiter
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// New returns a Forwarder over resolver.
func New(resolver Resolver, opts Options) (*Forwarder, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	cache, err := NewSegmentCache(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("proxy: segment cache: %w", err)
	}
	client := opts.Client
	if client == nil {
		client = httpx.New(httpx.Options{
			Timeout:             opts.Timeout,
			HeaderTimeout:       opts.Timeout,
			MaxIdleConnsPerHost: 8,
			Traced:              true,
		})
	}

	f := &Forwarder{
		resolver: resolver,
		client:   client,
		timeout:  opts.Timeout,
		cache:    cache,
		tracer:   telemetry.Tracer("camrelay/proxy"),
		logger:   log.WithComponent("proxy"),
	}
	if opts.DeviceRPS > 0 {
		burst := opts.DeviceBurst
		if burst <= 0 {
			burst = int(opts.DeviceRPS) + 1
		}
		f.limiter = ratelimit.New(ratelimit.Config{Rate: rate.Limit(opts.DeviceRPS), Burst: burst})
	}
	return f, nil
}

// Forward authorizes req against the device before any network I/O, then
// resolves the device and relays the request.
func (f *Forwarder) Forward(ctx context.Context, req Request) (*Response, error) {
	ctx = log.ContextWithDevice(ctx, req.Device)
	ctx, span := f.tracer.Start(ctx, "proxy.forward",
		trace.WithAttributes(telemetry.ForwardAttributes(req.Device, req.Role.String(), "")...))
	defer span.End()

	resp, result, err := f.forward(ctx, req)
	span.SetAttributes(attribute.String(telemetry.CacheResultKey, result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int(telemetry.HTTPStatusCodeKey, resp.Status))
	return resp, nil
}

func (f *Forwarder) forward(ctx context.Context, req Request) (*Response, string, error) {
	dev, err := f.resolver.Device(ctx, req.Device)
	if err != nil {
		return nil, "", err
	}
	if !auth.Allowed(dev.AllowedRoles, req.Role) {
		return nil, "", &auth.Error{Kind: auth.KindInsufficientRole, Err: fmt.Errorf("role %s may not access %s", req.Role, req.Device)}
	}
	if f.limiter != nil && !f.limiter.Allow(req.Device) {
		return nil, "", fmt.Errorf("%w: %s", ErrRateLimited, req.Device)
	}

	base, err := f.resolver.Resolve(ctx, req.Device)
	if err != nil {
		return nil, "", err
	}

	path := strings.TrimLeft(req.Path, "/")
	target := strings.TrimRight(base, "/") + "/" + path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	kind := classify(path)
	if kind != kindSegment {
		metrics.IncForwardCache("bypass")
		resp, err := f.fetch(ctx, req.Device, target, kind)
		return resp, "bypass", err
	}

	key := CacheKey(req.Device, path, req.Query)
	if resp, ok := f.cache.Get(key); ok {
		metrics.IncForwardCache("hit")
		return resp, "hit", nil
	}
	metrics.IncForwardCache("miss")

	// The shared fetch must outlive any single caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := f.group.Do(key, func() (any, error) {
		if resp, ok := f.cache.Get(key); ok {
			return resp, nil
		}
		resp, err := f.fetch(fetchCtx, req.Device, target, kind)
		if err != nil {
			return nil, err
		}
		f.cache.Add(key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, "miss", err
	}
	return v.(*Response), "miss", nil
}

// fetch performs a single GET with no retries.
func (f *Forwarder) fetch(ctx context.Context, device, target string, kind pathKind) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	resp, err := f.do(ctx, target)
	if err != nil {
		uerr := &UpstreamError{Device: device, URL: target, Kind: ErrUpstreamError, Err: err}
		reason := "error"
		if isTimeout(err) {
			uerr.Kind = ErrUpstreamTimeout
			reason = "timeout"
		}
		metrics.IncUpstreamError(reason)
		metrics.ObserveUpstream(string(kind), reason, time.Since(start))
		logger := log.WithContext(ctx, f.logger)
		logger.Warn().Err(err).
			Str(log.FieldEvent, "proxy.upstream_failed").
			Str(log.FieldURL, target).
			Msg("upstream fetch failed")
		return nil, uerr
	}
	metrics.ObserveUpstream(string(kind), "ok", time.Since(start))
	return resp, nil
}

func (f *Forwarder) do(ctx context.Context, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if rid := log.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxBodyBytes)
	}
	return &Response{
		Status: resp.StatusCode,
		Header: endToEnd(resp.Header),
		Body:   body,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// CacheLen reports the number of cached segments.
func (f *Forwarder) CacheLen() int {
	return f.cache.Len()
}
