// Package httpx builds the outbound HTTP clients used by node and relay.
package httpx

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultClientTimeout         = 5 * time.Second
	defaultDialTimeout           = 3 * time.Second
	defaultResponseHeaderTimeout = 3 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 16
	defaultMaxIdleConnsPerHost   = 4
)

// Options tunes a client built by New.
type Options struct {
	// Timeout bounds the whole exchange including the body.
	Timeout time.Duration
	// HeaderTimeout bounds the wait for response headers. Zero caps it at
	// three seconds, which suits probes but not forwards to a node that is
	// cold starting its pipeline.
	HeaderTimeout time.Duration
	// MaxIdleConnsPerHost defaults to 4.
	MaxIdleConnsPerHost int
	// Traced wraps the transport with OpenTelemetry propagation.
	Traced bool
}

// NewClient returns a hardened HTTP client for liveness probes and
// registration calls.
func NewClient(timeout time.Duration) *http.Client {
	return New(Options{Timeout: timeout})
}

// New returns a hardened HTTP client configured by opts.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	dialTimeout := min(timeout, defaultDialTimeout)

	headerTimeout := opts.HeaderTimeout
	if headerTimeout <= 0 {
		headerTimeout = min(timeout, defaultResponseHeaderTimeout)
	}

	perHost := opts.MaxIdleConnsPerHost
	if perHost <= 0 {
		perHost = defaultMaxIdleConnsPerHost
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          max(defaultMaxIdleConns, perHost),
		MaxIdleConnsPerHost:   perHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
	if opts.Traced {
		transport = otelhttp.NewTransport(transport)
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		// Upstream redirects are passed through to the caller untouched.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
