// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camrelay/internal/auth"
	"github.com/ManuGH/camrelay/internal/registry"
)

type fakeResolver struct {
	device     registry.Device
	deviceErr  error
	url        string
	resolveErr error
	resolves   atomic.Int32
}

func (r *fakeResolver) Device(_ context.Context, name string) (registry.Device, error) {
	if r.deviceErr != nil {
		return registry.Device{}, r.deviceErr
	}
	d := r.device
	d.Name = name
	return d, nil
}

func (r *fakeResolver) Resolve(context.Context, string) (string, error) {
	r.resolves.Add(1)
	return r.url, r.resolveErr
}

type upstream struct {
	*httptest.Server
	mu    sync.Mutex
	hits  map[string]int
	delay time.Duration
	code  int
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{hits: make(map[string]int), code: http.StatusOK}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.hits[r.URL.RequestURI()]++
		delay, code := u.delay, u.code
		u.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "video/mp2t")
		w.Header().Set("Connection", "X-Secret")
		w.Header().Set("X-Secret", "hop")
		w.Header().Set("Keep-Alive", "timeout=5")
		w.WriteHeader(code)
		_, _ = w.Write([]byte("payload:" + r.URL.RequestURI()))
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) configure(delay time.Duration, code int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.delay, u.code = delay, code
}

func (u *upstream) count(uri string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[uri]
}

func (u *upstream) total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, c := range u.hits {
		n += c
	}
	return n
}

func newForwarder(t *testing.T, res Resolver, opts Options) *Forwarder {
	t.Helper()
	f, err := New(res, opts)
	require.NoError(t, err)
	return f
}

func userResolver(base string) *fakeResolver {
	return &fakeResolver{
		device: registry.Device{AllowedRoles: []auth.Role{auth.RoleUser, auth.RoleAdmin}},
		url:    base,
	}
}

func TestSegmentIsFetchedOnce(t *testing.T) {
	up := newUpstream(t)
	f := newForwarder(t, userResolver(up.URL), Options{})
	ctx := context.Background()

	req := Request{Device: "cam1", Path: "hls/abc_0001.ts", Role: auth.RoleUser}
	first, err := f.Forward(ctx, req)
	require.NoError(t, err)
	second, err := f.Forward(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 1, up.count("/hls/abc_0001.ts"))
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, "payload:/hls/abc_0001.ts", string(second.Body))
	assert.Equal(t, 1, f.CacheLen())
}

func TestPlaylistAlwaysFetched(t *testing.T) {
	up := newUpstream(t)
	f := newForwarder(t, userResolver(up.URL), Options{})
	ctx := context.Background()

	for range 3 {
		_, err := f.Forward(ctx, Request{Device: "cam1", Path: "hls/playlist.m3u8", Role: auth.RoleUser})
		require.NoError(t, err)
		_, err = f.Forward(ctx, Request{Device: "cam1", Path: "status", Role: auth.RoleUser})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, up.count("/hls/playlist.m3u8"))
	assert.Equal(t, 3, up.count("/status"))
	assert.Zero(t, f.CacheLen())
}

func TestQueryIsPartOfCacheKey(t *testing.T) {
	up := newUpstream(t)
	f := newForwarder(t, userResolver(up.URL), Options{})
	ctx := context.Background()

	q1 := url.Values{"b": {"2"}, "a": {"1"}}
	q2 := url.Values{"a": {"1"}, "b": {"2"}}
	q3 := url.Values{"a": {"9"}}

	for _, q := range []url.Values{q1, q2, q3} {
		resp, err := f.Forward(ctx, Request{Device: "cam1", Path: "/hls/x_0001.ts", Query: q, Role: auth.RoleUser})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)
	}
	assert.Equal(t, 1, up.count("/hls/x_0001.ts?a=1&b=2"), "canonical query shares one entry")
	assert.Equal(t, 1, up.count("/hls/x_0001.ts?a=9"))
}

func TestConcurrentMissesCoalesce(t *testing.T) {
	up := newUpstream(t)
	up.configure(100*time.Millisecond, http.StatusOK)
	f := newForwarder(t, userResolver(up.URL), Options{})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Forward(context.Background(), Request{Device: "cam1", Path: "hls/s_0002.ts", Role: auth.RoleUser})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, up.count("/hls/s_0002.ts"))
}

func TestNon200IsPassedThroughButNotCached(t *testing.T) {
	up := newUpstream(t)
	up.configure(0, http.StatusNotFound)
	f := newForwarder(t, userResolver(up.URL), Options{})
	ctx := context.Background()

	req := Request{Device: "cam1", Path: "hls/gone_0001.ts", Role: auth.RoleUser}
	for range 2 {
		resp, err := f.Forward(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.Status)
	}
	assert.Equal(t, 2, up.count("/hls/gone_0001.ts"))
}

func TestHopByHopHeadersDropped(t *testing.T) {
	up := newUpstream(t)
	f := newForwarder(t, userResolver(up.URL), Options{})

	resp, err := f.Forward(context.Background(), Request{Device: "cam1", Path: "hls/playlist.m3u8", Role: auth.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, "video/mp2t", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Connection"))
	assert.Empty(t, resp.Header.Get("Keep-Alive"))
	assert.Empty(t, resp.Header.Get("X-Secret"))
	assert.Empty(t, resp.Header.Get("Content-Length"))
}

func TestAuthorizationBeforeNetwork(t *testing.T) {
	up := newUpstream(t)
	res := &fakeResolver{device: registry.Device{AllowedRoles: []auth.Role{auth.RoleAdmin}}, url: up.URL}
	f := newForwarder(t, res, Options{})

	for range 2 {
		_, err := f.Forward(context.Background(), Request{Device: "cam1", Path: "hls/a_0001.ts", Role: auth.RoleUser})
		require.ErrorIs(t, err, auth.ErrInsufficientRole)
	}
	assert.Zero(t, up.total())
	assert.Zero(t, res.resolves.Load(), "no liveness probe for unauthorized callers")
}

func TestResolveErrorsPropagate(t *testing.T) {
	f := newForwarder(t, &fakeResolver{deviceErr: registry.ErrNotRegistered}, Options{})
	_, err := f.Forward(context.Background(), Request{Device: "ghost", Path: "hls/playlist.m3u8", Role: auth.RoleAdmin})
	assert.ErrorIs(t, err, registry.ErrNotRegistered)

	res := userResolver("")
	res.resolveErr = registry.ErrInactive
	f = newForwarder(t, res, Options{})
	_, err = f.Forward(context.Background(), Request{Device: "cam1", Path: "hls/playlist.m3u8", Role: auth.RoleUser})
	assert.ErrorIs(t, err, registry.ErrInactive)
}

func TestUpstreamFailures(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		up := newUpstream(t)
		up.configure(time.Second, http.StatusOK)
		f := newForwarder(t, userResolver(up.URL), Options{Timeout: 100 * time.Millisecond})

		_, err := f.Forward(context.Background(), Request{Device: "cam1", Path: "hls/playlist.m3u8", Role: auth.RoleUser})
		require.ErrorIs(t, err, ErrUpstreamTimeout)
		var uerr *UpstreamError
		require.True(t, errors.As(err, &uerr))
		assert.Equal(t, "cam1", uerr.Device)
		assert.Equal(t, up.URL+"/hls/playlist.m3u8", uerr.URL)
	})

	t.Run("unreachable", func(t *testing.T) {
		up := newUpstream(t)
		base := up.URL
		up.Close()
		f := newForwarder(t, userResolver(base), Options{Timeout: time.Second})

		_, err := f.Forward(context.Background(), Request{Device: "cam1", Path: "hls/a_0001.ts", Role: auth.RoleUser})
		require.ErrorIs(t, err, ErrUpstreamError)
		assert.NotErrorIs(t, err, ErrUpstreamTimeout)
		assert.Zero(t, f.CacheLen())
	})
}

func TestDeviceRateLimit(t *testing.T) {
	up := newUpstream(t)
	f := newForwarder(t, userResolver(up.URL), Options{DeviceRPS: 0.001, DeviceBurst: 2})
	ctx := context.Background()

	req := Request{Device: "cam1", Path: "hls/playlist.m3u8", Role: auth.RoleUser}
	for range 2 {
		_, err := f.Forward(ctx, req)
		require.NoError(t, err)
	}
	_, err := f.Forward(ctx, req)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 2, up.total())
}
