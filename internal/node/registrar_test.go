// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelay struct {
	srv *httptest.Server

	mu       sync.Mutex
	attempts int
	failures int
	status   int
	bodies   []map[string]string
}

func newFakeRelay(t *testing.T, failures, status int) *fakeRelay {
	t.Helper()
	f := &fakeRelay{failures: failures, status: status}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.attempts++
		if r.URL.Path != "/register" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.bodies = append(f.bodies, body)
		if f.attempts <= f.failures {
			w.WriteHeader(f.status)
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRelay) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeRelay) body(i int) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[i]
}

func newTestRegistrar(relayURL string, interval time.Duration) *Registrar {
	r := NewRegistrar(RegistrarOptions{
		RelayURL:     relayURL,
		Name:         "cam1",
		AdvertiseURL: "http://10.0.0.7:8000",
		Interval:     interval,
		Timeout:      time.Second,
	})
	r.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return r
}

func TestRegisterPostsNameAndURL(t *testing.T) {
	relay := newFakeRelay(t, 0, 0)
	r := newTestRegistrar(relay.srv.URL+"/", time.Minute)

	require.NoError(t, r.Register(context.Background()))
	assert.Equal(t, 1, relay.count())
	assert.Equal(t, map[string]string{"name": "cam1", "url": "http://10.0.0.7:8000"}, relay.body(0))
}

func TestRegisterRetriesTransientFailures(t *testing.T) {
	relay := newFakeRelay(t, 2, http.StatusServiceUnavailable)
	r := newTestRegistrar(relay.srv.URL, time.Minute)

	require.NoError(t, r.Register(context.Background()))
	assert.Equal(t, 3, relay.count())
}

func TestRegisterStopsOnRejection(t *testing.T) {
	relay := newFakeRelay(t, 100, http.StatusBadRequest)
	r := newTestRegistrar(relay.srv.URL, time.Minute)

	err := r.Register(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, 1, relay.count())
}

func TestRegisterGivesUpAfterInterval(t *testing.T) {
	relay := newFakeRelay(t, 1<<30, http.StatusBadGateway)
	r := newTestRegistrar(relay.srv.URL, 50*time.Millisecond)

	require.Error(t, r.Register(context.Background()))
	assert.Greater(t, relay.count(), 1)
}

func TestRunRepeatsUntilCancelled(t *testing.T) {
	relay := newFakeRelay(t, 0, 0)
	r := newTestRegistrar(relay.srv.URL, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return relay.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
