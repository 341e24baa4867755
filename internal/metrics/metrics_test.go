// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStreamCounters(t *testing.T) {
	before := testutil.ToFloat64(StreamStartTotal.WithLabelValues("test", "success"))
	IncStreamStart("test", true)
	assert.Equal(t, before+1, testutil.ToFloat64(StreamStartTotal.WithLabelValues("test", "success")))

	SetStreamActive(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(StreamActive))
	SetStreamActive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(StreamActive))
}

func TestRelayCounters(t *testing.T) {
	before := testutil.ToFloat64(forwardCacheTotal.WithLabelValues("hit"))
	IncForwardCache("hit")
	IncForwardCache("hit")
	assert.Equal(t, before+2, testutil.ToFloat64(forwardCacheTotal.WithLabelValues("hit")))

	beforeAuth := testutil.ToFloat64(authFailuresTotal.WithLabelValues("expired"))
	IncAuthFailure("expired")
	assert.Equal(t, beforeAuth+1, testutil.ToFloat64(authFailuresTotal.WithLabelValues("expired")))

	// Histograms only need to accept observations without panicking.
	ObserveProbe(true, 10*time.Millisecond)
	ObserveUpstream("segment", "ok", 20*time.Millisecond)
}
