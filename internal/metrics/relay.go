// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrelay_registrations_total",
		Help: "Device registrations by result",
	}, []string{"result"})

	resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrelay_resolve_total",
		Help: "Device address resolutions by outcome (ok, not_registered, expired, inactive, error)",
	}, []string{"outcome"})

	probeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camrelay_probe_duration_seconds",
		Help:    "Liveness probe latency",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"result"})

	forwardCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrelay_forward_cache_total",
		Help: "Segment cache lookups by result (hit, miss, bypass)",
	}, []string{"result"})

	forwardCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camrelay_forward_cache_evictions_total",
		Help: "Segment cache evictions",
	})

	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camrelay_upstream_duration_seconds",
		Help:    "Latency of fetches from camera nodes",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "result"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrelay_upstream_errors_total",
		Help: "Failed fetches from camera nodes by reason (timeout, error)",
	}, []string{"reason"})

	authFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrelay_auth_failures_total",
		Help: "Rejected requests by failure kind",
	}, []string{"kind"})
)

// IncRegistration counts a registration attempt.
func IncRegistration(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	registrationsTotal.WithLabelValues(result).Inc()
}

// IncResolve counts a resolve outcome.
func IncResolve(outcome string) {
	resolveTotal.WithLabelValues(outcome).Inc()
}

// ObserveProbe records one liveness probe.
func ObserveProbe(ok bool, d time.Duration) {
	result := "fail"
	if ok {
		result = "ok"
	}
	probeDuration.WithLabelValues(result).Observe(d.Seconds())
}

// IncForwardCache records a cache lookup result.
func IncForwardCache(result string) {
	forwardCacheTotal.WithLabelValues(result).Inc()
}

// IncForwardCacheEviction records an LRU eviction.
func IncForwardCacheEviction() {
	forwardCacheEvictions.Inc()
}

// ObserveUpstream records a fetch from a node.
func ObserveUpstream(kind, result string, d time.Duration) {
	upstreamDuration.WithLabelValues(kind, result).Observe(d.Seconds())
}

// IncUpstreamError counts a failed fetch.
func IncUpstreamError(reason string) {
	upstreamErrorsTotal.WithLabelValues(reason).Inc()
}

// IncAuthFailure counts a rejected credential.
func IncAuthFailure(kind string) {
	authFailuresTotal.WithLabelValues(kind).Inc()
}
