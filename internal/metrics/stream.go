// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors shared by node and relay.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamStartTotal tracks the outcome of pipeline launches.
	StreamStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrelay_stream_start_total",
		Help: "Total number of stream pipeline launches by platform and result",
	}, []string{"platform", "result"})

	// StreamStopTotal tracks teardown of the running pipeline.
	StreamStopTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrelay_stream_stop_total",
		Help: "Total number of stream teardowns by reason",
	}, []string{"reason"})

	// StreamStartupLatency tracks the time from launch until the playlist exists.
	StreamStartupLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camrelay_stream_startup_latency_seconds",
		Help:    "Time from pipeline launch to playlist availability",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 20, 30},
	}, []string{"platform"})

	// StreamActive is 1 while a pipeline is running on the node.
	StreamActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camrelay_stream_active",
		Help: "Whether a stream pipeline is currently running",
	})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrelay_proc_terminate_total",
		Help: "Signals sent to pipeline process groups by signal and outcome",
	}, []string{"signal", "outcome"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrelay_proc_wait_total",
		Help: "Pipeline process exits observed after termination",
	}, []string{"result"})
)

// IncStreamStart records a launch outcome.
func IncStreamStart(platform string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	StreamStartTotal.WithLabelValues(platform, result).Inc()
}

// IncStreamStop records a teardown.
func IncStreamStop(reason string) {
	StreamStopTotal.WithLabelValues(reason).Inc()
}

// ObserveStreamStartupLatency records how long the playlist took to appear.
func ObserveStreamStartupLatency(platform string, d time.Duration) {
	StreamStartupLatency.WithLabelValues(platform).Observe(d.Seconds())
}

// SetStreamActive flips the active gauge.
func SetStreamActive(active bool) {
	if active {
		StreamActive.Set(1)
		return
	}
	StreamActive.Set(0)
}

// IncProcTerminate counts a signal delivery attempt.
func IncProcTerminate(signal, outcome string) {
	procTerminateTotal.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait counts a reaped process.
func IncProcWait(result string) {
	procWaitTotal.WithLabelValues(result).Inc()
}
