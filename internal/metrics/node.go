// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	selfRegistrationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrelay_node_registration_attempts_total",
		Help: "Registration attempts against the relay by result (ok, retry, failed)",
	}, []string{"result"})

	sensorReadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camrelay_node_sensor_reads_total",
		Help: "Sensor sample reads by source and result",
	}, []string{"source", "result"})
)

// IncSelfRegistration counts one registration attempt made by a node.
func IncSelfRegistration(result string) {
	selfRegistrationTotal.WithLabelValues(result).Inc()
}

// IncSensorRead counts one sample read from source (environment, cpu).
func IncSensorRead(source string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	sensorReadTotal.WithLabelValues(source, result).Inc()
}
