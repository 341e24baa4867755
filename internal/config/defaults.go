// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultNode returns the node configuration used when nothing is set.
func DefaultNode() NodeConfig {
	return NodeConfig{
		ListenAddr: ":8000",
		LogLevel:   "info",
		Stream: StreamConfig{
			Platform:       "auto",
			BaseDir:        filepath.Join(os.TempDir(), "camrelay"),
			FFmpegPath:     "ffmpeg",
			RpicamPath:     "rpicam-vid",
			IdleTimeout:    60 * time.Second,
			StartTimeout:   30 * time.Second,
			PlaylistWait:   10 * time.Second,
			StopGrace:      5 * time.Second,
			SegmentSeconds: 10,
			ListSize:       60,
			Bitrate:        500000,
			Framerate:      24,
			Width:          1920,
			Height:         1080,
		},
		Registration: RegistrationConfig{
			Interval: time.Minute,
			Timeout:  10 * time.Second,
		},
		Sensor: SensorConfig{
			Samples:     5,
			ThermalPath: "/sys/class/thermal/thermal_zone0/temp",
		},
		Telemetry: defaultTelemetry(),
	}
}

// DefaultRelay returns the relay configuration used when nothing is set.
func DefaultRelay() RelayConfig {
	return RelayConfig{
		PublicAddr:      ":8080",
		InternalAddr:    "127.0.0.1:8081",
		DatabasePath:    "camrelay.db",
		LogLevel:        "info",
		RegistrationTTL: 5 * time.Minute,
		ProbeTimeout:    5 * time.Second,
		ForwardTimeout:  20 * time.Second,
		CacheSize:       100,
		DeviceBurst:     20,
		CORSOrigins:     []string{"*"},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 600,
			Window:   time.Minute,
		},
		Telemetry: defaultTelemetry(),
	}
}

func defaultTelemetry() TelemetryConfig {
	return TelemetryConfig{
		Exporter:     "grpc",
		Endpoint:     "localhost:4317",
		SamplingRate: 1.0,
		Environment:  "production",
	}
}
