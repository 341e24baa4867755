// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"

	"github.com/ManuGH/camrelay/internal/validate"
)

var (
	platforms = []string{"auto", "test", "desktop", "raspberrypi"}
	exporters = []string{"grpc", "http"}
	roles     = []string{"user", "admin"}
)

// ValidateNode checks a fully merged node configuration.
func ValidateNode(cfg NodeConfig) error {
	v := validate.New()

	v.ListenAddr("ListenAddr", cfg.ListenAddr)
	v.OneOf("Stream.Platform", cfg.Stream.Platform, platforms)
	v.NotEmpty("Stream.BaseDir", cfg.Stream.BaseDir)
	v.NotEmpty("Stream.FFmpegPath", cfg.Stream.FFmpegPath)
	v.PositiveDuration("Stream.IdleTimeout", cfg.Stream.IdleTimeout)
	v.PositiveDuration("Stream.StartTimeout", cfg.Stream.StartTimeout)
	v.PositiveDuration("Stream.PlaylistWait", cfg.Stream.PlaylistWait)
	v.PositiveDuration("Stream.StopGrace", cfg.Stream.StopGrace)
	v.Range("Stream.SegmentSeconds", cfg.Stream.SegmentSeconds, 1, 60)
	v.Range("Stream.ListSize", cfg.Stream.ListSize, 1, 1000)
	v.Positive("Stream.Bitrate", cfg.Stream.Bitrate)
	v.Range("Stream.Framerate", cfg.Stream.Framerate, 1, 120)
	v.Positive("Stream.Width", cfg.Stream.Width)
	v.Positive("Stream.Height", cfg.Stream.Height)
	v.Range("Sensor.Samples", cfg.Sensor.Samples, 1, 100)

	if cfg.Registration.RelayURL != "" {
		v.URL("Registration.RelayURL", cfg.Registration.RelayURL, []string{"http", "https"})
		v.NotEmpty("Name", cfg.Name)
		v.URL("AdvertiseURL", cfg.AdvertiseURL, []string{"http", "https"})
		v.PositiveDuration("Registration.Interval", cfg.Registration.Interval)
		v.PositiveDuration("Registration.Timeout", cfg.Registration.Timeout)
	}

	validateTelemetry(v, cfg.Telemetry)
	return v.Err()
}

// ValidateRelay checks a fully merged relay configuration.
func ValidateRelay(cfg RelayConfig) error {
	v := validate.New()

	v.ListenAddr("PublicAddr", cfg.PublicAddr)
	v.ListenAddr("InternalAddr", cfg.InternalAddr)
	if cfg.PublicAddr == cfg.InternalAddr {
		v.AddError("InternalAddr", "internal listener must differ from the public listener", cfg.InternalAddr)
	}
	v.NotEmpty("DatabasePath", cfg.DatabasePath)
	v.PositiveDuration("RegistrationTTL", cfg.RegistrationTTL)
	v.PositiveDuration("ProbeTimeout", cfg.ProbeTimeout)
	v.PositiveDuration("ForwardTimeout", cfg.ForwardTimeout)
	v.Range("CacheSize", cfg.CacheSize, 1, 100000)
	if cfg.DeviceRPS < 0 {
		v.AddError("DeviceRPS", "value cannot be negative", cfg.DeviceRPS)
	}
	if cfg.DeviceRPS > 0 {
		v.Positive("DeviceBurst", cfg.DeviceBurst)
	}
	if cfg.RateLimit.Enabled {
		v.Positive("RateLimit.Requests", cfg.RateLimit.Requests)
		v.PositiveDuration("RateLimit.Window", cfg.RateLimit.Window)
	}

	for i, p := range cfg.Auth.Providers {
		field := fmt.Sprintf("Auth.Providers[%d]", i)
		v.NotEmpty(field+".Name", p.Name)
		switch {
		case p.HMACSecret == "" && p.PublicKeyFile == "":
			v.AddError(field, "one of hmacSecret or publicKeyFile is required", p.Name)
		case p.HMACSecret != "" && p.PublicKeyFile != "":
			v.AddError(field, "hmacSecret and publicKeyFile are mutually exclusive", p.Name)
		}
		if p.PublicKeyFile != "" {
			_, err := os.Stat(p.PublicKeyFile)
			v.Custom(field+".PublicKeyFile", p.PublicKeyFile, err)
		}
		if p.FixedRole != "" {
			v.OneOf(field+".FixedRole", p.FixedRole, roles)
		}
		for j, r := range p.Revoked {
			v.NotEmpty(fmt.Sprintf("%s.Revoked[%d].Subject", field, j), r.Subject)
		}
	}

	validateTelemetry(v, cfg.Telemetry)
	return v.Err()
}

func validateTelemetry(v *validate.Validator, t TelemetryConfig) {
	if !t.Enabled {
		return
	}
	v.OneOf("Telemetry.Exporter", t.Exporter, exporters)
	v.NotEmpty("Telemetry.Endpoint", t.Endpoint)
}
