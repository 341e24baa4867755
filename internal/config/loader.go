// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const envPrefix = "CAMRELAY_"

// LoadNode loads node configuration: defaults, then the optional YAML file,
// then CAMRELAY_* environment variables, then validation.
func LoadNode(path string) (NodeConfig, error) {
	cfg := DefaultNode()
	if err := loadFile(path, &cfg); err != nil {
		return cfg, err
	}
	mergeNodeEnv(&cfg)
	if err := ValidateNode(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadRelay loads relay configuration with the same precedence as LoadNode.
func LoadRelay(path string) (RelayConfig, error) {
	cfg := DefaultRelay()
	if err := loadFile(path, &cfg); err != nil {
		return cfg, err
	}
	mergeRelayEnv(&cfg)
	if err := ValidateRelay(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile decodes a YAML file over dst. Keys absent from the file keep
// the values already in dst. Unknown keys are rejected.
func loadFile(path string, dst any) error {
	if path == "" {
		return nil
	}
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func mergeTelemetryEnv(t *TelemetryConfig) {
	t.Enabled = ParseBool(envPrefix+"TELEMETRY_ENABLED", t.Enabled)
	t.Exporter = ParseString(envPrefix+"TELEMETRY_EXPORTER", t.Exporter)
	t.Endpoint = ParseString(envPrefix+"TELEMETRY_ENDPOINT", t.Endpoint)
	t.SamplingRate = ParseFloat(envPrefix+"TELEMETRY_SAMPLING_RATE", t.SamplingRate)
	t.Environment = ParseString(envPrefix+"TELEMETRY_ENVIRONMENT", t.Environment)
}

func mergeNodeEnv(cfg *NodeConfig) {
	cfg.Name = ParseString(envPrefix+"NODE_NAME", cfg.Name)
	cfg.ListenAddr = ParseString(envPrefix+"NODE_LISTEN_ADDR", cfg.ListenAddr)
	cfg.AdvertiseURL = ParseString(envPrefix+"NODE_ADVERTISE_URL", cfg.AdvertiseURL)
	cfg.LogLevel = ParseString(envPrefix+"LOG_LEVEL", cfg.LogLevel)

	s := &cfg.Stream
	s.Platform = ParseString(envPrefix+"STREAM_PLATFORM", s.Platform)
	if ParseBool(envPrefix+"TEST_STREAM", false) {
		s.Platform = "test"
	}
	s.BaseDir = ParseString(envPrefix+"STREAM_BASE_DIR", s.BaseDir)
	s.FFmpegPath = ParseString(envPrefix+"FFMPEG_PATH", s.FFmpegPath)
	s.RpicamPath = ParseString(envPrefix+"RPICAM_PATH", s.RpicamPath)
	s.Device = ParseString(envPrefix+"STREAM_DEVICE", s.Device)
	s.IdleTimeout = ParseDuration(envPrefix+"STREAM_IDLE_TIMEOUT", s.IdleTimeout)
	s.StartTimeout = ParseDuration(envPrefix+"STREAM_START_TIMEOUT", s.StartTimeout)
	s.PlaylistWait = ParseDuration(envPrefix+"STREAM_PLAYLIST_WAIT", s.PlaylistWait)
	s.StopGrace = ParseDuration(envPrefix+"STREAM_STOP_GRACE", s.StopGrace)
	s.Bitrate = ParseInt(envPrefix+"STREAM_BITRATE", s.Bitrate)
	s.Framerate = ParseInt(envPrefix+"STREAM_FRAMERATE", s.Framerate)

	r := &cfg.Registration
	r.RelayURL = ParseString(envPrefix+"RELAY_URL", r.RelayURL)
	r.Interval = ParseDuration(envPrefix+"REGISTER_INTERVAL", r.Interval)

	cfg.Sensor.Mock = ParseBool(envPrefix+"MOCK_SENSOR", cfg.Sensor.Mock)
	cfg.Sensor.ReadingPath = ParseString(envPrefix+"SENSOR_READING_PATH", cfg.Sensor.ReadingPath)

	mergeTelemetryEnv(&cfg.Telemetry)
}

func mergeRelayEnv(cfg *RelayConfig) {
	cfg.PublicAddr = ParseString(envPrefix+"RELAY_PUBLIC_ADDR", cfg.PublicAddr)
	cfg.InternalAddr = ParseString(envPrefix+"RELAY_INTERNAL_ADDR", cfg.InternalAddr)
	cfg.DatabasePath = ParseString(envPrefix+"DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = ParseString(envPrefix+"LOG_LEVEL", cfg.LogLevel)
	cfg.RegistrationTTL = ParseDuration(envPrefix+"REGISTRATION_TTL", cfg.RegistrationTTL)
	cfg.ProbeTimeout = ParseDuration(envPrefix+"PROBE_TIMEOUT", cfg.ProbeTimeout)
	cfg.ForwardTimeout = ParseDuration(envPrefix+"FORWARD_TIMEOUT", cfg.ForwardTimeout)
	cfg.CacheSize = ParseInt(envPrefix+"CACHE_SIZE", cfg.CacheSize)
	cfg.DeviceRPS = ParseFloat(envPrefix+"DEVICE_RPS", cfg.DeviceRPS)
	cfg.DeviceBurst = ParseInt(envPrefix+"DEVICE_BURST", cfg.DeviceBurst)
	cfg.CORSOrigins = ParseList(envPrefix+"CORS_ORIGINS", cfg.CORSOrigins)
	cfg.RateLimit.Enabled = ParseBool(envPrefix+"RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.Requests = ParseInt(envPrefix+"RATE_LIMIT_REQUESTS", cfg.RateLimit.Requests)
	cfg.RateLimit.Window = ParseDuration(envPrefix+"RATE_LIMIT_WINDOW", cfg.RateLimit.Window)

	// A single shared-secret provider can be configured without a file.
	if secret := ParseString(envPrefix+"AUTH_HMAC_SECRET", ""); secret != "" && len(cfg.Auth.Providers) == 0 {
		cfg.Auth.Providers = append(cfg.Auth.Providers, ProviderConfig{
			Name:       "default",
			Issuers:    ParseList(envPrefix+"AUTH_ISSUERS", nil),
			Audience:   ParseString(envPrefix+"AUTH_AUDIENCE", ""),
			HMACSecret: secret,
			RoleClaim:  "role",
		})
	}

	mergeTelemetryEnv(&cfg.Telemetry)
}
