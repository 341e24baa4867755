// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads node and relay configuration.
// Precedence is environment > YAML file > defaults.
package config

import "time"

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// NodeConfig is the configuration of a camera node.
type NodeConfig struct {
	// Name is the logical device name announced to the relay.
	Name       string `yaml:"name"`
	ListenAddr string `yaml:"listenAddr"`
	// AdvertiseURL is the base URL the relay uses to reach this node.
	AdvertiseURL string `yaml:"advertiseUrl"`
	LogLevel     string `yaml:"logLevel"`

	Stream       StreamConfig       `yaml:"stream"`
	Registration RegistrationConfig `yaml:"registration"`
	Sensor       SensorConfig       `yaml:"sensor"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

// StreamConfig configures the stream supervisor and codec launcher.
type StreamConfig struct {
	// Platform is auto, test, desktop or raspberrypi.
	Platform   string `yaml:"platform"`
	BaseDir    string `yaml:"baseDir"`
	FFmpegPath string `yaml:"ffmpegPath"`
	RpicamPath string `yaml:"rpicamPath"`
	// Device is the capture device for the desktop variant.
	Device string `yaml:"device"`

	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	StartTimeout time.Duration `yaml:"startTimeout"`
	PlaylistWait time.Duration `yaml:"playlistWait"`
	StopGrace    time.Duration `yaml:"stopGrace"`

	SegmentSeconds int `yaml:"segmentSeconds"`
	ListSize       int `yaml:"listSize"`
	Bitrate        int `yaml:"bitrate"`
	Framerate      int `yaml:"framerate"`
	Width          int `yaml:"width"`
	Height         int `yaml:"height"`
}

// RegistrationConfig controls self-registration with the relay.
type RegistrationConfig struct {
	// RelayURL is the relay internal listener; empty disables registration.
	RelayURL string        `yaml:"relayUrl"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SensorConfig controls the environment sensor endpoint.
type SensorConfig struct {
	Mock        bool   `yaml:"mock"`
	Samples     int    `yaml:"samples"`
	ThermalPath string `yaml:"thermalPath"`
	// ReadingPath is a file holding "temperature humidity" written by an
	// external DHT reader.
	ReadingPath string `yaml:"readingPath"`
}

// RelayConfig is the configuration of the central relay.
type RelayConfig struct {
	PublicAddr   string `yaml:"publicAddr"`
	InternalAddr string `yaml:"internalAddr"`
	DatabasePath string `yaml:"databasePath"`
	LogLevel     string `yaml:"logLevel"`

	RegistrationTTL time.Duration `yaml:"registrationTTL"`
	ProbeTimeout    time.Duration `yaml:"probeTimeout"`
	ForwardTimeout  time.Duration `yaml:"forwardTimeout"`
	CacheSize       int           `yaml:"cacheSize"`

	// DeviceRPS limits forwards per device; zero disables the limiter.
	DeviceRPS   float64 `yaml:"deviceRPS"`
	DeviceBurst int     `yaml:"deviceBurst"`

	// CORSOrigins lists browser origins allowed to call the public listener.
	CORSOrigins []string `yaml:"corsOrigins"`

	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// RateLimitConfig configures the per-IP limiter on the public listener.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// AuthConfig lists identity providers in verification order.
type AuthConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes one JWT issuer family.
type ProviderConfig struct {
	Name     string   `yaml:"name"`
	Issuers  []string `yaml:"issuers"`
	Audience string   `yaml:"audience"`

	// Exactly one key source is required.
	HMACSecret    string `yaml:"hmacSecret"`
	PublicKeyFile string `yaml:"publicKeyFile"`

	EmailAllowlist []string `yaml:"emailAllowlist"`
	// FixedRole grants this role to every valid token; otherwise RoleClaim is read.
	FixedRole string `yaml:"fixedRole"`
	RoleClaim string `yaml:"roleClaim"`

	Revoked []RevocationConfig `yaml:"revoked"`
}

// RevocationConfig revokes every token of Subject issued before RevokedAt.
type RevocationConfig struct {
	Subject   string    `yaml:"subject"`
	RevokedAt time.Time `yaml:"revokedAt"`
}
