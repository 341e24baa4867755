// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	// #nosec G306 -- test fixture
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRelayDefaults(t *testing.T) {
	cfg, err := LoadRelay("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.RegistrationTTL)
	assert.Equal(t, 5*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 20*time.Second, cfg.ForwardTimeout)
	assert.Equal(t, 100, cfg.CacheSize)
	assert.Equal(t, "127.0.0.1:8081", cfg.InternalAddr)
}

func TestLoadRelayFileThenEnv(t *testing.T) {
	path := writeConfig(t, "relay.yaml", `
publicAddr: ":9090"
registrationTTL: 2m
cacheSize: 10
auth:
  providers:
    - name: google
      issuers: ["https://accounts.google.com"]
      hmacSecret: s3cret
      emailAllowlist: ["ops@example.com"]
      fixedRole: user
      revoked:
        - subject: alice
          revokedAt: 2025-01-02T03:04:05Z
`)
	t.Setenv("CAMRELAY_CACHE_SIZE", "42")

	cfg, err := LoadRelay(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.PublicAddr)
	assert.Equal(t, 2*time.Minute, cfg.RegistrationTTL)
	assert.Equal(t, 42, cfg.CacheSize, "environment wins over file")
	assert.Equal(t, 20*time.Second, cfg.ForwardTimeout, "defaults survive partial file")

	require.Len(t, cfg.Auth.Providers, 1)
	p := cfg.Auth.Providers[0]
	assert.Equal(t, "google", p.Name)
	assert.Equal(t, "user", p.FixedRole)
	require.Len(t, p.Revoked, 1)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), p.Revoked[0].RevokedAt.UTC())
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "relay.yaml", "cacheSize: 5\nbogus: true\n")
	_, err := LoadRelay(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoadRejectsNonYAML(t *testing.T) {
	path := writeConfig(t, "relay.json", "{}")
	_, err := LoadRelay(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadRelayValidation(t *testing.T) {
	path := writeConfig(t, "relay.yaml", `
internalAddr: ":8080"
cacheSize: 0
auth:
  providers:
    - name: broken
`)
	_, err := LoadRelay(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InternalAddr")
	assert.Contains(t, err.Error(), "CacheSize")
	assert.Contains(t, err.Error(), "hmacSecret or publicKeyFile")
}

func TestLoadRelayMissingPublicKeyFile(t *testing.T) {
	path := writeConfig(t, "relay.yaml", `
auth:
  providers:
    - name: google
      publicKeyFile: /nonexistent/key.pem
      revoked:
        - subject: ""
          revokedAt: 2025-01-01T00:00:00Z
`)
	_, err := LoadRelay(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Auth.Providers[0].PublicKeyFile")
	assert.Contains(t, err.Error(), "Auth.Providers[0].Revoked[0].Subject")
}

func TestLoadRelayHMACFromEnv(t *testing.T) {
	t.Setenv("CAMRELAY_AUTH_HMAC_SECRET", "topsecret")
	t.Setenv("CAMRELAY_AUTH_ISSUERS", "https://a.example, https://b.example")

	cfg, err := LoadRelay("")
	require.NoError(t, err)
	require.Len(t, cfg.Auth.Providers, 1)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Auth.Providers[0].Issuers)
	assert.Equal(t, "role", cfg.Auth.Providers[0].RoleClaim)
}

func TestLoadNodeTestStreamFlag(t *testing.T) {
	t.Setenv("CAMRELAY_TEST_STREAM", "true")
	t.Setenv("CAMRELAY_STREAM_BITRATE", "800000")

	cfg, err := LoadNode("")
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Stream.Platform)
	assert.Equal(t, 800000, cfg.Stream.Bitrate)
	assert.Equal(t, 24, cfg.Stream.Framerate)
	assert.Equal(t, 60*time.Second, cfg.Stream.IdleTimeout)
}

func TestLoadNodeRegistrationRequiresIdentity(t *testing.T) {
	t.Setenv("CAMRELAY_RELAY_URL", "http://127.0.0.1:8081")

	_, err := LoadNode("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Name")
	assert.Contains(t, err.Error(), "AdvertiseURL")

	t.Setenv("CAMRELAY_NODE_NAME", "cam1")
	t.Setenv("CAMRELAY_NODE_ADVERTISE_URL", "http://10.0.0.5:8000")
	cfg, err := LoadNode("")
	require.NoError(t, err)
	assert.Equal(t, "cam1", cfg.Name)
}

func TestParseHelpersFallBack(t *testing.T) {
	t.Setenv("CAMRELAY_X_INT", "nope")
	t.Setenv("CAMRELAY_X_DUR", "forever")
	t.Setenv("CAMRELAY_X_BOOL", "maybe")
	t.Setenv("CAMRELAY_X_LIST", " a, ,b ")

	assert.Equal(t, 7, ParseInt("CAMRELAY_X_INT", 7))
	assert.Equal(t, time.Second, ParseDuration("CAMRELAY_X_DUR", time.Second))
	assert.True(t, ParseBool("CAMRELAY_X_BOOL", true))
	assert.Equal(t, []string{"a", "b"}, ParseList("CAMRELAY_X_LIST", nil))
	assert.Equal(t, "fallback", ParseString("CAMRELAY_X_UNSET", "fallback"))
}
