// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camrelay/internal/config"
)

var (
	testSecret = []byte("0123456789abcdef0123456789abcdef")
	testNow    = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return tok
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   "https://issuer.example",
		"sub":   "user-1",
		"email": "viewer@example.com",
		"role":  "user",
		"iat":   testNow.Add(-time.Minute).Unix(),
		"exp":   testNow.Add(time.Hour).Unix(),
	}
}

func newHMACVerifier(t *testing.T, mutate func(*JWTConfig)) *JWTVerifier {
	t.Helper()
	cfg := JWTConfig{
		Name:        "firebase",
		Issuers:     []string{"https://issuer.example"},
		HMACSecret:  testSecret,
		Revocations: NewRevocationList(),
		Now:         func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	v, err := NewJWTVerifier(cfg)
	require.NoError(t, err)
	return v
}

func TestJWTVerifier(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*JWTConfig)
		claims   func(jwt.MapClaims)
		token    string
		wantRole Role
		wantErr  error
	}{
		{name: "role claim", wantRole: RoleUser},
		{name: "admin claim", claims: func(c jwt.MapClaims) { c["role"] = "admin" }, wantRole: RoleAdmin},
		{name: "expired", claims: func(c jwt.MapClaims) { c["exp"] = testNow.Add(-time.Second).Unix() }, wantErr: ErrExpired},
		{name: "missing exp", claims: func(c jwt.MapClaims) { delete(c, "exp") }, wantErr: ErrMalformed},
		{name: "garbage", token: "not-a-jwt", wantErr: ErrMalformed},
		{name: "wrong issuer", claims: func(c jwt.MapClaims) { c["iss"] = "https://evil.example" }, wantErr: ErrWrongIssuer},
		{name: "missing role", claims: func(c jwt.MapClaims) { delete(c, "role") }, wantErr: ErrInsufficientRole},
		{
			name:    "revoked",
			mutate:  func(c *JWTConfig) { c.Revocations.Revoke("user-1", testNow.Add(-time.Second)) },
			wantErr: ErrRevoked,
		},
		{
			name:     "issued after revocation",
			mutate:   func(c *JWTConfig) { c.Revocations.Revoke("user-1", testNow.Add(-time.Hour)) },
			wantRole: RoleUser,
		},
		{
			name:    "not allowlisted",
			mutate:  func(c *JWTConfig) { c.EmailAllowlist = []string{"owner@example.com"} },
			wantErr: ErrNotAllowlisted,
		},
		{
			name:     "allowlisted with fixed role",
			mutate:   func(c *JWTConfig) { c.EmailAllowlist = []string{"viewer@example.com"}; c.FixedRole = RoleUser },
			claims:   func(c jwt.MapClaims) { delete(c, "role") },
			wantRole: RoleUser,
		},
		{
			name:    "audience mismatch",
			mutate:  func(c *JWTConfig) { c.Audience = "camrelay" },
			claims:  func(c jwt.MapClaims) { c["aud"] = "other" },
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newHMACVerifier(t, tt.mutate)
			token := tt.token
			if token == "" {
				claims := baseClaims()
				if tt.claims != nil {
					tt.claims(claims)
				}
				token = sign(t, claims)
			}

			role, err := v.Verify(context.Background(), token)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, RoleNone, role)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, role)
		})
	}
}

func TestJWTVerifierRejectsAlgorithmSwitch(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v, err := NewJWTVerifier(JWTConfig{
		Name:      "google",
		PublicKey: &key.PublicKey,
		FixedRole: RoleUser,
		Now:       func() time.Time { return testNow },
	})
	require.NoError(t, err)

	rsaToken, err := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims()).SignedString(key)
	require.NoError(t, err)
	role, err := v.Verify(context.Background(), rsaToken)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, role)

	_, err = v.Verify(context.Background(), sign(t, baseClaims()))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifiersFromConfig(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	keyFile := filepath.Join(t.TempDir(), "google.pem")
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	verifiers, err := VerifiersFromConfig([]config.ProviderConfig{
		{
			Name:       "firebase",
			Issuers:    []string{"https://issuer.example"},
			HMACSecret: string(testSecret),
			Revoked:    []config.RevocationConfig{{Subject: "user-1", RevokedAt: testNow}},
		},
		{Name: "google", PublicKeyFile: keyFile, FixedRole: "user", EmailAllowlist: []string{"viewer@example.com"}},
	}, func() time.Time { return testNow })
	require.NoError(t, err)
	require.Len(t, verifiers, 2)
	assert.Equal(t, "firebase", verifiers[0].Name())
	assert.Equal(t, "google", verifiers[1].Name())

	_, err = verifiers[0].Verify(context.Background(), sign(t, baseClaims()))
	assert.ErrorIs(t, err, ErrRevoked)

	_, err = VerifiersFromConfig([]config.ProviderConfig{{Name: "bad", FixedRole: "root", HMACSecret: "x"}}, nil)
	assert.Error(t, err)
	_, err = VerifiersFromConfig([]config.ProviderConfig{{Name: "nokey"}}, nil)
	assert.Error(t, err)
}
