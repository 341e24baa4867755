// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ManuGH/camrelay/internal/config"
)

const defaultRoleClaim = "role"

var (
	hmacMethods = []string{"HS256", "HS384", "HS512"}
	rsaMethods  = []string{"RS256", "RS384", "RS512"}
)

// JWTConfig configures one JWT-issuing identity provider.
type JWTConfig struct {
	Name     string
	Issuers  []string
	Audience string

	// Exactly one of HMACSecret and PublicKey is set.
	HMACSecret []byte
	PublicKey  *rsa.PublicKey

	EmailAllowlist []string
	// FixedRole is granted to every valid token when set. Otherwise the
	// role is read from RoleClaim.
	FixedRole Role
	RoleClaim string

	Revocations *RevocationList
	// Now is the verification clock; nil means time.Now.
	Now func() time.Time
}

// JWTVerifier verifies bearer tokens issued by one provider.
type JWTVerifier struct {
	cfg     JWTConfig
	methods []string
}

// NewJWTVerifier validates cfg and builds a verifier.
func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	if cfg.Name == "" {
		return nil, errors.New("auth: provider name is required")
	}
	v := &JWTVerifier{cfg: cfg}
	switch {
	case len(cfg.HMACSecret) > 0 && cfg.PublicKey != nil:
		return nil, fmt.Errorf("auth: provider %s: both hmac secret and public key set", cfg.Name)
	case len(cfg.HMACSecret) > 0:
		v.methods = hmacMethods
	case cfg.PublicKey != nil:
		v.methods = rsaMethods
	default:
		return nil, fmt.Errorf("auth: provider %s: no verification key", cfg.Name)
	}
	if v.cfg.RoleClaim == "" {
		v.cfg.RoleClaim = defaultRoleClaim
	}
	if v.cfg.Now == nil {
		v.cfg.Now = time.Now
	}
	return v, nil
}

// Name identifies the provider in logs and errors.
func (v *JWTVerifier) Name() string { return v.cfg.Name }

// Verify checks signature, expiry, issuer, revocation and allowlist, then
// derives the role.
func (v *JWTVerifier) Verify(_ context.Context, token string) (Role, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithTimeFunc(v.cfg.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, v.key, opts...); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return RoleNone, newError(KindExpired, v.cfg.Name, nil)
		}
		return RoleNone, newError(KindMalformed, v.cfg.Name, err)
	}

	issuer, _ := claims.GetIssuer()
	if len(v.cfg.Issuers) > 0 && !slices.Contains(v.cfg.Issuers, issuer) {
		return RoleNone, newError(KindWrongIssuer, v.cfg.Name, fmt.Errorf("issuer %q", issuer))
	}

	subject, _ := claims.GetSubject()
	var issuedAt time.Time
	if iat, _ := claims.GetIssuedAt(); iat != nil {
		issuedAt = iat.Time
	}
	if v.cfg.Revocations.Revoked(subject, issuedAt) {
		return RoleNone, newError(KindRevoked, v.cfg.Name, nil)
	}

	if len(v.cfg.EmailAllowlist) > 0 {
		email, _ := claims["email"].(string)
		if !slices.Contains(v.cfg.EmailAllowlist, email) {
			return RoleNone, newError(KindNotAllowlisted, v.cfg.Name, nil)
		}
	}

	if v.cfg.FixedRole != RoleNone {
		return v.cfg.FixedRole, nil
	}
	raw, _ := claims[v.cfg.RoleClaim].(string)
	role, err := ParseRole(raw)
	if err != nil {
		return RoleNone, newError(KindInsufficientRole, v.cfg.Name, err)
	}
	return role, nil
}

func (v *JWTVerifier) key(*jwt.Token) (any, error) {
	if v.cfg.PublicKey != nil {
		return v.cfg.PublicKey, nil
	}
	return v.cfg.HMACSecret, nil
}

// VerifiersFromConfig builds verifiers in configuration order.
func VerifiersFromConfig(providers []config.ProviderConfig, now func() time.Time) ([]Verifier, error) {
	verifiers := make([]Verifier, 0, len(providers))
	for _, p := range providers {
		cfg := JWTConfig{
			Name:           p.Name,
			Issuers:        p.Issuers,
			Audience:       p.Audience,
			EmailAllowlist: p.EmailAllowlist,
			RoleClaim:      p.RoleClaim,
			Revocations:    NewRevocationList(),
			Now:            now,
		}
		if p.HMACSecret != "" {
			cfg.HMACSecret = []byte(p.HMACSecret)
		}
		if p.PublicKeyFile != "" {
			pem, err := os.ReadFile(p.PublicKeyFile)
			if err != nil {
				return nil, fmt.Errorf("auth: provider %s: read public key: %w", p.Name, err)
			}
			key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
			if err != nil {
				return nil, fmt.Errorf("auth: provider %s: parse public key: %w", p.Name, err)
			}
			cfg.PublicKey = key
		}
		if p.FixedRole != "" {
			role, err := ParseRole(p.FixedRole)
			if err != nil {
				return nil, fmt.Errorf("auth: provider %s: %w", p.Name, err)
			}
			cfg.FixedRole = role
		}
		for _, r := range p.Revoked {
			cfg.Revocations.Revoke(r.Subject, r.RevokedAt)
		}

		v, err := NewJWTVerifier(cfg)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, v)
	}
	return verifiers, nil
}
