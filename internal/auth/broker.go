// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camrelay/internal/log"
	"github.com/ManuGH/camrelay/internal/metrics"
)

// Verifier checks one bearer token against one identity provider.
type Verifier interface {
	Name() string
	Verify(ctx context.Context, token string) (Role, error)
}

// Authorizer maps request headers to a role.
type Authorizer interface {
	Authorize(ctx context.Context, h http.Header) (Role, error)
}

// Broker tries every verifier in order. Any success yields the highest role
// among successes; if all fail, the first verifier's failure is returned.
type Broker struct {
	verifiers []Verifier
	logger    zerolog.Logger
}

// NewBroker returns a broker over verifiers, tried in the given order.
func NewBroker(verifiers ...Verifier) *Broker {
	return &Broker{
		verifiers: verifiers,
		logger:    log.WithComponent("auth"),
	}
}

// Authorize extracts the bearer token from h and verifies it.
func (b *Broker) Authorize(ctx context.Context, h http.Header) (Role, error) {
	token, ok := ExtractBearer(h)
	if !ok {
		metrics.IncAuthFailure(string(KindMissing))
		return RoleNone, newError(KindMissing, "", nil)
	}
	if len(b.verifiers) == 0 {
		metrics.IncAuthFailure(string(KindMalformed))
		return RoleNone, newError(KindMalformed, "", ErrNoVerifiers)
	}

	best := RoleNone
	var first error
	for _, v := range b.verifiers {
		role, err := v.Verify(ctx, token)
		if err != nil {
			if first == nil {
				first = asAuthError(v.Name(), err)
			}
			continue
		}
		best = max(best, role)
	}
	if best != RoleNone {
		return best, nil
	}

	var aerr *Error
	if errors.As(first, &aerr) {
		metrics.IncAuthFailure(string(aerr.Kind))
	}
	logger := log.WithContext(ctx, b.logger)
	logger.Debug().Err(first).Msg("credential rejected")
	return RoleNone, first
}

func asAuthError(provider string, err error) error {
	var aerr *Error
	if errors.As(err, &aerr) {
		return err
	}
	return newError(KindMalformed, provider, err)
}
