// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"errors"
	"net/http"
)

// Kind classifies an authentication failure.
type Kind string

const (
	KindMissing          Kind = "missing"
	KindExpired          Kind = "expired"
	KindRevoked          Kind = "revoked"
	KindMalformed        Kind = "malformed"
	KindWrongIssuer      Kind = "wrong_issuer"
	KindNotAllowlisted   Kind = "not_allowlisted"
	KindInsufficientRole Kind = "insufficient_role"
)

// Error is a failed verification. errors.Is matches on Kind, so
// errors.Is(err, ErrExpired) holds for any provider's expiry.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

var (
	ErrMissingCredential = &Error{Kind: KindMissing}
	ErrExpired           = &Error{Kind: KindExpired}
	ErrRevoked           = &Error{Kind: KindRevoked}
	ErrMalformed         = &Error{Kind: KindMalformed}
	ErrWrongIssuer       = &Error{Kind: KindWrongIssuer}
	ErrNotAllowlisted    = &Error{Kind: KindNotAllowlisted}
	ErrInsufficientRole  = &Error{Kind: KindInsufficientRole}

	// ErrNoVerifiers is wrapped when the broker has nothing to verify with.
	ErrNoVerifiers = errors.New("no identity providers configured")
)

func (e *Error) Error() string {
	msg := "auth: " + e.Detail()
	if e.Provider != "" {
		msg = "auth: " + e.Provider + ": " + e.Detail()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Detail is the client-safe message for the failure.
func (e *Error) Detail() string {
	switch e.Kind {
	case KindMissing:
		return "missing bearer credential"
	case KindExpired:
		return "token expired"
	case KindRevoked:
		return "token revoked"
	case KindWrongIssuer:
		return "wrong issuer"
	case KindNotAllowlisted:
		return "unauthorized"
	case KindInsufficientRole:
		return "forbidden"
	default:
		return "invalid token"
	}
}

// HTTPStatus is 401 for credential problems and 403 for role problems.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotAllowlisted, KindInsufficientRole:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

func newError(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}
