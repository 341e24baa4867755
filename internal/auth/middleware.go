// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"net/http"
)

type ctxKey struct{}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// WithRole stores the caller's role in ctx.
func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, ctxKey{}, role)
}

// RoleFromContext returns the role stored by Verified or Trusted.
func RoleFromContext(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(ctxKey{}).(Role)
	return role, ok && role != RoleNone
}

// Verified authorizes every request through a. Requests that fail are
// rendered by onErr and never reach next.
func Verified(a Authorizer, onErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, err := a.Authorize(r.Context(), r.Header)
			if err != nil {
				onErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithRole(r.Context(), role)))
		})
	}
}

// Trusted grants admin to every request without looking at its headers.
// Mount it only on listeners that are unreachable from outside.
func Trusted() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithRole(r.Context(), RoleAdmin)))
		})
	}
}

// RequireRole rejects requests whose role is below minRole.
func RequireRole(minRole Role, onErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok || role < minRole {
				onErr(w, r, newError(KindInsufficientRole, "", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
