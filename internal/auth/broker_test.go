// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	name  string
	role  Role
	err   error
	calls int
}

func (s *stubVerifier) Name() string { return s.name }

func (s *stubVerifier) Verify(context.Context, string) (Role, error) {
	s.calls++
	return s.role, s.err
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func TestBrokerSuccessBeatsFailure(t *testing.T) {
	b := NewBroker(
		&stubVerifier{name: "a", role: RoleUser},
		&stubVerifier{name: "b", err: newError(KindWrongIssuer, "b", nil)},
	)
	role, err := b.Authorize(context.Background(), bearer("t"))
	require.NoError(t, err)
	assert.Equal(t, RoleUser, role)
}

func TestBrokerHighestRoleWins(t *testing.T) {
	b := NewBroker(
		&stubVerifier{name: "a", role: RoleUser},
		&stubVerifier{name: "b", role: RoleAdmin},
		&stubVerifier{name: "c", err: ErrExpired},
	)
	role, err := b.Authorize(context.Background(), bearer("t"))
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
}

func TestBrokerReturnsFirstFailure(t *testing.T) {
	second := &stubVerifier{name: "b", err: newError(KindWrongIssuer, "b", nil)}
	b := NewBroker(
		&stubVerifier{name: "a", err: newError(KindExpired, "a", nil)},
		second,
	)
	_, err := b.Authorize(context.Background(), bearer("t"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpired)
	assert.NotErrorIs(t, err, ErrWrongIssuer)
	assert.Equal(t, 1, second.calls, "every verifier is consulted")

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "a", aerr.Provider)
	assert.Equal(t, http.StatusUnauthorized, aerr.HTTPStatus())
}

func TestBrokerWrapsForeignErrors(t *testing.T) {
	b := NewBroker(&stubVerifier{name: "a", err: errors.New("boom")})
	_, err := b.Authorize(context.Background(), bearer("t"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBrokerMissingCredential(t *testing.T) {
	v := &stubVerifier{name: "a", role: RoleAdmin}
	b := NewBroker(v)

	for _, h := range []http.Header{
		{},
		{"Authorization": []string{"Basic dXNlcjpwYXNz"}},
		{"Authorization": []string{"Bearer "}},
		{"Authorization": []string{"bearer token"}},
	} {
		_, err := b.Authorize(context.Background(), h)
		assert.ErrorIs(t, err, ErrMissingCredential)
	}
	assert.Zero(t, v.calls)
}

func TestBrokerWithoutVerifiers(t *testing.T) {
	_, err := NewBroker().Authorize(context.Background(), bearer("t"))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorIs(t, err, ErrNoVerifiers)
}

func TestErrorStatus(t *testing.T) {
	cases := map[*Error]int{
		ErrMissingCredential: http.StatusUnauthorized,
		ErrExpired:           http.StatusUnauthorized,
		ErrRevoked:           http.StatusUnauthorized,
		ErrMalformed:         http.StatusUnauthorized,
		ErrWrongIssuer:       http.StatusUnauthorized,
		ErrNotAllowlisted:    http.StatusForbidden,
		ErrInsufficientRole:  http.StatusForbidden,
	}
	for e, want := range cases {
		assert.Equal(t, want, e.HTTPStatus(), string(e.Kind))
	}
}

func TestMiddleware(t *testing.T) {
	var gotRole Role
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRole, _ = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	var gotErr error
	onErr := func(w http.ResponseWriter, _ *http.Request, err error) {
		gotErr = err
		var aerr *Error
		if errors.As(err, &aerr) {
			w.WriteHeader(aerr.HTTPStatus())
		}
	}

	t.Run("verified user cannot reach admin route", func(t *testing.T) {
		b := NewBroker(&stubVerifier{name: "a", role: RoleUser})
		h := Verified(b, onErr)(RequireRole(RoleAdmin, onErr)(next))

		req := httptest.NewRequest(http.MethodPost, "/register", nil)
		req.Header = bearer("t")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.ErrorIs(t, gotErr, ErrInsufficientRole)
	})

	t.Run("trusted ignores headers", func(t *testing.T) {
		h := Trusted()(RequireRole(RoleAdmin, onErr)(next))
		req := httptest.NewRequest(http.MethodPost, "/register", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, RoleAdmin, gotRole)
	})

	t.Run("missing credential is 401", func(t *testing.T) {
		b := NewBroker(&stubVerifier{name: "a", role: RoleAdmin})
		h := Verified(b, onErr)(next)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRoleText(t *testing.T) {
	var r Role
	require.NoError(t, r.UnmarshalText([]byte("Admin")))
	assert.Equal(t, RoleAdmin, r)
	assert.Error(t, r.UnmarshalText([]byte("root")))

	b, err := RoleUser.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "user", string(b))
	_, err = RoleNone.MarshalText()
	assert.Error(t, err)

	assert.True(t, RoleUser < RoleAdmin)
	assert.True(t, Allowed([]Role{RoleAdmin}, RoleAdmin))
	assert.False(t, Allowed([]Role{RoleAdmin}, RoleUser))
}
