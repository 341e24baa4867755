// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package relay serves the central relay: device registration, the device
// listing and authorized forwarding to camera nodes.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/camrelay/internal/auth"
	"github.com/ManuGH/camrelay/internal/health"
	"github.com/ManuGH/camrelay/internal/log"
	"github.com/ManuGH/camrelay/internal/middleware"
	"github.com/ManuGH/camrelay/internal/proxy"
	"github.com/ManuGH/camrelay/internal/registry"
)

const maxBodyBytes = 64 << 10

// Registry is the part of the device registry the relay serves.
type Registry interface {
	Register(ctx context.Context, name, baseURL string) (registry.Registration, error)
	List(ctx context.Context, role auth.Role) ([]registry.DeviceStatus, error)
	SetAllowedRoles(ctx context.Context, name string, roles []auth.Role) error
	Ping(ctx context.Context) error
}

// Forwarder relays one authorized request to a node.
type Forwarder interface {
	Forward(ctx context.Context, req proxy.Request) (*proxy.Response, error)
}

// Config configures the relay HTTP surface.
type Config struct {
	Version     string
	CORSOrigins []string

	RateLimitEnabled bool
	RateLimit        int
	RateWindow       time.Duration

	// TracingService names spans; empty disables tracing middleware.
	TracingService string
}

// Server builds the public and internal handlers.
type Server struct {
	cfg    Config
	reg    Registry
	fwd    Forwarder
	authz  auth.Authorizer
	health *health.Manager
}

// New creates a relay server.
func New(cfg Config, reg Registry, fwd Forwarder, authz auth.Authorizer) *Server {
	h := health.NewManager(cfg.Version)
	h.RegisterChecker(health.NewPingChecker("registry", reg.Ping))
	return &Server{cfg: cfg, reg: reg, fwd: fwd, authz: authz, health: h}
}

// PublicHandler serves viewers. Every route except /healthz needs a verified
// bearer token.
func (s *Server) PublicHandler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins:  s.cfg.CORSOrigins,
		EnableMetrics:   true,
		TracingService:  s.cfg.TracingService,
		EnableLogging:   true,
		EnableRateLimit: s.cfg.RateLimitEnabled,
		RateLimit:       s.cfg.RateLimit,
		RateWindow:      s.cfg.RateWindow,
	})
	r.Get("/healthz", s.health.ServeHTTP)
	r.Group(func(r chi.Router) {
		r.Use(auth.Verified(s.authz, writeError))
		s.mountRoutes(r)
	})
	return r
}

// InternalHandler serves nodes and operators on a trusted listener. Callers
// are granted admin; request headers are never consulted.
func (s *Server) InternalHandler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})
	r.Get("/healthz", s.health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(auth.Trusted())
		s.mountRoutes(r)
	})
	return r
}

func (s *Server) mountRoutes(r chi.Router) {
	r.With(auth.RequireRole(auth.RoleAdmin, writeError)).Post("/register", s.handleRegister)
	r.Get("/devices", s.handleDevices)
	r.With(auth.RequireRole(auth.RoleAdmin, writeError)).Put("/devices/{name}/roles", s.handleSetRoles)
	r.Get("/{name}/*", s.handleForward)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

type registerRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.reg.Register(r.Context(), req.Name, req.URL); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	role, _ := auth.RoleFromContext(r.Context())
	devices, err := s.reg.List(r.Context(), role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if devices == nil {
		devices = []registry.DeviceStatus{}
	}
	writeJSON(w, http.StatusOK, devices)
}

type rolesRequest struct {
	Roles []auth.Role `json:"roles"`
}

func (s *Server) handleSetRoles(w http.ResponseWriter, r *http.Request) {
	var req rolesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.reg.SetAllowedRoles(r.Context(), chi.URLParam(r, "name"), req.Roles); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	r = r.WithContext(log.ContextWithDevice(r.Context(), name))
	role, _ := auth.RoleFromContext(r.Context())
	resp, err := s.fwd.Forward(r.Context(), proxy.Request{
		Device: name,
		Path:   chi.URLParam(r, "*"),
		Query:  r.URL.Query(),
		Role:   role,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}
