// SPDX-License-Identifier: MIT

// Package daemon runs HTTP listeners and orderly shutdown for the binaries.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camrelay/internal/log"
)

// ErrManagerNotStarted is returned by Shutdown before Start.
var ErrManagerNotStarted = errors.New("daemon: manager not started")

// ServerConfig holds listener timeouts.
type ServerConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

// DefaultServerConfig suits forwards that may wait on a cold-starting node.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Listener is one named HTTP endpoint.
type Listener struct {
	Name    string
	Addr    string
	Handler http.Handler
}

// ShutdownHook releases a resource during shutdown.
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// Manager owns the HTTP servers of a process.
type Manager struct {
	cfg       ServerConfig
	listeners []Listener
	logger    zerolog.Logger

	mu            sync.Mutex
	servers       []*http.Server
	addrs         map[string]string
	shutdownHooks []namedHook
	started       bool
	stopping      bool
	ready         chan struct{}
}

// NewManager creates a manager for listeners.
func NewManager(cfg ServerConfig, listeners ...Listener) *Manager {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultServerConfig().ShutdownTimeout
	}
	return &Manager{
		cfg:       cfg,
		listeners: listeners,
		logger:    log.WithComponent("daemon"),
		addrs:     make(map[string]string),
		ready:     make(chan struct{}),
	}
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
// Hooks are executed in reverse registration order (LIFO).
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}

// Ready is closed once every listener is bound.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Addr returns the bound address of the named listener.
func (m *Manager) Addr(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addrs[name]
}

// Start binds every listener, serves until ctx is done or a server fails,
// then shuts down.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("daemon: manager already started")
	}
	m.started = true
	m.mu.Unlock()

	bound := make([]net.Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		ln, err := net.Listen("tcp", l.Addr)
		if err != nil {
			for _, b := range bound {
				_ = b.Close()
			}
			return fmt.Errorf("listen %s on %s: %w", l.Name, l.Addr, err)
		}
		bound = append(bound, ln)
	}

	errChan := make(chan error, len(m.listeners))
	m.mu.Lock()
	for i, l := range m.listeners {
		srv := &http.Server{
			Handler:           l.Handler,
			ReadTimeout:       m.cfg.ReadTimeout,
			ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
			WriteTimeout:      m.cfg.WriteTimeout,
			IdleTimeout:       m.cfg.IdleTimeout,
			MaxHeaderBytes:    m.cfg.MaxHeaderBytes,
		}
		m.servers = append(m.servers, srv)
		m.addrs[l.Name] = bound[i].Addr().String()

		go func(name string, ln net.Listener) {
			m.logger.Info().Str("listener", name).Str("addr", ln.Addr().String()).Msg("HTTP server listening")
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.logger.Error().Err(err).Str(log.FieldEvent, "server.failed").Str("listener", name).Msg("HTTP server failed")
				errChan <- fmt.Errorf("%s server: %w", name, err)
			}
		}(l.Name, bound[i])
	}
	m.mu.Unlock()
	close(m.ready)

	select {
	case err := <-errChan:
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := m.Shutdown(shutdownCtx); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Msg("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
		defer cancel()
		return m.Shutdown(shutdownCtx)
	}
}

// Shutdown stops the servers, then runs hooks in reverse order.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	servers := m.servers
	hooks := m.shutdownHooks
	m.mu.Unlock()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(ctx); err != nil {
			m.logger.Error().Err(err).Str("hook", h.name).Dur("duration", time.Since(start)).Msg("Shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("Shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Msg("Stopped cleanly")
	return nil
}
