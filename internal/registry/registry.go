// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/camrelay/internal/auth"
	"github.com/ManuGH/camrelay/internal/log"
	"github.com/ManuGH/camrelay/internal/metrics"
)

const (
	// DefaultTTL is how long a registration stays valid.
	DefaultTTL = 5 * time.Minute

	maxConcurrentProbes = 8
)

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// Names that would shadow relay routes.
var reservedNames = []string{"devices", "healthz", "register", "metrics"}

// Options configure a Registry.
type Options struct {
	TTL    time.Duration
	Prober Prober
	// Now is the registry clock; nil means time.Now.
	Now func() time.Time
}

// Registry is TTL-based service discovery over a Store.
type Registry struct {
	store  Store
	ttl    time.Duration
	prober Prober
	now    func() time.Time
	logger zerolog.Logger
}

// New returns a Registry over store.
func New(store Store, opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Prober == nil {
		opts.Prober = NewHTTPProber(5 * time.Second)
	}
	return &Registry{
		store:  store,
		ttl:    opts.TTL,
		prober: opts.Prober,
		now:    opts.Now,
		logger: log.WithComponent("registry"),
	}
}

// ValidateName checks a device name against the naming rules.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) || slices.Contains(reservedNames, name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

// Register records that name is reachable at baseURL, creating the device
// with DefaultRoles on first sight.
func (r *Registry) Register(ctx context.Context, name, baseURL string) (Registration, error) {
	if err := ValidateName(name); err != nil {
		metrics.IncRegistration(false)
		return Registration{}, err
	}
	if err := validateURL(baseURL); err != nil {
		metrics.IncRegistration(false)
		return Registration{}, err
	}

	now := r.now().UTC()
	dev, err := r.store.EnsureDevice(ctx, name, DefaultRoles(), now)
	if err != nil {
		metrics.IncRegistration(false)
		return Registration{}, err
	}
	reg := Registration{
		ID:        uuid.NewString(),
		DeviceID:  dev.ID,
		URL:       baseURL,
		CreatedAt: now,
	}
	if err := r.store.AppendRegistration(ctx, reg); err != nil {
		metrics.IncRegistration(false)
		return Registration{}, err
	}

	metrics.IncRegistration(true)
	logger := log.WithContext(ctx, r.logger)
	logger.Info().
		Str(log.FieldEvent, "registry.register").
		Str(log.FieldDevice, name).
		Str(log.FieldURL, baseURL).
		Msg("device registered")
	return reg, nil
}

// Device returns the device called name.
func (r *Registry) Device(ctx context.Context, name string) (Device, error) {
	return r.store.Device(ctx, name)
}

// Resolve returns the base URL of a live device. The TTL check runs first so
// expired devices are never probed.
func (r *Registry) Resolve(ctx context.Context, name string) (string, error) {
	dev, err := r.store.Device(ctx, name)
	if err != nil {
		metrics.IncResolve(outcome(err))
		return "", err
	}
	reg, err := r.store.Latest(ctx, dev.ID)
	if err != nil {
		metrics.IncResolve(outcome(err))
		return "", err
	}
	if r.expired(reg) {
		metrics.IncResolve("expired")
		return "", fmt.Errorf("%w: %s registered %s ago", ErrExpired, name, r.now().Sub(reg.CreatedAt).Truncate(time.Second))
	}
	if err := r.prober.Probe(ctx, reg.URL); err != nil {
		metrics.IncResolve("inactive")
		logger := log.WithContext(log.ContextWithDevice(ctx, name), r.logger)
		logger.Debug().Err(err).
			Str(log.FieldURL, reg.URL).
			Msg("liveness probe failed")
		return "", fmt.Errorf("%w: %s: %v", ErrInactive, name, err)
	}
	metrics.IncResolve("ok")
	return reg.URL, nil
}

// expired holds at age >= TTL.
func (r *Registry) expired(reg Registration) bool {
	return r.now().Sub(reg.CreatedAt) >= r.ttl
}

// List returns every device visible to role with its liveness. Probes run
// concurrently; a failed probe marks the device inactive.
func (r *Registry) List(ctx context.Context, role auth.Role) ([]DeviceStatus, error) {
	entries, err := r.store.ListLatest(ctx, role)
	if err != nil {
		return nil, err
	}

	out := make([]DeviceStatus, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for i, e := range entries {
		out[i] = DeviceStatus{Name: e.Device.Name}
		if e.Latest == nil {
			continue
		}
		out[i].URL = e.Latest.URL
		out[i].RegisteredAt = e.Latest.CreatedAt
		if r.expired(*e.Latest) {
			continue
		}
		g.Go(func() error {
			out[i].Active = r.prober.Probe(gctx, e.Latest.URL) == nil
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListActive is List restricted to active devices.
func (r *Registry) ListActive(ctx context.Context, role auth.Role) ([]DeviceStatus, error) {
	all, err := r.List(ctx, role)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(s DeviceStatus) bool { return !s.Active }), nil
}

// SetAllowedRoles replaces the role set of name. The set must be non-empty.
func (r *Registry) SetAllowedRoles(ctx context.Context, name string, roles []auth.Role) error {
	if len(roles) == 0 {
		return ErrInvalidRoles
	}
	for _, role := range roles {
		if role != auth.RoleUser && role != auth.RoleAdmin {
			return fmt.Errorf("%w: %v", ErrInvalidRoles, role)
		}
	}
	roles = slices.Clone(roles)
	slices.Sort(roles)
	roles = slices.Compact(roles)

	if err := r.store.SetAllowedRoles(ctx, name, roles); err != nil {
		return err
	}
	logger := log.WithContext(ctx, r.logger)
	logger.Info().
		Str(log.FieldEvent, "registry.roles").
		Str(log.FieldDevice, name).
		Interface("roles", roles).
		Msg("allowed roles updated")
	return nil
}

// Ping checks the backing store.
func (r *Registry) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func outcome(err error) string {
	if errors.Is(err, ErrNotRegistered) {
		return "not_registered"
	}
	return "error"
}
