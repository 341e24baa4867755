// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"time"

	"github.com/ManuGH/camrelay/internal/auth"
)

// Store persists devices and registrations.
type Store interface {
	// EnsureDevice returns the device called name, creating it with roles
	// if absent. Concurrent calls for one name create a single device.
	EnsureDevice(ctx context.Context, name string, roles []auth.Role, at time.Time) (Device, error)
	// Device returns ErrNotRegistered for unknown names.
	Device(ctx context.Context, name string) (Device, error)
	AppendRegistration(ctx context.Context, reg Registration) error
	// Latest returns ErrNotRegistered when the device has no registration.
	Latest(ctx context.Context, deviceID string) (Registration, error)
	// ListLatest returns every device visible to role with its latest
	// registration, ordered by name.
	ListLatest(ctx context.Context, role auth.Role) ([]Entry, error)
	SetAllowedRoles(ctx context.Context, name string, roles []auth.Role) error
	Ping(ctx context.Context) error
	Close() error
}
