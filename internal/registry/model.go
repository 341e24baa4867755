// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package registry records where camera nodes can be reached. Registrations
// are append-only; the newest one per device wins, and liveness is decided
// at read time from its age and a probe of the node.
package registry

import (
	"time"

	"github.com/ManuGH/camrelay/internal/auth"
)

// Device is a logical camera identity. Devices are never deleted.
type Device struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	AllowedRoles []auth.Role `json:"allowed_roles"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Registration is one announcement of a device's base URL.
type Registration struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry pairs a device with its latest registration, if any.
type Entry struct {
	Device Device
	Latest *Registration
}

// DeviceStatus is the listing view of a device.
type DeviceStatus struct {
	Name         string    `json:"name"`
	URL          string    `json:"url,omitempty"`
	RegisteredAt time.Time `json:"registered_at,omitzero"`
	Active       bool      `json:"active"`
}

// DefaultRoles is the role set of a newly created device.
func DefaultRoles() []auth.Role {
	return []auth.Role{auth.RoleAdmin}
}
