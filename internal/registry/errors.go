// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import "errors"

var (
	// ErrNotRegistered means the device or any registration of it is unknown.
	ErrNotRegistered = errors.New("registry: device not registered")
	// ErrExpired means the latest registration is at least TTL old.
	ErrExpired = errors.New("registry: registration expired")
	// ErrInactive means the registration is fresh but the node did not answer.
	ErrInactive = errors.New("registry: device inactive")

	ErrInvalidName  = errors.New("registry: invalid device name")
	ErrInvalidURL   = errors.New("registry: invalid device url")
	ErrInvalidRoles = errors.New("registry: invalid role set")
)
