// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package codec

import "errors"

var (
	// ErrUnsupportedPlatform means no pipeline variant applies to this host.
	ErrUnsupportedPlatform = errors.New("codec: unsupported platform")
	// ErrHardwareUnavailable means the camera was not detected.
	ErrHardwareUnavailable = errors.New("codec: camera hardware unavailable")
	// ErrStartTimeout means the playlist did not appear before the deadline
	// or the encoder exited while starting.
	ErrStartTimeout = errors.New("codec: pipeline did not produce a playlist")
)
