// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService   = "service"
	FieldVersion   = "version"
	FieldRequestID = "request_id"
	FieldComponent = "component"
	FieldEvent     = "event"

	// Relay fields
	FieldDevice   = "device"
	FieldURL      = "url"
	FieldRole     = "role"
	FieldProvider = "provider"
	FieldCache    = "cache"

	// Stream fields
	FieldPlatform   = "platform"
	FieldDir        = "dir"
	FieldPlaylist   = "playlist"
	FieldGeneration = "generation"
	FieldBitrate    = "bitrate"
	FieldFramerate  = "framerate"
	FieldPID        = "pid"

	// HTTP fields
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldBytes      = "bytes"
	FieldRemoteAddr = "remote_addr"
)
