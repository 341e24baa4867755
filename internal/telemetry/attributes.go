// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across node and relay.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Relay attributes
	DeviceNameKey  = "camrelay.device"
	CacheResultKey = "camrelay.cache"
	RoleKey        = "camrelay.role"

	// Stream attributes
	StreamPlatformKey  = "stream.platform"
	StreamBitrateKey   = "stream.bitrate"
	StreamFramerateKey = "stream.framerate"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ForwardAttributes describes one relay forward.
func ForwardAttributes(device, role, cacheResult string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(DeviceNameKey, device)}
	if role != "" {
		attrs = append(attrs, attribute.String(RoleKey, role))
	}
	if cacheResult != "" {
		attrs = append(attrs, attribute.String(CacheResultKey, cacheResult))
	}
	return attrs
}

// StreamAttributes describes a pipeline launch.
func StreamAttributes(platform string, bitrate, framerate int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StreamPlatformKey, platform),
		attribute.Int(StreamBitrateKey, bitrate),
		attribute.Int(StreamFramerateKey, framerate),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
