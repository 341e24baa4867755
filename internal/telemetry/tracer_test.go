// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		Enabled:      false,
		ServiceName:  "camrelay-relay",
		ExporterType: "grpc",
	})
	require.NoError(t, err)
	assert.Nil(t, provider.tp)

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()

	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "camrelay-relay",
		ExporterType: "invalid",
	})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: invalid (supported: grpc, http)", err.Error())
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 1.0, want: sdktrace.AlwaysSample().Description()},
		{rate: 2.0, want: sdktrace.AlwaysSample().Description()},
		{rate: 0.0, want: sdktrace.NeverSample().Description()},
		{rate: -1.0, want: sdktrace.NeverSample().Description()},
		{rate: 0.5, want: sdktrace.TraceIDRatioBased(0.5).Description()},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sampler(tt.rate).Description(), "rate %v", tt.rate)
	}
}

func TestNilProviderShutdown(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestForwardAttributesOmitsEmpty(t *testing.T) {
	attrs := ForwardAttributes("cam1", "", "")
	require.Len(t, attrs, 1)
	assert.Equal(t, DeviceNameKey, string(attrs[0].Key))

	attrs = ForwardAttributes("cam1", "admin", "hit")
	assert.Len(t, attrs, 3)
}
