// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package node

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camrelay/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSensorReadsFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewSensor(config.SensorConfig{
		ReadingPath: writeFile(t, dir, "reading", "21.5 48.25\n"),
		ThermalPath: writeFile(t, dir, "temp", "47312\n"),
	})

	r, err := s.Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, r.Temperature)
	require.NotNil(t, r.Humidity)
	require.NotNil(t, r.CPUTemperature)
	assert.InDelta(t, 21.5, *r.Temperature, 1e-9)
	assert.InDelta(t, 48.25, *r.Humidity, 1e-9)
	assert.InDelta(t, 47.312, *r.CPUTemperature, 1e-9)
}

func TestSensorMissingSourcesAreNull(t *testing.T) {
	dir := t.TempDir()
	s := NewSensor(config.SensorConfig{
		ReadingPath: filepath.Join(dir, "absent"),
		ThermalPath: writeFile(t, dir, "temp", "50000"),
	})

	r, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, r.Temperature)
	assert.Nil(t, r.Humidity)
	require.NotNil(t, r.CPUTemperature)
	assert.InDelta(t, 50.0, *r.CPUTemperature, 1e-9)
}

func TestSensorMalformedReading(t *testing.T) {
	dir := t.TempDir()
	for _, content := range []string{"", "21.5", "warm 40", "21.5 humid"} {
		s := NewSensor(config.SensorConfig{
			ReadingPath: writeFile(t, dir, "reading", content),
			ThermalPath: filepath.Join(dir, "absent"),
		})
		r, err := s.Read(context.Background())
		require.NoError(t, err)
		assert.Nil(t, r.Temperature, content)
		assert.Nil(t, r.CPUTemperature, content)
	}
}

func TestSensorAveragesSamples(t *testing.T) {
	s := NewSensor(config.SensorConfig{Mock: true, Samples: 20})
	r, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, *r.Temperature, 25.0)
	assert.Less(t, *r.Temperature, 26.0)
	assert.GreaterOrEqual(t, *r.Humidity, 40.0)
	assert.Less(t, *r.Humidity, 41.0)
	assert.GreaterOrEqual(t, *r.CPUTemperature, 50.0)
	assert.Less(t, *r.CPUTemperature, 51.0)
}

func TestSensorHonoursContext(t *testing.T) {
	s := NewSensor(config.SensorConfig{Mock: true})
	s.interval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
