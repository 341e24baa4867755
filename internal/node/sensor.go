// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package node

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camrelay/internal/config"
	"github.com/ManuGH/camrelay/internal/log"
	"github.com/ManuGH/camrelay/internal/metrics"
)

const defaultSamples = 5

// Reading is one environment sample. A nil field could not be read.
type Reading struct {
	Temperature    *float64 `json:"temperature"`
	Humidity       *float64 `json:"humidity"`
	CPUTemperature *float64 `json:"cpu_temperature"`
}

func (r Reading) add(o Reading) Reading {
	return Reading{
		Temperature:    addOpt(r.Temperature, o.Temperature),
		Humidity:       addOpt(r.Humidity, o.Humidity),
		CPUTemperature: addOpt(r.CPUTemperature, o.CPUTemperature),
	}
}

func (r Reading) div(n float64) Reading {
	return Reading{
		Temperature:    divOpt(r.Temperature, n),
		Humidity:       divOpt(r.Humidity, n),
		CPUTemperature: divOpt(r.CPUTemperature, n),
	}
}

// addOpt is nil once either side is missing.
func addOpt(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	v := *a + *b
	return &v
}

func divOpt(a *float64, n float64) *float64 {
	if a == nil {
		return nil
	}
	v := *a / n
	return &v
}

func ptr(v float64) *float64 { return &v }

// Sensor averages several samples of the environment sensor and the CPU
// thermal zone.
type Sensor struct {
	cfg      config.SensorConfig
	interval time.Duration
	logger   zerolog.Logger
}

// NewSensor builds a sensor reader from cfg.
func NewSensor(cfg config.SensorConfig) *Sensor {
	if cfg.Samples <= 0 {
		cfg.Samples = defaultSamples
	}
	return &Sensor{cfg: cfg, logger: log.WithComponent("sensor")}
}

// Read returns the average of the configured number of samples.
func (s *Sensor) Read(ctx context.Context) (Reading, error) {
	sum := Reading{Temperature: ptr(0), Humidity: ptr(0), CPUTemperature: ptr(0)}
	for i := range s.cfg.Samples {
		if i > 0 && s.interval > 0 {
			select {
			case <-ctx.Done():
				return Reading{}, ctx.Err()
			case <-time.After(s.interval):
			}
		}
		if err := ctx.Err(); err != nil {
			return Reading{}, err
		}
		sum = sum.add(s.sample())
	}
	return sum.div(float64(s.cfg.Samples)), nil
}

func (s *Sensor) sample() Reading {
	if s.cfg.Mock {
		return Reading{
			Temperature:    ptr(25 + rand.Float64()),
			Humidity:       ptr(40 + rand.Float64()),
			CPUTemperature: ptr(50 + rand.Float64()),
		}
	}

	var r Reading
	temp, hum, err := readEnvironment(s.cfg.ReadingPath)
	metrics.IncSensorRead("environment", err == nil)
	if err != nil {
		s.logger.Debug().Err(err).Str(log.FieldPath, s.cfg.ReadingPath).Msg("environment sample unavailable")
	} else {
		r.Temperature, r.Humidity = &temp, &hum
	}

	cpu, err := readCPUTemperature(s.cfg.ThermalPath)
	metrics.IncSensorRead("cpu", err == nil)
	if err != nil {
		s.logger.Warn().Err(err).Str(log.FieldPath, s.cfg.ThermalPath).Msg("failed to read CPU temperature")
	} else {
		r.CPUTemperature = &cpu
	}
	return r
}

// readEnvironment parses "temperature humidity" as written by the external
// sensor reader.
func readEnvironment(path string) (float64, float64, error) {
	if path == "" {
		return 0, 0, errors.New("no reading path configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("malformed reading %q", strings.TrimSpace(string(data)))
	}
	temp, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("temperature: %w", err)
	}
	hum, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("humidity: %w", err)
	}
	return temp, hum, nil
}

// readCPUTemperature reads a thermal zone in millidegrees Celsius.
func readCPUTemperature(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, err
	}
	return milli / 1000, nil
}
