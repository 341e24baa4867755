// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package node serves a camera node: HLS files from the stream supervisor,
// stream control, environment readings and self-registration.
package node

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/camrelay/internal/codec"
	"github.com/ManuGH/camrelay/internal/health"
	"github.com/ManuGH/camrelay/internal/middleware"
	"github.com/ManuGH/camrelay/internal/stream"
)

const (
	contentTypePlaylist = "application/vnd.apple.mpegurl"
	contentTypeSegment  = "video/mp2t"

	maxBitrate   = 50_000_000
	maxFramerate = 120
)

// Streamer is the stream supervisor as seen by the HTTP surface.
type Streamer interface {
	EnsureRunning(ctx context.Context, p codec.Params) (stream.Info, error)
	Access(ctx context.Context, filename string) (string, error)
	Status() stream.Status
}

// Config configures the node HTTP surface.
type Config struct {
	Name          string
	Version       string
	Platform      codec.Platform
	DefaultParams codec.Params
	// BaseDir is checked for health reporting.
	BaseDir        string
	TracingService string
}

// Server builds the node handler.
type Server struct {
	cfg    Config
	stream Streamer
	sensor *Sensor
	health *health.Manager
}

// New creates a node server.
func New(cfg Config, s Streamer, sensor *Sensor) *Server {
	h := health.NewManager(cfg.Version)
	if cfg.BaseDir != "" {
		h.RegisterChecker(health.NewDirChecker("scratch", cfg.BaseDir))
	}
	return &Server{cfg: cfg, stream: s, sensor: sensor, health: h}
}

// Handler returns the node's routes.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})
	r.Get("/status", s.handleStatus)
	r.Get("/start", s.handleStart)
	r.Get("/hls/{filename}", s.handleHLS)
	r.Get("/sensor", s.handleSensor)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type statusResponse struct {
	Status   string          `json:"status"`
	Name     string          `json:"name,omitempty"`
	Platform codec.Platform  `json:"platform,omitempty"`
	Stream   stream.Status   `json:"stream"`
	Health   health.Response `json:"health"`
}

// handleStatus always answers 200; the relay uses it as a liveness probe.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:   "OK",
		Name:     s.cfg.Name,
		Platform: s.cfg.Platform,
		Stream:   s.stream.Status(),
		Health:   s.health.Health(r.Context()),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	p, err := s.params(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.stream.EnsureRunning(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"playlist": "/hls/" + codec.PlaylistName})
}

func (s *Server) params(r *http.Request) (codec.Params, error) {
	p := s.cfg.DefaultParams
	q := r.URL.Query()
	var err error
	if p.Bitrate, err = intParam(q.Get("bitrate"), p.Bitrate, maxBitrate); err != nil {
		return codec.Params{}, fmt.Errorf("%w: bitrate", errBadParam)
	}
	if p.Framerate, err = intParam(q.Get("framerate"), p.Framerate, maxFramerate); err != nil {
		return codec.Params{}, fmt.Errorf("%w: framerate", errBadParam)
	}
	return p, nil
}

func intParam(raw string, def, limit int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > limit {
		return 0, errBadParam
	}
	return v, nil
}

func (s *Server) handleHLS(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	path, err := s.stream.Access(r.Context(), filename)
	if err != nil {
		writeError(w, r, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		// Rotated out between Access and Open.
		writeError(w, r, stream.ErrNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, r, err)
		return
	}

	if filepath.Ext(filename) == ".m3u8" {
		w.Header().Set("Content-Type", contentTypePlaylist)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
	} else {
		w.Header().Set("Content-Type", contentTypeSegment)
	}
	http.ServeContent(w, r, filename, info.ModTime(), f)
}

func (s *Server) handleSensor(w http.ResponseWriter, r *http.Request) {
	reading, err := s.sensor.Read(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}
