// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stream owns the node's single live pipeline. A pipeline is started
// on first access, kept alive while viewers keep asking for files and torn
// down after an idle period.
package stream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/camrelay/internal/codec"
	"github.com/ManuGH/camrelay/internal/log"
	"github.com/ManuGH/camrelay/internal/metrics"
)

var (
	// ErrNotFound is returned for invalid file names and files the pipeline
	// has not produced (or already rotated out).
	ErrNotFound = errors.New("stream: file not found")
	// ErrClosed is returned once the supervisor has shut down.
	ErrClosed = errors.New("stream: supervisor closed")
)

const (
	extPlaylist = ".m3u8"
	extSegment  = ".ts"
)

// Options configure a Supervisor.
type Options struct {
	// BaseDir holds one scratch directory per pipeline run.
	BaseDir       string
	IdleTimeout   time.Duration
	PlaylistWait  time.Duration
	StopGrace     time.Duration
	DefaultParams codec.Params
}

// Info locates the running pipeline's output.
type Info struct {
	Dir      string
	Playlist string
}

// Status is a snapshot of the slot for diagnostics.
type Status struct {
	Running    bool         `json:"running"`
	Dir        string       `json:"dir,omitempty"`
	StartedAt  time.Time    `json:"started_at,omitzero"`
	LastAccess time.Time    `json:"last_access,omitzero"`
	Params     codec.Params `json:"-"`
}

// streamProcess is the running pipeline and its idle lease.
type streamProcess struct {
	dir        string
	pipeline   codec.Pipeline
	params     codec.Params
	timer      *time.Timer
	lease      uint64
	startedAt  time.Time
	lastAccess time.Time
}

type stopRequest struct {
	lease  uint64
	reason string
}

// Supervisor serializes every transition of the pipeline slot behind mu.
// Idle timers never touch the slot; they enqueue a stop request carrying the
// lease they were armed for, and the loop drops requests for stale leases.
type Supervisor struct {
	launcher codec.Launcher
	opts     Options
	logger   zerolog.Logger

	mu     sync.Mutex
	slot   *streamProcess
	lease  uint64
	closed bool

	// status is republished on every slot change so Status never waits on mu.
	status atomic.Pointer[Status]

	group  singleflight.Group
	stopCh chan stopRequest
	quit   chan struct{}
	done   chan struct{}

	// launchCtx aborts an in-flight launch on Close.
	launchCtx    context.Context
	cancelLaunch context.CancelFunc
}

// New creates a Supervisor and starts its stop loop. Call Close to release it.
func New(launcher codec.Launcher, opts Options, logger zerolog.Logger) *Supervisor {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 60 * time.Second
	}
	if opts.PlaylistWait <= 0 {
		opts.PlaylistWait = 10 * time.Second
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}
	if opts.BaseDir == "" {
		opts.BaseDir = filepath.Join(os.TempDir(), "camrelay")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		launcher:     launcher,
		opts:         opts,
		logger:       logger,
		stopCh:       make(chan stopRequest, 8),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		launchCtx:    ctx,
		cancelLaunch: cancel,
	}
	go s.loop()
	return s
}

func (s *Supervisor) loop() {
	defer close(s.done)
	for {
		select {
		case req := <-s.stopCh:
			s.mu.Lock()
			if s.slot != nil && s.slot.lease == req.lease {
				s.stopLocked(req.reason)
			}
			s.mu.Unlock()
		case <-s.quit:
			return
		}
	}
}

// armLocked schedules the idle stop for the current lease. mu must be held.
func (s *Supervisor) armLocked(sp *streamProcess) {
	s.lease++
	sp.lease = s.lease
	lease := sp.lease
	sp.timer = time.AfterFunc(s.opts.IdleTimeout, func() {
		select {
		case s.stopCh <- stopRequest{lease: lease, reason: "idle"}:
		case <-s.quit:
		}
	})
	s.publishLocked()
}

// publishLocked snapshots the slot for Status. mu must be held.
func (s *Supervisor) publishLocked() {
	sp := s.slot
	if sp == nil {
		s.status.Store(&Status{})
		return
	}
	s.status.Store(&Status{
		Running:    true,
		Dir:        sp.dir,
		StartedAt:  sp.startedAt,
		LastAccess: sp.lastAccess,
		Params:     sp.params,
	})
}

// refreshLocked extends the lease of the running slot. mu must be held.
func (s *Supervisor) refreshLocked() Info {
	sp := s.slot
	sp.timer.Stop()
	sp.lastAccess = time.Now()
	s.armLocked(sp)
	return Info{Dir: sp.dir, Playlist: sp.pipeline.PlaylistPath()}
}

// EnsureRunning returns the running pipeline, refreshing its idle lease, or
// launches one. Concurrent cold starts share a single launch.
func (s *Supervisor) EnsureRunning(ctx context.Context, p codec.Params) (Info, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Info{}, ErrClosed
	}
	if s.slot != nil {
		info := s.refreshLocked()
		s.mu.Unlock()
		return info, nil
	}
	s.mu.Unlock()

	ch := s.group.DoChan("launch", func() (any, error) {
		return s.launch(p)
	})
	select {
	case <-ctx.Done():
		return Info{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Info{}, res.Err
		}
		return res.Val.(Info), nil
	}
}

// launch runs outside mu so that playlist polling never blocks other callers.
func (s *Supervisor) launch(p codec.Params) (Info, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Info{}, ErrClosed
	}
	// A previous flight may have finished between our check and this one.
	if s.slot != nil {
		info := s.refreshLocked()
		s.mu.Unlock()
		return info, nil
	}
	s.mu.Unlock()

	if err := os.MkdirAll(s.opts.BaseDir, 0o750); err != nil {
		return Info{}, fmt.Errorf("create stream base dir: %w", err)
	}
	dir, err := os.MkdirTemp(s.opts.BaseDir, "stream-*")
	if err != nil {
		return Info{}, fmt.Errorf("create scratch dir: %w", err)
	}

	logger := s.logger.With().Str(log.FieldDir, dir).Logger()
	logger.Info().
		Str(log.FieldEvent, "stream.start").
		Int(log.FieldBitrate, p.Bitrate).
		Int(log.FieldFramerate, p.Framerate).
		Msg("starting pipeline")

	pl, err := s.launcher.Launch(s.launchCtx, dir, p)
	if err != nil {
		_ = os.RemoveAll(dir)
		logger.Error().Err(err).Str(log.FieldEvent, "stream.start_failed").Msg("pipeline launch failed")
		return Info{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		pl.Terminate(s.opts.StopGrace)
		_ = os.RemoveAll(dir)
		return Info{}, ErrClosed
	}
	now := time.Now()
	sp := &streamProcess{
		dir:        dir,
		pipeline:   pl,
		params:     p,
		startedAt:  now,
		lastAccess: now,
	}
	s.slot = sp
	s.armLocked(sp)
	metrics.SetStreamActive(true)

	return Info{Dir: dir, Playlist: pl.PlaylistPath()}, nil
}

// stopLocked terminates and reaps the pipeline, then deletes its directory.
// mu must be held, so a new slot cannot appear until teardown completes.
func (s *Supervisor) stopLocked(reason string) {
	sp := s.slot
	if sp == nil {
		return
	}
	sp.timer.Stop()
	sp.pipeline.Terminate(s.opts.StopGrace)
	if err := os.RemoveAll(sp.dir); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldDir, sp.dir).Msg("failed to remove scratch dir")
	}
	s.slot = nil
	s.publishLocked()

	metrics.SetStreamActive(false)
	metrics.IncStreamStop(reason)
	s.logger.Info().
		Str(log.FieldEvent, "stream.stop").
		Str("reason", reason).
		Str(log.FieldDir, sp.dir).
		Dur("uptime", time.Since(sp.startedAt)).
		Msg("pipeline stopped")
}

// Stop tears down the running pipeline, if any. It is idempotent.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked("manual")
}

// Access resolves filename to a file of the running pipeline, starting the
// pipeline if needed. Only single-segment .m3u8 and .ts names are served.
func (s *Supervisor) Access(ctx context.Context, filename string) (string, error) {
	ext, ok := mediaExt(filename)
	if !ok {
		return "", ErrNotFound
	}

	info, err := s.EnsureRunning(ctx, s.opts.DefaultParams)
	if err != nil {
		return "", err
	}

	path := filepath.Join(info.Dir, filename)
	if ext == extPlaylist {
		if err := waitExists(ctx, path, s.opts.PlaylistWait); err != nil {
			return "", err
		}
	}
	if _, err := os.Stat(path); err != nil {
		return "", ErrNotFound
	}
	return path, nil
}

// Status reports the last published slot state. It does not block while a
// pipeline is being torn down.
func (s *Supervisor) Status() Status {
	if st := s.status.Load(); st != nil {
		return *st
	}
	return Status{}
}

// Close stops the pipeline and the stop loop. Later calls return ErrClosed.
func (s *Supervisor) Close(ctx context.Context) error {
	s.cancelLaunch()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.stopLocked("shutdown")
	s.mu.Unlock()

	close(s.quit)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func mediaExt(name string) (string, bool) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", false
	}
	switch ext := filepath.Ext(name); ext {
	case extPlaylist, extSegment:
		return ext, true
	default:
		return "", false
	}
}

// waitExists polls for path. The playlist can lag the pipeline start by a
// moment after a restart of the segmenter.
func waitExists(ctx context.Context, path string, timeout time.Duration) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrNotFound
		case <-ticker.C:
			if _, err := os.Stat(path); err == nil {
				return nil
			}
		}
	}
}
