// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package codec spawns the capture and HLS segmenting pipeline of a node.
package codec

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/camrelay/internal/log"
	"github.com/ManuGH/camrelay/internal/metrics"
	"github.com/ManuGH/camrelay/internal/procgroup"
	"github.com/ManuGH/camrelay/internal/telemetry"
)

// PlaylistName is the fixed playlist file name inside a scratch directory.
const PlaylistName = "playlist.m3u8"

// Params are the per-launch encoding parameters.
type Params struct {
	Bitrate   int
	Framerate int
}

// Options are fixed for the lifetime of a launcher.
type Options struct {
	FFmpegPath     string
	RpicamPath     string
	Device         string
	Width          int
	Height         int
	SegmentSeconds int
	ListSize       int
	StartTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.FFmpegPath == "" {
		o.FFmpegPath = "ffmpeg"
	}
	if o.RpicamPath == "" {
		o.RpicamPath = "rpicam-vid"
	}
	if o.Width <= 0 {
		o.Width = 1920
	}
	if o.Height <= 0 {
		o.Height = 1080
	}
	if o.SegmentSeconds <= 0 {
		o.SegmentSeconds = 10
	}
	if o.ListSize <= 0 {
		o.ListSize = 60
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = 30 * time.Second
	}
	return o
}

// Pipeline is a running capture pipeline.
type Pipeline interface {
	PlaylistPath() string
	// Terminate stops every process and waits for it. It is idempotent.
	Terminate(grace time.Duration)
}

// Launcher starts pipelines. Implementations must block until the playlist
// exists or fail without leaving processes behind.
type Launcher interface {
	Platform() Platform
	Launch(ctx context.Context, dir string, p Params) (Pipeline, error)
}

// New returns the launcher for platform.
func New(platform Platform, opts Options, logger zerolog.Logger) (Launcher, error) {
	switch platform {
	case PlatformTest, PlatformDesktop, PlatformRaspberryPi:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	return &launcher{
		platform: platform,
		goos:     runtime.GOOS,
		opts:     opts.withDefaults(),
		logger:   logger.With().Str(log.FieldPlatform, string(platform)).Logger(),
	}, nil
}

type launcher struct {
	platform Platform
	goos     string
	opts     Options
	logger   zerolog.Logger
}

func (l *launcher) Platform() Platform { return l.platform }

// Launch starts the pipeline writing into dir and waits for the playlist.
func (l *launcher) Launch(ctx context.Context, dir string, p Params) (Pipeline, error) {
	ctx, span := telemetry.Tracer("camrelay/codec").Start(ctx, "codec.launch")
	defer span.End()
	span.SetAttributes(telemetry.StreamAttributes(string(l.platform), p.Bitrate, p.Framerate)...)

	started := time.Now()
	pl, err := l.launch(ctx, dir, p)
	metrics.IncStreamStart(string(l.platform), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.ObserveStreamStartupLatency(string(l.platform), time.Since(started))
	return pl, nil
}

func (l *launcher) launch(ctx context.Context, dir string, p Params) (*Handles, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	id := uuid.New()
	segmentPattern := filepath.Join(dir, hex.EncodeToString(id[:])+"_%04d.ts")
	playlist := filepath.Join(dir, PlaylistName)

	h := &Handles{dir: dir, playlist: playlist}
	switch l.platform {
	case PlatformTest:
		h.procs = []*process{newProcess("ffmpeg", l.opts.FFmpegPath, testSourceArgs(l.opts, p, segmentPattern, playlist))}
	case PlatformDesktop:
		h.procs = []*process{newProcess("ffmpeg", l.opts.FFmpegPath, desktopArgs(l.goos, l.opts, p, segmentPattern, playlist))}
	case PlatformRaspberryPi:
		if err := cameraAvailable(ctx, l.opts.RpicamPath); err != nil {
			return nil, err
		}
		procs, err := l.piPipeline(p, segmentPattern, playlist)
		if err != nil {
			return nil, err
		}
		h.procs = procs
		// Both stages are already running.
		return l.awaitPlaylist(ctx, h)
	}

	for _, proc := range h.procs {
		if err := proc.start(); err != nil {
			h.Terminate(0)
			return nil, err
		}
	}
	return l.awaitPlaylist(ctx, h)
}

// piPipeline pipes rpicam-vid H.264 into an ffmpeg segmenter. The source
// starts first; if the segmenter fails to start the source is stopped.
func (l *launcher) piPipeline(p Params, segmentPattern, playlist string) ([]*process, error) {
	source := newProcess("rpicam-vid", l.opts.RpicamPath, rpicamArgs(l.opts, p))
	encoder := newProcess("ffmpeg", l.opts.FFmpegPath, segmenterArgs(l.opts, segmentPattern, playlist))

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}
	source.cmd.Stdout = w
	encoder.cmd.Stdin = r

	if err := source.start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, err
	}
	if err := encoder.start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		_ = procgroup.Terminate(source.cmd, source.waitCh(), time.Second)
		return nil, err
	}
	// The children hold their own copies; closing ours lets EOF and SIGPIPE propagate.
	_ = r.Close()
	_ = w.Close()
	return []*process{source, encoder}, nil
}

func (l *launcher) awaitPlaylist(ctx context.Context, h *Handles) (*Handles, error) {
	encoder := h.procs[len(h.procs)-1]
	err := waitForFile(ctx, l.logger, h.playlist, l.opts.StartTimeout, encoder.done)
	if err == nil {
		l.logger.Info().
			Str(log.FieldEvent, "pipeline.started").
			Str(log.FieldDir, h.dir).
			Ints(log.FieldPID, h.PIDs()).
			Msg("pipeline produced playlist")
		return h, nil
	}

	h.Terminate(2 * time.Second)
	tail := encoder.tail()
	l.logger.Warn().
		Err(err).
		Str(log.FieldEvent, "pipeline.start_failed").
		Str("stderr_tail", tail).
		Msg("pipeline failed to produce playlist")

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %w", ErrStartTimeout, err)
	}
	if tail != "" {
		return nil, fmt.Errorf("%w: %v: %s", ErrStartTimeout, err, tail)
	}
	return nil, fmt.Errorf("%w: %v", ErrStartTimeout, err)
}

// Handles are the processes of one running pipeline.
type Handles struct {
	dir      string
	playlist string
	procs    []*process

	once sync.Once
}

// PlaylistPath is the absolute path of the playlist file.
func (h *Handles) PlaylistPath() string { return h.playlist }

// PIDs lists the process ids in pipeline order.
func (h *Handles) PIDs() []int {
	pids := make([]int, 0, len(h.procs))
	for _, p := range h.procs {
		pids = append(pids, p.pid())
	}
	return pids
}

// Terminate signals and reaps each stage, source first so the encoder sees
// EOF and flushes. Unstarted stages are skipped.
func (h *Handles) Terminate(grace time.Duration) {
	h.once.Do(func() {
		for _, p := range h.procs {
			if p.cmd.Process == nil {
				continue
			}
			if p.exited() {
				continue
			}
			_ = procgroup.Terminate(p.cmd, p.waitCh(), grace)
		}
	})
}
