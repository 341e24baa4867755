// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command node runs on a camera host. It serves HLS from a lazily started
// capture pipeline and keeps itself registered with the relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/camrelay/internal/codec"
	"github.com/ManuGH/camrelay/internal/config"
	"github.com/ManuGH/camrelay/internal/daemon"
	xglog "github.com/ManuGH/camrelay/internal/log"
	"github.com/ManuGH/camrelay/internal/node"
	"github.com/ManuGH/camrelay/internal/stream"
	"github.com/ManuGH/camrelay/internal/telemetry"
	"github.com/ManuGH/camrelay/internal/version"
)

const serviceName = "camrelay-node"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "node", Version: version.Version})
	logger := xglog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadNode(*configPath)
	if err != nil {
		logger.Fatal().Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}
	xglog.Reconfigure(xglog.Config{Level: cfg.LogLevel, Service: "node", Version: version.Version})

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("node exited with error")
	}
}

func run(ctx context.Context, cfg config.NodeConfig) error {
	logger := xglog.WithComponent("main")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	platform := codec.Detect(cfg.Stream.Platform)
	launcher, err := codec.New(platform, codec.Options{
		FFmpegPath:     cfg.Stream.FFmpegPath,
		RpicamPath:     cfg.Stream.RpicamPath,
		Device:         cfg.Stream.Device,
		Width:          cfg.Stream.Width,
		Height:         cfg.Stream.Height,
		SegmentSeconds: cfg.Stream.SegmentSeconds,
		ListSize:       cfg.Stream.ListSize,
		StartTimeout:   cfg.Stream.StartTimeout,
	}, xglog.WithComponent("codec"))
	if err != nil {
		return err
	}

	params := codec.Params{Bitrate: cfg.Stream.Bitrate, Framerate: cfg.Stream.Framerate}
	sup := stream.New(launcher, stream.Options{
		BaseDir:       cfg.Stream.BaseDir,
		IdleTimeout:   cfg.Stream.IdleTimeout,
		PlaylistWait:  cfg.Stream.PlaylistWait,
		StopGrace:     cfg.Stream.StopGrace,
		DefaultParams: params,
	}, xglog.WithComponent("stream"))

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = serviceName
	}
	srv := node.New(node.Config{
		Name:           cfg.Name,
		Version:        version.Version,
		Platform:       platform,
		DefaultParams:  params,
		BaseDir:        cfg.Stream.BaseDir,
		TracingService: tracing,
	}, sup, node.NewSensor(cfg.Sensor))

	mgr := daemon.NewManager(daemon.DefaultServerConfig(),
		daemon.Listener{Name: "node", Addr: cfg.ListenAddr, Handler: srv.Handler()},
	)
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	mgr.RegisterShutdownHook("stream", sup.Close)

	if cfg.Registration.RelayURL != "" {
		regCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		registrar := node.NewRegistrar(node.RegistrarOptions{
			RelayURL:     cfg.Registration.RelayURL,
			Name:         cfg.Name,
			AdvertiseURL: cfg.AdvertiseURL,
			Interval:     cfg.Registration.Interval,
			Timeout:      cfg.Registration.Timeout,
		})
		go func() {
			defer close(done)
			select {
			case <-mgr.Ready():
				registrar.Run(regCtx)
			case <-regCtx.Done():
			}
		}()
		mgr.RegisterShutdownHook("registrar", func(context.Context) error {
			cancel()
			<-done
			return nil
		})
	} else {
		logger.Warn().Msg("no relay URL configured; self-registration disabled")
	}

	logger.Info().
		Str(xglog.FieldEvent, "node.start").
		Str("name", cfg.Name).
		Str("addr", cfg.ListenAddr).
		Str(xglog.FieldPlatform, string(platform)).
		Msg("starting node")
	return mgr.Start(ctx)
}
