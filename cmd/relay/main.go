// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command relay is the central relay: it keeps the device registry, verifies
// viewers and forwards their requests to camera nodes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuGH/camrelay/internal/auth"
	"github.com/ManuGH/camrelay/internal/config"
	"github.com/ManuGH/camrelay/internal/daemon"
	xglog "github.com/ManuGH/camrelay/internal/log"
	"github.com/ManuGH/camrelay/internal/proxy"
	"github.com/ManuGH/camrelay/internal/registry"
	"github.com/ManuGH/camrelay/internal/relay"
	"github.com/ManuGH/camrelay/internal/telemetry"
	"github.com/ManuGH/camrelay/internal/version"
)

const serviceName = "camrelay-relay"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until config is loaded
	xglog.Configure(xglog.Config{Level: "info", Service: "relay", Version: version.Version})
	logger := xglog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadRelay(*configPath)
	if err != nil {
		logger.Fatal().Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}
	xglog.Reconfigure(xglog.Config{Level: cfg.LogLevel, Service: "relay", Version: version.Version})

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("relay exited with error")
	}
}

func run(ctx context.Context, cfg config.RelayConfig) error {
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

	store, err := registry.NewSqliteStore(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	reg := registry.New(store, registry.Options{
		TTL:    cfg.RegistrationTTL,
		Prober: registry.NewHTTPProber(cfg.ProbeTimeout),
	})

	fwd, err := proxy.New(reg, proxy.Options{
		Timeout:     cfg.ForwardTimeout,
		CacheSize:   cfg.CacheSize,
		DeviceRPS:   cfg.DeviceRPS,
		DeviceBurst: cfg.DeviceBurst,
	})
	if err != nil {
		_ = store.Close()
		return err
	}

	verifiers, err := auth.VerifiersFromConfig(cfg.Auth.Providers, time.Now)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("auth providers: %w", err)
	}
	if len(verifiers) == 0 {
		logger.Warn().Msg("no identity providers configured; the public listener rejects every token")
	}

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = serviceName
	}
	srv := relay.New(relay.Config{
		Version:          version.Version,
		CORSOrigins:      cfg.CORSOrigins,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        cfg.RateLimit.Requests,
		RateWindow:       cfg.RateLimit.Window,
		TracingService:   tracing,
	}, reg, fwd, auth.NewBroker(verifiers...))

	mgr := daemon.NewManager(daemon.DefaultServerConfig(),
		daemon.Listener{Name: "public", Addr: cfg.PublicAddr, Handler: srv.PublicHandler()},
		daemon.Listener{Name: "internal", Addr: cfg.InternalAddr, Handler: srv.InternalHandler()},
	)
	// LIFO: the store closes before telemetry flushes.
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	mgr.RegisterShutdownHook("registry", func(context.Context) error { return store.Close() })

	logger.Info().
		Str(xglog.FieldEvent, "relay.start").
		Str("public", cfg.PublicAddr).
		Str("internal", cfg.InternalAddr).
		Str("db", cfg.DatabasePath).
		Dur("ttl", cfg.RegistrationTTL).
		Int("providers", len(verifiers)).
		Msg("starting relay")
	return mgr.Start(ctx)
}
