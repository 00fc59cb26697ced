// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command roomsim runs the reference room service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/roomgate/internal/config"
	"github.com/ManuGH/roomgate/internal/log"
	"github.com/ManuGH/roomgate/internal/roomsim"
	"github.com/ManuGH/roomgate/internal/telemetry"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	listenAddr := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("roomsim %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if err := run(*configPath, *listenAddr); err != nil {
		logger := log.Base()
		logger.Error().Err(err).Msg("roomsim exited")
		os.Exit(1)
	}
}

func run(configPath, listenAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "roomsim",
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "roomsim",
		ServiceVersion: version,
		Environment:    "development",
		ExporterType:   exporterType(cfg),
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry init: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	dataDir := cfg.Sim.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	rooms, err := roomsim.OpenRoomStore(filepath.Join(dataDir, "rooms.db"))
	if err != nil {
		return err
	}
	defer func() { _ = rooms.Close() }()

	redisAddr := cfg.Sim.Redis.Addr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	sessions, err := roomsim.NewSessionStore(roomsim.SessionConfig{
		Addr:     redisAddr,
		Password: cfg.Sim.Redis.Password,
		DB:       cfg.Sim.Redis.DB,
	}, log.WithComponent("sessions"))
	if err != nil {
		return err
	}
	defer func() { _ = sessions.Close() }()

	ticketTTL, err := cfg.TicketTTL()
	if err != nil {
		return err
	}
	tickets, err := roomsim.OpenTicketStore(filepath.Join(dataDir, "tickets"), ticketTTL)
	if err != nil {
		return err
	}
	defer func() { _ = tickets.Close() }()

	if cfg.Sim.RoomsFile != "" {
		if err := seedFixtures(ctx, cfg.Sim.RoomsFile, rooms, logger); err != nil {
			return err
		}
	}

	addr := cfg.SimListenAddr()
	if listenAddr != "" {
		addr = listenAddr
	}
	externalURL := cfg.Sim.ExternalURL
	if externalURL == "" {
		externalURL = "http://localhost" + addr
	}

	rlEnabled, rlLimit, rlWindow := cfg.SimRateLimit()
	opts := []roomsim.ServerOption{
		roomsim.WithRateLimit(rlEnabled, rlLimit, rlWindow),
	}
	if cfg.Telemetry.Enabled {
		opts = append(opts, roomsim.WithTracing())
	}
	server := roomsim.NewServer(rooms, sessions, tickets, externalURL, opts...)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("event", "server.listening").
			Str("addr", addr).
			Str("external_url", externalURL).
			Msg("roomsim listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Str("event", "server.shutdown").Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}

		if cfg.Sim.RoomsFile != "" {
			if err := snapshotFixtures(rooms, cfg.Sim.RoomsFile, logger); err != nil {
				logger.Warn().Err(err).Msg("fixture snapshot failed")
			}
		}
		return nil
	})

	return g.Wait()
}

func exporterType(cfg *config.FileConfig) string {
	if cfg.Telemetry.ExporterType == "" {
		return "grpc"
	}
	return cfg.Telemetry.ExporterType
}

// seedFixtures loads the YAML rooms into the store and starts the
// hot-reload watcher.
func seedFixtures(ctx context.Context, path string, rooms *roomsim.RoomStore, logger zerolog.Logger) error {
	seed, err := roomsim.LoadFixtures(path)
	if err != nil {
		return err
	}
	for _, rec := range seed {
		if err := rooms.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	logger.Info().
		Str("event", "fixtures.seeded").
		Int("rooms", len(seed)).
		Str("path", path).
		Msg("fixture rooms loaded")

	return roomsim.WatchFixtures(ctx, path, log.WithComponent("fixtures"), func(updated []roomsim.RoomRecord) {
		for _, rec := range updated {
			// Reload replaces settings but keeps the live meeting state.
			current, err := rooms.Get(ctx, rec.ID)
			if err == nil {
				rec.MeetingRunning = current.MeetingRunning
			}
			if err := rooms.Upsert(ctx, rec); err != nil {
				logger.Error().Err(err).Str("room", rec.ID).Msg("fixture apply failed")
			}
		}
	})
}

// snapshotFixtures persists the final room state back to the fixture
// file on shutdown.
func snapshotFixtures(rooms *roomsim.RoomStore, path string, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	all, err := rooms.List(ctx)
	if err != nil {
		return err
	}
	if err := roomsim.SaveFixtures(path, all); err != nil {
		return err
	}
	logger.Info().
		Str("event", "fixtures.snapshot").
		Int("rooms", len(all)).
		Msg("fixture rooms persisted")
	return nil
}
