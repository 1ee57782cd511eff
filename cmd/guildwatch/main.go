// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

// Package main is the entry point for the Guildwatch service.
//
// Guildwatch polls the game's public REST API on fixed intervals, diffs each
// snapshot against persisted state in DuckDB, and fans detected events out to
// subscribed Discord channels. A small read-only HTTP API exposes the current
// tracked state and Prometheus metrics.
//
// # Application Architecture
//
// The service initializes components in the following order:
//
//  1. Configuration: layered defaults, optional YAML file, environment (Koanf v2)
//  2. Database: DuckDB state store for worlds, wars, territories, guilds
//  3. Game API client: retrying HTTP client wrapped in a circuit breaker
//  4. Mojang client: rate-limited player UUID resolution
//  5. Discord session: gateway connection used for all notifications
//  6. Tracker set: the periodic reconciliation tasks sharing one heartbeat
//  7. HTTP server: health, status, and read-only state endpoints
//
// All long-running components are children of a suture supervisor tree and
// are restarted with exponential backoff on failure.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority
// wins):
//   - Environment variables (GUILDWATCH_ prefix)
//   - Config file (-config flag, default config.yaml if present)
//   - Built-in defaults
//
// The only required settings are the Discord bot token and the database path:
//
//	export GUILDWATCH_DISCORD_TOKEN=your-bot-token
//	export GUILDWATCH_DATABASE_PATH=/data/guildwatch.db
//	./guildwatch
//
// # Signal Handling
//
// The service handles graceful shutdown on SIGINT and SIGTERM: in-flight
// tracker cycles finish, the Discord session closes, and the HTTP server
// drains with a 10s timeout.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/guildwatch/internal/api"
	"github.com/tomtom215/guildwatch/internal/config"
	"github.com/tomtom215/guildwatch/internal/database"
	"github.com/tomtom215/guildwatch/internal/discord"
	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/mojang"
	"github.com/tomtom215/guildwatch/internal/supervisor"
	"github.com/tomtom215/guildwatch/internal/tracker"
	"github.com/tomtom215/guildwatch/internal/wynn"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	// Load configuration first to get logging settings
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("version", version).Msg("Starting Guildwatch with supervisor tree")
	logging.Info().
		Str("api_url", cfg.Wynn.BaseURL).
		Str("db_path", cfg.Database.Path).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	// Game API client wrapped in a circuit breaker so upstream outages trip
	// fast instead of stalling every tracker cycle on retries.
	gameAPI := wynn.NewBreakerClient(wynn.NewClient(&cfg.Wynn))
	mojangClient := mojang.NewClient(&cfg.Mojang)

	session, err := discord.New(&cfg.Discord)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create Discord session")
	}

	set, err := tracker.NewSet(cfg, gameAPI, db, session, mojangClient)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create tracker set")
	}
	heartbeat, err := set.Heartbeat()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create heartbeat")
	}

	handler := api.NewHandler(db, set.Leaderboard, heartbeat, gameAPI, version)
	server := api.NewServer(&cfg.Server, api.NewRouter(handler))

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog compatibility
	slogLogger := logging.NewSlogLogger()

	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddMessagingService(session)
	tree.AddTrackingService(heartbeat)
	tree.AddAPIService(server)
	logging.Info().
		Int("port", cfg.Server.Port).
		Msg("Discord session, tracker heartbeat, and HTTP server added to supervisor tree")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
