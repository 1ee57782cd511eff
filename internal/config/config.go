// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

// Package config loads and validates the Guildwatch configuration from
// layered sources: built-in defaults, an optional YAML file, and environment
// variables (highest priority).
package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the service.
type Config struct {
	Discord  DiscordConfig  `koanf:"discord"`
	Wynn     WynnConfig     `koanf:"wynn"`
	Mojang   MojangConfig   `koanf:"mojang"`
	Database DatabaseConfig `koanf:"database"`
	Tracker  TrackerConfig  `koanf:"tracker"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DiscordConfig configures the Discord session and fixed operator channels.
type DiscordConfig struct {
	Token string `koanf:"token" validate:"required"`
	// PlayerTrackerChannelID receives the daily online-players min/max
	// report. Optional; the report is skipped when empty.
	PlayerTrackerChannelID string `koanf:"player_tracker_channel_id"`
}

// WynnConfig configures the game API client.
type WynnConfig struct {
	BaseURL        string        `koanf:"base_url" validate:"required,url"`
	Timeout        time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxRetries     int           `koanf:"max_retries" validate:"gte=0"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay" validate:"gt=0"`
}

// MojangConfig configures the name-lookup client used for player UUID
// resolution.
type MojangConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	// RequestInterval paces sequential lookups to respect upstream rate
	// limits.
	RequestInterval time.Duration `koanf:"request_interval" validate:"gt=0"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	// Threads sets DuckDB's thread count; 0 means runtime.NumCPU().
	Threads int `koanf:"threads" validate:"gte=0"`
}

// TrackerConfig configures the periodic tracker tasks.
type TrackerConfig struct {
	PlayerInterval       time.Duration `koanf:"player_interval" validate:"gt=0"`
	TerritoryInterval    time.Duration `koanf:"territory_interval" validate:"gt=0"`
	GuildInterval        time.Duration `koanf:"guild_interval" validate:"gt=0"`
	LeaderboardInterval  time.Duration `koanf:"leaderboard_interval" validate:"gt=0"`
	UUIDBackfillInterval time.Duration `koanf:"uuid_backfill_interval" validate:"gt=0"`
	TrackExpiryInterval  time.Duration `koanf:"track_expiry_interval" validate:"gt=0"`

	// GuildStatsInterval paces the sequential per-guild stats fetches in
	// the guild tracker.
	GuildStatsInterval time.Duration `koanf:"guild_stats_interval" validate:"gt=0"`

	// WarLookback bounds how old an open war may be to still be correlated
	// with a territory change.
	WarLookback time.Duration `koanf:"war_lookback" validate:"gt=0"`

	// MainWorldPattern and WarWorldPattern classify server names. These
	// match upstream naming conventions and are configurable because the
	// conventions are environment-specific, not algorithmic. Names matching
	// neither pattern are untracked by design.
	MainWorldPattern string `koanf:"main_world_pattern" validate:"required"`
	WarWorldPattern  string `koanf:"war_world_pattern" validate:"required"`
}

// ServerConfig configures the operational HTTP endpoint.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with production defaults. Defaults are
// applied first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			Token:                  "",
			PlayerTrackerChannelID: "",
		},
		Wynn: WynnConfig{
			BaseURL:        "https://api.wynncraft.com",
			Timeout:        30 * time.Second,
			MaxRetries:     5,
			RetryBaseDelay: time.Second,
		},
		Mojang: MojangConfig{
			BaseURL:         "https://api.mojang.com",
			Timeout:         10 * time.Second,
			RequestInterval: 2 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/guildwatch.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Tracker: TrackerConfig{
			PlayerInterval:       30 * time.Second,
			TerritoryInterval:    30 * time.Second,
			GuildInterval:        time.Hour,
			LeaderboardInterval:  5 * time.Minute,
			UUIDBackfillInterval: time.Hour,
			TrackExpiryInterval:  time.Hour,
			GuildStatsInterval:   5 * time.Second,
			WarLookback:          10 * time.Minute,
			MainWorldPattern:     `^(WC|EU)\d+$`,
			WarWorldPattern:      `^WAR\d+$`,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    3876,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks struct tags with validator/v10 plus the cross-field rules
// the tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := regexp.Compile(c.Tracker.MainWorldPattern); err != nil {
		return fmt.Errorf("invalid tracker.main_world_pattern: %w", err)
	}
	if _, err := regexp.Compile(c.Tracker.WarWorldPattern); err != nil {
		return fmt.Errorf("invalid tracker.war_world_pattern: %w", err)
	}

	// Territory correlation reads wars the player tracker just wrote, so a
	// lookback shorter than the war cycle would make correlation a no-op.
	if c.Tracker.WarLookback < c.Tracker.PlayerInterval {
		return fmt.Errorf("tracker.war_lookback (%s) must be at least tracker.player_interval (%s)",
			c.Tracker.WarLookback, c.Tracker.PlayerInterval)
	}

	return nil
}
