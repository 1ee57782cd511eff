// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces all environment variables read by Load.
const envPrefix = "GUILDWATCH_"

// envKeyMap maps environment variable names (minus prefix) to koanf paths.
// Every supported variable is listed explicitly; unknown variables under the
// prefix are ignored rather than guessed at.
var envKeyMap = map[string]string{
	"DISCORD_TOKEN":                     "discord.token",
	"DISCORD_PLAYER_TRACKER_CHANNEL_ID": "discord.player_tracker_channel_id",

	"WYNN_BASE_URL":         "wynn.base_url",
	"WYNN_TIMEOUT":          "wynn.timeout",
	"WYNN_MAX_RETRIES":      "wynn.max_retries",
	"WYNN_RETRY_BASE_DELAY": "wynn.retry_base_delay",

	"MOJANG_BASE_URL":         "mojang.base_url",
	"MOJANG_TIMEOUT":          "mojang.timeout",
	"MOJANG_REQUEST_INTERVAL": "mojang.request_interval",

	"DATABASE_PATH":       "database.path",
	"DATABASE_MAX_MEMORY": "database.max_memory",
	"DATABASE_THREADS":    "database.threads",

	"TRACKER_PLAYER_INTERVAL":        "tracker.player_interval",
	"TRACKER_TERRITORY_INTERVAL":     "tracker.territory_interval",
	"TRACKER_GUILD_INTERVAL":         "tracker.guild_interval",
	"TRACKER_LEADERBOARD_INTERVAL":   "tracker.leaderboard_interval",
	"TRACKER_UUID_BACKFILL_INTERVAL": "tracker.uuid_backfill_interval",
	"TRACKER_TRACK_EXPIRY_INTERVAL":  "tracker.track_expiry_interval",
	"TRACKER_GUILD_STATS_INTERVAL":   "tracker.guild_stats_interval",
	"TRACKER_WAR_LOOKBACK":           "tracker.war_lookback",
	"TRACKER_MAIN_WORLD_PATTERN":     "tracker.main_world_pattern",
	"TRACKER_WAR_WORLD_PATTERN":      "tracker.war_world_pattern",

	"SERVER_HOST":    "server.host",
	"SERVER_PORT":    "server.port",
	"SERVER_TIMEOUT": "server.timeout",

	"LOG_LEVEL":  "logging.level",
	"LOG_FORMAT": "logging.format",
	"LOG_CALLER": "logging.caller",
}

// Load builds the configuration from three layers, later layers overriding
// earlier ones:
//
//  1. built-in defaults
//  2. YAML file at configPath (skipped if configPath is empty or missing)
//  3. GUILDWATCH_* environment variables
//
// The merged result is validated before being returned.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("checking config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", mapEnvKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mapEnvKey translates a prefixed environment variable name into its koanf
// path via envKeyMap. Returning "" drops the variable.
func mapEnvKey(key string) string {
	return envKeyMap[key[len(envPrefix):]]
}
