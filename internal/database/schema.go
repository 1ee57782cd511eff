// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

/*
schema.go - Database Schema Management

Tables:
  - world: current game worlds and their player counts
  - player_number: total online player samples for the daily report
  - war_log / war_player / war_track: war lifecycle, participants, and the
    Discord messages tracking each war
  - territory: current territory ownership snapshot
  - territory_log: append-only history of ownership changes
  - guild_war_log: correlation rows joining wars to territory changes
  - guild: known guild registry
  - guild_leaderboard: timestamped leaderboard snapshots (24h window)
  - track_channel / channel_prefs: notification subscriptions and per-channel
    display preferences

ID Strategy:
war_log, territory_log, and guild_war_log use BIGINT sequences rather than
UUIDs: the territory tracker selects "logs since the last seen id" as a
half-open range, which requires monotonically increasing keys.

Schema Strategy (Pre-Release):
All columns are defined in the initial CREATE statements. Single source of
truth, no migrations to run at startup.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the sequences and core tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// tableCreationQueries returns the schema DDL statements in dependency order.
func tableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_war_log_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_territory_log_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_guild_war_log_id START 1`,

		`CREATE TABLE IF NOT EXISTS world (
			name TEXT PRIMARY KEY,
			players INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS player_number (
			recorded_at TIMESTAMP NOT NULL,
			player_count INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS war_log (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_war_log_id'),
			server_name TEXT NOT NULL,
			guild_name TEXT,
			created_at TIMESTAMP NOT NULL,
			last_up TIMESTAMP NOT NULL,
			ended BOOLEAN NOT NULL DEFAULT FALSE,
			log_closed BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		`CREATE TABLE IF NOT EXISTS war_player (
			war_log_id BIGINT NOT NULL,
			player_name TEXT NOT NULL,
			player_uuid TEXT,
			exited BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (war_log_id, player_name)
		)`,

		`CREATE TABLE IF NOT EXISTS war_track (
			war_log_id BIGINT NOT NULL,
			channel_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			PRIMARY KEY (war_log_id, channel_id)
		)`,

		`CREATE TABLE IF NOT EXISTS territory (
			name TEXT PRIMARY KEY,
			guild_name TEXT,
			attacker TEXT,
			acquired TIMESTAMP NOT NULL,
			start_x INTEGER NOT NULL DEFAULT 0,
			start_z INTEGER NOT NULL DEFAULT 0,
			end_x INTEGER NOT NULL DEFAULT 0,
			end_z INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS territory_log (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_territory_log_id'),
			territory_name TEXT NOT NULL,
			old_guild_name TEXT,
			new_guild_name TEXT,
			old_guild_terr_amt INTEGER NOT NULL,
			new_guild_terr_amt INTEGER NOT NULL,
			acquired TIMESTAMP NOT NULL,
			held_for_seconds BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS guild_war_log (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_guild_war_log_id'),
			guild_name TEXT NOT NULL,
			war_log_id BIGINT,
			territory_log_id BIGINT
		)`,

		`CREATE TABLE IF NOT EXISTS guild (
			name TEXT PRIMARY KEY,
			prefix TEXT NOT NULL,
			created_at TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS guild_leaderboard (
			updated_at TIMESTAMP NOT NULL,
			name TEXT NOT NULL,
			prefix TEXT NOT NULL,
			xp BIGINT NOT NULL,
			level INTEGER NOT NULL,
			num INTEGER NOT NULL,
			territories INTEGER NOT NULL,
			members INTEGER NOT NULL,
			PRIMARY KEY (updated_at, name)
		)`,

		`CREATE TABLE IF NOT EXISTS track_channel (
			type TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			guild_name TEXT,
			player_uuid TEXT,
			expires_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS channel_prefs (
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			timezone TEXT NOT NULL,
			date_format TEXT NOT NULL,
			PRIMARY KEY (guild_id, channel_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_war_log_open ON war_log (log_closed, server_name)`,
		`CREATE INDEX IF NOT EXISTS idx_territory_log_guilds ON territory_log (new_guild_name, old_guild_name)`,
		`CREATE INDEX IF NOT EXISTS idx_guild_war_log_guild ON guild_war_log (guild_name)`,
		`CREATE INDEX IF NOT EXISTS idx_track_channel_type ON track_channel (type)`,
		`CREATE INDEX IF NOT EXISTS idx_player_number_time ON player_number (recorded_at)`,
	}
}
