// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/guildwatch/internal/metrics"
	"github.com/tomtom215/guildwatch/internal/models"
)

// InsertLeaderboard stores a leaderboard snapshot. All entries must carry
// the same UpdatedAt, which identifies the snapshot.
func (db *DB) InsertLeaderboard(ctx context.Context, entries []models.GuildLeaderboardEntry) error {
	start := time.Now()
	err := db.insertLeaderboard(ctx, entries)
	metrics.RecordDBQuery("insert", "guild_leaderboard", time.Since(start), err)
	return err
}

func (db *DB) insertLeaderboard(ctx context.Context, entries []models.GuildLeaderboardEntry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO guild_leaderboard (updated_at, name, prefix, xp, level, num, territories, members)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.UpdatedAt.UTC(), e.Name, e.Prefix, e.XP, e.Level, e.Num, e.Territories, e.Members); err != nil {
			return fmt.Errorf("failed to insert leaderboard entry %s: %w", e.Name, err)
		}
	}

	return tx.Commit()
}

// GetLatestLeaderboard returns the most recent snapshot ordered by rank, or
// nil when none is stored.
func (db *DB) GetLatestLeaderboard(ctx context.Context) ([]models.GuildLeaderboardEntry, error) {
	return db.leaderboardByQuery(ctx,
		`SELECT updated_at, name, prefix, xp, level, num, territories, members
		 FROM guild_leaderboard
		 WHERE updated_at = (SELECT MAX(updated_at) FROM guild_leaderboard)
		 ORDER BY num`)
}

// GetEarliestLeaderboard returns the oldest retained snapshot ordered by
// rank. Used as the comparison base for the XP leaderboard; retention
// pruning bounds how old it can be.
func (db *DB) GetEarliestLeaderboard(ctx context.Context) ([]models.GuildLeaderboardEntry, error) {
	return db.leaderboardByQuery(ctx,
		`SELECT updated_at, name, prefix, xp, level, num, territories, members
		 FROM guild_leaderboard
		 WHERE updated_at = (SELECT MIN(updated_at) FROM guild_leaderboard)
		 ORDER BY num`)
}

func (db *DB) leaderboardByQuery(ctx context.Context, query string, args ...interface{}) ([]models.GuildLeaderboardEntry, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("select", "guild_leaderboard", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer closeQuietly(rows)

	var entries []models.GuildLeaderboardEntry
	for rows.Next() {
		var e models.GuildLeaderboardEntry
		if err := rows.Scan(&e.UpdatedAt, &e.Name, &e.Prefix, &e.XP, &e.Level, &e.Num, &e.Territories, &e.Members); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		e.UpdatedAt = e.UpdatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneLeaderboard removes snapshots older than the newest one recorded at
// or before cutoff and returns the number of rows deleted. That border
// snapshot survives, so the XP ranking keeps a baseline even when the
// leaderboard sat unchanged for longer than the retention window.
func (db *DB) PruneLeaderboard(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM guild_leaderboard
		 WHERE updated_at < (
		   SELECT MAX(updated_at) FROM guild_leaderboard WHERE updated_at <= ?
		 )`, cutoff.UTC())
	metrics.RecordDBQuery("delete", "guild_leaderboard", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to prune leaderboard: %w", err)
	}
	return res.RowsAffected()
}
