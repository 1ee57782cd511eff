// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/guildwatch/internal/metrics"
	"github.com/tomtom215/guildwatch/internal/models"
)

// GetWorlds returns all currently stored worlds.
func (db *DB) GetWorlds(ctx context.Context) ([]models.World, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name, players, created_at, updated_at FROM world ORDER BY name`)
	metrics.RecordDBQuery("select", "world", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query worlds: %w", err)
	}
	defer closeQuietly(rows)

	var worlds []models.World
	for rows.Next() {
		var w models.World
		if err := rows.Scan(&w.Name, &w.Players, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan world row: %w", err)
		}
		w.CreatedAt = w.CreatedAt.UTC()
		w.UpdatedAt = w.UpdatedAt.UTC()
		worlds = append(worlds, w)
	}
	return worlds, rows.Err()
}

// UpdateAllWorlds replaces the stored world list with the given snapshot in
// a single transaction. Callers are responsible for carrying created_at
// forward for worlds that survive from the previous snapshot.
func (db *DB) UpdateAllWorlds(ctx context.Context, worlds []models.World) error {
	start := time.Now()
	err := db.updateAllWorlds(ctx, worlds)
	metrics.RecordDBQuery("replace", "world", time.Since(start), err)
	return err
}

func (db *DB) updateAllWorlds(ctx context.Context, worlds []models.World) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM world`); err != nil {
		return fmt.Errorf("failed to clear worlds: %w", err)
	}

	for _, w := range worlds {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO world (name, players, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			w.Name, w.Players, w.CreatedAt.UTC(), w.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert world %s: %w", w.Name, err)
		}
	}

	return tx.Commit()
}

// InsertPlayerNumber records a total online player count sample.
func (db *DB) InsertPlayerNumber(ctx context.Context, pn models.PlayerNumber) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO player_number (recorded_at, player_count) VALUES (?, ?)`,
		pn.Time.UTC(), pn.Count)
	metrics.RecordDBQuery("insert", "player_number", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert player number: %w", err)
	}
	return nil
}

// GetOldestPlayerNumberTime returns the timestamp of the oldest stored
// sample. ok is false when none exist.
func (db *DB) GetOldestPlayerNumberTime(ctx context.Context) (time.Time, bool, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `SELECT MIN(recorded_at) FROM player_number`)

	var oldest sql.NullTime
	err := row.Scan(&oldest)
	metrics.RecordDBQuery("select", "player_number", time.Since(start), err)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query oldest player number: %w", err)
	}
	if !oldest.Valid {
		return time.Time{}, false, nil
	}
	return oldest.Time.UTC(), true, nil
}

// GetPlayerNumberRange returns the minimum and maximum online player counts
// recorded in [from, to). ok is false when no samples exist in the window.
func (db *DB) GetPlayerNumberRange(ctx context.Context, from, to time.Time) (minCount, maxCount int, ok bool, err error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(MIN(player_count), 0), COALESCE(MAX(player_count), 0), COUNT(*)
		 FROM player_number
		 WHERE recorded_at >= ? AND recorded_at < ?`,
		from.UTC(), to.UTC())

	var minVal, maxVal, count int
	err = row.Scan(&minVal, &maxVal, &count)
	metrics.RecordDBQuery("select", "player_number", time.Since(start), err)
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to query player number range: %w", err)
	}
	if count == 0 {
		return 0, 0, false, nil
	}
	return minVal, maxVal, true, nil
}

// DeletePlayerNumbersBefore removes samples older than cutoff and returns
// the number deleted.
func (db *DB) DeletePlayerNumbersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM player_number WHERE recorded_at < ?`, cutoff.UTC())
	metrics.RecordDBQuery("delete", "player_number", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete player numbers: %w", err)
	}
	return res.RowsAffected()
}
