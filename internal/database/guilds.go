// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/guildwatch/internal/metrics"
	"github.com/tomtom215/guildwatch/internal/models"
)

// ErrNotFound indicates a lookup matched no rows.
var ErrNotFound = errors.New("database: not found")

// UpsertGuild inserts or replaces a guild registry entry.
func (db *DB) UpsertGuild(ctx context.Context, g models.Guild) error {
	start := time.Now()
	err := db.upsertGuild(ctx, g)
	metrics.RecordDBQuery("upsert", "guild", time.Since(start), err)
	return err
}

func (db *DB) upsertGuild(ctx context.Context, g models.Guild) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM guild WHERE name = ?`, g.Name); err != nil {
		return fmt.Errorf("failed to clear guild %s: %w", g.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO guild (name, prefix, created_at) VALUES (?, ?, ?)`,
		g.Name, g.Prefix, g.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert guild %s: %w", g.Name, err)
	}

	return tx.Commit()
}

// GetGuild returns a guild registry entry, or ErrNotFound.
func (db *DB) GetGuild(ctx context.Context, name string) (*models.Guild, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT name, prefix, created_at FROM guild WHERE name = ?`, name)

	var g models.Guild
	var created sql.NullTime
	err := row.Scan(&g.Name, &g.Prefix, &created)
	metrics.RecordDBQuery("select", "guild", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: guild %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query guild %s: %w", name, err)
	}
	if created.Valid {
		g.CreatedAt = created.Time.UTC()
	}
	return &g, nil
}

// ListGuildNames returns all known guild names.
func (db *DB) ListGuildNames(ctx context.Context) ([]string, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT name FROM guild ORDER BY name`)
	metrics.RecordDBQuery("select", "guild", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query guild names: %w", err)
	}
	defer closeQuietly(rows)

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan guild name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteGuild removes a guild registry entry.
func (db *DB) DeleteGuild(ctx context.Context, name string) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `DELETE FROM guild WHERE name = ?`, name)
	metrics.RecordDBQuery("delete", "guild", time.Since(start), err)
	return err
}
