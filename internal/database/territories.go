// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

/*
territories.go - Territory Repository and Diff Engine

UpdateAllTerritories is the single write path for territory state: within
one transaction it diffs the incoming snapshot against the stored one,
replaces the stored snapshot, appends ownership changes to territory_log,
and correlates each change with an open war fought by the acquiring guild.

Correlation joins a capture to the most recent open war of the acquiring
guild within the configured lookback window. A capture with no matching war
still gets a guild_war_log row (war_log_id NULL) so guild history queries
see every acquisition.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/guildwatch/internal/metrics"
	"github.com/tomtom215/guildwatch/internal/models"
)

// TerritoryChange is an ownership change detected by UpdateAllTerritories,
// together with the war it was correlated to (nil when no war matched). The
// server name is carried so notifications can say where the capture was
// fought.
type TerritoryChange struct {
	Log           models.TerritoryLog
	WarLogID      *int64
	WarServerName *string
}

// GetTerritories returns the stored territory snapshot.
func (db *DB) GetTerritories(ctx context.Context) ([]models.Territory, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name, guild_name, attacker, acquired, start_x, start_z, end_x, end_z
		 FROM territory ORDER BY name`)
	metrics.RecordDBQuery("select", "territory", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query territories: %w", err)
	}
	defer closeQuietly(rows)

	var territories []models.Territory
	for rows.Next() {
		t, err := scanTerritory(rows)
		if err != nil {
			return nil, err
		}
		territories = append(territories, t)
	}
	return territories, rows.Err()
}

func scanTerritory(rows *sql.Rows) (models.Territory, error) {
	var t models.Territory
	var guild, attacker sql.NullString
	if err := rows.Scan(&t.Name, &guild, &attacker, &t.Acquired,
		&t.Location.StartX, &t.Location.StartZ, &t.Location.EndX, &t.Location.EndZ); err != nil {
		return t, fmt.Errorf("failed to scan territory row: %w", err)
	}
	if guild.Valid {
		t.Guild = &guild.String
	}
	if attacker.Valid {
		t.Attacker = &attacker.String
	}
	t.Acquired = t.Acquired.UTC()
	return t, nil
}

// GetLatestTerritoryAcquired returns the newest acquired timestamp in the
// stored snapshot. ok is false when no territories are stored.
func (db *DB) GetLatestTerritoryAcquired(ctx context.Context) (time.Time, bool, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `SELECT MAX(acquired) FROM territory`)

	var latest sql.NullTime
	err := row.Scan(&latest)
	metrics.RecordDBQuery("select", "territory", time.Since(start), err)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest territory acquisition: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time.UTC(), true, nil
}

// ComputeTerritoryDiff returns the ownership changes from old to current,
// ordered by territory name. Territories with a nil guild in the current
// snapshot are skipped: the upstream occasionally serves transient null
// owners and logging them would fabricate transfers. HeldFor is how long the
// previous owner held the territory, measured from its stored acquisition
// time to now. Per-guild territory counts are a running tally seeded from
// the old snapshot and advanced change by change, so each log records both
// guilds' holdings immediately after its own transfer rather than the
// batch's final totals.
func ComputeTerritoryDiff(old, current []models.Territory, now time.Time) []models.TerritoryLog {
	oldByName := make(map[string]models.Territory, len(old))
	counts := make(map[string]int, 64)
	for _, t := range old {
		oldByName[t.Name] = t
		if t.Guild != nil {
			counts[*t.Guild]++
		}
	}

	// Territories gone from the map release their owner's count before any
	// transfer is tallied.
	currentNames := make(map[string]struct{}, len(current))
	for _, t := range current {
		currentNames[t.Name] = struct{}{}
	}
	for _, t := range old {
		if _, present := currentNames[t.Name]; !present && t.Guild != nil {
			counts[*t.Guild]--
		}
	}

	var logs []models.TerritoryLog
	for _, t := range current {
		if t.Guild == nil {
			continue
		}

		prev, existed := oldByName[t.Name]
		var oldGuild *string
		heldSince := now
		if existed {
			oldGuild = prev.Guild
			heldSince = prev.Acquired
			if oldGuild != nil && *oldGuild == *t.Guild {
				continue
			}
		}

		logs = append(logs, models.TerritoryLog{
			TerritoryName: t.Name,
			OldGuildName:  oldGuild,
			NewGuildName:  t.Guild,
			Acquired:      t.Acquired,
			HeldFor:       now.Sub(heldSince),
		})
	}

	sort.Slice(logs, func(i, j int) bool {
		return logs[i].TerritoryName < logs[j].TerritoryName
	})

	for i := range logs {
		entry := &logs[i]
		if entry.OldGuildName != nil {
			counts[*entry.OldGuildName]--
			entry.OldGuildTerrAmt = counts[*entry.OldGuildName]
		}
		counts[*entry.NewGuildName]++
		entry.NewGuildTerrAmt = counts[*entry.NewGuildName]
	}
	return logs
}

// UpdateAllTerritories replaces the stored territory snapshot, logs every
// ownership change, and correlates changes with open wars, all in one
// transaction. lookback bounds how old a war's last activity may be to still
// claim a capture.
func (db *DB) UpdateAllTerritories(ctx context.Context, territories []models.Territory, now time.Time, lookback time.Duration) ([]TerritoryChange, error) {
	start := time.Now()
	changes, err := db.updateAllTerritories(ctx, territories, now, lookback)
	metrics.RecordDBQuery("replace", "territory", time.Since(start), err)
	return changes, err
}

func (db *DB) updateAllTerritories(ctx context.Context, territories []models.Territory, now time.Time, lookback time.Duration) ([]TerritoryChange, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	old, err := territoriesInTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	logs := ComputeTerritoryDiff(old, territories, now)

	if _, err := tx.ExecContext(ctx, `DELETE FROM territory`); err != nil {
		return nil, fmt.Errorf("failed to clear territories: %w", err)
	}
	for _, t := range territories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO territory (name, guild_name, attacker, acquired, start_x, start_z, end_x, end_z)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.Name, t.Guild, t.Attacker, t.Acquired.UTC(),
			t.Location.StartX, t.Location.StartZ, t.Location.EndX, t.Location.EndZ); err != nil {
			return nil, fmt.Errorf("failed to insert territory %s: %w", t.Name, err)
		}
	}

	changes := make([]TerritoryChange, 0, len(logs))
	for _, entry := range logs {
		var logID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO territory_log
			   (territory_name, old_guild_name, new_guild_name, old_guild_terr_amt, new_guild_terr_amt, acquired, held_for_seconds)
			 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			entry.TerritoryName, entry.OldGuildName, entry.NewGuildName,
			entry.OldGuildTerrAmt, entry.NewGuildTerrAmt,
			entry.Acquired.UTC(), int64(entry.HeldFor.Seconds())).Scan(&logID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert territory log for %s: %w", entry.TerritoryName, err)
		}
		entry.ID = logID

		warID, serverName, err := correlateCapture(ctx, tx, *entry.NewGuildName, logID, now, lookback)
		if err != nil {
			return nil, err
		}

		changes = append(changes, TerritoryChange{Log: entry, WarLogID: warID, WarServerName: serverName})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return changes, nil
}

func territoriesInTx(ctx context.Context, tx *sql.Tx) ([]models.Territory, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT name, guild_name, attacker, acquired, start_x, start_z, end_x, end_z
		 FROM territory ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query territories: %w", err)
	}
	defer closeQuietly(rows)

	var territories []models.Territory
	for rows.Next() {
		t, err := scanTerritory(rows)
		if err != nil {
			return nil, err
		}
		territories = append(territories, t)
	}
	return territories, rows.Err()
}

// correlateCapture joins a territory log to the acquiring guild's most
// recent open war within the lookback window. When the guild's correlation
// row (opened by SetWarGuild) is still unclaimed it is completed in place;
// otherwise a war-less row is inserted so the capture is still attributed to
// the guild.
func correlateCapture(ctx context.Context, tx *sql.Tx, guildName string, logID int64, now time.Time, lookback time.Duration) (*int64, *string, error) {
	cutoff := now.Add(-lookback).UTC()

	var gwlID, warID int64
	var serverName string
	err := tx.QueryRowContext(ctx,
		`SELECT gwl.id, gwl.war_log_id, wl.server_name
		 FROM guild_war_log gwl
		 JOIN war_log wl ON wl.id = gwl.war_log_id
		 WHERE gwl.guild_name = ?
		   AND gwl.territory_log_id IS NULL
		   AND wl.log_closed = FALSE
		   AND wl.last_up >= ?
		 ORDER BY wl.last_up DESC
		 LIMIT 1`,
		guildName, cutoff).Scan(&gwlID, &warID, &serverName)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO guild_war_log (guild_name, territory_log_id) VALUES (?, ?)`,
			guildName, logID); err != nil {
			return nil, nil, fmt.Errorf("failed to insert guild war log: %w", err)
		}
		return nil, nil, nil
	case err != nil:
		return nil, nil, fmt.Errorf("failed to query correlation candidate: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE guild_war_log SET territory_log_id = ? WHERE id = ?`, logID, gwlID); err != nil {
		return nil, nil, fmt.Errorf("failed to complete guild war log: %w", err)
	}
	return &warID, &serverName, nil
}
