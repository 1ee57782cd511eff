// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

/*
wars.go - War Log Repository

War lifecycle persisted here:

	absent -> active (CreateWar) -> ended (MarkWarEnded) -> closed (CloseWarLog)

MarkWarEnded flags the first observation of an empty war world; CloseWarLog
flags the second, after which the territory correlator no longer considers
the war and its tracking messages are released. The one-cycle grace period
exists because the territory snapshot trails the player snapshot, so a
capture often lands in the cycle after its war empties.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/guildwatch/internal/metrics"
	"github.com/tomtom215/guildwatch/internal/models"
)

// CreateWar inserts a new war with its initial participants and returns the
// war id.
func (db *DB) CreateWar(ctx context.Context, serverName string, players []string, now time.Time) (int64, error) {
	start := time.Now()
	id, err := db.createWar(ctx, serverName, players, now)
	metrics.RecordDBQuery("insert", "war_log", time.Since(start), err)
	return id, err
}

func (db *DB) createWar(ctx context.Context, serverName string, players []string, now time.Time) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO war_log (server_name, created_at, last_up) VALUES (?, ?, ?) RETURNING id`,
		serverName, now.UTC(), now.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert war log: %w", err)
	}

	for _, name := range players {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO war_player (war_log_id, player_name) VALUES (?, ?)`,
			id, name); err != nil {
			return 0, fmt.Errorf("failed to insert war player %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetOpenWars returns all wars that are not yet log-closed, participants
// included, ordered by id.
func (db *DB) GetOpenWars(ctx context.Context) ([]models.WarLog, error) {
	start := time.Now()
	wars, err := db.getOpenWars(ctx)
	metrics.RecordDBQuery("select", "war_log", time.Since(start), err)
	return wars, err
}

func (db *DB) getOpenWars(ctx context.Context) ([]models.WarLog, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, server_name, guild_name, created_at, last_up, ended, log_closed
		 FROM war_log WHERE log_closed = FALSE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open wars: %w", err)
	}
	defer closeQuietly(rows)

	var wars []models.WarLog
	index := make(map[int64]int)
	for rows.Next() {
		var w models.WarLog
		var guild sql.NullString
		if err := rows.Scan(&w.ID, &w.ServerName, &guild, &w.CreatedAt, &w.LastUp, &w.Ended, &w.LogClosed); err != nil {
			return nil, fmt.Errorf("failed to scan war log row: %w", err)
		}
		if guild.Valid {
			w.GuildName = &guild.String
		}
		w.CreatedAt = w.CreatedAt.UTC()
		w.LastUp = w.LastUp.UTC()
		index[w.ID] = len(wars)
		wars = append(wars, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(wars) == 0 {
		return nil, nil
	}

	prows, err := db.conn.QueryContext(ctx,
		`SELECT wp.war_log_id, wp.player_name, wp.player_uuid, wp.exited
		 FROM war_player wp
		 JOIN war_log wl ON wl.id = wp.war_log_id
		 WHERE wl.log_closed = FALSE
		 ORDER BY wp.war_log_id, wp.player_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query war players: %w", err)
	}
	defer closeQuietly(prows)

	for prows.Next() {
		var p models.WarPlayer
		var uuid sql.NullString
		if err := prows.Scan(&p.WarLogID, &p.Name, &uuid, &p.Exited); err != nil {
			return nil, fmt.Errorf("failed to scan war player row: %w", err)
		}
		if uuid.Valid {
			p.UUID = &uuid.String
		}
		if i, ok := index[p.WarLogID]; ok {
			wars[i].Players = append(wars[i].Players, p)
		}
	}
	return wars, prows.Err()
}

// AddWarPlayers inserts newly observed participants into an existing war.
// Names already present are left untouched.
func (db *DB) AddWarPlayers(ctx context.Context, warID int64, names []string) error {
	start := time.Now()
	err := db.addWarPlayers(ctx, warID, names)
	metrics.RecordDBQuery("insert", "war_player", time.Since(start), err)
	return err
}

func (db *DB) addWarPlayers(ctx context.Context, warID int64, names []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	for _, name := range names {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO war_player (war_log_id, player_name)
			 SELECT ?, ? WHERE NOT EXISTS (
			   SELECT 1 FROM war_player WHERE war_log_id = ? AND player_name = ?
			 )`,
			warID, name, warID, name); err != nil {
			return fmt.Errorf("failed to insert war player %s: %w", name, err)
		}
	}

	return tx.Commit()
}

// MarkWarPlayersExited flags participants that left the war world. Exited
// players stay in the log; a player rejoining clears the flag via
// AddWarPlayers semantics handled by the tracker.
func (db *DB) MarkWarPlayersExited(ctx context.Context, warID int64, names []string) error {
	start := time.Now()
	err := db.markWarPlayersExited(ctx, warID, names)
	metrics.RecordDBQuery("update", "war_player", time.Since(start), err)
	return err
}

func (db *DB) markWarPlayersExited(ctx context.Context, warID int64, names []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	for _, name := range names {
		if _, err := tx.ExecContext(ctx,
			`UPDATE war_player SET exited = TRUE WHERE war_log_id = ? AND player_name = ?`,
			warID, name); err != nil {
			return fmt.Errorf("failed to mark war player %s exited: %w", name, err)
		}
	}

	return tx.Commit()
}

// ClearWarPlayerExited unsets the exited flag for a player that rejoined.
func (db *DB) ClearWarPlayerExited(ctx context.Context, warID int64, name string) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`UPDATE war_player SET exited = FALSE WHERE war_log_id = ? AND player_name = ?`,
		warID, name)
	metrics.RecordDBQuery("update", "war_player", time.Since(start), err)
	return err
}

// SetWarGuild records the guild fighting a war once it has been resolved
// from participant stats, and opens the correlation row joining the war to
// a later territory capture.
func (db *DB) SetWarGuild(ctx context.Context, warID int64, guildName string) error {
	start := time.Now()
	err := db.setWarGuild(ctx, warID, guildName)
	metrics.RecordDBQuery("update", "war_log", time.Since(start), err)
	return err
}

func (db *DB) setWarGuild(ctx context.Context, warID int64, guildName string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx,
		`UPDATE war_log SET guild_name = ? WHERE id = ?`, guildName, warID); err != nil {
		return fmt.Errorf("failed to set war guild: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO guild_war_log (guild_name, war_log_id)
		 SELECT ?, ? WHERE NOT EXISTS (
		   SELECT 1 FROM guild_war_log WHERE war_log_id = ?
		 )`,
		guildName, warID, warID); err != nil {
		return fmt.Errorf("failed to open guild war log: %w", err)
	}

	return tx.Commit()
}

// TouchWar advances a war's last_up timestamp.
func (db *DB) TouchWar(ctx context.Context, warID int64, lastUp time.Time) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`UPDATE war_log SET last_up = ? WHERE id = ?`, lastUp.UTC(), warID)
	metrics.RecordDBQuery("update", "war_log", time.Since(start), err)
	return err
}

// MarkWarEnded flags a war whose world was observed empty. The war remains
// open for territory correlation until CloseWarLog.
func (db *DB) MarkWarEnded(ctx context.Context, warID int64, lastUp time.Time) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`UPDATE war_log SET ended = TRUE, last_up = ? WHERE id = ?`, lastUp.UTC(), warID)
	metrics.RecordDBQuery("update", "war_log", time.Since(start), err)
	return err
}

// CloseWarLog finalizes an ended war and removes its tracking message rows.
// Closed wars never transition back.
func (db *DB) CloseWarLog(ctx context.Context, warID int64) error {
	start := time.Now()
	err := db.closeWarLog(ctx, warID)
	metrics.RecordDBQuery("update", "war_log", time.Since(start), err)
	return err
}

func (db *DB) closeWarLog(ctx context.Context, warID int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx,
		`UPDATE war_log SET log_closed = TRUE WHERE id = ?`, warID); err != nil {
		return fmt.Errorf("failed to close war log: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM war_track WHERE war_log_id = ?`, warID); err != nil {
		return fmt.Errorf("failed to delete war tracks: %w", err)
	}

	return tx.Commit()
}

// UpsertWarTrack records the Discord message tracking a war in a channel,
// one message per (war, channel).
func (db *DB) UpsertWarTrack(ctx context.Context, track models.WarTrack) error {
	start := time.Now()
	err := db.upsertWarTrack(ctx, track)
	metrics.RecordDBQuery("upsert", "war_track", time.Since(start), err)
	return err
}

func (db *DB) upsertWarTrack(ctx context.Context, track models.WarTrack) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM war_track WHERE war_log_id = ? AND channel_id = ?`,
		track.WarLogID, track.ChannelID); err != nil {
		return fmt.Errorf("failed to clear war track: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO war_track (war_log_id, channel_id, message_id) VALUES (?, ?, ?)`,
		track.WarLogID, track.ChannelID, track.MessageID); err != nil {
		return fmt.Errorf("failed to insert war track: %w", err)
	}

	return tx.Commit()
}

// GetWarTracks returns the tracking messages for a war.
func (db *DB) GetWarTracks(ctx context.Context, warID int64) ([]models.WarTrack, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT war_log_id, channel_id, message_id FROM war_track WHERE war_log_id = ?`, warID)
	metrics.RecordDBQuery("select", "war_track", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query war tracks: %w", err)
	}
	defer closeQuietly(rows)

	var tracks []models.WarTrack
	for rows.Next() {
		var t models.WarTrack
		if err := rows.Scan(&t.WarLogID, &t.ChannelID, &t.MessageID); err != nil {
			return nil, fmt.Errorf("failed to scan war track row: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// DeleteWarTrack removes a single tracking message row, used when the
// destination channel becomes unreachable.
func (db *DB) DeleteWarTrack(ctx context.Context, warID int64, channelID string) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM war_track WHERE war_log_id = ? AND channel_id = ?`, warID, channelID)
	metrics.RecordDBQuery("delete", "war_track", time.Since(start), err)
	return err
}

// ListUnresolvedWarPlayers returns distinct participant names missing a
// UUID, oldest wars first, capped at limit.
func (db *DB) ListUnresolvedWarPlayers(ctx context.Context, limit int) ([]string, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT player_name FROM war_player
		 WHERE player_uuid IS NULL
		 ORDER BY player_name
		 LIMIT ?`, limit)
	metrics.RecordDBQuery("select", "war_player", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query unresolved war players: %w", err)
	}
	defer closeQuietly(rows)

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan player name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SetWarPlayerUUID backfills the account UUID for every war participation
// row under the given name.
func (db *DB) SetWarPlayerUUID(ctx context.Context, name, uuid string) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`UPDATE war_player SET player_uuid = ? WHERE player_name = ? AND player_uuid IS NULL`,
		uuid, name)
	metrics.RecordDBQuery("update", "war_player", time.Since(start), err)
	return err
}
