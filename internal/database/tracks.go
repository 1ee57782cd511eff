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

// UpsertTrack inserts or refreshes a tracking subscription. The identity of
// a subscription is (type, guild, channel, scope target); re-registering
// resets the expiry.
func (db *DB) UpsertTrack(ctx context.Context, tc models.TrackChannel) error {
	start := time.Now()
	err := db.upsertTrack(ctx, tc)
	metrics.RecordDBQuery("upsert", "track_channel", time.Since(start), err)
	return err
}

func (db *DB) upsertTrack(ctx context.Context, tc models.TrackChannel) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if err := deleteTrackInTx(ctx, tx, tc); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO track_channel (type, guild_id, channel_id, guild_name, player_uuid, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(tc.Type), tc.GuildID, tc.ChannelID, tc.GuildName, tc.PlayerUUID, tc.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}

	return tx.Commit()
}

// DeleteTrack removes a tracking subscription.
func (db *DB) DeleteTrack(ctx context.Context, tc models.TrackChannel) error {
	start := time.Now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if err := deleteTrackInTx(ctx, tx, tc); err != nil {
		metrics.RecordDBQuery("delete", "track_channel", time.Since(start), err)
		return err
	}
	err = tx.Commit()
	metrics.RecordDBQuery("delete", "track_channel", time.Since(start), err)
	return err
}

// deleteTrackInTx matches on the subscription identity; NULL scope columns
// compare with IS NOT DISTINCT FROM so guild- and player-scoped rows do not
// collide with the unscoped variants.
func deleteTrackInTx(ctx context.Context, tx *sql.Tx, tc models.TrackChannel) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM track_channel
		 WHERE type = ? AND guild_id = ? AND channel_id = ?
		   AND guild_name IS NOT DISTINCT FROM ?
		   AND player_uuid IS NOT DISTINCT FROM ?`,
		string(tc.Type), tc.GuildID, tc.ChannelID, tc.GuildName, tc.PlayerUUID); err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	return nil
}

// DeleteChannelTracks removes every subscription pointing at a channel,
// used when the channel is gone (HTTP 403/404 from the destination).
func (db *DB) DeleteChannelTracks(ctx context.Context, channelID string) (int64, error) {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM track_channel WHERE channel_id = ?`, channelID)
	metrics.RecordDBQuery("delete", "track_channel", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete channel tracks: %w", err)
	}
	return res.RowsAffected()
}

// ListTracksByType returns all subscriptions of the given type.
func (db *DB) ListTracksByType(ctx context.Context, t models.TrackType) ([]models.TrackChannel, error) {
	return db.tracksByQuery(ctx,
		`SELECT type, guild_id, channel_id, guild_name, player_uuid, expires_at
		 FROM track_channel WHERE type = ?`, string(t))
}

// ListGuildTracks returns subscriptions of the given type scoped to a guild.
func (db *DB) ListGuildTracks(ctx context.Context, t models.TrackType, guildName string) ([]models.TrackChannel, error) {
	return db.tracksByQuery(ctx,
		`SELECT type, guild_id, channel_id, guild_name, player_uuid, expires_at
		 FROM track_channel WHERE type = ? AND guild_name = ?`, string(t), guildName)
}

// ListPlayerTracks returns subscriptions of the given type scoped to a
// player UUID.
func (db *DB) ListPlayerTracks(ctx context.Context, t models.TrackType, playerUUID string) ([]models.TrackChannel, error) {
	return db.tracksByQuery(ctx,
		`SELECT type, guild_id, channel_id, guild_name, player_uuid, expires_at
		 FROM track_channel WHERE type = ? AND player_uuid = ?`, string(t), playerUUID)
}

func (db *DB) tracksByQuery(ctx context.Context, query string, args ...interface{}) ([]models.TrackChannel, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("select", "track_channel", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer closeQuietly(rows)

	var tracks []models.TrackChannel
	for rows.Next() {
		tc, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, tc)
	}
	return tracks, rows.Err()
}

func scanTrack(rows *sql.Rows) (models.TrackChannel, error) {
	var tc models.TrackChannel
	var typ string
	var guildName, playerUUID sql.NullString
	if err := rows.Scan(&typ, &tc.GuildID, &tc.ChannelID, &guildName, &playerUUID, &tc.ExpiresAt); err != nil {
		return tc, fmt.Errorf("failed to scan track row: %w", err)
	}
	tc.Type = models.TrackType(typ)
	if guildName.Valid {
		tc.GuildName = &guildName.String
	}
	if playerUUID.Valid {
		tc.PlayerUUID = &playerUUID.String
	}
	tc.ExpiresAt = tc.ExpiresAt.UTC()
	return tc, nil
}

// DeleteExpiredTracks removes subscriptions whose expiry has passed and
// returns them so the sweeper can post expiry notices.
func (db *DB) DeleteExpiredTracks(ctx context.Context, now time.Time) ([]models.TrackChannel, error) {
	start := time.Now()
	expired, err := db.deleteExpiredTracks(ctx, now)
	metrics.RecordDBQuery("delete", "track_channel", time.Since(start), err)
	return expired, err
}

func (db *DB) deleteExpiredTracks(ctx context.Context, now time.Time) ([]models.TrackChannel, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	rows, err := tx.QueryContext(ctx,
		`SELECT type, guild_id, channel_id, guild_name, player_uuid, expires_at
		 FROM track_channel WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query expired tracks: %w", err)
	}

	var expired []models.TrackChannel
	for rows.Next() {
		tc, err := scanTrack(rows)
		if err != nil {
			closeQuietly(rows)
			return nil, err
		}
		expired = append(expired, tc)
	}
	if err := rows.Err(); err != nil {
		closeQuietly(rows)
		return nil, err
	}
	closeQuietly(rows)

	if len(expired) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM track_channel WHERE expires_at <= ?`, now.UTC()); err != nil {
		return nil, fmt.Errorf("failed to delete expired tracks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return expired, nil
}

// GetChannelPrefs returns the display preferences for a channel, falling
// back to defaults when none are stored.
func (db *DB) GetChannelPrefs(ctx context.Context, guildID, channelID string) (models.ChannelPrefs, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT guild_id, channel_id, timezone, date_format
		 FROM channel_prefs WHERE guild_id = ? AND channel_id = ?`,
		guildID, channelID)

	var prefs models.ChannelPrefs
	err := row.Scan(&prefs.GuildID, &prefs.ChannelID, &prefs.Timezone, &prefs.DateFormat)
	metrics.RecordDBQuery("select", "channel_prefs", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultChannelPrefs(guildID, channelID), nil
	}
	if err != nil {
		return prefs, fmt.Errorf("failed to query channel prefs: %w", err)
	}
	return prefs, nil
}

// SetChannelPrefs stores display preferences for a channel.
func (db *DB) SetChannelPrefs(ctx context.Context, prefs models.ChannelPrefs) error {
	start := time.Now()
	err := db.setChannelPrefs(ctx, prefs)
	metrics.RecordDBQuery("upsert", "channel_prefs", time.Since(start), err)
	return err
}

func (db *DB) setChannelPrefs(ctx context.Context, prefs models.ChannelPrefs) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM channel_prefs WHERE guild_id = ? AND channel_id = ?`,
		prefs.GuildID, prefs.ChannelID); err != nil {
		return fmt.Errorf("failed to clear channel prefs: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO channel_prefs (guild_id, channel_id, timezone, date_format) VALUES (?, ?, ?, ?)`,
		prefs.GuildID, prefs.ChannelID, prefs.Timezone, prefs.DateFormat); err != nil {
		return fmt.Errorf("failed to insert channel prefs: %w", err)
	}

	return tx.Commit()
}
