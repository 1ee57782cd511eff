// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package models

import "time"

// WarLog records one war's lifecycle on a war server.
//
// Ended and LogClosed are distinct states: an ended war stays in the open
// working set for one extra cycle so that territory changes landing just
// after the fight can still be correlated with it. Only after a second
// empty observation is the record log-closed and evicted from the working
// set. Invariant: LogClosed implies Ended. The row itself is permanent
// history and is never deleted.
type WarLog struct {
	ID        int64
	ServerName string
	// GuildName is resolved asynchronously from participant stats and may
	// stay nil for the whole war if no participant reports a guild.
	GuildName *string
	CreatedAt time.Time
	LastUp    time.Time
	Ended     bool
	LogClosed bool
	Players   []WarPlayer
}

// WarPlayer is one participant of a war. Players are never removed from the
// roster; a participant observed leaving before the war ends is marked
// Exited instead so the final report shows everyone who fought.
type WarPlayer struct {
	WarLogID int64
	Name     string
	// UUID is resolved best-effort via the name-lookup service and may be
	// nil until the backfill task fills it in.
	UUID   *string
	Exited bool
}

// WarTrack maps a war log to the message the notifier manages in one
// channel, so that subsequent updates of a still-open war edit the message
// in place instead of sending a new one. Rows are deleted once the war is
// log-closed.
type WarTrack struct {
	WarLogID  int64
	ChannelID string
	MessageID string
}
