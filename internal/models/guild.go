// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package models

import "time"

// Guild is one known guild, persisted when it first appears in the guild
// list snapshot and deleted when it disappears.
type Guild struct {
	Name      string
	Prefix    string
	CreatedAt time.Time
}

// GuildLeaderboardEntry is one guild's row in a leaderboard batch. Batches
// share a single UpdatedAt timestamp; history is kept long enough to compute
// XP deltas over roughly the last day, then pruned.
type GuildLeaderboardEntry struct {
	Name        string
	Prefix      string
	XP          int64
	Level       int
	Num         int
	Territories int
	Members     int
	UpdatedAt   time.Time
}

// GuildXPLeaderboardEntry is one guild's computed XP gain over the retained
// leaderboard history. Deltas spanning a level-up count only the
// post-level-up XP because the per-level XP cap is unknown upstream; this is
// a documented inaccuracy of the source data, not something to correct here.
type GuildXPLeaderboardEntry struct {
	Name   string
	Prefix string
	Level  int
	XP     int64
	XPDiff int64
	From   time.Time
	To     time.Time
}
