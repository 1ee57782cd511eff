// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package models

import "time"

// Location is the rectangular map area of a territory.
type Location struct {
	StartX int
	StartZ int
	EndX   int
	EndZ   int
}

// Territory is the current ownership state of one map territory, keyed by
// name. The whole table is replaced on every accepted snapshot; each row
// whose owning guild changed produces one TerritoryLog.
type Territory struct {
	Name string
	// Guild is nil while the territory is unclaimed or the upstream serves
	// a transient null owner.
	Guild    *string
	Attacker *string
	Acquired time.Time
	Location Location
}

// TerritoryLog is one append-only ownership-change record. The guild
// territory counts are captured at the moment of the change, applied
// incrementally across the changes of a single snapshot so each log reflects
// totals immediately after that one change.
type TerritoryLog struct {
	ID            int64
	TerritoryName string
	// OldGuildName is nil when the territory had no previous owner.
	OldGuildName    *string
	NewGuildName    *string
	OldGuildTerrAmt int
	NewGuildTerrAmt int
	Acquired time.Time
	// HeldFor is how long the previous owner held the territory.
	HeldFor time.Duration
}

// GuildWarLog joins a territory change to the war (if any) that caused it.
// WarLogID is nil when no open war matched at correlation time; the
// notification then renders as "No war".
type GuildWarLog struct {
	ID             int64
	GuildName      string
	WarLogID       *int64
	TerritoryLogID *int64
}
