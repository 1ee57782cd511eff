// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

/*
Package models defines the persistence entities shared by the tracker core
and the database layer.

Model Categories:

 1. World state: World, PlayerNumber
 2. War history: WarLog, WarPlayer, WarTrack
 3. Territory state: Territory, TerritoryLog, GuildWarLog
 4. Guild registry: Guild, GuildLeaderboardEntry, GuildXPLeaderboardEntry
 5. Subscriptions: TrackChannel, TrackType, ChannelPrefs

All timestamps are stored in UTC. Entities are plain structs; database
concerns (scanning, transactions) live in internal/database.
*/
package models
