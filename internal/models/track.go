// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package models

import "time"

// TrackType identifies what kind of event a subscription listens for and at
// which scope (all, guild-specific, player-specific).
type TrackType string

const (
	TrackWarAll       TrackType = "WAR_ALL"
	TrackWarSpecific  TrackType = "WAR_SPECIFIC"
	TrackWarPlayer    TrackType = "WAR_PLAYER"
	TrackTerritoryAll TrackType = "TERRITORY_ALL"
	TrackTerritorySpecific TrackType = "TERRITORY_SPECIFIC"
	// Main-world servers only (WC/EU naming pattern).
	TrackServerStart TrackType = "SERVER_START"
	TrackServerClose TrackType = "SERVER_CLOSE"
	// Every non-war server.
	TrackServerStartAll TrackType = "SERVER_START_ALL"
	TrackServerCloseAll TrackType = "SERVER_CLOSE_ALL"
	TrackGuildCreate    TrackType = "GUILD_CREATE"
	TrackGuildDelete    TrackType = "GUILD_DELETE"
)

// DisplayName returns the human-readable name used in expiry notices.
func (t TrackType) DisplayName() string {
	switch t {
	case TrackWarAll:
		return "War Tracking (All Guilds)"
	case TrackWarSpecific:
		return "War Tracking (Specific Guild)"
	case TrackWarPlayer:
		return "War Tracking (Specific Player)"
	case TrackTerritoryAll:
		return "Territory Tracking (All Guilds)"
	case TrackTerritorySpecific:
		return "Territory Tracking (Specific Guild)"
	case TrackServerStart:
		return "Server Start Tracking (Main Servers)"
	case TrackServerClose:
		return "Server Close Tracking (Main Servers)"
	case TrackServerStartAll:
		return "Server Start Tracking (All Servers)"
	case TrackServerCloseAll:
		return "Server Close Tracking (All Servers)"
	case TrackGuildCreate:
		return "Guild Creation"
	case TrackGuildDelete:
		return "Guild Deletion"
	default:
		return string(t)
	}
}

// TrackChannel is one subscription: a Discord channel registered to receive
// notifications for a track type, optionally scoped to a guild name or a
// player UUID, with an expiry. Subscriptions are created by user commands
// outside this service; the tracker core only reads them, deletes them when
// expired, and drops them when the destination channel is gone.
type TrackChannel struct {
	Type      TrackType
	GuildID   string
	ChannelID string
	// GuildName scopes WAR_SPECIFIC and TERRITORY_SPECIFIC subscriptions.
	GuildName *string
	// PlayerUUID scopes WAR_PLAYER subscriptions.
	PlayerUUID *string
	ExpiresAt  time.Time
}

// ChannelPrefs holds a channel's display preferences for rendered
// timestamps.
type ChannelPrefs struct {
	GuildID    string
	ChannelID  string
	Timezone   string
	DateFormat string
}

// DefaultChannelPrefs is applied when a channel has no stored preferences.
func DefaultChannelPrefs(guildID, channelID string) ChannelPrefs {
	return ChannelPrefs{
		GuildID:    guildID,
		ChannelID:  channelID,
		Timezone:   "UTC",
		DateFormat: "2006/01/02 15:04:05",
	}
}
