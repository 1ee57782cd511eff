// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/tomtom215/guildwatch/internal/config"
	"github.com/tomtom215/guildwatch/internal/mojang"
	"github.com/tomtom215/guildwatch/internal/wynn"
)

// Store is the full persistence surface the tracker set consumes,
// satisfied by *database.DB.
type Store interface {
	playerStore
	warStore
	territoryStore
	guildStore
	leaderboardStore
	backfillStore
	expiryStore
	notifierStore
}

// Set bundles the constructed trackers and their heartbeat schedule.
type Set struct {
	Player      *PlayerTracker
	War         *WarTracker
	Territory   *TerritoryTracker
	Guild       *GuildTracker
	Leaderboard *LeaderboardTracker
	Backfill    *UUIDBackfill
	Expiry      *TrackExpiry

	tasks []Task
}

// NewSet wires every tracker against shared infrastructure: one snapshot
// guard, one notifier, and one mutex serializing the player/war cycle
// against the territory cycle.
func NewSet(cfg *config.Config, api wynn.API, store Store, dest Destination, resolver mojang.Resolver) (*Set, error) {
	mainWorld, err := regexp.Compile(cfg.Tracker.MainWorldPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid main world pattern: %w", err)
	}
	warWorld, err := regexp.Compile(cfg.Tracker.WarWorldPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid war world pattern: %w", err)
	}

	guard := NewSnapshotGuard()
	notifier := NewNotifier(store, dest)
	var stateMu sync.Mutex

	wars := NewWarTracker(api, store, notifier)
	s := &Set{
		Player: NewPlayerTracker(api, store, notifier, guard, wars,
			mainWorld, warWorld, cfg.Discord.PlayerTrackerChannelID, &stateMu),
		War:         wars,
		Territory:   NewTerritoryTracker(api, store, notifier, guard, cfg.Tracker.WarLookback, &stateMu),
		Guild:       NewGuildTracker(api, store, notifier, guard, cfg.Tracker.GuildStatsInterval),
		Leaderboard: NewLeaderboardTracker(api, store, guard),
		Backfill:    NewUUIDBackfill(store, resolver),
		Expiry:      NewTrackExpiry(store, notifier),
	}

	// First delays are staggered so startup doesn't burst the upstream;
	// the player cycle goes first because war correlation depends on it.
	s.tasks = []Task{
		{Name: "player_tracker", FirstDelay: 0, Interval: cfg.Tracker.PlayerInterval, Run: s.Player.Run},
		{Name: "territory_tracker", FirstDelay: 5 * time.Second, Interval: cfg.Tracker.TerritoryInterval, Run: s.Territory.Run},
		{Name: "guild_tracker", FirstDelay: 15 * time.Second, Interval: cfg.Tracker.GuildInterval, Run: s.Guild.Run},
		{Name: "leaderboard_tracker", FirstDelay: 30 * time.Second, Interval: cfg.Tracker.LeaderboardInterval, Run: s.Leaderboard.Run},
		{Name: "uuid_backfill", FirstDelay: time.Minute, Interval: cfg.Tracker.UUIDBackfillInterval, Run: s.Backfill.Run},
		{Name: "track_expiry", FirstDelay: 2 * time.Minute, Interval: cfg.Tracker.TrackExpiryInterval, Run: s.Expiry.Run},
	}
	return s, nil
}

// Heartbeat builds the scheduler service for this set.
func (s *Set) Heartbeat() (*Heartbeat, error) {
	return NewHeartbeat(s.tasks)
}
