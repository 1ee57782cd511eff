// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/metrics"
	"github.com/tomtom215/guildwatch/internal/models"
	"github.com/tomtom215/guildwatch/internal/wynn"
)

// playerStore is the persisted state the player tracker reconciles against.
type playerStore interface {
	GetWorlds(ctx context.Context) ([]models.World, error)
	UpdateAllWorlds(ctx context.Context, worlds []models.World) error
	InsertPlayerNumber(ctx context.Context, pn models.PlayerNumber) error
	GetOldestPlayerNumberTime(ctx context.Context) (time.Time, bool, error)
	GetPlayerNumberRange(ctx context.Context, from, to time.Time) (minCount, maxCount int, ok bool, err error)
	DeletePlayerNumbersBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListTracksByType(ctx context.Context, t models.TrackType) ([]models.TrackChannel, error)
}

// PlayerTracker reconciles the online-players snapshot: it maintains the
// world list (preserving first-seen times across snapshots), notifies server
// start/close subscriptions, samples the total player count for the daily
// report, and hands the war worlds to the war tracker.
type PlayerTracker struct {
	api      wynn.API
	store    playerStore
	notifier *Notifier
	guard    *SnapshotGuard
	wars     *WarTracker

	mainWorld *regexp.Regexp
	warWorld  *regexp.Regexp

	// reportChannelID receives the daily min/max player summary; empty
	// disables the report.
	reportChannelID string

	// mu serializes the player/war cycle against the territory cycle so
	// war correlation never races a roster update.
	mu *sync.Mutex
}

func NewPlayerTracker(api wynn.API, store playerStore, notifier *Notifier, guard *SnapshotGuard, wars *WarTracker, mainPattern, warPattern *regexp.Regexp, reportChannelID string, mu *sync.Mutex) *PlayerTracker {
	return &PlayerTracker{
		api:             api,
		store:           store,
		notifier:        notifier,
		guard:           guard,
		wars:            wars,
		mainWorld:       mainPattern,
		warWorld:        warPattern,
		reportChannelID: reportChannelID,
		mu:              mu,
	}
}

// Run performs one reconciliation cycle.
func (p *PlayerTracker) Run(ctx context.Context) error {
	snapshot, err := p.api.GetOnlinePlayers(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch online players: %w", err)
	}
	ts := snapshot.Request.Time()
	if !p.guard.Accept("online_players", ts) {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	stored, err := p.store.GetWorlds(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored worlds: %w", err)
	}
	storedByName := make(map[string]models.World, len(stored))
	for _, w := range stored {
		storedByName[w.Name] = w
		// The in-memory guard resets on restart; the persisted update
		// times protect the stored state from a replayed older snapshot.
		if ts.Before(w.UpdatedAt) {
			metrics.RecordSnapshotRejected("online_players", "regressed")
			logging.Warn().
				Time("timestamp", ts).
				Time("persisted", w.UpdatedAt).
				Msg("Snapshot older than persisted world state, skipping")
			return nil
		}
	}

	// Lobby and other unclassified servers are counted for the player
	// total but not persisted as worlds.
	current := make([]models.World, 0, len(snapshot.Worlds))
	warWorlds := make(map[string][]string)
	totalPlayers := 0
	for name, players := range snapshot.Worlds {
		totalPlayers += len(players)

		isWar := p.warWorld.MatchString(name)
		if !isWar && !p.mainWorld.MatchString(name) {
			continue
		}
		if isWar {
			warWorlds[name] = players
		}

		w := models.World{Name: name, Players: len(players), CreatedAt: ts, UpdatedAt: ts}
		if prev, ok := storedByName[name]; ok {
			w.CreatedAt = prev.CreatedAt
		}
		current = append(current, w)
	}

	p.notifyServerChanges(ctx, storedByName, current, ts)

	if err := p.store.UpdateAllWorlds(ctx, current); err != nil {
		return fmt.Errorf("failed to update worlds: %w", err)
	}
	if err := p.store.InsertPlayerNumber(ctx, models.PlayerNumber{Time: ts, Count: totalPlayers}); err != nil {
		return fmt.Errorf("failed to record player count: %w", err)
	}

	p.maybeSendDailyReport(ctx, ts)

	if err := p.wars.Process(ctx, warWorlds, ts); err != nil {
		return fmt.Errorf("war tracking failed: %w", err)
	}
	return nil
}

// notifyServerChanges fans out start/close events. Main-pattern servers
// additionally match the main-only subscription types; war servers are
// excluded entirely, they are reported through war tracking.
func (p *PlayerTracker) notifyServerChanges(ctx context.Context, stored map[string]models.World, current []models.World, now time.Time) {
	currentByName := make(map[string]models.World, len(current))
	for _, w := range current {
		currentByName[w.Name] = w
	}

	var started, closed []models.World
	for _, w := range current {
		if _, existed := stored[w.Name]; !existed && !p.warWorld.MatchString(w.Name) {
			started = append(started, w)
		}
	}
	for name, w := range stored {
		if _, present := currentByName[name]; !present && !p.warWorld.MatchString(name) {
			closed = append(closed, w)
		}
	}
	sort.Slice(started, func(i, j int) bool { return started[i].Name < started[j].Name })
	sort.Slice(closed, func(i, j int) bool { return closed[i].Name < closed[j].Name })

	for _, w := range started {
		name := w.Name
		tracks := p.serverTracks(ctx, models.TrackServerStartAll, models.TrackServerStart, name)
		p.notifier.Broadcast(ctx, "server_start", tracks, func(prefs models.ChannelPrefs) string {
			return fmt.Sprintf("Server `%s` has started. (%s)", name, formatTime(now, prefs))
		})
	}
	for _, w := range closed {
		name := w.Name
		uptime := formatDuration(now.Sub(w.CreatedAt))
		tracks := p.serverTracks(ctx, models.TrackServerCloseAll, models.TrackServerClose, name)
		p.notifier.Broadcast(ctx, "server_close", tracks, func(prefs models.ChannelPrefs) string {
			return fmt.Sprintf("Server `%s` has closed. Uptime: %s (%s)", name, uptime, formatTime(now, prefs))
		})
	}
}

// serverTracks unions the all-servers subscriptions with the main-only ones
// when the server matches the main pattern.
func (p *PlayerTracker) serverTracks(ctx context.Context, allType, mainType models.TrackType, serverName string) []models.TrackChannel {
	all, err := p.store.ListTracksByType(ctx, allType)
	if err != nil {
		logging.Warn().Err(err).Str("type", string(allType)).Msg("Failed to list subscriptions")
	}
	var main []models.TrackChannel
	if p.mainWorld.MatchString(serverName) {
		main, err = p.store.ListTracksByType(ctx, mainType)
		if err != nil {
			logging.Warn().Err(err).Str("type", string(mainType)).Msg("Failed to list subscriptions")
		}
	}
	return dedupeByChannel(all, main)
}

// maybeSendDailyReport posts the accumulated min/max player counts once the
// snapshot's UTC day differs from the oldest stored sample's, then truncates
// the consumed samples. The boundary is derived from the store rather than
// memory so a restart spanning midnight still produces the report.
func (p *PlayerTracker) maybeSendDailyReport(ctx context.Context, ts time.Time) {
	oldest, ok, err := p.store.GetOldestPlayerNumberTime(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load oldest player count sample")
		return
	}
	if !ok {
		return
	}

	day := ts.UTC().Truncate(24 * time.Hour)
	oldestDay := oldest.UTC().Truncate(24 * time.Hour)
	if !day.After(oldestDay) {
		return
	}

	if p.reportChannelID != "" {
		minCount, maxCount, found, err := p.store.GetPlayerNumberRange(ctx, oldestDay, day)
		if err != nil {
			logging.Error().Err(err).Msg("Failed to compute daily player range")
			return
		}
		if found {
			content := fmt.Sprintf("Player count for %s: min %d, max %d",
				oldestDay.Format("2006-01-02"), minCount, maxCount)
			if _, err := p.notifier.Send(ctx, "player_report", p.reportChannelID, content); err != nil {
				logging.Warn().Err(err).Msg("Failed to send daily player report")
				return
			}
		}
	}

	if _, err := p.store.DeletePlayerNumbersBefore(ctx, day); err != nil {
		logging.Warn().Err(err).Msg("Failed to truncate player count samples")
	}
}
