// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/guildwatch/internal/database"
	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/metrics"
	"github.com/tomtom215/guildwatch/internal/models"
	"github.com/tomtom215/guildwatch/internal/wynn"
)

// territoryStore persists territory state. The snapshot replacement, diff
// and war correlation happen inside one store transaction so a crash cannot
// leave a logged change without its updated snapshot.
type territoryStore interface {
	UpdateAllTerritories(ctx context.Context, territories []models.Territory, now time.Time, lookback time.Duration) ([]database.TerritoryChange, error)
	GetLatestTerritoryAcquired(ctx context.Context) (time.Time, bool, error)
	ListTracksByType(ctx context.Context, t models.TrackType) ([]models.TrackChannel, error)
	ListGuildTracks(ctx context.Context, t models.TrackType, guildName string) ([]models.TrackChannel, error)
}

// TerritoryTracker reconciles the territory ownership snapshot and notifies
// each ownership change, annotated with the war that caused it when one
// correlates within the lookback window.
type TerritoryTracker struct {
	api      wynn.API
	store    territoryStore
	notifier *Notifier
	guard    *SnapshotGuard

	lookback time.Duration

	// mu is shared with the player tracker; see PlayerTracker.
	mu *sync.Mutex
}

func NewTerritoryTracker(api wynn.API, store territoryStore, notifier *Notifier, guard *SnapshotGuard, lookback time.Duration, mu *sync.Mutex) *TerritoryTracker {
	return &TerritoryTracker{
		api:      api,
		store:    store,
		notifier: notifier,
		guard:    guard,
		lookback: lookback,
		mu:       mu,
	}
}

// Run performs one reconciliation cycle.
func (t *TerritoryTracker) Run(ctx context.Context) error {
	snapshot, err := t.api.GetTerritoryList(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch territory list: %w", err)
	}
	ts := snapshot.Request.Time()
	if !t.guard.Accept("territories", ts) {
		return nil
	}

	territories, err := convertTerritories(snapshot)
	if err != nil {
		return err
	}

	// The in-memory guard resets on restart; the stored acquisition times
	// say how far the persisted snapshot has advanced and protect it from
	// a replayed older one.
	if len(territories) > 0 {
		newest := territories[0].Acquired
		for _, terr := range territories[1:] {
			if terr.Acquired.After(newest) {
				newest = terr.Acquired
			}
		}
		persisted, ok, err := t.store.GetLatestTerritoryAcquired(ctx)
		if err != nil {
			return fmt.Errorf("failed to load latest territory acquisition: %w", err)
		}
		if ok && newest.Before(persisted) {
			metrics.RecordSnapshotRejected("territories", "regressed")
			logging.Warn().
				Time("snapshot_latest", newest).
				Time("persisted_latest", persisted).
				Msg("Territory snapshot older than persisted state, skipping")
			return nil
		}
	}

	t.mu.Lock()
	changes, err := t.store.UpdateAllTerritories(ctx, territories, ts, t.lookback)
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to update territories: %w", err)
	}

	for _, change := range changes {
		t.notifyChange(ctx, change)
	}
	if len(changes) > 0 {
		logging.Info().
			Int("changes", len(changes)).
			Time("snapshot", ts).
			Msg("Territory ownership changes recorded")
	}
	return nil
}

func convertTerritories(snapshot *wynn.TerritoryList) ([]models.Territory, error) {
	territories := make([]models.Territory, 0, len(snapshot.Territories))
	for name, data := range snapshot.Territories {
		// The upstream serves a null owner mid-transfer; skip the entry
		// until ownership settles rather than logging a phantom change.
		if data.Guild == nil || *data.Guild == "" {
			continue
		}
		acquired, err := data.AcquiredTime()
		if err != nil {
			return nil, fmt.Errorf("territory %s has malformed acquired time: %w", name, err)
		}
		territories = append(territories, models.Territory{
			Name:     name,
			Guild:    data.Guild,
			Attacker: data.Attacker,
			Acquired: acquired,
			Location: models.Location{
				StartX: data.Location.StartX,
				StartZ: data.Location.StartZ,
				EndX:   data.Location.EndX,
				EndZ:   data.Location.EndZ,
			},
		})
	}
	return territories, nil
}

// notifyChange fans one ownership change out to the all-territories
// subscriptions plus both involved guilds' specific subscriptions.
func (t *TerritoryTracker) notifyChange(ctx context.Context, change database.TerritoryChange) {
	log := change.Log

	all, err := t.store.ListTracksByType(ctx, models.TrackTerritoryAll)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to list territory subscriptions")
	}
	var gained, lost []models.TrackChannel
	if log.NewGuildName != nil {
		gained, err = t.store.ListGuildTracks(ctx, models.TrackTerritorySpecific, *log.NewGuildName)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to list territory subscriptions")
		}
	}
	if log.OldGuildName != nil {
		lost, err = t.store.ListGuildTracks(ctx, models.TrackTerritorySpecific, *log.OldGuildName)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to list territory subscriptions")
		}
	}

	tracks := dedupeByChannel(all, gained, lost)
	t.notifier.Broadcast(ctx, "territory_change", tracks, func(prefs models.ChannelPrefs) string {
		return renderTerritoryChange(change, prefs)
	})
}

func renderTerritoryChange(change database.TerritoryChange, prefs models.ChannelPrefs) string {
	log := change.Log

	war := "No war"
	if change.WarServerName != nil {
		war = fmt.Sprintf("War on `%s`", *change.WarServerName)
	}

	return fmt.Sprintf(
		"**%s** taken: %s (%d) → %s (%d)\nHeld for %s. %s. (%s)",
		log.TerritoryName,
		guildOrUnclaimed(log.OldGuildName), log.OldGuildTerrAmt,
		guildOrUnclaimed(log.NewGuildName), log.NewGuildTerrAmt,
		formatDuration(log.HeldFor),
		war,
		formatTime(log.Acquired, prefs),
	)
}
