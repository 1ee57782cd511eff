// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/models"
	"github.com/tomtom215/guildwatch/internal/wynn"
)

// guildStore persists the known-guilds set.
type guildStore interface {
	ListGuildNames(ctx context.Context) ([]string, error)
	GetGuild(ctx context.Context, name string) (*models.Guild, error)
	UpsertGuild(ctx context.Context, g models.Guild) error
	DeleteGuild(ctx context.Context, name string) error
	ListTracksByType(ctx context.Context, t models.TrackType) ([]models.TrackChannel, error)
}

// GuildTracker reconciles the guild list: guilds appearing in the snapshot
// are fetched in detail and stored, guilds disappearing are removed, and
// both transitions are announced to the guild-creation/-deletion
// subscriptions.
type GuildTracker struct {
	api      wynn.API
	store    guildStore
	notifier *Notifier
	guard    *SnapshotGuard

	// statsLimiter paces the sequential per-guild stats fetches after a
	// snapshot introduces many new guilds at once (notably the very first
	// run, which sees every guild as new).
	statsLimiter *rate.Limiter
}

func NewGuildTracker(api wynn.API, store guildStore, notifier *Notifier, guard *SnapshotGuard, statsInterval time.Duration) *GuildTracker {
	return &GuildTracker{
		api:          api,
		store:        store,
		notifier:     notifier,
		guard:        guard,
		statsLimiter: rate.NewLimiter(rate.Every(statsInterval), 1),
	}
}

// Run performs one reconciliation cycle.
func (g *GuildTracker) Run(ctx context.Context) error {
	snapshot, err := g.api.GetGuildList(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch guild list: %w", err)
	}
	ts := snapshot.Request.Time()
	if !g.guard.Accept("guild_list", ts) {
		return nil
	}

	stored, err := g.store.ListGuildNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored guilds: %w", err)
	}
	storedSet := make(map[string]struct{}, len(stored))
	for _, name := range stored {
		storedSet[name] = struct{}{}
	}
	currentSet := make(map[string]struct{}, len(snapshot.Guilds))
	for _, name := range snapshot.Guilds {
		currentSet[name] = struct{}{}
	}

	var created, deleted []string
	for name := range currentSet {
		if _, known := storedSet[name]; !known {
			created = append(created, name)
		}
	}
	for name := range storedSet {
		if _, present := currentSet[name]; !present {
			deleted = append(deleted, name)
		}
	}
	sort.Strings(created)
	sort.Strings(deleted)

	// The first run sees every guild as new; suppress the announcement
	// flood and just seed the table.
	announce := len(stored) > 0

	if err := g.handleCreated(ctx, created, announce); err != nil {
		return err
	}
	g.handleDeleted(ctx, deleted, announce)
	return nil
}

func (g *GuildTracker) handleCreated(ctx context.Context, created []string, announce bool) error {
	for _, name := range created {
		if err := g.statsLimiter.Wait(ctx); err != nil {
			return err
		}

		stats, err := g.api.GetGuildStats(ctx, name)
		if err != nil {
			// Not stored, so the name is still missing from the persisted
			// set and gets retried next cycle.
			logging.Warn().
				Err(err).
				Str("guild", name).
				Msg("Failed to fetch stats for new guild, skipping")
			continue
		}

		guild := models.Guild{Name: name, Prefix: stats.Prefix}
		if createdAt, err := stats.CreatedTime(); err == nil {
			guild.CreatedAt = createdAt
		}
		owner := stats.Owner()
		if owner == "" {
			owner = "(Unknown owner)"
		}
		members := len(stats.Members)

		if err := g.store.UpsertGuild(ctx, guild); err != nil {
			return fmt.Errorf("failed to store guild %s: %w", name, err)
		}
		logging.Info().Str("guild", name).Msg("Guild created")

		if !announce {
			continue
		}
		tracks, err := g.store.ListTracksByType(ctx, models.TrackGuildCreate)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to list guild creation subscriptions")
			continue
		}
		createdAt := guild.CreatedAt
		prefix := guild.Prefix
		g.notifier.Broadcast(ctx, "guild_create", dedupeByChannel(tracks), func(prefs models.ChannelPrefs) string {
			title := fmt.Sprintf("Guild **%s**", name)
			if prefix != "" {
				title = fmt.Sprintf("Guild **%s** [%s]", name, prefix)
			}
			msg := fmt.Sprintf("%s created. Owner: %s, Members: %d", title, owner, members)
			if !createdAt.IsZero() {
				msg += fmt.Sprintf(", Created: %s", formatTime(createdAt, prefs))
			}
			return msg
		})
	}
	return nil
}

func (g *GuildTracker) handleDeleted(ctx context.Context, deleted []string, announce bool) {
	for _, name := range deleted {
		// The row is about to go; its prefix only survives in the
		// announcement.
		var prefix string
		if stored, err := g.store.GetGuild(ctx, name); err == nil {
			prefix = stored.Prefix
		}

		if err := g.store.DeleteGuild(ctx, name); err != nil {
			logging.Error().Err(err).Str("guild", name).Msg("Failed to delete guild")
			continue
		}
		logging.Info().Str("guild", name).Msg("Guild deleted")

		if !announce {
			continue
		}
		tracks, err := g.store.ListTracksByType(ctx, models.TrackGuildDelete)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to list guild deletion subscriptions")
			continue
		}
		guildName := name
		g.notifier.Broadcast(ctx, "guild_delete", dedupeByChannel(tracks), func(prefs models.ChannelPrefs) string {
			if prefix != "" {
				return fmt.Sprintf("Guild **%s** [%s] deleted.", guildName, prefix)
			}
			return fmt.Sprintf("Guild **%s** deleted.", guildName)
		})
	}
}
