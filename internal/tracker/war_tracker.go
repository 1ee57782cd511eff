// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/models"
	"github.com/tomtom215/guildwatch/internal/wynn"
)

// guildResolveAttempts caps per-cycle player stats lookups when resolving
// which guild owns a war server. Remaining players are retried next cycle.
const guildResolveAttempts = 5

// warStore is the persisted war state the tracker drives.
type warStore interface {
	GetOpenWars(ctx context.Context) ([]models.WarLog, error)
	CreateWar(ctx context.Context, serverName string, players []string, now time.Time) (int64, error)
	AddWarPlayers(ctx context.Context, warID int64, names []string) error
	MarkWarPlayersExited(ctx context.Context, warID int64, names []string) error
	ClearWarPlayerExited(ctx context.Context, warID int64, name string) error
	SetWarGuild(ctx context.Context, warID int64, guildName string) error
	TouchWar(ctx context.Context, warID int64, lastUp time.Time) error
	MarkWarEnded(ctx context.Context, warID int64, lastUp time.Time) error
	CloseWarLog(ctx context.Context, warID int64) error
	SetWarPlayerUUID(ctx context.Context, name, uuid string) error
	UpsertWarTrack(ctx context.Context, track models.WarTrack) error
	GetWarTracks(ctx context.Context, warID int64) ([]models.WarTrack, error)
	ListTracksByType(ctx context.Context, t models.TrackType) ([]models.TrackChannel, error)
	ListGuildTracks(ctx context.Context, t models.TrackType, guildName string) ([]models.TrackChannel, error)
	ListPlayerTracks(ctx context.Context, t models.TrackType, playerUUID string) ([]models.TrackChannel, error)
}

// WarTracker maintains the lifecycle of wars observed on war servers.
//
// A war server appearing in the snapshot with at least one player opens a
// war; players seen joining are added to the roster and players seen leaving
// are marked exited, never removed. When the server empties or disappears
// the war is marked ended but kept open for one more cycle, because the
// territory snapshot that carries the resulting capture typically trails the
// player snapshot; the second such observation closes the log and releases
// its channel messages.
//
// Each subscribed channel gets one message per war, edited in place as the
// roster evolves, so a channel shows a war's whole history as a single
// message.
type WarTracker struct {
	api      wynn.API
	store    warStore
	notifier *Notifier
}

func NewWarTracker(api wynn.API, store warStore, notifier *Notifier) *WarTracker {
	return &WarTracker{api: api, store: store, notifier: notifier}
}

// Process reconciles the war worlds of one accepted snapshot. worlds maps
// war server names to the players currently on them; now is the snapshot
// timestamp.
func (w *WarTracker) Process(ctx context.Context, worlds map[string][]string, now time.Time) error {
	openWars, err := w.store.GetOpenWars(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open wars: %w", err)
	}
	warsByServer := make(map[string]*models.WarLog, len(openWars))
	for i := range openWars {
		warsByServer[openWars[i].ServerName] = &openWars[i]
	}

	names := make([]string, 0, len(worlds))
	for name := range worlds {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, server := range names {
		players := worlds[server]
		war := warsByServer[server]

		// A war server listed with nobody on it never opens a war; when
		// one is already running there, the emptiness ends it just like
		// the server vanishing would.
		if len(players) == 0 {
			if war != nil {
				if err := w.endOrClose(ctx, war, now); err != nil {
					return err
				}
			}
			continue
		}

		// A server reappearing while its previous war is ended but not
		// yet closed is a new war on a recycled server name.
		if war != nil && war.Ended {
			if err := w.store.CloseWarLog(ctx, war.ID); err != nil {
				return fmt.Errorf("failed to close superseded war %d: %w", war.ID, err)
			}
			war = nil
		}

		if war == nil {
			created, err := w.openWar(ctx, server, players, now)
			if err != nil {
				return err
			}
			war = created
		} else if err := w.updateRoster(ctx, war, players, now); err != nil {
			return err
		}

		if war.GuildName == nil {
			w.resolveGuild(ctx, war)
		}

		w.publishWar(ctx, war, now, false)
	}

	// Servers with an open war that vanished from the snapshot.
	for _, server := range sortedServers(warsByServer) {
		war := warsByServer[server]
		if _, present := worlds[server]; present {
			continue
		}
		if err := w.endOrClose(ctx, war, now); err != nil {
			return err
		}
	}
	return nil
}

// endOrClose advances a war that is no longer being fought: the first
// observation marks it ended and publishes the final roster, the second
// closes the log.
func (w *WarTracker) endOrClose(ctx context.Context, war *models.WarLog, now time.Time) error {
	if !war.Ended {
		if err := w.store.MarkWarEnded(ctx, war.ID, now); err != nil {
			return fmt.Errorf("failed to mark war %d ended: %w", war.ID, err)
		}
		war.Ended = true
		war.LastUp = now
		w.publishWar(ctx, war, now, true)
		logging.Info().
			Int64("war_id", war.ID).
			Str("server", war.ServerName).
			Msg("War ended")
		return nil
	}
	if err := w.store.CloseWarLog(ctx, war.ID); err != nil {
		return fmt.Errorf("failed to close war %d: %w", war.ID, err)
	}
	logging.Debug().
		Int64("war_id", war.ID).
		Str("server", war.ServerName).
		Msg("War log closed")
	return nil
}

func (w *WarTracker) openWar(ctx context.Context, server string, players []string, now time.Time) (*models.WarLog, error) {
	id, err := w.store.CreateWar(ctx, server, players, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create war for %s: %w", server, err)
	}
	logging.Info().
		Int64("war_id", id).
		Str("server", server).
		Int("players", len(players)).
		Msg("War started")

	war := &models.WarLog{
		ID:         id,
		ServerName: server,
		CreatedAt:  now,
		LastUp:     now,
	}
	for _, name := range players {
		war.Players = append(war.Players, models.WarPlayer{WarLogID: id, Name: name})
	}
	return war, nil
}

// updateRoster applies the observed player set to the war's roster: new
// players join, previously exited players rejoining are unmarked, players no
// longer present are marked exited.
func (w *WarTracker) updateRoster(ctx context.Context, war *models.WarLog, players []string, now time.Time) error {
	present := make(map[string]struct{}, len(players))
	for _, name := range players {
		present[name] = struct{}{}
	}
	roster := make(map[string]*models.WarPlayer, len(war.Players))
	for i := range war.Players {
		roster[war.Players[i].Name] = &war.Players[i]
	}

	var joined []string
	for _, name := range players {
		existing, known := roster[name]
		switch {
		case !known:
			joined = append(joined, name)
			war.Players = append(war.Players, models.WarPlayer{WarLogID: war.ID, Name: name})
		case existing.Exited:
			if err := w.store.ClearWarPlayerExited(ctx, war.ID, name); err != nil {
				return fmt.Errorf("failed to unmark exited player %s: %w", name, err)
			}
			existing.Exited = false
		}
	}
	if len(joined) > 0 {
		if err := w.store.AddWarPlayers(ctx, war.ID, joined); err != nil {
			return fmt.Errorf("failed to add war players: %w", err)
		}
	}

	var left []string
	for name, player := range roster {
		if _, stillHere := present[name]; !stillHere && !player.Exited {
			left = append(left, name)
			player.Exited = true
		}
	}
	if len(left) > 0 {
		if err := w.store.MarkWarPlayersExited(ctx, war.ID, left); err != nil {
			return fmt.Errorf("failed to mark exited players: %w", err)
		}
	}

	if err := w.store.TouchWar(ctx, war.ID, now); err != nil {
		return fmt.Errorf("failed to touch war %d: %w", war.ID, err)
	}
	war.LastUp = now
	return nil
}

// resolveGuild looks up participants' stats until one reports a guild and
// assigns it to the war. The snapshot carries only player names; guild
// membership requires a per-player stats request, so attempts are capped and
// resumed on later cycles. UUIDs seen in the stats responses are recorded as
// a side effect, sparing the backfill task a lookup. Failure to resolve is
// not an error: a war fought by guildless accounts simply keeps a nil guild.
func (w *WarTracker) resolveGuild(ctx context.Context, war *models.WarLog) {
	attempts := 0
	for i := range war.Players {
		player := &war.Players[i]
		if player.Exited {
			continue
		}
		if attempts >= guildResolveAttempts {
			return
		}
		attempts++

		stats, err := w.api.GetPlayerStats(ctx, player.Name)
		if err != nil {
			logging.Debug().
				Err(err).
				Str("player", player.Name).
				Int64("war_id", war.ID).
				Msg("Player stats lookup failed during guild resolution")
			continue
		}
		if player.UUID == nil {
			for _, data := range stats.Data {
				if data.Username != player.Name || data.UUID == "" {
					continue
				}
				if err := w.store.SetWarPlayerUUID(ctx, player.Name, data.UUID); err != nil {
					logging.Warn().
						Err(err).
						Str("player", player.Name).
						Msg("Failed to record player UUID from stats")
					break
				}
				uuid := data.UUID
				player.UUID = &uuid
				break
			}
		}
		for _, data := range stats.Data {
			if data.Guild.Name == nil || *data.Guild.Name == "" {
				continue
			}
			guild := *data.Guild.Name
			if err := w.store.SetWarGuild(ctx, war.ID, guild); err != nil {
				logging.Error().
					Err(err).
					Int64("war_id", war.ID).
					Msg("Failed to assign war guild")
				return
			}
			war.GuildName = &guild
			logging.Info().
				Int64("war_id", war.ID).
				Str("guild", guild).
				Str("resolved_via", player.Name).
				Msg("War guild resolved")
			return
		}
	}
}

// publishWar renders the war's current state to every subscribed channel,
// creating the channel's message on first contact and editing it in place
// afterwards.
func (w *WarTracker) publishWar(ctx context.Context, war *models.WarLog, now time.Time, ended bool) {
	tracks := w.warSubscriptions(ctx, war)
	if len(tracks) == 0 {
		return
	}

	existing, err := w.store.GetWarTracks(ctx, war.ID)
	if err != nil {
		logging.Error().Err(err).Int64("war_id", war.ID).Msg("Failed to load war messages")
		return
	}
	messageByChannel := make(map[string]string, len(existing))
	for _, t := range existing {
		messageByChannel[t.ChannelID] = t.MessageID
	}

	for _, tc := range tracks {
		prefs := w.notifier.Prefs(ctx, tc.GuildID, tc.ChannelID)
		content := renderWarMessage(war, now, ended, prefs)

		if messageID, tracked := messageByChannel[tc.ChannelID]; tracked {
			if err := w.notifier.Edit(ctx, "war", tc.ChannelID, messageID, content); err != nil {
				logging.Warn().
					Err(err).
					Int64("war_id", war.ID).
					Str("channel_id", tc.ChannelID).
					Msg("Failed to update war message")
			}
			continue
		}

		messageID, err := w.notifier.Send(ctx, "war", tc.ChannelID, content)
		if err != nil {
			continue
		}
		track := models.WarTrack{WarLogID: war.ID, ChannelID: tc.ChannelID, MessageID: messageID}
		if err := w.store.UpsertWarTrack(ctx, track); err != nil {
			logging.Error().
				Err(err).
				Int64("war_id", war.ID).
				Str("channel_id", tc.ChannelID).
				Msg("Failed to record war message")
		}
	}
}

// warSubscriptions unions the all-wars subscriptions with the war guild's
// and every identified participant's, deduplicated per channel.
func (w *WarTracker) warSubscriptions(ctx context.Context, war *models.WarLog) []models.TrackChannel {
	all, err := w.store.ListTracksByType(ctx, models.TrackWarAll)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to list war subscriptions")
	}

	var guild []models.TrackChannel
	if war.GuildName != nil {
		guild, err = w.store.ListGuildTracks(ctx, models.TrackWarSpecific, *war.GuildName)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to list guild war subscriptions")
		}
	}

	var players []models.TrackChannel
	for _, p := range war.Players {
		if p.UUID == nil {
			continue
		}
		byPlayer, err := w.store.ListPlayerTracks(ctx, models.TrackWarPlayer, *p.UUID)
		if err != nil {
			logging.Warn().Err(err).Str("player", p.Name).Msg("Failed to list player war subscriptions")
			continue
		}
		players = append(players, byPlayer...)
	}

	return dedupeByChannel(all, guild, players)
}

// renderWarMessage formats a war's full state as one message. Exited players
// render struck through so the roster keeps everyone who fought.
func renderWarMessage(war *models.WarLog, now time.Time, ended bool, prefs models.ChannelPrefs) string {
	guild := "(Unknown guild)"
	if war.GuildName != nil {
		guild = *war.GuildName
	}

	names := make([]string, 0, len(war.Players))
	for _, p := range war.Players {
		if p.Exited {
			names = append(names, "~~"+p.Name+"~~")
		} else {
			names = append(names, p.Name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "War on `%s` by **%s**\n", war.ServerName, guild)
	fmt.Fprintf(&b, "Started: %s\n", formatTime(war.CreatedAt, prefs))
	fmt.Fprintf(&b, "Players (%d): %s\n", len(war.Players), strings.Join(names, ", "))
	if ended || war.Ended {
		fmt.Fprintf(&b, "Ended after %s", formatDuration(war.LastUp.Sub(war.CreatedAt)))
	} else {
		fmt.Fprintf(&b, "In progress, last seen %s", formatTime(now, prefs))
	}
	return b.String()
}

func sortedServers(wars map[string]*models.WarLog) []string {
	names := make([]string, 0, len(wars))
	for name := range wars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
