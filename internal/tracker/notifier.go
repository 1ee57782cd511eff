// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/metrics"
	"github.com/tomtom215/guildwatch/internal/models"
)

// ErrChannelGone is wrapped by Destination implementations when a channel
// permanently rejects delivery (deleted channel, revoked permissions). The
// notifier reacts by dropping every subscription for that channel.
var ErrChannelGone = errors.New("notification channel gone")

// Destination delivers rendered notifications. Implemented by the Discord
// session wrapper; tests substitute a recorder.
type Destination interface {
	// SendMessage posts content to the channel and returns the created
	// message's ID for later in-place edits.
	SendMessage(ctx context.Context, channelID, content string) (string, error)
	// EditMessage replaces the content of an existing message.
	EditMessage(ctx context.Context, channelID, messageID, content string) error
}

// notifierStore is the subscription state the notifier needs.
type notifierStore interface {
	DeleteChannelTracks(ctx context.Context, channelID string) (int64, error)
	GetChannelPrefs(ctx context.Context, guildID, channelID string) (models.ChannelPrefs, error)
}

// Notifier fans events out to subscribed channels. Subscriptions of
// different types frequently overlap on the same channel (a channel tracking
// all wars and a specific guild's wars); the notifier deduplicates by
// channel so each event lands once per channel.
type Notifier struct {
	store notifierStore
	dest  Destination
}

func NewNotifier(store notifierStore, dest Destination) *Notifier {
	return &Notifier{store: store, dest: dest}
}

// dedupeByChannel merges subscription lists into one entry per channel,
// keeping the first occurrence. Order follows the input lists so broader
// subscriptions win the prefs lookup.
func dedupeByChannel(lists ...[]models.TrackChannel) []models.TrackChannel {
	seen := make(map[string]struct{})
	var out []models.TrackChannel
	for _, list := range lists {
		for _, tc := range list {
			if _, dup := seen[tc.ChannelID]; dup {
				continue
			}
			seen[tc.ChannelID] = struct{}{}
			out = append(out, tc)
		}
	}
	return out
}

// Broadcast renders the event once per channel, using that channel's display
// preferences, and sends it. Channels that are gone have their subscriptions
// dropped; other delivery failures are logged and skipped so one broken
// channel cannot block the rest of the fan-out.
func (n *Notifier) Broadcast(ctx context.Context, event string, tracks []models.TrackChannel, render func(prefs models.ChannelPrefs) string) {
	if len(tracks) == 0 {
		return
	}
	metrics.RecordEvent(event)

	for _, tc := range tracks {
		prefs, err := n.store.GetChannelPrefs(ctx, tc.GuildID, tc.ChannelID)
		if err != nil {
			logging.Warn().
				Err(err).
				Str("channel_id", tc.ChannelID).
				Msg("Failed to load channel prefs, using defaults")
			prefs = models.DefaultChannelPrefs(tc.GuildID, tc.ChannelID)
		}

		if _, err := n.Send(ctx, event, tc.ChannelID, render(prefs)); err != nil {
			logging.Warn().
				Err(err).
				Str("event", event).
				Str("channel_id", tc.ChannelID).
				Msg("Failed to deliver notification")
		}
	}
}

// Send delivers one message, handling gone channels and metrics. The
// returned message ID is empty on failure.
func (n *Notifier) Send(ctx context.Context, event, channelID, content string) (string, error) {
	messageID, err := n.dest.SendMessage(ctx, channelID, content)
	metrics.RecordNotification(event, err)
	if errors.Is(err, ErrChannelGone) {
		n.dropChannel(ctx, channelID)
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("failed to send to channel %s: %w", channelID, err)
	}
	return messageID, nil
}

// Edit updates a previously sent message in place.
func (n *Notifier) Edit(ctx context.Context, event, channelID, messageID, content string) error {
	err := n.dest.EditMessage(ctx, channelID, messageID, content)
	metrics.RecordNotificationEdit(event, err)
	if errors.Is(err, ErrChannelGone) {
		n.dropChannel(ctx, channelID)
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to edit message %s in channel %s: %w", messageID, channelID, err)
	}
	return nil
}

// Prefs loads a channel's display preferences, falling back to defaults.
func (n *Notifier) Prefs(ctx context.Context, guildID, channelID string) models.ChannelPrefs {
	prefs, err := n.store.GetChannelPrefs(ctx, guildID, channelID)
	if err != nil {
		return models.DefaultChannelPrefs(guildID, channelID)
	}
	return prefs
}

func (n *Notifier) dropChannel(ctx context.Context, channelID string) {
	removed, err := n.store.DeleteChannelTracks(ctx, channelID)
	if err != nil {
		logging.Error().
			Err(err).
			Str("channel_id", channelID).
			Msg("Failed to drop subscriptions for gone channel")
		return
	}
	logging.Info().
		Str("channel_id", channelID).
		Int64("removed", removed).
		Msg("Channel gone, dropped its subscriptions")
}
