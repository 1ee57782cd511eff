// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/metrics"
	"github.com/tomtom215/guildwatch/internal/models"
)

// expiryStore removes expired subscriptions.
type expiryStore interface {
	DeleteExpiredTracks(ctx context.Context, now time.Time) ([]models.TrackChannel, error)
}

// TrackExpiry sweeps expired subscriptions and posts a notice to each
// affected channel so subscribers know to renew rather than silently
// stopping.
type TrackExpiry struct {
	store    expiryStore
	notifier *Notifier

	now func() time.Time
}

func NewTrackExpiry(store expiryStore, notifier *Notifier) *TrackExpiry {
	return &TrackExpiry{store: store, notifier: notifier, now: time.Now}
}

// Run performs one sweep.
func (t *TrackExpiry) Run(ctx context.Context) error {
	expired, err := t.store.DeleteExpiredTracks(ctx, t.now())
	if err != nil {
		return fmt.Errorf("failed to delete expired subscriptions: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}
	metrics.TracksExpired.Add(float64(len(expired)))
	logging.Info().Int("expired", len(expired)).Msg("Expired subscriptions removed")

	for _, tc := range expired {
		scope := ""
		if tc.GuildName != nil {
			scope = fmt.Sprintf(" for guild %s", *tc.GuildName)
		}
		content := fmt.Sprintf("Subscription expired: %s%s. Re-register to keep receiving updates.",
			tc.Type.DisplayName(), scope)
		if _, err := t.notifier.Send(ctx, "track_expired", tc.ChannelID, content); err != nil {
			logging.Warn().
				Err(err).
				Str("channel_id", tc.ChannelID).
				Str("type", string(tc.Type)).
				Msg("Failed to send expiry notice")
		}
	}
	return nil
}
