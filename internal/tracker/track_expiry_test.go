// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/guildwatch/internal/models"
)

func TestTrackExpiry_RemovesAndNotifies(t *testing.T) {
	store := newFakeStore()
	dest := newFakeDestination()
	te := NewTrackExpiry(store, NewNotifier(store, dest))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	te.now = func() time.Time { return now }

	store.tracks = []models.TrackChannel{
		{Type: models.TrackWarSpecific, GuildID: "g1", ChannelID: "c1",
			GuildName: strPtr("AlphaGuild"), ExpiresAt: now.Add(-time.Minute)},
		{Type: models.TrackTerritoryAll, GuildID: "g1", ChannelID: "c2",
			ExpiresAt: now.Add(time.Hour)},
	}

	if err := te.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(store.tracks) != 1 || store.tracks[0].ChannelID != "c2" {
		t.Errorf("remaining subscriptions = %+v, want only the live one", store.tracks)
	}
	notices := dest.sentTo("c1")
	if len(notices) != 1 {
		t.Fatalf("expiry notices = %d, want 1", len(notices))
	}
	if !strings.Contains(notices[0].Content, "AlphaGuild") ||
		!strings.Contains(notices[0].Content, models.TrackWarSpecific.DisplayName()) {
		t.Errorf("expiry notice = %q, want subscription type and guild scope", notices[0].Content)
	}
	if got := len(dest.sentTo("c2")); got != 0 {
		t.Errorf("live channel received %d notices, want 0", got)
	}
}

func TestTrackExpiry_NoExpiredIsQuiet(t *testing.T) {
	store := newFakeStore()
	dest := newFakeDestination()
	te := NewTrackExpiry(store, NewNotifier(store, dest))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	te.now = func() time.Time { return now }

	store.tracks = []models.TrackChannel{
		{Type: models.TrackWarAll, GuildID: "g1", ChannelID: "c1", ExpiresAt: now.Add(time.Hour)},
	}

	if err := te.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(dest.sent) != 0 {
		t.Errorf("sent %d messages with nothing expired", len(dest.sent))
	}
}
