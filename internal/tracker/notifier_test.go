// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/guildwatch/internal/models"
)

func TestDedupeByChannel(t *testing.T) {
	a := []models.TrackChannel{
		{Type: models.TrackWarAll, ChannelID: "c1"},
		{Type: models.TrackWarAll, ChannelID: "c2"},
	}
	b := []models.TrackChannel{
		{Type: models.TrackWarSpecific, ChannelID: "c2"},
		{Type: models.TrackWarSpecific, ChannelID: "c3"},
	}

	got := dedupeByChannel(a, b)
	if len(got) != 3 {
		t.Fatalf("deduped to %d channels, want 3", len(got))
	}
	// First occurrence wins: c2 keeps the broader subscription.
	if got[1].ChannelID != "c2" || got[1].Type != models.TrackWarAll {
		t.Errorf("c2 entry = %+v, want the WAR_ALL one", got[1])
	}
}

func TestNotifier_BroadcastUsesChannelPrefs(t *testing.T) {
	store := newFakeStore()
	dest := newFakeDestination()
	n := NewNotifier(store, dest)
	ctx := context.Background()

	store.prefs["g1|c1"] = models.ChannelPrefs{
		GuildID: "g1", ChannelID: "c1",
		Timezone: "America/New_York", DateFormat: "Jan 2 15:04",
	}
	tracks := []models.TrackChannel{
		{Type: models.TrackTerritoryAll, GuildID: "g1", ChannelID: "c1"},
		{Type: models.TrackTerritoryAll, GuildID: "g2", ChannelID: "c2"},
	}

	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.Broadcast(ctx, "territory_change", dedupeByChannel(tracks), func(prefs models.ChannelPrefs) string {
		return formatTime(when, prefs)
	})

	c1 := dest.sentTo("c1")
	c2 := dest.sentTo("c2")
	if len(c1) != 1 || len(c2) != 1 {
		t.Fatalf("deliveries = %d/%d, want 1/1", len(c1), len(c2))
	}
	if c1[0].Content != "Mar 1 07:00" {
		t.Errorf("c1 content = %q, want New York local time", c1[0].Content)
	}
	if c2[0].Content != "2026/03/01 12:00:00" {
		t.Errorf("c2 content = %q, want default UTC format", c2[0].Content)
	}
}

func TestNotifier_GoneChannelDropsSubscriptions(t *testing.T) {
	store := newFakeStore()
	dest := newFakeDestination()
	n := NewNotifier(store, dest)
	ctx := context.Background()

	dest.gone["dead"] = true
	store.tracks = []models.TrackChannel{
		{Type: models.TrackWarAll, GuildID: "g1", ChannelID: "dead"},
		{Type: models.TrackTerritoryAll, GuildID: "g1", ChannelID: "dead"},
		{Type: models.TrackWarAll, GuildID: "g1", ChannelID: "alive"},
	}

	if _, err := n.Send(ctx, "war", "dead", "hello"); !errors.Is(err, ErrChannelGone) {
		t.Fatalf("Send error = %v, want ErrChannelGone", err)
	}

	for _, tc := range store.tracks {
		if tc.ChannelID == "dead" {
			t.Error("gone channel's subscriptions were not dropped")
		}
	}
	if len(store.tracks) != 1 {
		t.Errorf("remaining subscriptions = %d, want 1", len(store.tracks))
	}
}

func TestNotifier_BroadcastSurvivesDeliveryFailure(t *testing.T) {
	store := newFakeStore()
	dest := newFakeDestination()
	n := NewNotifier(store, dest)
	ctx := context.Background()

	dest.gone["dead"] = true
	tracks := []models.TrackChannel{
		{Type: models.TrackWarAll, GuildID: "g1", ChannelID: "dead"},
		{Type: models.TrackWarAll, GuildID: "g1", ChannelID: "alive"},
	}

	n.Broadcast(ctx, "war", tracks, func(models.ChannelPrefs) string { return "hello" })

	if got := len(dest.sentTo("alive")); got != 1 {
		t.Errorf("healthy channel received %d messages, want 1 despite the dead sibling", got)
	}
}
