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
	"github.com/tomtom215/guildwatch/internal/wynn"
)

func newGuildTestRig(t *testing.T) (*GuildTracker, *fakeStore, *fakeDestination, *fakeAPI) {
	t.Helper()
	store := newFakeStore()
	dest := newFakeDestination()
	api := &fakeAPI{guildStats: make(map[string]*wynn.GuildStats)}
	gt := NewGuildTracker(api, store, NewNotifier(store, dest), NewSnapshotGuard(), time.Millisecond)
	return gt, store, dest, api
}

func guildListSnapshot(ts time.Time, names ...string) *wynn.GuildList {
	return &wynn.GuildList{
		Request: wynn.RequestMeta{Timestamp: ts.Unix()},
		Guilds:  names,
	}
}

func TestGuildTracker_FirstRunSeedsWithoutAnnouncing(t *testing.T) {
	gt, store, dest, api := newGuildTestRig(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.tracks = []models.TrackChannel{
		{Type: models.TrackGuildCreate, GuildID: "g1", ChannelID: "chan-1", ExpiresAt: t0.Add(time.Hour)},
	}
	api.guildList = guildListSnapshot(t0, "AlphaGuild", "BetaGuild")
	api.guildStats["AlphaGuild"] = &wynn.GuildStats{Name: "AlphaGuild", Prefix: "ALP"}
	api.guildStats["BetaGuild"] = &wynn.GuildStats{Name: "BetaGuild", Prefix: "BET"}

	if err := gt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.guilds) != 2 {
		t.Fatalf("stored %d guilds, want 2", len(store.guilds))
	}
	if got := len(dest.sentTo("chan-1")); got != 0 {
		t.Errorf("first run sent %d announcements, want 0", got)
	}
}

func TestGuildTracker_AnnouncesCreationWithStats(t *testing.T) {
	gt, store, dest, api := newGuildTestRig(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.guilds["AlphaGuild"] = models.Guild{Name: "AlphaGuild"}
	store.tracks = []models.TrackChannel{
		{Type: models.TrackGuildCreate, GuildID: "g1", ChannelID: "chan-1", ExpiresAt: t0.Add(time.Hour)},
	}
	api.guildList = guildListSnapshot(t0, "AlphaGuild", "NewGuild")
	api.guildStats["NewGuild"] = &wynn.GuildStats{
		Name:    "NewGuild",
		Prefix:  "NEW",
		Created: "2026-03-01T11:55:00.000Z",
		Members: []wynn.GuildMember{{Name: "Founder", Rank: "OWNER"}},
	}

	if err := gt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	msgs := dest.sentTo("chan-1")
	if len(msgs) != 1 {
		t.Fatalf("announcements = %d, want 1", len(msgs))
	}
	for _, want := range []string{"NewGuild", "NEW", "Founder", "Members: 1", "2026/03/01 11:55:00"} {
		if !strings.Contains(msgs[0].Content, want) {
			t.Errorf("announcement missing %q: %q", want, msgs[0].Content)
		}
	}
	if g := store.guilds["NewGuild"]; g.Prefix != "NEW" {
		t.Errorf("stored prefix = %q, want NEW", g.Prefix)
	}
}

func TestGuildTracker_StatsFailureSkipsUntilNextCycle(t *testing.T) {
	gt, store, dest, api := newGuildTestRig(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.guilds["AlphaGuild"] = models.Guild{Name: "AlphaGuild"}
	store.tracks = []models.TrackChannel{
		{Type: models.TrackGuildCreate, GuildID: "g1", ChannelID: "chan-1", ExpiresAt: t0.Add(time.Hour)},
	}
	// No stats registered for Mystery, so the fetch fails. The guild must
	// not be recorded, keeping it eligible for retry on the next cycle.
	api.guildList = guildListSnapshot(t0, "AlphaGuild", "Mystery")

	if err := gt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, stored := store.guilds["Mystery"]; stored {
		t.Error("guild with unavailable stats should not be stored")
	}
	if msgs := dest.sentTo("chan-1"); len(msgs) != 0 {
		t.Errorf("announcements = %d, want 0", len(msgs))
	}

	// Stats become available on the next cycle; now it is stored and
	// announced.
	api.guildStats["Mystery"] = &wynn.GuildStats{Name: "Mystery", Prefix: "MYS"}
	api.guildList = guildListSnapshot(t0.Add(time.Hour), "AlphaGuild", "Mystery")
	if err := gt.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if _, stored := store.guilds["Mystery"]; !stored {
		t.Error("guild should be stored once its stats are available")
	}
	if msgs := dest.sentTo("chan-1"); len(msgs) != 1 {
		t.Errorf("announcements = %d, want 1", len(msgs))
	}
}

func TestGuildTracker_UnknownOwnerFallback(t *testing.T) {
	gt, store, dest, api := newGuildTestRig(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.guilds["AlphaGuild"] = models.Guild{Name: "AlphaGuild"}
	store.tracks = []models.TrackChannel{
		{Type: models.TrackGuildCreate, GuildID: "g1", ChannelID: "chan-1", ExpiresAt: t0.Add(time.Hour)},
	}
	api.guildList = guildListSnapshot(t0, "AlphaGuild", "Ownerless")
	// Stats resolve but carry no member with the owner rank.
	api.guildStats["Ownerless"] = &wynn.GuildStats{
		Name:    "Ownerless",
		Prefix:  "OWN",
		Members: []wynn.GuildMember{{Name: "Recruit", Rank: "RECRUIT"}},
	}

	if err := gt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	msgs := dest.sentTo("chan-1")
	if len(msgs) != 1 || !strings.Contains(msgs[0].Content, "(Unknown owner)") {
		t.Errorf("announcement = %+v, want one with \"(Unknown owner)\"", msgs)
	}
}

func TestGuildTracker_AnnouncesDeletion(t *testing.T) {
	gt, store, dest, api := newGuildTestRig(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.guilds["AlphaGuild"] = models.Guild{Name: "AlphaGuild"}
	store.guilds["OldGuild"] = models.Guild{Name: "OldGuild", Prefix: "OLD"}
	store.tracks = []models.TrackChannel{
		{Type: models.TrackGuildDelete, GuildID: "g1", ChannelID: "chan-1", ExpiresAt: t0.Add(time.Hour)},
	}
	api.guildList = guildListSnapshot(t0, "AlphaGuild")

	if err := gt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, still := store.guilds["OldGuild"]; still {
		t.Error("deleted guild should be removed from the store")
	}
	msgs := dest.sentTo("chan-1")
	if len(msgs) != 1 || !strings.Contains(msgs[0].Content, "OldGuild") {
		t.Fatalf("deletion announcement = %+v, want one naming OldGuild", msgs)
	}
	// The last-known prefix is read before the row is deleted.
	if !strings.Contains(msgs[0].Content, "[OLD]") {
		t.Errorf("deletion announcement missing prefix: %q", msgs[0].Content)
	}
}
