// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/guildwatch/internal/models"
	"github.com/tomtom215/guildwatch/internal/wynn"
)

func newPlayerTestRig(t *testing.T, reportChannelID string) (*PlayerTracker, *fakeStore, *fakeDestination, *fakeAPI) {
	t.Helper()
	store := newFakeStore()
	dest := newFakeDestination()
	api := &fakeAPI{playerStats: make(map[string]*wynn.PlayerStats)}
	notifier := NewNotifier(store, dest)
	wars := NewWarTracker(api, store, notifier)
	var mu sync.Mutex
	pt := NewPlayerTracker(api, store, notifier, NewSnapshotGuard(), wars,
		regexp.MustCompile(`^(WC|EU)\d+$`), regexp.MustCompile(`^WAR\d+$`),
		reportChannelID, &mu)
	return pt, store, dest, api
}

func onlineSnapshot(ts time.Time, worlds map[string][]string) *wynn.OnlinePlayers {
	return &wynn.OnlinePlayers{
		Request: wynn.RequestMeta{Timestamp: ts.Unix(), Version: 2},
		Worlds:  worlds,
	}
}

func TestPlayerTracker_PersistsClassifiedWorlds(t *testing.T) {
	pt, store, _, api := newPlayerTestRig(t, "")
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	api.online = onlineSnapshot(t0, map[string][]string{
		"WC1":   {"Alice", "Bob"},
		"EU2":   {"Carol"},
		"WAR1":  {"Dave"},
		"lobby": {"Eve", "Frank"},
	})
	if err := pt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	worlds, _ := store.GetWorlds(ctx)
	if len(worlds) != 3 {
		t.Fatalf("stored %d worlds, want 3 (lobby excluded)", len(worlds))
	}
	for _, w := range worlds {
		if w.Name == "lobby" {
			t.Error("lobby should not be persisted")
		}
	}

	// The player sample counts everyone, including the lobby.
	if len(store.playerNumbers) != 1 || store.playerNumbers[0].Count != 6 {
		t.Fatalf("player sample = %+v, want one sample of 6", store.playerNumbers)
	}

	// The war world reached the war tracker.
	if len(store.wars) != 1 {
		t.Fatalf("wars created = %d, want 1", len(store.wars))
	}
}

func TestPlayerTracker_PreservesWorldCreatedAt(t *testing.T) {
	pt, store, _, api := newPlayerTestRig(t, "")
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	api.online = onlineSnapshot(t0, map[string][]string{"WC1": {"Alice"}})
	if err := pt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	api.online = onlineSnapshot(t0.Add(30*time.Second), map[string][]string{"WC1": {"Alice", "Bob"}})
	if err := pt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	worlds, _ := store.GetWorlds(ctx)
	if len(worlds) != 1 {
		t.Fatalf("stored %d worlds, want 1", len(worlds))
	}
	if !worlds[0].CreatedAt.Equal(t0) {
		t.Errorf("CreatedAt = %v, want first observation %v", worlds[0].CreatedAt, t0)
	}
	if !worlds[0].UpdatedAt.Equal(t0.Add(30 * time.Second)) {
		t.Errorf("UpdatedAt = %v, want latest snapshot", worlds[0].UpdatedAt)
	}
}

func TestPlayerTracker_RejectsStaleSnapshot(t *testing.T) {
	pt, store, _, api := newPlayerTestRig(t, "")
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	api.online = onlineSnapshot(t0, map[string][]string{"WC1": {"Alice"}})
	if err := pt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Same timestamp again: nothing may change, not even the sample count.
	api.online = onlineSnapshot(t0, map[string][]string{"WC1": {}})
	if err := pt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(store.playerNumbers) != 1 {
		t.Errorf("samples = %d, want 1 (stale snapshot must be skipped)", len(store.playerNumbers))
	}
	worlds, _ := store.GetWorlds(ctx)
	if worlds[0].Players != 1 {
		t.Errorf("world players = %d, want 1 from the accepted snapshot", worlds[0].Players)
	}
}

func TestPlayerTracker_RejectsSnapshotOlderThanPersistedWorlds(t *testing.T) {
	pt, store, _, api := newPlayerTestRig(t, "")
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	api.online = onlineSnapshot(t0, map[string][]string{"WC1": {"Alice"}})
	if err := pt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// A fresh process has an empty in-memory guard; the persisted worlds
	// must still block a replayed older snapshot.
	notifier := NewNotifier(store, newFakeDestination())
	wars := NewWarTracker(api, store, notifier)
	var mu sync.Mutex
	restarted := NewPlayerTracker(api, store, notifier, NewSnapshotGuard(), wars,
		regexp.MustCompile(`^(WC|EU)\d+$`), regexp.MustCompile(`^WAR\d+$`), "", &mu)

	api.online = onlineSnapshot(t0.Add(-10*time.Minute), map[string][]string{"WC1": {}})
	if err := restarted.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(store.playerNumbers) != 1 {
		t.Errorf("samples = %d, want 1 (older snapshot must be skipped)", len(store.playerNumbers))
	}
	worlds, _ := store.GetWorlds(ctx)
	if worlds[0].Players != 1 {
		t.Errorf("world players = %d, want 1 from the newer snapshot", worlds[0].Players)
	}
}

func TestPlayerTracker_ServerStartAndCloseNotifications(t *testing.T) {
	pt, store, dest, api := newPlayerTestRig(t, "")
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.tracks = []models.TrackChannel{
		{Type: models.TrackServerStart, GuildID: "g1", ChannelID: "main-only", ExpiresAt: t0.Add(time.Hour)},
		{Type: models.TrackServerCloseAll, GuildID: "g1", ChannelID: "all-closes", ExpiresAt: t0.Add(time.Hour)},
	}

	api.online = onlineSnapshot(t0, map[string][]string{"WC1": {"Alice"}, "WC2": {"Bob"}})
	if err := pt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Both worlds are new, but on the very first snapshot there is no
	// stored baseline distinction; they still count as started.
	startMsgs := dest.sentTo("main-only")
	if len(startMsgs) != 2 {
		t.Fatalf("start notifications = %d, want 2", len(startMsgs))
	}

	api.online = onlineSnapshot(t0.Add(30*time.Second), map[string][]string{"WC1": {"Alice"}})
	if err := pt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	closeMsgs := dest.sentTo("all-closes")
	if len(closeMsgs) != 1 {
		t.Fatalf("close notifications = %d, want 1", len(closeMsgs))
	}
	if !strings.Contains(closeMsgs[0].Content, "WC2") || !strings.Contains(closeMsgs[0].Content, "Uptime") {
		t.Errorf("close notice missing server or uptime: %q", closeMsgs[0].Content)
	}
}

func TestPlayerTracker_DailyReport(t *testing.T) {
	pt, store, dest, api := newPlayerTestRig(t, "report-chan")
	ctx := context.Background()
	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 0, 30, 0, time.UTC)

	api.online = onlineSnapshot(day1, map[string][]string{"WC1": {"Alice", "Bob", "Carol"}})
	if err := pt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(dest.sentTo("report-chan")) != 0 {
		t.Fatal("no report expected before the day boundary")
	}

	api.online = onlineSnapshot(day2, map[string][]string{"WC1": {"Alice"}})
	if err := pt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	reports := dest.sentTo("report-chan")
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1 after crossing the day boundary", len(reports))
	}
	if !strings.Contains(reports[0].Content, "min 3") || !strings.Contains(reports[0].Content, "max 3") {
		t.Errorf("report content = %q, want min/max of previous day", reports[0].Content)
	}
	// Consumed samples are truncated; only the new day's sample remains.
	if len(store.playerNumbers) != 1 || !store.playerNumbers[0].Time.Equal(day2) {
		t.Errorf("remaining samples = %+v, want only the new day's", store.playerNumbers)
	}
}

func TestPlayerTracker_DailyReportSurvivesRestart(t *testing.T) {
	pt, store, dest, api := newPlayerTestRig(t, "report-chan")
	ctx := context.Background()
	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 0, 30, 0, time.UTC)

	api.online = onlineSnapshot(day1, map[string][]string{"WC1": {"Alice", "Bob"}})
	if err := pt.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The process restarts across midnight. The day boundary comes from
	// the oldest stored sample, so the report still fires.
	notifier := NewNotifier(store, dest)
	wars := NewWarTracker(api, store, notifier)
	var mu sync.Mutex
	restarted := NewPlayerTracker(api, store, notifier, NewSnapshotGuard(), wars,
		regexp.MustCompile(`^(WC|EU)\d+$`), regexp.MustCompile(`^WAR\d+$`), "report-chan", &mu)

	api.online = onlineSnapshot(day2, map[string][]string{"WC1": {"Alice"}})
	if err := restarted.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	reports := dest.sentTo("report-chan")
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1 despite the restart", len(reports))
	}
	if !strings.Contains(reports[0].Content, "2026-03-01") ||
		!strings.Contains(reports[0].Content, "min 2") || !strings.Contains(reports[0].Content, "max 2") {
		t.Errorf("report content = %q, want previous day's min/max", reports[0].Content)
	}
	if len(store.playerNumbers) != 1 || !store.playerNumbers[0].Time.Equal(day2) {
		t.Errorf("remaining samples = %+v, want only the new day's", store.playerNumbers)
	}
}
