// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/metrics"
	"github.com/tomtom215/guildwatch/internal/models"
	"github.com/tomtom215/guildwatch/internal/wynn"
)

// leaderboardRetention is how much leaderboard history is kept; it bounds
// the window the XP gain ranking is computed over.
const leaderboardRetention = 24 * time.Hour

// leaderboardStore persists leaderboard batches.
type leaderboardStore interface {
	GetLatestLeaderboard(ctx context.Context) ([]models.GuildLeaderboardEntry, error)
	GetEarliestLeaderboard(ctx context.Context) ([]models.GuildLeaderboardEntry, error)
	InsertLeaderboard(ctx context.Context, entries []models.GuildLeaderboardEntry) error
	PruneLeaderboard(ctx context.Context, cutoff time.Time) (int64, error)
}

// LeaderboardTracker snapshots the guild leaderboard and derives the XP gain
// ranking over the retained history. The upstream serves the leaderboard
// from a cache pool, so identical and regressed snapshots are common and
// must not create duplicate history.
type LeaderboardTracker struct {
	api   wynn.API
	store leaderboardStore
	guard *SnapshotGuard

	mu sync.RWMutex
	// xpRanking is the latest computed XP gain ranking, served to the
	// status API. Nil until two batches at least exist.
	xpRanking []models.GuildXPLeaderboardEntry
}

func NewLeaderboardTracker(api wynn.API, store leaderboardStore, guard *SnapshotGuard) *LeaderboardTracker {
	return &LeaderboardTracker{
		api:   api,
		store: store,
		guard: guard,
	}
}

// Run performs one snapshot cycle.
func (l *LeaderboardTracker) Run(ctx context.Context) error {
	snapshot, err := l.api.GetGuildLeaderboard(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch guild leaderboard: %w", err)
	}
	ts := snapshot.Request.Time()
	if !l.guard.Accept("leaderboard", ts) {
		return nil
	}

	entries := make([]models.GuildLeaderboardEntry, 0, len(snapshot.Data))
	for _, row := range snapshot.Data {
		entries = append(entries, models.GuildLeaderboardEntry{
			Name:        row.Name,
			Prefix:      row.Prefix,
			XP:          row.XP,
			Level:       row.Level,
			Num:         row.Num,
			Territories: row.Territories,
			Members:     row.MembersCount,
			UpdatedAt:   ts,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Num < entries[j].Num })

	latest, err := l.store.GetLatestLeaderboard(ctx)
	if err != nil {
		return fmt.Errorf("failed to load latest leaderboard: %w", err)
	}

	// A fresh request timestamp does not guarantee fresh data: the
	// leaderboard itself updates far less often than the envelope. Skip
	// identical batches to keep history meaningful.
	if leaderboardEqual(latest, entries) {
		logging.Debug().Time("snapshot", ts).Msg("Leaderboard unchanged, skipping")
		return nil
	}

	// A fresh timestamp on regressed content is a lagging cache node; the
	// whole batch is discarded, never partially applied.
	if guild, regressed := leaderboardRegression(latest, entries); regressed {
		metrics.RecordSnapshotRejected("leaderboard", "regressed")
		logging.Warn().
			Str("guild", guild).
			Time("snapshot", ts).
			Msg("Leaderboard batch regressed, rejecting")
		return nil
	}

	if err := l.store.InsertLeaderboard(ctx, entries); err != nil {
		return fmt.Errorf("failed to store leaderboard: %w", err)
	}
	pruned, err := l.store.PruneLeaderboard(ctx, ts.Add(-leaderboardRetention))
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to prune leaderboard history")
	} else if pruned > 0 {
		logging.Debug().Int64("pruned", pruned).Msg("Pruned leaderboard history")
	}

	l.refreshXPRanking(ctx, entries, ts)
	return nil
}

// leaderboardRegression reports a guild present in both batches whose level
// decreased, or whose xp decreased at an unchanged level. The upstream
// leaderboard only ever grows for a continuously tracked guild, so any such
// guild marks the new batch as bad data.
func leaderboardRegression(prev, cur []models.GuildLeaderboardEntry) (string, bool) {
	prevByName := make(map[string]models.GuildLeaderboardEntry, len(prev))
	for _, e := range prev {
		prevByName[e.Name] = e
	}
	for _, e := range cur {
		p, known := prevByName[e.Name]
		if !known {
			continue
		}
		if e.Level < p.Level || (e.Level == p.Level && e.XP < p.XP) {
			return e.Name, true
		}
	}
	return "", false
}

// leaderboardEqual compares batches on content, ignoring UpdatedAt.
func leaderboardEqual(a, b []models.GuildLeaderboardEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Name != y.Name || x.Prefix != y.Prefix || x.XP != y.XP ||
			x.Level != y.Level || x.Num != y.Num ||
			x.Territories != y.Territories || x.Members != y.Members {
			return false
		}
	}
	return true
}

// refreshXPRanking recomputes guild XP gains between the oldest retained
// batch and the batch just stored. Retention pruning bounds how old that
// baseline can be. Guilds entering the leaderboard inside the window are
// skipped because no baseline exists; gains spanning a level-up undercount
// by the leveled-up portion, an inaccuracy inherited from the upstream data.
func (l *LeaderboardTracker) refreshXPRanking(ctx context.Context, current []models.GuildLeaderboardEntry, ts time.Time) {
	baseline, err := l.store.GetEarliestLeaderboard(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to load leaderboard baseline")
		return
	}
	if len(baseline) == 0 || baseline[0].UpdatedAt.Equal(ts) {
		return
	}
	baseXP := make(map[string]models.GuildLeaderboardEntry, len(baseline))
	for _, e := range baseline {
		baseXP[e.Name] = e
	}

	ranking := make([]models.GuildXPLeaderboardEntry, 0, len(current))
	for _, e := range current {
		base, known := baseXP[e.Name]
		if !known {
			continue
		}
		diff := e.XP - base.XP
		if e.Level > base.Level {
			// XP resets per level; only the post-level-up portion is
			// visible.
			diff = e.XP
		}
		ranking = append(ranking, models.GuildXPLeaderboardEntry{
			Name:   e.Name,
			Prefix: e.Prefix,
			Level:  e.Level,
			XP:     e.XP,
			XPDiff: diff,
			From:   base.UpdatedAt,
			To:     ts,
		})
	}
	sort.Slice(ranking, func(i, j int) bool { return ranking[i].XPDiff > ranking[j].XPDiff })

	l.mu.Lock()
	l.xpRanking = ranking
	l.mu.Unlock()
}

// XPRanking returns the latest XP gain ranking, newest gains first.
func (l *LeaderboardTracker) XPRanking() []models.GuildXPLeaderboardEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.GuildXPLeaderboardEntry, len(l.xpRanking))
	copy(out, l.xpRanking)
	return out
}
