// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"sync"
	"time"

	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/metrics"
)

// SnapshotGuard enforces upstream timestamp monotonicity per feed. The game
// API is served from a cache behind a load balancer, so a poll can return a
// snapshot older than one already processed; acting on it would replay
// transitions backwards. A snapshot is accepted only when its timestamp is
// strictly newer than the last accepted one for that feed.
type SnapshotGuard struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewSnapshotGuard() *SnapshotGuard {
	return &SnapshotGuard{lastSeen: make(map[string]time.Time)}
}

// Accept reports whether the snapshot timestamped ts should be processed
// for the named feed, and records it as the new high-water mark when it
// should. An equal timestamp means the cache has not refreshed since the
// last poll, so the payload is the one already processed (stale); an older
// one means a different cache node answered (regressed). Both are skipped
// without touching state. Every diff is idempotent, so replaying an equal
// snapshot would be harmless; skipping it just saves the store round trips.
func (g *SnapshotGuard) Accept(feed string, ts time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, seen := g.lastSeen[feed]
	if seen {
		if ts.Equal(last) {
			metrics.RecordSnapshotRejected(feed, "stale")
			logging.Debug().
				Str("feed", feed).
				Time("timestamp", ts).
				Msg("Snapshot unchanged since last poll, skipping")
			return false
		}
		if ts.Before(last) {
			metrics.RecordSnapshotRejected(feed, "regressed")
			logging.Warn().
				Str("feed", feed).
				Time("timestamp", ts).
				Time("last_accepted", last).
				Msg("Snapshot timestamp regressed, skipping")
			return false
		}
	}

	g.lastSeen[feed] = ts
	return true
}

// Last returns the newest accepted timestamp for the feed, if any.
func (g *SnapshotGuard) Last(feed string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ts, ok := g.lastSeen[feed]
	return ts, ok
}
