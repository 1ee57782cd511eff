// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/mojang"
)

const (
	// backfillBatchSize bounds how many names one cycle resolves.
	backfillBatchSize = 50

	// backfillRetryAfter is how long a failed or not-found name is left
	// alone before being retried. Renamed or never-existing accounts
	// would otherwise be retried every cycle forever.
	backfillRetryAfter = 24 * time.Hour
)

// backfillStore exposes the unresolved war participants.
type backfillStore interface {
	ListUnresolvedWarPlayers(ctx context.Context, limit int) ([]string, error)
	SetWarPlayerUUID(ctx context.Context, name, uuid string) error
}

// UUIDBackfill resolves war participants' UUIDs by name. War snapshots only
// carry names, but player-scoped war subscriptions key on UUID, so the
// roster is backfilled asynchronously; a participant stays unresolved until
// this task catches up.
type UUIDBackfill struct {
	store    backfillStore
	resolver mojang.Resolver

	// attempted remembers recently failed names with their attempt time.
	attempted map[string]time.Time

	now func() time.Time
}

func NewUUIDBackfill(store backfillStore, resolver mojang.Resolver) *UUIDBackfill {
	return &UUIDBackfill{
		store:     store,
		resolver:  resolver,
		attempted: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Run resolves one batch of unresolved names. The resolver paces its own
// requests, so a full batch takes a bounded but non-trivial amount of time;
// the heartbeat's reschedule-after-completion semantics make that safe.
func (u *UUIDBackfill) Run(ctx context.Context) error {
	names, err := u.store.ListUnresolvedWarPlayers(ctx, backfillBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list unresolved players: %w", err)
	}

	now := u.now()
	u.pruneAttempts(now)

	resolved := 0
	for _, name := range names {
		if attemptedAt, tried := u.attempted[name]; tried && now.Sub(attemptedAt) < backfillRetryAfter {
			continue
		}

		profile, err := u.resolver.Resolve(ctx, name)
		if errors.Is(err, mojang.ErrNotFound) {
			u.attempted[name] = now
			logging.Debug().Str("player", name).Msg("No UUID found for player")
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Upstream trouble; stop the batch and let the next cycle
			// retry rather than hammering a failing service.
			u.attempted[name] = now
			return fmt.Errorf("uuid lookup for %s failed: %w", name, err)
		}

		uuid := mojang.FormatUUID(profile.ID)
		if err := u.store.SetWarPlayerUUID(ctx, name, uuid); err != nil {
			return fmt.Errorf("failed to store uuid for %s: %w", name, err)
		}
		resolved++
	}

	if resolved > 0 {
		logging.Info().
			Int("resolved", resolved).
			Int("batch", len(names)).
			Msg("Backfilled player UUIDs")
	}
	return nil
}

func (u *UUIDBackfill) pruneAttempts(now time.Time) {
	for name, at := range u.attempted {
		if now.Sub(at) >= backfillRetryAfter {
			delete(u.attempted, name)
		}
	}
}
