// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/models"
	"github.com/tomtom215/guildwatch/internal/tracker"
)

// Store is the read surface the handlers query, satisfied by *database.DB.
type Store interface {
	Ping(ctx context.Context) error
	GetWorlds(ctx context.Context) ([]models.World, error)
	GetOpenWars(ctx context.Context) ([]models.WarLog, error)
	GetTerritories(ctx context.Context) ([]models.Territory, error)
	GetLatestLeaderboard(ctx context.Context) ([]models.GuildLeaderboardEntry, error)
}

// XPRankingSource serves the in-memory XP gain ranking, satisfied by
// *tracker.LeaderboardTracker.
type XPRankingSource interface {
	XPRanking() []models.GuildXPLeaderboardEntry
}

// TaskReporter exposes the per-task run report, satisfied by
// *tracker.Heartbeat. Nil disables the tasks section of the status payload.
type TaskReporter interface {
	TaskReport() []tracker.TaskStatus
}

// BreakerStater reports the upstream circuit breaker's state, satisfied by
// *wynn.BreakerClient. Nil disables the breaker section.
type BreakerStater interface {
	State() string
}

// Handler holds handler dependencies.
type Handler struct {
	store   Store
	ranking XPRankingSource
	tasks   TaskReporter
	breaker BreakerStater
	version string
	started time.Time
}

func NewHandler(store Store, ranking XPRankingSource, tasks TaskReporter, breaker BreakerStater, version string) *Handler {
	return &Handler{
		store:   store,
		ranking: ranking,
		tasks:   tasks,
		breaker: breaker,
		version: version,
		started: time.Now(),
	}
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "ok"}, 0)
}

// HealthReady reports readiness: the database must answer.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		logging.Warn().Err(err).Msg("Readiness check failed")
		respondError(w, http.StatusServiceUnavailable, "database_unavailable", "database not reachable")
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "ready"}, 0)
}

// Status reports version, uptime, the tracker tasks' last runs, the
// circuit breaker state, and headline entity counts.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}
	if h.tasks != nil {
		payload["tasks"] = h.tasks.TaskReport()
	}
	if h.breaker != nil {
		payload["breaker_state"] = h.breaker.State()
	}
	if wars, err := h.store.GetOpenWars(r.Context()); err == nil {
		payload["open_wars"] = len(wars)
	}
	if worlds, err := h.store.GetWorlds(r.Context()); err == nil {
		payload["tracked_worlds"] = len(worlds)
	}
	respondData(w, http.StatusOK, payload, 0)
}

// Worlds returns the currently tracked game servers.
func (h *Handler) Worlds(w http.ResponseWriter, r *http.Request) {
	worlds, err := h.store.GetWorlds(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to query worlds")
		respondError(w, http.StatusInternalServerError, "query_failed", "failed to load worlds")
		return
	}
	respondData(w, http.StatusOK, worlds, len(worlds))
}

// OpenWars returns wars that are active or awaiting log close.
func (h *Handler) OpenWars(w http.ResponseWriter, r *http.Request) {
	wars, err := h.store.GetOpenWars(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to query open wars")
		respondError(w, http.StatusInternalServerError, "query_failed", "failed to load wars")
		return
	}
	respondData(w, http.StatusOK, wars, len(wars))
}

// Territories returns the latest accepted territory snapshot.
func (h *Handler) Territories(w http.ResponseWriter, r *http.Request) {
	territories, err := h.store.GetTerritories(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to query territories")
		respondError(w, http.StatusInternalServerError, "query_failed", "failed to load territories")
		return
	}
	respondData(w, http.StatusOK, territories, len(territories))
}

// Leaderboard returns the latest stored guild leaderboard batch.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.GetLatestLeaderboard(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to query leaderboard")
		respondError(w, http.StatusInternalServerError, "query_failed", "failed to load leaderboard")
		return
	}
	respondData(w, http.StatusOK, entries, len(entries))
}

// XPLeaderboard returns the computed XP gain ranking.
func (h *Handler) XPLeaderboard(w http.ResponseWriter, _ *http.Request) {
	ranking := h.ranking.XPRanking()
	respondData(w, http.StatusOK, ranking, len(ranking))
}
