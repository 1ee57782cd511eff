// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/guildwatch/internal/models"
	"github.com/tomtom215/guildwatch/internal/tracker"
)

type fakeStore struct {
	pingErr     error
	worlds      []models.World
	wars        []models.WarLog
	territories []models.Territory
	leaderboard []models.GuildLeaderboardEntry
	queryErr    error
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) GetWorlds(context.Context) ([]models.World, error) {
	return f.worlds, f.queryErr
}

func (f *fakeStore) GetOpenWars(context.Context) ([]models.WarLog, error) {
	return f.wars, f.queryErr
}

func (f *fakeStore) GetTerritories(context.Context) ([]models.Territory, error) {
	return f.territories, f.queryErr
}

func (f *fakeStore) GetLatestLeaderboard(context.Context) ([]models.GuildLeaderboardEntry, error) {
	return f.leaderboard, f.queryErr
}

type fakeRanking struct {
	entries []models.GuildXPLeaderboardEntry
}

func (f *fakeRanking) XPRanking() []models.GuildXPLeaderboardEntry { return f.entries }

type fakeTasks struct {
	report []tracker.TaskStatus
}

func (f *fakeTasks) TaskReport() []tracker.TaskStatus { return f.report }

type fakeBreaker struct {
	state string
}

func (f *fakeBreaker) State() string { return f.state }

func doRequest(t *testing.T, store *fakeStore, ranking *fakeRanking, path string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	router := NewRouter(NewHandler(store, ranking, nil, nil, "test"))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
	}
	return rec, body
}

func TestHealthReady(t *testing.T) {
	rec, body := doRequest(t, &fakeStore{}, &fakeRanking{}, "/api/v1/health/ready")
	if rec.Code != http.StatusOK || !body.Success {
		t.Errorf("ready = %d success=%v, want 200 success", rec.Code, body.Success)
	}
}

func TestHealthReady_DatabaseDown(t *testing.T) {
	store := &fakeStore{pingErr: errors.New("connection refused")}
	rec, body := doRequest(t, store, &fakeRanking{}, "/api/v1/health/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if body.Error == nil || body.Error.Code != "database_unavailable" {
		t.Errorf("error = %+v, want database_unavailable", body.Error)
	}
}

func TestWorlds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{worlds: []models.World{
		{Name: "WC1", Players: 40, CreatedAt: now, UpdatedAt: now},
		{Name: "EU2", Players: 35, CreatedAt: now, UpdatedAt: now},
	}}
	rec, body := doRequest(t, store, &fakeRanking{}, "/api/v1/worlds")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body.Meta == nil || body.Meta.Count != 2 {
		t.Errorf("meta = %+v, want count 2", body.Meta)
	}
}

func TestWorlds_QueryFailure(t *testing.T) {
	store := &fakeStore{queryErr: errors.New("io error")}
	rec, body := doRequest(t, store, &fakeRanking{}, "/api/v1/worlds")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if body.Error == nil || body.Error.Code != "query_failed" {
		t.Errorf("error = %+v, want query_failed", body.Error)
	}
}

func TestXPLeaderboard(t *testing.T) {
	ranking := &fakeRanking{entries: []models.GuildXPLeaderboardEntry{
		{Name: "AlphaGuild", XPDiff: 500},
	}}
	rec, body := doRequest(t, &fakeStore{}, ranking, "/api/v1/leaderboard/xp")
	if rec.Code != http.StatusOK || body.Meta == nil || body.Meta.Count != 1 {
		t.Errorf("status = %d meta = %+v, want 200 with count 1", rec.Code, body.Meta)
	}
}

func TestStatus(t *testing.T) {
	store := &fakeStore{wars: []models.WarLog{{ID: 1, ServerName: "WAR1"}}}
	tasks := &fakeTasks{report: []tracker.TaskStatus{{Name: "player", Runs: 3}}}
	router := NewRouter(NewHandler(store, &fakeRanking{}, tasks, &fakeBreaker{state: "closed"}, "test"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d, want 200", rec.Code)
	}
	var body APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	data, ok := body.Data.(map[string]interface{})
	if !ok || data["version"] != "test" {
		t.Fatalf("data = %+v, want version test", body.Data)
	}
	if data["breaker_state"] != "closed" {
		t.Errorf("breaker_state = %v, want closed", data["breaker_state"])
	}
	if data["open_wars"] != float64(1) {
		t.Errorf("open_wars = %v, want 1", data["open_wars"])
	}
	if _, ok := data["tasks"]; !ok {
		t.Error("status payload missing tasks report")
	}
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	router := NewRouter(NewHandler(&fakeStore{}, &fakeRanking{}, nil, nil, "test"))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", rec.Code)
	}
}
