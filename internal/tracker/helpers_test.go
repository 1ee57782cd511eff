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

	"github.com/tomtom215/guildwatch/internal/database"
	"github.com/tomtom215/guildwatch/internal/models"
	"github.com/tomtom215/guildwatch/internal/mojang"
	"github.com/tomtom215/guildwatch/internal/wynn"
)

func strPtr(s string) *string { return &s }

// sentMessage records one delivery a fakeDestination accepted.
type sentMessage struct {
	ChannelID string
	MessageID string
	Content   string
}

// fakeDestination implements Destination in memory. Channels listed in gone
// reject every delivery with ErrChannelGone.
type fakeDestination struct {
	mu     sync.Mutex
	sent   []sentMessage
	edits  []sentMessage
	gone   map[string]bool
	nextID int
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{gone: make(map[string]bool)}
}

func (d *fakeDestination) SendMessage(_ context.Context, channelID, content string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gone[channelID] {
		return "", fmt.Errorf("channel %s: %w", channelID, ErrChannelGone)
	}
	d.nextID++
	id := fmt.Sprintf("msg-%d", d.nextID)
	d.sent = append(d.sent, sentMessage{ChannelID: channelID, MessageID: id, Content: content})
	return id, nil
}

func (d *fakeDestination) EditMessage(_ context.Context, channelID, messageID, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gone[channelID] {
		return fmt.Errorf("channel %s: %w", channelID, ErrChannelGone)
	}
	d.edits = append(d.edits, sentMessage{ChannelID: channelID, MessageID: messageID, Content: content})
	return nil
}

func (d *fakeDestination) sentTo(channelID string) []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []sentMessage
	for _, m := range d.sent {
		if m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	return out
}

// fakeAPI returns canned responses per endpoint.
type fakeAPI struct {
	online      *wynn.OnlinePlayers
	territories *wynn.TerritoryList
	guildList   *wynn.GuildList
	guildStats  map[string]*wynn.GuildStats
	leaderboard *wynn.GuildLeaderboard
	playerStats map[string]*wynn.PlayerStats

	err error
}

func (f *fakeAPI) GetOnlinePlayers(context.Context) (*wynn.OnlinePlayers, error) {
	return f.online, f.err
}

func (f *fakeAPI) GetTerritoryList(context.Context) (*wynn.TerritoryList, error) {
	return f.territories, f.err
}

func (f *fakeAPI) GetGuildList(context.Context) (*wynn.GuildList, error) {
	return f.guildList, f.err
}

func (f *fakeAPI) GetGuildStats(_ context.Context, name string) (*wynn.GuildStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	if stats, ok := f.guildStats[name]; ok {
		return stats, nil
	}
	return nil, fmt.Errorf("no stats for guild %s", name)
}

func (f *fakeAPI) GetGuildLeaderboard(context.Context) (*wynn.GuildLeaderboard, error) {
	return f.leaderboard, f.err
}

func (f *fakeAPI) GetPlayerStats(_ context.Context, name string) (*wynn.PlayerStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	if stats, ok := f.playerStats[name]; ok {
		return stats, nil
	}
	return nil, fmt.Errorf("no stats for player %s", name)
}

// fakeStore is an in-memory Store. It mirrors the database package's
// semantics closely enough for tracker behavior tests; persistence details
// are covered by the database package's own tests.
type fakeStore struct {
	mu sync.Mutex

	worlds        map[string]models.World
	playerNumbers []models.PlayerNumber

	nextWarID int64
	wars      map[int64]*models.WarLog
	warTracks map[int64]map[string]string // warID -> channelID -> messageID

	territories []models.Territory
	// correlateWarID/correlateWarServer are returned as the war for every
	// territory change.
	correlateWarID     *int64
	correlateWarServer *string

	guilds map[string]models.Guild

	leaderboards [][]models.GuildLeaderboardEntry

	tracks []models.TrackChannel
	prefs  map[string]models.ChannelPrefs // guildID|channelID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		worlds:    make(map[string]models.World),
		wars:      make(map[int64]*models.WarLog),
		warTracks: make(map[int64]map[string]string),
		guilds:    make(map[string]models.Guild),
		prefs:     make(map[string]models.ChannelPrefs),
	}
}

func (s *fakeStore) GetWorlds(context.Context) ([]models.World, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.World, 0, len(s.worlds))
	for _, w := range s.worlds {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeStore) UpdateAllWorlds(_ context.Context, worlds []models.World) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worlds = make(map[string]models.World, len(worlds))
	for _, w := range worlds {
		s.worlds[w.Name] = w
	}
	return nil
}

func (s *fakeStore) InsertPlayerNumber(_ context.Context, pn models.PlayerNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerNumbers = append(s.playerNumbers, pn)
	return nil
}

func (s *fakeStore) GetOldestPlayerNumberTime(context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.playerNumbers) == 0 {
		return time.Time{}, false, nil
	}
	oldest := s.playerNumbers[0].Time
	for _, pn := range s.playerNumbers[1:] {
		if pn.Time.Before(oldest) {
			oldest = pn.Time
		}
	}
	return oldest, true, nil
}

func (s *fakeStore) GetPlayerNumberRange(_ context.Context, from, to time.Time) (int, int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	minCount, maxCount, found := 0, 0, false
	for _, pn := range s.playerNumbers {
		if pn.Time.Before(from) || !pn.Time.Before(to) {
			continue
		}
		if !found || pn.Count < minCount {
			minCount = pn.Count
		}
		if !found || pn.Count > maxCount {
			maxCount = pn.Count
		}
		found = true
	}
	return minCount, maxCount, found, nil
}

func (s *fakeStore) DeletePlayerNumbersBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []models.PlayerNumber
	var removed int64
	for _, pn := range s.playerNumbers {
		if pn.Time.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, pn)
	}
	s.playerNumbers = kept
	return removed, nil
}

func (s *fakeStore) GetOpenWars(context.Context) ([]models.WarLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WarLog
	for _, war := range s.wars {
		if war.LogClosed {
			continue
		}
		cp := *war
		cp.Players = append([]models.WarPlayer(nil), war.Players...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) CreateWar(_ context.Context, serverName string, players []string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextWarID++
	war := &models.WarLog{
		ID:         s.nextWarID,
		ServerName: serverName,
		CreatedAt:  now,
		LastUp:     now,
	}
	for _, name := range players {
		war.Players = append(war.Players, models.WarPlayer{WarLogID: war.ID, Name: name})
	}
	s.wars[war.ID] = war
	return war.ID, nil
}

func (s *fakeStore) war(id int64) (*models.WarLog, error) {
	war, ok := s.wars[id]
	if !ok {
		return nil, fmt.Errorf("no war %d", id)
	}
	return war, nil
}

func (s *fakeStore) AddWarPlayers(_ context.Context, warID int64, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	war, err := s.war(warID)
	if err != nil {
		return err
	}
	for _, name := range names {
		exists := false
		for _, p := range war.Players {
			if p.Name == name {
				exists = true
				break
			}
		}
		if !exists {
			war.Players = append(war.Players, models.WarPlayer{WarLogID: warID, Name: name})
		}
	}
	return nil
}

func (s *fakeStore) MarkWarPlayersExited(_ context.Context, warID int64, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	war, err := s.war(warID)
	if err != nil {
		return err
	}
	for _, name := range names {
		for i := range war.Players {
			if war.Players[i].Name == name {
				war.Players[i].Exited = true
			}
		}
	}
	return nil
}

func (s *fakeStore) ClearWarPlayerExited(_ context.Context, warID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	war, err := s.war(warID)
	if err != nil {
		return err
	}
	for i := range war.Players {
		if war.Players[i].Name == name {
			war.Players[i].Exited = false
		}
	}
	return nil
}

func (s *fakeStore) SetWarGuild(_ context.Context, warID int64, guildName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	war, err := s.war(warID)
	if err != nil {
		return err
	}
	war.GuildName = &guildName
	return nil
}

func (s *fakeStore) TouchWar(_ context.Context, warID int64, lastUp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	war, err := s.war(warID)
	if err != nil {
		return err
	}
	war.LastUp = lastUp
	return nil
}

func (s *fakeStore) MarkWarEnded(_ context.Context, warID int64, lastUp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	war, err := s.war(warID)
	if err != nil {
		return err
	}
	war.Ended = true
	war.LastUp = lastUp
	return nil
}

func (s *fakeStore) CloseWarLog(_ context.Context, warID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	war, err := s.war(warID)
	if err != nil {
		return err
	}
	war.LogClosed = true
	delete(s.warTracks, warID)
	return nil
}

func (s *fakeStore) UpsertWarTrack(_ context.Context, track models.WarTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warTracks[track.WarLogID] == nil {
		s.warTracks[track.WarLogID] = make(map[string]string)
	}
	s.warTracks[track.WarLogID][track.ChannelID] = track.MessageID
	return nil
}

func (s *fakeStore) GetWarTracks(_ context.Context, warID int64) ([]models.WarTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WarTrack
	for channelID, messageID := range s.warTracks[warID] {
		out = append(out, models.WarTrack{WarLogID: warID, ChannelID: channelID, MessageID: messageID})
	}
	return out, nil
}

func (s *fakeStore) ListUnresolvedWarPlayers(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, war := range s.wars {
		for _, p := range war.Players {
			if p.UUID != nil {
				continue
			}
			if _, dup := seen[p.Name]; dup {
				continue
			}
			seen[p.Name] = struct{}{}
			out = append(out, p.Name)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) SetWarPlayerUUID(_ context.Context, name, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, war := range s.wars {
		for i := range war.Players {
			if war.Players[i].Name == name && war.Players[i].UUID == nil {
				u := uuid
				war.Players[i].UUID = &u
			}
		}
	}
	return nil
}

func (s *fakeStore) UpdateAllTerritories(_ context.Context, territories []models.Territory, now time.Time, _ time.Duration) ([]database.TerritoryChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := database.ComputeTerritoryDiff(s.territories, territories, now)
	s.territories = territories
	changes := make([]database.TerritoryChange, 0, len(logs))
	for _, log := range logs {
		changes = append(changes, database.TerritoryChange{
			Log:           log,
			WarLogID:      s.correlateWarID,
			WarServerName: s.correlateWarServer,
		})
	}
	return changes, nil
}

func (s *fakeStore) GetLatestTerritoryAcquired(context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	for _, t := range s.territories {
		if t.Acquired.After(latest) {
			latest = t.Acquired
		}
	}
	return latest, !latest.IsZero(), nil
}

func (s *fakeStore) ListGuildNames(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.guilds))
	for name := range s.guilds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeStore) GetGuild(_ context.Context, name string) (*models.Guild, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.guilds[name]; ok {
		return &g, nil
	}
	return nil, fmt.Errorf("%w: guild %s", database.ErrNotFound, name)
}

func (s *fakeStore) UpsertGuild(_ context.Context, g models.Guild) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds[g.Name] = g
	return nil
}

func (s *fakeStore) DeleteGuild(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guilds, name)
	return nil
}

func (s *fakeStore) GetLatestLeaderboard(context.Context) ([]models.GuildLeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.leaderboards) == 0 {
		return nil, nil
	}
	return s.leaderboards[len(s.leaderboards)-1], nil
}

func (s *fakeStore) GetEarliestLeaderboard(context.Context) ([]models.GuildLeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.leaderboards) == 0 {
		return nil, nil
	}
	return s.leaderboards[0], nil
}

func (s *fakeStore) InsertLeaderboard(_ context.Context, entries []models.GuildLeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaderboards = append(s.leaderboards, entries)
	return nil
}

func (s *fakeStore) PruneLeaderboard(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	border := -1
	for i, batch := range s.leaderboards {
		if len(batch) > 0 && !batch[0].UpdatedAt.After(cutoff) {
			border = i
		}
	}
	if border <= 0 {
		return 0, nil
	}
	var removed int64
	for _, batch := range s.leaderboards[:border] {
		removed += int64(len(batch))
	}
	s.leaderboards = s.leaderboards[border:]
	return removed, nil
}

func (s *fakeStore) ListTracksByType(_ context.Context, t models.TrackType) ([]models.TrackChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TrackChannel
	for _, tc := range s.tracks {
		if tc.Type == t {
			out = append(out, tc)
		}
	}
	return out, nil
}

func (s *fakeStore) ListGuildTracks(_ context.Context, t models.TrackType, guildName string) ([]models.TrackChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TrackChannel
	for _, tc := range s.tracks {
		if tc.Type == t && tc.GuildName != nil && *tc.GuildName == guildName {
			out = append(out, tc)
		}
	}
	return out, nil
}

func (s *fakeStore) ListPlayerTracks(_ context.Context, t models.TrackType, playerUUID string) ([]models.TrackChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TrackChannel
	for _, tc := range s.tracks {
		if tc.Type == t && tc.PlayerUUID != nil && *tc.PlayerUUID == playerUUID {
			out = append(out, tc)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteChannelTracks(_ context.Context, channelID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []models.TrackChannel
	var removed int64
	for _, tc := range s.tracks {
		if tc.ChannelID == channelID {
			removed++
			continue
		}
		kept = append(kept, tc)
	}
	s.tracks = kept
	return removed, nil
}

func (s *fakeStore) DeleteExpiredTracks(_ context.Context, now time.Time) ([]models.TrackChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept, expired []models.TrackChannel
	for _, tc := range s.tracks {
		if tc.ExpiresAt.Before(now) {
			expired = append(expired, tc)
			continue
		}
		kept = append(kept, tc)
	}
	s.tracks = kept
	return expired, nil
}

func (s *fakeStore) GetChannelPrefs(_ context.Context, guildID, channelID string) (models.ChannelPrefs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prefs, ok := s.prefs[guildID+"|"+channelID]; ok {
		return prefs, nil
	}
	return models.DefaultChannelPrefs(guildID, channelID), nil
}

// fakeResolver resolves names from a fixed table.
type fakeResolver struct {
	profiles map[string]string // name -> raw id
	calls    int
	err      error
}

func (r *fakeResolver) Resolve(_ context.Context, name string) (*mojang.Profile, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	id, ok := r.profiles[name]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", name, mojang.ErrNotFound)
	}
	return &mojang.Profile{ID: id, Name: name}, nil
}

var (
	_ Store           = (*fakeStore)(nil)
	_ Destination     = (*fakeDestination)(nil)
	_ wynn.API        = (*fakeAPI)(nil)
	_ mojang.Resolver = (*fakeResolver)(nil)
)
