// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package wynn

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// acquiredLayout is the timestamp format used by the territory list endpoint.
const acquiredLayout = "2006-01-02 15:04:05"

// RequestMeta is the metadata envelope attached to legacy API responses.
// Timestamp is seconds since epoch and marks when the upstream generated the
// payload, which may lag the fetch time when responses are served from a
// stale upstream cache.
type RequestMeta struct {
	Timestamp int64 `json:"timestamp"`
	Version   int   `json:"version"`
}

// Time returns the payload generation time.
func (m RequestMeta) Time() time.Time {
	return time.Unix(m.Timestamp, 0).UTC()
}

// OnlinePlayers is the onlinePlayers response: a request envelope plus one
// key per running world mapping to the list of player names on it.
type OnlinePlayers struct {
	Request RequestMeta
	Worlds  map[string][]string
}

// UnmarshalJSON splits the flat response object into the request envelope
// and the per-world player lists. Every key other than "request" is a world.
func (o *OnlinePlayers) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	o.Worlds = make(map[string][]string, len(raw))
	for key, val := range raw {
		if key == "request" {
			if err := json.Unmarshal(val, &o.Request); err != nil {
				return fmt.Errorf("invalid request envelope: %w", err)
			}
			continue
		}
		var players []string
		if err := json.Unmarshal(val, &players); err != nil {
			return fmt.Errorf("invalid player list for world %s: %w", key, err)
		}
		o.Worlds[key] = players
	}

	return nil
}

// TerritoryList is the territoryList response.
type TerritoryList struct {
	Request     RequestMeta              `json:"request"`
	Territories map[string]TerritoryData `json:"territories"`
}

// TerritoryData is a single territory's ownership record. Guild is nil for
// unclaimed territories; Attacker is set only during an active contest.
type TerritoryData struct {
	Territory string            `json:"territory"`
	Guild     *string           `json:"guild"`
	Attacker  *string           `json:"attacker"`
	Acquired  string            `json:"acquired"`
	Location  TerritoryLocation `json:"location"`
}

// AcquiredTime parses the acquisition timestamp. The upstream serves it as a
// naive UTC wall-clock string.
func (t TerritoryData) AcquiredTime() (time.Time, error) {
	ts, err := time.Parse(acquiredLayout, t.Acquired)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid acquired timestamp %q: %w", t.Acquired, err)
	}
	return ts.UTC(), nil
}

// TerritoryLocation is the bounding box of a territory on the map.
type TerritoryLocation struct {
	StartX int `json:"startX"`
	StartZ int `json:"startZ"`
	EndX   int `json:"endX"`
	EndZ   int `json:"endZ"`
}

// GuildList is the guildList response.
type GuildList struct {
	Request RequestMeta `json:"request"`
	Guilds  []string    `json:"guilds"`
}

// GuildStats is the guildStats response for a single guild.
type GuildStats struct {
	Request     RequestMeta   `json:"request"`
	Name        string        `json:"name"`
	Prefix      string        `json:"prefix"`
	Created     string        `json:"created"`
	Level       int           `json:"level"`
	XP          int64         `json:"xp"`
	Territories int           `json:"territories"`
	Members     []GuildMember `json:"members"`
}

// GuildMember is a member entry in guild stats.
type GuildMember struct {
	Name        string `json:"name"`
	UUID        string `json:"uuid"`
	Rank        string `json:"rank"`
	Contributed int64  `json:"contributed"`
	Joined      string `json:"joined"`
}

// Owner returns the name of the member holding the OWNER rank, or "" when
// the roster omits one.
func (g GuildStats) Owner() string {
	for _, m := range g.Members {
		if m.Rank == "OWNER" {
			return m.Name
		}
	}
	return ""
}

// CreatedTime parses the guild creation timestamp (RFC 3339 upstream).
func (g GuildStats) CreatedTime() (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, g.Created)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid created timestamp %q: %w", g.Created, err)
	}
	return ts.UTC(), nil
}

// GuildLeaderboard is the guild leaderboard response, ordered by rank.
type GuildLeaderboard struct {
	Request RequestMeta        `json:"request"`
	Data    []LeaderboardGuild `json:"data"`
}

// LeaderboardGuild is one row of the guild leaderboard. Num is the rank
// position (1 = highest).
type LeaderboardGuild struct {
	Name         string `json:"name"`
	Prefix       string `json:"prefix"`
	XP           int64  `json:"xp"`
	Level        int    `json:"level"`
	Num          int    `json:"num"`
	Territories  int    `json:"territories"`
	MembersCount int    `json:"membersCount"`
}

// PlayerStats is the v2 player stats response.
type PlayerStats struct {
	Timestamp int64             `json:"timestamp"`
	Data      []PlayerStatsData `json:"data"`
}

// PlayerStatsData holds the subset of per-player stats the trackers consume.
type PlayerStatsData struct {
	Username string      `json:"username"`
	UUID     string      `json:"uuid"`
	Guild    PlayerGuild `json:"guild"`
}

// PlayerGuild is the player's guild affiliation; both fields are nil for
// guildless players.
type PlayerGuild struct {
	Name *string `json:"name"`
	Rank *string `json:"rank"`
}
