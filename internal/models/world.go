// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package models

import "time"

// World is one game server observed online, keyed by name.
//
// A World row is created when the server first appears in an online-players
// snapshot and deleted when it disappears; the row's lifetime therefore spans
// exactly one uptime period. CreatedAt is the first observation of this run,
// UpdatedAt the most recent snapshot that contained the server.
type World struct {
	Name      string
	Players   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlayerNumber is a single total-online-players sample. Samples accumulate
// over a UTC day and are summarized into a daily min/max report when the day
// boundary is crossed, then truncated.
type PlayerNumber struct {
	Time  time.Time
	Count int
}
