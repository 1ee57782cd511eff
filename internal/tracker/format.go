// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/guildwatch/internal/models"
)

// formatDuration renders a duration as the largest non-zero day/hour/minute
// components plus seconds, e.g. "1 d 3 h 25 m 10 s". Sub-second durations
// render as "0 s".
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)

	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%d d", days))
	}
	if hours > 0 || len(parts) > 0 {
		parts = append(parts, fmt.Sprintf("%d h", hours))
	}
	if minutes > 0 || len(parts) > 0 {
		parts = append(parts, fmt.Sprintf("%d m", minutes))
	}
	parts = append(parts, fmt.Sprintf("%d s", seconds))
	return strings.Join(parts, " ")
}

// formatTime renders t in the channel's configured timezone and date format.
// Unknown timezones fall back to UTC rather than failing the notification.
func formatTime(t time.Time, prefs models.ChannelPrefs) string {
	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format(prefs.DateFormat)
}

// guildOrUnclaimed renders a nullable guild name for territory messages.
func guildOrUnclaimed(name *string) string {
	if name == nil || *name == "" {
		return "(Unclaimed)"
	}
	return *name
}
