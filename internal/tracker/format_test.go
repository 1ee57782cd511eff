// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"testing"
	"time"

	"github.com/tomtom215/guildwatch/internal/models"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 s"},
		{500 * time.Millisecond, "0 s"},
		{45 * time.Second, "45 s"},
		{time.Minute + 5*time.Second, "1 m 5 s"},
		{2*time.Hour + 30*time.Second, "2 h 0 m 30 s"},
		{26*time.Hour + 3*time.Minute, "1 d 2 h 3 m 0 s"},
		{-time.Minute, "0 s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatTime_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prefs := models.ChannelPrefs{Timezone: "Not/AZone", DateFormat: "2006/01/02 15:04:05"}
	if got := formatTime(when, prefs); got != "2026/03/01 12:00:00" {
		t.Errorf("formatTime = %q, want UTC fallback rendering", got)
	}
}

func TestGuildOrUnclaimed(t *testing.T) {
	if got := guildOrUnclaimed(nil); got != "(Unclaimed)" {
		t.Errorf("nil guild = %q, want (Unclaimed)", got)
	}
	if got := guildOrUnclaimed(strPtr("")); got != "(Unclaimed)" {
		t.Errorf("empty guild = %q, want (Unclaimed)", got)
	}
	if got := guildOrUnclaimed(strPtr("AlphaGuild")); got != "AlphaGuild" {
		t.Errorf("guild = %q, want AlphaGuild", got)
	}
}
