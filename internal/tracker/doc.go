// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

// Package tracker contains the periodic reconciliation tasks that poll the
// game API, diff each snapshot against persisted state, and fan out the
// resulting events to subscribed Discord channels.
//
// All tasks run on a shared Heartbeat scheduler. A task's next run is
// scheduled only after the previous run completes, so a slow upstream never
// stacks concurrent runs of the same task, and a failing task never affects
// its siblings. Stale or regressed upstream snapshots are rejected by a
// SnapshotGuard before any state is touched.
package tracker
