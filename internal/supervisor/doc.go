// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

/*
Package supervisor provides process supervision for Guildwatch using suture v4.

The supervisor tree organizes long-running services into three layers for
failure isolation:

	RootSupervisor ("guildwatch")
	├── TrackingSupervisor ("tracking-layer")
	│   └── Heartbeat (reconciliation task scheduler)
	├── MessagingSupervisor ("messaging-layer")
	│   └── Discord gateway session
	└── APISupervisor ("api-layer")
	    └── HTTP server

This hierarchy ensures that a Discord outage does not stop state
reconciliation, and that neither affects the HTTP API's ability to serve
persisted state. Crashed services restart automatically with exponential
backoff; supervision events are logged through sutureslog into the
application's zerolog output.
*/
package supervisor
