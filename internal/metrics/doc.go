// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package instruments the tracker pipeline end to end using the Prometheus
client library, exposing metrics for monitoring performance, errors, and
notification delivery.

# Overview

The package provides metrics for:
  - Tracker task execution (runs, duration, last success per task)
  - Upstream game API fetches, retries, and integrity rejections
  - DuckDB query performance
  - Tracking events emitted by the diff engines
  - Discord notification sends and in-place edits
  - Circuit breaker state and transitions

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:3876/metrics

# Usage

Metrics are registered at init via promauto and recorded through the helper
functions:

	start := time.Now()
	err := task.Run(ctx)
	metrics.RecordTaskRun(task.Name, time.Since(start), err)

Helpers never return errors; a metric that cannot be recorded is dropped
rather than failing the operation it observes.
*/
package metrics
