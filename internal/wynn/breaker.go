// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package wynn

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/metrics"
)

// BreakerClient wraps an API with the circuit breaker pattern, preventing
// cascading failures when the game API is unavailable or slow.
//
// DETERMINISM NOTE: The circuit breaker uses real time (via sony/gobreaker)
// for its interval and timeout calculations. The timing determines when to
// recover from failures, not data integrity. Unit tests should mock the
// wrapped API rather than the breaker.
type BreakerClient struct {
	api  API
	cb   *gobreaker.CircuitBreaker[interface{}]
	name string
}

// NewBreakerClient wraps api with a circuit breaker.
// Circuit breaker configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
func NewBreakerClient(api API) *BreakerClient {
	cbName := "wynn-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerClient{
		api:  api,
		cb:   cb,
		name: cbName,
	}
}

// State reports the breaker's current state ("closed", "half-open", "open")
// for the status endpoint.
func (bc *BreakerClient) State() string {
	return stateToString(bc.cb.State())
}

// execute wraps an API call with circuit breaker protection.
func (bc *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := bc.cb.Execute(fn)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "success").Inc()
	return result, nil
}

// castResult safely type-casts the circuit breaker result.
func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// GetOnlinePlayers retrieves online players with circuit breaker protection.
func (bc *BreakerClient) GetOnlinePlayers(ctx context.Context) (*OnlinePlayers, error) {
	return castResult[OnlinePlayers](bc.execute(func() (interface{}, error) {
		return bc.api.GetOnlinePlayers(ctx)
	}))
}

// GetTerritoryList retrieves territories with circuit breaker protection.
func (bc *BreakerClient) GetTerritoryList(ctx context.Context) (*TerritoryList, error) {
	return castResult[TerritoryList](bc.execute(func() (interface{}, error) {
		return bc.api.GetTerritoryList(ctx)
	}))
}

// GetGuildList retrieves the guild list with circuit breaker protection.
func (bc *BreakerClient) GetGuildList(ctx context.Context) (*GuildList, error) {
	return castResult[GuildList](bc.execute(func() (interface{}, error) {
		return bc.api.GetGuildList(ctx)
	}))
}

// GetGuildStats retrieves guild stats with circuit breaker protection.
func (bc *BreakerClient) GetGuildStats(ctx context.Context, name string) (*GuildStats, error) {
	return castResult[GuildStats](bc.execute(func() (interface{}, error) {
		return bc.api.GetGuildStats(ctx, name)
	}))
}

// GetGuildLeaderboard retrieves the leaderboard with circuit breaker protection.
func (bc *BreakerClient) GetGuildLeaderboard(ctx context.Context) (*GuildLeaderboard, error) {
	return castResult[GuildLeaderboard](bc.execute(func() (interface{}, error) {
		return bc.api.GetGuildLeaderboard(ctx)
	}))
}

// GetPlayerStats retrieves player stats with circuit breaker protection.
func (bc *BreakerClient) GetPlayerStats(ctx context.Context, name string) (*PlayerStats, error) {
	return castResult[PlayerStats](bc.execute(func() (interface{}, error) {
		return bc.api.GetPlayerStats(ctx, name)
	}))
}
