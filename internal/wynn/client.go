// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

/*
Package wynn provides the game API client used by the trackers.

Client features:
  - HTTP client with configurable timeout
  - Automatic HTTP 429 rate limit handling with exponential backoff
  - JSON response parsing with typed response structs
  - Context support for cancellation and timeouts
  - Circuit breaker protection via BreakerClient

Resilience mechanisms:
  - Rate limiting: exponential backoff (1s, 2s, 4s, 8s, 16s) on HTTP 429,
    honoring Retry-After when present
  - Circuit breaker: opens at 60% failure rate over a minimum of 10 requests

All snapshot responses carry an upstream generation timestamp; the trackers
use it for integrity checks, so it is surfaced rather than replaced with
local fetch time.
*/
package wynn

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/guildwatch/internal/config"
	"github.com/tomtom215/guildwatch/internal/metrics"
)

// maxErrorBodySize limits how much of an error response body is read for
// diagnostics.
const maxErrorBodySize = 64 * 1024

// readBodyForError reads the response body for error reporting (max 64KB).
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// API defines the game API operations the trackers consume. Implemented by
// Client for production use and by mocks in tests; BreakerClient wraps any
// API with circuit breaker protection.
//
// Thread safety: all methods are safe for concurrent use.
type API interface {
	GetOnlinePlayers(ctx context.Context) (*OnlinePlayers, error)
	GetTerritoryList(ctx context.Context) (*TerritoryList, error)
	GetGuildList(ctx context.Context) (*GuildList, error)
	GetGuildStats(ctx context.Context, name string) (*GuildStats, error)
	GetGuildLeaderboard(ctx context.Context) (*GuildLeaderboard, error)
	GetPlayerStats(ctx context.Context, name string) (*PlayerStats, error)
}

// Client handles communication with the game's HTTP API.
//
// Thread safety: safe for concurrent use; each request creates its own HTTP
// request.
type Client struct {
	baseURL        string
	client         *http.Client
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient creates a game API client from configuration.
func NewClient(cfg *config.WynnConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
	}
}

// doRequestWithRateLimit performs an HTTP GET with automatic rate limit
// handling. Implements exponential backoff for HTTP 429 responses, honoring
// the Retry-After header when present. The context cancels backoff waits.
func (c *Client) doRequestWithRateLimit(ctx context.Context, reqURL, endpoint string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_ = resp.Body.Close()
		metrics.FetchRetries.WithLabelValues(endpoint).Inc()

		if attempt == c.maxRetries {
			lastErr = fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
			break
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				delay = seconds
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// makeRequest handles common request boilerplate: URL construction, the
// rate-limited GET, status checking, and JSON decoding into result.
func (c *Client) makeRequest(ctx context.Context, endpoint, path string, params url.Values, result interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	start := time.Now()
	resp, err := c.doRequestWithRateLimit(ctx, reqURL, endpoint)
	metrics.RecordFetch(endpoint, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to make %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyForError(resp.Body)
		return fmt.Errorf("%s request failed with status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	return nil
}

// GetOnlinePlayers retrieves the current world list and the players on each
// world.
func (c *Client) GetOnlinePlayers(ctx context.Context) (*OnlinePlayers, error) {
	params := url.Values{}
	params.Set("action", "onlinePlayers")

	var out OnlinePlayers
	if err := c.makeRequest(ctx, "online-players", "/public_api.php", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTerritoryList retrieves the full territory ownership map.
func (c *Client) GetTerritoryList(ctx context.Context) (*TerritoryList, error) {
	params := url.Values{}
	params.Set("action", "territoryList")

	var out TerritoryList
	if err := c.makeRequest(ctx, "territory-list", "/public_api.php", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetGuildList retrieves the list of all guild names.
func (c *Client) GetGuildList(ctx context.Context) (*GuildList, error) {
	params := url.Values{}
	params.Set("action", "guildList")
	params.Set("command", "list")

	var out GuildList
	if err := c.makeRequest(ctx, "guild-list", "/public_api.php", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetGuildStats retrieves detailed stats for a single guild.
func (c *Client) GetGuildStats(ctx context.Context, name string) (*GuildStats, error) {
	params := url.Values{}
	params.Set("action", "guildStats")
	params.Set("command", name)

	var out GuildStats
	if err := c.makeRequest(ctx, "guild-stats", "/public_api.php", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetGuildLeaderboard retrieves the all-time guild leaderboard.
func (c *Client) GetGuildLeaderboard(ctx context.Context) (*GuildLeaderboard, error) {
	var out GuildLeaderboard
	if err := c.makeRequest(ctx, "guild-leaderboard", "/v2/leaderboards/guild", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPlayerStats retrieves a player's stats, including guild affiliation.
func (c *Client) GetPlayerStats(ctx context.Context, name string) (*PlayerStats, error) {
	var out PlayerStats
	path := "/v2/player/" + url.PathEscape(name) + "/stats"
	if err := c.makeRequest(ctx, "player-stats", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
