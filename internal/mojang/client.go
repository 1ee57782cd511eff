// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

// Package mojang resolves player names to account UUIDs via the Mojang
// profile API. Lookups are paced with a shared rate limiter so the backfill
// task cannot exceed the upstream's per-minute budget regardless of batch
// size.
package mojang

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomtom215/guildwatch/internal/config"
	"github.com/tomtom215/guildwatch/internal/metrics"
)

// ErrNotFound indicates the name has no known account. Callers distinguish
// this from transient failures: a not-found result is cacheable, a transient
// failure is retried on the next cycle.
var ErrNotFound = errors.New("mojang: profile not found")

// Profile is a resolved account profile. ID is the undashed UUID as served
// by the upstream.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Resolver resolves player names to account UUIDs. Implemented by Client;
// mocked in tests.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*Profile, error)
}

// Client is a rate-limited Mojang profile API client.
//
// Thread safety: safe for concurrent use; concurrent callers share the rate
// limiter.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Mojang client from configuration.
func NewClient(cfg *config.MojangConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
	}
}

// Resolve looks up the account UUID for a player name. Returns ErrNotFound
// for names with no account. Blocks on the shared rate limiter before
// issuing the request; the context cancels the wait.
func (c *Client) Resolve(ctx context.Context, name string) (*Profile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + "/users/profiles/minecraft/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.UUIDLookupsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		metrics.UUIDLookupsTotal.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	default:
		metrics.UUIDLookupsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("profile lookup for %s failed with status %d", name, resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		metrics.UUIDLookupsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("failed to decode profile response: %w", err)
	}
	if profile.ID == "" {
		metrics.UUIDLookupsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("profile response for %s missing id", name)
	}

	metrics.UUIDLookupsTotal.WithLabelValues("resolved").Inc()
	return &profile, nil
}

// FormatUUID canonicalizes an undashed 32-character UUID to dashed form.
// Returns the input unchanged if it cannot be parsed; storage treats UUIDs
// as opaque strings either way.
func FormatUUID(id string) string {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return parsed.String()
}

// compile-time interface check
var _ Resolver = (*Client)(nil)
