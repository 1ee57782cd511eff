// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

// Package discord wraps the Discord gateway session and adapts it to the
// tracker's notification destination.
package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/tomtom215/guildwatch/internal/config"
	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/tracker"
)

// Session owns the gateway connection. It implements suture.Service so the
// supervision tree drives connect/disconnect, and tracker.Destination so
// the notifier can deliver through it.
type Session struct {
	session *discordgo.Session
}

func New(cfg *config.DiscordConfig) (*Session, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	// The trackers only write to channels; no message-content intent
	// needed.
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	return &Session{session: session}, nil
}

// Serve opens the gateway connection and holds it until ctx is cancelled.
// discordgo reconnects on its own while the session is open; a failed
// initial open is returned so the supervisor restarts the service with
// backoff.
func (s *Session) Serve(ctx context.Context) error {
	if err := s.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}
	if s.session.State != nil && s.session.State.User != nil {
		logging.Info().
			Str("user", s.session.State.User.Username).
			Msg("Connected to Discord")
	}

	<-ctx.Done()

	if err := s.session.Close(); err != nil {
		logging.Warn().Err(err).Msg("Error closing discord connection")
	}
	logging.Info().Msg("Disconnected from Discord")
	return nil
}

func (s *Session) String() string { return "discord-session" }

// SendMessage posts content to a channel and returns the message ID.
func (s *Session) SendMessage(_ context.Context, channelID, content string) (string, error) {
	msg, err := s.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", classifyError(channelID, err)
	}
	return msg.ID, nil
}

// EditMessage replaces a previously sent message's content.
func (s *Session) EditMessage(_ context.Context, channelID, messageID, content string) error {
	if _, err := s.session.ChannelMessageEdit(channelID, messageID, content); err != nil {
		return classifyError(channelID, err)
	}
	return nil
}

// classifyError maps permanent per-channel rejections onto
// tracker.ErrChannelGone so subscriptions pointing at dead channels get
// cleaned up instead of failing forever.
func classifyError(channelID string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel,
			discordgo.ErrCodeMissingAccess,
			discordgo.ErrCodeMissingPermissions:
			return fmt.Errorf("channel %s (code %d): %w",
				channelID, restErr.Message.Code, tracker.ErrChannelGone)
		}
	}
	return fmt.Errorf("discord delivery to channel %s failed: %w", channelID, err)
}

var _ tracker.Destination = (*Session)(nil)
