// bothbubbles-gateway - A headless BlueBubbles iMessage/SMS gateway.
// Copyright (C) 2026 BothBubbles
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package resolver

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/bluebubbles"
	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/chatdb"
	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/imessage"
)

// AvailabilityTimeout bounds the live iMessage availability probe. The query
// round-trips through the relay to Apple's IDS servers; anything slower than
// this is treated the same as unreachable and the resolver falls back to
// local history.
const AvailabilityTimeout = 3 * time.Second

// AvailabilityChecker is the remote availability query (normally the
// BlueBubbles REST client).
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, address string) (bool, error)
}

// ChatHistory is the local-store lookup the resolver falls back to when the
// live probe is unavailable or fails.
type ChatHistory interface {
	LatestChatForIdentifier(ctx context.Context, identifier string) (*chatdb.Chat, error)
}

// ConnectionStateSource reports the relay socket's current state.
type ConnectionStateSource interface {
	State() bluebubbles.ConnectionState
}

// ServiceResolver classifies a single address as iMessage-capable or
// SMS-only using a priority chain: live probe, then local history, then a
// shape-based default. It never returns an error and never blocks past the
// probe timeout.
type ServiceResolver struct {
	api     AvailabilityChecker
	history ChatHistory
	conn    ConnectionStateSource

	// smsOnly samples the user's SMS-only-mode preference. Read per call so
	// a config hot-reload takes effect without rebuilding the resolver.
	smsOnly func() bool

	log zerolog.Logger
}

// NewServiceResolver wires a resolver. smsOnly may be nil (treated as
// always-off).
func NewServiceResolver(api AvailabilityChecker, history ChatHistory, conn ConnectionStateSource, smsOnly func() bool, log zerolog.Logger) *ServiceResolver {
	if smsOnly == nil {
		smsOnly = func() bool { return false }
	}
	return &ServiceResolver{
		api:     api,
		history: history,
		conn:    conn,
		smsOnly: smsOnly,
		log:     log.With().Str("component", "resolver").Logger(),
	}
}

// ResolveService decides which transport an address should be messaged on.
//
//   - E-mail addresses are always iMessage; there is no SMS route to them.
//   - SMS-only mode short-circuits to SMS without touching the network.
//   - When the relay socket reports connected, a live availability query is
//     issued with a hard timeout. A definitive answer (either way) wins.
//   - On timeout or any query failure, the most recent non-empty chat for
//     the normalized address decides — whatever service was last actually
//     used for this contact.
//   - With no history, default to SMS: a plain text always delivers, while
//     guessing iMessage for an unregistered number silently drops.
func (r *ServiceResolver) ResolveService(ctx context.Context, address string) imessage.Service {
	if imessage.IsEmail(address) {
		return imessage.ServiceIMessage
	}
	if r.smsOnly() {
		return imessage.ServiceSMS
	}

	normalized := imessage.NormalizeAddress(address)

	if r.conn != nil && r.conn.State() == bluebubbles.StateConnected {
		probeCtx, cancel := context.WithTimeout(ctx, AvailabilityTimeout)
		available, err := r.api.CheckAvailability(probeCtx, normalized)
		cancel()
		if err == nil {
			if available {
				return imessage.ServiceIMessage
			}
			return imessage.ServiceSMS
		}
		// Probe failures are expected (timeouts, relay hiccups) and never
		// surface to the caller; history decides instead.
		r.log.Warn().Err(err).Str("address", normalized).Msg("Availability check failed, falling back to chat history")
	}

	if r.history != nil {
		chat, err := r.history.LatestChatForIdentifier(ctx, normalized)
		if err != nil {
			r.log.Warn().Err(err).Str("address", normalized).Msg("History lookup failed during service resolution")
		} else if chat != nil {
			return chat.Service
		}
	}

	return imessage.ServiceSMS
}
