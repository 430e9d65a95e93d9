// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultConnectTimeout bounds dialing the relay, including the TLS and WebSocket handshakes.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultMaxFrameSize limits inbound frames.
	DefaultMaxFrameSize = 64 << 20

	// DefaultMaxReplySize limits the plaintext of a reply, including materialized streams.
	DefaultMaxReplySize = 16 << 20

	// DefaultUnhealthyAfter consecutive connection failures.
	DefaultUnhealthyAfter = 3
)

// Config of a Gateway.
type Config struct {
	// ClientID identifies this agent at the relay. A random id is used if unset.
	ClientID uuid.UUID

	InstanceName    string
	InstanceVersion string
	InstanceType    string

	// URL of the relay's WebSocket endpoint, e.g., "wss://switchboard.example.org/ws".
	URL string

	ConnectTimeout time.Duration
	MaxFrameSize   int64
	MaxReplySize   int64

	Backoff Backoff

	// MaxAttempts of consecutive failed connections, after which Run gives up. Zero retries forever.
	MaxAttempts int

	// UnhealthyAfter consecutive failed connections, the Gateway reports itself as unhealthy.
	UnhealthyAfter int
}

// withDefaults validates the Config and fills in default values.
func (c Config) withDefaults() (Config, error) {
	if c.URL == "" {
		return c, fmt.Errorf("no relay URL configured")
	}
	if c.InstanceName == "" {
		return c, fmt.Errorf("no instance name configured")
	}

	if c.ClientID == uuid.Nil {
		c.ClientID = uuid.New()
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.MaxReplySize <= 0 {
		c.MaxReplySize = DefaultMaxReplySize
	}
	if c.UnhealthyAfter <= 0 {
		c.UnhealthyAfter = DefaultUnhealthyAfter
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	c.Backoff = c.Backoff.withDefaults()

	return c, nil
}
