// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"strings"

	"github.com/google/uuid"
)

// Endpoints of a relay's HTTP API, e.g., "https://switchboard.example.org/api".
type Endpoints struct {
	API string
}

func (e Endpoints) base() string {
	return strings.TrimRight(e.API, "/")
}

// Connections lists all connected agents.
func (e Endpoints) Connections() string {
	return e.base() + "/connections/org"
}

// SendSync relays an envelope to an agent and blocks for its reply.
func (e Endpoints) SendSync(clientID uuid.UUID) string {
	return e.base() + "/send/sync/" + clientID.String()
}

// SendAsync relays an envelope to an agent without waiting for a reply.
func (e Endpoints) SendAsync(clientID uuid.UUID) string {
	return e.base() + "/send/async/" + clientID.String()
}
