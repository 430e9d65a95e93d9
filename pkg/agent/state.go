// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import "fmt"

// State of a Gateway's connection to the relay.
type State uint

const (
	// Disconnected is the initial state and the state between two connection attempts.
	Disconnected State = iota

	// Connecting while dialing the relay.
	Connecting

	// Connected to the relay and announced, but without any console's public key.
	Connected

	// Established after a console's handshake. Relayed calls are only dispatched in this state.
	Established

	// Closed after the Gateway was stopped.
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Established:
		return "ESTABLISHED"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText for a State's name, e.g., within a JSON health report.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a State's name, as created by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for candidate := Disconnected; candidate <= Closed; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}
