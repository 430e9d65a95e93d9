// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import "time"

// Health is a snapshot of a Gateway's connection.
type Health struct {
	State   State `json:"state"`
	Healthy bool  `json:"healthy"`

	// ConsecutiveFailures since the last successful connection.
	ConsecutiveFailures int `json:"consecutiveFailures"`

	LastError     string    `json:"lastError,omitempty"`
	LastConnected time.Time `json:"lastConnected,omitempty"`
}
