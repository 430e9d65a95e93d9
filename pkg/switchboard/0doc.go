// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package switchboard is an in-memory relay for development and testing.
//
// It offers the relay surface consumed by agents and consoles: agents connect to a WebSocket endpoint and announce
// themselves, consoles list connected agents and relay envelopes to them, either waiting for a reply or not. The
// Switchboard neither decrypts nor authenticates anything; envelopes are only parsed to correlate replies.
package switchboard
