// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package agent implements the agent's side of the relay tunnel.
//
// The Gateway owns one long-lived WebSocket connection to the relay. After connecting, it announces its client id and
// public key. The first envelope from a console carries the console's public key; afterwards, the Gateway decrypts
// each relayed envelope, authenticates its caller, dispatches it to the local bus and returns an encrypted reply for
// synchronous calls. Frames are processed one at a time, in their order of arrival.
//
// A lost or failed connection is re-established with an exponential Backoff. The Gateway's Health reports
// persistent failures.
package agent
