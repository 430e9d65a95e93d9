// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package console implements the console's side of the relay tunnel.
//
// The Gateway lists the agents connected to the relay and sends them encrypted calls, either synchronously or
// fire-and-forget. Each agent receives the console's public key once, triggered by the first directory listing the
// agent appears in.
package console
