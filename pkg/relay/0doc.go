// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package relay defines the wire structures shared by agents and consoles.
//
// A RelayEnvelope is the CBOR encoded unit of transport: a message id, used to correlate a reply with its request,
// an opaque hybrid ciphertext and an optional Authentication. The ciphertext decrypts to a JSON SwitchBoardMessage,
// the plaintext business message, or to a PublicKeyMessage for a console's handshake.
//
// Agents announce themselves to the relay with a plaintext Command, which the relay's directory lists as
// DirectoryEntry. A console derives its ClusterMember view from these.
package relay
