// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package hybrid holds the local key material of a relay tunnel endpoint and implements the hybrid encryption
// used for every payload exchanged between a console and an agent.
//
// A payload is sealed with a fresh AES-256-GCM key, which itself is wrapped with RSA-OAEP for the recipient. The
// resulting ciphertext is a CBOR array of the scheme version, the wrapped key, the nonce and the sealed data.
//
// Next to the encryption, the Provider builds the mutually authenticated transports, an HTTP client and a
// WebSocket dialer, both presenting the local certificate to the relay.
package hybrid
