// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package auth authenticates relayed calls.
//
// A console asserts the identity of its caller with a short-lived RS256 bearer token, created by an Issuer. The
// agent verifies this token with a Verifier against the console's certificate, which is looked up in the local
// trust store through a KeySource. The resulting Identity is carried through the local dispatch as part of the
// context.Context, see NewContext and FromContext.
package auth
