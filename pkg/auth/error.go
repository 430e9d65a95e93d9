// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import "fmt"

// Reason classifies an authentication Error.
type Reason int

const (
	// MissingCredentials means neither a token nor a pre-resolved identity was present.
	MissingCredentials Reason = iota

	// MalformedToken is a token which cannot be parsed at all.
	MalformedToken

	// InvalidSignature is a well-formed token signed by an unknown key or with an unexpected algorithm.
	InvalidSignature

	// ExpiredToken is a token outside its validity window.
	ExpiredToken

	// InvalidClaims is a token with missing or unexpected claims, e.g., a foreign issuer.
	InvalidClaims

	// UnresolvableKey means the verification key could not be loaded from the trust material.
	UnresolvableKey

	// Forbidden is an authenticated identity lacking a required role.
	Forbidden
)

func (r Reason) String() string {
	switch r {
	case MissingCredentials:
		return "missing credentials"
	case MalformedToken:
		return "malformed token"
	case InvalidSignature:
		return "invalid signature"
	case ExpiredToken:
		return "expired token"
	case InvalidClaims:
		return "invalid claims"
	case UnresolvableKey:
		return "unresolvable key"
	case Forbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("unknown reason %d", int(r))
	}
}

// Error is returned for every failed authentication or authorization.
type Error struct {
	Reason Reason
	Err    error
}

func newError(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "authentication failed: " + e.Reason.String()
	}
	return fmt.Sprintf("authentication failed: %v: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
