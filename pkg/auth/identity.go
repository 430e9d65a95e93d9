// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"context"
	"fmt"
)

// Identity is an authenticated principal, valid for exactly one dispatched call.
type Identity struct {
	Subject string
	Roles   []string

	// Verified is true if this Identity was derived from a verified token. A pre-resolved Identity, passed through
	// an envelope without a token, is not verified.
	Verified bool
}

// HasRole checks if this Identity holds at least one of the roles.
func (id Identity) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range id.Roles {
			if want == have {
				return true
			}
		}
	}
	return false
}

type identityKey struct{}

// NewContext returns a child context carrying the Identity.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext extracts the Identity of a context created by NewContext.
func FromContext(ctx context.Context) (id Identity, ok bool) {
	id, ok = ctx.Value(identityKey{}).(Identity)
	return
}

// Authorize checks if the Identity holds one of the required roles. Without any required roles, every Identity is
// authorized. Roles of an Identity which is not Verified are never trusted.
func Authorize(id Identity, roles ...string) error {
	if len(roles) == 0 {
		return nil
	} else if !id.Verified {
		return newError(Forbidden, fmt.Errorf("roles of the unverified identity %q are not trusted", id.Subject))
	} else if id.HasRole(roles...) {
		return nil
	}
	return newError(Forbidden, fmt.Errorf("%q lacks any of the roles %v", id.Subject, roles))
}
