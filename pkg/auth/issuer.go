// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer creates bearer tokens on the console side, signed with the console's private key.
type Issuer struct {
	key  *rsa.PrivateKey
	name string
	ttl  time.Duration

	now func() time.Time
}

// NewIssuer signs tokens with the key, naming itself in the "iss" claim. Tokens expire after the ttl.
func NewIssuer(key *rsa.PrivateKey, name string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Issuer{
		key:  key,
		name: name,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Issue a fresh token asserting the Identity.
func (i *Issuer) Issue(id Identity) (string, error) {
	if id.Subject == "" {
		return "", fmt.Errorf("cannot issue a token without a subject")
	}

	now := i.now()
	claims := Claims{
		Roles: id.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.name,
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	return jwt.NewWithClaims(SigningMethod, claims).SignedString(i.key)
}
