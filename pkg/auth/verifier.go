// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod is the only accepted token algorithm.
var SigningMethod = jwt.SigningMethodRS256

// Claims of a relay bearer token.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens against the key of a KeySource.
type Verifier struct {
	keys   KeySource
	issuer string
	leeway time.Duration
}

// VerifierOption configures optional Verifier settings.
type VerifierOption func(*Verifier)

// WithIssuer requires the token's "iss" claim to match.
func WithIssuer(issuer string) VerifierOption {
	return func(v *Verifier) {
		v.issuer = issuer
	}
}

// WithLeeway tolerates clock skew between console and agent.
func WithLeeway(leeway time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.leeway = leeway
	}
}

// NewVerifier for a KeySource.
func NewVerifier(keys KeySource, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		keys:   keys,
		leeway: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify a token and derive the Identity it asserts.
//
// An invalid signature might be caused by a rotated key. Thus, the KeySource is invalidated once and the token is
// checked again against the reloaded key before giving up.
func (v *Verifier) Verify(token string) (Identity, error) {
	id, err := v.verify(token)

	var authErr *Error
	if errors.As(err, &authErr) && authErr.Reason == InvalidSignature {
		log.Debug("Token signature is invalid, retrying with a reloaded verification key")

		v.keys.Invalidate()
		id, err = v.verify(token)
	}

	return id, err
}

func (v *Verifier) verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, newError(MissingCredentials, nil)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{SigningMethod.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := new(Claims)
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.keys.Key()
	}, opts...)
	if err != nil {
		return Identity{}, classify(err)
	}

	if claims.Subject == "" {
		return Identity{}, newError(InvalidClaims, fmt.Errorf("token has no subject"))
	}

	return Identity{
		Subject:  claims.Subject,
		Roles:    claims.Roles,
		Verified: true,
	}, nil
}

// Authenticate resolves the Identity of a relayed call. A token always takes precedence and must verify. Without
// a token, a pre-resolved Identity is accepted as it is, without any verification.
func (v *Verifier) Authenticate(token string, preResolved *Identity) (Identity, error) {
	if token != "" {
		return v.Verify(token)
	}

	if preResolved != nil {
		id := *preResolved
		id.Verified = false
		return id, nil
	}

	return Identity{}, newError(MissingCredentials, nil)
}

// classify maps jwt errors onto a Reason.
func classify(err error) *Error {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newError(MalformedToken, err)

	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return newError(ExpiredToken, err)

	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return newError(InvalidSignature, err)

	default:
		return newError(InvalidClaims, err)
	}
}
