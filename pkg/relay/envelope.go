// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
	"github.com/google/uuid"

	"github.com/frankframework/relay-tunnel/pkg/auth"
)

// RelayEnvelope is the correlated unit of transport between console and agent. Its Payload is a hybrid ciphertext
// for the recipient. A reply carries the MessageID of its request.
type RelayEnvelope struct {
	MessageID      uuid.UUID
	Payload        []byte
	Authentication Authentication
}

// NewEnvelope for a fresh request with a random MessageID.
func NewEnvelope(payload []byte, authentication Authentication) RelayEnvelope {
	return RelayEnvelope{
		MessageID:      uuid.New(),
		Payload:        payload,
		Authentication: authentication,
	}
}

// NewReply creates the reply to a request envelope, sharing its MessageID. Replies carry no authentication.
func NewReply(request RelayEnvelope, payload []byte) RelayEnvelope {
	return RelayEnvelope{
		MessageID: request.MessageID,
		Payload:   payload,
	}
}

// MarshalCbor writes the envelope as a CBOR array of MessageID, Payload and Authentication.
func (e *RelayEnvelope) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteByteString(e.MessageID[:], w); err != nil {
		return err
	}

	if err := cboring.WriteByteString(e.Payload, w); err != nil {
		return err
	}

	return cboring.Marshal(&e.Authentication, w)
}

func (e *RelayEnvelope) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("expected array of three elements, got %d", n)
	}

	if id, err := readByteString(r); err != nil {
		return err
	} else if msgId, err := uuid.FromBytes(id); err != nil {
		return fmt.Errorf("invalid message id: %w", err)
	} else {
		e.MessageID = msgId
	}

	if payload, err := readByteString(r); err != nil {
		return err
	} else {
		e.Payload = payload
	}

	return cboring.Unmarshal(&e.Authentication, r)
}

// Bytes of the envelope's CBOR representation, as sent in a binary WebSocket frame or an HTTP body.
func (e RelayEnvelope) Bytes() ([]byte, error) {
	buff := new(bytes.Buffer)
	if err := cboring.Marshal(&e, buff); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// ParseEnvelope reads an envelope from its CBOR representation. Trailing data is rejected.
func ParseEnvelope(data []byte) (e RelayEnvelope, err error) {
	// Malformed input must never panic the caller's read loop.
	defer func() {
		if r := recover(); r != nil {
			err = newProtocolError(fmt.Sprintf("malformed envelope: %v", r), nil)
		}
	}()

	r := bytes.NewReader(data)
	if cErr := cboring.Unmarshal(&e, r); cErr != nil {
		err = newProtocolError("malformed envelope", cErr)
	} else if r.Len() != 0 {
		err = newProtocolError(fmt.Sprintf("malformed envelope, %d trailing bytes", r.Len()), nil)
	}
	return
}

// AuthenticationKind discriminates the content of an Authentication.
type AuthenticationKind uint64

const (
	// NoAuthentication is used for handshakes and replies.
	NoAuthentication AuthenticationKind = 0

	// TokenAuthentication carries a bearer token.
	TokenAuthentication AuthenticationKind = 1

	// IdentityAuthentication carries an identity resolved out of band.
	IdentityAuthentication AuthenticationKind = 2
)

// Authentication of a RelayEnvelope: nothing, a bearer token or a pre-resolved identity.
type Authentication struct {
	Token    string
	Identity *auth.Identity
}

// WithToken creates an Authentication for a bearer token.
func WithToken(token string) Authentication {
	return Authentication{Token: token}
}

// WithIdentity creates an Authentication for a pre-resolved identity.
func WithIdentity(id auth.Identity) Authentication {
	return Authentication{Identity: &id}
}

// Kind of this Authentication. A token takes precedence over an identity.
func (a Authentication) Kind() AuthenticationKind {
	switch {
	case a.Token != "":
		return TokenAuthentication
	case a.Identity != nil:
		return IdentityAuthentication
	default:
		return NoAuthentication
	}
}

func (a *Authentication) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	kind := a.Kind()
	if err := cboring.WriteUInt(uint64(kind), w); err != nil {
		return err
	}

	switch kind {
	case TokenAuthentication:
		return cboring.WriteTextString(a.Token, w)

	case IdentityAuthentication:
		if err := cboring.WriteArrayLength(2, w); err != nil {
			return err
		}
		if err := cboring.WriteTextString(a.Identity.Subject, w); err != nil {
			return err
		}
		if err := cboring.WriteArrayLength(uint64(len(a.Identity.Roles)), w); err != nil {
			return err
		}
		for _, role := range a.Identity.Roles {
			if err := cboring.WriteTextString(role, w); err != nil {
				return err
			}
		}
		return nil

	default:
		return cboring.WriteTextString("", w)
	}
}

func (a *Authentication) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("expected array of two elements, got %d", n)
	}

	kind, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}

	switch AuthenticationKind(kind) {
	case NoAuthentication:
		_, err = cboring.ReadTextString(r)
		return err

	case TokenAuthentication:
		if a.Token, err = cboring.ReadTextString(r); err != nil {
			return err
		} else if a.Token == "" {
			return fmt.Errorf("empty bearer token")
		}
		return nil

	case IdentityAuthentication:
		if n, err := cboring.ReadArrayLength(r); err != nil {
			return err
		} else if n != 2 {
			return fmt.Errorf("expected identity array of two elements, got %d", n)
		}

		id := auth.Identity{}
		if id.Subject, err = cboring.ReadTextString(r); err != nil {
			return err
		}

		roles, err := cboring.ReadArrayLength(r)
		if err != nil {
			return err
		}
		for i := uint64(0); i < roles; i++ {
			role, err := cboring.ReadTextString(r)
			if err != nil {
				return err
			}
			id.Roles = append(id.Roles, role)
		}

		a.Identity = &id
		return nil

	default:
		return fmt.Errorf("unknown authentication kind %d", kind)
	}
}

// readByteString reads a CBOR byte string, but rejects declared lengths exceeding the remaining input.
func readByteString(r io.Reader) ([]byte, error) {
	n, err := cboring.ReadByteStringLen(r)
	if err != nil {
		return nil, err
	}

	if lr, ok := r.(interface{ Len() int }); ok && n > uint64(lr.Len()) {
		return nil, fmt.Errorf("byte string of %d bytes exceeds the remaining %d bytes", n, lr.Len())
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
