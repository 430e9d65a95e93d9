// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/dtn7/cboring"

	"github.com/frankframework/relay-tunnel/pkg/auth"
)

func TestEnvelopeCbor(t *testing.T) {
	tests := []struct {
		name           string
		authentication Authentication
	}{
		{"none", Authentication{}},
		{"token", WithToken("header.claims.signature")},
		{"identity", WithIdentity(auth.Identity{Subject: "admin", Roles: []string{"IbisAdmin", "IbisTester"}})},
		{"identity without roles", WithIdentity(auth.Identity{Subject: "handshake"})},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			e1 := NewEnvelope([]byte("ciphertext"), test.authentication)

			data, err := e1.Bytes()
			if err != nil {
				t.Fatal(err)
			}

			e2, err := ParseEnvelope(data)
			if err != nil {
				t.Fatal(err)
			}

			if e1.MessageID != e2.MessageID || !bytes.Equal(e1.Payload, e2.Payload) {
				t.Fatalf("envelopes differ: %v, %v", e1, e2)
			}
			if e1.Authentication.Kind() != e2.Authentication.Kind() || e1.Authentication.Token != e2.Authentication.Token {
				t.Fatalf("authentication differs: %v, %v", e1.Authentication, e2.Authentication)
			}
			if e1.Authentication.Identity != nil {
				if e2.Authentication.Identity.Subject != e1.Authentication.Identity.Subject ||
					len(e2.Authentication.Identity.Roles) != len(e1.Authentication.Identity.Roles) {
					t.Fatalf("identity differs: %v, %v", e1.Authentication.Identity, e2.Authentication.Identity)
				}
			}
		})
	}
}

func TestEnvelopeReply(t *testing.T) {
	request := NewEnvelope([]byte("request"), WithToken("token"))
	reply := NewReply(request, []byte("reply"))

	if reply.MessageID != request.MessageID {
		t.Fatalf("reply id %v differs from request id %v", reply.MessageID, request.MessageID)
	}
	if reply.Authentication.Kind() != NoAuthentication {
		t.Fatalf("reply carries authentication %v", reply.Authentication)
	}
}

func TestParseEnvelopeMalformed(t *testing.T) {
	valid, err := NewEnvelope([]byte("ciphertext"), WithToken("token")).Bytes()
	if err != nil {
		t.Fatal(err)
	}

	// A forged byte string header claiming 2^32 bytes.
	forged := new(bytes.Buffer)
	_ = cboring.WriteArrayLength(3, forged)
	_ = cboring.WriteByteStringLen(1<<32, forged)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"truncated", valid[:len(valid)/2]},
		{"trailing", append(append([]byte{}, valid...), 0x00)},
		{"garbage", []byte("definitely not cbor")},
		{"forged length", forged.Bytes()},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var protoErr *ProtocolError
			if _, err := ParseEnvelope(test.data); err == nil {
				t.Fatal("malformed envelope was parsed")
			} else if !errors.As(err, &protoErr) {
				t.Fatalf("expected ProtocolError, got %T: %v", err, err)
			}
		})
	}
}

func TestAuthenticationKindPrecedence(t *testing.T) {
	a := Authentication{Token: "token", Identity: &auth.Identity{Subject: "admin"}}
	if a.Kind() != TokenAuthentication {
		t.Fatalf("expected token precedence, got %v", a.Kind())
	}
}

func TestAuthenticationEmptyToken(t *testing.T) {
	buff := new(bytes.Buffer)
	_ = cboring.WriteArrayLength(2, buff)
	_ = cboring.WriteUInt(uint64(TokenAuthentication), buff)
	_ = cboring.WriteTextString("", buff)

	var a Authentication
	if err := cboring.Unmarshal(&a, buff); err == nil {
		t.Fatal("empty token was accepted")
	}

	if !reflect.DeepEqual(WithToken(""), Authentication{}) {
		t.Fatal("empty token is not equal to no authentication")
	}
}
