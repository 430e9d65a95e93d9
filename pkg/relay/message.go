// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"encoding/json"
	"strconv"
)

// Header names of a SwitchBoardMessage.
const (
	HeaderTopic  = "topic"
	HeaderAction = "action"
	HeaderType   = "type"

	// HeaderTarget is the console's routing header, naming the client id of the addressed agent.
	HeaderTarget = "meta-target"

	// HeaderStatus carries the HTTP-like status code of a reply.
	HeaderStatus = "meta-status"

	// HeaderError carries the error text of a failed reply.
	HeaderError = "meta-error"
)

// CallType declares whether a relayed call expects a reply.
type CallType string

const (
	SyncCall  CallType = "sync"
	AsyncCall CallType = "async"
)

// Headers of a SwitchBoardMessage.
type Headers map[string]string

// Clone returns an independent copy.
func (h Headers) Clone() Headers {
	c := make(Headers, len(h))
	for k, v := range h {
		c[k] = v
	}
	return c
}

// Status code of the HeaderStatus header, or 0 if absent or invalid.
func (h Headers) Status() int {
	if code, err := strconv.Atoi(h[HeaderStatus]); err == nil {
		return code
	}
	return 0
}

// SwitchBoardMessage is the plaintext business message, encrypted into a RelayEnvelope's payload.
type SwitchBoardMessage[T any] struct {
	Payload T       `json:"payload"`
	Headers Headers `json:"headers"`
}

// NewMessage with a copy of the given headers.
func NewMessage[T any](payload T, headers Headers) SwitchBoardMessage[T] {
	return SwitchBoardMessage[T]{
		Payload: payload,
		Headers: headers.Clone(),
	}
}

// Header returns the value of a header or an empty string.
func (m SwitchBoardMessage[T]) Header(name string) string {
	return m.Headers[name]
}

// CallType declared by the HeaderType header. Messages without a type are synchronous.
func (m SwitchBoardMessage[T]) CallType() CallType {
	if CallType(m.Headers[HeaderType]) == AsyncCall {
		return AsyncCall
	}
	return SyncCall
}

// Marshal the message into its JSON representation.
func (m SwitchBoardMessage[T]) Marshal() ([]byte, error) {
	if m.Headers == nil {
		m.Headers = Headers{}
	}
	return json.Marshal(m)
}

// ParseMessage reads a SwitchBoardMessage from JSON.
func ParseMessage[T any](data []byte) (m SwitchBoardMessage[T], err error) {
	if jsonErr := json.Unmarshal(data, &m); jsonErr != nil {
		err = newProtocolError("malformed message", jsonErr)
	} else if m.Headers == nil {
		m.Headers = Headers{}
	}
	return
}

// PublicKeyMessage is the console's handshake, the first payload an agent ever receives from a console.
type PublicKeyMessage struct {
	PublicKey string `json:"publicKey"`
}

// ParsePublicKeyMessage returns a PublicKeyMessage if the plaintext is a console handshake. Its publicKey field is
// the discriminator between a handshake and a business call.
func ParsePublicKeyMessage(plaintext []byte) (pkm PublicKeyMessage, ok bool) {
	var probe struct {
		PublicKey *string `json:"publicKey"`
	}

	if err := json.Unmarshal(plaintext, &probe); err != nil || probe.PublicKey == nil || *probe.PublicKey == "" {
		return
	}
	return PublicKeyMessage{PublicKey: *probe.PublicKey}, true
}

// StatusOK is the status of a successful handshake acknowledgement.
const StatusOK = "OK"

// StatusMessage acknowledges a handshake.
type StatusMessage struct {
	Status string `json:"status"`
}
