// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import "fmt"

// ProtocolError indicates a violation of the relay protocol, e.g., a malformed envelope, a missing routing header,
// an unknown target key or a reply not matching its request.
type ProtocolError struct {
	Msg string
	Err error
}

func newProtocolError(msg string, err error) *ProtocolError {
	return &ProtocolError{Msg: msg, Err: err}
}

// NewProtocolError for a protocol violation detected outside of this package.
func NewProtocolError(format string, a ...interface{}) *ProtocolError {
	return newProtocolError(fmt.Sprintf(format, a...), nil)
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol error: %s", e.Msg)
	}
	return fmt.Sprintf("protocol error: %s: %v", e.Msg, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
