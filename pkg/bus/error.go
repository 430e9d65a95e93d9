// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bus

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/frankframework/relay-tunnel/pkg/auth"
)

// Error is the uniform failure of a bus call. MessageID correlates a relayed call, and is uuid.Nil for local calls.
// Status follows the HTTP status codes.
type Error struct {
	MessageID uuid.UUID
	Status    int
	Err       error
}

// NewError for a status code.
func NewError(status int, err error) *Error {
	return &Error{Status: status, Err: err}
}

// Errorf creates a new Error for a status code and a formatted message.
func Errorf(status int, format string, a ...interface{}) *Error {
	return NewError(status, fmt.Errorf(format, a...))
}

// WithMessageID wraps any error into an Error correlated with the message id. An Error's status is kept, an
// auth.Error's Reason is mapped onto a status and everything else becomes an internal server error.
func WithMessageID(id uuid.UUID, err error) *Error {
	if busErr, ok := err.(*Error); ok {
		return &Error{
			MessageID: id,
			Status:    StatusOf(busErr),
			Err:       busErr.Err,
		}
	}

	return &Error{
		MessageID: id,
		Status:    StatusOf(err),
		Err:       err,
	}
}

func (e *Error) Error() string {
	if e.MessageID == uuid.Nil {
		return fmt.Sprintf("bus error, status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("bus error for message %v, status %d: %v", e.MessageID, e.Status, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf an error, as an HTTP status code.
func StatusOf(err error) int {
	var busErr *Error
	var authErr *auth.Error

	switch {
	case err == nil:
		return http.StatusOK

	case errors.As(err, &busErr) && busErr.Status != 0:
		return busErr.Status

	case errors.As(err, &authErr):
		if authErr.Reason == auth.Forbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized

	default:
		return http.StatusInternalServerError
	}
}
