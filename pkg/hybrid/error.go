// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package hybrid

import "fmt"

// SecurityError is returned for every failed cryptographic operation, e.g., a corrupted ciphertext, a wrong key or
// an unsupported scheme version. Partially decrypted data is never returned together with a SecurityError.
type SecurityError struct {
	Op  string
	Err error
}

func newSecurityError(op string, err error) *SecurityError {
	return &SecurityError{Op: op, Err: err}
}

func (e *SecurityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("hybrid %s failed", e.Op)
	}
	return fmt.Sprintf("hybrid %s failed: %v", e.Op, e.Err)
}

func (e *SecurityError) Unwrap() error {
	return e.Err
}
