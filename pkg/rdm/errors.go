// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import (
	"errors"
	"fmt"
)

// Transaction outcomes
var (
	// ErrNoReply indicates no valid response arrived before the timeout.
	ErrNoReply = errors.New("no reply")

	// ErrMalformed indicates bytes arrived but did not form a valid response.
	// It wraps ErrNoReply: callers that only care about success treat both
	// the same, diagnostics can tell them apart.
	ErrMalformed = fmt.Errorf("%w: malformed response", ErrNoReply)

	// ErrNack indicates the device answered with a NACK.
	ErrNack = errors.New("negative acknowledgement")
)

// NackError carries the reason code of a NACK response.
type NackError struct {
	PID    uint16
	Reason uint16
}

// Error implements the error interface
func (e *NackError) Error() string {
	return fmt.Sprintf("%s for %s: %s", ErrNack, FormatPID(e.PID), FormatNackReason(e.Reason))
}

// Unwrap returns ErrNack.
func (e *NackError) Unwrap() error {
	return ErrNack
}
