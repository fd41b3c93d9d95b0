// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import "errors"

var (
	// ErrBusy is returned when a transaction is requested while another is in
	// flight, or from a callback running in handler context.
	ErrBusy = errors.New("transaction in progress")

	// ErrNotSending is returned when a transaction is requested while the
	// engine is not in continuous send mode.
	ErrNotSending = errors.New("engine is not sending")

	// ErrPayloadTooLarge is returned when parameter data does not fit into a
	// single packet.
	ErrPayloadTooLarge = errors.New("parameter data too large")
)
