// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package announce

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// Message types
const (
	MsgTableOfDevices = 0x01
	MsgStatus         = 0x02
)

// TableOfDevices is the payload published after the device table changed.
// It is encoded as the CBOR array [MsgTableOfDevices, map] with integer
// keys.
type TableOfDevices struct {
	Controller rdm.UID   `cbor:"0,keyasint"`
	Sequence   uint32    `cbor:"1,keyasint"`
	Devices    []rdm.UID `cbor:"2,keyasint"`
	Timestamp  int64     `cbor:"3,keyasint"` // unix milliseconds
}

// Status is the controller presence payload, also used as the last will.
type Status struct {
	Controller rdm.UID `cbor:"0,keyasint"`
	Online     bool    `cbor:"1,keyasint"`
}

// Encode returns the CBOR encoding of t.
func (t TableOfDevices) Encode() ([]byte, error) {
	return encode(MsgTableOfDevices, t)
}

// Encode returns the CBOR encoding of s.
func (s Status) Encode() ([]byte, error) {
	return encode(MsgStatus, s)
}

func encode(msgType uint8, payload any) ([]byte, error) {
	b, err := cbor.Marshal([]any{msgType, payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR: %w", err)
	}
	return b, nil
}

// DecodeTableOfDevices parses a table of devices message.
func DecodeTableOfDevices(data []byte) (TableOfDevices, error) {
	var t TableOfDevices
	err := decode(data, MsgTableOfDevices, &t)
	return t, err
}

// DecodeStatus parses a status message.
func DecodeStatus(data []byte) (Status, error) {
	var s Status
	err := decode(data, MsgStatus, &s)
	return s, err
}

func decode(data []byte, want uint8, payload any) error {
	if len(data) == 0 {
		return fmt.Errorf("empty CBOR payload")
	}

	var msg []cbor.RawMessage
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to decode CBOR: %w", err)
	}
	if len(msg) != 2 {
		return fmt.Errorf("expected 2-element array, got %d elements", len(msg))
	}

	var msgType uint8
	if err := cbor.Unmarshal(msg[0], &msgType); err != nil {
		return fmt.Errorf("invalid message type: %w", err)
	}
	if msgType != want {
		return fmt.Errorf("unexpected message type 0x%02X, want 0x%02X", msgType, want)
	}

	if err := cbor.Unmarshal(msg[1], payload); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
