// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import "fmt"

// Decoder states
const (
	stateIdle      = iota // waiting for a break
	stateStartCode        // break seen, next byte is the start code
	statePacket           // collecting an RDM packet
	stateSkip             // non-RDM frame, ignored until the next break
	stateAfterDUB         // DISC_UNIQUE_BRANCH sent, a response may follow without break
	stateDiscovery        // collecting a discovery response
)

// Decoder reassembles RDM traffic from a byte stream of a DMX line. Breaks
// are not bytes, so the owner of the stream signals them through Break.
//
// DISC_UNIQUE_BRANCH responses are returned as packets for which
// IsDiscoveryResponse reports true, with the responding UID as Source.
type Decoder struct {
	state  int
	buffer []byte
}

// NewDecoder creates a new decoder waiting for a break.
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxPacketSize),
	}
}

// Reset discards any partial packet and waits for the next break.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
}

// RawBytes returns the bytes accumulated for the packet in progress.
func (d *Decoder) RawBytes() []byte {
	return d.buffer
}

// Break signals a line break. A packet cut short by the break is reported
// as an error.
func (d *Decoder) Break() error {
	var err error
	switch d.state {
	case statePacket:
		err = newValidationError(AnomalyLength,
			fmt.Sprintf("packet truncated by break after %d bytes", len(d.buffer)),
			map[string]interface{}{"received": len(d.buffer)})
	case stateDiscovery:
		err = newValidationError(AnomalyLength,
			fmt.Sprintf("discovery response truncated after %d bytes", len(d.buffer)),
			map[string]interface{}{"received": len(d.buffer)})
	}
	d.buffer = d.buffer[:0]
	d.state = stateStartCode
	return err
}

// DecodeByte processes a single byte through the decoder state machine
// Returns a completed packet, or nil if the packet is incomplete
// Returns an error if decoding fails
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	switch d.state {
	case stateIdle, stateSkip:
		return nil, nil

	case stateStartCode:
		if b != StartCodeRDM {
			d.state = stateSkip
			return nil, nil
		}
		d.buffer = append(d.buffer[:0], b)
		d.state = statePacket
		return nil, nil

	case statePacket:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) == offsetLength+1 {
			msgLen := int(b)
			if msgLen < HeaderSize+MessageBlockSize || msgLen > MaxPacketSize-ChecksumSize {
				d.Reset()
				return nil, newValidationError(AnomalyLength,
					fmt.Sprintf("invalid message length: %d", msgLen),
					map[string]interface{}{"message_length": msgLen})
			}
		}
		if n := PacketLength(d.buffer); n == 0 || len(d.buffer) < n {
			return nil, nil
		}
		p, err := DecodePacket(d.buffer)
		d.buffer = d.buffer[:0]
		d.state = stateIdle
		if err != nil {
			return nil, err
		}
		if p.CommandClass == CommandDiscovery && p.PID == PIDDiscUniqueBranch {
			d.state = stateAfterDUB
		}
		return p, nil

	case stateAfterDUB:
		if b != DiscoveryPreamble && b != DiscoverySeparator {
			d.state = stateIdle
			return nil, nil
		}
		d.buffer = append(d.buffer[:0], b)
		d.state = stateDiscovery
		return nil, nil

	case stateDiscovery:
		d.buffer = append(d.buffer, b)
		n := DiscoveryResponseLength(d.buffer)
		if n == 0 || len(d.buffer) < n {
			return nil, nil
		}
		uid, err := DecodeDiscoveryResponse(d.buffer)
		d.Reset()
		if err != nil {
			return nil, err
		}
		return NewDiscoveryResponsePacket(uid), nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}
