// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Packet is a decoded RDM request or response.
type Packet struct {
	Destination       UID
	Source            UID
	TransactionNumber uint8
	PortID            uint8 // response type in responses
	MessageCount      uint8
	SubDevice         uint16
	CommandClass      uint8
	PID               uint16
	Data              []byte

	timestamp time.Time
}

// Len returns the encoded size including start code and checksum.
func (p *Packet) Len() int {
	return MinPacketSize + len(p.Data)
}

// MessageLength returns the value of the message length field: every byte
// of the packet except the checksum.
func (p *Packet) MessageLength() uint8 {
	return uint8(HeaderSize + MessageBlockSize + len(p.Data))
}

// ResponseType returns the response type of a response packet.
func (p *Packet) ResponseType() uint8 {
	return p.PortID
}

// IsResponse reports whether the command class is one of the response classes.
func (p *Packet) IsResponse() bool {
	switch p.CommandClass {
	case CommandDiscoveryResponse, CommandGetResponse, CommandSetResponse:
		return true
	}
	return false
}

// NackReason returns the reason code of a NACK response.
func (p *Packet) NackReason() (uint16, bool) {
	if p.PortID != ResponseNackReason || len(p.Data) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(p.Data), true
}

// Timestamp returns the decode timestamp
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// MarshalTo writes the wire form of p into buf and returns the number of
// bytes written. buf must hold at least p.Len() bytes.
func (p *Packet) MarshalTo(buf []byte) (int, error) {
	if len(p.Data) > MaxPDL {
		return 0, fmt.Errorf("parameter data too large: %d bytes (max %d)", len(p.Data), MaxPDL)
	}
	n := p.Len()
	if len(buf) < n {
		return 0, fmt.Errorf("buffer too small: %d bytes (need %d)", len(buf), n)
	}

	buf[offsetStartCode] = StartCodeRDM
	buf[offsetSubStartCode] = SubStartCode
	buf[offsetLength] = p.MessageLength()
	copy(buf[offsetDestination:], p.Destination[:])
	copy(buf[offsetSource:], p.Source[:])
	buf[offsetTransaction] = p.TransactionNumber
	buf[offsetPortID] = p.PortID
	buf[offsetMessageCount] = p.MessageCount
	binary.BigEndian.PutUint16(buf[offsetSubDevice:], p.SubDevice)
	buf[offsetCommandClass] = p.CommandClass
	binary.BigEndian.PutUint16(buf[offsetPID:], p.PID)
	buf[offsetPDL] = uint8(len(p.Data))
	copy(buf[offsetData:], p.Data)

	end := n - ChecksumSize
	binary.BigEndian.PutUint16(buf[end:], Checksum(buf[:end]))
	return n, nil
}

// Encode returns the wire form of p.
func (p *Packet) Encode() ([]byte, error) {
	buf := make([]byte, p.Len())
	if _, err := p.MarshalTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// PacketLength returns the full wire length announced by a packet prefix,
// or 0 if the prefix is too short or not an RDM packet.
func PacketLength(prefix []byte) int {
	if len(prefix) <= offsetLength || prefix[offsetStartCode] != StartCodeRDM {
		return 0
	}
	return int(prefix[offsetLength]) + ChecksumSize
}

// DecodePacket parses and checks a complete wire packet. Structural failures
// are returned as *ValidationError.
func DecodePacket(b []byte) (*Packet, error) {
	if len(b) < MinPacketSize {
		return nil, newValidationError(AnomalyLength,
			fmt.Sprintf("packet too short: %d bytes (min %d)", len(b), MinPacketSize),
			map[string]interface{}{"length": len(b), "minimum": MinPacketSize})
	}
	if b[offsetStartCode] != StartCodeRDM || b[offsetSubStartCode] != SubStartCode {
		return nil, newValidationError(AnomalyStartCode,
			fmt.Sprintf("bad start code 0x%02X/0x%02X", b[offsetStartCode], b[offsetSubStartCode]),
			map[string]interface{}{"start_code": b[offsetStartCode], "sub_start_code": b[offsetSubStartCode]})
	}

	msgLen := int(b[offsetLength])
	pdl := int(b[offsetPDL])
	if msgLen < HeaderSize+MessageBlockSize || msgLen+ChecksumSize > len(b) || msgLen != HeaderSize+MessageBlockSize+pdl {
		return nil, newValidationError(AnomalyLength,
			fmt.Sprintf("length mismatch: message length %d, PDL %d, received %d bytes", msgLen, pdl, len(b)),
			map[string]interface{}{"message_length": msgLen, "pdl": pdl, "received": len(b)})
	}

	want := Checksum(b[:msgLen])
	got := binary.BigEndian.Uint16(b[msgLen:])
	if want != got {
		return nil, newValidationError(AnomalyChecksum,
			fmt.Sprintf("checksum mismatch: expected 0x%04X, got 0x%04X", want, got),
			map[string]interface{}{"expected": want, "received": got})
	}

	p := &Packet{
		TransactionNumber: b[offsetTransaction],
		PortID:            b[offsetPortID],
		MessageCount:      b[offsetMessageCount],
		SubDevice:         binary.BigEndian.Uint16(b[offsetSubDevice:]),
		CommandClass:      b[offsetCommandClass],
		PID:               binary.BigEndian.Uint16(b[offsetPID:]),
		timestamp:         time.Now(),
	}
	copy(p.Destination[:], b[offsetDestination:])
	copy(p.Source[:], b[offsetSource:])
	if pdl > 0 {
		p.Data = append([]byte(nil), b[offsetData:offsetData+pdl]...)
	}
	return p, nil
}

// NewDiscoveryResponsePacket represents a decoded DISC_UNIQUE_BRANCH response
// from uid as a packet, so it can be logged and counted like any other.
func NewDiscoveryResponsePacket(uid UID) *Packet {
	return &Packet{
		Source:       uid,
		CommandClass: CommandDiscoveryResponse,
		PID:          PIDDiscUniqueBranch,
		timestamp:    time.Now(),
	}
}

// IsDiscoveryResponse reports whether p stands for a DISC_UNIQUE_BRANCH
// response. Those have no header on the wire and cannot be encoded.
func (p *Packet) IsDiscoveryResponse() bool {
	return p.CommandClass == CommandDiscoveryResponse && p.PID == PIDDiscUniqueBranch
}
