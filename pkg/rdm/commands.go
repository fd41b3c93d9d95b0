// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import "encoding/binary"

// Command builder functions create request packets ready for encoding.
// The transaction number and port id are filled in by the transport.

// NewDiscUniqueBranch creates a DISC_UNIQUE_BRANCH request asking every
// unmuted device in [lower, upper] to respond.
func NewDiscUniqueBranch(source, lower, upper UID) *Packet {
	data := make([]byte, 0, 2*UIDSize)
	data = append(data, lower[:]...)
	data = append(data, upper[:]...)
	return &Packet{
		Destination:  BroadcastAll,
		Source:       source,
		CommandClass: CommandDiscovery,
		PID:          PIDDiscUniqueBranch,
		Data:         data,
	}
}

// NewDiscMute creates a DISC_MUTE (pid PIDDiscMute) or DISC_UN_MUTE
// (pid PIDDiscUnMute) request.
func NewDiscMute(source, destination UID, pid uint16) *Packet {
	return &Packet{
		Destination:  destination,
		Source:       source,
		CommandClass: CommandDiscovery,
		PID:          pid,
	}
}

// NewGetCommand creates a GET_COMMAND request.
func NewGetCommand(source, destination UID, pid uint16, data []byte) *Packet {
	return &Packet{
		Destination:  destination,
		Source:       source,
		CommandClass: CommandGet,
		PID:          pid,
		Data:         data,
	}
}

// NewSetCommand creates a SET_COMMAND request.
func NewSetCommand(source, destination UID, pid uint16, data []byte) *Packet {
	return &Packet{
		Destination:  destination,
		Source:       source,
		CommandClass: CommandSet,
		PID:          pid,
		Data:         data,
	}
}

// NewResponse creates the response a responder with UID source sends for req.
func NewResponse(req *Packet, source UID, responseType uint8, data []byte) *Packet {
	return &Packet{
		Destination:       req.Source,
		Source:            source,
		TransactionNumber: req.TransactionNumber,
		PortID:            responseType,
		SubDevice:         req.SubDevice,
		CommandClass:      req.CommandClass + 1,
		PID:               req.PID,
		Data:              data,
	}
}

// NewNackResponse creates a NACK_REASON response for req.
func NewNackResponse(req *Packet, source UID, reason uint16) *Packet {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, reason)
	return NewResponse(req, source, ResponseNackReason, data)
}

// DiscoveryBounds extracts the lower and upper bound of a DISC_UNIQUE_BRANCH
// request.
func DiscoveryBounds(p *Packet) (Range, bool) {
	if p.PID != PIDDiscUniqueBranch || len(p.Data) < 2*UIDSize {
		return Range{}, false
	}
	var r Range
	copy(r.Lower[:], p.Data[:UIDSize])
	copy(r.Upper[:], p.Data[UIDSize:])
	return r, true
}
