// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package busim

import (
	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// Device is a simulated RDM responder.
type Device struct {
	uid          rdm.UID
	present      bool
	muted        bool
	identify     bool
	corrupt      bool
	truncate     int
	startAddress uint16
	label        string
	info         rdm.DeviceInfo

	requests int
}

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithStartAddress sets the initial DMX start address.
func WithStartAddress(addr uint16) DeviceOption {
	return func(d *Device) { d.startAddress = addr }
}

// WithLabel sets the initial device label.
func WithLabel(label string) DeviceOption {
	return func(d *Device) { d.label = label }
}

// WithCorruptChecksum makes every response fail its checksum.
func WithCorruptChecksum() DeviceOption {
	return func(d *Device) { d.corrupt = true }
}

// WithTruncatedResponse makes every response stop after n bytes, as a
// responder that loses power mid-packet would.
func WithTruncatedResponse(n int) DeviceOption {
	return func(d *Device) { d.truncate = n }
}

// WithFootprint sets the DMX footprint reported in DEVICE_INFO.
func WithFootprint(n uint16) DeviceOption {
	return func(d *Device) { d.info.Footprint = n }
}

// NewDevice creates a present, unmuted responder.
func NewDevice(uid rdm.UID, opts ...DeviceOption) *Device {
	d := &Device{
		uid:          uid,
		present:      true,
		startAddress: 1,
		label:        "busim " + uid.String(),
		info: rdm.DeviceInfo{
			ProtocolVersion:  rdm.DefaultProtocolVersion,
			ModelID:          0x0001,
			ProductCategory:  0x0101,
			SoftwareVersion:  0x00010000,
			Footprint:        4,
			Personality:      1,
			PersonalityCount: 1,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// UID returns the device UID.
func (d *Device) UID() rdm.UID { return d.uid }

// SetPresent connects or disconnects the device from the line.
func (d *Device) SetPresent(present bool) { d.present = present }

// Present reports whether the device is on the line.
func (d *Device) Present() bool { return d.present }

// Muted reports whether the device ignores DISC_UNIQUE_BRANCH.
func (d *Device) Muted() bool { return d.muted }

// Identifying reports the IDENTIFY_DEVICE state.
func (d *Device) Identifying() bool { return d.identify }

// StartAddress returns the DMX start address.
func (d *Device) StartAddress() uint16 { return d.startAddress }

// Label returns the device label.
func (d *Device) Label() string { return d.label }

// Requests returns the number of requests addressed to the device.
func (d *Device) Requests() int { return d.requests }

// handle processes a controller request. It returns the wire response, if
// any, and whether it is a discovery response (sent without break).
func (d *Device) handle(p *rdm.Packet) ([]byte, bool) {
	if !d.present || !d.uid.Matches(p.Destination) {
		return nil, false
	}
	d.requests++

	if p.CommandClass == rdm.CommandDiscovery && p.PID == rdm.PIDDiscUniqueBranch {
		r, ok := rdm.DiscoveryBounds(p)
		if !ok || d.muted || !r.Contains(d.uid) {
			return nil, false
		}
		b := rdm.EncodeDiscoveryResponse(d.uid)
		if d.corrupt {
			b[len(b)-1] ^= 0xFF
		}
		return d.cut(b), true
	}

	resp := d.respond(p)
	if resp == nil || p.Destination.IsBroadcast() {
		return nil, false
	}
	b, err := resp.Encode()
	if err != nil {
		return nil, false
	}
	if d.corrupt {
		b[len(b)-1] ^= 0xFF
	}
	return d.cut(b), false
}

func (d *Device) cut(b []byte) []byte {
	if d.truncate > 0 && len(b) > d.truncate {
		return b[:d.truncate]
	}
	return b
}

func (d *Device) ack(p *rdm.Packet, data []byte) *rdm.Packet {
	return rdm.NewResponse(p, d.uid, rdm.ResponseAck, data)
}

func (d *Device) nack(p *rdm.Packet, reason uint16) *rdm.Packet {
	return rdm.NewNackResponse(p, d.uid, reason)
}

func (d *Device) respond(p *rdm.Packet) *rdm.Packet {
	switch p.CommandClass {
	case rdm.CommandDiscovery:
		switch p.PID {
		case rdm.PIDDiscMute:
			d.muted = true
			return d.ack(p, []byte{0x00, 0x00})
		case rdm.PIDDiscUnMute:
			d.muted = false
			return d.ack(p, []byte{0x00, 0x00})
		}
		return nil

	case rdm.CommandGet:
		return d.get(p)

	case rdm.CommandSet:
		return d.set(p)
	}
	return nil
}

func (d *Device) get(p *rdm.Packet) *rdm.Packet {
	switch p.PID {
	case rdm.PIDDMXStartAddress:
		return d.ack(p, rdm.EncodeStartAddress(d.startAddress))
	case rdm.PIDIdentifyDevice:
		state := byte(0)
		if d.identify {
			state = 1
		}
		return d.ack(p, []byte{state})
	case rdm.PIDDeviceLabel:
		return d.ack(p, []byte(d.label))
	case rdm.PIDDeviceInfo:
		info := d.info
		info.StartAddress = d.startAddress
		return d.ack(p, info.Encode())
	case rdm.PIDSupportedParameters:
		var data []byte
		for _, pid := range []uint16{rdm.PIDDeviceLabel, rdm.PIDDMXStartAddress, rdm.PIDIdentifyDevice} {
			data = append(data, byte(pid>>8), byte(pid))
		}
		return d.ack(p, data)
	}
	return d.nack(p, rdm.NackUnknownPID)
}

func (d *Device) set(p *rdm.Packet) *rdm.Packet {
	switch p.PID {
	case rdm.PIDDMXStartAddress:
		addr, err := rdm.DecodeStartAddress(p.Data)
		if err != nil {
			return d.nack(p, rdm.NackFormatError)
		}
		if addr < 1 || addr > rdm.MaxSlots {
			return d.nack(p, rdm.NackDataOutOfRange)
		}
		d.startAddress = addr
		return d.ack(p, nil)
	case rdm.PIDIdentifyDevice:
		if len(p.Data) != 1 {
			return d.nack(p, rdm.NackFormatError)
		}
		if p.Data[0] > 1 {
			return d.nack(p, rdm.NackDataOutOfRange)
		}
		d.identify = p.Data[0] == 1
		return d.ack(p, nil)
	case rdm.PIDDeviceLabel:
		if len(p.Data) > rdm.MaxLabelLength {
			return d.nack(p, rdm.NackFormatError)
		}
		d.label = string(p.Data)
		return d.ack(p, nil)
	case rdm.PIDDeviceInfo, rdm.PIDSupportedParameters:
		return d.nack(p, rdm.NackUnsupportedCommand)
	}
	return d.nack(p, rdm.NackUnknownPID)
}
