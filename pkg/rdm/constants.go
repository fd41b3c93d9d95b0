// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rdm implements the wire format of ANSI E1.20 Remote Device
// Management as carried on a DMX512 line.
//
// It provides the 48-bit UID type, controller packet encoding and decoding,
// the checksum, the discovery (DISC_UNIQUE_BRANCH) response codec, response
// validation, and human-readable formatting for diagnostics.
package rdm

// Start codes
const (
	StartCodeDMX = 0x00 // Null start code, dimmer data
	StartCodeRDM = 0xCC
	SubStartCode = 0x01
)

// Packet layout. Offsets index the full packet including the start code.
const (
	HeaderSize       = 20 // start code through sub-device
	MessageBlockSize = 4  // command class, PID, PDL
	ChecksumSize     = 2
	MinPacketSize    = HeaderSize + MessageBlockSize + ChecksumSize
	MaxPDL           = 231
	MaxPacketSize    = HeaderSize + MessageBlockSize + MaxPDL + ChecksumSize // 257

	offsetStartCode    = 0
	offsetSubStartCode = 1
	offsetLength       = 2
	offsetDestination  = 3
	offsetSource       = 9
	offsetTransaction  = 15
	offsetPortID       = 16
	offsetMessageCount = 17
	offsetSubDevice    = 18
	offsetCommandClass = 20
	offsetPID          = 21
	offsetPDL          = 23
	offsetData         = 24
)

// Discovery response framing
const (
	DiscoveryPreamble     = 0xFE
	DiscoverySeparator    = 0xAA
	DiscoveryPreambleMax  = 7
	DiscoveryEncodedSize  = 16 // 12 EUID + 4 ECS
	DiscoveryResponseSize = DiscoveryPreambleMax + 1 + DiscoveryEncodedSize
)

// Command classes
const (
	CommandDiscovery         = 0x10
	CommandDiscoveryResponse = 0x11
	CommandGet               = 0x20
	CommandGetResponse       = 0x21
	CommandSet               = 0x30
	CommandSetResponse       = 0x31
)

// Response types, carried in the port id field of responses
const (
	ResponseAck         = 0x00
	ResponseAckTimer    = 0x01
	ResponseNackReason  = 0x02
	ResponseAckOverflow = 0x03
)

// Parameter IDs
const (
	PIDDiscUniqueBranch     = 0x0001
	PIDDiscMute             = 0x0002
	PIDDiscUnMute           = 0x0003
	PIDSupportedParameters  = 0x0050
	PIDDeviceInfo           = 0x0060
	PIDManufacturerLabel    = 0x0081
	PIDDeviceLabel          = 0x0082
	PIDSoftwareVersionLabel = 0x00C0
	PIDDMXStartAddress      = 0x00F0
	PIDIdentifyDevice       = 0x1000
)

// NACK reason codes
const (
	NackUnknownPID            = 0x0000
	NackFormatError           = 0x0001
	NackHardwareFault         = 0x0002
	NackProxyReject           = 0x0003
	NackWriteProtect          = 0x0004
	NackUnsupportedCommand    = 0x0005
	NackDataOutOfRange        = 0x0006
	NackBufferFull            = 0x0007
	NackPacketSizeUnsupported = 0x0008
	NackSubDeviceOutOfRange   = 0x0009
)

// SubDeviceRoot addresses the root device.
const SubDeviceRoot = 0x0000

// Parameter sizes
const (
	MaxSlots       = 512 // highest DMX start address
	DeviceInfoSize = 19
	MaxLabelLength = 32
)

// DefaultControllerUID identifies this controller as the source of every
// request unless configured otherwise.
var DefaultControllerUID = UID{0x6C, 0x78, 0x0F, 0x0A, 0x0C, 0x0E}
