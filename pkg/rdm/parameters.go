// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import (
	"encoding/binary"
	"fmt"
)

// DeviceInfo is the DEVICE_INFO parameter.
type DeviceInfo struct {
	ProtocolVersion  uint16
	ModelID          uint16
	ProductCategory  uint16
	SoftwareVersion  uint32
	Footprint        uint16
	Personality      uint8
	PersonalityCount uint8
	StartAddress     uint16
	SubDeviceCount   uint16
	SensorCount      uint8
}

// DefaultProtocolVersion is E1.20 version 1.0.
const DefaultProtocolVersion = 0x0100

// Encode returns the wire form of the parameter.
func (d DeviceInfo) Encode() []byte {
	b := make([]byte, DeviceInfoSize)
	binary.BigEndian.PutUint16(b[0:], d.ProtocolVersion)
	binary.BigEndian.PutUint16(b[2:], d.ModelID)
	binary.BigEndian.PutUint16(b[4:], d.ProductCategory)
	binary.BigEndian.PutUint32(b[6:], d.SoftwareVersion)
	binary.BigEndian.PutUint16(b[10:], d.Footprint)
	b[12] = d.Personality
	b[13] = d.PersonalityCount
	binary.BigEndian.PutUint16(b[14:], d.StartAddress)
	binary.BigEndian.PutUint16(b[16:], d.SubDeviceCount)
	b[18] = d.SensorCount
	return b
}

// DecodeDeviceInfo parses a DEVICE_INFO response payload.
func DecodeDeviceInfo(b []byte) (DeviceInfo, error) {
	if len(b) != DeviceInfoSize {
		return DeviceInfo{}, fmt.Errorf("DEVICE_INFO needs %d bytes, got %d", DeviceInfoSize, len(b))
	}
	return DeviceInfo{
		ProtocolVersion:  binary.BigEndian.Uint16(b[0:]),
		ModelID:          binary.BigEndian.Uint16(b[2:]),
		ProductCategory:  binary.BigEndian.Uint16(b[4:]),
		SoftwareVersion:  binary.BigEndian.Uint32(b[6:]),
		Footprint:        binary.BigEndian.Uint16(b[10:]),
		Personality:      b[12],
		PersonalityCount: b[13],
		StartAddress:     binary.BigEndian.Uint16(b[14:]),
		SubDeviceCount:   binary.BigEndian.Uint16(b[16:]),
		SensorCount:      b[18],
	}, nil
}

// String formats the parameter the way FormatParameterData prints payloads.
func (d DeviceInfo) String() string {
	return fmt.Sprintf("  Protocol: %d.%d, Model: 0x%04X, Category: 0x%04X, Software: 0x%08X\n"+
		"  Footprint: %d, Personality: %d/%d, Start Address: %d, Sub-devices: %d, Sensors: %d\n",
		d.ProtocolVersion>>8, d.ProtocolVersion&0xFF, d.ModelID, d.ProductCategory, d.SoftwareVersion,
		d.Footprint, d.Personality, d.PersonalityCount, d.StartAddress, d.SubDeviceCount, d.SensorCount)
}

// EncodeStartAddress returns the DMX_START_ADDRESS payload.
func EncodeStartAddress(addr uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, addr)
}

// DecodeStartAddress parses a DMX_START_ADDRESS payload.
func DecodeStartAddress(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("DMX_START_ADDRESS needs 2 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}
