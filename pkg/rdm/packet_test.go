// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"
)

// ============================================================
// Test Helpers
// ============================================================

func encodeOrFail(t *testing.T, p *Packet) []byte {
	t.Helper()
	b, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return b
}

// clearTimestamp lets decoded packets be compared with reflect.DeepEqual.
func clearTimestamp(p *Packet) *Packet {
	p.timestamp = time.Time{}
	return p
}

// ============================================================
// Checksum Tests
// ============================================================

func TestChecksum(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{name: "empty", data: nil, expected: 0},
		{name: "small", data: []byte{0x01, 0x02, 0x03}, expected: 0x0006},
		{name: "carry into high byte", data: []byte{0xFF, 0xFF}, expected: 0x01FE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.expected {
				t.Errorf("expected 0x%04X, got 0x%04X", tt.expected, got)
			}
		})
	}
}

func TestChecksum_LargestPacket(t *testing.T) {
	data := make([]byte, MaxPDL)
	for i := range data {
		data[i] = 0xFF
	}
	b, err := NewSetCommand(DefaultControllerUID, NewUID(0x6574, 1), 0x8000, data).Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b) != 257 {
		t.Fatalf("expected 257 bytes, got %d", len(b))
	}

	var sum uint8
	for _, c := range b[:len(b)-ChecksumSize] {
		sum += c
	}
	if b[len(b)-1] != sum {
		t.Errorf("low checksum byte 0x%02X, want one-byte sum 0x%02X", b[len(b)-1], sum)
	}
	want := Checksum(b[:len(b)-ChecksumSize])
	if got := uint16(b[len(b)-2])<<8 | uint16(b[len(b)-1]); got != want {
		t.Errorf("expected checksum 0x%04X, got 0x%04X", want, got)
	}
}

// ============================================================
// Encoding Tests
// ============================================================

func TestEncode_DiscUniqueBranchLayout(t *testing.T) {
	p := NewDiscUniqueBranch(DefaultControllerUID, ZeroUID, BroadcastAll)
	p.TransactionNumber = 7
	p.PortID = 1
	b := encodeOrFail(t, p)

	if len(b) != MinPacketSize+12 {
		t.Fatalf("expected %d bytes, got %d", MinPacketSize+12, len(b))
	}
	if b[0] != StartCodeRDM || b[1] != SubStartCode {
		t.Errorf("bad start codes: 0x%02X 0x%02X", b[0], b[1])
	}
	if b[2] != 36 {
		t.Errorf("message length: expected 36, got %d", b[2])
	}
	if !bytes.Equal(b[3:9], BroadcastAll[:]) {
		t.Errorf("destination: % X", b[3:9])
	}
	if !bytes.Equal(b[9:15], DefaultControllerUID[:]) {
		t.Errorf("source: % X", b[9:15])
	}
	if b[15] != 7 || b[16] != 1 {
		t.Errorf("transaction/port: %d/%d", b[15], b[16])
	}
	if b[20] != CommandDiscovery || b[21] != 0x00 || b[22] != 0x01 || b[23] != 12 {
		t.Errorf("message block: % X", b[20:24])
	}

	sum := Checksum(b[:36])
	if b[36] != byte(sum>>8) || b[37] != byte(sum) {
		t.Errorf("checksum: expected 0x%04X, got 0x%02X%02X", sum, b[36], b[37])
	}
}

func TestEncode_DataTooLarge(t *testing.T) {
	p := NewSetCommand(DefaultControllerUID, NewUID(1, 1), PIDDeviceLabel, make([]byte, MaxPDL+1))
	if _, err := p.Encode(); err == nil {
		t.Error("expected error for oversized parameter data")
	}
}

func TestMarshalTo_BufferTooSmall(t *testing.T) {
	p := NewGetCommand(DefaultControllerUID, NewUID(1, 1), PIDDeviceInfo, nil)
	if _, err := p.MarshalTo(make([]byte, MinPacketSize-1)); err == nil {
		t.Error("expected error for short buffer")
	}
}

func TestPacketLength(t *testing.T) {
	b := encodeOrFail(t, NewGetCommand(DefaultControllerUID, NewUID(1, 1), PIDDMXStartAddress, nil))
	if got := PacketLength(b[:3]); got != len(b) {
		t.Errorf("expected %d, got %d", len(b), got)
	}
	if got := PacketLength(b[:2]); got != 0 {
		t.Errorf("prefix without length must return 0, got %d", got)
	}
	if got := PacketLength([]byte{0x00, 0x01, 0x20}); got != 0 {
		t.Errorf("DMX frame must return 0, got %d", got)
	}
}

// ============================================================
// Decoding Tests
// ============================================================

func TestDecodePacket_RoundTrip(t *testing.T) {
	req := NewSetCommand(DefaultControllerUID, NewUID(0x6574, 0x10), PIDDeviceLabel, []byte("front wash"))
	req.TransactionNumber = 42
	req.PortID = 1
	req.SubDevice = 3

	got, err := DecodePacket(encodeOrFail(t, req))
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if got.Timestamp().IsZero() {
		t.Error("decoded packet must carry a timestamp")
	}
	if !reflect.DeepEqual(clearTimestamp(got), req) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, req)
	}
}

func TestDecodePacket_Errors(t *testing.T) {
	good := encodeOrFail(t, NewGetCommand(DefaultControllerUID, NewUID(1, 1), PIDDeviceInfo, nil))

	badChecksum := append([]byte(nil), good...)
	badChecksum[len(badChecksum)-1] ^= 0x01

	badStart := append([]byte(nil), good...)
	badStart[0] = StartCodeDMX

	badLength := append([]byte(nil), good...)
	badLength[offsetLength]++

	tests := []struct {
		name    string
		data    []byte
		anomaly AnomalyType
	}{
		{name: "short", data: good[:MinPacketSize-1], anomaly: AnomalyLength},
		{name: "checksum", data: badChecksum, anomaly: AnomalyChecksum},
		{name: "start code", data: badStart, anomaly: AnomalyStartCode},
		{name: "length", data: badLength, anomaly: AnomalyLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePacket(tt.data)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Type != tt.anomaly {
				t.Errorf("expected anomaly %s, got %s", tt.anomaly, verr.Type)
			}
			if !errors.Is(err, ErrMalformed) || !errors.Is(err, ErrNoReply) {
				t.Errorf("validation errors must wrap ErrMalformed and ErrNoReply")
			}
		})
	}
}

// ============================================================
// Command Builder Tests
// ============================================================

func TestNewResponse_MirrorsRequest(t *testing.T) {
	dev := NewUID(0x6574, 0x20)
	req := NewGetCommand(DefaultControllerUID, dev, PIDDMXStartAddress, nil)
	req.TransactionNumber = 9
	req.SubDevice = 2

	resp := NewResponse(req, dev, ResponseAck, EncodeStartAddress(17))
	if resp.Destination != DefaultControllerUID || resp.Source != dev {
		t.Errorf("addresses not swapped: %s -> %s", resp.Source, resp.Destination)
	}
	if resp.CommandClass != CommandGetResponse {
		t.Errorf("expected GET_COMMAND_RESPONSE, got %s", FormatCommandClass(resp.CommandClass))
	}
	if resp.TransactionNumber != 9 || resp.SubDevice != 2 || resp.PID != PIDDMXStartAddress {
		t.Errorf("response does not mirror request: %+v", resp)
	}
	if err := ValidateResponse(req, resp, DefaultControllerUID); err != nil {
		t.Errorf("ValidateResponse: %v", err)
	}
}

func TestDiscoveryBounds(t *testing.T) {
	r := ManufacturerRange(0x6574)
	p := NewDiscUniqueBranch(DefaultControllerUID, r.Lower, r.Upper)
	got, ok := DiscoveryBounds(p)
	if !ok || got != r {
		t.Errorf("expected %s, got %s (ok=%v)", r, got, ok)
	}

	if _, ok := DiscoveryBounds(NewDiscMute(DefaultControllerUID, BroadcastAll, PIDDiscUnMute)); ok {
		t.Error("mute request has no bounds")
	}
}

func TestDeviceInfo_RoundTrip(t *testing.T) {
	info := DeviceInfo{
		ProtocolVersion:  DefaultProtocolVersion,
		ModelID:          0x0102,
		ProductCategory:  0x0101,
		SoftwareVersion:  0x00010203,
		Footprint:        12,
		Personality:      1,
		PersonalityCount: 3,
		StartAddress:     101,
		SensorCount:      2,
	}
	b := info.Encode()
	if len(b) != DeviceInfoSize {
		t.Fatalf("expected %d bytes, got %d", DeviceInfoSize, len(b))
	}
	back, err := DecodeDeviceInfo(b)
	if err != nil {
		t.Fatalf("DecodeDeviceInfo: %v", err)
	}
	if back != info {
		t.Errorf("expected %+v, got %+v", info, back)
	}
	if _, err := DecodeDeviceInfo(b[:10]); err == nil {
		t.Error("expected error for short payload")
	}
}
