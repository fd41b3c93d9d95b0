// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import (
	"errors"
	"testing"
)

// mergeResponses ORs two responses byte by byte, the way overlapping
// transmitters appear on an open-drain receiver.
func mergeResponses(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] | b[i]
	}
	return out
}

func TestEncodeDiscoveryResponse_Layout(t *testing.T) {
	u := NewUID(0x1234, 0x56789ABC)
	b := EncodeDiscoveryResponse(u)

	if len(b) != DiscoveryResponseSize {
		t.Fatalf("expected %d bytes, got %d", DiscoveryResponseSize, len(b))
	}
	for i := 0; i < DiscoveryPreambleMax; i++ {
		if b[i] != DiscoveryPreamble {
			t.Errorf("preamble byte %d: 0x%02X", i, b[i])
		}
	}
	if b[DiscoveryPreambleMax] != DiscoverySeparator {
		t.Errorf("separator: 0x%02X", b[DiscoveryPreambleMax])
	}
	// 0x12 encodes as 0x12|0xAA, 0x12|0x55
	if b[8] != 0xBA || b[9] != 0x57 {
		t.Errorf("first encoded pair: 0x%02X 0x%02X", b[8], b[9])
	}
}

func TestDecodeDiscoveryResponse_RoundTrip(t *testing.T) {
	uids := []UID{ZeroUID, BroadcastAll, DefaultControllerUID, NewUID(0x6574, 0x00000001)}
	for _, u := range uids {
		got, err := DecodeDiscoveryResponse(EncodeDiscoveryResponse(u))
		if err != nil {
			t.Errorf("%s: %v", u, err)
			continue
		}
		if got != u {
			t.Errorf("expected %s, got %s", u, got)
		}
	}
}

func TestDecodeDiscoveryResponse_ShortPreamble(t *testing.T) {
	u := NewUID(0x0001, 0x00000042)
	full := EncodeDiscoveryResponse(u)

	for skip := 0; skip <= DiscoveryPreambleMax; skip++ {
		got, err := DecodeDiscoveryResponse(full[skip:])
		if err != nil {
			t.Errorf("preamble of %d bytes: %v", DiscoveryPreambleMax-skip, err)
			continue
		}
		if got != u {
			t.Errorf("preamble of %d bytes: expected %s, got %s", DiscoveryPreambleMax-skip, u, got)
		}
		if n := DiscoveryResponseLength(full[skip:]); n != len(full)-skip {
			t.Errorf("DiscoveryResponseLength: expected %d, got %d", len(full)-skip, n)
		}
	}
}

func TestDecodeDiscoveryResponse_Errors(t *testing.T) {
	good := EncodeDiscoveryResponse(NewUID(0x0001, 0x00000001))

	corrupt := append([]byte(nil), good...)
	corrupt[10] ^= 0x01

	noSeparator := append([]byte(nil), good...)
	noSeparator[DiscoveryPreambleMax] = 0x00

	tests := []struct {
		name    string
		data    []byte
		anomaly AnomalyType
	}{
		{name: "corrupt uid", data: corrupt, anomaly: AnomalyChecksum},
		{name: "missing separator", data: noSeparator, anomaly: AnomalyStartCode},
		{name: "truncated", data: good[:len(good)-1], anomaly: AnomalyLength},
		{name: "empty", data: nil, anomaly: AnomalyStartCode},
		{
			name:    "collision",
			data:    mergeResponses(good, EncodeDiscoveryResponse(NewUID(0x0001, 0x00000002))),
			anomaly: AnomalyChecksum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDiscoveryResponse(tt.data)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Type != tt.anomaly {
				t.Errorf("expected anomaly %s, got %s", tt.anomaly, verr.Type)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Error("expected ErrMalformed")
			}
		})
	}
}

func TestDiscoveryResponseLength(t *testing.T) {
	if n := DiscoveryResponseLength([]byte{DiscoveryPreamble, DiscoveryPreamble}); n != 0 {
		t.Errorf("preamble only: expected 0, got %d", n)
	}
	if n := DiscoveryResponseLength([]byte{DiscoveryPreamble, 0x13}); n != DiscoveryResponseSize {
		t.Errorf("garbage: expected %d, got %d", DiscoveryResponseSize, n)
	}
	eight := []byte{0xFE, 0xFE, 0xFE, 0xFE, 0xFE, 0xFE, 0xFE, 0xFE}
	if n := DiscoveryResponseLength(eight); n != DiscoveryResponseSize {
		t.Errorf("overlong preamble: expected %d, got %d", DiscoveryResponseSize, n)
	}
}
