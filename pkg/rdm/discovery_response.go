// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import "fmt"

// A DISC_UNIQUE_BRANCH response is sent without a break and without the
// regular packet header: up to seven preamble bytes, a separator, the UID
// with every byte sent twice (OR 0xAA, OR 0x55), then the checksum of the
// encoded UID encoded the same way. Simultaneous responders corrupt each
// other, which is detected through the checksum.

// EncodeDiscoveryResponse returns the response a device with UID u sends,
// using the full seven-byte preamble.
func EncodeDiscoveryResponse(u UID) []byte {
	buf := make([]byte, 0, DiscoveryResponseSize)
	for i := 0; i < DiscoveryPreambleMax; i++ {
		buf = append(buf, DiscoveryPreamble)
	}
	buf = append(buf, DiscoverySeparator)

	start := len(buf)
	for _, b := range u {
		buf = append(buf, b|0xAA, b|0x55)
	}
	cs := Checksum(buf[start:])
	hi, lo := byte(cs>>8), byte(cs)
	buf = append(buf, hi|0xAA, hi|0x55, lo|0xAA, lo|0x55)
	return buf
}

// DiscoveryResponseLength returns the total length of a discovery response
// given its first bytes. It returns 0 while only preamble has been seen and
// DiscoveryResponseSize when the prefix cannot be a well-formed response, so
// a reader stops at the maximum size and lets the decoder reject it.
func DiscoveryResponseLength(prefix []byte) int {
	for i, b := range prefix {
		switch {
		case b == DiscoverySeparator:
			return i + 1 + DiscoveryEncodedSize
		case b != DiscoveryPreamble || i >= DiscoveryPreambleMax:
			return DiscoveryResponseSize
		}
	}
	return 0
}

// DecodeDiscoveryResponse extracts the responding UID. Failures are returned
// as *ValidationError wrapping ErrMalformed.
func DecodeDiscoveryResponse(b []byte) (UID, error) {
	i := 0
	for i < len(b) && i < DiscoveryPreambleMax && b[i] == DiscoveryPreamble {
		i++
	}
	if i >= len(b) || b[i] != DiscoverySeparator {
		return UID{}, newValidationError(AnomalyStartCode, "discovery response separator missing",
			map[string]interface{}{"offset": i, "received": len(b)})
	}
	enc := b[i+1:]
	if len(enc) < DiscoveryEncodedSize {
		return UID{}, newValidationError(AnomalyLength,
			fmt.Sprintf("discovery response too short: %d encoded bytes (need %d)", len(enc), DiscoveryEncodedSize),
			map[string]interface{}{"length": len(enc), "expected": DiscoveryEncodedSize})
	}

	var u UID
	for j := range u {
		u[j] = enc[2*j] & enc[2*j+1]
	}
	want := Checksum(enc[:2*UIDSize])
	got := uint16(enc[12]&enc[13])<<8 | uint16(enc[14]&enc[15])
	if want != got {
		return UID{}, newValidationError(AnomalyChecksum,
			fmt.Sprintf("discovery checksum mismatch: expected 0x%04X, got 0x%04X", want, got),
			map[string]interface{}{"expected": want, "received": got})
	}
	return u, nil
}
