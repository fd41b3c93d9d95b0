// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

// Checksum returns the arithmetic sum of data, truncated to 16 bits.
// Controller packets carry it big-endian after the parameter data; its low
// byte is the one-byte sum of the same bytes.
func Checksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}
