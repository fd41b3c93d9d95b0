// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// UIDSize is the wire size of a UID in bytes.
const UIDSize = 6

// UID is a 48-bit RDM unique identifier: a 16-bit manufacturer ID followed by
// a 32-bit device ID, stored big-endian as it appears on the wire.
type UID [UIDSize]byte

// Special UIDs
var (
	// BroadcastAll addresses every device on the line.
	BroadcastAll = UID{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	// ZeroUID is the lowest UID and the lower bound of a full search.
	ZeroUID = UID{}
)

// NewUID builds a UID from a manufacturer ID and a device ID.
func NewUID(manufacturer uint16, device uint32) UID {
	return UID{
		byte(manufacturer >> 8), byte(manufacturer),
		byte(device >> 24), byte(device >> 16), byte(device >> 8), byte(device),
	}
}

// UIDFromUint64 builds a UID from the low 48 bits of v.
func UIDFromUint64(v uint64) UID {
	var u UID
	for i := UIDSize - 1; i >= 0; i-- {
		u[i] = byte(v)
		v >>= 8
	}
	return u
}

// UIDFromBytes copies the first six bytes of b into a UID.
func UIDFromBytes(b []byte) (UID, error) {
	var u UID
	if len(b) < UIDSize {
		return u, fmt.Errorf("UID needs %d bytes, got %d", UIDSize, len(b))
	}
	copy(u[:], b)
	return u, nil
}

// ManufacturerBroadcast addresses every device of one manufacturer.
func ManufacturerBroadcast(manufacturer uint16) UID {
	return NewUID(manufacturer, 0xFFFFFFFF)
}

// ParseUID parses the "mmmm:dddddddd" hexadecimal form produced by String.
// A bare 12-digit hex string is accepted as well.
func ParseUID(s string) (UID, error) {
	s = strings.TrimSpace(s)
	var hex string
	if m, d, ok := strings.Cut(s, ":"); ok {
		if len(m) != 4 || len(d) != 8 {
			return UID{}, fmt.Errorf("invalid UID %q: want mmmm:dddddddd", s)
		}
		hex = m + d
	} else {
		if len(s) != 12 {
			return UID{}, fmt.Errorf("invalid UID %q: want 12 hex digits", s)
		}
		hex = s
	}
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return UID{}, fmt.Errorf("invalid UID %q: %w", s, err)
	}
	return UIDFromUint64(v), nil
}

// Uint64 returns the UID as an integer in the range [0, 2^48).
func (u UID) Uint64() uint64 {
	var v uint64
	for _, b := range u {
		v = v<<8 | uint64(b)
	}
	return v
}

// Manufacturer returns the 16-bit manufacturer ID.
func (u UID) Manufacturer() uint16 {
	return uint16(u[0])<<8 | uint16(u[1])
}

// Device returns the 32-bit device ID.
func (u UID) Device() uint32 {
	return uint32(u[2])<<24 | uint32(u[3])<<16 | uint32(u[4])<<8 | uint32(u[5])
}

// Compare returns -1, 0 or +1 ordering u against v as unsigned integers.
func (u UID) Compare(v UID) int {
	return bytes.Compare(u[:], v[:])
}

// Less reports whether u orders before v.
func (u UID) Less(v UID) bool {
	return u.Compare(v) < 0
}

// IsBroadcast reports whether u addresses all devices or all devices of a
// manufacturer.
func (u UID) IsBroadcast() bool {
	return u.Device() == 0xFFFFFFFF
}

// IsBroadcastAll reports whether u is the all-devices broadcast.
func (u UID) IsBroadcastAll() bool {
	return u == BroadcastAll
}

// Matches reports whether a packet addressed to dest should be accepted by a
// device with UID u.
func (u UID) Matches(dest UID) bool {
	if dest == u || dest.IsBroadcastAll() {
		return true
	}
	return dest.IsBroadcast() && dest.Manufacturer() == u.Manufacturer()
}

// String formats the UID as "mmmm:dddddddd".
func (u UID) String() string {
	return fmt.Sprintf("%04x:%08x", u.Manufacturer(), u.Device())
}

// MarshalText implements encoding.TextMarshaler.
func (u UID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UID) UnmarshalText(text []byte) error {
	v, err := ParseUID(string(text))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// Midpoint returns a UID strictly between lower and upper. It reports false
// when none exists, i.e. the bounds are equal, adjacent, or out of order.
func Midpoint(lower, upper UID) (UID, bool) {
	lo, hi := lower.Uint64(), upper.Uint64()
	if hi <= lo || hi-lo < 2 {
		return UID{}, false
	}
	return UIDFromUint64(lo + (hi-lo)/2), true
}

// Range is a closed interval of UIDs still to be searched.
type Range struct {
	Lower UID
	Upper UID
}

// FullRange covers the entire UID space.
var FullRange = Range{Lower: ZeroUID, Upper: BroadcastAll}

// ManufacturerRange covers every device ID of one manufacturer.
func ManufacturerRange(manufacturer uint16) Range {
	return Range{Lower: NewUID(manufacturer, 0), Upper: NewUID(manufacturer, 0xFFFFFFFF)}
}

// ParseRange parses "lower-upper" where both bounds use the ParseUID format.
func ParseRange(s string) (Range, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return Range{}, fmt.Errorf("invalid range %q: want lower-upper", s)
	}
	lower, err := ParseUID(lo)
	if err != nil {
		return Range{}, err
	}
	upper, err := ParseUID(hi)
	if err != nil {
		return Range{}, err
	}
	if upper.Less(lower) {
		return Range{}, fmt.Errorf("invalid range %q: upper bound below lower bound", s)
	}
	return Range{Lower: lower, Upper: upper}, nil
}

// Contains reports whether u lies within the range.
func (r Range) Contains(u UID) bool {
	return r.Lower.Compare(u) <= 0 && u.Compare(r.Upper) <= 0
}

// IsLeaf reports whether the range holds a single UID.
func (r Range) IsLeaf() bool {
	return r.Lower == r.Upper
}

// Split divides the range at its midpoint into [Lower, mid] and [mid, Upper].
// It reports false when the range cannot be divided further.
func (r Range) Split() (Range, Range, bool) {
	mid, ok := Midpoint(r.Lower, r.Upper)
	if !ok {
		return Range{}, Range{}, false
	}
	return Range{Lower: r.Lower, Upper: mid}, Range{Lower: mid, Upper: r.Upper}, true
}

// String formats the range as "lower-upper".
func (r Range) String() string {
	return r.Lower.String() + "-" + r.Upper.String()
}
