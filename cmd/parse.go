// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// knownPIDs are the parameters accepted by name on the command line.
var knownPIDs = []uint16{
	rdm.PIDDiscUniqueBranch,
	rdm.PIDDiscMute,
	rdm.PIDDiscUnMute,
	rdm.PIDSupportedParameters,
	rdm.PIDDeviceInfo,
	rdm.PIDManufacturerLabel,
	rdm.PIDDeviceLabel,
	rdm.PIDSoftwareVersionLabel,
	rdm.PIDDMXStartAddress,
	rdm.PIDIdentifyDevice,
}

// parsePID accepts a number (0x00F0, 240) or a parameter name
// (DMX_START_ADDRESS, case-insensitive).
func parsePID(s string) (uint16, error) {
	if v, err := strconv.ParseUint(s, 0, 16); err == nil {
		return uint16(v), nil
	}
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, pid := range knownPIDs {
		if rdm.FormatPID(pid) == name {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("unknown parameter %q", s)
}

// parseHexData parses parameter data such as "00f0", "00 f0" or "00:f0".
func parseHexData(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "0x", "").Replace(s)
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid parameter data %q: %w", s, err)
	}
	if len(data) > rdm.MaxPDL {
		return nil, fmt.Errorf("parameter data too long: %d bytes (max %d)", len(data), rdm.MaxPDL)
	}
	return data, nil
}

// slotAssignment is one SLOT=VALUE or FIRST-LAST=VALUE argument.
type slotAssignment struct {
	first, last int
	value       uint8
}

func parseSlotAssignment(s string) (slotAssignment, error) {
	slots, value, ok := strings.Cut(s, "=")
	if !ok {
		return slotAssignment{}, fmt.Errorf("invalid slot assignment %q (want SLOT=VALUE)", s)
	}

	v, err := strconv.ParseUint(strings.TrimSpace(value), 0, 8)
	if err != nil {
		return slotAssignment{}, fmt.Errorf("invalid slot value %q: %w", value, err)
	}

	firstStr, lastStr, isRange := strings.Cut(slots, "-")
	first, err := strconv.Atoi(strings.TrimSpace(firstStr))
	if err != nil {
		return slotAssignment{}, fmt.Errorf("invalid slot %q", firstStr)
	}
	last := first
	if isRange {
		last, err = strconv.Atoi(strings.TrimSpace(lastStr))
		if err != nil {
			return slotAssignment{}, fmt.Errorf("invalid slot %q", lastStr)
		}
	}
	if first < 1 || last > rdm.MaxSlots || first > last {
		return slotAssignment{}, fmt.Errorf("slot range %d-%d outside 1-%d", first, last, rdm.MaxSlots)
	}
	return slotAssignment{first: first, last: last, value: uint8(v)}, nil
}

// slotSetter is the part of the engine that takes slot values.
type slotSetter interface {
	SetSlot(n int, v uint8) bool
}

// apply writes the assignment and reports the slots the frame could not hold.
func (a slotAssignment) apply(e slotSetter) int {
	rejected := 0
	for n := a.first; n <= a.last; n++ {
		if !e.SetSlot(n, a.value) {
			rejected++
		}
	}
	return rejected
}
