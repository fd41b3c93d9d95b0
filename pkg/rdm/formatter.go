// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")

	if p.IsDiscoveryResponse() {
		return fmt.Sprintf("[%s] DISC_UNIQUE_BRANCH response from %s\n", timestamp, p.Source)
	}

	result := fmt.Sprintf("[%s] %s %s %s -> %s tn=%d sub=%d pdl=%d\n",
		timestamp, FormatCommandClass(p.CommandClass), FormatPID(p.PID),
		p.Source, p.Destination, p.TransactionNumber, p.SubDevice, len(p.Data))

	if p.IsResponse() {
		result += fmt.Sprintf("  Response: %s, Queued: %d\n", FormatResponseType(p.ResponseType()), p.MessageCount)
	}
	if len(p.Data) > 0 {
		result += FormatParameterData(p)
	}

	return result
}

// FormatCommandClass returns the human-readable name for a command class
func FormatCommandClass(cc uint8) string {
	switch cc {
	case CommandDiscovery:
		return "DISCOVERY_COMMAND"
	case CommandDiscoveryResponse:
		return "DISCOVERY_COMMAND_RESPONSE"
	case CommandGet:
		return "GET_COMMAND"
	case CommandGetResponse:
		return "GET_COMMAND_RESPONSE"
	case CommandSet:
		return "SET_COMMAND"
	case CommandSetResponse:
		return "SET_COMMAND_RESPONSE"
	default:
		return fmt.Sprintf("COMMAND_CLASS(0x%02X)", cc)
	}
}

// FormatPID returns the human-readable name for a parameter ID
func FormatPID(pid uint16) string {
	switch pid {
	case PIDDiscUniqueBranch:
		return "DISC_UNIQUE_BRANCH"
	case PIDDiscMute:
		return "DISC_MUTE"
	case PIDDiscUnMute:
		return "DISC_UN_MUTE"
	case PIDSupportedParameters:
		return "SUPPORTED_PARAMETERS"
	case PIDDeviceInfo:
		return "DEVICE_INFO"
	case PIDManufacturerLabel:
		return "MANUFACTURER_LABEL"
	case PIDDeviceLabel:
		return "DEVICE_LABEL"
	case PIDSoftwareVersionLabel:
		return "SOFTWARE_VERSION_LABEL"
	case PIDDMXStartAddress:
		return "DMX_START_ADDRESS"
	case PIDIdentifyDevice:
		return "IDENTIFY_DEVICE"
	default:
		return fmt.Sprintf("PID(0x%04X)", pid)
	}
}

// FormatResponseType returns the human-readable name for a response type
func FormatResponseType(rt uint8) string {
	switch rt {
	case ResponseAck:
		return "ACK"
	case ResponseAckTimer:
		return "ACK_TIMER"
	case ResponseNackReason:
		return "NACK_REASON"
	case ResponseAckOverflow:
		return "ACK_OVERFLOW"
	default:
		return fmt.Sprintf("RESPONSE_TYPE(0x%02X)", rt)
	}
}

// FormatNackReason returns the human-readable name for a NACK reason code
func FormatNackReason(reason uint16) string {
	switch reason {
	case NackUnknownPID:
		return "UNKNOWN_PID"
	case NackFormatError:
		return "FORMAT_ERROR"
	case NackHardwareFault:
		return "HARDWARE_FAULT"
	case NackProxyReject:
		return "PROXY_REJECT"
	case NackWriteProtect:
		return "WRITE_PROTECT"
	case NackUnsupportedCommand:
		return "UNSUPPORTED_COMMAND_CLASS"
	case NackDataOutOfRange:
		return "DATA_OUT_OF_RANGE"
	case NackBufferFull:
		return "BUFFER_FULL"
	case NackPacketSizeUnsupported:
		return "PACKET_SIZE_UNSUPPORTED"
	case NackSubDeviceOutOfRange:
		return "SUB_DEVICE_OUT_OF_RANGE"
	default:
		return fmt.Sprintf("NACK(0x%04X)", reason)
	}
}

// FormatParameterData formats the parameter data based on PID
func FormatParameterData(p *Packet) string {
	data := p.Data

	if reason, ok := p.NackReason(); ok {
		return fmt.Sprintf("  Reason: %s\n", FormatNackReason(reason))
	}

	switch p.PID {
	case PIDDiscUniqueBranch:
		if r, ok := DiscoveryBounds(p); ok {
			return fmt.Sprintf("  Lower: %s, Upper: %s\n", r.Lower, r.Upper)
		}

	case PIDDiscMute, PIDDiscUnMute:
		if len(data) >= 2 {
			control := binary.BigEndian.Uint16(data)
			result := fmt.Sprintf("  Control: 0x%04X\n", control)
			if len(data) >= 8 {
				binding, _ := UIDFromBytes(data[2:])
				result += fmt.Sprintf("  Binding UID: %s\n", binding)
			}
			return result
		}

	case PIDDMXStartAddress:
		if len(data) >= 2 {
			return fmt.Sprintf("  Start Address: %d\n", binary.BigEndian.Uint16(data))
		}

	case PIDIdentifyDevice:
		if len(data) >= 1 {
			state := "Off"
			if data[0] != 0 {
				state = "On"
			}
			return fmt.Sprintf("  Identify: %s\n", state)
		}

	case PIDDeviceLabel, PIDManufacturerLabel, PIDSoftwareVersionLabel:
		return fmt.Sprintf("  Label: %q\n", string(data))

	case PIDDeviceInfo:
		if info, err := DecodeDeviceInfo(data); err == nil {
			return info.String()
		}

	case PIDSupportedParameters:
		if len(data)%2 == 0 {
			names := make([]string, 0, len(data)/2)
			for i := 0; i+1 < len(data); i += 2 {
				names = append(names, FormatPID(binary.BigEndian.Uint16(data[i:])))
			}
			return "  Parameters: " + strings.Join(names, ", ") + "\n"
		}
	}

	return FormatHex(data)
}

// FormatHex returns a hex dump of b, sixteen bytes per line.
func FormatHex(b []byte) string {
	result := "  Data: "
	for i, v := range b {
		if i > 0 && i%16 == 0 {
			result += "\n        "
		}
		result += fmt.Sprintf("%02X ", v)
	}
	return result + "\n"
}

// FormatTable formats a list of discovered UIDs, one per line.
func FormatTable(uids []UID) string {
	if len(uids) == 0 {
		return "No devices\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d device(s)\n", len(uids))
	for i, u := range uids {
		fmt.Fprintf(&b, "  %3d  %s\n", i+1, u)
	}
	return b.String()
}
