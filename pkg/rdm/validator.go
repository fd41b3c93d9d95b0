// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import (
	"encoding/binary"
	"fmt"
)

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyLength AnomalyType = iota
	AnomalyStartCode
	AnomalyChecksum
	AnomalyDestination
	AnomalySource
	AnomalyTransaction
	AnomalyCommandClass
	AnomalyPID
	AnomalyResponseType
	AnomalyValue
)

// String returns a short name for the anomaly type.
func (t AnomalyType) String() string {
	switch t {
	case AnomalyLength:
		return "length"
	case AnomalyStartCode:
		return "start code"
	case AnomalyChecksum:
		return "checksum"
	case AnomalyDestination:
		return "destination"
	case AnomalySource:
		return "source"
	case AnomalyTransaction:
		return "transaction"
	case AnomalyCommandClass:
		return "command class"
	case AnomalyPID:
		return "pid"
	case AnomalyResponseType:
		return "response type"
	case AnomalyValue:
		return "value"
	default:
		return fmt.Sprintf("anomaly(%d)", int(t))
	}
}

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Unwrap returns ErrMalformed so that errors.Is(err, ErrNoReply) holds for
// every validation failure.
func (v *ValidationError) Unwrap() error {
	return ErrMalformed
}

func newValidationError(t AnomalyType, msg string, details map[string]interface{}) *ValidationError {
	return &ValidationError{Type: t, Message: msg, Details: details}
}

// ValidateResponse checks that resp answers req sent by controller. A
// well-formed NACK is returned as *NackError; any mismatch as
// *ValidationError.
func ValidateResponse(req, resp *Packet, controller UID) error {
	if resp.Destination != controller {
		return newValidationError(AnomalyDestination,
			fmt.Sprintf("response addressed to %s, not %s", resp.Destination, controller),
			map[string]interface{}{"destination": resp.Destination.String(), "controller": controller.String()})
	}
	if !req.Destination.IsBroadcast() && resp.Source != req.Destination {
		return newValidationError(AnomalySource,
			fmt.Sprintf("response from %s, request sent to %s", resp.Source, req.Destination),
			map[string]interface{}{"source": resp.Source.String(), "destination": req.Destination.String()})
	}
	if resp.TransactionNumber != req.TransactionNumber {
		return newValidationError(AnomalyTransaction,
			fmt.Sprintf("transaction number mismatch: sent %d, received %d", req.TransactionNumber, resp.TransactionNumber),
			map[string]interface{}{"sent": req.TransactionNumber, "received": resp.TransactionNumber})
	}
	if resp.CommandClass != req.CommandClass+1 {
		return newValidationError(AnomalyCommandClass,
			fmt.Sprintf("unexpected command class %s for %s", FormatCommandClass(resp.CommandClass), FormatCommandClass(req.CommandClass)),
			map[string]interface{}{"sent": req.CommandClass, "received": resp.CommandClass})
	}
	if resp.PID != req.PID {
		return newValidationError(AnomalyPID,
			fmt.Sprintf("PID mismatch: sent %s, received %s", FormatPID(req.PID), FormatPID(resp.PID)),
			map[string]interface{}{"sent": req.PID, "received": resp.PID})
	}

	switch resp.ResponseType() {
	case ResponseAck, ResponseAckTimer, ResponseAckOverflow:
		return nil
	case ResponseNackReason:
		reason, ok := resp.NackReason()
		if !ok {
			return newValidationError(AnomalyLength, "NACK response without reason code",
				map[string]interface{}{"pdl": len(resp.Data)})
		}
		return &NackError{PID: resp.PID, Reason: reason}
	default:
		return newValidationError(AnomalyResponseType,
			fmt.Sprintf("unknown response type 0x%02X", resp.ResponseType()),
			map[string]interface{}{"response_type": resp.ResponseType()})
	}
}

// ValidatePacket checks parameter data of a decoded packet against the sizes
// and ranges defined for the PIDs this package knows about. Returns a slice of
// validation errors (empty if packet is valid)
func ValidatePacket(p *Packet) []ValidationError {
	errors := []ValidationError{}

	if p.IsResponse() && p.ResponseType() != ResponseAck {
		return errors
	}

	switch p.PID {
	case PIDDiscUniqueBranch:
		if p.CommandClass == CommandDiscovery {
			errors = append(errors, expectLength(p, 2*UIDSize)...)
		}
	case PIDDiscMute, PIDDiscUnMute:
		if p.CommandClass == CommandDiscoveryResponse && len(p.Data) != 0 && len(p.Data) != 2 && len(p.Data) != 8 {
			errors = append(errors, ValidationError{
				Type:    AnomalyLength,
				Message: fmt.Sprintf("%s: control field length %d (expected 0, 2 or 8)", FormatPID(p.PID), len(p.Data)),
				Details: map[string]interface{}{"pdl": len(p.Data)},
			})
		}
	case PIDDeviceInfo:
		if p.CommandClass == CommandGetResponse {
			errors = append(errors, expectLength(p, DeviceInfoSize)...)
		}
	case PIDIdentifyDevice:
		if p.CommandClass == CommandSet || p.CommandClass == CommandGetResponse {
			errs := expectLength(p, 1)
			if len(errs) == 0 && p.Data[0] > 1 {
				errs = append(errs, ValidationError{
					Type:    AnomalyValue,
					Message: fmt.Sprintf("Invalid identify state %d (valid: 0-1)", p.Data[0]),
					Details: map[string]interface{}{"value": p.Data[0], "min": 0, "max": 1},
				})
			}
			errors = append(errors, errs...)
		}
	case PIDDMXStartAddress:
		if p.CommandClass == CommandSet || p.CommandClass == CommandGetResponse {
			errs := expectLength(p, 2)
			if len(errs) == 0 {
				addr := binary.BigEndian.Uint16(p.Data)
				if (addr < 1 || addr > MaxSlots) && addr != 0xFFFF {
					errs = append(errs, ValidationError{
						Type:    AnomalyValue,
						Message: fmt.Sprintf("Invalid DMX start address %d (valid: 1-%d)", addr, MaxSlots),
						Details: map[string]interface{}{"value": addr, "min": 1, "max": MaxSlots},
					})
				}
			}
			errors = append(errors, errs...)
		}
	case PIDDeviceLabel:
		if len(p.Data) > MaxLabelLength {
			errors = append(errors, ValidationError{
				Type:    AnomalyLength,
				Message: fmt.Sprintf("Device label too long (%d bytes, max %d)", len(p.Data), MaxLabelLength),
				Details: map[string]interface{}{"length": len(p.Data), "max": MaxLabelLength},
			})
		}
	}

	return errors
}

func expectLength(p *Packet, n int) []ValidationError {
	if len(p.Data) == n {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyLength,
		Message: fmt.Sprintf("%s payload length mismatch (%d bytes, expected %d)", FormatPID(p.PID), len(p.Data), n),
		Details: map[string]interface{}{"length": len(p.Data), "expected": n},
	}}
}
