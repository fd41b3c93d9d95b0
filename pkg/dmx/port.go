// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dmx drives a half-duplex DMX512 line: it transmits or receives
// continuous frames and interleaves RDM request/response transactions on the
// same wire.
//
// The engine is written as an interrupt handler plus a foreground API. A Port
// calls the Handler methods from its Idle method, so all handler code runs on
// the goroutine that waits. Every bounded wait in the engine counts Idle
// calls, which makes timeouts a number of byte times.
package dmx

// Line timing
const (
	DataBaud  = 250000
	BreakBaud = 90000 // a zero byte at this rate is a valid break plus mark after break
)

// Frame limits. MinSlots keeps the break-to-break time above the minimum.
const (
	MinSlots = 24
	MaxSlots = 512
	MaxFrame = MaxSlots + 1
)

// Interrupt selects the peripheral events delivered to the Handler.
type Interrupt uint8

const (
	InterruptDataRegisterEmpty Interrupt = 1 << iota
	InterruptTransmitComplete
	InterruptReceive
	InterruptBreak

	InterruptNone Interrupt = 0
)

// Handler receives peripheral events. Implementations run in interrupt
// context and must not block.
type Handler interface {
	// DataRegisterEmpty fires when another byte can be written.
	DataRegisterEmpty()
	// TransmissionComplete fires when the last written byte has left the line.
	TransmissionComplete()
	// ByteReceived delivers one received byte.
	ByteReceived(b byte)
	// BreakReceived signals a break on the line.
	BreakReceived()
}

// Port is the serial peripheral seen by the engine.
type Port interface {
	// Attach installs the interrupt handler.
	Attach(h Handler)
	// SetBaud changes the line rate for subsequently written bytes.
	SetBaud(baud int) error
	// WriteByte loads the data register.
	WriteByte(b byte) error
	// SetInterrupts enables exactly the events in mask.
	SetInterrupts(mask Interrupt)
	// Idle waits about one byte time while pending interrupts run.
	Idle()
}

// Pin drives the transceiver direction: high transmits, low receives.
type Pin interface {
	Set(high bool)
}
