// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package uart models the register level of a serial peripheral for ports
// that are not backed by hardware interrupts. One Tick is one byte time:
// the data register shifts out, at most one transmit interrupt fires, and at
// most one receive event is delivered.
package uart

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/rdmctl/pkg/dmx"
)

// ErrOverrun is returned when a byte is written while the data register is
// still full.
var ErrOverrun = errors.New("data register full")

// Line is the wire side of the peripheral.
type Line interface {
	// Transmit puts one byte on the wire at the given rate.
	Transmit(b byte, baud int)
	// Receive returns the next receive event, if any.
	Receive() (Event, bool)
}

// Event is one received byte or a break.
type Event struct {
	Break bool
	Data  byte
}

// Core holds the peripheral registers. It implements every dmx.Port method
// except Idle, which the embedding type provides by calling Tick.
type Core struct {
	handler dmx.Handler
	mask    dmx.Interrupt
	baud    int

	pending     bool
	pendingByte byte
	pendingBaud int
}

// Attach implements dmx.Port.
func (c *Core) Attach(h dmx.Handler) {
	c.handler = h
}

// SetBaud implements dmx.Port.
func (c *Core) SetBaud(baud int) error {
	switch baud {
	case dmx.DataBaud, dmx.BreakBaud:
		c.baud = baud
		return nil
	default:
		return fmt.Errorf("unsupported baud rate %d", baud)
	}
}

// Baud returns the current rate.
func (c *Core) Baud() int {
	return c.baud
}

// WriteByte implements dmx.Port. The byte keeps the rate that was set when
// it was written.
func (c *Core) WriteByte(b byte) error {
	if c.pending {
		return ErrOverrun
	}
	c.pending = true
	c.pendingByte = b
	c.pendingBaud = c.baud
	return nil
}

// SetInterrupts implements dmx.Port.
func (c *Core) SetInterrupts(mask dmx.Interrupt) {
	c.mask = mask
}

// Interrupts returns the enabled interrupt mask.
func (c *Core) Interrupts() dmx.Interrupt {
	return c.mask
}

// Tick runs one byte time against line.
func (c *Core) Tick(line Line) {
	if c.pending {
		c.pending = false
		line.Transmit(c.pendingByte, c.pendingBaud)
	}
	if c.handler == nil {
		return
	}

	switch {
	case c.mask&dmx.InterruptDataRegisterEmpty != 0:
		c.handler.DataRegisterEmpty()
	case c.mask&dmx.InterruptTransmitComplete != 0:
		c.handler.TransmissionComplete()
	}

	if c.mask&(dmx.InterruptReceive|dmx.InterruptBreak) == 0 {
		return
	}
	ev, ok := line.Receive()
	if !ok {
		return
	}
	switch {
	case ev.Break && c.mask&dmx.InterruptBreak != 0:
		c.handler.BreakReceived()
	case !ev.Break && c.mask&dmx.InterruptReceive != 0:
		c.handler.ByteReceived(ev.Data)
	}
}
