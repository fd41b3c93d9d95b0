// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package busim simulates a DMX line with RDM responders. Bus implements
// dmx.Port and hands out a dmx.Pin, so the transport engine runs against it
// unchanged. Every Idle is one byte time; interrupts are dispatched from
// Idle on the calling goroutine, which makes every interleaving of handler
// and foreground deterministic.
package busim

import (
	"math/rand"

	"github.com/Thermoquad/rdmctl/internal/uart"
	"github.com/Thermoquad/rdmctl/pkg/dmx"
	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// TurnaroundTicks is the number of byte times a responder waits after the
// end of a request before it answers.
const TurnaroundTicks = 4

type rxEntry struct {
	ev  uart.Event
	gap bool
}

// Bus is a simulated half-duplex line.
type Bus struct {
	uart.Core

	output    bool // direction pin: controller drives the line
	delivered bool

	devices []*Device
	decoder *rdm.Decoder
	rx      []rxEntry

	frame     []byte
	lastFrame []byte
	frames    int
	packets   []*rdm.Packet
	errors    int
	ticks     uint64
}

// New creates a bus with the given responders.
func New(devices ...*Device) *Bus {
	return &Bus{
		devices: devices,
		decoder: rdm.NewDecoder(),
		frame:   make([]byte, 0, dmx.MaxFrame),
	}
}

// NewRandom creates a bus with n responders with distinct random UIDs. Some
// of them use the manufacturer ID searched by the default seeds.
func NewRandom(n int, seed int64) *Bus {
	rng := rand.New(rand.NewSource(seed))
	seen := make(map[rdm.UID]bool, n)
	devices := make([]*Device, 0, n)
	for len(devices) < n {
		manufacturer := uint16(rng.Intn(0x7FFF) + 1)
		if rng.Intn(3) == 0 {
			manufacturer = 0x6574
		}
		uid := rdm.NewUID(manufacturer, rng.Uint32()&0xFFFFFFFE)
		if seen[uid] {
			continue
		}
		seen[uid] = true
		devices = append(devices, NewDevice(uid, WithStartAddress(uint16(rng.Intn(rdm.MaxSlots)+1))))
	}
	return New(devices...)
}

// AddDevice connects another responder.
func (b *Bus) AddDevice(d *Device) {
	b.devices = append(b.devices, d)
}

// Devices returns the responders on the bus.
func (b *Bus) Devices() []*Device {
	return b.devices
}

// Device returns the responder with the given UID.
func (b *Bus) Device(uid rdm.UID) (*Device, bool) {
	for _, d := range b.devices {
		if d.uid == uid {
			return d, true
		}
	}
	return nil, false
}

// DirectionPin returns the transceiver direction pin of the controller.
func (b *Bus) DirectionPin() dmx.Pin {
	return pin{b}
}

type pin struct{ b *Bus }

func (p pin) Set(high bool) { p.b.output = high }

// Output reports whether the controller drives the line.
func (b *Bus) Output() bool {
	return b.output
}

// Idle implements dmx.Port. Receive events that the controller does not
// pick up during their byte time are lost.
func (b *Bus) Idle() {
	b.ticks++
	b.delivered = false
	b.Core.Tick(b)
	if !b.delivered && len(b.rx) > 0 {
		b.rx = b.rx[1:]
	}
}

// Ticks returns the number of byte times elapsed.
func (b *Bus) Ticks() uint64 {
	return b.ticks
}

// Transmit implements uart.Line for the controller side.
func (b *Bus) Transmit(c byte, baud int) {
	if baud == dmx.BreakBaud {
		if c == 0 {
			b.lineBreak()
		}
		return
	}

	if len(b.frame) < dmx.MaxFrame {
		b.frame = append(b.frame, c)
	}
	p, err := b.decoder.DecodeByte(c)
	if err != nil {
		b.errors++
		return
	}
	if p != nil {
		b.packets = append(b.packets, p)
		b.dispatch(p)
	}
}

// Receive implements uart.Line for the controller side.
func (b *Bus) Receive() (uart.Event, bool) {
	if len(b.rx) == 0 {
		return uart.Event{}, false
	}
	e := b.rx[0]
	b.rx = b.rx[1:]
	b.delivered = true
	if e.gap || b.output {
		return uart.Event{}, false
	}
	return e.ev, true
}

func (b *Bus) lineBreak() {
	if len(b.frame) > 0 && b.frame[0] == rdm.StartCodeDMX {
		b.frames++
		b.lastFrame = append(b.lastFrame[:0], b.frame...)
	}
	b.frame = b.frame[:0]
	if err := b.decoder.Break(); err != nil {
		b.errors++
	}
}

// dispatch delivers a request to every responder and queues the replies.
// Overlapping discovery responses are ORed, which is how a collision looks
// to the receiver.
func (b *Bus) dispatch(p *rdm.Packet) {
	var reply []byte
	var discovery bool
	for _, d := range b.devices {
		resp, disc := d.handle(p)
		if resp == nil {
			continue
		}
		discovery = disc
		if reply == nil {
			reply = resp
			continue
		}
		reply = merge(reply, resp)
	}
	if reply == nil {
		return
	}

	for i := 0; i < TurnaroundTicks; i++ {
		b.rx = append(b.rx, rxEntry{gap: true})
	}
	if !discovery {
		b.rx = append(b.rx, rxEntry{ev: uart.Event{Break: true}})
	}
	for _, c := range reply {
		b.rx = append(b.rx, rxEntry{ev: uart.Event{Data: c}})
	}
}

func merge(a, c []byte) []byte {
	if len(c) > len(a) {
		a, c = c, a
	}
	out := append([]byte(nil), a...)
	for i := range c {
		out[i] |= c[i]
	}
	return out
}

// QueueFrame puts a break followed by data on the line towards the
// controller, as another transmitter would.
func (b *Bus) QueueFrame(data []byte) {
	b.rx = append(b.rx, rxEntry{ev: uart.Event{Break: true}})
	for _, c := range data {
		b.rx = append(b.rx, rxEntry{ev: uart.Event{Data: c}})
	}
}

// Pending returns the number of queued receive events.
func (b *Bus) Pending() int {
	return len(b.rx)
}

// Frames returns the number of complete DMX frames the controller sent.
func (b *Bus) Frames() int {
	return b.frames
}

// LastFrame returns the last complete DMX frame including its start code.
func (b *Bus) LastFrame() []byte {
	return append([]byte(nil), b.lastFrame...)
}

// Packets returns every RDM request the controller sent.
func (b *Bus) Packets() []*rdm.Packet {
	return append([]*rdm.Packet(nil), b.packets...)
}

// Errors returns the number of malformed controller packets seen.
func (b *Bus) Errors() int {
	return b.errors
}

// ResetTrace clears the recorded packets and counters.
func (b *Bus) ResetTrace() {
	b.packets = nil
	b.frames = 0
	b.errors = 0
}
