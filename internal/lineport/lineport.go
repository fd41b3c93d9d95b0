// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lineport implements dmx.Port on top of a byte connection, such as
// a USB serial adapter or a WebSocket bridge. Interrupts are dispatched from
// Idle, which also paces the engine to the DMX byte time.
package lineport

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/rdmctl/internal/uart"
	"github.com/Thermoquad/rdmctl/pkg/dmx"
)

// Conn is a connection to the line.
type Conn interface {
	io.ReadWriteCloser
	// Break holds the line low for d.
	Break(d time.Duration) error
}

// EventReader is implemented by connections that report received breaks
// in-band. Connections without it get breaks inferred from line silence.
type EventReader interface {
	ReadEvent() (uart.Event, error)
}

// Config holds the line timing.
type Config struct {
	// ByteTime is the duration of one Idle. Zero disables pacing.
	ByteTime time.Duration
	// BreakTime is how long a break holds the line.
	BreakTime time.Duration
	// GapTimeout is the silence after which the next byte is taken to
	// follow a break.
	GapTimeout time.Duration
	// RxBuffer is the number of receive events buffered between the reader
	// and Idle.
	RxBuffer int
}

// DefaultConfig returns DMX512 timing: 44 µs per slot and a 176 µs break.
func DefaultConfig() Config {
	return Config{
		ByteTime:   44 * time.Microsecond,
		BreakTime:  176 * time.Microsecond,
		GapTimeout: time.Millisecond,
		RxBuffer:   2 * dmx.MaxFrame,
	}
}

const flushSize = 256

// Port drives a Conn as a dmx.Port.
type Port struct {
	uart.Core

	conn   Conn
	cfg    Config
	logger *slog.Logger

	tx   []byte
	next time.Time

	rx      chan uart.Event
	dropped atomic.Uint64
	done    chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
}

// New creates a port and starts reading from conn. A nil logger discards
// log output.
func New(conn Conn, cfg Config, logger *slog.Logger) *Port {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.RxBuffer <= 0 {
		cfg.RxBuffer = DefaultConfig().RxBuffer
	}
	p := &Port{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		tx:     make([]byte, 0, flushSize),
		rx:     make(chan uart.Event, cfg.RxBuffer),
		done:   make(chan struct{}),
	}
	go p.readLoop()
	return p
}

// Idle implements dmx.Port. It waits out the rest of the byte time, then
// runs the peripheral for one byte.
func (p *Port) Idle() {
	if p.cfg.ByteTime > 0 {
		now := time.Now()
		if p.next.After(now) {
			time.Sleep(p.next.Sub(now))
		} else {
			p.next = now
		}
		p.next = p.next.Add(p.cfg.ByteTime)
	}

	p.Core.Tick(p)

	mask := p.Interrupts()
	if mask&(dmx.InterruptDataRegisterEmpty|dmx.InterruptTransmitComplete) == 0 || len(p.tx) >= flushSize {
		p.flush()
	}
	if mask&(dmx.InterruptReceive|dmx.InterruptBreak) == 0 {
		p.discard()
	}
}

// Transmit implements uart.Line. Data bytes are buffered until the line is
// turned around, a break is due, or the buffer fills.
func (p *Port) Transmit(b byte, baud int) {
	if baud == dmx.BreakBaud {
		p.flush()
		if err := p.conn.Break(p.cfg.BreakTime); err != nil {
			p.fail(err)
		}
		return
	}
	p.tx = append(p.tx, b)
}

// Receive implements uart.Line.
func (p *Port) Receive() (uart.Event, bool) {
	select {
	case ev := <-p.rx:
		return ev, true
	default:
		return uart.Event{}, false
	}
}

func (p *Port) flush() {
	if len(p.tx) == 0 {
		return
	}
	if _, err := p.conn.Write(p.tx); err != nil {
		p.fail(err)
	}
	p.tx = p.tx[:0]
}

// discard drops events that arrived while nothing was listening.
func (p *Port) discard() {
	for {
		select {
		case <-p.rx:
		default:
			return
		}
	}
}

func (p *Port) readLoop() {
	if er, ok := p.conn.(EventReader); ok {
		for {
			ev, err := er.ReadEvent()
			if err != nil {
				p.fail(err)
				return
			}
			p.deliver(ev)
		}
	}

	buf := make([]byte, dmx.MaxFrame)
	last := time.Now()
	for {
		n, err := p.conn.Read(buf)
		if err != nil {
			p.fail(err)
			return
		}
		if n == 0 {
			continue
		}
		now := time.Now()
		data := buf[:n]
		if now.Sub(last) >= p.cfg.GapTimeout {
			p.deliver(uart.Event{Break: true})
			// A break reads as a single zero byte with a framing error.
			if data[0] == 0 && n > 1 {
				data = data[1:]
			}
		}
		last = now
		for _, b := range data {
			p.deliver(uart.Event{Data: b})
		}
	}
}

func (p *Port) deliver(ev uart.Event) {
	select {
	case p.rx <- ev:
	case <-p.done:
	default:
		p.dropped.Add(1)
	}
}

func (p *Port) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	p.err = err
	p.logger.Error("line connection failed", "error", err)
}

// Err returns the first connection error, if any.
func (p *Port) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Dropped returns the number of receive events lost to a full buffer.
func (p *Port) Dropped() uint64 {
	return p.dropped.Load()
}

// ErrClosed is returned by Close on a port that was already closed.
var ErrClosed = errors.New("port closed")

// Close stops the reader and closes the connection.
func (p *Port) Close() error {
	err := ErrClosed
	p.once.Do(func() {
		close(p.done)
		p.flush()
		err = p.conn.Close()
	})
	return err
}
