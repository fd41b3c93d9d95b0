// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// TaskMode is the handoff flag between the foreground and the handler.
type TaskMode uint32

const (
	TaskStopped    TaskMode = iota
	TaskReceive             // continuous receive
	TaskSend                // continuous send
	TaskSendRDM             // transaction queued or in flight
	TaskResumeSend          // transaction resolved, back to TaskSend after one frame
)

// String returns the mode name.
func (m TaskMode) String() string {
	switch m {
	case TaskStopped:
		return "stopped"
	case TaskReceive:
		return "receive"
	case TaskSend:
		return "send"
	case TaskSendRDM:
		return "send-rdm"
	case TaskResumeSend:
		return "resume-send"
	default:
		return "unknown"
	}
}

// Config holds the engine parameters. Timeouts count Port.Idle calls.
type Config struct {
	Slots         int
	ControllerUID rdm.UID
	PortID        uint8
	SubDevice     uint16

	// SendTimeout bounds the wait for the handler to put a request on the
	// wire, including the frame in progress.
	SendTimeout int
	// ResponseTimeout bounds line silence while waiting for a response.
	ResponseTimeout int
	// ResumeTimeout bounds the wait for the first full frame after a
	// transaction.
	ResumeTimeout int
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Slots:           MaxSlots,
		ControllerUID:   rdm.DefaultControllerUID,
		PortID:          1,
		SubDevice:       rdm.SubDeviceRoot,
		SendTimeout:     2048,
		ResponseTimeout: 64,
		ResumeTimeout:   2048,
	}
}

// Engine runs DMX output or input on a Port and carries RDM transactions.
//
// Slot accessors, transactions and Poll must be called from one goroutine,
// the one that drives Port.Idle; the handler runs on that goroutine too.
type Engine struct {
	port   Port
	pin    Pin
	cfg    Config
	logger *slog.Logger

	mode      atomic.Uint32
	txnSent   atomic.Bool
	rxDone    atomic.Bool
	inHandler atomic.Bool

	// continuous output
	frame      [MaxFrame]byte
	slots      int
	sendState  int
	slotIndex  int
	frameDone  bool
	resumeOpen bool
	framesSent atomic.Uint64

	// transaction, outbound
	txBuf       [rdm.MaxPacketSize]byte
	txLen       int
	txIndex     int
	expectReply bool
	discovery   bool
	transaction uint8

	// transaction, inbound
	rspBuf      [rdm.MaxPacketSize]byte
	rspLen      int
	rspBreak    bool
	rspActivity atomic.Uint32

	// continuous input
	readState    int
	rxFrame      [MaxFrame]byte
	rxIndex      int
	rxRDM        bool
	rxComplete   int // bytes in the last complete frame
	rdmIn        [rdm.MaxPacketSize]byte
	rdmLen       int
	dataCallback func(n int)
	rdmCallback  func(n int)

	stats *rdm.Statistics
}

// New creates an engine and attaches it as the port's handler. A nil logger
// discards log output.
func New(port Port, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{
		port:   port,
		cfg:    cfg,
		logger: logger,
		stats:  rdm.NewStatistics(),
	}
	e.frame[0] = rdm.StartCodeDMX
	e.SetMaxSlots(cfg.Slots)
	port.Attach(e)
	return e
}

// Mode returns the current task mode.
func (e *Engine) Mode() TaskMode {
	return TaskMode(e.mode.Load())
}

// FramesSent returns the number of complete frames transmitted.
func (e *Engine) FramesSent() uint64 {
	return e.framesSent.Load()
}

// Statistics returns the transaction statistics.
func (e *Engine) Statistics() *rdm.Statistics {
	return e.stats
}

// ControllerUID returns the source UID used for requests.
func (e *Engine) ControllerUID() rdm.UID {
	return e.cfg.ControllerUID
}

// SetDirectionPin sets the transceiver direction pin. A nil pin is allowed
// for transmit-only or receive-only wiring.
func (e *Engine) SetDirectionPin(pin Pin) {
	e.pin = pin
}

func (e *Engine) setDirection(output bool) {
	if e.pin != nil {
		e.pin.Set(output)
	}
}

// StartOutput begins continuous transmission.
func (e *Engine) StartOutput() {
	e.port.SetInterrupts(InterruptNone)
	e.setDirection(true)
	e.sendState = stateBreak
	e.frameDone = false
	e.resumeOpen = false
	e.mode.Store(uint32(TaskSend))
	e.port.SetInterrupts(InterruptTransmitComplete)
	e.logger.Debug("output started", "slots", e.slots)
}

// StartInput begins continuous reception.
func (e *Engine) StartInput() {
	e.port.SetInterrupts(InterruptNone)
	e.setDirection(false)
	e.readState = readIdle
	e.rxIndex = 0
	e.mode.Store(uint32(TaskReceive))
	if err := e.port.SetBaud(DataBaud); err != nil {
		e.logger.Warn("set baud failed", "error", err)
	}
	e.port.SetInterrupts(InterruptReceive | InterruptBreak)
	e.logger.Debug("input started")
}

// StartRDM begins continuous transmission with a direction pin, which is
// required for transactions that expect a response.
func (e *Engine) StartRDM(pin Pin) {
	e.SetDirectionPin(pin)
	e.StartOutput()
}

// Stop disables all interrupts and leaves the line idle.
func (e *Engine) Stop() {
	e.port.SetInterrupts(InterruptNone)
	e.mode.Store(uint32(TaskStopped))
	e.setDirection(false)
	e.logger.Debug("engine stopped")
}

// Poll lets the port run for one byte time.
func (e *Engine) Poll() {
	e.port.Idle()
}

// Run polls the port until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			e.port.Idle()
		}
	}
}

// SetMaxSlots sets the number of slots per frame, clamped to
// [MinSlots, MaxSlots].
func (e *Engine) SetMaxSlots(n int) {
	switch {
	case n < MinSlots:
		n = MinSlots
	case n > MaxSlots:
		n = MaxSlots
	}
	e.slots = n
}

// MaxSlots returns the number of slots per frame.
func (e *Engine) MaxSlots() int {
	return e.slots
}

// Slot returns the outgoing value of slot n, or 0 if n is out of range.
func (e *Engine) Slot(n int) uint8 {
	if n < 1 || n > e.slots {
		return 0
	}
	return e.frame[n]
}

// SetSlot sets the outgoing value of slot n. It reports false and writes
// nothing if n is outside [1, MaxSlots()].
func (e *Engine) SetSlot(n int, v uint8) bool {
	if n < 1 || n > e.slots {
		return false
	}
	e.frame[n] = v
	return true
}

// ReceivedSlot returns slot n of the last received frame, or 0 if the frame
// was shorter.
func (e *Engine) ReceivedSlot(n int) uint8 {
	if n < 1 || n >= e.rxComplete {
		return 0
	}
	return e.rxFrame[n]
}

// ReceivedData returns a copy of the last received frame including its start
// code.
func (e *Engine) ReceivedData() []byte {
	return append([]byte(nil), e.rxFrame[:e.rxComplete]...)
}

// ReceivedRDM returns a copy of the last RDM packet received in input mode.
func (e *Engine) ReceivedRDM() []byte {
	return append([]byte(nil), e.rdmIn[:e.rdmLen]...)
}

// SetDataReceivedCallback registers fn to run in handler context after each
// complete frame with the number of slots received.
func (e *Engine) SetDataReceivedCallback(fn func(n int)) {
	e.dataCallback = fn
}

// SetRDMReceivedCallback registers fn to run in handler context after each
// RDM packet received in input mode with its length in bytes.
func (e *Engine) SetRDMReceivedCallback(fn func(n int)) {
	e.rdmCallback = fn
}
