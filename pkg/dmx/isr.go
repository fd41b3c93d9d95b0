// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import "github.com/Thermoquad/rdmctl/pkg/rdm"

// Output states
const (
	stateBreak = iota
	stateStart
	stateData
	stateRDMStart
	stateRDMData
	stateRDMDone
	stateRDMListen
)

// Input states
const (
	readIdle = iota
	readStart
	readReceiving
)

// The methods below implement Handler. They run in interrupt context: no
// logging and no blocking.

// TransmissionComplete advances the output state machine after a break, the
// last slot of a frame, or the last byte of a request.
func (e *Engine) TransmissionComplete() {
	switch e.sendState {
	case stateBreak:
		e.frameBoundary()
		if e.Mode() == TaskSendRDM && !e.txnSent.Load() {
			e.sendBreak(stateRDMStart)
			return
		}
		e.sendBreak(stateStart)

	case stateStart:
		_ = e.port.SetBaud(DataBaud)
		_ = e.port.WriteByte(e.frame[0])
		e.slotIndex = 1
		e.sendState = stateData
		e.port.SetInterrupts(InterruptDataRegisterEmpty)

	case stateRDMStart:
		_ = e.port.SetBaud(DataBaud)
		_ = e.port.WriteByte(e.txBuf[0])
		e.txIndex = 1
		e.sendState = stateRDMData
		e.port.SetInterrupts(InterruptDataRegisterEmpty)

	case stateRDMDone:
		e.txnSent.Store(true)
		if e.expectReply && e.Mode() == TaskSendRDM {
			e.listen()
			return
		}
		// Nothing to wait for, or the foreground already gave up.
		e.mode.CompareAndSwap(uint32(TaskSendRDM), uint32(TaskResumeSend))
		e.sendState = stateBreak
	}
}

// DataRegisterEmpty writes the next slot or request byte.
func (e *Engine) DataRegisterEmpty() {
	switch e.sendState {
	case stateData:
		_ = e.port.WriteByte(e.frame[e.slotIndex])
		e.slotIndex++
		if e.slotIndex > e.slots {
			e.frameDone = true
			e.sendState = stateBreak
			e.port.SetInterrupts(InterruptTransmitComplete)
		}

	case stateRDMData:
		_ = e.port.WriteByte(e.txBuf[e.txIndex])
		e.txIndex++
		if e.txIndex >= e.txLen {
			e.sendState = stateRDMDone
			e.port.SetInterrupts(InterruptTransmitComplete)
		}
	}
}

// ByteReceived stores a byte of a transaction response or of an incoming
// frame.
func (e *Engine) ByteReceived(b byte) {
	switch {
	case e.sendState == stateRDMListen && e.Mode() == TaskSendRDM:
		e.responseByte(b)
	case e.Mode() == TaskReceive:
		e.inputByte(b)
	}
}

// BreakReceived starts a response packet or delimits an incoming frame.
func (e *Engine) BreakReceived() {
	switch {
	case e.sendState == stateRDMListen && e.Mode() == TaskSendRDM:
		e.rspActivity.Add(1)
		if e.discovery {
			return
		}
		if e.rspLen > 0 {
			e.completeResponse()
			return
		}
		e.rspBreak = true
	case e.Mode() == TaskReceive:
		if e.readState == readReceiving {
			e.completeFrame()
		}
		e.readState = readStart
	}
}

// frameBoundary runs when the line is idle after a break-delimited unit. It
// counts finished frames and ends the resume phase after one full frame.
func (e *Engine) frameBoundary() {
	if !e.frameDone {
		return
	}
	e.frameDone = false
	e.framesSent.Add(1)
	if e.resumeOpen {
		e.resumeOpen = false
		e.mode.CompareAndSwap(uint32(TaskResumeSend), uint32(TaskSend))
	}
}

func (e *Engine) sendBreak(next int) {
	if next == stateStart && e.Mode() == TaskResumeSend {
		e.resumeOpen = true
	}
	_ = e.port.SetBaud(BreakBaud)
	_ = e.port.WriteByte(0)
	e.sendState = next
}

// listen turns the line around after a request that expects a response.
func (e *Engine) listen() {
	e.rspLen = 0
	e.rspBreak = false
	e.setDirection(false)
	e.sendState = stateRDMListen
	_ = e.port.SetBaud(DataBaud)
	e.port.SetInterrupts(InterruptReceive | InterruptBreak)
}

// resumeOutput turns the line back to continuous send. Only the context that
// moved the mode from TaskSendRDM to TaskResumeSend calls it.
func (e *Engine) resumeOutput() {
	e.port.SetInterrupts(InterruptNone)
	e.setDirection(true)
	e.sendState = stateBreak
	e.port.SetInterrupts(InterruptTransmitComplete)
}

func (e *Engine) responseByte(b byte) {
	e.rspActivity.Add(1)

	if e.discovery {
		if e.rspLen < len(e.rspBuf) {
			e.rspBuf[e.rspLen] = b
			e.rspLen++
		}
		if n := rdm.DiscoveryResponseLength(e.rspBuf[:e.rspLen]); n > 0 && e.rspLen >= n {
			e.completeResponse()
		}
		return
	}

	if !e.rspBreak {
		return
	}
	e.rspBuf[e.rspLen] = b
	e.rspLen++
	if e.rspLen == 1 && b != rdm.StartCodeRDM {
		e.completeResponse()
		return
	}
	if n := rdm.PacketLength(e.rspBuf[:e.rspLen]); (n > 0 && e.rspLen >= n) || e.rspLen == len(e.rspBuf) {
		e.completeResponse()
	}
}

// completeResponse hands the response buffer to the foreground.
func (e *Engine) completeResponse() {
	e.rxDone.Store(true)
	if e.mode.CompareAndSwap(uint32(TaskSendRDM), uint32(TaskResumeSend)) {
		e.resumeOutput()
	}
}

func (e *Engine) inputByte(b byte) {
	switch e.readState {
	case readIdle:
		return
	case readStart:
		e.rxIndex = 0
		e.rxRDM = b == rdm.StartCodeRDM
		e.readState = readReceiving
	}

	if e.rxRDM {
		if e.rxIndex < len(e.rdmIn) {
			e.rdmIn[e.rxIndex] = b
			e.rxIndex++
		}
		if n := rdm.PacketLength(e.rdmIn[:e.rxIndex]); (n > 0 && e.rxIndex >= n) || e.rxIndex == len(e.rdmIn) {
			e.completeFrame()
			e.readState = readIdle
		}
		return
	}

	e.rxFrame[e.rxIndex] = b
	e.rxIndex++
	if e.rxIndex == MaxFrame {
		e.completeFrame()
		e.readState = readIdle
	}
}

func (e *Engine) completeFrame() {
	if e.rxRDM {
		e.rdmLen = e.rxIndex
		e.callback(e.rdmCallback, e.rdmLen)
		return
	}
	e.rxComplete = e.rxIndex
	e.callback(e.dataCallback, e.rxIndex-1)
}

func (e *Engine) callback(fn func(int), n int) {
	if fn == nil {
		return
	}
	e.inHandler.Store(true)
	fn(n)
	e.inHandler.Store(false)
}
