// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// SendDiscovery sends DISC_UNIQUE_BRANCH for [lower, upper]. It returns the
// UID of a single responder, an error wrapping rdm.ErrMalformed when the
// reply was garbled (usually a collision), or rdm.ErrNoReply on silence.
func (e *Engine) SendDiscovery(lower, upper rdm.UID) (rdm.UID, error) {
	req := rdm.NewDiscUniqueBranch(e.cfg.ControllerUID, lower, upper)
	raw, err := e.transact(req)
	if err != nil {
		e.logTransaction(req, err)
		return rdm.UID{}, err
	}

	uid, err := rdm.DecodeDiscoveryResponse(raw)
	if err != nil {
		e.stats.Update(nil, err, nil)
		e.logTransaction(req, err)
		return rdm.UID{}, err
	}
	e.stats.Update(rdm.NewDiscoveryResponsePacket(uid), nil, nil)
	e.logger.Debug("discovery reply", "lower", lower, "upper", upper, "uid", uid)
	return uid, nil
}

// SendMute sends DISC_MUTE (rdm.PIDDiscMute) or DISC_UN_MUTE
// (rdm.PIDDiscUnMute) to target. Broadcast targets expect no reply.
func (e *Engine) SendMute(target rdm.UID, pid uint16) error {
	if pid != rdm.PIDDiscMute && pid != rdm.PIDDiscUnMute {
		return fmt.Errorf("%s is not a mute command", rdm.FormatPID(pid))
	}
	_, err := e.exchange(rdm.NewDiscMute(e.cfg.ControllerUID, target, pid))
	return err
}

// SendGet sends GET_COMMAND for pid and copies the response parameter data
// into buf. It returns the number of bytes copied.
func (e *Engine) SendGet(target rdm.UID, pid uint16, buf []byte) (int, error) {
	resp, err := e.exchange(rdm.NewGetCommand(e.cfg.ControllerUID, target, pid, nil))
	if err != nil || resp == nil {
		return 0, err
	}
	return copy(buf, resp.Data), nil
}

// SendSet sends SET_COMMAND for pid with data and checks the acknowledgement.
func (e *Engine) SendSet(target rdm.UID, pid uint16, data []byte) error {
	_, err := e.exchange(rdm.NewSetCommand(e.cfg.ControllerUID, target, pid, data))
	return err
}

// SendPacket runs one controller transaction for an arbitrary request and
// returns the validated response. Broadcast requests other than
// DISC_UNIQUE_BRANCH return a nil response. A NACK is returned together with
// an error wrapping rdm.ErrNack.
func (e *Engine) SendPacket(p *rdm.Packet) (*rdm.Packet, error) {
	if p.CommandClass == rdm.CommandDiscovery && p.PID == rdm.PIDDiscUniqueBranch {
		r, ok := rdm.DiscoveryBounds(p)
		if !ok {
			return nil, fmt.Errorf("DISC_UNIQUE_BRANCH needs %d bytes of bounds", 2*rdm.UIDSize)
		}
		uid, err := e.SendDiscovery(r.Lower, r.Upper)
		if err != nil {
			return nil, err
		}
		return rdm.NewDiscoveryResponsePacket(uid), nil
	}
	return e.exchange(p)
}

// exchange runs a transaction whose response is a regular packet.
func (e *Engine) exchange(req *rdm.Packet) (*rdm.Packet, error) {
	raw, err := e.transact(req)
	if err != nil || raw == nil {
		e.logTransaction(req, err)
		return nil, err
	}

	resp, err := rdm.DecodePacket(raw)
	if err != nil {
		e.stats.Update(nil, err, nil)
		e.logTransaction(req, err)
		return nil, err
	}

	if err := rdm.ValidateResponse(req, resp, e.cfg.ControllerUID); err != nil {
		var nack *rdm.NackError
		if errors.As(err, &nack) {
			e.stats.Update(resp, nil, nil)
			e.logTransaction(req, err)
			return resp, err
		}
		e.stats.Update(resp, err, nil)
		e.logTransaction(req, err)
		return nil, err
	}

	e.stats.Update(resp, nil, rdm.ValidatePacket(resp))
	e.logTransaction(req, nil)
	return resp, nil
}

// transact puts req on the wire and waits for the raw response. It returns
// nil bytes when no response is expected. On return the engine is back in
// continuous send, or a warning has been logged.
func (e *Engine) transact(req *rdm.Packet) ([]byte, error) {
	if e.inHandler.Load() {
		return nil, ErrBusy
	}
	switch e.Mode() {
	case TaskSend:
	case TaskSendRDM, TaskResumeSend:
		return nil, ErrBusy
	default:
		return nil, ErrNotSending
	}
	if len(req.Data) > rdm.MaxPDL {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(req.Data), rdm.MaxPDL)
	}

	discovery := req.CommandClass == rdm.CommandDiscovery && req.PID == rdm.PIDDiscUniqueBranch

	req.Source = e.cfg.ControllerUID
	req.PortID = e.cfg.PortID
	req.TransactionNumber = e.transaction
	e.transaction++
	if req.CommandClass != rdm.CommandDiscovery && req.SubDevice == rdm.SubDeviceRoot {
		req.SubDevice = e.cfg.SubDevice
	}

	// The handler does not touch the outbound buffer while the mode is TaskSend.
	n, err := req.MarshalTo(e.txBuf[:])
	if err != nil {
		return nil, err
	}
	e.txLen = n
	e.discovery = discovery
	e.expectReply = discovery || !req.Destination.IsBroadcast()
	e.rspLen = 0
	e.rspBreak = false
	e.txnSent.Store(false)
	e.rxDone.Store(false)

	if !e.mode.CompareAndSwap(uint32(TaskSend), uint32(TaskSendRDM)) {
		return nil, ErrBusy
	}
	defer e.waitResume()

	for i := 0; !e.txnSent.Load(); i++ {
		if i >= e.cfg.SendTimeout {
			if e.mode.CompareAndSwap(uint32(TaskSendRDM), uint32(TaskResumeSend)) {
				e.logger.Warn("request not sent", "pid", rdm.FormatPID(req.PID), "timeout", e.cfg.SendTimeout)
				e.stats.RecordTimeout()
				return nil, fmt.Errorf("%w: request not sent", rdm.ErrNoReply)
			}
			break
		}
		e.port.Idle()
	}

	if !e.expectReply {
		return nil, nil
	}

	limit := e.cfg.ResponseTimeout + 2*rdm.MaxPacketSize
	last := e.rspActivity.Load()
	quiet := 0
	for i := 0; !e.rxDone.Load(); i++ {
		if a := e.rspActivity.Load(); a != last {
			last = a
			quiet = 0
		}
		if quiet >= e.cfg.ResponseTimeout || i >= limit {
			if !e.mode.CompareAndSwap(uint32(TaskSendRDM), uint32(TaskResumeSend)) {
				break
			}
			// The request is out and the handler is listening, so the
			// line can be turned around from here.
			e.resumeOutput()
			if e.rspLen > 0 {
				return nil, fmt.Errorf("%w: incomplete response (%d bytes)", rdm.ErrMalformed, e.rspLen)
			}
			e.stats.RecordTimeout()
			return nil, rdm.ErrNoReply
		}
		e.port.Idle()
		quiet++
	}

	return append([]byte(nil), e.rspBuf[:e.rspLen]...), nil
}

// waitResume blocks until one full frame has been sent after a transaction.
func (e *Engine) waitResume() {
	for i := 0; e.Mode() != TaskSend; i++ {
		if i >= e.cfg.ResumeTimeout {
			e.logger.Warn("output did not resume", "mode", e.Mode(), "timeout", e.cfg.ResumeTimeout)
			return
		}
		e.port.Idle()
	}
}

func (e *Engine) logTransaction(req *rdm.Packet, err error) {
	if err != nil {
		e.logger.Debug("transaction failed",
			"pid", rdm.FormatPID(req.PID),
			"destination", req.Destination,
			"transaction", req.TransactionNumber,
			"error", err)
		return
	}
	e.logger.Debug("transaction",
		"pid", rdm.FormatPID(req.PID),
		"destination", req.Destination,
		"transaction", req.TransactionNumber)
}
