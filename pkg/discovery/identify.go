// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package discovery

import (
	"time"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// poller is implemented by transports whose output only advances while they
// are polled.
type poller interface {
	Poll()
}

// identifyAll reads the start address of every known device, moves it off
// ReassignAddress when configured, and lets it identify for IdentifyPause.
func (d *Discovery) identifyAll() {
	buf := make([]byte, rdm.MaxPDL)
	for _, uid := range d.table.All() {
		n, err := d.transport.SendGet(uid, rdm.PIDDMXStartAddress, buf)
		if err != nil {
			d.logger.Debug("start address not read", "uid", uid, "error", err)
			continue
		}
		addr, err := rdm.DecodeStartAddress(buf[:n])
		if err != nil {
			d.logger.Debug("start address not read", "uid", uid, "error", err)
			continue
		}
		d.logger.Info("identify", "uid", uid, "start_address", addr)

		if d.cfg.ReassignAddress != 0 && addr == d.cfg.ReassignAddress {
			if err := d.transport.SendSet(uid, rdm.PIDDMXStartAddress, rdm.EncodeStartAddress(d.cfg.ReassignTo)); err != nil {
				d.logger.Warn("start address not reassigned", "uid", uid, "error", err)
			} else {
				d.logger.Info("start address reassigned", "uid", uid, "from", addr, "to", d.cfg.ReassignTo)
			}
		}

		if err := d.transport.SendSet(uid, rdm.PIDIdentifyDevice, []byte{1}); err != nil {
			d.logger.Debug("identify on failed", "uid", uid, "error", err)
		}
		d.pause(d.cfg.IdentifyPause)
		if err := d.transport.SendSet(uid, rdm.PIDIdentifyDevice, []byte{0}); err != nil {
			d.logger.Debug("identify off failed", "uid", uid, "error", err)
		}
	}
}

// pause waits for dur, polling the transport meanwhile when it needs that
// to keep the line busy.
func (d *Discovery) pause(dur time.Duration) {
	if dur <= 0 {
		return
	}
	p, ok := d.transport.(poller)
	if !ok {
		time.Sleep(dur)
		return
	}
	deadline := time.Now().Add(dur)
	for time.Now().Before(deadline) {
		p.Poll()
	}
}
