// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rdmctl/pkg/discovery"
	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive TUI for discovered RDM devices",
	Long: `Discover RDM devices and configure them from a terminal UI.

Discovery runs continuously in the background while DMX output keeps going.
The device list follows the table of devices. For the selected device the
console shows DEVICE_INFO and the device label, and can toggle
IDENTIFY_DEVICE or set the DMX start address.

Tab switches between the device list and the controls. Arrow keys navigate
the device list.

Supports serial, WebSocket and simulated connections.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

type requestKind int

const (
	requestInfo requestKind = iota
	requestIdentify
	requestAddress
)

// consoleRequest is a transaction asked for by the TUI.
type consoleRequest struct {
	kind    requestKind
	uid     rdm.UID
	on      bool
	address uint16
}

// engineWorker owns the engine. Discovery steps and TUI requests run on its
// goroutine only.
type engineWorker struct {
	s        *session
	disc     *discovery.Discovery
	requests chan consoleRequest
	p        *tea.Program
	done     chan struct{}
	exited   chan struct{}
}

func runConsole(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	discCfg, err := s.cfg.Discovery.EngineConfig()
	if err != nil {
		return err
	}

	w := &engineWorker{
		s:        s,
		disc:     discovery.New(s.engine, discCfg, s.logger),
		requests: make(chan consoleRequest, 8),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}

	m := initialControlModel(w.requests, s.info)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	w.p = p

	w.disc.OnTableChanged(func(devices []rdm.UID) {
		p.Send(tableMsg{devices: devices, incomplete: w.disc.Incomplete()})
	})

	go w.run()

	_, err = p.Run()
	close(w.done)
	<-w.exited
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func (w *engineWorker) run() {
	defer close(w.exited)

	w.s.engine.StartRDM(w.s.pin)
	lastStats := time.Now()

	for {
		select {
		case <-w.done:
			return
		case req := <-w.requests:
			w.handle(req)
		default:
		}

		w.disc.Step()
		if err := w.s.pollFor(w.s.cfg.Discovery.Tick); err != nil {
			w.p.Send(lineFailedMsg{err})
			return
		}

		if time.Since(lastStats) >= time.Second {
			lastStats = time.Now()
			w.p.Send(w.statsSnapshot())
		}
	}
}

// statsSnapshot copies the engine counters. The engine updates them on this
// goroutine only.
func (w *engineWorker) statsSnapshot() statsMsg {
	st := w.s.engine.Statistics()
	st.CalculateRates()
	return statsMsg{
		total:      st.TotalPackets,
		valid:      st.ValidPackets,
		errors:     st.Errors(),
		nacks:      st.Nacks,
		timeouts:   st.Timeouts,
		packetRate: st.PacketRate,
		frames:     w.s.engine.FramesSent(),
		cycles:     searches(w.disc.Cycles()),
		state:      w.disc.State().String(),
	}
}

func (w *engineWorker) handle(req consoleRequest) {
	e := w.s.engine
	switch req.kind {
	case requestInfo:
		w.p.Send(w.readInfo(req.uid))

	case requestIdentify:
		var v byte
		if req.on {
			v = 1
		}
		err := e.SendSet(req.uid, rdm.PIDIdentifyDevice, []byte{v})
		w.p.Send(resultMsg{uid: req.uid, action: fmt.Sprintf("identify %s", onOff(req.on)), err: err})

	case requestAddress:
		err := e.SendSet(req.uid, rdm.PIDDMXStartAddress, rdm.EncodeStartAddress(req.address))
		w.p.Send(resultMsg{uid: req.uid, action: fmt.Sprintf("start address %d", req.address), err: err})
		if err == nil {
			w.p.Send(w.readInfo(req.uid))
		}
	}
}

func (w *engineWorker) readInfo(uid rdm.UID) deviceInfoMsg {
	e := w.s.engine
	msg := deviceInfoMsg{uid: uid}

	buf := make([]byte, rdm.MaxPDL)
	n, err := e.SendGet(uid, rdm.PIDDeviceInfo, buf)
	if err != nil {
		msg.err = err
		return msg
	}
	info, err := rdm.DecodeDeviceInfo(buf[:n])
	if err != nil {
		msg.err = err
		return msg
	}
	msg.info = &info

	// Not every device supports a label.
	if n, err := e.SendGet(uid, rdm.PIDDeviceLabel, buf); err == nil {
		msg.label = string(buf[:n])
	}
	return msg
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
