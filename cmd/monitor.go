// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

var (
	monitorTUI      bool
	monitorInterval time.Duration
	monitorSlots    int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Receive DMX frames and RDM packets",
	Long: `Listen on the line and report what other controllers send.

Text mode prints a frame summary every --interval and every RDM packet as it
arrives. --tui shows a live slot grid with packet statistics and an event log.

With --simulate, a ramp pattern is fed to the receiver.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "Interactive slot grid")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", time.Second, "Frame summary interval (text mode)")
	monitorCmd.Flags().IntVar(&monitorSlots, "show-slots", 32, "Slots in the frame summary (text mode)")
}

// receiver collects what the engine hands to its receive callbacks. The
// callbacks run inside Poll, on the polling goroutine.
type receiver struct {
	frames    uint64
	lastSlots int
	newFrame  bool
	newRDM    bool
}

func (r *receiver) attach(s *session) {
	s.engine.SetDataReceivedCallback(func(n int) {
		r.frames++
		r.lastSlots = n
		r.newFrame = true
	})
	s.engine.SetRDMReceivedCallback(func(int) {
		r.newRDM = true
	})
}

// takeRDM decodes the RDM packet received since the last call, if any.
func (r *receiver) takeRDM(s *session) (rdmPacketMsg, bool) {
	if !r.newRDM {
		return rdmPacketMsg{}, false
	}
	r.newRDM = false
	p, err := rdm.DecodePacket(s.engine.ReceivedRDM())
	if err != nil {
		return rdmPacketMsg{decodeErr: err}, true
	}
	return rdmPacketMsg{packet: p, validationErrors: rdm.ValidatePacket(p)}, true
}

// simulatedFrame is the ramp fed to the receiver on a simulated bus.
func simulatedFrame(seq uint64, slots int) []byte {
	frame := make([]byte, slots+1)
	frame[0] = rdm.StartCodeDMX
	for i := 1; i <= slots; i++ {
		frame[i] = byte(uint64(i*4) + seq)
	}
	return frame
}

func (s *session) feedSimulated(seq uint64) {
	if s.bus != nil && s.bus.Pending() == 0 {
		s.bus.QueueFrame(simulatedFrame(seq, 64))
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if monitorTUI {
		return runMonitorTUI(s)
	}

	fmt.Printf("rdmctl - Line Monitor\n")
	fmt.Printf("Connection: %s\n\n", s.info)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	stats := rdm.NewStatistics()
	var rx receiver
	rx.attach(s)
	s.engine.StartInput()

	next := time.Now().Add(monitorInterval)
	var reported uint64
	for ctx.Err() == nil {
		s.feedSimulated(rx.frames)
		if err := s.poll(); err != nil {
			return fmt.Errorf("line failed: %w", err)
		}

		if msg, ok := rx.takeRDM(s); ok {
			stats.Update(msg.packet, msg.decodeErr, msg.validationErrors)
			if msg.decodeErr != nil {
				fmt.Printf("RDM decode error: %v\n", msg.decodeErr)
			} else {
				fmt.Print(rdm.FormatPacket(msg.packet))
				for _, v := range msg.validationErrors {
					fmt.Printf("  ! %s\n", v.Message)
				}
			}
		}

		if time.Now().After(next) {
			next = next.Add(monitorInterval)
			if rx.frames == reported {
				fmt.Printf("[%s] no frames\n", time.Now().Format("15:04:05"))
				continue
			}
			data := s.engine.ReceivedData()
			if len(data) == 0 {
				continue
			}
			shown := len(data) - 1
			if shown > monitorSlots {
				shown = monitorSlots
			}
			fmt.Printf("[%s] %d frames, %d slots, start code 0x%02X\n",
				time.Now().Format("15:04:05"), rx.frames-reported, rx.lastSlots, data[0])
			if shown > 0 {
				fmt.Print(rdm.FormatHex(data[1 : shown+1]))
			}
			reported = rx.frames
		}
	}

	fmt.Println()
	fmt.Print(stats.String())
	return nil
}

func runMonitorTUI(s *session) error {
	m := initialMonitorModel(s.info)
	p := tea.NewProgram(m, tea.WithAltScreen())

	done := make(chan struct{})
	exited := make(chan struct{})
	failed := make(chan error, 1)
	go func() {
		defer close(exited)
		var rx receiver
		rx.attach(s)
		s.engine.StartInput()

		lastSend := time.Now()
		for {
			select {
			case <-done:
				return
			default:
			}

			s.feedSimulated(rx.frames)
			if err := s.poll(); err != nil {
				failed <- err
				p.Send(lineFailedMsg{err})
				return
			}

			if msg, ok := rx.takeRDM(s); ok {
				p.Send(msg)
			}
			if rx.newFrame && time.Since(lastSend) >= 100*time.Millisecond {
				rx.newFrame = false
				lastSend = time.Now()
				p.Send(frameMsg{data: s.engine.ReceivedData(), frames: rx.frames})
			}
		}
	}()

	_, err := p.Run()
	close(done)
	<-exited
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	select {
	case err := <-failed:
		return fmt.Errorf("line failed: %w", err)
	default:
		return nil
	}
}
