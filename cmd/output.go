// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

var (
	outputSet      []string
	outputSlots    int
	outputDuration time.Duration
)

var outputCmd = &cobra.Command{
	Use:   "output",
	Short: "Send continuous DMX frames",
	Long: `Send DMX512 frames continuously until interrupted or --duration elapses.

Slots not named by --set stay at zero.

Examples:
  rdmctl output --port /dev/ttyUSB0 --set 1=255 --set 2-4=128
  rdmctl output --slots 24 --duration 10s --simulate 1`,
	RunE: runOutput,
}

func init() {
	rootCmd.AddCommand(outputCmd)
	outputCmd.Flags().StringArrayVar(&outputSet, "set", nil, "Slot value as SLOT=VALUE or FIRST-LAST=VALUE (repeatable)")
	outputCmd.Flags().IntVar(&outputSlots, "slots", 0, "Slots per frame (overrides dmx.slots)")
	outputCmd.Flags().DurationVar(&outputDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
}

func runOutput(cmd *cobra.Command, args []string) error {
	assignments := make([]slotAssignment, 0, len(outputSet))
	for _, s := range outputSet {
		a, err := parseSlotAssignment(s)
		if err != nil {
			return err
		}
		assignments = append(assignments, a)
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if outputSlots > 0 {
		s.engine.SetMaxSlots(outputSlots)
	}
	for _, a := range assignments {
		if n := a.apply(s.engine); n > 0 {
			s.logger.Warn("slots beyond frame ignored", "first", a.first, "last", a.last, "rejected", n, "slots", s.engine.MaxSlots())
		}
	}

	fmt.Printf("rdmctl - DMX Output\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Slots: %d\n", s.engine.MaxSlots())
	frame := make([]byte, s.engine.MaxSlots())
	for i := range frame {
		frame[i] = s.engine.Slot(i + 1)
	}
	fmt.Print(rdm.FormatHex(frame))

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	if outputDuration > 0 {
		ctx, stop = context.WithTimeout(ctx, outputDuration)
		defer stop()
	}

	s.engine.StartOutput()
	start := time.Now()
	for ctx.Err() == nil {
		if err := s.pollFor(time.Second); err != nil {
			return fmt.Errorf("line failed: %w", err)
		}
		s.logger.Debug("output running", "frames", s.engine.FramesSent())
	}

	elapsed := time.Since(start).Seconds()
	frames := s.engine.FramesSent()
	fmt.Printf("\nSent %d frames in %.1fs (%.1f frames/s)\n", frames, elapsed, float64(frames)/elapsed)
	return nil
}
