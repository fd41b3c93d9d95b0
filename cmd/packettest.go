// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

var (
	lineTestTimeout int
)

var lineTestCmd = &cobra.Command{
	Use:   "line_test",
	Short: "Test the connection by waiting for a DMX frame or RDM packet",
	Long: `Listen on the line until a complete DMX frame or a valid RDM packet
arrives, or the timeout expires.

Exit codes:
  0 - Frame or packet received before timeout
  1 - Timeout reached without receiving anything valid
  2 - Connection error

Useful for checking the wiring to another controller or a WebSocket bridge.`,
	RunE: runLineTest,
}

func init() {
	rootCmd.AddCommand(lineTestCmd)
	lineTestCmd.Flags().IntVar(&lineTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runLineTest(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	fmt.Printf("rdmctl - Line Test\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Timeout: %d seconds\n", lineTestTimeout)
	fmt.Printf("Waiting for a DMX frame or RDM packet...\n\n")

	var rx receiver
	rx.attach(s)
	s.engine.StartInput()

	deadline := time.Now().Add(time.Duration(lineTestTimeout) * time.Second)
	for time.Now().Before(deadline) {
		s.feedSimulated(0)
		if err := s.poll(); err != nil {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			s.Close()
			os.Exit(2)
		}

		if msg, ok := rx.takeRDM(s); ok && msg.decodeErr == nil {
			fmt.Printf("SUCCESS: Received valid RDM packet\n")
			fmt.Print(rdm.FormatPacket(msg.packet))
			return nil
		}
		if rx.frames > 0 {
			data := s.engine.ReceivedData()
			fmt.Printf("SUCCESS: Received DMX frame\n")
			fmt.Printf("  Start code: 0x%02X\n", startCode(data))
			fmt.Printf("  Slots: %d\n", rx.lastSlots)
			return nil
		}
	}

	fmt.Fprintf(os.Stderr, "TIMEOUT: Nothing valid received within %d seconds\n", lineTestTimeout)
	s.Close()
	os.Exit(1)
	return nil
}
