// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

var getCmd = &cobra.Command{
	Use:   "get <uid> <pid>",
	Short: "Send one RDM GET command",
	Long: `Send a GET_COMMAND to a device and print the response.

The UID is written as mmmm:dddddddd or as 12 hex digits. The parameter is a
number (0x00F0) or a name (DMX_START_ADDRESS).

Examples:
  rdmctl get 6574:00000010 DEVICE_INFO --port /dev/ttyUSB0
  rdmctl get 657400000010 0x0082 --simulate 1`,
	Args: cobra.ExactArgs(2),
	RunE: runGet,
}

var setCmd = &cobra.Command{
	Use:   "set <uid> <pid> [hex-data]",
	Short: "Send one RDM SET command",
	Long: `Send a SET_COMMAND to a device. A broadcast UID sends without waiting
for a response.

Examples:
  rdmctl set 6574:00000010 DMX_START_ADDRESS 0065
  rdmctl set ffff:ffffffff IDENTIFY_DEVICE 01`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runSet,
}

var getData string

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	getCmd.Flags().StringVar(&getData, "data", "", "Parameter data for the GET (hex)")
}

// parseTransactionArgs reads <uid> <pid> [hex-data].
func parseTransactionArgs(args []string) (rdm.UID, uint16, []byte, error) {
	uid, err := rdm.ParseUID(args[0])
	if err != nil {
		return rdm.UID{}, 0, nil, err
	}
	pid, err := parsePID(args[1])
	if err != nil {
		return rdm.UID{}, 0, nil, err
	}
	var data []byte
	if len(args) > 2 {
		data, err = parseHexData(args[2])
		if err != nil {
			return rdm.UID{}, 0, nil, err
		}
	}
	return uid, pid, data, nil
}

func runGet(cmd *cobra.Command, args []string) error {
	uid, pid, _, err := parseTransactionArgs(args)
	if err != nil {
		return err
	}
	var data []byte
	if getData != "" {
		if data, err = parseHexData(getData); err != nil {
			return err
		}
	}
	if uid.IsBroadcast() {
		return fmt.Errorf("GET needs a device UID, not broadcast %s", uid)
	}
	return runTransaction(rdm.NewGetCommand(rdm.UID{}, uid, pid, data))
}

func runSet(cmd *cobra.Command, args []string) error {
	uid, pid, data, err := parseTransactionArgs(args)
	if err != nil {
		return err
	}
	return runTransaction(rdm.NewSetCommand(rdm.UID{}, uid, pid, data))
}

// runTransaction starts output, sends req once and prints the outcome.
func runTransaction(req *rdm.Packet) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	s.engine.StartRDM(s.pin)
	// Let the first frame go out before the request.
	if err := s.pollFor(s.cfg.Discovery.Tick); err != nil {
		return err
	}

	resp, err := s.engine.SendPacket(req)
	var nack *rdm.NackError
	switch {
	case errors.As(err, &nack):
		fmt.Printf("NACK: %s\n", rdm.FormatNackReason(nack.Reason))
		return err
	case err != nil:
		return fmt.Errorf("%s %s to %s: %w", rdm.FormatCommandClass(req.CommandClass), rdm.FormatPID(req.PID), req.Destination, err)
	case resp == nil:
		fmt.Printf("%s %s sent to %s (broadcast, no response)\n", rdm.FormatCommandClass(req.CommandClass), rdm.FormatPID(req.PID), req.Destination)
		return nil
	}

	fmt.Print(rdm.FormatPacket(resp))
	if resp.PID == rdm.PIDDeviceInfo {
		if info, err := rdm.DecodeDeviceInfo(resp.Data); err == nil {
			fmt.Printf("  %s\n", info)
		}
	}
	return nil
}
