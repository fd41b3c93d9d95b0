// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

// Version is reported by --version and attached to every log record.
const Version = "0.3.0"

var (
	// Serial connection flags
	portName string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configPath   string
	simulate     int
	simulateSeed int64
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "rdmctl",
	Short: "DMX512 / RDM controller",
	Long: `rdmctl - A DMX512 controller with RDM device discovery.

Sends continuous DMX frames and interleaves RDM transactions with them: device
discovery, identify, and single GET/SET commands.

Connection modes:
  Serial:    --port /dev/ttyUSB0   (250000 baud, 8N2)
  WebSocket: --url ws://host/path [--username user]
  Simulated: --simulate N          (a bus with N responders)

For WebSocket authentication, the password is read from the RDMCTL_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Settings not covered by flags come from --config (YAML) and RDMCTL_*
environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().IntVar(&simulate, "simulate", 0, "Use a simulated bus with N responders")
	rootCmd.PersistentFlags().Int64Var(&simulateSeed, "simulate-seed", 1, "Seed for the simulated responder UIDs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
