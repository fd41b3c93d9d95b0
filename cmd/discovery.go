// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rdmctl/internal/announce"
	"github.com/Thermoquad/rdmctl/pkg/discovery"
	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

var (
	discoverCycles   uint64
	discoverIdentify bool
	discoverNoMQTT   bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover RDM devices while sending DMX",
	Long: `Run RDM discovery continuously while DMX output keeps running.

Each cycle re-checks every known device with DISC_MUTE and then searches the
configured UID ranges with DISC_UNIQUE_BRANCH. The table of devices is printed
whenever it changes, and published to MQTT when mqtt.enabled is set.

With --identify, every device is asked for its DMX start address and flashed
with IDENTIFY_DEVICE after the first table check.

Examples:
  # Search a USB adapter until interrupted
  rdmctl discover --port /dev/ttyUSB0

  # Three cycles on a simulated bus of 16 responders
  rdmctl discover --simulate 16 --cycles 3

Exit codes:
  0 - Discovery finished
  1 - Error (connection lost, configuration)`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().Uint64Var(&discoverCycles, "cycles", 0, "Stop after N searches and the table check that follows them (0 runs until interrupted)")
	discoverCmd.Flags().BoolVar(&discoverIdentify, "identify", false, "Identify every device after the first table check")
	discoverCmd.Flags().BoolVar(&discoverNoMQTT, "no-mqtt", false, "Do not publish the table even if MQTT is enabled")
	discoverCmd.Flags().Duration("tick", 0, "Delay between discovery steps (overrides discovery.tick)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	discCfg, err := s.cfg.Discovery.EngineConfig()
	if err != nil {
		return err
	}
	tick := s.cfg.Discovery.Tick
	if cmd.Flags().Changed("tick") {
		tick, _ = cmd.Flags().GetDuration("tick")
	}

	fmt.Printf("rdmctl - Device Discovery\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Controller: %s\n", s.engine.ControllerUID())
	for _, r := range discCfg.Seeds {
		fmt.Printf("Range: %s\n", r)
	}
	fmt.Println()

	disc := discovery.New(s.engine, discCfg, s.logger)
	disc.SetIdentify(discoverIdentify)

	var announcer *announce.Announcer
	if s.cfg.MQTT.Enabled && !discoverNoMQTT {
		client, err := announce.Connect(s.cfg.MQTT, s.engine.ControllerUID())
		if err != nil {
			return err
		}
		defer client.Close()

		announcer, err = announce.New(client, s.cfg.MQTT.TopicPrefix, byte(s.cfg.MQTT.QoS), s.engine.ControllerUID(), s.logger)
		if err != nil {
			return err
		}
		if err := announcer.PublishStatus(true); err != nil {
			s.logger.Warn("publish status failed", "error", err)
		}
		defer func() {
			if err := announcer.PublishStatus(false); err != nil {
				s.logger.Warn("publish status failed", "error", err)
			}
		}()
		fmt.Printf("Announcing to %s\n\n", announce.TopicTableOfDevices(s.cfg.MQTT.TopicPrefix, s.engine.ControllerUID()))
	}

	var publish func([]rdm.UID)
	if announcer != nil {
		publish = announcer.Handler()
	}
	disc.OnTableChanged(func(devices []rdm.UID) {
		fmt.Print(rdm.FormatTable(devices))
		if disc.Incomplete() {
			fmt.Fprintln(os.Stderr, "warning: table or range stack full, devices may be missing")
		}
		if publish != nil {
			publish(devices)
		}
	})

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	s.engine.StartRDM(s.pin)

	for ctx.Err() == nil {
		disc.Step()
		if discoverCycles > 0 && searches(disc.Cycles()) >= discoverCycles {
			break
		}
		if err := s.pollFor(tick); err != nil {
			return fmt.Errorf("line failed: %w", err)
		}
	}

	fmt.Printf("\n%d cycle(s), %d device(s)\n", searches(disc.Cycles()), len(disc.Devices()))
	fmt.Print(s.engine.Statistics().String())

	return nil
}

// searches returns the number of completed searches behind n table checks.
// The first table check runs before any search.
func searches(checks uint64) uint64 {
	if checks == 0 {
		return 0
	}
	return checks - 1
}
