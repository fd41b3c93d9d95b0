// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the rdmctl configuration.
//
// Values come from the built-in defaults, then an optional YAML file, then
// RDMCTL_* environment variables, and are validated last. Secrets such as
// the MQTT password are best set through the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/rdmctl/pkg/discovery"
	"github.com/Thermoquad/rdmctl/pkg/dmx"
	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// Config is the complete configuration.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	DMX        DMXConfig        `yaml:"dmx"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ConnectionConfig selects the line: a serial port or a WebSocket bridge.
type ConnectionConfig struct {
	Port        string `yaml:"port"`
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// DMXConfig holds the transport engine settings. Timeouts count byte times.
type DMXConfig struct {
	Slots           int    `yaml:"slots"`
	ControllerUID   string `yaml:"controller_uid"`
	PortID          uint8  `yaml:"port_id"`
	SubDevice       uint16 `yaml:"sub_device"`
	SendTimeout     int    `yaml:"send_timeout"`
	ResponseTimeout int    `yaml:"response_timeout"`
	ResumeTimeout   int    `yaml:"resume_timeout"`
}

// DiscoveryConfig holds the discovery engine settings.
type DiscoveryConfig struct {
	MuteAttempts  int           `yaml:"mute_attempts"`
	RangeAttempts int           `yaml:"range_attempts"`
	Seeds         []string      `yaml:"seeds"`
	TableCapacity int           `yaml:"table_capacity"`
	StackCapacity int           `yaml:"stack_capacity"`
	IdentifyPause time.Duration `yaml:"identify_pause"`
	// ReassignAddress, when non-zero, is rewritten to ReassignTo during the
	// identify sweep.
	ReassignAddress uint16 `yaml:"reassign_address"`
	ReassignTo      uint16 `yaml:"reassign_to"`
	// Tick is the delay between discovery steps.
	Tick time.Duration `yaml:"tick"`
}

// MQTTConfig configures the device table announcer.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads the configuration. An empty path uses the defaults with
// environment overrides only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	engine := dmx.DefaultConfig()
	disc := discovery.DefaultConfig()

	seeds := make([]string, 0, len(disc.Seeds))
	for _, r := range disc.Seeds {
		seeds = append(seeds, r.String())
	}

	return &Config{
		Connection: ConnectionConfig{
			Port: "/dev/ttyUSB0",
		},
		DMX: DMXConfig{
			Slots:           engine.Slots,
			ControllerUID:   engine.ControllerUID.String(),
			PortID:          engine.PortID,
			SubDevice:       engine.SubDevice,
			SendTimeout:     engine.SendTimeout,
			ResponseTimeout: engine.ResponseTimeout,
			ResumeTimeout:   engine.ResumeTimeout,
		},
		Discovery: DiscoveryConfig{
			MuteAttempts:  disc.MuteAttempts,
			RangeAttempts: disc.RangeAttempts,
			Seeds:         seeds,
			TableCapacity: disc.TableCapacity,
			StackCapacity: disc.StackCapacity,
			IdentifyPause: disc.IdentifyPause,
			Tick:          time.Millisecond,
		},
		MQTT: MQTTConfig{
			Host:        "localhost",
			Port:        1883,
			TopicPrefix: "rdmctl",
			QoS:         1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies RDMCTL_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RDMCTL_PORT"); v != "" {
		cfg.Connection.Port = v
	}
	if v := os.Getenv("RDMCTL_URL"); v != "" {
		cfg.Connection.URL = v
	}
	if v := os.Getenv("RDMCTL_CONTROLLER_UID"); v != "" {
		cfg.DMX.ControllerUID = v
	}

	if v := os.Getenv("RDMCTL_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("RDMCTL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("RDMCTL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	if v := os.Getenv("RDMCTL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	if _, err := c.DMX.EngineConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.DMX.SendTimeout <= 0 || c.DMX.ResponseTimeout <= 0 || c.DMX.ResumeTimeout <= 0 {
		errs = append(errs, "dmx timeouts must be positive")
	}

	if _, err := c.Discovery.EngineConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Discovery.MuteAttempts < 1 || c.Discovery.RangeAttempts < 1 {
		errs = append(errs, "discovery attempts must be at least 1")
	}
	if c.Discovery.TableCapacity < 1 || c.Discovery.StackCapacity < 2 {
		errs = append(errs, "discovery.table_capacity must be at least 1 and discovery.stack_capacity at least 2")
	}
	if c.Discovery.ReassignAddress > rdm.MaxSlots {
		errs = append(errs, fmt.Sprintf("discovery.reassign_address %d out of range", c.Discovery.ReassignAddress))
	}
	if c.Discovery.ReassignAddress != 0 && (c.Discovery.ReassignTo < 1 || c.Discovery.ReassignTo > rdm.MaxSlots) {
		errs = append(errs, fmt.Sprintf("discovery.reassign_to %d must be a start address between 1 and %d", c.Discovery.ReassignTo, rdm.MaxSlots))
	}

	if c.MQTT.Enabled {
		if c.MQTT.Host == "" {
			errs = append(errs, "mqtt.host is required when mqtt is enabled")
		}
		if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
			errs = append(errs, fmt.Sprintf("mqtt.port %d out of range", c.MQTT.Port))
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Sprintf("mqtt.qos %d out of range", c.MQTT.QoS))
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q must be text or json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// EngineConfig converts the settings for dmx.New.
func (c DMXConfig) EngineConfig() (dmx.Config, error) {
	uid, err := rdm.ParseUID(c.ControllerUID)
	if err != nil {
		return dmx.Config{}, fmt.Errorf("dmx.controller_uid: %w", err)
	}
	if uid.IsBroadcast() {
		return dmx.Config{}, fmt.Errorf("dmx.controller_uid %s is a broadcast address", uid)
	}
	if c.Slots < dmx.MinSlots || c.Slots > dmx.MaxSlots {
		return dmx.Config{}, fmt.Errorf("dmx.slots %d outside [%d, %d]", c.Slots, dmx.MinSlots, dmx.MaxSlots)
	}
	return dmx.Config{
		Slots:           c.Slots,
		ControllerUID:   uid,
		PortID:          c.PortID,
		SubDevice:       c.SubDevice,
		SendTimeout:     c.SendTimeout,
		ResponseTimeout: c.ResponseTimeout,
		ResumeTimeout:   c.ResumeTimeout,
	}, nil
}

// EngineConfig converts the settings for discovery.New.
func (c DiscoveryConfig) EngineConfig() (discovery.Config, error) {
	seeds := make([]rdm.Range, 0, len(c.Seeds))
	for _, s := range c.Seeds {
		r, err := rdm.ParseRange(s)
		if err != nil {
			return discovery.Config{}, fmt.Errorf("discovery.seeds: %w", err)
		}
		seeds = append(seeds, r)
	}
	return discovery.Config{
		MuteAttempts:  c.MuteAttempts,
		RangeAttempts: c.RangeAttempts,
		Seeds:         seeds,
		TableCapacity: c.TableCapacity,
		StackCapacity: c.StackCapacity,
		IdentifyPause: c.IdentifyPause,

		ReassignAddress: c.ReassignAddress,
		ReassignTo:      c.ReassignTo,
	}, nil
}
