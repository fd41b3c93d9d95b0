// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/rdmctl/pkg/dmx"
	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rdmctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	engine, err := cfg.DMX.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, dmx.DefaultConfig(), engine)

	disc, err := cfg.Discovery.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, []rdm.Range{rdm.FullRange, rdm.ManufacturerRange(0x6574)}, disc.Seeds)
	assert.Equal(t, 3, disc.MuteAttempts)
	assert.Equal(t, 2, disc.RangeAttempts)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
connection:
  port: /dev/ttyACM1
dmx:
  slots: 128
  controller_uid: "7a70:00000001"
discovery:
  seeds: ["0100:00000000-01ff:ffffffff"]
  identify_pause: 500ms
mqtt:
  enabled: true
  host: broker.local
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM1", cfg.Connection.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Discovery.IdentifyPause)
	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port, "unset keys keep their defaults")

	engine, err := cfg.DMX.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, 128, engine.Slots)
	assert.Equal(t, rdm.NewUID(0x7a70, 1), engine.ControllerUID)

	disc, err := cfg.Discovery.EngineConfig()
	require.NoError(t, err)
	require.Len(t, disc.Seeds, 1)
	assert.Equal(t, rdm.NewUID(0x01ff, 0xffffffff), disc.Seeds[0].Upper)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RDMCTL_PORT", "/dev/ttyS3")
	t.Setenv("RDMCTL_MQTT_PASSWORD", "secret")
	t.Setenv("RDMCTL_LOG_LEVEL", "warn")
	t.Setenv("RDMCTL_CONTROLLER_UID", "1234:00000042")

	cfg, err := Load(writeConfig(t, "connection:\n  port: /dev/ttyUSB9\n"))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyS3", cfg.Connection.Port)
	assert.Equal(t, "secret", cfg.MQTT.Password)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "1234:00000042", cfg.DMX.ControllerUID)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "dmx: [slots: 1"},
		{"slots too low", "dmx:\n  slots: 10\n"},
		{"bad uid", "dmx:\n  controller_uid: nope\n"},
		{"broadcast uid", "dmx:\n  controller_uid: \"1234:ffffffff\"\n"},
		{"bad seed", "discovery:\n  seeds: [\"0000:00000000\"]\n"},
		{"zero attempts", "discovery:\n  mute_attempts: 0\n"},
		{"reassign without target", "discovery:\n  reassign_address: 15\n"},
		{"reassign past last slot", "discovery:\n  reassign_address: 15\n  reassign_to: 513\n"},
		{"mqtt port", "mqtt:\n  enabled: true\n  port: 70000\n"},
		{"log format", "logging:\n  format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/rdmctl.yaml")
	assert.Error(t, err)
}
