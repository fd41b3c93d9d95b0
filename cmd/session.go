// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/rdmctl/internal/busim"
	"github.com/Thermoquad/rdmctl/internal/config"
	"github.com/Thermoquad/rdmctl/internal/lineport"
	"github.com/Thermoquad/rdmctl/internal/logging"
	"github.com/Thermoquad/rdmctl/pkg/dmx"
)

// session is an engine on an open line.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *dmx.Engine
	pin    dmx.Pin
	info   string

	line *lineport.Port // nil when simulated
	bus  *busim.Bus     // nil unless simulated
}

// loadConfig reads the configuration file and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if portName != "" {
		cfg.Connection.Port = portName
	}
	if wsURL != "" {
		cfg.Connection.URL = wsURL
	}
	if wsUsername != "" {
		cfg.Connection.Username = wsUsername
	}
	if wsNoSSLVerify {
		cfg.Connection.NoSSLVerify = true
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// openSession loads the configuration and opens the line, or the
// simulated bus with --simulate.
func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Logging, Version)

	engineCfg, err := cfg.DMX.EngineConfig()
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger}

	if simulate > 0 {
		s.bus = busim.NewRandom(simulate, simulateSeed)
		s.engine = dmx.New(s.bus, engineCfg, logger)
		s.pin = s.bus.DirectionPin()
		s.info = fmt.Sprintf("Simulated: %d responders (seed %d)", simulate, simulateSeed)
		return s, nil
	}

	conn, info, err := OpenConnection(cfg.Connection)
	if err != nil {
		return nil, err
	}
	s.line = lineport.New(conn, lineport.DefaultConfig(), logger)
	s.engine = dmx.New(s.line, engineCfg, logger)
	s.info = info
	return s, nil
}

// err returns the line failure, if any.
func (s *session) err() error {
	if s.line == nil {
		return nil
	}
	return s.line.Err()
}

// poll runs the line for one byte time.
func (s *session) poll() error {
	s.engine.Poll()
	if s.bus != nil {
		// The simulated bus is not paced.
		time.Sleep(50 * time.Microsecond)
	}
	return s.err()
}

// pollFor keeps the line running for d.
func (s *session) pollFor(d time.Duration) error {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if err := s.poll(); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) Close() {
	s.engine.Stop()
	if s.line != nil {
		if err := s.line.Close(); err != nil {
			s.logger.Debug("close line", "error", err)
		}
		if n := s.line.Dropped(); n > 0 {
			s.logger.Warn("receive events dropped", "count", n)
		}
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
