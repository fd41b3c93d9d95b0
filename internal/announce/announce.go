// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package announce publishes the RDM device table to MQTT so other
// controllers and consoles can follow discovery.
//
// Topics, below the configured prefix and the controller UID:
//
//	<prefix>/<controller>/tod     retained TableOfDevices, after every change
//	<prefix>/<controller>/status  retained Status, with an offline last will
package announce

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// Publisher sends one message to a topic. *Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// ErrInvalidQoS is returned for a QoS level above 2.
var ErrInvalidQoS = errors.New("invalid QoS level (must be 0, 1, or 2)")

// TopicTableOfDevices returns the table topic of a controller.
func TopicTableOfDevices(prefix string, controller rdm.UID) string {
	return fmt.Sprintf("%s/%012x/tod", prefix, controller.Uint64())
}

// TopicStatus returns the status topic of a controller.
func TopicStatus(prefix string, controller rdm.UID) string {
	return fmt.Sprintf("%s/%012x/status", prefix, controller.Uint64())
}

// Announcer turns device table changes into retained messages.
type Announcer struct {
	pub        Publisher
	prefix     string
	qos        byte
	controller rdm.UID
	logger     *slog.Logger

	mu       sync.Mutex
	sequence uint32
	now      func() time.Time
}

// New creates an announcer. A nil logger discards log output.
func New(pub Publisher, prefix string, qos byte, controller rdm.UID, logger *slog.Logger) (*Announcer, error) {
	if qos > 2 {
		return nil, ErrInvalidQoS
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Announcer{
		pub:        pub,
		prefix:     prefix,
		qos:        qos,
		controller: controller,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Announce publishes the device table.
func (a *Announcer) Announce(devices []rdm.UID) error {
	a.mu.Lock()
	a.sequence++
	msg := TableOfDevices{
		Controller: a.controller,
		Sequence:   a.sequence,
		Devices:    append([]rdm.UID{}, devices...),
		Timestamp:  a.now().UnixMilli(),
	}
	a.mu.Unlock()

	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	topic := TopicTableOfDevices(a.prefix, a.controller)
	if err := a.pub.Publish(topic, payload, a.qos, true); err != nil {
		return fmt.Errorf("announce table: %w", err)
	}
	a.logger.Debug("table announced", "topic", topic, "devices", len(devices), "sequence", msg.Sequence)
	return nil
}

// Handler returns a callback for discovery.Discovery.OnTableChanged that
// logs publish failures instead of returning them.
func (a *Announcer) Handler() func([]rdm.UID) {
	return func(devices []rdm.UID) {
		if err := a.Announce(devices); err != nil {
			a.logger.Warn("announce failed", "error", err)
		}
	}
}

// PublishStatus publishes the retained presence message.
func (a *Announcer) PublishStatus(online bool) error {
	payload, err := Status{Controller: a.controller, Online: online}.Encode()
	if err != nil {
		return err
	}
	return a.pub.Publish(TopicStatus(a.prefix, a.controller), payload, a.qos, true)
}
