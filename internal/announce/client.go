// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package announce

import (
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Thermoquad/rdmctl/internal/config"
	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds
	keepAlive         = 60 * time.Second
)

// MQTT errors
var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrNotConnected     = errors.New("mqtt: client not connected")
)

// Client is a Publisher backed by an MQTT broker connection.
type Client struct {
	client pahomqtt.Client
}

// ClientOptions builds the paho options for cfg. The last will marks the
// controller offline on its status topic. An empty client ID gets a random
// one.
func ClientOptions(cfg config.MQTTConfig, controller rdm.UID) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "rdmctl-" + uuid.NewString()
	}
	opts.SetClientID(clientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	will, err := Status{Controller: controller, Online: false}.Encode()
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(TopicStatus(cfg.TopicPrefix, controller), will, byte(cfg.QoS), true)
	return opts, nil
}

// Connect opens a broker connection.
func Connect(cfg config.MQTTConfig, controller rdm.UID) (*Client, error) {
	opts, err := ClientOptions(cfg, controller)
	if err != nil {
		return nil, err
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return &Client{client: client}, nil
}

// Publish implements Publisher.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesce)
}
