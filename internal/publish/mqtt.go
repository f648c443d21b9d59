// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package publish

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTT is a Sink that publishes JSON encoded records to <prefix>/<kind>
// topics on an MQTT broker.
type MQTT struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// DialMQTT connects to the MQTT broker and returns a sink publishing to it.
func DialMQTT(broker, clientID, prefix string, qos byte) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return NewMQTT(client, prefix, qos), nil
}

// NewMQTT returns a sink publishing with a connected client.
func NewMQTT(client mqtt.Client, prefix string, qos byte) *MQTT {
	return &MQTT{client: client, prefix: prefix, qos: qos}
}

func (s *MQTT) Publish(ctx context.Context, r Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	topic := s.prefix + "/" + r.Kind
	token := s.client.Publish(topic, s.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTT) Close() error {
	s.client.Disconnect(250)
	return nil
}
