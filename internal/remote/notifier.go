// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package remote

import (
	"encoding/json"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rover_navigator/internal/nav"
)

const DefaultNotifyTopic = "rover/notifications"

// MQTTNotifier publishes navigator notifications as JSON. It never waits on
// the broker; while disconnected paho drops QoS 0 messages.
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
}

func NewMQTTNotifier(client mqtt.Client, topic string) *MQTTNotifier {
	if topic == "" {
		topic = DefaultNotifyTopic
	}
	return &MQTTNotifier{client: client, topic: topic}
}

func (n *MQTTNotifier) Notify(note nav.Notification) {
	if !n.client.IsConnectionOpen() {
		return
	}
	payload, err := json.Marshal(note)
	if err != nil {
		log.Printf("remote: notification encode error: %v", err)
		return
	}
	n.client.Publish(n.topic, 0, false, payload)
}
