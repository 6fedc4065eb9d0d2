// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rover_navigator/internal/config"
	"github.com/relabs-tech/rover_navigator/internal/nav"
)

// RunConsoleMQTT prints the navigator's notifications as they arrive.
func RunConsoleMQTT() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ConsoleClientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTT.Broker)

	token := client.Subscribe(cfg.MQTT.NotifyTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var n nav.Notification
		if err := json.Unmarshal(msg.Payload(), &n); err != nil {
			log.Printf("console: notification unmarshal error: %v", err)
			return
		}
		fmt.Println(formatNotification(n))
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", cfg.MQTT.NotifyTopic)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("console: shutting down")
	return nil
}

func formatNotification(n nav.Notification) string {
	ts := n.Time.Format("15:04:05.000")
	switch {
	case n.Decision != nil:
		return fmt.Sprintf("%s [%-16s] SPEED=%3d  TURN=%+3d", ts, n.Kind, n.Decision.Speed, n.Decision.Turning)
	case n.Waypoint != nil:
		return fmt.Sprintf("%s [%-16s] %s (id=%d lat=%.6f lng=%.6f)", ts, n.Kind, n.Message,
			n.Waypoint.ID, n.Waypoint.Lat, n.Waypoint.Lng)
	default:
		return fmt.Sprintf("%s [%-16s] %s", ts, n.Kind, n.Message)
	}
}
