// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/rover_navigator/internal/config"
	"github.com/relabs-tech/rover_navigator/internal/remote"
)

// Mission is the YAML file published by the mission publisher.
type Mission struct {
	State     string            `yaml:"state"` // optional: "Stop" or "Go"
	StateDoc  string            `yaml:"state_doc"`
	Waypoints []MissionWaypoint `yaml:"waypoints"`
}

type MissionWaypoint struct {
	DocID string  `yaml:"doc_id"`
	ID    *int    `yaml:"id"`
	Lat   float64 `yaml:"lat"`
	Lng   float64 `yaml:"lng"`
}

const defaultStateDoc = "state"

// LoadMission reads a mission file. Waypoints without an id are numbered by
// position; waypoints without a document id get a fresh UUID.
func LoadMission(path string) (*Mission, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mission: %w", err)
	}
	return ParseMission(b)
}

func ParseMission(b []byte) (*Mission, error) {
	var m Mission
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse mission: %w", err)
	}
	if m.State != "" && m.State != remote.StopState && m.State != "Go" {
		return nil, fmt.Errorf("mission state must be Stop or Go, got %q", m.State)
	}
	if m.StateDoc == "" {
		m.StateDoc = defaultStateDoc
	}
	seen := make(map[string]bool, len(m.Waypoints))
	for i := range m.Waypoints {
		wp := &m.Waypoints[i]
		if wp.Lat < -90 || wp.Lat > 90 || wp.Lng < -180 || wp.Lng > 180 {
			return nil, fmt.Errorf("waypoint %d: coordinates out of range (%f, %f)", i, wp.Lat, wp.Lng)
		}
		if wp.ID == nil {
			id := i
			wp.ID = &id
		}
		if wp.DocID == "" {
			wp.DocID = uuid.NewString()
		}
		if seen[wp.DocID] {
			return nil, fmt.Errorf("waypoint %d: duplicate doc_id %q", i, wp.DocID)
		}
		seen[wp.DocID] = true
	}
	return &m, nil
}

// MissionOptions selects what RunMissionPublisher sends.
type MissionOptions struct {
	MissionPath string // publish every waypoint in the file
	RemoveDoc   string // remove one waypoint document
	State       string // publish only the state document
}

// RunMissionPublisher publishes waypoints and state onto the
// synchronization channel.
func RunMissionPublisher(opts MissionOptions) error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.PublisherClientID)
	client := mqtt.NewClient(mqttOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("publisher: connected to MQTT broker at %s", cfg.MQTT.Broker)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := missionPublisher{client: client, cfg: cfg.MQTT}

	if opts.RemoveDoc != "" {
		return p.remove(ctx, opts.RemoveDoc)
	}
	if opts.State != "" {
		return p.state(ctx, defaultStateDoc, opts.State)
	}
	if opts.MissionPath == "" {
		return fmt.Errorf("nothing to publish: give a mission file, -remove or -state")
	}

	m, err := LoadMission(opts.MissionPath)
	if err != nil {
		return err
	}
	return p.publish(ctx, m)
}

type missionPublisher struct {
	client mqtt.Client
	cfg    config.MQTTConfig
}

func (p missionPublisher) publish(ctx context.Context, m *Mission) error {
	for _, wp := range m.Waypoints {
		fields, err := json.Marshal(map[string]any{"lat": wp.Lat, "lng": wp.Lng, "id": *wp.ID})
		if err != nil {
			return err
		}
		env := remote.Envelope{Msg: remote.MsgAdded, Fields: fields}
		if err := remote.Publish(ctx, p.client, p.cfg.TopicPrefix, p.cfg.WaypointCollection, wp.DocID, env); err != nil {
			return fmt.Errorf("publish waypoint %s: %w", wp.DocID, err)
		}
		log.Printf("publisher: waypoint %s id=%d (%.6f, %.6f)", wp.DocID, *wp.ID, wp.Lat, wp.Lng)
	}
	if m.State != "" {
		return p.state(ctx, m.StateDoc, m.State)
	}
	return nil
}

func (p missionPublisher) state(ctx context.Context, docID, state string) error {
	fields, err := json.Marshal(map[string]string{"state": state})
	if err != nil {
		return err
	}
	env := remote.Envelope{Msg: remote.MsgAdded, Fields: fields}
	if err := remote.Publish(ctx, p.client, p.cfg.TopicPrefix, p.cfg.StateCollection, docID, env); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	log.Printf("publisher: state %s", state)
	return nil
}

func (p missionPublisher) remove(ctx context.Context, docID string) error {
	env := remote.Envelope{Msg: remote.MsgRemoved}
	if err := remote.Publish(ctx, p.client, p.cfg.TopicPrefix, p.cfg.WaypointCollection, docID, env); err != nil {
		return fmt.Errorf("remove waypoint %s: %w", docID, err)
	}
	if err := remote.ClearRetained(ctx, p.client, p.cfg.TopicPrefix, p.cfg.WaypointCollection, docID); err != nil {
		return fmt.Errorf("clear retained %s: %w", docID, err)
	}
	log.Printf("publisher: removed waypoint %s", docID)
	return nil
}
