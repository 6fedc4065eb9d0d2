// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rover_navigator/internal/nav"
)

func TestTopic(t *testing.T) {
	if got := Topic("rover/ddp/", "directionwaypoints", "abc"); got != "rover/ddp/directionwaypoints/abc" {
		t.Fatalf("Topic=%q", got)
	}
}

func TestDecodeMessage(t *testing.T) {
	const prefix = "rover/ddp"

	ev, err := DecodeMessage(prefix, "rover/ddp/directionwaypoints/a1", []byte(`{"msg":"added","fields":{"lat":1,"lng":2,"id":0}}`))
	if err != nil {
		t.Fatalf("added: %v", err)
	}
	added, ok := ev.(Added)
	if !ok || added.Collection != "directionwaypoints" || added.DocumentID != "a1" {
		t.Fatalf("added=%#v", ev)
	}
	if _, err := ParseWaypoint(added.DocumentID, added.Fields); err != nil {
		t.Fatalf("fields did not survive decoding: %v", err)
	}

	ev, err = DecodeMessage(prefix, "rover/ddp/directionwaypoints/a1", []byte(`{"msg":"changed","fields":{"id":4},"cleared":["lat"]}`))
	if err != nil {
		t.Fatalf("changed: %v", err)
	}
	if ch, ok := ev.(Changed); !ok || len(ch.Cleared) != 1 || ch.Cleared[0] != "lat" {
		t.Fatalf("changed=%#v", ev)
	}

	ev, err = DecodeMessage(prefix, "rover/ddp/robotstate/s", []byte(`{"msg":"removed"}`))
	if err != nil {
		t.Fatalf("removed: %v", err)
	}
	if ev != (Removed{Collection: "robotstate", DocumentID: "s"}) {
		t.Fatalf("removed=%#v", ev)
	}
}

func TestDecodeMessage_Malformed(t *testing.T) {
	cases := []struct {
		name    string
		topic   string
		payload string
	}{
		{"foreign prefix", "other/directionwaypoints/a", `{"msg":"added"}`},
		{"no document", "rover/ddp/directionwaypoints", `{"msg":"added"}`},
		{"nested document", "rover/ddp/directionwaypoints/a/b", `{"msg":"added"}`},
		{"bad json", "rover/ddp/directionwaypoints/a", `{"msg":`},
		{"unknown msg", "rover/ddp/directionwaypoints/a", `{"msg":"ready"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeMessage("rover/ddp", tc.topic, []byte(tc.payload))
			if !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("err=%v want ErrMalformedEvent", err)
			}
		})
	}
}

// fakeClient satisfies mqtt.Client; only the methods the notifier uses are
// implemented.
type fakeClient struct {
	mqtt.Client
	open      bool
	published []string
	payloads  [][]byte
	retained  []bool
	log       *[]string
}

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (f *fakeClient) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	if f.log != nil {
		*f.log = append(*f.log, "subscribe "+topic)
	}
	return doneToken{}
}

func (f *fakeClient) IsConnectionOpen() bool { return f.open }

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	f.published = append(f.published, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	f.retained = append(f.retained, retained)
	return doneToken{}
}

func TestMQTTNotifier(t *testing.T) {
	client := &fakeClient{}
	n := NewMQTTNotifier(client, "")

	n.Notify(nav.Notification{Kind: nav.KindArrived, Message: "Reached waypoint a"})
	if len(client.published) != 0 {
		t.Fatalf("published while disconnected")
	}

	client.open = true
	n.Notify(nav.Notification{Kind: nav.KindArrived, Message: "Reached waypoint a"})
	if len(client.published) != 1 || client.published[0] != DefaultNotifyTopic {
		t.Fatalf("published=%v", client.published)
	}
	var got nav.Notification
	if err := json.Unmarshal(client.payloads[0], &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.Kind != nav.KindArrived || got.Message != "Reached waypoint a" {
		t.Fatalf("notification=%+v", got)
	}
}

type fakeMessage struct {
	mqtt.Message
	topic    string
	payload  []byte
	retained bool
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }
func (m fakeMessage) Retained() bool  { return m.retained }

func TestMQTTChannel_ConnectedBeforeSubscribe(t *testing.T) {
	var order []string
	ch := &MQTTChannel{cfg: MQTTConfig{TopicPrefix: "rover/ddp"}, handle: func(ev Event) {
		if _, ok := ev.(Connected); ok {
			order = append(order, "connected")
		}
	}}
	ch.onConnect(&fakeClient{log: &order})

	if len(order) != 2 || order[0] != "connected" || order[1] != "subscribe rover/ddp/#" {
		t.Fatalf("order=%v", order)
	}
}

func TestMQTTChannel_RetainedAddIsReplayed(t *testing.T) {
	var got []Event
	ch := &MQTTChannel{cfg: MQTTConfig{TopicPrefix: "rover/ddp"}, handle: func(ev Event) { got = append(got, ev) }}
	payload := []byte(`{"msg":"added","fields":{"lat":1,"lng":2,"id":0}}`)

	ch.onMessage(nil, fakeMessage{topic: "rover/ddp/directionwaypoints/a", payload: payload, retained: true})
	ch.onMessage(nil, fakeMessage{topic: "rover/ddp/directionwaypoints/b", payload: payload})

	if len(got) != 2 {
		t.Fatalf("events=%d want 2", len(got))
	}
	if a := got[0].(Added); !a.Replayed {
		t.Fatalf("retained added not marked replayed: %#v", a)
	}
	if a := got[1].(Added); a.Replayed {
		t.Fatalf("live added marked replayed: %#v", a)
	}
}

func TestPublish_RetainsOnlyAdded(t *testing.T) {
	client := &fakeClient{}
	ctx := context.Background()
	envs := []Envelope{
		{Msg: MsgAdded, Fields: raw(`{"lat":1,"lng":2,"id":0}`)},
		{Msg: MsgChanged, Fields: raw(`{"id":3}`)},
		{Msg: MsgRemoved},
	}
	for _, env := range envs {
		if err := Publish(ctx, client, "rover/ddp", "directionwaypoints", "a", env); err != nil {
			t.Fatalf("publish %s: %v", env.Msg, err)
		}
	}
	want := []bool{true, false, false}
	for i := range want {
		if client.retained[i] != want[i] {
			t.Fatalf("retained=%v want %v", client.retained, want)
		}
	}
}
