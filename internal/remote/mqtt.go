// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const DefaultTopicPrefix = "rover/ddp"

// Envelope message names.
const (
	MsgAdded   = "added"
	MsgChanged = "changed"
	MsgRemoved = "removed"
)

// Envelope is the payload of one synchronization message. The collection
// and document id travel in the topic.
type Envelope struct {
	Msg     string          `json:"msg"`
	Fields  json.RawMessage `json:"fields,omitempty"`
	Cleared []string        `json:"cleared,omitempty"`
}

// Topic returns the topic of a document.
func Topic(prefix, collection, docID string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + collection + "/" + docID
}

// DecodeMessage converts a message received on prefix/collection/docID into
// an Event. Undecodable messages yield an error wrapping ErrMalformedEvent.
func DecodeMessage(prefix, topic string, payload []byte) (Event, error) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return nil, fmt.Errorf("topic %q outside %q: %w", topic, prefix, ErrMalformedEvent)
	}
	collection, docID, ok := strings.Cut(rest, "/")
	if !ok || collection == "" || docID == "" || strings.Contains(docID, "/") {
		return nil, fmt.Errorf("topic %q: want <collection>/<document>: %w", topic, ErrMalformedEvent)
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("topic %q: %v: %w", topic, err, ErrMalformedEvent)
	}
	switch env.Msg {
	case MsgAdded:
		return Added{Collection: collection, DocumentID: docID, Fields: env.Fields}, nil
	case MsgChanged:
		return Changed{Collection: collection, DocumentID: docID, Fields: env.Fields, Cleared: env.Cleared}, nil
	case MsgRemoved:
		return Removed{Collection: collection, DocumentID: docID}, nil
	default:
		return nil, fmt.Errorf("topic %q: unknown msg %q: %w", topic, env.Msg, ErrMalformedEvent)
	}
}

// MQTTConfig configures the synchronization channel.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// MQTTChannel delivers synchronization events from an MQTT broker to a
// handler. Paho reconnects on its own; every (re)connect resubscribes and
// emits Connected.
type MQTTChannel struct {
	cfg    MQTTConfig
	handle func(Event)
	client mqtt.Client
}

func NewMQTTChannel(cfg MQTTConfig, handle func(Event)) *MQTTChannel {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	ch := &MQTTChannel{cfg: cfg, handle: handle}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetCleanSession(true).
		SetOnConnectHandler(ch.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			ch.handle(Disconnected{Err: err})
		})
	ch.client = mqtt.NewClient(opts)
	return ch
}

// Client exposes the underlying MQTT client so notifications can share the
// session.
func (ch *MQTTChannel) Client() mqtt.Client { return ch.client }

// Connect starts the session. With connect retry enabled paho keeps trying
// in the background, so Connect only waits until ctx is done or the first
// attempt resolves.
func (ch *MQTTChannel) Connect(ctx context.Context) error {
	token := ch.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect %s: %w", ch.cfg.Broker, err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Close disconnects, giving in-flight messages a short grace period.
func (ch *MQTTChannel) Close() {
	ch.client.Disconnect(250)
	log.Println("remote: mqtt disconnected")
}

func (ch *MQTTChannel) onConnect(c mqtt.Client) {
	// Connected goes first so the retained documents delivered right after
	// the subscription are not dropped as arriving while disconnected.
	ch.handle(Connected{})

	filter := strings.TrimSuffix(ch.cfg.TopicPrefix, "/") + "/#"
	token := c.Subscribe(filter, 1, ch.onMessage)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			ch.handle(Error{Err: fmt.Errorf("subscribe %s: %w", filter, err)})
			return
		}
		log.Printf("remote: subscribed to %s", filter)
	}()
}

func (ch *MQTTChannel) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// Empty payloads clear a retained document.
	if len(msg.Payload()) == 0 {
		return
	}
	ev, err := DecodeMessage(ch.cfg.TopicPrefix, msg.Topic(), msg.Payload())
	if err != nil {
		ch.handle(Error{Err: err})
		return
	}
	if a, ok := ev.(Added); ok {
		a.Replayed = msg.Retained()
		ev = a
	}
	ch.handle(ev)
}

// Publish sends an envelope for a document. Only added envelopes are
// retained, so a navigator that connects late still receives every complete
// document; a retained partial change would replace it.
func Publish(ctx context.Context, c mqtt.Client, prefix, collection, docID string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	retain := env.Msg == MsgAdded
	return waitToken(ctx, c.Publish(Topic(prefix, collection, docID), 1, retain, payload))
}

// ClearRetained removes the retained message of a document.
func ClearRetained(ctx context.Context, c mqtt.Client, prefix, collection, docID string) error {
	return waitToken(ctx, c.Publish(Topic(prefix, collection, docID), 1, true, []byte{}))
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
