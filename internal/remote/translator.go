// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package remote

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/rover_navigator/internal/waypoint"
)

const (
	DefaultWaypointCollection = "directionwaypoints"
	DefaultStateCollection    = "robotstate"

	// StopState is the state document value that pauses the vehicle.
	StopState = "Stop"

	// DefaultResyncWindow is how long after a reconnect an added document
	// that is already known is treated as a replay.
	DefaultResyncWindow = 10 * time.Second
)

// Target receives the store and pause mutations decoded from the channel.
// nav.Controller implements it. SyncWaypoint adds the waypoint or, when the
// key is already stored, overwrites its fields.
type Target interface {
	AddWaypoint(waypoint.Waypoint)
	SyncWaypoint(waypoint.Waypoint)
	UpdateWaypoint(key string, u waypoint.Update)
	RemoveWaypoint(key string)
	SetPaused(bool)
}

// Reporter receives channel status messages for the user. It may be nil.
type Reporter func(msg string)

// Translator maps synchronization events onto a Target. Handle may be called
// from the channel's goroutine; Target implementations enqueue and return.
type Translator struct {
	target             Target
	report             Reporter
	waypointCollection string
	stateCollection    string

	// ResyncWindow bounds the replay period after a reconnect.
	ResyncWindow time.Duration
	now          func() time.Time

	connected   atomic.Bool
	resyncUntil atomic.Int64 // unix nanos
	malformed   atomic.Uint64
	ignored     atomic.Uint64
	replayed    atomic.Uint64
}

func NewTranslator(target Target, waypointCollection, stateCollection string, report Reporter) *Translator {
	if waypointCollection == "" {
		waypointCollection = DefaultWaypointCollection
	}
	if stateCollection == "" {
		stateCollection = DefaultStateCollection
	}
	t := &Translator{
		target:             target,
		report:             report,
		waypointCollection: waypointCollection,
		stateCollection:    stateCollection,
		ResyncWindow:       DefaultResyncWindow,
		now:                time.Now,
	}
	t.connected.Store(true)
	return t
}

// Connected reports whether mutations are currently applied.
func (t *Translator) Connected() bool { return t.connected.Load() }

// Malformed counts dropped payloads.
func (t *Translator) Malformed() uint64 { return t.malformed.Load() }

// Ignored counts events for unknown collections.
func (t *Translator) Ignored() uint64 { return t.ignored.Load() }

// Replayed counts added documents applied as replays.
func (t *Translator) Replayed() uint64 { return t.replayed.Load() }

// Resyncing reports whether a reconnect replay window is open.
func (t *Translator) Resyncing() bool { return t.now().UnixNano() < t.resyncUntil.Load() }

// Handle applies one event. Mutations arriving while disconnected are
// dropped; the store keeps its state until the session resumes.
func (t *Translator) Handle(ev Event) {
	switch e := ev.(type) {
	case Connected:
		// The server replays every document after a reconnect.
		if !t.connected.Swap(true) {
			t.resyncUntil.Store(t.now().Add(t.ResyncWindow).UnixNano())
		}
		t.say("Connected to server.")
	case Disconnected:
		t.connected.Store(false)
		if e.Err != nil {
			log.Printf("remote: disconnected: %v", e.Err)
		}
		t.say("Disconnected from server.")
	case Error:
		t.malformed.Add(1)
		log.Printf("remote: channel error: %v", e.Err)
	case Added:
		if t.suspended(ev) {
			return
		}
		t.added(e)
	case Changed:
		if t.suspended(ev) {
			return
		}
		t.changed(e)
	case Removed:
		if t.suspended(ev) {
			return
		}
		t.removed(e)
	default:
		log.Printf("remote: unknown event %T", ev)
	}
}

func (t *Translator) suspended(ev Event) bool {
	if t.connected.Load() {
		return false
	}
	log.Printf("remote: disconnected, dropping %T", ev)
	return true
}

func (t *Translator) added(e Added) {
	switch e.Collection {
	case t.waypointCollection:
		wp, err := ParseWaypoint(e.DocumentID, e.Fields)
		if err != nil {
			t.drop(err)
			return
		}
		if e.Replayed || t.Resyncing() {
			t.replayed.Add(1)
			t.target.SyncWaypoint(wp)
			return
		}
		t.target.AddWaypoint(wp)
	case t.stateCollection:
		t.applyState(e.DocumentID, e.Fields)
	default:
		t.ignore(e.Collection, e.DocumentID)
	}
}

func (t *Translator) changed(e Changed) {
	switch e.Collection {
	case t.waypointCollection:
		u, err := ParseUpdate(e.DocumentID, e.Fields)
		if err != nil {
			t.drop(err)
			return
		}
		if u.Empty() {
			if len(e.Cleared) > 0 {
				log.Printf("remote: waypoint %s cleared %v, ignoring", e.DocumentID, e.Cleared)
			}
			return
		}
		t.target.UpdateWaypoint(e.DocumentID, u)
	case t.stateCollection:
		t.applyState(e.DocumentID, e.Fields)
	default:
		t.ignore(e.Collection, e.DocumentID)
	}
}

func (t *Translator) removed(e Removed) {
	switch e.Collection {
	case t.waypointCollection:
		t.target.RemoveWaypoint(e.DocumentID)
	case t.stateCollection:
		log.Printf("remote: state document %s removed, keeping current state", e.DocumentID)
	default:
		t.ignore(e.Collection, e.DocumentID)
	}
}

func (t *Translator) applyState(docID string, fields json.RawMessage) {
	state, ok, err := ParseState(docID, fields)
	if err != nil {
		t.drop(err)
		return
	}
	if !ok {
		return
	}
	t.target.SetPaused(state == StopState)
}

func (t *Translator) drop(err error) {
	t.malformed.Add(1)
	log.Printf("remote: dropping event: %v", err)
}

func (t *Translator) ignore(collection, docID string) {
	t.ignored.Add(1)
	log.Printf("remote: ignoring %s/%s", collection, docID)
}

func (t *Translator) say(msg string) {
	log.Printf("remote: %s", msg)
	if t.report != nil {
		t.report(msg)
	}
}

type waypointFields struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
	ID  *int     `json:"id"`
}

func decodeFields(docID string, raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("document %s: no fields: %w", docID, ErrMalformedEvent)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("document %s: %v: %w", docID, err, ErrMalformedEvent)
	}
	return nil
}

// ParseWaypoint decodes an added waypoint document. lat, lng and id are all
// required.
func ParseWaypoint(docID string, raw json.RawMessage) (waypoint.Waypoint, error) {
	var f waypointFields
	if err := decodeFields(docID, raw, &f); err != nil {
		return waypoint.Waypoint{}, err
	}
	if f.Lat == nil || f.Lng == nil || f.ID == nil {
		return waypoint.Waypoint{}, fmt.Errorf("document %s: lat, lng and id are required: %w", docID, ErrMalformedEvent)
	}
	return waypoint.Waypoint{Key: docID, ID: *f.ID, Lat: *f.Lat, Lng: *f.Lng}, nil
}

// ParseUpdate decodes the present subset of lat, lng and id.
func ParseUpdate(docID string, raw json.RawMessage) (waypoint.Update, error) {
	if len(raw) == 0 {
		return waypoint.Update{}, nil
	}
	var f waypointFields
	if err := decodeFields(docID, raw, &f); err != nil {
		return waypoint.Update{}, err
	}
	return waypoint.Update{Lat: f.Lat, Lng: f.Lng, ID: f.ID}, nil
}

// ParseState returns the state field of a state document, if present.
func ParseState(docID string, raw json.RawMessage) (string, bool, error) {
	var f struct {
		State *string `json:"state"`
	}
	if err := decodeFields(docID, raw, &f); err != nil {
		return "", false, err
	}
	if f.State == nil {
		return "", false, nil
	}
	return *f.State, true, nil
}
