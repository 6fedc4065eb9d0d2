// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package remote

import (
	"encoding/json"
	"errors"
)

// ErrMalformedEvent marks a payload that is missing required fields or has
// fields of the wrong type.
var ErrMalformedEvent = errors.New("malformed event")

// Event is one message from the synchronization channel. The concrete types
// below are the only implementations.
type Event interface {
	isEvent()
}

// Added announces a new document. Replayed is set when the channel
// delivers a stored copy of the document rather than a live addition.
type Added struct {
	Collection string
	DocumentID string
	Fields     json.RawMessage
	Replayed   bool
}

// Changed carries the fields of a document that were set, plus the names of
// fields that were cleared.
type Changed struct {
	Collection string
	DocumentID string
	Fields     json.RawMessage
	Cleared    []string
}

// Removed announces that a document was deleted.
type Removed struct {
	Collection string
	DocumentID string
}

// Connected is sent each time the channel (re)establishes its session.
type Connected struct{}

// Disconnected is sent when the session drops.
type Disconnected struct {
	Err error
}

// Error reports a channel level failure, such as an undecodable message.
type Error struct {
	Err error
}

func (Added) isEvent()        {}
func (Changed) isEvent()      {}
func (Removed) isEvent()      {}
func (Connected) isEvent()    {}
func (Disconnected) isEvent() {}
func (Error) isEvent()        {}
