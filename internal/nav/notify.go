// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package nav

import (
	"log"
	"time"

	"github.com/relabs-tech/rover_navigator/internal/steering"
	"github.com/relabs-tech/rover_navigator/internal/waypoint"
)

// Kind classifies a notification.
type Kind string

const (
	KindArrived         Kind = "arrived"
	KindTarget          Kind = "target"
	KindState           Kind = "state"
	KindDecision        Kind = "decision"
	KindWaypointAdded   Kind = "waypoint_added"
	KindWaypointChanged Kind = "waypoint_changed"
	KindWaypointRemoved Kind = "waypoint_removed"
	KindNotFound        Kind = "not_found"
	KindProtocolError   Kind = "protocol_error"
	KindActuatorError   Kind = "actuator_error"
	KindPositionLost    Kind = "position_lost"
	KindWatchdogStop    Kind = "watchdog_stop"
	KindChannel         Kind = "channel"
)

// Notification is a user-facing event published by the navigator.
type Notification struct {
	Kind     Kind               `json:"kind"`
	Message  string             `json:"message"`
	Waypoint *waypoint.Waypoint `json:"waypoint,omitempty"`
	Decision *steering.Decision `json:"decision,omitempty"`
	State    string             `json:"state,omitempty"`
	Time     time.Time          `json:"time"`
}

// Notifier receives notifications, mostly from the navigation goroutine and
// occasionally from the watchdog. Implementations must not block.
type Notifier interface {
	Notify(Notification)
}

// Notifiers fans a notification out to every member.
type Notifiers []Notifier

func (ns Notifiers) Notify(n Notification) {
	for _, x := range ns {
		if x != nil {
			x.Notify(n)
		}
	}
}

// LogNotifier writes notifications to the standard logger. Decisions are
// skipped, they are logged by the actuator.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notification) {
	if n.Kind == KindDecision {
		return
	}
	log.Printf("nav: [%s] %s", n.Kind, n.Message)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }
