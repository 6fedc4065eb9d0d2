// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"errors"
	"log"
	"sync"

	"github.com/relabs-tech/rover_navigator/internal/steering"
)

// ErrNotConnected is returned by sinks whose link is closed or never came up.
var ErrNotConnected = errors.New("actuator not connected")

// NeutralAngle is the servo angle for "speed 0" and "wheels straight".
const NeutralAngle = 90

// Sink consumes control decisions. Implementations are safe for concurrent
// use because both the navigation loop and the watchdog send.
type Sink interface {
	Send(steering.Decision) error
	Close() error
}

// ServoAngles maps a decision onto the two hobby servos of the rover:
// the throttle servo runs forward below neutral, steering adds to neutral.
func ServoAngles(d steering.Decision) (speedAngle, turningAngle int) {
	return clampAngle(NeutralAngle - d.Speed), clampAngle(NeutralAngle + d.Turning)
}

func clampAngle(a int) int {
	if a < 0 {
		return 0
	}
	if a > 180 {
		return 180
	}
	return a
}

// LogSink only logs decisions. Used for dry runs without hardware.
type LogSink struct {
	mu   sync.Mutex
	last steering.Decision
	have bool
}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Send(d steering.Decision) error {
	s.mu.Lock()
	changed := !s.have || s.last != d
	s.last = d
	s.have = true
	s.mu.Unlock()

	if changed {
		speed, turn := ServoAngles(d)
		log.Printf("actuator: %v (servo angles %d/%d)", d, speed, turn)
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
