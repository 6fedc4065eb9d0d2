// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"sync"
	"time"

	"github.com/relabs-tech/rover_navigator/internal/geo"
)

// Fix is one reading from the positioning provider, suitable for JSON and MQTT.
type Fix struct {
	Latitude       float64   `json:"lat"`          // decimal degrees
	Longitude      float64   `json:"lon"`          // decimal degrees
	HasAccuracy    bool      `json:"has_accuracy"` // false when the receiver gave no error estimate
	AccuracyMeters float32   `json:"accuracy_m"`   // horizontal, 1 sigma
	HasBearing     bool      `json:"has_bearing"`  // course is only meaningful while moving
	BearingDegrees float32   `json:"bearing_deg"`  // course over ground, true north
	Time           time.Time `json:"time"`
}

func (f Fix) Point() geo.Point {
	return geo.Point{Lat: f.Latitude, Lng: f.Longitude}
}

// Latest holds the most recent fix. Readers always observe a whole fix as it
// was written, never a mix of two.
type Latest struct {
	mu   sync.RWMutex
	fix  Fix
	have bool
}

func (l *Latest) Set(f Fix) {
	l.mu.Lock()
	l.fix = f
	l.have = true
	l.mu.Unlock()
}

// Clear drops the fix, e.g. after the provider failed.
func (l *Latest) Clear() {
	l.mu.Lock()
	l.fix = Fix{}
	l.have = false
	l.mu.Unlock()
}

func (l *Latest) Get() (Fix, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fix, l.have
}
