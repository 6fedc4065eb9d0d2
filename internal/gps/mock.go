// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"context"
	"math"
	"time"

	"github.com/relabs-tech/rover_navigator/internal/geo"
)

// MockConfig describes the simulated track of a MockProvider.
type MockConfig struct {
	Origin         geo.Point
	RadiusMeters   float64
	Period         time.Duration // time for one full circle
	Interval       time.Duration // time between fixes
	AccuracyMeters float32
}

// MockProvider generates a vehicle driving a smooth circle around Origin.
type MockProvider struct {
	cfg   MockConfig
	start time.Time
}

// NewMockProvider creates a mock positioning source that generates smoothly
// changing fixes.
func NewMockProvider(cfg MockConfig) *MockProvider {
	if cfg.RadiusMeters <= 0 {
		cfg.RadiusMeters = 20
	}
	if cfg.Period <= 0 {
		cfg.Period = 60 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if cfg.AccuracyMeters <= 0 {
		cfg.AccuracyMeters = 3
	}
	return &MockProvider{cfg: cfg, start: time.Now()}
}

func (m *MockProvider) Name() string { return "mock GPS" }

// At returns the simulated fix for the given instant.
func (m *MockProvider) At(t time.Time) Fix {
	elapsed := t.Sub(m.start).Seconds()
	angle := math.Mod(elapsed/m.cfg.Period.Seconds()*360, 360)

	// Position on the circle, heading tangent to it (clockwise).
	p := geo.Offset(m.cfg.Origin, angle, m.cfg.RadiusMeters)
	return Fix{
		Latitude:       p.Lat,
		Longitude:      p.Lng,
		HasAccuracy:    true,
		AccuracyMeters: m.cfg.AccuracyMeters,
		HasBearing:     true,
		BearingDegrees: float32(geo.NormalizeDegrees(angle + 90)),
		Time:           t,
	}
}

func (m *MockProvider) Run(ctx context.Context, l Listener) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			l.UpdatePosition(m.At(t))
		}
	}
}
