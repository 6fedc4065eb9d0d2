// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package steering

import (
	"fmt"
	"math"

	"github.com/relabs-tech/rover_navigator/internal/geo"
	"github.com/relabs-tech/rover_navigator/internal/gps"
	"github.com/relabs-tech/rover_navigator/internal/waypoint"
)

const (
	DefaultAccuracyThreshold = 10.0 // meters
	DefaultChaseSpeed        = 30
	DefaultMaxTurning        = 30
)

// Decision is the control output sent to the vehicle.
// Speed 0 stops, positive values drive forward; Turning is signed degrees.
type Decision struct {
	Speed   int `json:"speed"`
	Turning int `json:"turning"`
}

// Stop is the all-zero decision.
var Stop = Decision{}

func (d Decision) IsStop() bool { return d == Stop }

func (d Decision) String() string {
	return fmt.Sprintf("speed=%d turning=%+d", d.Speed, d.Turning)
}

// Reason tells which rule of the policy produced a decision.
type Reason int

const (
	ReasonPaused Reason = iota + 1
	ReasonNoTarget
	ReasonNoFix
	ReasonInaccurate
	ReasonChasing
)

func (r Reason) String() string {
	switch r {
	case ReasonPaused:
		return "paused"
	case ReasonNoTarget:
		return "no target"
	case ReasonNoFix:
		return "no fix"
	case ReasonInaccurate:
		return "inaccurate fix"
	case ReasonChasing:
		return "chasing"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Params are the tunables of the policy.
type Params struct {
	AccuracyThreshold float64 // fixes less accurate than this stop the vehicle
	ChaseSpeed        int
	MaxTurning        int
}

func DefaultParams() Params {
	return Params{
		AccuracyThreshold: DefaultAccuracyThreshold,
		ChaseSpeed:        DefaultChaseSpeed,
		MaxTurning:        DefaultMaxTurning,
	}
}

// Input is everything one control decision depends on.
type Input struct {
	Paused    bool
	Target    waypoint.Waypoint
	HasTarget bool
	Fix       gps.Fix
	HasFix    bool
}

// Compute applies the steering policy; the first matching rule wins.
// Arrival is not decided here: the caller marks reached waypoints before
// asking for a decision.
func Compute(in Input, p Params) (Decision, Reason) {
	if in.Paused {
		return Stop, ReasonPaused
	}
	if !in.HasTarget {
		return Stop, ReasonNoTarget
	}
	if !in.HasFix || !in.Fix.HasAccuracy {
		return Stop, ReasonNoFix
	}
	if float64(in.Fix.AccuracyMeters) > p.AccuracyThreshold {
		return Stop, ReasonInaccurate
	}

	turning := 0
	if in.Fix.HasBearing {
		target := geo.Point{Lat: in.Target.Lat, Lng: in.Target.Lng}
		bearing := geo.InitialBearing(in.Fix.Point(), target)
		turning = Turning(bearing, float64(in.Fix.BearingDegrees), p.MaxTurning)
	}
	return Decision{Speed: p.ChaseSpeed, Turning: turning}, ReasonChasing
}

// Turning returns the signed steering delta from heading toward bearing,
// rounded and clamped to [-limit, limit]. Both angles are in degrees.
//
// The heading is shifted by -360 when it exceeds the bearing, so the raw
// delta lands in [0, 360); deltas above 180 are wrapped by -360, giving
// (-180, 180].
func Turning(bearing, heading float64, limit int) int {
	bearing = geo.NormalizeDegrees(bearing)
	heading = geo.NormalizeDegrees(heading)
	if heading > bearing {
		heading -= 360
	}
	delta := bearing - heading
	if delta > 180 {
		delta -= 360
	}
	return clamp(int(math.Round(delta)), -limit, limit)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
