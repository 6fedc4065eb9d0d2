// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"context"
	"errors"
)

var (
	// ErrProviderFailed marks the terminal failure of a positioning source.
	ErrProviderFailed = errors.New("positioning provider failed")
	// ErrNoFix is reported when the receiver flags its solution as void.
	ErrNoFix = errors.New("receiver has no valid fix")
)

// Listener receives the stream of fixes from a Provider.
type Listener interface {
	UpdatePosition(Fix)
	// PositionLost means no fresh position is available any more.
	PositionLost(err error)
}

// Provider is anything that can push position fixes over time.
type Provider interface {
	Name() string
	// Run blocks until ctx is done (returning nil) or the source fails for
	// good (returning an error wrapping ErrProviderFailed).
	Run(ctx context.Context, l Listener) error
}
