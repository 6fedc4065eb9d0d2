// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/rover_navigator/internal/config"
	"github.com/relabs-tech/rover_navigator/internal/gps"
)

// consoleListener prints every fix, for checking a receiver in the field.
type consoleListener struct{}

func (consoleListener) UpdatePosition(f gps.Fix) {
	acc, brg := "   n/a", "  n/a"
	if f.HasAccuracy {
		acc = fmt.Sprintf("%5.1fm", f.AccuracyMeters)
	}
	if f.HasBearing {
		brg = fmt.Sprintf("%5.1f", f.BearingDegrees)
	}
	fmt.Printf("LAT=%11.6f  LNG=%11.6f  ACC=%s  BRG=%s\n", f.Latitude, f.Longitude, acc, brg)
}

func (consoleListener) PositionLost(err error) {
	fmt.Printf("POSITION LOST: %v\n", err)
}

// RunGPSConsole runs the configured positioning provider and prints its
// fixes until interrupted.
func RunGPSConsole() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := newProvider(cfg.GPS)
	log.Printf("gps console: reading from %s", p.Name())
	if err := p.Run(ctx, consoleListener{}); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
