// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package watchdog

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/rover_navigator/internal/steering"
)

// DefaultPeriod is how often the pulse checks for fresh decisions.
const DefaultPeriod = 1500 * time.Millisecond

// Sink receives the forced stop decision.
type Sink interface {
	Send(steering.Decision) error
}

// Watchdog forces a stop when the control loop stops producing decisions.
// It never blocks on the loop: the loop only flips an atomic flag.
type Watchdog struct {
	period time.Duration
	sink   Sink

	// OnForcedStop, when set, is called after every forced stop with the
	// result of the send.
	OnForcedStop func(err error)

	produced atomic.Bool
	fired    atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(period time.Duration, sink Sink) *Watchdog {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Watchdog{period: period, sink: sink}
}

func (w *Watchdog) Period() time.Duration { return w.period }

// MarkProduced records that a control decision was just emitted.
func (w *Watchdog) MarkProduced() { w.produced.Store(true) }

// ForcedStops returns how many times the watchdog had to stop the vehicle.
func (w *Watchdog) ForcedStops() uint64 { return w.fired.Load() }

// Start launches the periodic check. Calling Start on a running watchdog is
// a no-op.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.period)
		defer ticker.Stop()
		for {
			select {
			case <-childCtx.Done():
				return
			case <-ticker.C:
				w.pulse()
			}
		}
	}()
}

// Stop cancels the timer and waits for the goroutine. It is idempotent.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
}

// pulse runs one firing and reports whether a stop was forced.
func (w *Watchdog) pulse() bool {
	if w.produced.Swap(false) {
		return false
	}

	w.fired.Add(1)
	err := w.sink.Send(steering.Stop)
	if err != nil {
		log.Printf("watchdog: no decision in %v, forced stop failed: %v", w.period, err)
	} else {
		log.Printf("watchdog: no decision in %v, vehicle stopped", w.period)
	}
	if w.OnForcedStop != nil {
		w.OnForcedStop(err)
	}
	return true
}
