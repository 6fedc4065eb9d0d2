// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/rover_navigator/internal/actuator"
	"github.com/relabs-tech/rover_navigator/internal/config"
	"github.com/relabs-tech/rover_navigator/internal/gps"
)

type flakyProvider struct {
	mu    sync.Mutex
	runs  int
	fails int
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) Run(ctx context.Context, l gps.Listener) error {
	p.mu.Lock()
	p.runs++
	fail := p.runs <= p.fails
	p.mu.Unlock()
	if fail {
		return errors.New("unplugged")
	}
	l.UpdatePosition(gps.Fix{Latitude: 1, Longitude: 2, HasAccuracy: true, AccuracyMeters: 3})
	<-ctx.Done()
	return nil
}

type countingListener struct {
	mu    sync.Mutex
	fixes int
	lost  []error
}

func (l *countingListener) UpdatePosition(gps.Fix) {
	l.mu.Lock()
	l.fixes++
	l.mu.Unlock()
}

func (l *countingListener) PositionLost(err error) {
	l.mu.Lock()
	l.lost = append(l.lost, err)
	l.mu.Unlock()
}

func (l *countingListener) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fixes, len(l.lost)
}

func TestRunProvider_RetriesAndReportsLoss(t *testing.T) {
	p := &flakyProvider{fails: 2}
	l := &countingListener{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		runProvider(ctx, p, l, time.Millisecond, 4*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		fixes, lost := l.counts()
		if fixes == 1 {
			if lost != 2 {
				t.Fatalf("lost=%d want 2", lost)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("provider never recovered: fixes=%d lost=%d", fixes, lost)
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runProvider did not return after cancel")
	}
	if _, lost := l.counts(); lost != 2 {
		t.Fatalf("cancellation must not report a loss, lost=%d", lost)
	}
}

func TestOpenActuator_Log(t *testing.T) {
	sink, err := openActuator(config.ActuatorConfig{Type: config.ActuatorLog})
	if err != nil {
		t.Fatalf("openActuator: %v", err)
	}
	if _, ok := sink.(*actuator.LogSink); !ok {
		t.Fatalf("sink=%T want *actuator.LogSink", sink)
	}
	if _, err := openActuator(config.ActuatorConfig{Type: "can"}); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestNewProvider(t *testing.T) {
	if _, ok := newProvider(config.GPSConfig{Source: config.GPSSourceMock}).(*gps.MockProvider); !ok {
		t.Fatalf("mock source did not build a MockProvider")
	}
	if _, ok := newProvider(config.GPSConfig{Source: config.GPSSourceNMEA, SerialPort: "/dev/null"}).(*gps.NMEAProvider); !ok {
		t.Fatalf("nmea source did not build an NMEAProvider")
	}
}
