// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/rover_navigator/internal/geo"
)

func TestLatest_SetGetClear(t *testing.T) {
	var l Latest
	if _, ok := l.Get(); ok {
		t.Fatalf("zero Latest must be empty")
	}
	l.Set(Fix{Latitude: 1, Longitude: 2})
	f, ok := l.Get()
	if !ok || f.Latitude != 1 || f.Longitude != 2 {
		t.Fatalf("Get=%+v,%v", f, ok)
	}
	l.Clear()
	if _, ok := l.Get(); ok {
		t.Fatalf("Clear must drop the fix")
	}
}

func TestLatest_ReadersNeverSeeTornFix(t *testing.T) {
	var l Latest
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			v := float64(i)
			l.Set(Fix{Latitude: v, Longitude: v})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			if f, ok := l.Get(); ok && f.Latitude != f.Longitude {
				t.Errorf("torn read: %+v", f)
				return
			}
		}
	}()
	wg.Wait()
}

func TestMockProvider_StaysOnCircle(t *testing.T) {
	origin := geo.Point{Lat: 47.4745, Lng: 19.0620}
	m := NewMockProvider(MockConfig{Origin: origin, RadiusMeters: 30, Period: 40 * time.Second})
	for _, dt := range []time.Duration{0, 5 * time.Second, 17 * time.Second, 39 * time.Second} {
		f := m.At(m.start.Add(dt))
		if d := geo.Distance(origin, f.Point()); math.Abs(d-30) > 0.05 {
			t.Fatalf("dt=%v distance=%.3f want 30", dt, d)
		}
		if !f.HasAccuracy || !f.HasBearing {
			t.Fatalf("mock fix must carry accuracy and bearing")
		}
	}
}
