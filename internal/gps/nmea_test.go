// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

func nmeaLine(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

func mustParse(t *testing.T, payload string) nmea.Sentence {
	t.Helper()
	s, err := nmea.Parse(nmeaLine(payload))
	if err != nil {
		t.Fatalf("parse %q: %v", payload, err)
	}
	return s
}

type recordingListener struct {
	fixes []Fix
	lost  []error
}

func (r *recordingListener) UpdatePosition(f Fix)   { r.fixes = append(r.fixes, f) }
func (r *recordingListener) PositionLost(err error) { r.lost = append(r.lost, err) }

const (
	rmcValid  = "GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"
	rmcVoid   = "GPRMC,123520,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"
	rmcStill  = "GPRMC,123521,A,4807.038,N,01131.000,E,000.0,084.4,230394,003.1,W"
	ggaHDOP09 = "GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"
	ggaNoFix  = "GNGGA,123519,4807.038,N,01131.000,E,0,00,0.9,545.4,M,46.9,M,,"
	gst       = "GPGST,123519,1.2,3.0,2.0,45.0,1.5,2.0,4.0"
)

func TestNMEAState_RMCWithoutAccuracy(t *testing.T) {
	st := newNMEAState(NMEAConfig{UERE: 5, MinCourseSpeedKnots: 0.5})
	fix, ok, lost := st.apply(time.Now(), mustParse(t, rmcValid))
	if !ok || lost {
		t.Fatalf("ok=%v lost=%v want fix", ok, lost)
	}
	if fix.HasAccuracy {
		t.Fatalf("no GGA/GST seen, accuracy must be absent")
	}
	if math.Abs(fix.Latitude-48.1173) > 1e-4 || math.Abs(fix.Longitude-11.5167) > 1e-4 {
		t.Fatalf("unexpected position %f,%f", fix.Latitude, fix.Longitude)
	}
	if !fix.HasBearing || fix.BearingDegrees != float32(84.4) {
		t.Fatalf("bearing=%v/%v want 84.4", fix.HasBearing, fix.BearingDegrees)
	}
}

func TestNMEAState_AccuracyFromHDOP(t *testing.T) {
	st := newNMEAState(NMEAConfig{UERE: 5})
	if _, ok, _ := st.apply(time.Now(), mustParse(t, ggaHDOP09)); ok {
		t.Fatalf("GGA alone must not emit a fix")
	}
	fix, ok, _ := st.apply(time.Now(), mustParse(t, rmcValid))
	if !ok || !fix.HasAccuracy {
		t.Fatalf("expected fix with accuracy")
	}
	if math.Abs(float64(fix.AccuracyMeters)-4.5) > 1e-4 {
		t.Fatalf("accuracy=%v want 4.5", fix.AccuracyMeters)
	}

	st.apply(time.Now(), mustParse(t, ggaNoFix))
	fix, _, _ = st.apply(time.Now(), mustParse(t, rmcValid))
	if fix.HasAccuracy {
		t.Fatalf("GGA without fix must drop the HDOP estimate")
	}
}

func TestNMEAState_GSTPreferredOverHDOP(t *testing.T) {
	st := newNMEAState(NMEAConfig{UERE: 5})
	st.apply(time.Now(), mustParse(t, ggaHDOP09))
	st.apply(time.Now(), mustParse(t, gst))
	fix, ok, _ := st.apply(time.Now(), mustParse(t, rmcValid))
	if !ok {
		t.Fatalf("expected fix")
	}
	if math.Abs(float64(fix.AccuracyMeters)-2.5) > 1e-4 {
		t.Fatalf("accuracy=%v want 2.5 (hypot of 1.5, 2.0)", fix.AccuracyMeters)
	}
}

func TestNMEAState_NoBearingWhenStill(t *testing.T) {
	st := newNMEAState(NMEAConfig{MinCourseSpeedKnots: 0.5})
	fix, ok, _ := st.apply(time.Now(), mustParse(t, rmcStill))
	if !ok {
		t.Fatalf("expected fix")
	}
	if fix.HasBearing {
		t.Fatalf("stationary receiver must not report a bearing")
	}
}

func TestNMEAState_VoidReportedOnceOnTransition(t *testing.T) {
	st := newNMEAState(NMEAConfig{})
	if _, _, lost := st.apply(time.Now(), mustParse(t, rmcVoid)); lost {
		t.Fatalf("void before any valid fix is not a loss")
	}
	st.apply(time.Now(), mustParse(t, rmcValid))
	if _, ok, lost := st.apply(time.Now(), mustParse(t, rmcVoid)); ok || !lost {
		t.Fatalf("ok=%v lost=%v want lost", ok, lost)
	}
	if _, _, lost := st.apply(time.Now(), mustParse(t, rmcVoid)); lost {
		t.Fatalf("repeated void must not be reported again")
	}
}

func TestNMEAProvider_ReadStream(t *testing.T) {
	stream := strings.Join([]string{
		"garbage without dollar",
		nmeaLine(ggaHDOP09),
		"$GPRMC,broken*00",
		nmeaLine(rmcValid),
		nmeaLine(rmcVoid),
		"",
	}, "\r\n")

	p := NewNMEA(NMEAConfig{PortName: "test"})
	l := &recordingListener{}
	err := p.read(context.Background(), strings.NewReader(stream), l)
	if !errors.Is(err, ErrProviderFailed) {
		t.Fatalf("EOF must surface as provider failure, got %v", err)
	}
	if len(l.fixes) != 1 {
		t.Fatalf("fixes=%d want 1", len(l.fixes))
	}
	if len(l.lost) != 1 || !errors.Is(l.lost[0], ErrNoFix) {
		t.Fatalf("lost=%v want one ErrNoFix", l.lost)
	}
}

func TestNMEAProvider_ReadStopsQuietlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewNMEA(NMEAConfig{PortName: "test"})
	if err := p.read(ctx, strings.NewReader(""), &recordingListener{}); err != nil {
		t.Fatalf("read after cancel returned %v, want nil", err)
	}
}

func TestParseGST_RegisteredWithLibrary(t *testing.T) {
	s := mustParse(t, gst)
	if s.DataType() != typeGST || s.TalkerID() != "GP" {
		t.Fatalf("type=%s talker=%s", s.DataType(), s.TalkerID())
	}
	m, ok := s.(gstSentence)
	if !ok {
		t.Fatalf("parsed %T, want gstSentence", s)
	}
	if m.RMS != 1.2 || m.LatitudeError != 1.5 || m.LongitudeError != 2.0 || m.AltitudeError != 4.0 {
		t.Fatalf("gst=%+v", m)
	}

	if _, err := nmea.Parse(nmeaLine("GPGST,123519,1.2,3.0,2.0,45.0,x,2.0,4.0")); err == nil {
		t.Fatalf("expected error for non-numeric latitude error")
	}
}
