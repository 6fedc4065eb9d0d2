// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

// NMEAConfig holds configuration for the serial NMEA provider.
type NMEAConfig struct {
	PortName string
	BaudRate int
	// UERE is the user equivalent range error in meters, used to turn HDOP
	// into an accuracy estimate when the receiver does not emit GST.
	UERE float64
	// MinCourseSpeedKnots is the ground speed below which RMC course is
	// treated as noise.
	MinCourseSpeedKnots float64
}

// NMEAProvider reads NMEA 0183 sentences from a serial GPS receiver.
type NMEAProvider struct {
	cfg  NMEAConfig
	open func(serial.OpenOptions) (io.ReadWriteCloser, error)
}

func NewNMEA(cfg NMEAConfig) *NMEAProvider {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	if cfg.UERE <= 0 {
		cfg.UERE = 5.0
	}
	return &NMEAProvider{cfg: cfg, open: serial.Open}
}

func (p *NMEAProvider) Name() string { return "NMEA GPS " + p.cfg.PortName }

func (p *NMEAProvider) Run(ctx context.Context, l Listener) error {
	// NOTE: adjust PortName to match your setup: /dev/serial0, /dev/ttyAMA0, /dev/ttyUSB0, etc.
	serialOpts := serial.OpenOptions{
		PortName:              p.cfg.PortName,
		BaudRate:              uint(p.cfg.BaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := p.open(serialOpts)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrProviderFailed, p.cfg.PortName, err)
	}
	log.Printf("gps: serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	// Closing the port is the only way to unblock a pending read.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer func() {
		if stop() {
			port.Close()
		}
	}()

	return p.read(ctx, port, l)
}

func (p *NMEAProvider) read(ctx context.Context, r io.Reader, l Listener) error {
	reader := bufio.NewReader(r)
	st := newNMEAState(p.cfg)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("gps: read error: %v", err)
			return fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}

		line = strings.TrimSpace(line)
		// NMEA sentences usually start with '$'
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			// noisy GPS or partial sentences
			continue
		}

		fix, ok, lost := st.apply(time.Now(), sentence)
		switch {
		case lost:
			log.Printf("gps: receiver reports void fix")
			l.PositionLost(ErrNoFix)
		case ok:
			l.UpdatePosition(fix)
		}
	}
}

// nmeaState accumulates accuracy from GGA/GST and emits a fix on each RMC.
type nmeaState struct {
	uere           float64
	minCourseKnots float64

	hdopAccuracy float64
	haveHDOP     bool
	gstAccuracy  float64
	haveGST      bool

	valid bool // validity of the last RMC
}

func newNMEAState(cfg NMEAConfig) *nmeaState {
	uere := cfg.UERE
	if uere <= 0 {
		uere = 5.0
	}
	return &nmeaState{uere: uere, minCourseKnots: cfg.MinCourseSpeedKnots}
}

// apply folds one sentence into the state. It returns a fix when an RMC with
// a valid solution arrived, and lost=true when the solution turned void.
func (st *nmeaState) apply(now time.Time, s nmea.Sentence) (fix Fix, ok bool, lost bool) {
	switch s.DataType() {
	case nmea.TypeGGA:
		m := s.(nmea.GGA)
		if m.FixQuality == nmea.Invalid || m.HDOP <= 0 {
			st.haveHDOP = false
			return Fix{}, false, false
		}
		st.hdopAccuracy = m.HDOP * st.uere
		st.haveHDOP = true

	case typeGST:
		m, isGST := s.(gstSentence)
		if !isGST {
			return Fix{}, false, false
		}
		acc := math.Hypot(m.LatitudeError, m.LongitudeError)
		if acc <= 0 {
			st.haveGST = false
			return Fix{}, false, false
		}
		st.gstAccuracy = acc
		st.haveGST = true

	case nmea.TypeRMC:
		m := s.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			wasValid := st.valid
			st.valid = false
			return Fix{}, false, wasValid
		}
		st.valid = true

		fix = Fix{
			Latitude:  m.Latitude,
			Longitude: m.Longitude,
			Time:      now,
		}
		switch {
		case st.haveGST:
			fix.HasAccuracy = true
			fix.AccuracyMeters = float32(st.gstAccuracy)
		case st.haveHDOP:
			fix.HasAccuracy = true
			fix.AccuracyMeters = float32(st.hdopAccuracy)
		}
		if m.Speed >= st.minCourseKnots && m.Speed > 0 {
			fix.HasBearing = true
			fix.BearingDegrees = float32(m.Course)
		}
		return fix, true, false
	}
	return Fix{}, false, false
}
