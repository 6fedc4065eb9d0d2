// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/rover_navigator/internal/steering"
)

// Firmata protocol bytes used by the servo sink.
const (
	firmataAnalogMessage = 0xE0
	firmataSetPinMode    = 0xF4
	firmataStartSysex    = 0xF0
	firmataEndSysex      = 0xF7
	firmataServoConfig   = 0x70
	firmataReportVersion = 0xF9

	firmataPinModeServo = 0x04
)

// FirmataConfig selects the servo pins and their pulse range.
type FirmataConfig struct {
	SpeedPin   byte
	TurningPin byte
	MinPulseUs int
	MaxPulseUs int
	// InitTimeout bounds the wait for the board's version report after the
	// port opens (most boards reset on open). Zero skips the wait.
	InitTimeout time.Duration
}

func DefaultFirmataConfig() FirmataConfig {
	return FirmataConfig{
		SpeedPin:    8,
		TurningPin:  9,
		MinPulseUs:  544,
		MaxPulseUs:  2400,
		InitTimeout: 3 * time.Second,
	}
}

// FirmataSink drives two servos through a Firmata board on a byte stream.
type FirmataSink struct {
	cfg  FirmataConfig
	port io.ReadWriteCloser

	mu     sync.Mutex
	closed bool

	ready chan struct{}
	done  chan struct{}
}

// NewFirmataSink configures both pins as servos and centers them.
func NewFirmataSink(port io.ReadWriteCloser, cfg FirmataConfig) (*FirmataSink, error) {
	s := &FirmataSink{
		cfg:   cfg,
		port:  port,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.drain()

	if cfg.InitTimeout > 0 {
		select {
		case <-s.ready:
			log.Printf("actuator: firmata board reported its version")
		case <-time.After(cfg.InitTimeout):
			log.Printf("actuator: no firmata version report after %v, configuring anyway", cfg.InitTimeout)
		}
	}

	var msg []byte
	for _, pin := range []byte{cfg.SpeedPin, cfg.TurningPin} {
		msg = append(msg, setPinModeMessage(pin, firmataPinModeServo)...)
		msg = append(msg, servoConfigMessage(pin, cfg.MinPulseUs, cfg.MaxPulseUs)...)
	}
	if _, err := port.Write(msg); err != nil {
		port.Close()
		return nil, fmt.Errorf("firmata servo setup: %w", err)
	}

	// Speed 0, wheels straight.
	if err := s.Send(steering.Stop); err != nil {
		port.Close()
		return nil, err
	}
	return s, nil
}

func (s *FirmataSink) Send(d steering.Decision) error {
	speed, turn := ServoAngles(d)
	msg := append(analogMessage(s.cfg.SpeedPin, speed), analogMessage(s.cfg.TurningPin, turn)...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotConnected
	}
	if _, err := s.port.Write(msg); err != nil {
		return fmt.Errorf("firmata write: %w", err)
	}
	return nil
}

// Close centers the servos and closes the port.
func (s *FirmataSink) Close() error {
	speed, turn := ServoAngles(steering.Stop)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.port.Write(append(analogMessage(s.cfg.SpeedPin, speed), analogMessage(s.cfg.TurningPin, turn)...))
	err := s.port.Close()
	<-s.done
	return err
}

// drain consumes everything the board sends so its output never backs up.
// The first REPORT_VERSION byte marks the board as initialized.
func (s *FirmataSink) drain() {
	defer close(s.done)
	r := bufio.NewReader(s.port)
	signalled := false
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		if b == firmataReportVersion && !signalled {
			signalled = true
			close(s.ready)
		}
	}
}

func setPinModeMessage(pin, mode byte) []byte {
	return []byte{firmataSetPinMode, pin, mode}
}

func servoConfigMessage(pin byte, minPulse, maxPulse int) []byte {
	return []byte{
		firmataStartSysex, firmataServoConfig, pin,
		byte(minPulse & 0x7F), byte((minPulse >> 7) & 0x7F),
		byte(maxPulse & 0x7F), byte((maxPulse >> 7) & 0x7F),
		firmataEndSysex,
	}
}

func analogMessage(pin byte, value int) []byte {
	return []byte{
		firmataAnalogMessage | (pin & 0x0F),
		byte(value & 0x7F),
		byte((value >> 7) & 0x7F),
	}
}
