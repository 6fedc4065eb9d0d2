// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"fmt"
	"log"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/rover_navigator/internal/steering"
)

// servoFrequency is the standard hobby servo frame rate (20 ms period).
const servoFrequency = 50 * physic.Hertz

const servoFramePeriodUs = 20000

// PWMConfig names the GPIO pins driving the servos directly.
type PWMConfig struct {
	SpeedPin   string // e.g. "GPIO12"
	TurningPin string // e.g. "GPIO13"
	MinPulseUs int
	MaxPulseUs int
}

// servoPin is the part of gpio.PinIO the sink needs.
type servoPin interface {
	PWM(duty gpio.Duty, f physic.Frequency) error
	Halt() error
}

// PWMSink drives the servos from hardware PWM pins via periph.io.
type PWMSink struct {
	cfg     PWMConfig
	speed   servoPin
	turning servoPin

	mu     sync.Mutex
	closed bool
}

// OpenPWM initializes periph host drivers and looks up both pins.
func OpenPWM(cfg PWMConfig) (*PWMSink, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	speed := gpioreg.ByName(cfg.SpeedPin)
	if speed == nil {
		return nil, fmt.Errorf("speed servo pin %q: %w", cfg.SpeedPin, ErrNotConnected)
	}
	turning := gpioreg.ByName(cfg.TurningPin)
	if turning == nil {
		return nil, fmt.Errorf("turning servo pin %q: %w", cfg.TurningPin, ErrNotConnected)
	}
	log.Printf("actuator: PWM servos on %s (speed) and %s (turning)", speed.Name(), turning.Name())
	return newPWMSink(cfg, speed, turning)
}

func newPWMSink(cfg PWMConfig, speed, turning servoPin) (*PWMSink, error) {
	if cfg.MinPulseUs <= 0 {
		cfg.MinPulseUs = 544
	}
	if cfg.MaxPulseUs <= cfg.MinPulseUs {
		cfg.MaxPulseUs = 2400
	}
	s := &PWMSink{cfg: cfg, speed: speed, turning: turning}
	if err := s.Send(steering.Stop); err != nil {
		return nil, err
	}
	return s, nil
}

// Duty converts a servo angle (0..180) into a PWM duty cycle at 50 Hz.
func (s *PWMSink) Duty(angle int) gpio.Duty {
	angle = clampAngle(angle)
	pulse := s.cfg.MinPulseUs + (s.cfg.MaxPulseUs-s.cfg.MinPulseUs)*angle/180
	return gpio.Duty(int64(gpio.DutyMax) * int64(pulse) / servoFramePeriodUs)
}

func (s *PWMSink) Send(d steering.Decision) error {
	speed, turn := ServoAngles(d)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotConnected
	}
	if err := s.speed.PWM(s.Duty(speed), servoFrequency); err != nil {
		return fmt.Errorf("speed servo: %w", err)
	}
	if err := s.turning.PWM(s.Duty(turn), servoFrequency); err != nil {
		return fmt.Errorf("turning servo: %w", err)
	}
	return nil
}

// Close centers both servos and halts PWM output.
func (s *PWMSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	speed, turn := ServoAngles(steering.Stop)
	s.speed.PWM(s.Duty(speed), servoFrequency)
	s.turning.PWM(s.Duty(turn), servoFrequency)
	s.closed = true

	err1 := s.speed.Halt()
	err2 := s.turning.Halt()
	if err1 != nil {
		return err1
	}
	return err2
}
