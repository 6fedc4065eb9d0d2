// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration values.
type Config struct {
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Navigation NavigationConfig `yaml:"navigation"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
	GPS        GPSConfig        `yaml:"gps"`
	Actuator   ActuatorConfig   `yaml:"actuator"`
	Web        WebConfig        `yaml:"web"`
}

type MQTTConfig struct {
	Broker             string `yaml:"broker"`
	ClientID           string `yaml:"client_id"`
	ConsoleClientID    string `yaml:"console_client_id"`
	PublisherClientID  string `yaml:"publisher_client_id"`
	TopicPrefix        string `yaml:"topic_prefix"`
	NotifyTopic        string `yaml:"notify_topic"`
	WaypointCollection string `yaml:"waypoint_collection"`
	StateCollection    string `yaml:"state_collection"`
}

type NavigationConfig struct {
	AccuracyThresholdM float64 `yaml:"accuracy_threshold_m"`
	ChaseSpeed         int     `yaml:"chase_speed"`
	MaxTurning         int     `yaml:"max_turning"`
}

type WatchdogConfig struct {
	Period time.Duration `yaml:"period"`
}

type GPSConfig struct {
	Source              string        `yaml:"source"` // "nmea" or "mock"
	SerialPort          string        `yaml:"serial_port"`
	BaudRate            int           `yaml:"baud_rate"`
	UEREM               float64       `yaml:"uere_m"`
	MinCourseSpeedKnots float64       `yaml:"min_course_speed_knots"`
	Mock                MockGPSConfig `yaml:"mock"`
}

type MockGPSConfig struct {
	OriginLat float64       `yaml:"origin_lat"`
	OriginLng float64       `yaml:"origin_lng"`
	RadiusM   float64       `yaml:"radius_m"`
	Period    time.Duration `yaml:"period"`
	Interval  time.Duration `yaml:"interval"`
	AccuracyM float64       `yaml:"accuracy_m"`
}

type ActuatorConfig struct {
	Type       string   `yaml:"type"` // "firmata", "pwm" or "log"
	SerialPort string   `yaml:"serial_port"`
	BaudRate   int      `yaml:"baud_rate"`
	VendorIDs  []string `yaml:"vendor_ids"`
	SpeedPin   int      `yaml:"speed_pin"`
	TurningPin int      `yaml:"turning_pin"`
	MinPulseUs int      `yaml:"min_pulse_us"`
	MaxPulseUs int      `yaml:"max_pulse_us"`

	// GPIO names for the pwm actuator, e.g. GPIO12.
	PWMSpeedPin   string `yaml:"pwm_speed_pin"`
	PWMTurningPin string `yaml:"pwm_turning_pin"`
}

type WebConfig struct {
	Port int `yaml:"port"` // 0 disables the diagnostics server
}

const (
	GPSSourceNMEA = "nmea"
	GPSSourceMock = "mock"

	ActuatorFirmata = "firmata"
	ActuatorPWM     = "pwm"
	ActuatorLog     = "log"
)

// Global configuration instance (private - use Get() to access).
// InitGlobal sets it once; Get reads it from any goroutine.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the YAML configuration file, applies defaults and validates it.
func Load(configPath string) (*Config, error) {
	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML configuration. Unknown keys are rejected.
func Parse(b []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "rover-navigator"
	}
	if c.MQTT.ConsoleClientID == "" {
		c.MQTT.ConsoleClientID = "rover-console-subscriber"
	}
	if c.MQTT.PublisherClientID == "" {
		c.MQTT.PublisherClientID = "rover-mission-publisher"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "rover/ddp"
	}
	if c.MQTT.NotifyTopic == "" {
		c.MQTT.NotifyTopic = "rover/notifications"
	}
	if c.MQTT.WaypointCollection == "" {
		c.MQTT.WaypointCollection = "directionwaypoints"
	}
	if c.MQTT.StateCollection == "" {
		c.MQTT.StateCollection = "robotstate"
	}

	if c.Navigation.AccuracyThresholdM == 0 {
		c.Navigation.AccuracyThresholdM = 10
	}
	if c.Navigation.ChaseSpeed == 0 {
		c.Navigation.ChaseSpeed = 30
	}
	if c.Navigation.MaxTurning == 0 {
		c.Navigation.MaxTurning = 30
	}
	if c.Watchdog.Period == 0 {
		c.Watchdog.Period = 1500 * time.Millisecond
	}

	if c.GPS.Source == "" {
		c.GPS.Source = GPSSourceNMEA
	}
	if c.GPS.BaudRate == 0 {
		c.GPS.BaudRate = 9600
	}
	if c.GPS.UEREM == 0 {
		c.GPS.UEREM = 5
	}
	if c.GPS.MinCourseSpeedKnots == 0 {
		c.GPS.MinCourseSpeedKnots = 0.5
	}
	if c.GPS.Mock.RadiusM == 0 {
		c.GPS.Mock.RadiusM = 30
	}
	if c.GPS.Mock.Period == 0 {
		c.GPS.Mock.Period = 2 * time.Minute
	}
	if c.GPS.Mock.Interval == 0 {
		c.GPS.Mock.Interval = time.Second
	}
	if c.GPS.Mock.AccuracyM == 0 {
		c.GPS.Mock.AccuracyM = 3
	}

	if c.Actuator.Type == "" {
		c.Actuator.Type = ActuatorFirmata
	}
	if c.Actuator.BaudRate == 0 {
		c.Actuator.BaudRate = 57600
	}
	if c.Actuator.SpeedPin == 0 {
		c.Actuator.SpeedPin = 8
	}
	if c.Actuator.TurningPin == 0 {
		c.Actuator.TurningPin = 9
	}
	if c.Actuator.MinPulseUs == 0 {
		c.Actuator.MinPulseUs = 544
	}
	if c.Actuator.MaxPulseUs == 0 {
		c.Actuator.MaxPulseUs = 2400
	}
}

// validate checks that all required fields are set and values are sane.
func (c *Config) validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.Navigation.AccuracyThresholdM < 0 {
		return fmt.Errorf("navigation.accuracy_threshold_m must be > 0")
	}
	if c.Navigation.ChaseSpeed < 0 || c.Navigation.ChaseSpeed > 90 {
		return fmt.Errorf("navigation.chase_speed must be in 1..90")
	}
	if c.Navigation.MaxTurning < 0 || c.Navigation.MaxTurning > 90 {
		return fmt.Errorf("navigation.max_turning must be in 1..90")
	}
	if c.Watchdog.Period < 0 {
		return fmt.Errorf("watchdog.period must be > 0")
	}

	switch c.GPS.Source {
	case GPSSourceNMEA:
		if c.GPS.SerialPort == "" {
			return fmt.Errorf("gps.serial_port is required when gps.source is nmea")
		}
	case GPSSourceMock:
	default:
		return fmt.Errorf("gps.source must be nmea or mock, got %q", c.GPS.Source)
	}

	switch c.Actuator.Type {
	case ActuatorFirmata:
		for _, pin := range []int{c.Actuator.SpeedPin, c.Actuator.TurningPin} {
			if pin < 0 || pin > 127 {
				return fmt.Errorf("actuator pins must be in 0..127, got %d", pin)
			}
		}
	case ActuatorPWM:
		if c.Actuator.PWMSpeedPin == "" || c.Actuator.PWMTurningPin == "" {
			return fmt.Errorf("actuator.pwm_speed_pin and actuator.pwm_turning_pin are required when actuator.type is pwm")
		}
	case ActuatorLog:
	default:
		return fmt.Errorf("actuator.type must be firmata, pwm or log, got %q", c.Actuator.Type)
	}
	if c.Actuator.MinPulseUs >= c.Actuator.MaxPulseUs {
		return fmt.Errorf("actuator.min_pulse_us must be below actuator.max_pulse_us")
	}

	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port must be in 0..65535")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once so only the first call loads; later calls return its error.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
