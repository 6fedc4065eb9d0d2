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
	"time"

	"github.com/relabs-tech/rover_navigator/internal/actuator"
	"github.com/relabs-tech/rover_navigator/internal/config"
	"github.com/relabs-tech/rover_navigator/internal/geo"
	"github.com/relabs-tech/rover_navigator/internal/gps"
	"github.com/relabs-tech/rover_navigator/internal/nav"
	"github.com/relabs-tech/rover_navigator/internal/remote"
	"github.com/relabs-tech/rover_navigator/internal/steering"
	"github.com/relabs-tech/rover_navigator/internal/web"
)

// RunNavigator wires the positioning provider, the synchronization channel
// and the actuator around the navigation controller and runs until SIGINT
// or SIGTERM.
func RunNavigator() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- 1) Actuator ----
	sink, err := openActuator(cfg.Actuator)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Printf("navigator: actuator close: %v", err)
		}
	}()

	// ---- 2) Controller, translator and synchronization channel ----
	var (
		ctrl       *nav.Controller
		translator *remote.Translator
		webServer  *web.Server
	)

	channel := remote.NewMQTTChannel(remote.MQTTConfig{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, func(ev remote.Event) { translator.Handle(ev) })

	notifiers := nav.Notifiers{
		nav.LogNotifier{},
		remote.NewMQTTNotifier(channel.Client(), cfg.MQTT.NotifyTopic),
	}
	if cfg.Web.Port > 0 {
		webServer = web.New(fmt.Sprintf(":%d", cfg.Web.Port), func() web.Snapshot {
			return web.Snapshot{
				Status:          ctrl.Status(),
				Connected:       translator.Connected(),
				MalformedEvents: translator.Malformed(),
				IgnoredEvents:   translator.Ignored(),
			}
		})
		notifiers = append(notifiers, webServer)
	}

	ctrl = nav.NewController(nav.Config{
		Params: steering.Params{
			AccuracyThreshold: cfg.Navigation.AccuracyThresholdM,
			ChaseSpeed:        cfg.Navigation.ChaseSpeed,
			MaxTurning:        cfg.Navigation.MaxTurning,
		},
		WatchdogPeriod: cfg.Watchdog.Period,
	}, sink, notifiers)

	translator = remote.NewTranslator(ctrl, cfg.MQTT.WaypointCollection, cfg.MQTT.StateCollection, func(msg string) {
		notifiers.Notify(nav.Notification{Kind: nav.KindChannel, Message: msg, Time: time.Now()})
	})

	ctrl.Start(ctx)
	defer ctrl.Terminate()

	// ---- 3) Diagnostics ----
	if webServer != nil {
		go func() {
			if err := webServer.Run(ctx); err != nil {
				log.Printf("navigator: web server: %v", err)
			}
		}()
	}

	// ---- 4) Positioning ----
	provider := newProvider(cfg.GPS)
	gpsDone := make(chan struct{})
	go func() {
		defer close(gpsDone)
		runProvider(ctx, provider, ctrl, time.Second, 30*time.Second)
	}()

	// ---- 5) Synchronization channel ----
	if err := channel.Connect(ctx); err != nil {
		// paho keeps retrying in the background
		log.Printf("navigator: %v", err)
	} else {
		log.Printf("navigator: connected to MQTT broker at %s", cfg.MQTT.Broker)
	}
	defer channel.Close()

	<-ctx.Done()
	log.Println("navigator: shutting down")
	<-gpsDone
	return nil
}

// openActuator opens the configured sink. Each one centers the servos when
// opened.
func openActuator(ac config.ActuatorConfig) (actuator.Sink, error) {
	switch ac.Type {
	case config.ActuatorFirmata:
		fc := actuator.DefaultFirmataConfig()
		fc.SpeedPin = byte(ac.SpeedPin)
		fc.TurningPin = byte(ac.TurningPin)
		fc.MinPulseUs = ac.MinPulseUs
		fc.MaxPulseUs = ac.MaxPulseUs
		return actuator.OpenFirmataSerial(actuator.SerialConfig{
			PortName:  ac.SerialPort,
			BaudRate:  ac.BaudRate,
			VendorIDs: ac.VendorIDs,
		}, fc)
	case config.ActuatorPWM:
		return actuator.OpenPWM(actuator.PWMConfig{
			SpeedPin:   ac.PWMSpeedPin,
			TurningPin: ac.PWMTurningPin,
			MinPulseUs: ac.MinPulseUs,
			MaxPulseUs: ac.MaxPulseUs,
		})
	case config.ActuatorLog:
		return actuator.NewLogSink(), nil
	default:
		return nil, fmt.Errorf("unknown actuator type %q", ac.Type)
	}
}

func newProvider(gc config.GPSConfig) gps.Provider {
	if gc.Source == config.GPSSourceMock {
		return gps.NewMockProvider(gps.MockConfig{
			Origin:         geo.Point{Lat: gc.Mock.OriginLat, Lng: gc.Mock.OriginLng},
			RadiusMeters:   gc.Mock.RadiusM,
			Period:         gc.Mock.Period,
			Interval:       gc.Mock.Interval,
			AccuracyMeters: float32(gc.Mock.AccuracyM),
		})
	}
	return gps.NewNMEA(gps.NMEAConfig{
		PortName:            gc.SerialPort,
		BaudRate:            gc.BaudRate,
		UERE:                gc.UEREM,
		MinCourseSpeedKnots: gc.MinCourseSpeedKnots,
	})
}

// runProvider runs p until ctx is done. Each failure is reported as a lost
// position, so the controller stops the vehicle, and the provider is
// restarted with exponential backoff.
func runProvider(ctx context.Context, p gps.Provider, l gps.Listener, delay, maxDelay time.Duration) {
	attempt := 0
	for {
		err := p.Run(ctx, l)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = gps.ErrProviderFailed
		}
		attempt++
		log.Printf("gps: %s failed (attempt %d): %v (retry in %v)", p.Name(), attempt, err, delay)
		l.PositionLost(err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
