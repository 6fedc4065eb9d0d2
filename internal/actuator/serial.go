// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"fmt"
	"log"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultVendorIDs lists USB vendor ids of boards known to run Firmata
// (Arduino, Arduino.org, WCH CH340, FTDI, Silicon Labs CP210x).
var DefaultVendorIDs = []string{"2341", "2A03", "1A86", "0403", "10C4"}

// SerialConfig describes the actuator's serial link.
type SerialConfig struct {
	PortName  string   // empty: pick the first compatible USB device
	BaudRate  int      // Firmata default is 57600
	VendorIDs []string // hex USB vendor ids, case insensitive
}

// listPorts is replaced in tests.
var listPorts = enumerator.GetDetailedPortsList

// FindCompatiblePort returns the first USB serial port whose vendor id is in
// vendorIDs.
func FindCompatiblePort(vendorIDs []string) (string, error) {
	ports, err := listPorts()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		for _, vid := range vendorIDs {
			if strings.EqualFold(strings.TrimPrefix(vid, "0x"), p.VID) {
				log.Printf("actuator: found compatible board %s (VID %s PID %s)", p.Name, p.VID, p.PID)
				return p.Name, nil
			}
		}
	}
	return "", fmt.Errorf("no compatible USB board among %d ports: %w", len(ports), ErrNotConnected)
}

// OpenFirmataSerial opens the configured (or discovered) serial port and
// wraps it in a FirmataSink.
func OpenFirmataSerial(sc SerialConfig, fc FirmataConfig) (*FirmataSink, error) {
	name := sc.PortName
	if name == "" {
		vids := sc.VendorIDs
		if len(vids) == 0 {
			vids = DefaultVendorIDs
		}
		var err error
		if name, err = FindCompatiblePort(vids); err != nil {
			return nil, err
		}
	}
	baud := sc.BaudRate
	if baud == 0 {
		baud = 57600
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("actuator: failed to open %s: %w", name, err)
	}
	log.Printf("actuator: serial port opened on %s at %d baud", name, baud)

	return NewFirmataSink(port, fc)
}
