// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/rover_navigator/internal/app"
	"github.com/relabs-tech/rover_navigator/internal/config"
)

func main() {
	configPath := flag.String("config", "./navigator.yaml", "path to configuration file")
	flag.Parse()

	log.Println("starting rover navigator (GPS + MQTT → servos)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunNavigator(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
