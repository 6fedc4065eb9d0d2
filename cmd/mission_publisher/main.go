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
	missionPath := flag.String("mission", "", "YAML mission file to publish")
	remove := flag.String("remove", "", "document id of a waypoint to remove")
	state := flag.String("state", "", "publish only the state document (Stop or Go)")
	flag.Parse()

	log.Println("starting rover mission publisher")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	err := app.RunMissionPublisher(app.MissionOptions{
		MissionPath: *missionPath,
		RemoveDoc:   *remove,
		State:       *state,
	})
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
