// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package remote

import (
	"context"
	"testing"
	"time"

	"github.com/relabs-tech/rover_navigator/internal/nav"
	"github.com/relabs-tech/rover_navigator/internal/steering"
)

type nopSink struct{}

func (nopSink) Send(steering.Decision) error { return nil }

func TestReconnectReplayKeepsProtocolClean(t *testing.T) {
	ctrl := nav.NewController(nav.Config{WatchdogPeriod: time.Hour}, nopSink{}, nil)
	ctrl.Start(context.Background())
	defer ctrl.Terminate()
	tr := NewTranslator(ctrl, "", "", nil)
	fields := raw(`{"lat":1,"lng":2,"id":0}`)

	tr.Handle(Connected{})
	tr.Handle(Added{Collection: DefaultWaypointCollection, DocumentID: "doc1", Fields: fields})
	tr.Handle(Disconnected{})
	tr.Handle(Connected{})
	tr.Handle(Added{Collection: DefaultWaypointCollection, DocumentID: "doc1", Fields: fields})
	// Events are processed in order; the pause marks the end of the replay.
	tr.Handle(Added{Collection: DefaultStateCollection, DocumentID: "s", Fields: raw(`{"state":"Stop"}`)})

	deadline := time.Now().Add(2 * time.Second)
	for !ctrl.Status().Paused {
		if time.Now().After(deadline) {
			t.Fatalf("controller never processed the events")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := ctrl.ProtocolErrors(); got != 0 {
		t.Fatalf("protocol errors after reconnect=%d want 0", got)
	}
	if st := ctrl.Status(); len(st.Waypoints) != 1 {
		t.Fatalf("waypoints=%+v want one", st.Waypoints)
	}
}
