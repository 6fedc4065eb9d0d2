// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/rover_navigator/internal/nav"
	"github.com/relabs-tech/rover_navigator/internal/waypoint"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Status: nav.Status{
			State:     "SEEKING",
			Waypoints: []waypoint.Waypoint{{Key: "a", ID: 1, Lat: 1, Lng: 2}},
			Cycles:    4,
		},
		Connected: true,
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := New(":0", testSnapshot)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["state"] != "SEEKING" || body["connected"] != true {
		t.Fatalf("body=%v", body)
	}
	if wps, ok := body["waypoints"].([]any); !ok || len(wps) != 1 {
		t.Fatalf("waypoints=%v", body["waypoints"])
	}

	post, err := http.Post(ts.URL+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status=%d want 405", post.StatusCode)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestWebSocketBroadcast(t *testing.T) {
	s := New(":0", testSnapshot)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readFrame(t, conn)
	if first.Type != "status" || first.Status == nil || first.Status.State != "SEEKING" {
		t.Fatalf("first frame=%+v", first)
	}

	s.Notify(nav.Notification{Kind: nav.KindArrived, Message: "Reached waypoint a"})
	got := readFrame(t, conn)
	if got.Type != "notification" || got.Notification == nil || got.Notification.Kind != nav.KindArrived {
		t.Fatalf("frame=%+v", got)
	}
}

func TestNotifyWithoutClients(t *testing.T) {
	s := New(":0", testSnapshot)
	s.Notify(nav.Notification{Kind: nav.KindState})
	if s.Clients() != 0 {
		t.Fatalf("clients=%d", s.Clients())
	}
}
