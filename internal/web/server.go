// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/rover_navigator/internal/nav"
)

// Snapshot is the body of GET /api/status.
type Snapshot struct {
	nav.Status
	Connected       bool   `json:"connected"`
	MalformedEvents uint64 `json:"malformed_events"`
	IgnoredEvents   uint64 `json:"ignored_events"`
}

// Frame is one WebSocket message.
type Frame struct {
	Type         string            `json:"type"` // "status" or "notification"
	Status       *Snapshot         `json:"status,omitempty"`
	Notification *nav.Notification `json:"notification,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Server serves diagnostics over HTTP and pushes notifications to
// WebSocket clients. It implements nav.Notifier.
type Server struct {
	addr     string
	snapshot func() Snapshot
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*wsClient]struct{}
}

func New(addr string, snapshot func() Snapshot) *Server {
	return &Server{
		addr:     addr,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			// diagnostics page may be served from anywhere on the LAN
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
		s.closeClients()
	}()

	log.Printf("web: diagnostics listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, 64)}

	// The first frame is the current status, queued before the client
	// becomes visible to Notify so it always arrives first.
	snap := s.snapshot()
	if data, err := json.Marshal(Frame{Type: "status", Status: &snap}); err == nil {
		client.send <- data
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	log.Printf("web: websocket client connected (%d total)", n)

	go func() {
		defer conn.Close()
		for msg := range client.send {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	go func() {
		defer s.drop(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("web: websocket error: %v", err)
				}
				return
			}
		}
	}()
}

func (s *Server) drop(c *wsClient) {
	s.clientsMu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	n := len(s.clients)
	s.clientsMu.Unlock()
	log.Printf("web: websocket client disconnected (%d total)", n)
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

// Notify broadcasts n to every client. Slow clients miss messages instead
// of blocking the caller.
func (s *Server) Notify(n nav.Notification) {
	data, err := json.Marshal(Frame{Type: "notification", Notification: &n})
	if err != nil {
		return
	}
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
