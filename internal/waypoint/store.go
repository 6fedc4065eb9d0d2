// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package waypoint

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotFound is returned when a mutation references a key the store never held.
	ErrNotFound = errors.New("waypoint not found")
	// ErrDuplicate is a protocol error: the key is already present.
	ErrDuplicate = errors.New("duplicate waypoint")
	// ErrAlreadyRemoved is a protocol error: the key was removed earlier and not re-added.
	ErrAlreadyRemoved = errors.New("waypoint already removed")
)

// Waypoint is a place on the surface of the Earth that should be visited.
type Waypoint struct {
	ID      int     `json:"id"`  // remote ordering key, not necessarily contiguous
	Key     string  `json:"key"` // remote document identifier
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Visited bool    `json:"visited"`
}

// Update carries the optional fields of a remote "changed" event.
// Nil fields are left untouched.
type Update struct {
	Lat *float64
	Lng *float64
	ID  *int
}

// Empty reports whether the update carries no field at all.
func (u Update) Empty() bool {
	return u.Lat == nil && u.Lng == nil && u.ID == nil
}

type entry struct {
	wp  Waypoint
	seq uint64 // insertion order, tiebreak for equal IDs
}

// Store keeps waypoints ordered by ascending ID, insertion order breaking ties.
//
// Store is not safe for concurrent use; it belongs to the goroutine running
// the navigation loop.
type Store struct {
	entries []entry
	nextSeq uint64
	removed map[string]struct{}
}

func NewStore() *Store {
	return &Store{removed: make(map[string]struct{})}
}

func (s *Store) Add(wp Waypoint) error {
	if _, ok := s.index(wp.Key); ok {
		return fmt.Errorf("add %q: %w", wp.Key, ErrDuplicate)
	}
	delete(s.removed, wp.Key)

	wp.Visited = false
	s.entries = append(s.entries, entry{wp: wp, seq: s.nextSeq})
	s.nextSeq++
	s.sort()
	return nil
}

func (s *Store) Remove(key string) error {
	i, ok := s.index(key)
	if !ok {
		if _, gone := s.removed[key]; gone {
			return fmt.Errorf("remove %q: %w", key, ErrAlreadyRemoved)
		}
		return fmt.Errorf("remove %q: %w", key, ErrNotFound)
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.removed[key] = struct{}{}
	return nil
}

// UpdateFields applies the present fields of u. Changing the ID re-sorts the
// store but keeps the waypoint's original insertion rank.
func (s *Store) UpdateFields(key string, u Update) error {
	i, ok := s.index(key)
	if !ok {
		if _, gone := s.removed[key]; gone {
			return fmt.Errorf("update %q: %w", key, ErrAlreadyRemoved)
		}
		return fmt.Errorf("update %q: %w", key, ErrNotFound)
	}
	wp := &s.entries[i].wp
	if u.Lat != nil {
		wp.Lat = *u.Lat
	}
	if u.Lng != nil {
		wp.Lng = *u.Lng
	}
	if u.ID != nil && *u.ID != wp.ID {
		wp.ID = *u.ID
		s.sort()
	}
	return nil
}

// MarkVisited flags the waypoint as reached. Visited never goes back to false.
func (s *Store) MarkVisited(key string) error {
	i, ok := s.index(key)
	if !ok {
		return fmt.Errorf("mark visited %q: %w", key, ErrNotFound)
	}
	s.entries[i].wp.Visited = true
	return nil
}

// NextUnvisited returns the unvisited waypoint with the smallest ID.
func (s *Store) NextUnvisited() (Waypoint, bool) {
	for _, e := range s.entries {
		if !e.wp.Visited {
			return e.wp, true
		}
	}
	return Waypoint{}, false
}

func (s *Store) Get(key string) (Waypoint, bool) {
	i, ok := s.index(key)
	if !ok {
		return Waypoint{}, false
	}
	return s.entries[i].wp, true
}

func (s *Store) IsEmpty() bool { return len(s.entries) == 0 }

func (s *Store) Len() int { return len(s.entries) }

// Snapshot returns a copy of all waypoints in iteration order.
func (s *Store) Snapshot() []Waypoint {
	out := make([]Waypoint, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.wp
	}
	return out
}

func (s *Store) index(key string) (int, bool) {
	for i, e := range s.entries {
		if e.wp.Key == key {
			return i, true
		}
	}
	return -1, false
}

func (s *Store) sort() {
	sort.Slice(s.entries, func(i, j int) bool {
		a, b := s.entries[i], s.entries[j]
		if a.wp.ID != b.wp.ID {
			return a.wp.ID < b.wp.ID
		}
		return a.seq < b.seq
	})
}
