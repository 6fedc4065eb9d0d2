// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package nav

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/rover_navigator/internal/geo"
	"github.com/relabs-tech/rover_navigator/internal/gps"
	"github.com/relabs-tech/rover_navigator/internal/steering"
	"github.com/relabs-tech/rover_navigator/internal/watchdog"
	"github.com/relabs-tech/rover_navigator/internal/waypoint"
)

// State of the navigation state machine.
type State int

const (
	StateIdle State = iota
	StateSeeking
	StatePaused
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSeeking:
		return "SEEKING"
	case StatePaused:
		return "PAUSED"
	case StateTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sink receives control decisions. It is called from the navigation
// goroutine and from the watchdog, so it must be safe for concurrent use.
type Sink interface {
	Send(steering.Decision) error
}

type Config struct {
	Params         steering.Params
	WatchdogPeriod time.Duration
}

func DefaultConfig() Config {
	return Config{Params: steering.DefaultParams(), WatchdogPeriod: watchdog.DefaultPeriod}
}

// Status is a point-in-time view of the controller for diagnostics.
type Status struct {
	State          string              `json:"state"`
	Paused         bool                `json:"paused"`
	Reason         string              `json:"reason,omitempty"`
	Target         *waypoint.Waypoint  `json:"target,omitempty"`
	LastDecision   *steering.Decision  `json:"last_decision,omitempty"`
	Fix            *gps.Fix            `json:"fix,omitempty"`
	Waypoints      []waypoint.Waypoint `json:"waypoints"`
	Cycles         uint64              `json:"cycles"`
	ProtocolErrors uint64              `json:"protocol_errors"`
	NotFound       uint64              `json:"not_found"`
	ForcedStops    uint64              `json:"forced_stops"`
}

// Controller is the navigation loop. The public methods may be called from
// any goroutine; they only enqueue work. Everything touching the waypoint
// store or the pause flag runs on the loop goroutine.
type Controller struct {
	cfg    Config
	sink   Sink
	notify Notifier
	dog    *watchdog.Watchdog
	latest gps.Latest
	queue  *eventQueue

	// owned by the loop goroutine
	store        *waypoint.Store
	paused       bool
	state        State
	targetKey    string
	hasTarget    bool
	lastDecision steering.Decision
	haveDecision bool
	sinkFailing  bool

	statusMu sync.RWMutex
	status   Status

	cycles         atomic.Uint64
	protocolErrors atomic.Uint64
	notFound       atomic.Uint64

	mu         sync.Mutex
	started    bool
	terminated bool
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewController(cfg Config, sink Sink, notify Notifier) *Controller {
	if cfg.Params.AccuracyThreshold <= 0 {
		cfg.Params.AccuracyThreshold = steering.DefaultAccuracyThreshold
	}
	if cfg.Params.ChaseSpeed <= 0 {
		cfg.Params.ChaseSpeed = steering.DefaultChaseSpeed
	}
	if cfg.Params.MaxTurning <= 0 {
		cfg.Params.MaxTurning = steering.DefaultMaxTurning
	}
	if notify == nil {
		notify = Notifiers(nil)
	}
	c := &Controller{
		cfg:    cfg,
		sink:   sink,
		notify: notify,
		queue:  newEventQueue(),
		store:  waypoint.NewStore(),
		done:   make(chan struct{}),
	}
	c.dog = watchdog.New(cfg.WatchdogPeriod, sink)
	c.dog.OnForcedStop = func(err error) {
		msg := "No control decision in time, vehicle stopped."
		if err != nil {
			msg = fmt.Sprintf("No control decision in time, stop failed: %v", err)
		}
		// Runs on the watchdog goroutine; notifiers must tolerate that.
		c.notify.Notify(Notification{Kind: KindWatchdogStop, Message: msg, Time: time.Now()})
	}
	c.status = Status{State: StateIdle.String(), Waypoints: []waypoint.Waypoint{}}
	return c
}

// Start launches the navigation loop and the watchdog. It runs one cycle
// right away so the vehicle starts from a known stop.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.terminated {
		return
	}
	c.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.queue.push(cycleEvent{})
	go c.run(loopCtx)
	c.dog.Start(loopCtx)
	log.Printf("nav: controller started (watchdog %v, accuracy threshold %.1fm)",
		c.dog.Period(), c.cfg.Params.AccuracyThreshold)
}

// Terminate stops accepting events, lets the event in progress finish,
// stops the watchdog and leaves the vehicle stopped. It is idempotent.
func (c *Controller) Terminate() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	started := c.started
	c.mu.Unlock()

	c.queue.close()
	if started {
		c.cancel()
		<-c.done
	}
	c.dog.Stop()

	if err := c.sink.Send(steering.Stop); err != nil {
		log.Printf("nav: final stop failed: %v", err)
	}
	c.state = StateTerminated
	c.statusMu.Lock()
	c.status.State = StateTerminated.String()
	stop := steering.Stop
	c.status.LastDecision = &stop
	c.statusMu.Unlock()
	c.notify.Notify(Notification{Kind: KindState, Message: "Navigation terminated.", State: StateTerminated.String(), Time: time.Now()})
	log.Println("nav: controller terminated")
}

// Done is closed when the loop goroutine has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	for {
		ev, ok := c.queue.next(ctx)
		if !ok {
			return
		}
		c.handle(ev)
	}
}

// ---- inbound events, safe from any goroutine ----

// UpdatePosition stores the fix as the latest and schedules a cycle.
func (c *Controller) UpdatePosition(f gps.Fix) {
	c.latest.Set(f)
	c.enqueue(positionEvent{})
}

// PositionLost drops the latest fix; the next cycle stops the vehicle.
func (c *Controller) PositionLost(err error) {
	c.latest.Clear()
	c.enqueue(positionEvent{lost: err})
}

func (c *Controller) AddWaypoint(wp waypoint.Waypoint) {
	c.enqueue(mutationEvent{op: opAdd, key: wp.Key, wp: wp})
}

// SyncWaypoint stores wp as the current version of its document: a new key
// is added, a known key has its fields overwritten and keeps its visited
// flag. Used for documents the channel replays after a reconnect.
func (c *Controller) SyncWaypoint(wp waypoint.Waypoint) {
	c.enqueue(mutationEvent{op: opSync, key: wp.Key, wp: wp})
}

func (c *Controller) UpdateWaypoint(key string, u waypoint.Update) {
	c.enqueue(mutationEvent{op: opUpdate, key: key, update: u})
}

func (c *Controller) RemoveWaypoint(key string) {
	c.enqueue(mutationEvent{op: opRemove, key: key})
}

func (c *Controller) SetPaused(paused bool) {
	c.enqueue(pauseEvent{paused: paused})
}

// LatestFix returns the most recent position fix.
func (c *Controller) LatestFix() (gps.Fix, bool) { return c.latest.Get() }

// Status returns a copy of the current diagnostics snapshot.
func (c *Controller) Status() Status {
	c.statusMu.RLock()
	st := c.status
	st.Waypoints = append([]waypoint.Waypoint(nil), c.status.Waypoints...)
	c.statusMu.RUnlock()

	if f, ok := c.latest.Get(); ok {
		st.Fix = &f
	}
	st.Cycles = c.cycles.Load()
	st.ProtocolErrors = c.protocolErrors.Load()
	st.NotFound = c.notFound.Load()
	st.ForcedStops = c.dog.ForcedStops()
	return st
}

// ProtocolErrors counts duplicate adds and repeated removes. Under a correct
// synchronization protocol it stays zero.
func (c *Controller) ProtocolErrors() uint64 { return c.protocolErrors.Load() }

func (c *Controller) enqueue(ev event) {
	if !c.queue.push(ev) {
		log.Printf("nav: controller terminated, dropping %T", ev)
	}
}

// ---- loop goroutine ----

type event interface{}

type cycleEvent struct{}

type positionEvent struct {
	lost error
}

type pauseEvent struct {
	paused bool
}

type mutationOp int

const (
	opAdd mutationOp = iota
	opUpdate
	opRemove
	opSync
)

type mutationEvent struct {
	op     mutationOp
	key    string
	wp     waypoint.Waypoint
	update waypoint.Update
}

func (c *Controller) handle(ev event) {
	switch e := ev.(type) {
	case cycleEvent:
		c.cycle()
	case positionEvent:
		if e.lost != nil {
			c.emit(KindPositionLost, fmt.Sprintf("Position lost: %v", e.lost), nil)
		}
		c.cycle()
	case pauseEvent:
		if c.paused != e.paused {
			c.paused = e.paused
			if e.paused {
				c.emit(KindState, "Received stop command.", nil)
			} else {
				c.emit(KindState, "Received resume command.", nil)
			}
		}
		c.cycle()
	case mutationEvent:
		if c.applyMutation(e) {
			c.cycle()
		} else {
			c.publishStatus("")
		}
	default:
		log.Printf("nav: unknown event %T", ev)
	}
}

// applyMutation changes the store and reports whether the current target
// could be affected.
func (c *Controller) applyMutation(e mutationEvent) bool {
	before, hadBefore := c.store.NextUnvisited()

	var err error
	var kind Kind
	var msg string
	switch e.op {
	case opAdd:
		err = c.store.Add(e.wp)
		kind, msg = KindWaypointAdded, "Received new waypoint."
	case opUpdate:
		err = c.store.UpdateFields(e.key, e.update)
		kind, msg = KindWaypointChanged, "Received modified waypoint."
	case opRemove:
		err = c.store.Remove(e.key)
		kind, msg = KindWaypointRemoved, "Received deleted waypoint."
	case opSync:
		cur, known := c.store.Get(e.key)
		if !known {
			err = c.store.Add(e.wp)
			kind, msg = KindWaypointAdded, "Received new waypoint."
			break
		}
		if cur.ID == e.wp.ID && cur.Lat == e.wp.Lat && cur.Lng == e.wp.Lng {
			return false
		}
		lat, lng, id := e.wp.Lat, e.wp.Lng, e.wp.ID
		err = c.store.UpdateFields(e.key, waypoint.Update{Lat: &lat, Lng: &lng, ID: &id})
		kind, msg = KindWaypointChanged, "Received modified waypoint."
	}
	if err != nil {
		c.mutationFailed(err)
		return false
	}

	var wp *waypoint.Waypoint
	if got, ok := c.store.Get(e.key); ok {
		wp = &got
	}
	c.emit(kind, msg, wp)

	after, hasAfter := c.store.NextUnvisited()
	if hadBefore != hasAfter || before.Key != after.Key {
		return true
	}
	return hadBefore && e.key == before.Key
}

func (c *Controller) mutationFailed(err error) {
	switch {
	case errors.Is(err, waypoint.ErrDuplicate), errors.Is(err, waypoint.ErrAlreadyRemoved):
		c.protocolErrors.Add(1)
		log.Printf("nav: protocol error: %v", err)
		c.emit(KindProtocolError, err.Error(), nil)
	case errors.Is(err, waypoint.ErrNotFound):
		c.notFound.Add(1)
		log.Printf("nav: ignoring mutation: %v", err)
		c.emit(KindNotFound, err.Error(), nil)
	default:
		log.Printf("nav: mutation failed: %v", err)
	}
}

// cycle runs one control cycle: mark reached waypoints, steer, send, and
// feed the watchdog.
func (c *Controller) cycle() {
	c.cycles.Add(1)
	fix, hasFix := c.latest.Get()

	target, hasTarget := c.store.NextUnvisited()
	if hasFix && fix.HasAccuracy && float64(fix.AccuracyMeters) <= c.cfg.Params.AccuracyThreshold {
		here := fix.Point()
		for hasTarget && geo.Distance(here, geo.Point{Lat: target.Lat, Lng: target.Lng}) < float64(fix.AccuracyMeters) {
			if err := c.store.MarkVisited(target.Key); err != nil {
				log.Printf("nav: %v", err)
				break
			}
			target.Visited = true
			c.emit(KindArrived, "Reached waypoint "+target.Key, &target)
			target, hasTarget = c.store.NextUnvisited()
		}
	}

	d, reason := steering.Compute(steering.Input{
		Paused:    c.paused,
		Target:    target,
		HasTarget: hasTarget,
		Fix:       fix,
		HasFix:    hasFix,
	}, c.cfg.Params)

	c.send(d)
	c.dog.MarkProduced()

	if hasTarget != c.hasTarget || target.Key != c.targetKey {
		c.hasTarget, c.targetKey = hasTarget, target.Key
		if hasTarget {
			c.emit(KindTarget, "Heading to waypoint "+target.Key, &target)
		} else {
			c.emit(KindTarget, "No waypoint left to visit.", nil)
		}
	}

	c.setState(stateFor(reason))
	c.publishStatus(reason.String())
}

func stateFor(r steering.Reason) State {
	switch r {
	case steering.ReasonPaused:
		return StatePaused
	case steering.ReasonNoTarget:
		return StateIdle
	default:
		// A target exists; with a poor fix the vehicle waits stopped.
		return StateSeeking
	}
}

func (c *Controller) send(d steering.Decision) {
	err := c.sink.Send(d)
	switch {
	case err != nil && !c.sinkFailing:
		c.sinkFailing = true
		log.Printf("nav: actuator send failed: %v", err)
		c.emit(KindActuatorError, fmt.Sprintf("Actuator send failed: %v", err), nil)
	case err == nil && c.sinkFailing:
		c.sinkFailing = false
		log.Printf("nav: actuator recovered")
	}

	if !c.haveDecision || d != c.lastDecision {
		c.lastDecision, c.haveDecision = d, true
		c.notify.Notify(Notification{Kind: KindDecision, Message: d.String(), Decision: &d, State: c.state.String(), Time: time.Now()})
	}
}

func (c *Controller) setState(s State) {
	if s == c.state {
		return
	}
	prev := c.state
	c.state = s
	c.notify.Notify(Notification{
		Kind:    KindState,
		Message: fmt.Sprintf("%s -> %s", prev, s),
		State:   s.String(),
		Time:    time.Now(),
	})
}

func (c *Controller) emit(kind Kind, msg string, wp *waypoint.Waypoint) {
	c.notify.Notify(Notification{Kind: kind, Message: msg, Waypoint: wp, State: c.state.String(), Time: time.Now()})
}

func (c *Controller) publishStatus(reason string) {
	st := Status{
		State:     c.state.String(),
		Paused:    c.paused,
		Reason:    reason,
		Waypoints: c.store.Snapshot(),
	}
	if c.hasTarget {
		if wp, ok := c.store.Get(c.targetKey); ok {
			st.Target = &wp
		}
	}
	if c.haveDecision {
		d := c.lastDecision
		st.LastDecision = &d
	}

	c.statusMu.Lock()
	if reason == "" {
		st.Reason = c.status.Reason
	}
	c.status = st
	c.statusMu.Unlock()
}
