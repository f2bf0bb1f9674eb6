// Package monitor implements the MonitorDispatch component: a process-wide
// singleton that accepts out-of-band monitor TCP connections, fans every
// lifecycle event out to the monitors whose subscription filter matches,
// and evicts connections after repeated write failures.
//
// The singleton discipline mirrors the teacher's internal/v1/logging
// sync.Once pattern (internal/v1/logging/logger.go): Initialize sets up
// the one dispatch for the process; a second call is an invariant breach
// and panics, matching spec §7's "infrastructure invariant breaches...
// the process aborts" rule. Tests that need a fresh dispatch construct one
// directly with New and never touch the package-level singleton.
package monitor

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/hocman2/sfu-coordinator/internal/logging"
	"github.com/hocman2/sfu-coordinator/internal/metrics"
	"github.com/hocman2/sfu-coordinator/pkg/id"
	"github.com/hocman2/sfu-coordinator/pkg/wire/monitorwire"
)

// maxConsecutiveFailures is the three-strike eviction rule for monitor
// writes, matching §4.5's backpressure policy.
const maxConsecutiveFailures = 3

// unboundedQueue is a FIFO queue that never blocks or refuses its
// producer: push always succeeds by growing an internal slice. Matching
// the original's tokio::sync::mpsc::unbounded_channel() for both the
// dispatch's event channel and each connection's outbound queue, per
// spec §3's "no event is dropped silently for a live monitor whose
// filter matches" — buffer pressure must never be the reason an event is
// lost, only a write failure (see the three-strike rule) may drop one.
type unboundedQueue[T any] struct {
	mu     sync.Mutex
	items  []T
	wake   chan struct{}
	closed bool
}

func newUnboundedQueue[T any]() *unboundedQueue[T] {
	return &unboundedQueue[T]{wake: make(chan struct{}, 1)}
}

func (q *unboundedQueue[T]) push(v T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal()
}

func (q *unboundedQueue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain returns every item queued since the last drain, and whether the
// queue has since been closed. Callers loop: wait on wake, drain, handle
// the returned items, stop once closed is true.
func (q *unboundedQueue[T]) drain() (items []T, closed bool) {
	q.mu.Lock()
	items, q.items = q.items, nil
	closed = q.closed
	q.mu.Unlock()
	return items, closed
}

func (q *unboundedQueue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// category is MonitoringEventCategory: a monitor subscribes to either every
// global lifecycle event or the events scoped to one room.
type category struct {
	global bool
	roomID string
}

func globalCategory() category { return category{global: true} }

func roomCategory(roomID string) category { return category{roomID: roomID} }

func (c category) matches(e monitorwire.Event) bool {
	switch e.Kind {
	case monitorwire.EventMonitorAccepted, monitorwire.EventServerStarted,
		monitorwire.EventServerClosed, monitorwire.EventRoomOpened, monitorwire.EventRoomClosed:
		return c.global
	case monitorwire.EventParticipantEntered, monitorwire.EventParticipantLeft:
		return !c.global && c.roomID == e.RoomId
	default:
		return c.global
	}
}

type connection struct {
	id   id.MonitorId
	conn net.Conn

	mu       sync.Mutex
	cat      category
	failures int

	send   *unboundedQueue[monitorwire.Event]
	closed *onceFlag
}

// onceFlag is a tiny single-shot gate, avoiding a dependency on the
// eventbag package for a flag this package only needs internally once.
type onceFlag struct {
	mu   sync.Mutex
	done bool
}

func (f *onceFlag) do(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return
	}
	f.done = true
	fn()
}

// Dispatch is the MonitorDispatch. Initialize constructs the process-wide
// one and starts its run loop and accept loop; tests construct one with New
// and start run in its own goroutine. send_event is Send.
type Dispatch struct {
	ids id.Factory

	eventQ *unboundedQueue[monitorwire.Event]

	mu    sync.Mutex
	conns map[id.MonitorId]*connection
}

func New() *Dispatch {
	return &Dispatch{
		ids:    id.NewFactory(),
		eventQ: newUnboundedQueue[monitorwire.Event](),
		conns:  make(map[id.MonitorId]*connection),
	}
}

var (
	singleton     *Dispatch
	singletonOnce sync.Once
	initialized   bool
	initMu        sync.Mutex
)

// Initialize creates the process-wide singleton dispatch and starts its
// accept loop listening on addr. Calling it a second time is a bug, not a
// runtime condition to recover from: it panics, matching spec §4.5/§7's
// "attempting a second creation is fatal" rule.
func Initialize(ctx context.Context, addr string) (*Dispatch, error) {
	initMu.Lock()
	if initialized {
		initMu.Unlock()
		panic("monitor: Initialize called more than once for this process")
	}
	initialized = true
	initMu.Unlock()

	d := New()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	singletonOnce.Do(func() { singleton = d })
	go d.run(ctx)
	go d.acceptLoop(ctx, ln)
	return d, nil
}

// Singleton returns the process-wide dispatch created by Initialize, or
// nil if monitoring was never enabled. Send is a no-op against a nil
// dispatch, per §4.5: "if no dispatch exists and monitoring is disabled,
// the call is a no-op."
func Singleton() *Dispatch { return singleton }

// Send is send_event: the dispatch's only public producer entry point. A
// nil receiver is valid and does nothing. It never drops an event.
func (d *Dispatch) Send(e monitorwire.Event) {
	if d == nil {
		return
	}
	d.eventQ.push(e)
}

// run is the dispatch's single serialization point: it receives events
// one at a time and fans each out before taking the next, giving every
// monitor a consistent total order of lifecycle events.
func (d *Dispatch) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.eventQ.wake:
		}
		items, closed := d.eventQ.drain()
		for _, e := range items {
			d.fanOut(e)
		}
		if closed {
			return
		}
	}
}

func (d *Dispatch) fanOut(e monitorwire.Event) {
	d.mu.Lock()
	targets := make([]*connection, 0, len(d.conns))
	for _, c := range d.conns {
		c.mu.Lock()
		match := c.cat.matches(e)
		c.mu.Unlock()
		if match {
			targets = append(targets, c)
		}
	}
	d.mu.Unlock()

	for _, c := range targets {
		c.enqueue(e)
		metrics.MonitorEventsSent.WithLabelValues(kindLabel(e.Kind)).Inc()
	}
}

func kindLabel(k monitorwire.EventKind) string {
	switch k {
	case monitorwire.EventMonitorAccepted:
		return "monitor_accepted"
	case monitorwire.EventServerStarted:
		return "server_started"
	case monitorwire.EventServerClosed:
		return "server_closed"
	case monitorwire.EventRoomOpened:
		return "room_opened"
	case monitorwire.EventRoomClosed:
		return "room_closed"
	case monitorwire.EventParticipantEntered:
		return "participant_entered"
	case monitorwire.EventParticipantLeft:
		return "participant_left"
	case monitorwire.EventError:
		return "error"
	default:
		return "unknown"
	}
}

func (c *connection) enqueue(e monitorwire.Event) {
	c.send.push(e)
}

// acceptLoop is the TCP accept loop: every accepted connection becomes a
// MonitorConnection with a default Global subscription, and its arrival is
// itself synthesized onto the event channel so every monitor learns of it.
func (d *Dispatch) acceptLoop(ctx context.Context, ln net.Listener) {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			logging.Warn(ctx, "monitor: accept failed", zap.Error(err))
			return
		}
		d.addConnection(ctx, nc)
	}
}

func (d *Dispatch) addConnection(ctx context.Context, nc net.Conn) {
	c := &connection{
		id:     d.ids.NewMonitorId(),
		conn:   nc,
		cat:    globalCategory(),
		send:   newUnboundedQueue[monitorwire.Event](),
		closed: &onceFlag{},
	}

	d.mu.Lock()
	d.conns[c.id] = c
	d.mu.Unlock()

	metrics.ActiveMonitors.Inc()
	logging.Info(ctx, "monitor connected", zap.String("monitor_id", c.id.String()))

	go d.writerLoop(ctx, c)
	go d.readerLoop(ctx, c)

	d.Send(monitorwire.MonitorAccepted())
}

func (d *Dispatch) writerLoop(ctx context.Context, c *connection) {
	for {
		<-c.send.wake
		items, closed := c.send.drain()
		for _, e := range items {
			if err := monitorwire.WriteEvent(c.conn, e); err != nil {
				c.mu.Lock()
				c.failures++
				dead := c.failures >= maxConsecutiveFailures
				c.mu.Unlock()
				if dead {
					metrics.MonitorEvictions.Inc()
					d.evict(ctx, c)
					return
				}
				continue
			}
			c.mu.Lock()
			c.failures = 0
			c.mu.Unlock()
		}
		if closed {
			return
		}
	}
}

func (d *Dispatch) readerLoop(ctx context.Context, c *connection) {
	defer d.evict(ctx, c)

	for {
		frame, err := monitorwire.ReadClientFrame(c.conn)
		if err != nil {
			return
		}
		switch frame.Kind {
		case monitorwire.ClientFrameGreeting:
			logging.Info(ctx, "monitor greeting", zap.String("monitor_id", c.id.String()), zap.String("text", frame.Greeting))
		case monitorwire.ClientFrameSwitchCategory:
			c.mu.Lock()
			if frame.Category == monitorwire.CategoryGlobal {
				c.cat = globalCategory()
			} else {
				c.cat = roomCategory(frame.RoomId)
			}
			c.mu.Unlock()
		default:
			c.enqueue(monitorwire.ErrorEvent("unreadable message"))
		}
	}
}

func (d *Dispatch) evict(ctx context.Context, c *connection) {
	c.closed.do(func() {
		d.mu.Lock()
		delete(d.conns, c.id)
		d.mu.Unlock()

		_ = c.conn.Close()
		c.send.close()
		metrics.ActiveMonitors.Dec()
		logging.Info(ctx, "monitor connection closed", zap.String("monitor_id", c.id.String()))
	})
}

// Count reports the number of currently connected monitors. Exposed for
// tests and the health endpoint.
func (d *Dispatch) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}
