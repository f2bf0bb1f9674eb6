// Package room implements the Room and RoomsRegistry components: a room
// owns one router and one WebRTC server, holds the participant→producer
// graph, and raises producer-add/remove/close/fatal-error events. The
// registry maps room ids to live rooms with a registry-holds-a-weak-
// reference discipline.
//
// Go has no Weak<T>, so the "weak reference" from the original design is
// modeled as an explicit strong-ref counter on Room itself: whoever
// receives a *Room from the registry already holds the one strong
// reference that construction (or attachment) produced, and must call
// Release exactly once when done with it. When the count reaches zero the
// room closes itself and the registry, subscribed to that close event,
// drops its entry.
package room

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hocman2/sfu-coordinator/internal/dispatch"
	"github.com/hocman2/sfu-coordinator/internal/metrics"
	"github.com/hocman2/sfu-coordinator/internal/mediaworker"
	"github.com/hocman2/sfu-coordinator/pkg/eventbag"
	"github.com/hocman2/sfu-coordinator/pkg/id"
	"github.com/hocman2/sfu-coordinator/pkg/wire/monitorwire"
)

// EventSink publishes a lifecycle event to the monitor dispatch. A nil
// sink is valid and simply drops events (monitoring disabled).
type EventSink func(monitorwire.Event)

// ProducerEvent names one producer under the participant that published
// it.
type ProducerEvent struct {
	ParticipantID id.ParticipantId
	ProducerID    id.ProducerId
}

type Room struct {
	ID     id.RoomId
	Bundle *dispatch.RouterBundle

	sink EventSink

	mu               sync.Mutex
	participants     map[id.ParticipantId][]*mediaworker.Producer
	participantOrder []id.ParticipantId

	refCount atomic.Int32

	producerAdd    *eventbag.Bag[ProducerEvent]
	producerRemove *eventbag.Bag[ProducerEvent]
	closeOnce      *eventbag.Once[struct{}]
	fatalError     *eventbag.Once[struct{}]
}

// New mints a fresh room id and builds a Room bound to bundle. The
// returned Room carries the one strong reference the caller now owns.
func New(bundle *dispatch.RouterBundle, sink EventSink) *Room {
	return NewWithID(id.NewFactory().NewRoomId(), bundle, sink)
}

// NewWithID builds a Room under a caller-supplied id (used by
// RoomsRegistry.GetOrCreate, which needs the id before the room exists).
func NewWithID(rid id.RoomId, bundle *dispatch.RouterBundle, sink EventSink) *Room {
	r := &Room{
		ID:             rid,
		Bundle:         bundle,
		sink:           sink,
		participants:   make(map[id.ParticipantId][]*mediaworker.Producer),
		producerAdd:    eventbag.New[ProducerEvent](),
		producerRemove: eventbag.New[ProducerEvent](),
		closeOnce:      eventbag.NewOnce[struct{}](),
		fatalError:     eventbag.NewOnce[struct{}](),
	}
	r.refCount.Store(1)

	r.closeOnce.Subscribe(func(struct{}) {
		if r.sink != nil {
			r.sink(monitorwire.RoomClosed(r.ID.String()))
		}
		if bundle != nil && bundle.Router != nil {
			_ = bundle.Router.Close(context.Background())
		}
		metrics.ActiveRooms.Dec()
	})

	if bundle != nil && bundle.WorkerDiedUnexpectedly != nil {
		bundle.WorkerDiedUnexpectedly.Subscribe(func(struct{}) {
			r.fatalError.Fire(struct{}{})
		})
	}

	metrics.ActiveRooms.Inc()
	if sink != nil {
		sink(monitorwire.RoomOpened(rid.String()))
	}
	return r
}

// AddRef records an additional strong reference — call this whenever a
// new participant attaches to an already-registered room.
func (r *Room) AddRef() { r.refCount.Add(1) }

// Release drops one strong reference. When the last one drops, Close
// fires exactly once.
func (r *Room) Release() {
	if r.refCount.Add(-1) == 0 {
		r.closeOnce.Fire(struct{}{})
	}
}

// AddProducer appends producer to participantID's list and fires
// producer-add.
func (r *Room) AddProducer(participantID id.ParticipantId, p *mediaworker.Producer) {
	r.mu.Lock()
	if _, ok := r.participants[participantID]; !ok {
		r.participantOrder = append(r.participantOrder, participantID)
	}
	r.participants[participantID] = append(r.participants[participantID], p)
	count := len(r.participants)
	r.mu.Unlock()

	metrics.RoomParticipants.WithLabelValues(r.ID.String()).Set(float64(count))
	r.producerAdd.Emit(ProducerEvent{ParticipantID: participantID, ProducerID: p.ID})
}

// RemoveParticipant removes participantID's entry and fires producer-
// remove once for every producer that had been added for them.
func (r *Room) RemoveParticipant(participantID id.ParticipantId) {
	r.mu.Lock()
	producers := r.participants[participantID]
	delete(r.participants, participantID)
	for i, p := range r.participantOrder {
		if p == participantID {
			r.participantOrder = append(r.participantOrder[:i], r.participantOrder[i+1:]...)
			break
		}
	}
	count := len(r.participants)
	r.mu.Unlock()

	metrics.RoomParticipants.WithLabelValues(r.ID.String()).Set(float64(count))
	for _, p := range producers {
		r.producerRemove.Emit(ProducerEvent{ParticipantID: participantID, ProducerID: p.ID})
	}
}

// GetAllProducers returns a point-in-time snapshot of every (participant,
// producer) pair currently in the room, in the order participants first
// added a producer.
func (r *Room) GetAllProducers() []ProducerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ProducerEvent
	for _, pid := range r.participantOrder {
		for _, p := range r.participants[pid] {
			out = append(out, ProducerEvent{ParticipantID: pid, ProducerID: p.ID})
		}
	}
	return out
}

// RoomID returns the room's id. A method rather than direct field access
// so callers can depend on a narrow interface instead of the concrete
// type.
func (r *Room) RoomID() id.RoomId { return r.ID }

// Router returns the router this room owns.
func (r *Room) Router() *mediaworker.Router { return r.Bundle.Router }

// Server returns the WebRTC server this room's router was created on.
func (r *Room) Server() *mediaworker.WebRtcServer { return r.Bundle.Server }

// NotifyConsumerCreated and NotifyConsumerClosed forward to the room's
// router bundle so the dispatch's advisory per-worker load metric stays
// accurate. Sessions call these around their own consumer lifecycle.
func (r *Room) NotifyConsumerCreated() { r.Bundle.NotifyConsumerCreated() }
func (r *Room) NotifyConsumerClosed()  { r.Bundle.NotifyConsumerClosed() }

func (r *Room) OnProducerAdd(fn func(ProducerEvent)) func()   { return r.producerAdd.Subscribe(fn) }
func (r *Room) OnProducerRemove(fn func(ProducerEvent)) func() { return r.producerRemove.Subscribe(fn) }
func (r *Room) OnClose(fn func()) func() {
	return r.closeOnce.Subscribe(func(struct{}) { fn() })
}
func (r *Room) OnFatalError(fn func()) func() {
	return r.fatalError.Subscribe(func(struct{}) { fn() })
}
