package room

import (
	"context"
	"sync"

	"github.com/hocman2/sfu-coordinator/internal/dispatch"
	"github.com/hocman2/sfu-coordinator/pkg/id"
)

// Registry maps room ids to live rooms. It holds what amounts to a weak
// reference to each room: entries are added by whichever caller wins the
// race to create a room, and removed automatically once that room's last
// strong reference (held by its participants) is released.
type Registry struct {
	dispatch *dispatch.Dispatch
	ids      id.Factory
	sink     EventSink

	mu    sync.Mutex
	rooms map[id.RoomId]*Room
}

func NewRegistry(d *dispatch.Dispatch, sink EventSink) *Registry {
	return &Registry{
		dispatch: d,
		ids:      id.NewFactory(),
		sink:     sink,
		rooms:    make(map[id.RoomId]*Room),
	}
}

// GetOrCreate returns the room registered under roomID, creating it (with
// a fresh router) if none exists yet. The returned *Room already carries
// one strong reference for the caller; call Release when done with it.
//
// If two callers race to create the same id, both build a full room, but
// only the first to win the registry insert is kept — the loser's room
// is released immediately, which closes its router and fires its own
// close event, never having been observed by anyone else.
func (reg *Registry) GetOrCreate(ctx context.Context, roomID id.RoomId) (*Room, error) {
	reg.mu.Lock()
	if existing, ok := reg.rooms[roomID]; ok {
		reg.mu.Unlock()
		existing.AddRef()
		return existing, nil
	}
	reg.mu.Unlock()

	bundle, err := reg.dispatch.CreateRouter(ctx)
	if err != nil {
		return nil, err
	}
	built := NewWithID(roomID, bundle, reg.sink)

	reg.mu.Lock()
	if existing, ok := reg.rooms[roomID]; ok {
		reg.mu.Unlock()
		built.Release()
		existing.AddRef()
		return existing, nil
	}
	reg.rooms[roomID] = built
	reg.mu.Unlock()

	built.OnClose(func() { reg.remove(roomID, built) })
	return built, nil
}

// CreateRoom always mints a fresh id and a fresh room, registering it
// under that id. The returned *Room carries the one strong reference for
// the caller.
func (reg *Registry) CreateRoom(ctx context.Context) (*Room, error) {
	bundle, err := reg.dispatch.CreateRouter(ctx)
	if err != nil {
		return nil, err
	}
	rid := reg.ids.NewRoomId()
	r := NewWithID(rid, bundle, reg.sink)

	reg.mu.Lock()
	reg.rooms[rid] = r
	reg.mu.Unlock()

	r.OnClose(func() { reg.remove(rid, r) })
	return r, nil
}

// Lookup returns the room currently registered under roomID without
// affecting its reference count, or false if none exists.
func (reg *Registry) Lookup(roomID id.RoomId) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[roomID]
	return r, ok
}

// Count reports the number of currently registered rooms. Exposed for
// tests and the health endpoint.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

func (reg *Registry) remove(roomID id.RoomId, r *Room) {
	reg.mu.Lock()
	if reg.rooms[roomID] == r {
		delete(reg.rooms, roomID)
	}
	reg.mu.Unlock()
}
