package room

import (
	"context"
	"testing"

	"github.com/hocman2/sfu-coordinator/pkg/id"
)

func TestGetOrCreate_CreatesThenReusesSameRoom(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testDispatch(), nil)
	rid := id.NewFactory().NewRoomId()

	r1, err := reg.GetOrCreate(ctx, rid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := reg.GetOrCreate(ctx, rid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("expected the same room instance to be returned for the same id")
	}
	if reg.Count() != 1 {
		t.Fatalf("expected 1 registered room, got %d", reg.Count())
	}

	r1.Release()
	r2.Release()
	if reg.Count() != 0 {
		t.Fatalf("expected registry to drop the room once every ref was released, got %d rooms", reg.Count())
	}
}

func TestCreateRoom_AlwaysMintsDistinctRoom(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testDispatch(), nil)

	r1, err := reg.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := reg.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r1.ID == r2.ID {
		t.Fatalf("expected distinct room ids")
	}
	if reg.Count() != 2 {
		t.Fatalf("expected 2 registered rooms, got %d", reg.Count())
	}
}

func TestGetOrCreate_LastParticipantLeavingRemovesFromRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testDispatch(), nil)
	rid := id.NewFactory().NewRoomId()

	r, err := reg.GetOrCreate(ctx, rid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := reg.Lookup(rid); !ok {
		t.Fatalf("expected room to be registered")
	}

	r.Release()

	if _, ok := reg.Lookup(rid); ok {
		t.Fatalf("expected room to be removed from the registry after its last reference dropped")
	}
}
