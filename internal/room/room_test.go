package room

import (
	"context"
	"testing"

	"github.com/hocman2/sfu-coordinator/internal/dispatch"
	"github.com/hocman2/sfu-coordinator/internal/mediaworker"
	"github.com/hocman2/sfu-coordinator/pkg/id"
	"github.com/hocman2/sfu-coordinator/pkg/wire/monitorwire"
)

func testDispatch() *dispatch.Dispatch {
	return dispatch.New(dispatch.Config{MaxWorkers: 4, ConsumersPerWorker: 500}, func() mediaworker.Worker {
		return mediaworker.NewSimWorker()
	})
}

func newTestRoom(t *testing.T, sink EventSink) *Room {
	t.Helper()
	bundle, err := testDispatch().CreateRouter(context.Background())
	if err != nil {
		t.Fatalf("unexpected error creating router: %v", err)
	}
	return NewWithID(id.NewFactory().NewRoomId(), bundle, sink)
}

func TestAddProducer_FiresProducerAdd(t *testing.T) {
	r := newTestRoom(t, nil)
	pid := id.NewFactory().NewParticipantId()
	producer := &mediaworker.Producer{ID: id.NewFactory().NewProducerId(), Kind: mediaworker.KindAudio}

	var got ProducerEvent
	r.OnProducerAdd(func(e ProducerEvent) { got = e })
	r.AddProducer(pid, producer)

	if got.ParticipantID != pid || got.ProducerID != producer.ID {
		t.Fatalf("expected producer-add event for %v/%v, got %+v", pid, producer.ID, got)
	}
}

func TestRemoveParticipant_FiresProducerRemoveForEachProducer(t *testing.T) {
	r := newTestRoom(t, nil)
	pid := id.NewFactory().NewParticipantId()
	p1 := &mediaworker.Producer{ID: id.NewFactory().NewProducerId(), Kind: mediaworker.KindAudio}
	p2 := &mediaworker.Producer{ID: id.NewFactory().NewProducerId(), Kind: mediaworker.KindVideo}
	r.AddProducer(pid, p1)
	r.AddProducer(pid, p2)

	var removed []id.ProducerId
	r.OnProducerRemove(func(e ProducerEvent) { removed = append(removed, e.ProducerID) })
	r.RemoveParticipant(pid)

	if len(removed) != 2 {
		t.Fatalf("expected 2 producer-remove events, got %d", len(removed))
	}
}

func TestGetAllProducers_Snapshot(t *testing.T) {
	r := newTestRoom(t, nil)
	pid := id.NewFactory().NewParticipantId()
	p := &mediaworker.Producer{ID: id.NewFactory().NewProducerId(), Kind: mediaworker.KindAudio}
	r.AddProducer(pid, p)

	all := r.GetAllProducers()
	if len(all) != 1 || all[0].ProducerID != p.ID {
		t.Fatalf("expected snapshot with 1 producer, got %+v", all)
	}

	r.RemoveParticipant(pid)
	if len(r.GetAllProducers()) != 0 {
		t.Fatalf("expected empty snapshot after removal")
	}
}

func TestRelease_ClosesOnlyWhenLastRefDrops(t *testing.T) {
	r := newTestRoom(t, nil)
	r.AddRef() // second participant joins

	closed := 0
	r.OnClose(func() { closed++ })

	r.Release() // first participant leaves
	if closed != 0 {
		t.Fatalf("expected room to stay open with one ref remaining")
	}

	r.Release() // second participant leaves
	if closed != 1 {
		t.Fatalf("expected close to fire exactly once after last ref dropped, got %d", closed)
	}
}

func TestRelease_ClosingFiresRoomClosedEvent(t *testing.T) {
	var got []monitorwire.Event
	r := newTestRoom(t, func(e monitorwire.Event) { got = append(got, e) })

	r.Release()

	if len(got) != 2 {
		t.Fatalf("expected RoomOpened and RoomClosed events, got %d", len(got))
	}
	if got[0].Kind != monitorwire.EventRoomOpened {
		t.Fatalf("expected first event to be RoomOpened, got %v", got[0].Kind)
	}
	if got[1].Kind != monitorwire.EventRoomClosed {
		t.Fatalf("expected second event to be RoomClosed, got %v", got[1].Kind)
	}
}

func TestWorkerDiedUnexpectedly_TriggersRoomFatalError(t *testing.T) {
	var sim *mediaworker.SimWorker
	d := dispatch.New(dispatch.Config{MaxWorkers: 1, ConsumersPerWorker: 500}, func() mediaworker.Worker {
		sim = mediaworker.NewSimWorker()
		return sim
	})
	bundle, err := d.CreateRouter(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bundle.NotifyConsumerCreated()

	r := NewWithID(id.NewFactory().NewRoomId(), bundle, nil)
	fired := false
	r.OnFatalError(func() { fired = true })

	sim.Kill()

	if !fired {
		t.Fatalf("expected room fatal error to fire when its worker died with a live consumer")
	}
}
