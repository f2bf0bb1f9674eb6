package participant

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hocman2/sfu-coordinator/internal/dispatch"
	"github.com/hocman2/sfu-coordinator/internal/mediaworker"
	"github.com/hocman2/sfu-coordinator/internal/room"
	"github.com/hocman2/sfu-coordinator/pkg/wire"
)

func testRoom(t *testing.T) *room.Room {
	t.Helper()
	d := dispatch.New(dispatch.Config{MaxWorkers: 2, ConsumersPerWorker: 500}, func() mediaworker.Worker {
		return mediaworker.NewSimWorker()
	})
	bundle, err := d.CreateRouter(context.Background())
	if err != nil {
		t.Fatalf("create router: %v", err)
	}
	return room.New(bundle, nil)
}

// fakeConn is an in-memory stand-in for a *websocket.Conn: inbound holds
// frames the test wants the session to read, outbound collects every
// frame the session writes.
type fakeConn struct {
	inbound  chan wsFrame
	outbound chan wsFrame
	closed   chan struct{}
}

type wsFrame struct {
	messageType int
	data        []byte
}

const (
	textMessage  = 1
	closeMessage = 8
)

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan wsFrame, 16),
		outbound: make(chan wsFrame, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	f, ok := <-c.inbound
	if !ok {
		return 0, nil, errConnClosed
	}
	return f.messageType, f.data, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case c.outbound <- wsFrame{messageType, data}:
		return nil
	default:
		return errConnClosed
	}
}

func (c *fakeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeConn) sendClient(t *testing.T, msg wire.ClientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal client message: %v", err)
	}
	c.inbound <- wsFrame{textMessage, data}
}

func (c *fakeConn) readServer(t *testing.T) wire.ServerMessage {
	t.Helper()
	select {
	case f := <-c.outbound:
		var msg wire.ServerMessage
		if err := json.Unmarshal(f.data, &msg); err != nil {
			t.Fatalf("unmarshal server message: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server message")
		return wire.ServerMessage{}
	}
}

type stubErr struct{ s string }

func (e *stubErr) Error() string { return e.s }

var errConnClosed = &stubErr{s: "fake connection closed"}

func newSession(t *testing.T, r *room.Room) *Session {
	t.Helper()
	s, err := New(context.Background(), r, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestRun_EmitsInitBeforeAnyClientMessage(t *testing.T) {
	r := testRoom(t)
	s := newSession(t, r)
	conn := newFakeConn()

	go s.Run(context.Background(), conn)

	got := conn.readServer(t)
	if got.Action != wire.ActionSInit {
		t.Fatalf("expected init as the first server message, got %+v", got)
	}

	conn.Close()
}

func TestRun_ProduceThenConsumeAcrossTwoSessions(t *testing.T) {
	r := testRoom(t)

	a := newSession(t, r)
	connA := newFakeConn()
	go a.Run(context.Background(), connA)
	_ = connA.readServer(t) // init

	connA.sendClient(t, wire.ClientMessage{Action: wire.ActionInit, RtpCapabilities: json.RawMessage(`{}`)})
	connA.sendClient(t, wire.ClientMessage{Action: wire.ActionProduce, Kind: "audio", RtpParameters: json.RawMessage(`{}`)})
	produced := connA.readServer(t)
	if produced.Action != wire.ActionSProduced || produced.Id == "" {
		t.Fatalf("expected produced with an id, got %+v", produced)
	}

	r.AddRef()
	b := newSession(t, r)
	connB := newFakeConn()
	go b.Run(context.Background(), connB)
	_ = connB.readServer(t) // init

	added := connB.readServer(t)
	if added.Action != wire.ActionSProducerAdded || added.ProducerId != produced.Id {
		t.Fatalf("expected producerAdded for %s, got %+v", produced.Id, added)
	}

	connB.sendClient(t, wire.ClientMessage{Action: wire.ActionInit, RtpCapabilities: json.RawMessage(`{}`)})
	connB.sendClient(t, wire.ClientMessage{Action: wire.ActionConsume, ProducerId: produced.Id})
	consumed := connB.readServer(t)
	if consumed.Action != wire.ActionSConsumed || consumed.ProducerId != produced.Id {
		t.Fatalf("expected consumed for producer %s, got %+v", produced.Id, consumed)
	}

	connA.Close()
	connB.Close()
}

func TestRun_ConsumeBeforeInitWarns(t *testing.T) {
	r := testRoom(t)
	s := newSession(t, r)
	conn := newFakeConn()

	go s.Run(context.Background(), conn)
	_ = conn.readServer(t) // init

	conn.sendClient(t, wire.ClientMessage{Action: wire.ActionConsume, ProducerId: "does-not-matter"})
	warning := conn.readServer(t)
	if warning.Action != wire.ActionSWarning {
		t.Fatalf("expected warning for consume before init, got %+v", warning)
	}

	conn.Close()
}

func TestRun_MalformedProduceWarnsAndStaysOpen(t *testing.T) {
	r := testRoom(t)
	s := newSession(t, r)
	conn := newFakeConn()

	go s.Run(context.Background(), conn)
	_ = conn.readServer(t) // init

	conn.sendClient(t, wire.ClientMessage{Action: wire.ActionProduce})
	warning := conn.readServer(t)
	if warning.Action != wire.ActionSWarning {
		t.Fatalf("expected warning for malformed produce, got %+v", warning)
	}

	conn.sendClient(t, wire.ClientMessage{Action: wire.ActionInit, RtpCapabilities: json.RawMessage(`{}`)})
	conn.sendClient(t, wire.ClientMessage{Action: wire.ActionProduce, Kind: "audio", RtpParameters: json.RawMessage(`{}`)})
	produced := conn.readServer(t)
	if produced.Action != wire.ActionSProduced {
		t.Fatalf("expected session to keep working after a warning, got %+v", produced)
	}

	conn.Close()
}

func TestRun_DropOnDisconnectRemovesParticipant(t *testing.T) {
	r := testRoom(t)
	s := newSession(t, r)
	conn := newFakeConn()

	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), conn)
		close(done)
	}()
	_ = conn.readServer(t) // init

	conn.sendClient(t, wire.ClientMessage{Action: wire.ActionInit, RtpCapabilities: json.RawMessage(`{}`)})
	conn.sendClient(t, wire.ClientMessage{Action: wire.ActionProduce, Kind: "audio", RtpParameters: json.RawMessage(`{}`)})
	_ = conn.readServer(t) // produced

	close(conn.inbound)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to return after disconnect")
	}

	if got := len(r.GetAllProducers()); got != 0 {
		t.Fatalf("expected RemoveParticipant to clear all producers, got %d left", got)
	}
}
