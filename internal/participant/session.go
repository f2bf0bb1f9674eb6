// Package participant implements ParticipantSession: the per-connection
// WebSocket signaling state machine. It owns both WebRTC transports for
// one participant, any producers/consumers created on them, and fans out
// peer producer events received from its room.
//
// The two-goroutine read/write-pump split, the wsConnection testability
// interface, and the buffered outbound channel follow the teacher's
// internal/v1/session/client.go; JSON signaling replaces the teacher's
// protobuf wire format (see DESIGN.md for why).
package participant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hocman2/sfu-coordinator/internal/logging"
	"github.com/hocman2/sfu-coordinator/internal/mediaworker"
	"github.com/hocman2/sfu-coordinator/internal/metrics"
	"github.com/hocman2/sfu-coordinator/internal/room"
	"github.com/hocman2/sfu-coordinator/pkg/id"
	"github.com/hocman2/sfu-coordinator/pkg/wire"
	"github.com/hocman2/sfu-coordinator/pkg/wire/monitorwire"
)

// wsConnection abstracts the WebSocket operations a session needs, so
// tests can substitute a mock instead of a real *websocket.Conn.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// RoomHandle is the narrow view of a room a session depends on, letting
// tests substitute a mock room.
type RoomHandle interface {
	RoomID() id.RoomId
	Router() *mediaworker.Router
	Server() *mediaworker.WebRtcServer
	AddProducer(participantID id.ParticipantId, p *mediaworker.Producer)
	RemoveParticipant(participantID id.ParticipantId)
	GetAllProducers() []room.ProducerEvent
	OnProducerAdd(fn func(room.ProducerEvent)) func()
	OnProducerRemove(fn func(room.ProducerEvent)) func()
	OnFatalError(fn func()) func()
	NotifyConsumerCreated()
	NotifyConsumerClosed()
	Release()
}

type outboundKind int

const (
	outboundText outboundKind = iota
	outboundPing
	outboundPong
	outboundClose
)

type outboundMsg struct {
	kind outboundKind
	data []byte
}

const writeWait = 10 * time.Second

// maxConsecutiveErrors is the three-strike rule both halves of the
// connection enforce independently.
const maxConsecutiveErrors = 3

// Session is ParticipantSession.
type Session struct {
	ID   id.ParticipantId
	room RoomHandle
	emit func(monitorwire.Event)

	producerTransport *mediaworker.Transport
	consumerTransport *mediaworker.Transport

	capsMu sync.Mutex
	caps   mediaworker.RtpCapabilities

	consumersMu sync.Mutex
	consumers   map[id.ConsumerId]*mediaworker.Consumer

	producersMu sync.Mutex
	producers   []*mediaworker.Producer

	unsubs []func()

	send chan outboundMsg

	inboundErrs  atomic.Int32
	outboundErrs atomic.Int32
}

// New allocates consumer and producer transports from the room's WebRTC
// server. Failure surfaces as an error; no partial transport is kept.
func New(ctx context.Context, r RoomHandle, emit func(monitorwire.Event)) (*Session, error) {
	producerTransport, err := r.Server().CreateTransport(ctx)
	if err != nil {
		return nil, fmt.Errorf("participant: create producer transport: %w", err)
	}
	consumerTransport, err := r.Server().CreateTransport(ctx)
	if err != nil {
		return nil, fmt.Errorf("participant: create consumer transport: %w", err)
	}

	return &Session{
		ID:                id.NewFactory().NewParticipantId(),
		room:              r,
		emit:              emit,
		producerTransport: producerTransport,
		consumerTransport: consumerTransport,
		consumers:         make(map[id.ConsumerId]*mediaworker.Consumer),
		send:              make(chan outboundMsg, 256),
	}, nil
}

// Run executes the session's full lifecycle: announce entry, subscribe to
// the room, replay existing producers, pump inbound/outbound halves, and
// on exit perform the drop behavior. It blocks until the connection ends.
func (s *Session) Run(ctx context.Context, conn wsConnection) {
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	s.emitEvent(monitorwire.ParticipantEntered(s.room.RoomID().String(), s.ID.String()))

	s.enqueueInit()
	s.subscribeToRoom()
	for _, pe := range s.room.GetAllProducers() {
		if pe.ParticipantID == s.ID {
			continue
		}
		s.enqueueServerMessage(wire.ProducerAdded(pe.ParticipantID.String(), pe.ProducerID.String()))
	}

	go s.inboundLoop(ctx, conn)
	s.outboundLoop(conn)

	_ = conn.Close()
	s.drop(ctx)
}

func (s *Session) emitEvent(e monitorwire.Event) {
	if s.emit != nil {
		s.emit(e)
	}
}

func (s *Session) subscribeToRoom() {
	s.unsubs = append(s.unsubs, s.room.OnProducerAdd(func(e room.ProducerEvent) {
		if e.ParticipantID == s.ID {
			return
		}
		s.enqueueServerMessage(wire.ProducerAdded(e.ParticipantID.String(), e.ProducerID.String()))
	}))
	s.unsubs = append(s.unsubs, s.room.OnProducerRemove(func(e room.ProducerEvent) {
		if e.ParticipantID == s.ID {
			return
		}
		s.enqueueServerMessage(wire.ProducerRemoved(e.ParticipantID.String(), e.ProducerID.String()))
	}))
	s.unsubs = append(s.unsubs, s.room.OnFatalError(func() {
		s.enqueueClose()
	}))
}

func (s *Session) enqueueInit() {
	caps, err := json.Marshal(s.room.Router().Codecs)
	if err != nil {
		logging.Error(context.Background(), "participant: marshal router capabilities failed", zap.Error(err))
		caps = json.RawMessage(`[]`)
	}
	msg := wire.Init(caps, toWireTransport(s.producerTransport), toWireTransport(s.consumerTransport))
	s.enqueueServerMessage(msg)
}

func toWireTransport(t *mediaworker.Transport) *wire.TransportDescription {
	return &wire.TransportDescription{
		Id:             t.ID.String(),
		IceParameters:  t.Description.Ice,
		IceCandidates:  t.Description.IceCandidates,
		DtlsParameters: t.Description.Dtls,
	}
}

func (s *Session) enqueueServerMessage(msg wire.ServerMessage) {
	data, err := wire.Marshal(msg)
	if err != nil {
		logging.Error(context.Background(), "participant: marshal server message failed", zap.Error(err))
		return
	}
	s.enqueueOutbound(outboundMsg{kind: outboundText, data: data})
}

func (s *Session) enqueueOutbound(m outboundMsg) {
	select {
	case s.send <- m:
	default:
		logging.Warn(context.Background(), "participant: send channel full, dropping message", zap.String("participant_id", s.ID.String()))
	}
}

func (s *Session) enqueueClose() {
	select {
	case s.send <- outboundMsg{kind: outboundClose}:
	default:
	}
}

func (s *Session) inboundLoop(ctx context.Context, conn wsConnection) {
	defer s.enqueueClose()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if s.inboundErrs.Add(1) >= maxConsecutiveErrors {
				return
			}
			continue
		}
		s.inboundErrs.Store(0)

		switch mt {
		case websocket.PingMessage:
			s.enqueueOutbound(outboundMsg{kind: outboundPong, data: data})
		case websocket.PongMessage:
			// no-op
		case websocket.CloseMessage:
			return
		case websocket.BinaryMessage:
			s.enqueueServerMessage(wire.Warning("binary frames are not supported"))
		case websocket.TextMessage:
			s.handleClientMessage(ctx, data)
		}
	}
}

func (s *Session) outboundLoop(conn wsConnection) {
	for msg := range s.send {
		switch msg.kind {
		case outboundClose:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case outboundPing:
			if s.writeFrame(conn, websocket.PingMessage, msg.data) {
				return
			}
		case outboundPong:
			if s.writeFrame(conn, websocket.PongMessage, msg.data) {
				return
			}
		default:
			if s.writeFrame(conn, websocket.TextMessage, msg.data) {
				return
			}
		}
	}
}

// writeFrame returns true when the three-strike limit has just been
// reached and the caller should stop pumping.
func (s *Session) writeFrame(conn wsConnection, messageType int, data []byte) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(messageType, data); err != nil {
		return s.outboundErrs.Add(1) >= maxConsecutiveErrors
	}
	s.outboundErrs.Store(0)
	return false
}

func (s *Session) handleClientMessage(ctx context.Context, data []byte) {
	msg, err := wire.UnmarshalClientMessage(data)
	if err != nil {
		logging.Warn(ctx, "participant: malformed client message", zap.Error(err), zap.String("participant_id", s.ID.String()))
		return
	}

	switch msg.Action {
	case wire.ActionInit:
		s.handleInit(msg)
	case wire.ActionConnectProducerTransport:
		s.handleConnectProducerTransport(ctx, msg)
	case wire.ActionConnectConsumerTransport:
		s.handleConnectConsumerTransport(ctx, msg)
	case wire.ActionProduce:
		s.handleProduce(ctx, msg)
	case wire.ActionConsume:
		s.handleConsume(ctx, msg)
	case wire.ActionConsumerResume:
		s.handleConsumerResume(ctx, msg)
	default:
		s.enqueueServerMessage(wire.Warning("unknown action"))
		metrics.SignalingMessages.WithLabelValues(string(msg.Action), "unknown").Inc()
	}
}

func (s *Session) handleInit(msg wire.ClientMessage) {
	s.capsMu.Lock()
	s.caps = msg.RtpCapabilities
	s.capsMu.Unlock()
	metrics.SignalingMessages.WithLabelValues(string(wire.ActionInit), "ok").Inc()
}

func (s *Session) handleConnectProducerTransport(ctx context.Context, msg wire.ClientMessage) {
	if err := s.producerTransport.Connect(ctx, msg.DtlsParameters); err != nil {
		s.enqueueServerMessage(wire.Warning("failed to connect producer transport"))
		metrics.SignalingMessages.WithLabelValues(string(wire.ActionConnectProducerTransport), "error").Inc()
		return
	}
	s.enqueueServerMessage(wire.ConnectedProducerTransport())
	metrics.SignalingMessages.WithLabelValues(string(wire.ActionConnectProducerTransport), "ok").Inc()
}

func (s *Session) handleConnectConsumerTransport(ctx context.Context, msg wire.ClientMessage) {
	if err := s.consumerTransport.Connect(ctx, msg.DtlsParameters); err != nil {
		s.enqueueServerMessage(wire.Warning("failed to connect consumer transport"))
		metrics.SignalingMessages.WithLabelValues(string(wire.ActionConnectConsumerTransport), "error").Inc()
		return
	}
	s.enqueueServerMessage(wire.ConnectedConsumerTransport())
	metrics.SignalingMessages.WithLabelValues(string(wire.ActionConnectConsumerTransport), "ok").Inc()
}

func (s *Session) handleProduce(ctx context.Context, msg wire.ClientMessage) {
	kind := mediaworker.MediaKind(msg.Kind)
	if kind != mediaworker.KindAudio && kind != mediaworker.KindVideo {
		s.enqueueServerMessage(wire.Warning("produce requires a valid kind"))
		metrics.SignalingMessages.WithLabelValues(string(wire.ActionProduce), "error").Inc()
		return
	}
	if len(msg.RtpParameters) == 0 {
		s.enqueueServerMessage(wire.Warning("produce requires rtpParameters"))
		metrics.SignalingMessages.WithLabelValues(string(wire.ActionProduce), "error").Inc()
		return
	}

	p, err := s.producerTransport.Produce(ctx, kind, msg.RtpParameters)
	if err != nil {
		s.enqueueServerMessage(wire.Warning("failed to produce"))
		metrics.SignalingMessages.WithLabelValues(string(wire.ActionProduce), "error").Inc()
		return
	}

	s.producersMu.Lock()
	s.producers = append(s.producers, p)
	s.producersMu.Unlock()

	s.room.AddProducer(s.ID, p)
	s.enqueueServerMessage(wire.Produced(p.ID.String()))
	metrics.SignalingMessages.WithLabelValues(string(wire.ActionProduce), "ok").Inc()
}

func (s *Session) handleConsume(ctx context.Context, msg wire.ClientMessage) {
	s.capsMu.Lock()
	caps := s.caps
	s.capsMu.Unlock()
	if caps == nil {
		s.enqueueServerMessage(wire.Warning("consume requires init first"))
		metrics.SignalingMessages.WithLabelValues(string(wire.ActionConsume), "error").Inc()
		return
	}

	producerID, err := id.ParseProducerId(msg.ProducerId)
	if err != nil {
		s.enqueueServerMessage(wire.Warning("invalid producer id"))
		metrics.SignalingMessages.WithLabelValues(string(wire.ActionConsume), "error").Inc()
		return
	}

	consumer, err := s.consumerTransport.Consume(ctx, producerID, mediaworker.MediaKind(msg.Kind), msg.RtpParameters, caps)
	if err != nil {
		s.enqueueServerMessage(wire.Warning("failed to consume"))
		metrics.SignalingMessages.WithLabelValues(string(wire.ActionConsume), "error").Inc()
		return
	}

	s.consumersMu.Lock()
	s.consumers[consumer.ID] = consumer
	s.consumersMu.Unlock()
	s.room.NotifyConsumerCreated()

	s.enqueueServerMessage(wire.Consumed(consumer.ID.String(), string(consumer.Kind), producerID.String(), consumer.Params))
	metrics.SignalingMessages.WithLabelValues(string(wire.ActionConsume), "ok").Inc()
}

func (s *Session) handleConsumerResume(ctx context.Context, msg wire.ClientMessage) {
	consumerID, err := id.ParseConsumerId(msg.Id)
	if err != nil {
		s.enqueueServerMessage(wire.Warning("invalid consumer id"))
		return
	}

	s.consumersMu.Lock()
	c, ok := s.consumers[consumerID]
	s.consumersMu.Unlock()
	if !ok {
		s.enqueueServerMessage(wire.Warning("unknown consumer"))
		metrics.SignalingMessages.WithLabelValues(string(wire.ActionConsumerResume), "error").Inc()
		return
	}

	if err := c.Resume(ctx); err != nil {
		s.enqueueServerMessage(wire.Warning("failed to resume consumer"))
		metrics.SignalingMessages.WithLabelValues(string(wire.ActionConsumerResume), "error").Inc()
		return
	}
	metrics.SignalingMessages.WithLabelValues(string(wire.ActionConsumerResume), "ok").Inc()
}

// drop releases everything the session owned and removes it from the
// room, per the spec's drop-behavior contract.
func (s *Session) drop(ctx context.Context) {
	for _, unsub := range s.unsubs {
		unsub()
	}

	s.consumersMu.Lock()
	for _, c := range s.consumers {
		_ = c.Close(ctx)
		s.room.NotifyConsumerClosed()
	}
	s.consumersMu.Unlock()

	s.producersMu.Lock()
	for _, p := range s.producers {
		_ = p.Close(ctx)
	}
	s.producersMu.Unlock()

	s.room.RemoveParticipant(s.ID)
	s.emitEvent(monitorwire.ParticipantLeft(s.room.RoomID().String(), s.ID.String()))
	s.room.Release()
}
