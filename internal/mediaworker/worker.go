package mediaworker

import (
	"context"
	"errors"

	"github.com/hocman2/sfu-coordinator/pkg/eventbag"
	"github.com/hocman2/sfu-coordinator/pkg/id"
)

var (
	ErrTransportClosed = errors.New("mediaworker: transport is closed")
	ErrProducerClosed  = errors.New("mediaworker: producer is closed")
	ErrConsumerClosed  = errors.New("mediaworker: consumer is closed")
	ErrWorkerClosed    = errors.New("mediaworker: worker is closed")
)

// Worker is the opaque native media engine's RPC surface as the
// coordination plane consumes it.
type Worker interface {
	ID() id.WorkerId
	CreateRouter(ctx context.Context, codecs []RtpCodecCapability) (*Router, error)
	CreateWebRtcServer(ctx context.Context, listen ListenInfo) (*WebRtcServer, error)
	// OnDead registers fn to run if the worker dies unexpectedly. Returns
	// an unsubscribe function.
	OnDead(fn func()) func()
	Close(ctx context.Context) error
}

// Router is a logical grouping of transports sharing a codec set inside
// one worker. A Room owns exactly one.
type Router struct {
	Codecs    []RtpCodecCapability
	worker    Worker
	closeOnce *eventbag.Once[struct{}]
}

func newRouter(w Worker, codecs []RtpCodecCapability) *Router {
	return &Router{Codecs: codecs, worker: w, closeOnce: eventbag.NewOnce[struct{}]()}
}

func (r *Router) WorkerID() id.WorkerId { return r.worker.ID() }

// OnClose registers fn to run when Close is called; it fires at most once.
func (r *Router) OnClose(fn func()) func() {
	return r.closeOnce.Subscribe(func(struct{}) { fn() })
}

func (r *Router) Close(ctx context.Context) error {
	r.closeOnce.Fire(struct{}{})
	return nil
}

// WebRtcServer is the UDP listener a worker binds; transports created
// inside it share the listen socket.
type WebRtcServer struct {
	Listen ListenInfo
	worker Worker
}

func newWebRtcServer(w Worker, listen ListenInfo) *WebRtcServer {
	return &WebRtcServer{Listen: listen, worker: w}
}

var factory = id.NewFactory()

// CreateTransport allocates a new DTLS/ICE transport on this server.
func (s *WebRtcServer) CreateTransport(ctx context.Context) (*Transport, error) {
	tid := factory.NewTransportId()
	desc := TransportDescription{
		ID:            tid,
		Ice:           []byte(`{"usernameFragment":"` + tid.String() + `"}`),
		IceCandidates: []byte(`[]`),
		Dtls:          []byte(`{"role":"auto","fingerprints":[]}`),
	}
	return &Transport{ID: tid, Description: desc, server: s}, nil
}

// Transport is a DTLS/ICE tunnel between one client and the SFU.
type Transport struct {
	ID          id.TransportId
	Description TransportDescription
	server      *WebRtcServer

	connected bool
	closed    bool
}

func (t *Transport) Connect(ctx context.Context, dtls DtlsParameters) error {
	if t.closed {
		return ErrTransportClosed
	}
	t.connected = true
	return nil
}

func (t *Transport) Close(ctx context.Context) error {
	t.closed = true
	return nil
}

// Produce creates a producer on this transport.
func (t *Transport) Produce(ctx context.Context, kind MediaKind, params RtpParameters) (*Producer, error) {
	if t.closed {
		return nil, ErrTransportClosed
	}
	return &Producer{ID: factory.NewProducerId(), Kind: kind, Params: params}, nil
}

// Consume creates a consumer on this transport for producerID, negotiated
// against caps. The consumer is created paused.
func (t *Transport) Consume(ctx context.Context, producerID id.ProducerId, kind MediaKind, producerParams RtpParameters, caps RtpCapabilities) (*Consumer, error) {
	if t.closed {
		return nil, ErrTransportClosed
	}
	return &Consumer{
		ID:         factory.NewConsumerId(),
		ProducerID: producerID,
		Kind:       kind,
		Params:     producerParams,
		paused:     true,
	}, nil
}

// Producer is a single outbound-from-client media stream.
type Producer struct {
	ID     id.ProducerId
	Kind   MediaKind
	Params RtpParameters

	closed bool
}

func (p *Producer) Close(ctx context.Context) error {
	if p.closed {
		return ErrProducerClosed
	}
	p.closed = true
	return nil
}

func (p *Producer) Closed() bool { return p.closed }

// Consumer is a single inbound-to-client delivery of a Producer. It is
// created paused; Resume must be called before media flows.
type Consumer struct {
	ID         id.ConsumerId
	ProducerID id.ProducerId
	Kind       MediaKind
	Params     RtpParameters

	paused bool
	closed bool
}

func (c *Consumer) Resume(ctx context.Context) error {
	if c.closed {
		return ErrConsumerClosed
	}
	c.paused = false
	return nil
}

func (c *Consumer) Close(ctx context.Context) error {
	if c.closed {
		return ErrConsumerClosed
	}
	c.closed = true
	return nil
}

func (c *Consumer) Paused() bool { return c.paused }
func (c *Consumer) Closed() bool { return c.closed }
