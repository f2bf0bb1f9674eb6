package mediaworker

import (
	"context"
	"sync"

	"github.com/hocman2/sfu-coordinator/pkg/eventbag"
	"github.com/hocman2/sfu-coordinator/pkg/id"
)

// SimWorker is the in-process stand-in for the native media engine. It
// performs no real ICE/DTLS/SRTP/RTP work — it only mints handles and
// tracks their open/closed state, which is all the coordination plane
// needs to exercise against.
type SimWorker struct {
	id   id.WorkerId
	dead *eventbag.Once[struct{}]

	mu    sync.Mutex
	alive bool
}

func NewSimWorker() *SimWorker {
	return &SimWorker{
		id:    id.NewFactory().NewWorkerId(),
		dead:  eventbag.NewOnce[struct{}](),
		alive: true,
	}
}

func (w *SimWorker) ID() id.WorkerId { return w.id }

func (w *SimWorker) CreateRouter(ctx context.Context, codecs []RtpCodecCapability) (*Router, error) {
	w.mu.Lock()
	alive := w.alive
	w.mu.Unlock()
	if !alive {
		return nil, ErrWorkerClosed
	}
	return newRouter(w, codecs), nil
}

func (w *SimWorker) CreateWebRtcServer(ctx context.Context, listen ListenInfo) (*WebRtcServer, error) {
	w.mu.Lock()
	alive := w.alive
	w.mu.Unlock()
	if !alive {
		return nil, ErrWorkerClosed
	}
	return newWebRtcServer(w, listen), nil
}

func (w *SimWorker) OnDead(fn func()) func() {
	return w.dead.Subscribe(func(struct{}) { fn() })
}

func (w *SimWorker) Close(ctx context.Context) error {
	w.mu.Lock()
	w.alive = false
	w.mu.Unlock()
	return nil
}

// Kill simulates an unexpected worker death: it fires the on-dead event
// exactly once. Used by dispatch tests to exercise worker-death handling
// without a real crash.
func (w *SimWorker) Kill() {
	w.mu.Lock()
	w.alive = false
	w.mu.Unlock()
	w.dead.Fire(struct{}{})
}

func (w *SimWorker) Alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alive
}
