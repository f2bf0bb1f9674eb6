// Package dispatch implements the WorkerPool / RouterDispatch component:
// it owns media worker records, picks or creates a worker for each new
// router (the least-loaded one once the pool is full), and reacts to
// worker death. The per-worker consumer cap in Config is advisory and is
// not consulted when picking a worker. Router and WebRTC-server creation
// calls into a mediaworker.Worker are wrapped in a circuit breaker,
// mirroring the teacher's pkg/sfu.SFUClient pattern for its external SFU
// RPC calls; Close is called directly.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hocman2/sfu-coordinator/internal/logging"
	"github.com/hocman2/sfu-coordinator/internal/mediaworker"
	"github.com/hocman2/sfu-coordinator/internal/metrics"
	"github.com/hocman2/sfu-coordinator/pkg/eventbag"
)

var ErrNoWorkerAvailable = errors.New("dispatch: no media worker available and none can be created")

type Config struct {
	MaxWorkers         int
	ConsumersPerWorker int // advisory only; never refuses a request
	PublicIP           string
}

type workerRecord struct {
	mu               sync.Mutex
	worker           mediaworker.Worker
	server           *mediaworker.WebRtcServer
	routerCount      int
	consumerCount    atomic.Int64
	diedUnexpectedly *eventbag.Once[struct{}]
	unsubDead        func()
}

// RouterBundle is what CreateRouter hands back: a router, the shared
// WebRTC server, a single-shot worker-death event, and the two hooks the
// caller invokes around consumer creation/close so the worker's advisory
// load metric stays accurate.
type RouterBundle struct {
	Router                 *mediaworker.Router
	Server                 *mediaworker.WebRtcServer
	WorkerDiedUnexpectedly *eventbag.Once[struct{}]

	onConsumerCreated func()
	onConsumerClosed  func()
}

func (b *RouterBundle) NotifyConsumerCreated() { b.onConsumerCreated() }
func (b *RouterBundle) NotifyConsumerClosed()  { b.onConsumerClosed() }

// Dispatch is the WorkerPool / RouterDispatch.
type Dispatch struct {
	cfg       Config
	newWorker func() mediaworker.Worker
	cb        *gobreaker.CircuitBreaker

	mu      sync.Mutex
	workers []*workerRecord
}

func New(cfg Config, newWorker func() mediaworker.Worker) *Dispatch {
	st := gobreaker.Settings{
		Name:        "media-worker",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateClosed:
				v = 0
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("media-worker").Set(v)
		},
	}
	return &Dispatch{cfg: cfg, newWorker: newWorker, cb: gobreaker.NewCircuitBreaker(st)}
}

// CreateRouter picks a worker per the §4.1 policy and creates a router on
// it.
func (d *Dispatch) CreateRouter(ctx context.Context) (*RouterBundle, error) {
	rec, err := d.pickOrSpawnWorker(ctx)
	if err != nil {
		return nil, err
	}

	result, err := d.cb.Execute(func() (any, error) {
		return rec.worker.CreateRouter(ctx, mediaworker.DefaultCodecs())
	})
	if err != nil {
		return nil, d.wrapBreakerErr("create router", err)
	}
	router := result.(*mediaworker.Router)

	rec.mu.Lock()
	rec.routerCount++
	rec.mu.Unlock()

	router.OnClose(func() { d.onRouterClosed(ctx, rec) })

	bundle := &RouterBundle{
		Router:                 router,
		Server:                 rec.server,
		WorkerDiedUnexpectedly: rec.diedUnexpectedly,
		onConsumerCreated: func() {
			n := rec.consumerCount.Add(1)
			metrics.WorkerConsumers.WithLabelValues(rec.worker.ID().String()).Set(float64(n))
		},
		onConsumerClosed: func() {
			n := rec.consumerCount.Add(-1)
			metrics.WorkerConsumers.WithLabelValues(rec.worker.ID().String()).Set(float64(n))
		},
	}
	return bundle, nil
}

func (d *Dispatch) onRouterClosed(ctx context.Context, rec *workerRecord) {
	rec.mu.Lock()
	rec.routerCount--
	empty := rec.routerCount == 0
	rec.mu.Unlock()

	if empty {
		d.dropWorker(ctx, rec)
	}
}

func (d *Dispatch) pickOrSpawnWorker(ctx context.Context) (*workerRecord, error) {
	d.mu.Lock()
	n := len(d.workers)
	d.mu.Unlock()

	if n < d.cfg.MaxWorkers {
		return d.spawnWorker(ctx)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.workers) == 0 {
		return nil, ErrNoWorkerAvailable
	}
	best := d.workers[0]
	bestCount := best.consumerCount.Load()
	for _, rec := range d.workers[1:] {
		if c := rec.consumerCount.Load(); c < bestCount {
			best, bestCount = rec, c
		}
	}
	return best, nil
}

func (d *Dispatch) spawnWorker(ctx context.Context) (*workerRecord, error) {
	w := d.newWorker()

	result, err := d.cb.Execute(func() (any, error) {
		return w.CreateWebRtcServer(ctx, d.listenInfo())
	})
	if err != nil {
		return nil, d.wrapBreakerErr("spawn worker", err)
	}
	server := result.(*mediaworker.WebRtcServer)

	rec := &workerRecord{worker: w, server: server, diedUnexpectedly: eventbag.NewOnce[struct{}]()}
	rec.unsubDead = w.OnDead(func() { d.onWorkerDead(rec) })

	d.mu.Lock()
	d.workers = append(d.workers, rec)
	d.mu.Unlock()

	metrics.ActiveWorkers.Inc()
	logging.Info(ctx, "media worker spawned", zap.String("worker_id", w.ID().String()))
	return rec, nil
}

func (d *Dispatch) onWorkerDead(rec *workerRecord) {
	d.removeRecord(rec)
	metrics.WorkerDeaths.Inc()
	metrics.ActiveWorkers.Dec()
	if rec.consumerCount.Load() > 0 {
		rec.diedUnexpectedly.Fire(struct{}{})
	}
}

func (d *Dispatch) dropWorker(ctx context.Context, rec *workerRecord) {
	if !d.removeRecord(rec) {
		return
	}
	rec.unsubDead()
	_ = rec.worker.Close(ctx)
	metrics.ActiveWorkers.Dec()
}

func (d *Dispatch) removeRecord(rec *workerRecord) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, r := range d.workers {
		if r == rec {
			d.workers = append(d.workers[:i], d.workers[i+1:]...)
			return true
		}
	}
	return false
}

func (d *Dispatch) listenInfo() mediaworker.ListenInfo {
	if d.cfg.PublicIP != "" {
		return mediaworker.ListenInfo{ListenIP: "0.0.0.0", AnnouncedIP: d.cfg.PublicIP}
	}
	return mediaworker.ListenInfo{ListenIP: "127.0.0.1"}
}

func (d *Dispatch) wrapBreakerErr(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) {
		metrics.CircuitBreakerFailures.WithLabelValues("media-worker").Inc()
	}
	return fmt.Errorf("dispatch: %s: %w", op, err)
}

// WorkerCount reports the current number of live worker records. Exposed
// for tests and the health endpoint.
func (d *Dispatch) WorkerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}
