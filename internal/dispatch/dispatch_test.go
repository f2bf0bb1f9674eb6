package dispatch

import (
	"context"
	"testing"

	"github.com/hocman2/sfu-coordinator/internal/mediaworker"
)

func TestCreateRouter_SpawnsWorkerUpToMax(t *testing.T) {
	ctx := context.Background()
	d := New(Config{MaxWorkers: 2, ConsumersPerWorker: 500}, func() mediaworker.Worker {
		return mediaworker.NewSimWorker()
	})

	if _, err := d.CreateRouter(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := d.CreateRouter(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.WorkerCount(); got != 2 {
		t.Fatalf("expected 2 workers spawned, got %d", got)
	}

	// a third router must reuse an existing worker, not spawn a third
	if _, err := d.CreateRouter(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.WorkerCount(); got != 2 {
		t.Fatalf("expected worker count to stay at 2, got %d", got)
	}
}

func TestCreateRouter_PicksLeastLoadedWorker(t *testing.T) {
	ctx := context.Background()
	d := New(Config{MaxWorkers: 2, ConsumersPerWorker: 500}, func() mediaworker.Worker {
		return mediaworker.NewSimWorker()
	})

	b1, err := d.CreateRouter(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := d.CreateRouter(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// load worker 1 with a consumer so worker 2 should be picked next
	b1.NotifyConsumerCreated()

	b3, err := d.CreateRouter(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b3.Router.WorkerID() == b1.Router.WorkerID() {
		t.Fatalf("expected the least-loaded worker to be picked, got the loaded one")
	}
}

func TestRouterClose_DropsWorkerWhenRouterCountReachesZero(t *testing.T) {
	ctx := context.Background()
	d := New(Config{MaxWorkers: 1, ConsumersPerWorker: 500}, func() mediaworker.Worker {
		return mediaworker.NewSimWorker()
	})

	b, err := d.CreateRouter(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.WorkerCount(); got != 1 {
		t.Fatalf("expected 1 worker, got %d", got)
	}

	b.Router.Close(ctx)

	if got := d.WorkerCount(); got != 0 {
		t.Fatalf("expected worker dropped after last router closed, got %d workers", got)
	}
}

func TestWorkerDeath_FiresOnlyWhenConsumersWereLive(t *testing.T) {
	ctx := context.Background()
	var sim *mediaworker.SimWorker
	d := New(Config{MaxWorkers: 1, ConsumersPerWorker: 500}, func() mediaworker.Worker {
		sim = mediaworker.NewSimWorker()
		return sim
	})

	b, err := d.CreateRouter(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fired := false
	b.WorkerDiedUnexpectedly.Subscribe(func(struct{}) { fired = true })

	sim.Kill()

	if fired {
		t.Fatalf("expected no fatal event: no consumers were ever live")
	}
	if got := d.WorkerCount(); got != 0 {
		t.Fatalf("expected worker record removed on death, got %d", got)
	}
}

func TestWorkerDeath_FiresWhenConsumersWereLive(t *testing.T) {
	ctx := context.Background()
	var sim *mediaworker.SimWorker
	d := New(Config{MaxWorkers: 1, ConsumersPerWorker: 500}, func() mediaworker.Worker {
		sim = mediaworker.NewSimWorker()
		return sim
	})

	b, err := d.CreateRouter(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b.NotifyConsumerCreated()

	fired := false
	b.WorkerDiedUnexpectedly.Subscribe(func(struct{}) { fired = true })

	sim.Kill()

	if !fired {
		t.Fatalf("expected fatal event: worker had a live consumer at death")
	}
}

func TestCreateRouter_FailsFatallyWhenNoWorkerCanBeCreated(t *testing.T) {
	ctx := context.Background()
	d := New(Config{MaxWorkers: 0, ConsumersPerWorker: 500}, func() mediaworker.Worker {
		return mediaworker.NewSimWorker()
	})

	if _, err := d.CreateRouter(ctx); err != ErrNoWorkerAvailable {
		t.Fatalf("expected ErrNoWorkerAvailable, got %v", err)
	}
}
