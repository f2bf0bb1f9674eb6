// Package eventbag is a small pub/sub primitive modeled on the
// subscriber-bag-with-unsubscribe idiom: subscribing returns a function
// that removes the subscription, and removal is idempotent and safe to
// call from inside the callback it unsubscribes.
package eventbag

import "sync"

// Bag holds subscribers that may fire any number of times.
type Bag[T any] struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]func(T)
}

func New[T any]() *Bag[T] {
	return &Bag[T]{subs: make(map[uint64]func(T))}
}

// Subscribe registers fn and returns an unsubscribe function. Calling the
// returned function more than once is a no-op.
func (b *Bag[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Emit calls every current subscriber with v. The bag's lock is held only
// long enough to snapshot the subscriber set — callbacks run without it
// held, so a callback may itself subscribe or unsubscribe without
// deadlocking.
func (b *Bag[T]) Emit(v T) {
	b.mu.Lock()
	fns := make([]func(T), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len reports the current subscriber count. Intended for tests.
func (b *Bag[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Once is a single-shot event: it fires at most one time. A subscription
// registered after it has already fired is invoked immediately with the
// value it fired with, matching the "close fires exactly once" style
// invariants subscribers depend on regardless of subscribe-vs-fire order.
type Once[T any] struct {
	mu    sync.Mutex
	fired bool
	val   T
	next  uint64
	subs  map[uint64]func(T)
}

func NewOnce[T any]() *Once[T] {
	return &Once[T]{subs: make(map[uint64]func(T))}
}

func (o *Once[T]) Subscribe(fn func(T)) func() {
	o.mu.Lock()
	if o.fired {
		v := o.val
		o.mu.Unlock()
		fn(v)
		return func() {}
	}
	id := o.next
	o.next++
	o.subs[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

// Fire fires the event exactly once; subsequent calls are no-ops.
func (o *Once[T]) Fire(v T) {
	o.mu.Lock()
	if o.fired {
		o.mu.Unlock()
		return
	}
	o.fired = true
	o.val = v
	fns := make([]func(T), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.subs = nil
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Fired reports whether Fire has already run.
func (o *Once[T]) Fired() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fired
}
