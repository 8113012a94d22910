package interp

import (
	"context"
	"sort"
	"sync"
	"time"
)

// EventBus carries named signals between steps, and between interpreters
// that share it. Fired events stay fired: a wait on an event that has
// already fired returns its last payload immediately.
type EventBus struct {
	mu        sync.Mutex
	fired     map[string]eventRecord
	signals   map[string]chan struct{}
	listeners map[string]map[int]func(any)
	nextID    int
}

type eventRecord struct {
	payload any
	count   int
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		fired:     make(map[string]eventRecord),
		signals:   make(map[string]chan struct{}),
		listeners: make(map[string]map[int]func(any)),
	}
}

// Emit records name as fired with payload, wakes waiters and calls
// listeners synchronously in registration order.
func (b *EventBus) Emit(name string, payload any) {
	b.mu.Lock()
	rec := b.fired[name]
	rec.payload = payload
	rec.count++
	b.fired[name] = rec
	if sig, ok := b.signals[name]; ok {
		close(sig)
		delete(b.signals, name)
	}
	fns := b.listenersLocked(name)
	b.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}

func (b *EventBus) listenersLocked(name string) []func(any) {
	set := b.listeners[name]
	if len(set) == 0 {
		return nil
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(any), 0, len(ids))
	for _, id := range ids {
		out = append(out, set[id])
	}
	return out
}

// Subscribe registers fn for every future emission of name. The returned
// function removes it.
func (b *EventBus) Subscribe(name string, fn func(payload any)) func() {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.listeners[name] == nil {
		b.listeners[name] = make(map[int]func(any))
	}
	b.listeners[name][id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners[name], id)
	}
}

// Fired reports whether name has fired at least once.
func (b *EventBus) Fired(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fired[name].count > 0
}

// Count returns how many times name has fired.
func (b *EventBus) Count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fired[name].count
}

// Wait blocks until name fires, timeout elapses (zero waits without
// bound), ctx ends or stop closes. It reports whether the event fired.
func (b *EventBus) Wait(ctx context.Context, clock Clock, name string, timeout time.Duration, stop <-chan struct{}) (any, bool) {
	b.mu.Lock()
	if rec, ok := b.fired[name]; ok && rec.count > 0 {
		b.mu.Unlock()
		return rec.payload, true
	}
	sig, ok := b.signals[name]
	if !ok {
		sig = make(chan struct{})
		b.signals[name] = sig
	}
	b.mu.Unlock()

	if clock == nil {
		clock = RealClock()
	}
	var expired <-chan time.Time
	if timeout > 0 {
		expired = clock.After(timeout)
	}

	select {
	case <-sig:
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.fired[name].payload, true
	case <-expired:
		return nil, false
	case <-ctx.Done():
		return nil, false
	case <-stop:
		return nil, false
	}
}
