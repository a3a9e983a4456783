package repository

import (
	"classroom/pkg/domain"
	"sync"
)

// Handler receives events from a Bus. Handlers run on the publishing
// goroutine and must not block.
type Handler[T domain.Record] func(Event[T])

// Bus is a per-repository multicast channel. Publishing is serialized, so
// every handler observes events in publish order. There is no buffering and
// no replay: a handler registered after Publish returns never sees that event.
type Bus[T domain.Record] struct {
	publishMu sync.Mutex

	mu       sync.RWMutex
	handlers map[uint64]Handler[T]
	next     uint64
}

// NewBus returns an empty bus.
func NewBus[T domain.Record]() *Bus[T] {
	return &Bus[T]{handlers: make(map[uint64]Handler[T])}
}

// Subscribe registers fn and returns a function removing it. The returned
// function is idempotent.
func (b *Bus[T]) Subscribe(fn Handler[T]) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to every live handler and returns how many received it.
func (b *Bus[T]) Publish(e Event[T]) int {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.RLock()
	live := make([]Handler[T], 0, len(b.handlers))
	for _, h := range b.handlers {
		live = append(live, h)
	}
	b.mu.RUnlock()

	for _, h := range live {
		h(e)
	}
	return len(live)
}

// Len returns the number of registered handlers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
