package events

import (
	"sync"
	"sync/atomic"
)

// Bus is a typed observer registry. Handlers run synchronously on the
// publishing goroutine, in subscription order.
type Bus[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(T)
	order  []uint64
}

// NewBus returns an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[uint64]func(T))}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	once   sync.Once
	cancel func()
	closed atomic.Bool
}

// Unsubscribe detaches the handler. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.closed.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool {
	return s != nil && !s.closed.Load()
}

// Subscribe registers fn for every future Publish.
func (b *Bus[T]) Subscribe(fn func(T)) *Subscription {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	return &Subscription{cancel: func() { b.remove(id) }}
}

// SubscribeChan delivers events on a buffered channel. Delivery never blocks
// the publisher: when the buffer is full the event is dropped for this
// subscriber. The channel is closed on Unsubscribe.
func (b *Bus[T]) SubscribeChan(buffer int) (<-chan T, *Subscription) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)
	var mu sync.Mutex
	closed := false

	sub := b.Subscribe(func(v T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- v:
		default:
		}
	})
	inner := sub.cancel
	sub.cancel = func() {
		inner()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}
	return ch, sub
}

// Publish delivers v to every current subscriber.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	handlers := make([]func(T), 0, len(b.order))
	for _, id := range b.order {
		if fn, ok := b.subs[id]; ok {
			handlers = append(handlers, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(v)
	}
}

// Len returns the number of active subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}
