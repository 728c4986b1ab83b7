// Package events provides the pipeline's fan-out primitive: a broadcaster
// delivering generation and watcher events to any number of subscribers.
//
// Delivery is fire-and-forget per subscriber with bounded queuing. A slow or
// disconnected subscriber loses its oldest events; it never blocks
// publication to others and never blocks the scheduler.
package events

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber queue size used when Subscribe is
// called with a non-positive buffer.
const DefaultBuffer = 64

// Subscription is one subscriber's handle. Events arrive on C until
// Unsubscribe (or Broadcaster.Close) closes it.
type Subscription struct {
	C <-chan Event

	id      uint64
	ch      chan Event
	dropped atomic.Uint64
	b       *Broadcaster
	once    sync.Once
}

// Dropped returns how many events were discarded because this subscriber's
// queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.b.remove(s.id)
		close(s.ch)
	})
}

// Broadcaster fans events out to all current subscribers.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
	onDrop func()
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]*Subscription)}
}

// SetDropHook registers a callback invoked once per dropped event, for
// metrics. Set it before publishing begins.
func (b *Broadcaster) SetDropHook(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Subscribe registers a new subscriber with the given queue size.
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch, b: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers the event to every subscriber without blocking. When a
// subscriber's queue is full the oldest queued event is dropped to make room.
func (b *Broadcaster) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			select {
			case <-sub.ch:
				b.countDrop(sub)
			default:
			}
			select {
			case sub.ch <- evt:
			default:
				b.countDrop(sub)
			}
		}
	}
}

// countDrop is called with b.mu held (read or write).
func (b *Broadcaster) countDrop(sub *Subscription) {
	sub.dropped.Add(1)
	if b.onDrop != nil {
		b.onDrop()
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the broadcaster down and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}
