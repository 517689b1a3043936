// Package broadcast fans messages from a single producer out to every
// subscribed session.
//
// Each subscription owns a bounded drop-oldest queue, so Publish never waits on
// a slow session. A subscription that falls behind loses its oldest messages
// and can observe how many through TakeDropped.
package broadcast

import (
	"sync"

	"github.com/stfn-ko/Wasabi/internal/buffer"
	"github.com/stfn-ko/Wasabi/internal/metrics"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

// DefaultCapacity is the per-subscription queue length used when none is given.
const DefaultCapacity = 16

// Broadcaster delivers published messages to all live subscriptions.
type Broadcaster struct {
	capacity int
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New creates a Broadcaster whose subscriptions buffer up to capacity messages.
func New(capacity int, m *metrics.Metrics) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Broadcaster{
		capacity: capacity,
		metrics:  m,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Publish queues a copy of msg on every subscription. It never blocks.
// It returns the number of subscriptions the message was queued on.
func (b *Broadcaster) Publish(msg message.Message) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}
	for sub := range b.subs {
		if sub.push(msg.Clone()) {
			b.metrics.Incr(metrics.BroadcastDropped, 1)
		}
	}
	return len(b.subs)
}

// Subscribe registers a new subscription. Messages published before the call
// are not delivered to it. On a closed broadcaster the subscription is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{
		owner:  b,
		queue:  buffer.NewRing[message.Message](b.capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.closeLocal()
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// ReceiverCount returns the number of live subscriptions.
func (b *Broadcaster) ReceiverCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Queued messages remain readable.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.closeLocal()
	}
}

func (b *Broadcaster) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Subscription is one session's view of the broadcaster.
type Subscription struct {
	owner  *Broadcaster
	queue  *buffer.Ring[message.Message]
	notify chan struct{}

	mu      sync.Mutex
	dropped uint64
	done    chan struct{}
	closed  bool
}

func (s *Subscription) push(msg message.Message) bool {
	dropped := s.queue.Push(msg)
	if dropped {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Ready is signalled whenever messages may be waiting.
func (s *Subscription) Ready() <-chan struct{} {
	return s.notify
}

// Done is closed when the subscription or its broadcaster is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// TryRecv returns the oldest queued message without blocking.
func (s *Subscription) TryRecv() (message.Message, bool) {
	msg, ok := s.queue.Pop()
	if ok && s.queue.Len() > 0 {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	return msg, ok
}

// Pending returns the number of queued messages.
func (s *Subscription) Pending() int {
	return s.queue.Len()
}

// TakeDropped returns the number of messages discarded since the last call and resets it.
func (s *Subscription) TakeDropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.dropped
	s.dropped = 0
	return n
}

// Closed reports whether the subscription was closed.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close detaches the subscription from its broadcaster. It is safe to call more than once.
func (s *Subscription) Close() {
	if s.owner != nil {
		s.owner.unsubscribe(s)
	}
	s.closeLocal()
}

func (s *Subscription) closeLocal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
