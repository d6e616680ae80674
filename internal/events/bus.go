package events

import (
	"sync"
	"time"
)

// DefaultQueueSize is the per-subscriber delivery queue bound.
const DefaultQueueSize = 1024

// minQueueSize leaves room for a lag notice plus the triggering event.
const minQueueSize = 2

// Bus fans events out to channel subscribers. Publishers never block on
// subscribers: each subscriber owns a bounded queue, and when it
// overflows the oldest undelivered events are dropped and replaced by a
// subscription.lagged notice. One subscriber's backpressure never delays
// delivery to others.
type Bus struct {
	mu        sync.Mutex
	subs      map[string][]*Subscription
	seq       map[string]uint64
	queueSize int
	closed    bool
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithQueueSize sets the per-subscriber delivery queue bound.
func WithQueueSize(size int) BusOption {
	return func(b *Bus) {
		if size < minQueueSize {
			size = minQueueSize
		}
		b.queueSize = size
	}
}

// NewBus creates an event bus. Sequence numbers begin at zero per channel.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:      make(map[string][]*Subscription),
		seq:       make(map[string]uint64),
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is one subscriber's attachment to a channel.
type Subscription struct {
	channel string
	ch      chan Event
	mu      sync.Mutex
	closed  bool
}

// Channel returns the channel this subscription is attached to.
func (s *Subscription) Channel() string {
	return s.channel
}

// Events returns the delivery channel. It is closed on unsubscribe and on
// bus shutdown.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// deliver enqueues ev, dropping the oldest undelivered events and
// inserting a lag notice when the queue is full. Never blocks
// indefinitely: only this goroutine adds while the mutex is held.
func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- ev:
		return
	default:
	}

	dropped := 0
	for len(s.ch) > cap(s.ch)-minQueueSize {
		select {
		case <-s.ch:
			dropped++
		default:
		}
	}
	s.ch <- Event{
		Type:      EventSubscriptionLagged,
		Channel:   ev.Channel,
		PoolID:    ev.PoolID,
		Data:      LagData{Dropped: dropped},
		Sequence:  ev.Sequence,
		Timestamp: time.Now().UTC(),
	}
	s.ch <- ev
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Subscribe attaches a new subscriber to the given channel. Use
// GlobalChannel to receive events from every pool. Subscribers see only
// events published after the subscription is confirmed.
func (b *Bus) Subscribe(channel string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		channel: channel,
		ch:      make(chan Event, b.queueSize),
	}
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.subs[channel] = append(b.subs[channel], sub)
	return sub
}

// Unsubscribe detaches the subscription and closes its delivery channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	subs := b.subs[sub.channel]
	for i, s := range subs {
		if s == sub {
			b.subs[sub.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	sub.close()
}

// Publish stamps ev with the next sequence number for its channel and
// fans it out to that channel's subscribers and to global subscribers.
// The global copy carries the global channel's own sequence. Stamping
// and enqueueing happen under one lock so a subscriber's queue always
// orders events by sequence; deliver never blocks, so holding the bus
// lock across the fan-out is safe.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	now := time.Now().UTC()

	ev.Sequence = b.seq[ev.Channel]
	b.seq[ev.Channel]++
	ev.Timestamp = now

	for _, s := range b.subs[ev.Channel] {
		s.deliver(ev)
	}

	if ev.Channel != GlobalChannel {
		global := ev
		global.Channel = GlobalChannel
		global.Sequence = b.seq[GlobalChannel]
		b.seq[GlobalChannel]++
		for _, s := range b.subs[GlobalChannel] {
			s.deliver(global)
		}
	}
}

// Sequence returns the next sequence number the channel will assign,
// which equals the count of events published on it so far.
func (b *Bus) Sequence(channel string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq[channel]
}

// SubscriberCount returns the number of active subscriptions on a channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

// Close shuts down the bus and closes every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[string][]*Subscription)
	b.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}
