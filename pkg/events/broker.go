package events

import (
	"log/slog"
	"sync"
)

// DefaultQueueCapacity bounds each subscriber's delivery queue.
const DefaultQueueCapacity = 256

// Broker fans events out to the subscribers of a project topic. Delivery
// within one subscriber is strictly in publish order; across subscribers no
// order is coordinated. Publish never blocks the write path: a subscriber
// whose queue is full is closed instead.
type Broker struct {
	mu       sync.Mutex
	topics   map[string]map[*Subscription]struct{}
	queueCap int
}

// Subscription is one live consumer of a project topic.
type Subscription struct {
	project string
	ch      chan Event
	broker  *Broker

	// closed is guarded by broker.mu. The channel is closed exactly once,
	// either by the broker (slow consumer) or by Close (client disconnect).
	closed bool
	// dropped records that the broker closed this subscription because its
	// queue was full.
	dropped bool
}

// NewBroker creates a broker with the given per-subscriber queue capacity.
// Zero or negative means DefaultQueueCapacity.
func NewBroker(queueCap int) *Broker {
	if queueCap <= 0 {
		queueCap = DefaultQueueCapacity
	}
	return &Broker{
		topics:   make(map[string]map[*Subscription]struct{}),
		queueCap: queueCap,
	}
}

// Subscribe registers a new subscriber on the project's topic.
func (b *Broker) Subscribe(project string) *Subscription {
	sub := &Subscription{
		project: project,
		ch:      make(chan Event, b.queueCap),
		broker:  b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[project]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.topics[project] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Publish fans the event out to every current subscriber of the project.
// Enqueue is non-blocking; a full queue closes that subscriber and leaves
// the rest untouched.
func (b *Broker) Publish(project string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[project]
	if !ok {
		return
	}

	for sub := range subs {
		select {
		case sub.ch <- event:
		default:
			slog.Warn("Dropping slow event subscriber",
				"project", project, "queue_capacity", b.queueCap)
			sub.dropped = true
			b.removeLocked(sub)
		}
	}
}

// SubscriberCount returns the number of live subscribers for a project.
// Used by tests to poll instead of sleeping.
func (b *Broker) SubscriberCount(project string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[project])
}

// removeLocked detaches and closes a subscription. Caller holds b.mu, which
// also serializes channel close against concurrent Publish sends.
func (b *Broker) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true

	if subs, ok := b.topics[sub.project]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, sub.project)
		}
	}
	close(sub.ch)
}

// Events returns the delivery queue. The channel is closed when the
// subscription ends, either by Close or by the drop-slow policy.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close removes the subscription from its topic. Idempotent; safe to call
// after the broker has already dropped the subscriber.
func (s *Subscription) Close() {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.broker.removeLocked(s)
}

// Dropped reports whether the broker closed this subscription for falling
// behind.
func (s *Subscription) Dropped() bool {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	return s.dropped
}
