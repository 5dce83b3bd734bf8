package alert

import (
	"context"
	"sync"
)

// DefaultQueueBound is the per-subscriber queue bound
const DefaultQueueBound = 100

// Subscription is a subscriber's bounded queue; when it overflows the
// oldest alerts are dropped, the publisher never waits
type Subscription struct {
	id     uint64
	filter Filter
	bus    *Bus

	mu      sync.Mutex
	queue   []Alert
	bound   int
	dropped uint64
	closed  bool

	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newSubscription(id uint64, filter Filter, bound int, bus *Bus) *Subscription {
	if bound <= 0 {
		bound = DefaultQueueBound
	}

	return &Subscription{
		id:     id,
		filter: filter,
		bus:    bus,
		bound:  bound,
		queue:  make([]Alert, 0, bound),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Filter returns the subscription filter
func (s *Subscription) Filter() Filter {
	return s.filter
}

// push enqueues an alert, evicting the oldest ones over the bound;
// returns how many were evicted
func (s *Subscription) push(a Alert) (evicted int) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return 0
	}

	for len(s.queue) >= s.bound {
		s.queue[0] = Alert{}
		s.queue = s.queue[1:]
		s.dropped++
		evicted++
	}

	s.queue = append(s.queue, a)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}

	return evicted
}

func (s *Subscription) pop() (a Alert, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return a, false
	}

	a = s.queue[0]
	s.queue[0] = Alert{}
	s.queue = s.queue[1:]

	return a, true
}

// Next blocks until an alert is available, the context is done or
// the subscription is closed
func (s *Subscription) Next(ctx context.Context) (Alert, error) {
	for {
		if a, ok := s.pop(); ok {
			return a, nil
		}

		select {
		case <-s.notify:
		case <-s.done:
			return Alert{}, ErrSubscriptionClosed
		case <-ctx.Done():
			return Alert{}, ctx.Err()
		}
	}
}

// Drain returns everything currently queued without waiting
func (s *Subscription) Drain() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Alert, len(s.queue))
	copy(out, s.queue)

	s.queue = make([]Alert, 0, s.bound)

	return out
}

// Len returns the number of queued alerts
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

// Dropped returns how many alerts this subscriber has lost to overflow
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dropped
}

// Notify is signalled whenever something is enqueued
func (s *Subscription) Notify() <-chan struct{} {
	return s.notify
}

// Done is closed once the subscription is closed
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscription from the bus and releases its queue
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s.id)

		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()

		close(s.done)
	})
}
