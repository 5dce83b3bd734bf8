package alert

import (
	"sync"
	"time"

	"github.com/agubarev/aegis/pkg/anomaly"
	"github.com/agubarev/aegis/pkg/telemetry"
	"github.com/agubarev/aegis/pkg/util"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Bus fans alerts out to subscribers; delivery is at-most-once and
// live only, nothing is replayed to late subscribers
type Bus struct {
	sync.RWMutex
	subscribers map[uint64]*Subscription
	nextID      uint64
	threshold   float64
	closed      bool
	logger      *zap.Logger
}

// NewBus initializes an alert bus; threshold is the anomaly score at
// which an event becomes an alert
func NewBus(threshold float64) *Bus {
	if threshold <= 0 || threshold > 1 {
		threshold = anomaly.DefaultAlertThreshold
	}

	return &Bus{
		subscribers: make(map[uint64]*Subscription),
		threshold:   threshold,
	}
}

// SetLogger assigns a logger to this bus
func (b *Bus) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[alert]")
	}

	b.logger = logger

	return nil
}

// Logger returns own logger
func (b *Bus) Logger() *zap.Logger {
	if b.logger == nil {
		b.logger = util.FallbackLogger(nil, "[alert]")
	}

	return b.logger
}

// Threshold returns the anomaly alert threshold
func (b *Bus) Threshold() float64 {
	return b.threshold
}

// Subscribe attaches a new subscriber with its own bounded queue
func (b *Bus) Subscribe(filter Filter, bound int) (*Subscription, error) {
	if filter.AccountID == uuid.Nil {
		return nil, ErrInvalidAccountID
	}

	b.Lock()
	defer b.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	b.nextID++
	s := newSubscription(b.nextID, filter, bound, b)
	b.subscribers[s.id] = s

	subscribers.Inc()

	return s, nil
}

func (b *Bus) remove(id uint64) {
	b.Lock()
	if _, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		subscribers.Dec()
	}
	b.Unlock()
}

// Len returns the number of attached subscribers
func (b *Bus) Len() int {
	b.RLock()
	defer b.RUnlock()

	return len(b.subscribers)
}

// Publish delivers an alert to every matching subscriber without blocking
func (b *Bus) Publish(a Alert) {
	b.RLock()
	defer b.RUnlock()

	for _, s := range b.subscribers {
		if !s.filter.Matches(a) {
			continue
		}

		if evicted := s.push(a); evicted > 0 {
			alertsDropped.Add(float64(evicted))
		}
	}

	for _, r := range a.Reasons {
		alertsPublished.WithLabelValues(string(r)).Inc()
	}
}

// Observe turns a qualifying event into an alert and publishes it;
// reports whether an alert was raised
func (b *Bus) Observe(e telemetry.Event, as anomaly.Assessment) bool {
	reasons := Reasons(e, as, b.threshold)
	if len(reasons) == 0 {
		return false
	}

	a := Alert{
		ID:        uuid.New(),
		Event:     e,
		Reasons:   reasons,
		CreatedAt: time.Now(),
	}

	b.Publish(a)

	b.Logger().Info(
		"alert raised",
		zap.String("alert_id", a.ID.String()),
		zap.String("event_id", e.ID.String()),
		zap.String("device_id", e.DeviceID.String()),
		zap.Stringer("severity", e.Severity),
		zap.Float64("score", as.Score),
	)

	return true
}

// Close detaches every subscriber
func (b *Bus) Close() {
	b.Lock()
	b.closed = true

	subs := make([]*Subscription, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
