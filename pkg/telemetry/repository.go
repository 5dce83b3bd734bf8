package telemetry

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// history limits
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Query selects events for history listing; a nil DeviceID lists the
// whole account
type Query struct {
	AccountID uuid.UUID
	DeviceID  uuid.UUID
	Limit     int
}

// normalizedLimit clamps the page size into [1, MaxListLimit]
func (q Query) normalizedLimit() int {
	switch {
	case q.Limit <= 0:
		return DefaultListLimit
	case q.Limit > MaxListLimit:
		return MaxListLimit
	}

	return q.Limit
}

// Repository is the append-only event history
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, q Query) ([]Event, error)
}

type memoryRepository struct {
	sync.RWMutex
	byDevice map[uuid.UUID][]Event
}

// NewMemoryRepository initializes an in-memory event repository
func NewMemoryRepository() Repository {
	return &memoryRepository{byDevice: make(map[uuid.UUID][]Event)}
}

func (r *memoryRepository) Append(ctx context.Context, e Event) error {
	if e.DeviceID == uuid.Nil {
		return ErrInvalidDeviceID
	}

	r.Lock()
	r.byDevice[e.DeviceID] = append(r.byDevice[e.DeviceID], e)
	r.Unlock()

	return nil
}

// List returns newest events first
func (r *memoryRepository) List(ctx context.Context, q Query) ([]Event, error) {
	limit := q.normalizedLimit()

	r.RLock()
	defer r.RUnlock()

	var candidates []Event

	if q.DeviceID != uuid.Nil {
		candidates = r.byDevice[q.DeviceID]
	} else {
		for _, events := range r.byDevice {
			candidates = append(candidates, events...)
		}
	}

	out := make([]Event, 0, limit)
	for _, e := range candidates {
		if e.AccountID == q.AccountID {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Compare(out[j].ID) > 0
	})

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}
