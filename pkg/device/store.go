package device

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the device repository contract
type Store interface {
	CreateDevice(ctx context.Context, d Device) error
	FetchDeviceByID(ctx context.Context, deviceID uuid.UUID) (Device, error)
	FetchDevicesByAccount(ctx context.Context, accountID uuid.UUID) ([]Device, error)

	// UpdateStatus changes the status only if it is still `from`
	UpdateStatus(ctx context.Context, deviceID uuid.UUID, from, to Status, at time.Time) (Device, error)
}

type memoryStore struct {
	devices map[uuid.UUID]Device
	sync.RWMutex
}

// NewMemoryStore initializes an in-memory device store
func NewMemoryStore() Store {
	return &memoryStore{
		devices: make(map[uuid.UUID]Device),
	}
}

func (s *memoryStore) CreateDevice(ctx context.Context, d Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.devices[d.ID]; ok {
		return ErrDuplicateDevice
	}

	s.devices[d.ID] = d

	return nil
}

func (s *memoryStore) FetchDeviceByID(ctx context.Context, deviceID uuid.UUID) (d Device, err error) {
	s.RLock()
	d, ok := s.devices[deviceID]
	s.RUnlock()

	if !ok {
		return d, ErrDeviceNotFound
	}

	return d, nil
}

func (s *memoryStore) FetchDevicesByAccount(ctx context.Context, accountID uuid.UUID) (ds []Device, err error) {
	ds = make([]Device, 0)

	s.RLock()
	for _, d := range s.devices {
		if d.AccountID == accountID {
			ds = append(ds, d)
		}
	}
	s.RUnlock()

	sort.Slice(ds, func(i, j int) bool {
		return ds[i].CreatedAt.Before(ds[j].CreatedAt)
	})

	return ds, nil
}

func (s *memoryStore) UpdateStatus(ctx context.Context, deviceID uuid.UUID, from, to Status, at time.Time) (d Device, err error) {
	s.Lock()
	defer s.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return d, ErrDeviceNotFound
	}

	if d.Status != from {
		return d, ErrStatusConflict
	}

	d.Status = to
	if to == SRevoked {
		d.RevokedAt = at
	}

	s.devices[deviceID] = d

	return d, nil
}
