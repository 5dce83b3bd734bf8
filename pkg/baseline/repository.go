package baseline

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ProfileRepository persists profiles between restarts
type ProfileRepository interface {
	Get(ctx context.Context, deviceID uuid.UUID) (Profile, error)
	Put(ctx context.Context, p Profile) error
	Delete(ctx context.Context, deviceID uuid.UUID) error
}

type memoryRepository struct {
	sync.RWMutex
	profiles map[uuid.UUID]Profile
}

// NewMemoryRepository initializes an in-memory profile repository
func NewMemoryRepository() ProfileRepository {
	return &memoryRepository{profiles: make(map[uuid.UUID]Profile)}
}

func (r *memoryRepository) Get(ctx context.Context, deviceID uuid.UUID) (Profile, error) {
	r.RLock()
	p, ok := r.profiles[deviceID]
	r.RUnlock()

	if !ok {
		return Profile{}, ErrProfileNotFound
	}

	return p.Clone(), nil
}

func (r *memoryRepository) Put(ctx context.Context, p Profile) error {
	if p.DeviceID == uuid.Nil {
		return ErrInvalidDeviceID
	}

	r.Lock()
	r.profiles[p.DeviceID] = p.Clone()
	r.Unlock()

	return nil
}

func (r *memoryRepository) Delete(ctx context.Context, deviceID uuid.UUID) error {
	r.Lock()
	delete(r.profiles, deviceID)
	r.Unlock()

	return nil
}
