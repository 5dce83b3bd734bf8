package baseline

import (
	"context"
	"sync"

	"github.com/agubarev/aegis/pkg/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const shardCount = 64

// entry holds one device's profile; serial orders the device's
// ingestion pipeline, mu guards the profile itself
type entry struct {
	serial  sync.Mutex
	mu      sync.RWMutex
	loaded  bool
	profile Profile
}

type shard struct {
	sync.Mutex
	entries map[uuid.UUID]*entry
}

// Store is the single writer of baseline profiles: an arena of
// per-device entries, sharded so that devices never contend on one lock
type Store struct {
	shards      [shardCount]shard
	repo        ProfileRepository
	setCapacity int
	logger      *zap.Logger
}

// NewStore initializes a baseline store
func NewStore(repo ProfileRepository, setCapacity int) (*Store, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}

	if setCapacity <= 0 {
		setCapacity = DefaultSetCapacity
	}

	s := &Store{
		repo:        repo,
		setCapacity: setCapacity,
	}

	for i := range s.shards {
		s.shards[i].entries = make(map[uuid.UUID]*entry)
	}

	return s, nil
}

// SetLogger assigns a logger to this store
func (s *Store) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[baseline]")
	}

	s.logger = logger

	return nil
}

// Logger returns own logger
func (s *Store) Logger() *zap.Logger {
	if s.logger == nil {
		s.logger = util.FallbackLogger(nil, "[baseline]")
	}

	return s.logger
}

func (s *Store) entry(deviceID uuid.UUID) *entry {
	sh := &s.shards[util.HashKey(deviceID[:])%shardCount]

	sh.Lock()
	e, ok := sh.entries[deviceID]
	if !ok {
		e = &entry{}
		sh.entries[deviceID] = e
	}
	sh.Unlock()

	return e
}

// load lazily pulls the profile from the repository; expects e.mu held
func (s *Store) load(ctx context.Context, deviceID uuid.UUID, e *entry) error {
	if e.loaded {
		return nil
	}

	p, err := s.repo.Get(ctx, deviceID)
	switch errors.Cause(err) {
	case nil:
	case ErrProfileNotFound:
		p = NewProfile(deviceID, s.setCapacity)
	default:
		return errors.Wrap(err, "failed to load profile")
	}

	e.profile = p
	e.loaded = true

	return nil
}

// Lock serializes work on a single device and returns the unlock function
func (s *Store) Lock(deviceID uuid.UUID) (unlock func()) {
	e := s.entry(deviceID)
	e.serial.Lock()

	return e.serial.Unlock
}

// Profile returns a snapshot of the device's profile; a device that
// has never been observed gets an empty profile
func (s *Store) Profile(ctx context.Context, deviceID uuid.UUID) (Profile, error) {
	if deviceID == uuid.Nil {
		return Profile{}, ErrInvalidDeviceID
	}

	e := s.entry(deviceID)

	e.mu.RLock()
	if e.loaded {
		p := e.profile.Clone()
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.load(ctx, deviceID, e); err != nil {
		return Profile{}, err
	}

	return e.profile.Clone(), nil
}

// Update folds an observation into the device's profile and persists it
func (s *Store) Update(ctx context.Context, deviceID uuid.UUID, o Observation) (Profile, error) {
	if deviceID == uuid.Nil {
		return Profile{}, ErrInvalidDeviceID
	}

	e := s.entry(deviceID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.load(ctx, deviceID, e); err != nil {
		return Profile{}, err
	}

	next := e.profile.Clone()
	next.Observe(o)

	if err := s.repo.Put(ctx, next); err != nil {
		return Profile{}, errors.Wrap(err, "failed to persist profile")
	}

	e.profile = next

	return next.Clone(), nil
}

// Reset discards everything learned about a device
func (s *Store) Reset(ctx context.Context, deviceID uuid.UUID) error {
	if deviceID == uuid.Nil {
		return ErrInvalidDeviceID
	}

	unlock := s.Lock(deviceID)
	defer unlock()

	e := s.entry(deviceID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.repo.Delete(ctx, deviceID); err != nil {
		return errors.Wrap(err, "failed to delete profile")
	}

	e.profile = NewProfile(deviceID, s.setCapacity)
	e.loaded = true

	s.Logger().Info("baseline reset", zap.String("device_id", deviceID.String()))

	return nil
}
