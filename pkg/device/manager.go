package device

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/agubarev/aegis/pkg/util"
	"github.com/allegro/bigcache"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// cacheDomain separates credential cache keys from other digests
const cacheDomain = "aegis.device.credential"

// DefaultCacheLifetime is how long a verified credential skips bcrypt
const DefaultCacheLifetime = 10 * time.Minute

// Manager is responsible for the device registry and credential checks
type Manager struct {
	store    Store
	verified *bigcache.BigCache
	hashCost int
	now      func() time.Time
	logger   *zap.Logger
}

// NewManager initializes a device manager
// NOTE: cacheLifetime <= 0 disables the verified credential cache
func NewManager(s Store, cacheLifetime time.Duration) (*Manager, error) {
	if s == nil {
		return nil, ErrNilDeviceStore
	}

	m := &Manager{
		store:    s,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}

	if cacheLifetime > 0 {
		conf := bigcache.DefaultConfig(cacheLifetime)
		conf.Verbose = false
		conf.Shards = 64
		conf.MaxEntrySize = 16

		cache, err := bigcache.NewBigCache(conf)
		if err != nil {
			return nil, errors.Wrap(err, "failed to initialize credential cache")
		}

		m.verified = cache
	}

	return m, nil
}

// SetLogger assigns a logger to this manager
func (m *Manager) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[device]")
	}

	m.logger = logger

	return nil
}

// Logger returns own logger
func (m *Manager) Logger() *zap.Logger {
	if m.logger == nil {
		m.logger = util.FallbackLogger(nil, "[device]")
	}

	return m.logger
}

// SetHashCost sets the bcrypt cost used for new credentials
func (m *Manager) SetHashCost(cost int) error {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return errors.Errorf("bcrypt cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}

	m.hashCost = cost

	return nil
}

// Store returns the underlying device store
func (m *Manager) Store() Store {
	return m.store
}

// Create registers a new active device and returns it together with
// its plaintext credential
func (m *Manager) Create(ctx context.Context, accountID uuid.UUID, fingerprint string) (d Device, c Credential, err error) {
	if accountID == uuid.Nil {
		return d, c, ErrInvalidAccountID
	}

	d = Device{
		ID:          uuid.New(),
		AccountID:   accountID,
		Fingerprint: strings.TrimSpace(fingerprint),
		Status:      SActive,
		CreatedAt:   m.now(),
	}

	if c, err = NewCredential(d.ID); err != nil {
		return d, c, err
	}

	if d.CredentialHash, err = c.Hash(m.hashCost); err != nil {
		return d, c, err
	}

	if err = m.store.CreateDevice(ctx, d); err != nil {
		return d, c, errors.Wrap(err, "failed to store device")
	}

	m.Logger().Info(
		"device created",
		zap.String("device_id", d.ID.String()),
		zap.String("account_id", d.AccountID.String()),
	)

	return d, c, nil
}

// Get returns a device by its id
func (m *Manager) Get(ctx context.Context, deviceID uuid.UUID) (Device, error) {
	return m.store.FetchDeviceByID(ctx, deviceID)
}

// List returns all devices of an account
func (m *Manager) List(ctx context.Context, accountID uuid.UUID) ([]Device, error) {
	return m.store.FetchDevicesByAccount(ctx, accountID)
}

func cacheKey(raw string) string {
	d := util.KeyedDigest(cacheDomain, []byte(raw))
	return hex.EncodeToString(d[:])
}

// Authenticate resolves a plaintext credential to an active device
// NOTE: the device status is read on every call, the cache only saves
// the bcrypt comparison
func (m *Manager) Authenticate(ctx context.Context, raw string) (d Device, err error) {
	c, err := ParseCredential(raw)
	if err != nil {
		return d, ErrAuthInvalid
	}

	d, err = m.store.FetchDeviceByID(ctx, c.DeviceID)
	if err != nil {
		if errors.Cause(err) == ErrDeviceNotFound {
			return d, ErrAuthInvalid
		}

		return d, err
	}

	switch d.Status {
	case SActive:
	case SRevoked:
		return d, ErrDeviceRevoked
	default:
		return d, ErrAuthInvalid
	}

	key := cacheKey(raw)
	if m.verified != nil {
		if id, err := m.verified.Get(key); err == nil && string(id) == string(d.ID[:]) {
			return d, nil
		}
	}

	if !c.Compare(d.CredentialHash) {
		return d, ErrAuthInvalid
	}

	if m.verified != nil {
		if err = m.verified.Set(key, d.ID[:]); err != nil {
			m.Logger().Warn("failed to cache verified credential", zap.Error(err))
		}
	}

	return d, nil
}

// Revoke permanently revokes a device
func (m *Manager) Revoke(ctx context.Context, deviceID uuid.UUID) (d Device, err error) {
	d, err = m.store.FetchDeviceByID(ctx, deviceID)
	if err != nil {
		return d, err
	}

	if !d.Status.canTransition(SRevoked) {
		return d, ErrDeviceRevoked
	}

	d, err = m.store.UpdateStatus(ctx, deviceID, d.Status, SRevoked, m.now())
	if err != nil {
		return d, errors.Wrap(err, "failed to revoke device")
	}

	m.Logger().Warn(
		"device revoked",
		zap.String("device_id", d.ID.String()),
		zap.String("account_id", d.AccountID.String()),
	)

	return d, nil
}
