package token

import (
	"context"
	"time"

	"github.com/agubarev/aegis/pkg/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Manager issues and redeems enrollment tokens
// NOTE: the manager owns every token state transition, nothing else
// is allowed to consume a token
type Manager struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewManager returns an initialized token manager
func NewManager(s Store) (*Manager, error) {
	if s == nil {
		return nil, ErrNilTokenStore
	}

	m := &Manager{
		store: s,
		now:   time.Now,
	}

	return m, nil
}

// SetLogger assigns a logger to this manager
func (m *Manager) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[token]")
	}

	m.logger = logger

	return nil
}

// Logger returns own logger
func (m *Manager) Logger() *zap.Logger {
	if m.logger == nil {
		m.logger = util.FallbackLogger(nil, "[token]")
	}

	return m.logger
}

// SetClock overrides the time source, used by tests to travel in time
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Validate validates token manager
func (m *Manager) Validate() error {
	if m == nil {
		return ErrNilTokenManager
	}

	if m.store == nil {
		return ErrNilTokenStore
	}

	return nil
}

// Issue creates, stores and returns a new enrollment token along with its secret
// NOTE: the secret is never stored and cannot be recovered afterwards
func (m *Manager) Issue(ctx context.Context, issuer string, accountID uuid.UUID, ttl time.Duration) (s Secret, t Token, err error) {
	s, t, err = New(TEnrollment, issuer, accountID, ttl, m.now())
	if err != nil {
		return s, t, errors.Wrap(err, "failed to initialize new token")
	}

	if err = m.store.Put(ctx, t); err != nil {
		return s, t, errors.Wrap(err, "failed to store new token")
	}

	m.Logger().Info(
		"token issued",
		zap.String("issuer", t.Issuer),
		zap.String("account_id", t.AccountID.String()),
		zap.Time("expire_at", t.ExpireAt),
	)

	return s, t, nil
}

// Get obtains a token by its secret
func (m *Manager) Get(ctx context.Context, s Secret) (Token, error) {
	return m.store.Get(ctx, s.Hash())
}

// Redeem consumes the token exactly once and runs fn while the claim is held
// NOTE: when fn fails, the token stays unconsumed
func (m *Manager) Redeem(ctx context.Context, s Secret, fn RedeemFunc) (t Token, err error) {
	t, err = m.store.Consume(ctx, s.Hash(), m.now(), fn)
	if err != nil {
		switch errors.Cause(err) {
		case ErrTokenNotFound, ErrTokenExpired, ErrTokenAlreadyUsed:
			m.Logger().Warn("token redemption rejected", zap.Error(err))
		}

		return t, err
	}

	m.Logger().Info(
		"token redeemed",
		zap.String("account_id", t.AccountID.String()),
		zap.String("device_id", t.DeviceID.String()),
	)

	return t, nil
}
