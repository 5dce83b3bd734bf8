package enrollment

import (
	"context"
	"strings"
	"time"

	"github.com/agubarev/aegis/pkg/device"
	"github.com/agubarev/aegis/pkg/token"
	"github.com/agubarev/aegis/pkg/util"
	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// errors
var (
	ErrNilTokenManager    = errors.New("token manager is nil")
	ErrNilDeviceManager   = errors.New("device manager is nil")
	ErrInvalidFingerprint = errors.New("device fingerprint is invalid")
)

// Issued is what an operator receives for out-of-band transfer to the agent
type Issued struct {
	Token    string    `json:"token"`
	ExpireAt time.Time `json:"expire_at"`
}

// Enrolled is returned to the agent exactly once
type Enrolled struct {
	DeviceID   uuid.UUID `json:"device_id"`
	AccountID  uuid.UUID `json:"account_id"`
	Credential string    `json:"credential"`
}

// Service redeems enrollment tokens into device identities
type Service struct {
	tokens  *token.Manager
	devices *device.Manager
	logger  *zap.Logger
}

// NewService initializes the enrollment service
func NewService(tm *token.Manager, dm *device.Manager) (*Service, error) {
	if tm == nil {
		return nil, ErrNilTokenManager
	}

	if dm == nil {
		return nil, ErrNilDeviceManager
	}

	return &Service{tokens: tm, devices: dm}, nil
}

// SetLogger assigns a logger to this service
func (s *Service) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[enrollment]")
	}

	s.logger = logger

	return nil
}

// Logger returns own logger
func (s *Service) Logger() *zap.Logger {
	if s.logger == nil {
		s.logger = util.FallbackLogger(nil, "[enrollment]")
	}

	return s.logger
}

// Request is the enrollment payload sent by an agent
type Request struct {
	Token       string `json:"token" valid:"required"`
	Fingerprint string `json:"fingerprint" valid:"required,printableascii,length(8|256)"`
}

// ValidateFingerprint checks that the fingerprint is printable and sanely sized
func ValidateFingerprint(fp string) error {
	if ok, err := govalidator.ValidateStruct(Request{Token: "-", Fingerprint: strings.TrimSpace(fp)}); !ok || err != nil {
		return ErrInvalidFingerprint
	}

	return nil
}

// IssueToken issues a new single-use enrollment token for an account
func (s *Service) IssueToken(ctx context.Context, issuer string, accountID uuid.UUID, ttl time.Duration) (issued Issued, err error) {
	secret, t, err := s.tokens.Issue(ctx, issuer, accountID, ttl)
	if err != nil {
		return issued, err
	}

	return Issued{Token: secret.String(), ExpireAt: t.ExpireAt}, nil
}

// Redeem exchanges a token for a device credential
// NOTE: the token is consumed and the device is created as one step,
// concurrent redeemers of the same token get token.ErrTokenAlreadyUsed
func (s *Service) Redeem(ctx context.Context, rawToken string, fingerprint string) (e Enrolled, err error) {
	if err = ValidateFingerprint(fingerprint); err != nil {
		return e, err
	}

	secret, err := token.ParseSecret(rawToken)
	if err != nil {
		// a malformed token can't exist in the store
		s.Logger().Warn("enrollment rejected", zap.Error(err))
		return e, token.ErrTokenNotFound
	}

	var credential device.Credential

	t, err := s.tokens.Redeem(ctx, secret, func(ctx context.Context, t token.Token) (token.Token, error) {
		d, c, err := s.devices.Create(ctx, t.AccountID, fingerprint)
		if err != nil {
			return t, err
		}

		t.DeviceID = d.ID
		credential = c

		return t, nil
	})

	if err != nil {
		return e, err
	}

	s.Logger().Info(
		"device enrolled",
		zap.String("device_id", t.DeviceID.String()),
		zap.String("account_id", t.AccountID.String()),
		zap.String("issuer", t.Issuer),
	)

	e = Enrolled{
		DeviceID:   t.DeviceID,
		AccountID:  t.AccountID,
		Credential: credential.String(),
	}

	return e, nil
}
