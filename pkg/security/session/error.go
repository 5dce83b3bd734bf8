package session

import "github.com/pkg/errors"

// errors
var (
	ErrNilAuthority       = errors.New("session authority is nil")
	ErrNilPrivateKey      = errors.New("private key is nil")
	ErrTokenInvalid       = errors.New("session token is invalid")
	ErrTokenExpired       = errors.New("session token has expired")
	ErrUnknownRole        = errors.New("unknown role")
	ErrInvalidIdentityID  = errors.New("invalid identity id")
	ErrInvalidAccountID   = errors.New("invalid account id")
	ErrDeviceNotBound     = errors.New("device_user session must be bound to a device")
	ErrInvalidTTL         = errors.New("session ttl must be positive")
	ErrInvalidKeyMaterial = errors.New("invalid private key material")
)
