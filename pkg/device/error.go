package device

import "github.com/pkg/errors"

var (
	ErrNilDeviceStore      = errors.New("device store is nil")
	ErrNilDeviceManager    = errors.New("device manager is nil")
	ErrInvalidDeviceID     = errors.New("device id is invalid")
	ErrInvalidAccountID    = errors.New("account id is invalid")
	ErrDeviceNotFound      = errors.New("device is not found")
	ErrDuplicateDevice     = errors.New("device already exists")
	ErrAuthInvalid         = errors.New("device credential is invalid")
	ErrDeviceRevoked       = errors.New("device is revoked")
	ErrStatusConflict      = errors.New("device status has changed concurrently")
	ErrInvalidStatus       = errors.New("device status is invalid")
	ErrMalformedCredential = errors.New("device credential is malformed")
)
