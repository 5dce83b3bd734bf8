package core

import "github.com/pkg/errors"

// errors
var (
	ErrNilCore          = errors.New("aegis core is nil")
	ErrNilLogger        = errors.New("logger is nil")
	ErrNilEnrollment    = errors.New("enrollment service is nil")
	ErrNilAuthority     = errors.New("session authority is nil")
	ErrNilIngestor      = errors.New("telemetry ingestor is nil")
	ErrNilBaseline      = errors.New("baseline store is nil")
	ErrNilAlertBus      = errors.New("alert bus is nil")
	ErrNilGateway       = errors.New("realtime gateway is nil")
	ErrMissingKey       = errors.New("session private key is not configured")
	ErrAlreadyClosed    = errors.New("core is already closed")
	ErrUnsupportedStore = errors.New("unsupported storage driver")
)
