package telemetry

import "github.com/pkg/errors"

// errors
var (
	ErrNilDeviceManager = errors.New("device manager is nil")
	ErrNilClassifier    = errors.New("severity classifier is nil")
	ErrNilScorer        = errors.New("anomaly scorer is nil")
	ErrNilBaseline      = errors.New("baseline store is nil")
	ErrNilRepository    = errors.New("event repository is nil")
	ErrNilDatabase      = errors.New("database is nil")
	ErrAuthInvalid      = errors.New("device authentication failed")
	ErrDeviceRevoked    = errors.New("device is revoked")
	ErrMalformedEvent   = errors.New("malformed event")
	ErrUnknownKind      = errors.New("unknown event kind")
	ErrInvalidDeviceID  = errors.New("invalid device id")
	ErrEventNotFound    = errors.New("event not found")
)
