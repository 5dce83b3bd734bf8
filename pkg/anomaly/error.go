package anomaly

import "github.com/pkg/errors"

// errors
var (
	ErrModelUnavailable    = errors.New("anomaly model is unavailable")
	ErrUnsupportedVersion  = errors.New("unsupported model version")
	ErrInvalidModel        = errors.New("model is invalid")
	ErrNoSamples           = errors.New("no training samples")
	ErrEmptyModelPath      = errors.New("model path is empty")
	ErrInvalidOptions      = errors.New("invalid training options")
)
