package baseline

import "github.com/pkg/errors"

// errors
var (
	ErrNilRepository    = errors.New("profile repository is nil")
	ErrNilDatabase      = errors.New("database is nil")
	ErrInvalidDeviceID  = errors.New("invalid device id")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrBucketNotFound   = errors.New("bucket not found")
	ErrInvalidCapacity  = errors.New("categorical set capacity must be positive")
)
