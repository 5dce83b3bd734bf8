package alert

import "github.com/pkg/errors"

// errors
var (
	ErrSubscriptionClosed = errors.New("subscription is closed")
	ErrBusClosed          = errors.New("alert bus is closed")
	ErrInvalidAccountID   = errors.New("invalid account id")
)
