package endpoints

import (
	"net/http"

	"github.com/agubarev/aegis/pkg/device"
	"github.com/agubarev/aegis/pkg/enrollment"
	"github.com/agubarev/aegis/pkg/security/session"
	"github.com/agubarev/aegis/pkg/telemetry"
	"github.com/agubarev/aegis/pkg/token"
	"github.com/pkg/errors"
)

// errors
var (
	ErrInvalidPayload   = errors.New("invalid request payload")
	ErrInvalidParameter = errors.New("invalid request parameter")
	ErrMissingSession   = errors.New("session token is missing")
	ErrMissingDevice    = errors.New("device credential is missing")
	ErrForbidden        = errors.New("operation is not permitted for this role")
)

// statusFor maps a domain error to its HTTP status code
func statusFor(err error) int {
	switch errors.Cause(err) {
	case ErrInvalidPayload,
		ErrInvalidParameter,
		enrollment.ErrInvalidFingerprint,
		telemetry.ErrMalformedEvent,
		telemetry.ErrUnknownKind,
		token.ErrMalformedSecret:
		return http.StatusBadRequest
	case ErrMissingSession,
		ErrMissingDevice,
		session.ErrTokenInvalid,
		session.ErrTokenExpired,
		telemetry.ErrAuthInvalid,
		device.ErrAuthInvalid,
		device.ErrMalformedCredential,
		token.ErrTokenNotFound,
		token.ErrTokenExpired:
		return http.StatusUnauthorized
	case ErrForbidden,
		telemetry.ErrDeviceRevoked,
		device.ErrDeviceRevoked:
		return http.StatusForbidden
	case device.ErrDeviceNotFound:
		return http.StatusNotFound
	case token.ErrTokenAlreadyUsed,
		device.ErrStatusConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
