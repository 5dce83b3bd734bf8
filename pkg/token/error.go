package token

import "github.com/pkg/errors"

// errors
var (
	ErrNilTokenStore    = errors.New("token store is nil")
	ErrNilTokenManager  = errors.New("token manager is nil")
	ErrEmptyTokenHash   = errors.New("token hash is empty")
	ErrEmptyIssuer      = errors.New("token issuer is empty")
	ErrInvalidAccountID = errors.New("account id is invalid")
	ErrMalformedSecret  = errors.New("token secret is malformed")
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenExpired     = errors.New("token is expired")
	ErrTokenAlreadyUsed = errors.New("token is already used")
	ErrDuplicateToken   = errors.New("duplicate token")
)
