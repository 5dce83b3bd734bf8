package session

import (
	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

// Role is a claim carried by the session token
type Role string

// roles
const (
	ROwner      Role = "owner"
	RAdmin      Role = "admin"
	RDeviceUser Role = "device_user"
)

// Validate checks whether the role is known
func (r Role) Validate() error {
	switch r {
	case ROwner, RAdmin, RDeviceUser:
		return nil
	}

	return ErrUnknownRole
}

// IsOperator tells whether the role has account-wide visibility
func (r Role) IsOperator() bool {
	return r == ROwner || r == RAdmin
}

// Identity is the subject of a session
type Identity struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"aid"`
	DeviceID  uuid.UUID `json:"did,omitempty"`
	Role      Role      `json:"role"`
}

// Validate validates identity
func (ident Identity) Validate() error {
	if ident.ID == uuid.Nil {
		return ErrInvalidIdentityID
	}

	if ident.AccountID == uuid.Nil {
		return ErrInvalidAccountID
	}

	if err := ident.Role.Validate(); err != nil {
		return err
	}

	if ident.Role == RDeviceUser && ident.DeviceID == uuid.Nil {
		return ErrDeviceNotBound
	}

	return nil
}

// Claims represents the session token claims
type Claims struct {
	Identity Identity `json:"ident"`
	jwt.StandardClaims
}
