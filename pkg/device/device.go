package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents a device lifecycle status
type Status uint8

const (
	SPending Status = iota + 1
	SActive
	SRevoked
)

func (s Status) String() string {
	switch s {
	case SPending:
		return "pending"
	case SActive:
		return "active"
	case SRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("unrecognized device status: %d", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "pending":
		*s = SPending
	case "active":
		*s = SActive
	case "revoked":
		*s = SRevoked
	default:
		return ErrInvalidStatus
	}

	return nil
}

// canTransition describes the allowed status transitions
// NOTE: revocation is terminal
func (s Status) canTransition(to Status) bool {
	switch s {
	case SPending:
		return to == SActive || to == SRevoked
	case SActive:
		return to == SRevoked
	default:
		return false
	}
}

// Device represents an enrolled endpoint
type Device struct {
	ID             uuid.UUID `db:"id" json:"id"`
	AccountID      uuid.UUID `db:"account_id" json:"account_id"`
	Fingerprint    string    `db:"fingerprint" json:"fingerprint"`
	Status         Status    `db:"status" json:"status"`
	CredentialHash []byte    `db:"credential_hash" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	RevokedAt      time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// Validate performs a basic sanity check
func (d Device) Validate() error {
	if d.ID == uuid.Nil {
		return ErrInvalidDeviceID
	}

	if d.AccountID == uuid.Nil {
		return ErrInvalidAccountID
	}

	if d.Status < SPending || d.Status > SRevoked {
		return ErrInvalidStatus
	}

	if len(d.CredentialHash) == 0 {
		return ErrMalformedCredential
	}

	return nil
}
