package token

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/agubarev/aegis/pkg/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SecretLength is the number of random bytes in a token secret
const SecretLength = 32

// DefaultTTL defines the default token longevity duration from the moment of its creation
const DefaultTTL = 1 * time.Hour

// hashDomain separates enrollment token digests from other BLAKE3 digests
const hashDomain = "aegis.enrollment.token"

// Secret is the plaintext token value, shown only once upon issuance
type Secret [SecretLength]byte

// NewSecret generates a CSPRNG token secret
func NewSecret() (s Secret, err error) {
	buf, err := util.NewCSPRNG(SecretLength)
	if err != nil {
		return s, errors.Wrap(err, "failed to generate token secret")
	}

	copy(s[:], buf)

	return s, nil
}

// ParseSecret decodes a hex-encoded token secret
func ParseSecret(s string) (secret Secret, err error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(raw) != SecretLength {
		return secret, ErrMalformedSecret
	}

	copy(secret[:], raw)

	return secret, nil
}

func (s Secret) String() string {
	return hex.EncodeToString(s[:])
}

// Hash returns the digest under which the token is stored
func (s Secret) Hash() Hash {
	return Hash(util.KeyedDigest(hashDomain, s[:]))
}

// Hash represents a stored token digest
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is unset
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Kind represents the type of a token
type Kind uint16

func (k Kind) String() string {
	switch k {
	case TEnrollment:
		return "enrollment token"
	default:
		return fmt.Sprintf("unrecognized token kind: %d", k)
	}
}

// predefined token kinds
const (
	TEnrollment Kind = 1 << iota

	TAll = ^Kind(0)
)

// Token represents a single-use enrollment token
// NOTE: the token is consumed exactly once; expired tokens are never
// deleted eagerly, they simply fail validation on check
type Token struct {
	Kind       Kind      `db:"kind" json:"kind"`
	Hash       Hash      `db:"hash" json:"-"`
	Issuer     string    `db:"issuer" json:"issuer"`
	AccountID  uuid.UUID `db:"account_id" json:"account_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	ExpireAt   time.Time `db:"expire_at" json:"expire_at"`
	ConsumedAt time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	DeviceID   uuid.UUID `db:"device_id" json:"device_id,omitempty"`
}

// IsConsumed reports whether the token has already been redeemed
func (t Token) IsConsumed() bool {
	return !t.ConsumedAt.IsZero()
}

// Validate checks whether the token is expired or already consumed
// NOTE: expiry is checked first, an expired token fails regardless of
// whether it was consumed
func (t Token) Validate(now time.Time) error {
	if !now.Before(t.ExpireAt) {
		return ErrTokenExpired
	}

	if t.IsConsumed() {
		return ErrTokenAlreadyUsed
	}

	return nil
}

// New creates a new token object along with its plaintext secret
func New(k Kind, issuer string, accountID uuid.UUID, ttl time.Duration, now time.Time) (s Secret, t Token, err error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return s, t, ErrEmptyIssuer
	}

	if accountID == uuid.Nil {
		return s, t, ErrInvalidAccountID
	}

	// the final expiration time is the current time plus ttl duration
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s, err = NewSecret()
	if err != nil {
		return s, t, err
	}

	t = Token{
		Kind:      k,
		Hash:      s.Hash(),
		Issuer:    issuer,
		AccountID: accountID,
		CreatedAt: now,
		ExpireAt:  now.Add(ttl),
	}

	return s, t, nil
}
