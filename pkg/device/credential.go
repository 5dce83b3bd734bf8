package device

import (
	"encoding/hex"
	"strings"

	"github.com/agubarev/aegis/pkg/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// credentialPrefix marks aegis device credentials
const credentialPrefix = "aeg"

// secretLength is the number of random bytes in a credential secret
const secretLength = 32

// Credential is the plaintext device credential handed to the agent once
// NOTE: format is aeg_<device id hex>_<secret hex>
type Credential struct {
	DeviceID uuid.UUID
	Secret   string
}

// NewCredential generates a new credential for a given device
func NewCredential(deviceID uuid.UUID) (c Credential, err error) {
	if deviceID == uuid.Nil {
		return c, ErrInvalidDeviceID
	}

	secret, err := util.NewCSPRNGHex(secretLength)
	if err != nil {
		return c, errors.Wrap(err, "failed to generate device secret")
	}

	return Credential{DeviceID: deviceID, Secret: secret}, nil
}

// ParseCredential parses a plaintext credential
func ParseCredential(s string) (c Credential, err error) {
	parts := strings.Split(strings.TrimSpace(s), "_")
	if len(parts) != 3 || parts[0] != credentialPrefix {
		return c, ErrMalformedCredential
	}

	rawID, err := hex.DecodeString(parts[1])
	if err != nil || len(rawID) != 16 {
		return c, ErrMalformedCredential
	}

	rawSecret, err := hex.DecodeString(parts[2])
	if err != nil || len(rawSecret) != secretLength {
		return c, ErrMalformedCredential
	}

	copy(c.DeviceID[:], rawID)
	c.Secret = parts[2]

	return c, nil
}

func (c Credential) String() string {
	return credentialPrefix + "_" + hex.EncodeToString(c.DeviceID[:]) + "_" + c.Secret
}

// Hash produces a salted bcrypt hash of the secret
func (c Credential) Hash(cost int) ([]byte, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(c.Secret), cost)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash device credential")
	}

	return h, nil
}

// Compare tests whether the credential matches a stored hash
func (c Credential) Compare(hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(c.Secret)) == nil
}
