package device_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/agubarev/aegis/pkg/device"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newManager(t *testing.T, cacheLifetime time.Duration) *device.Manager {
	m, err := device.NewManager(device.NewMemoryStore(), cacheLifetime)
	require.NoError(t, err)
	require.NoError(t, m.SetHashCost(bcrypt.MinCost))

	return m
}

func TestCredentialParse(t *testing.T) {
	a := assert.New(t)

	c, err := device.NewCredential(uuid.New())
	a.NoError(err)
	a.True(strings.HasPrefix(c.String(), "aeg_"))

	parsed, err := device.ParseCredential(c.String())
	a.NoError(err)
	a.Equal(c, parsed)

	for _, raw := range []string{
		"",
		"aeg_",
		"xyz_00112233445566778899aabbccddeeff_00",
		"aeg_nothex_" + c.Secret,
		"aeg_" + strings.Repeat("0", 32) + "_abcd",
	} {
		_, err = device.ParseCredential(raw)
		a.Equal(device.ErrMalformedCredential, err, raw)
	}

	_, err = device.NewCredential(uuid.Nil)
	a.Equal(device.ErrInvalidDeviceID, err)
}

func TestManagerCreateAndAuthenticate(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	for _, lifetime := range []time.Duration{0, time.Minute} {
		m := newManager(t, lifetime)
		accountID := uuid.New()

		d, c, err := m.Create(ctx, accountID, "fp-0001-linux")
		a.NoError(err)
		a.Equal(device.SActive, d.Status)
		a.Equal(d.ID, c.DeviceID)

		// the plaintext secret is never stored
		a.NotContains(string(d.CredentialHash), c.Secret)

		// twice, second time possibly through the cache
		for i := 0; i < 2; i++ {
			authed, err := m.Authenticate(ctx, c.String())
			a.NoError(err)
			a.Equal(d.ID, authed.ID)
		}

		// wrong secret for an existing device
		forged, err := device.NewCredential(d.ID)
		a.NoError(err)

		_, err = m.Authenticate(ctx, forged.String())
		a.Equal(device.ErrAuthInvalid, err)

		// unknown device
		stranger, err := device.NewCredential(uuid.New())
		a.NoError(err)

		_, err = m.Authenticate(ctx, stranger.String())
		a.Equal(device.ErrAuthInvalid, err)

		// garbage
		_, err = m.Authenticate(ctx, "garbage")
		a.Equal(device.ErrAuthInvalid, err)

		ds, err := m.List(ctx, accountID)
		a.NoError(err)
		a.Len(ds, 1)
	}
}

func TestManagerRevoke(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	m := newManager(t, time.Minute)

	d, c, err := m.Create(ctx, uuid.New(), "fp-0002-linux")
	a.NoError(err)

	// warming up the cache
	_, err = m.Authenticate(ctx, c.String())
	a.NoError(err)

	revoked, err := m.Revoke(ctx, d.ID)
	a.NoError(err)
	a.Equal(device.SRevoked, revoked.Status)
	a.False(revoked.RevokedAt.IsZero())

	// cached or not, a revoked device is rejected
	for i := 0; i < 3; i++ {
		_, err = m.Authenticate(ctx, c.String())
		a.Equal(device.ErrDeviceRevoked, err)
	}

	// revocation is terminal
	_, err = m.Revoke(ctx, d.ID)
	a.Equal(device.ErrDeviceRevoked, errors.Cause(err))

	_, err = m.Revoke(ctx, uuid.New())
	a.Equal(device.ErrDeviceNotFound, errors.Cause(err))
}

func TestStatusText(t *testing.T) {
	a := assert.New(t)

	for _, s := range []device.Status{device.SPending, device.SActive, device.SRevoked} {
		text, err := s.MarshalText()
		a.NoError(err)

		var parsed device.Status
		a.NoError(parsed.UnmarshalText(text))
		a.Equal(s, parsed)
	}

	var s device.Status
	a.Equal(device.ErrInvalidStatus, s.UnmarshalText([]byte("lost")))
}
