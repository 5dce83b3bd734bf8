package session

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io/ioutil"
	"time"

	"github.com/agubarev/aegis/pkg/util"
	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// defaults
const (
	DefaultTTL     = 15 * time.Minute
	DefaultSkew    = 60 * time.Second
	DefaultKeySize = 2048
)

// Authority issues and validates stateless RS256 session tokens
type Authority struct {
	privateKey *rsa.PrivateKey
	parser     *jwt.Parser
	skew       time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewAuthority initializes a session authority around a private key
func NewAuthority(key *rsa.PrivateKey) (*Authority, error) {
	if key == nil {
		return nil, ErrNilPrivateKey
	}

	if err := key.Validate(); err != nil {
		return nil, errors.Wrap(err, "private key validation failed")
	}

	a := &Authority{
		privateKey: key,
		parser: &jwt.Parser{
			ValidMethods:         []string{jwt.SigningMethodRS256.Alg()},
			SkipClaimsValidation: true,
		},
		skew: DefaultSkew,
		now:  time.Now,
	}

	return a, nil
}

// GenerateKey generates a fresh RSA signing key
func GenerateKey(bits int) (*rsa.PrivateKey, error) {
	if bits <= 0 {
		bits = DefaultKeySize
	}

	return rsa.GenerateKey(rand.Reader, bits)
}

// LoadPrivateKey reads a PEM-encoded RSA private key
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	payload, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read private key %s", path)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(payload)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidKeyMaterial, err.Error())
	}

	return key, nil
}

// EncodePrivateKey encodes a private key as PKCS#1 PEM
func EncodePrivateKey(key *rsa.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPrivateKey
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), nil
}

// SetLogger assigns a logger to this authority
func (a *Authority) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[session]")
	}

	a.logger = logger

	return nil
}

// Logger returns own logger
func (a *Authority) Logger() *zap.Logger {
	if a.logger == nil {
		a.logger = util.FallbackLogger(nil, "[session]")
	}

	return a.logger
}

// SetSkew sets the tolerated clock skew for expiration checks
func (a *Authority) SetSkew(skew time.Duration) {
	if skew < 0 {
		skew = 0
	}

	a.skew = skew
}

// SetClock overrides the time source
func (a *Authority) SetClock(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// Issue signs a new session token for the given identity and role
func (a *Authority) Issue(ident Identity, role Role, ttl time.Duration) (signed string, c Claims, err error) {
	if a == nil {
		return "", c, ErrNilAuthority
	}

	if ttl <= 0 {
		return "", c, ErrInvalidTTL
	}

	ident.Role = role

	if role != RDeviceUser {
		ident.DeviceID = uuid.Nil
	}

	if err = ident.Validate(); err != nil {
		return "", c, errors.Wrap(err, "invalid identity")
	}

	now := a.now()

	c = Claims{
		Identity: ident,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.New().String(),
			Subject:   ident.ID.String(),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}

	signed, err = jwt.NewWithClaims(jwt.SigningMethodRS256, c).SignedString(a.privateKey)
	if err != nil {
		return "", c, errors.Wrap(err, "failed to obtain a signed token string")
	}

	a.Logger().Debug(
		"session issued",
		zap.String("identity_id", ident.ID.String()),
		zap.String("role", string(role)),
		zap.String("jti", c.Id),
	)

	return signed, c, nil
}

// Validate verifies the signature and expiry of a session token
// NOTE: the algorithm is pinned to RS256, anything else is invalid
func (a *Authority) Validate(signed string) (c Claims, err error) {
	if a == nil {
		return c, ErrNilAuthority
	}

	tok, err := a.parser.ParseWithClaims(signed, &c, func(t *jwt.Token) (interface{}, error) {
		return &a.privateKey.PublicKey, nil
	})

	if err != nil || !tok.Valid {
		return Claims{}, ErrTokenInvalid
	}

	if c.ExpiresAt == 0 {
		return Claims{}, ErrTokenInvalid
	}

	if a.now().After(time.Unix(c.ExpiresAt, 0).Add(a.skew)) {
		return Claims{}, ErrTokenExpired
	}

	if err = c.Identity.Validate(); err != nil {
		return Claims{}, ErrTokenInvalid
	}

	return c, nil
}
