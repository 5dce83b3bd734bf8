package endpoints

import (
	"context"
	"net/http"
	"time"

	"github.com/agubarev/aegis/internal/core"
	"github.com/agubarev/aegis/pkg/enrollment"
	"github.com/pkg/errors"
)

// IssueTokenRequest asks for a new enrollment token
type IssueTokenRequest struct {
	TTL string `json:"ttl,omitempty"`
}

// IssueToken issues a single-use enrollment token for the caller's account
func IssueToken(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, http.StatusUnauthorized, ErrMissingSession
	}

	req := IssueTokenRequest{}
	if r.ContentLength != 0 {
		if err = decode(r, &req); err != nil {
			return nil, http.StatusBadRequest, err
		}
	}

	ttl := c.TokenTTL()
	if req.TTL != "" {
		if ttl, err = time.ParseDuration(req.TTL); err != nil || ttl <= 0 {
			return nil, http.StatusBadRequest, errors.Wrapf(ErrInvalidParameter, "ttl %q", req.TTL)
		}
	}

	issued, err := c.Enrollment().IssueToken(ctx, claims.Identity.ID.String(), claims.Identity.AccountID, ttl)
	if err != nil {
		return nil, statusFor(err), err
	}

	return issued, http.StatusCreated, nil
}

// Enroll redeems an enrollment token for a device identity
func Enroll(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	req := enrollment.Request{}
	if err = decode(r, &req); err != nil {
		return nil, http.StatusBadRequest, err
	}

	enrolled, err := c.Enrollment().Redeem(ctx, req.Token, req.Fingerprint)
	if err != nil {
		return nil, statusFor(err), err
	}

	return enrolled, http.StatusCreated, nil
}
