package endpoints

import (
	"context"
	"net/http"
	"strconv"

	"github.com/agubarev/aegis/internal/core"
	"github.com/agubarev/aegis/pkg/security/session"
	"github.com/agubarev/aegis/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Ingest accepts a single raw event from an enrolled agent
func Ingest(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	credential := DeviceCredential(r)
	if credential == "" {
		return nil, http.StatusUnauthorized, ErrMissingDevice
	}

	raw := telemetry.RawEvent{}
	if err = decode(r, &raw); err != nil {
		return nil, http.StatusBadRequest, err
	}

	e, err := c.Ingestor().Ingest(ctx, credential, raw)
	if err != nil {
		return nil, statusFor(err), err
	}

	return e, http.StatusAccepted, nil
}

// ListEvents returns recent events of the caller's account; a device user
// only ever sees its own device
func ListEvents(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, http.StatusUnauthorized, ErrMissingSession
	}

	q := r.URL.Query()

	deviceID := uuid.Nil
	if s := q.Get("device_id"); s != "" {
		if deviceID, err = uuid.Parse(s); err != nil {
			return nil, http.StatusBadRequest, errors.Wrapf(ErrInvalidParameter, "device_id %q", s)
		}
	}

	limit := 0
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			return nil, http.StatusBadRequest, errors.Wrapf(ErrInvalidParameter, "limit %q", s)
		}
	}

	if claims.Identity.Role == session.RDeviceUser {
		if deviceID != uuid.Nil && deviceID != claims.Identity.DeviceID {
			return nil, http.StatusForbidden, ErrForbidden
		}

		deviceID = claims.Identity.DeviceID
	}

	es, err := c.Ingestor().ListEvents(ctx, claims.Identity.AccountID, deviceID, limit)
	if err != nil {
		return nil, statusFor(err), err
	}

	if es == nil {
		es = []telemetry.Event{}
	}

	return es, http.StatusOK, nil
}
