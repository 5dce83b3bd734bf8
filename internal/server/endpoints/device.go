package endpoints

import (
	"context"
	"net/http"

	"github.com/agubarev/aegis/internal/core"
	"github.com/agubarev/aegis/pkg/device"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ownedDevice resolves the {id} route parameter to a device of the caller's account
func ownedDevice(ctx context.Context, c *core.Core, r *http.Request) (d device.Device, code int, err error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return d, http.StatusUnauthorized, ErrMissingSession
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return d, http.StatusBadRequest, errors.Wrap(ErrInvalidParameter, "device id")
	}

	d, err = c.DeviceManager().Get(ctx, id)
	if err != nil {
		return d, statusFor(err), err
	}

	// foreign devices are indistinguishable from missing ones
	if d.AccountID != claims.Identity.AccountID {
		return d, http.StatusNotFound, device.ErrDeviceNotFound
	}

	return d, http.StatusOK, nil
}

// ListDevices returns every device of the caller's account
func ListDevices(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, http.StatusUnauthorized, ErrMissingSession
	}

	ds, err := c.DeviceManager().List(ctx, claims.Identity.AccountID)
	if err != nil {
		return nil, statusFor(err), err
	}

	if ds == nil {
		ds = []device.Device{}
	}

	return ds, http.StatusOK, nil
}

// RevokeDevice permanently revokes a device
func RevokeDevice(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	d, code, err := ownedDevice(ctx, c, r)
	if err != nil {
		return nil, code, err
	}

	d, err = c.DeviceManager().Revoke(ctx, d.ID)
	if err != nil {
		return nil, statusFor(err), err
	}

	return d, http.StatusOK, nil
}

// ResetBaseline discards a device's learned profile
func ResetBaseline(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error) {
	d, code, err := ownedDevice(ctx, c, r)
	if err != nil {
		return nil, code, err
	}

	if err = c.Baseline().Reset(ctx, d.ID); err != nil {
		return nil, statusFor(err), err
	}

	p, err := c.Baseline().Profile(ctx, d.ID)
	if err != nil {
		return nil, statusFor(err), err
	}

	return p, http.StatusOK, nil
}
