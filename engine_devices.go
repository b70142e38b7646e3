package authgate

import (
	"context"
	"strconv"

	"github.com/MrEthical07/authgate/store"
)

// ListDevices returns the user's active devices, most recently seen first.
func (e *Engine) ListDevices(ctx context.Context, userID string) ([]store.Device, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	devices, err := e.devices.List(ctx, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	return devices, nil
}

// TrustDevice marks a registered device trusted. A trusted known device no
// longer triggers the device verification rule of the OTP gate. Trust is
// never granted by a login alone.
func (e *Engine) TrustDevice(ctx context.Context, userID, deviceID string) (store.Device, error) {
	return e.updateDevice(ctx, userID, deviceID, EventDeviceTrusted, func(tx *userTx) (store.Device, error) {
		return e.devices.Trust(tx.ctx, userID, deviceID)
	})
}

// UntrustDevice clears the trust flag.
func (e *Engine) UntrustDevice(ctx context.Context, userID, deviceID string) (store.Device, error) {
	return e.updateDevice(ctx, userID, deviceID, EventDeviceUntrusted, func(tx *userTx) (store.Device, error) {
		return e.devices.Untrust(tx.ctx, userID, deviceID)
	})
}

// RemoveDevice deactivates the device, revokes every credential bound to it
// and ends its sessions.
func (e *Engine) RemoveDevice(ctx context.Context, userID, deviceID string) error {
	_, err := e.updateDevice(ctx, userID, deviceID, EventDeviceRemoved, func(tx *userTx) (store.Device, error) {
		d, err := e.devices.Remove(tx.ctx, userID, deviceID)
		if err != nil {
			return store.Device{}, err
		}
		revoked, err := e.credentials.RevokeDevice(tx.ctx, userID, deviceID, ReasonDeviceRemoved)
		if err != nil {
			return store.Device{}, err
		}
		ended, err := e.sessions.DeactivateDevice(tx.ctx, userID, deviceID, ReasonDeviceRemoved)
		if err != nil {
			return store.Device{}, err
		}
		e.log.WithField("user_id", userID).WithField("device_id", deviceID).
			WithField("revoked", revoked).WithField("sessions", ended).Debug("authgate: device removed")
		return d, nil
	})
	return err
}

func (e *Engine) updateDevice(ctx context.Context, userID, deviceID, event string, fn func(tx *userTx) (store.Device, error)) (store.Device, error) {
	if e == nil {
		return store.Device{}, ErrEngineNotReady
	}
	var out store.Device
	err := e.withUser(ctx, userID, func(tx *userTx) error {
		d, err := fn(tx)
		if err != nil {
			return err
		}
		out = d
		tx.record(event, store.SeverityMedium, "", true, map[string]string{
			"device_id": deviceID,
			"trusted":   strconv.FormatBool(d.Trusted),
		})
		return nil
	})
	if err != nil {
		return store.Device{}, err
	}
	return out, nil
}
