// Package device keeps the per-user registry of known client devices.
//
// Devices are keyed by a fingerprint derived from the client supplied device
// id or, failing that, from the user agent and network prefix. Registration is
// automatic on first use and never grants trust. Trust is only changed by
// [Registry.Trust] and [Registry.Untrust].
package device

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/MrEthical07/authgate/store"
)

// ErrDeviceNotFound is returned for unknown or removed devices.
var ErrDeviceNotFound = errors.New("device: not found")

// Registry manages one user's devices.
type Registry struct {
	records store.Collection[store.Device]
	now     func() time.Time
}

// NewRegistry returns a Registry. A nil clock selects time.Now.
func NewRegistry(records store.Collection[store.Device], now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{records: records, now: now}
}

// Seen describes one observation of a device.
type Seen struct {
	ID      string
	Info    Info
	IP      string
	Country string
}

// Register upserts the device. A known device has LastSeen and metadata
// refreshed and keeps its trust flag; a new one starts untrusted. created
// reports whether the record was new or previously removed.
func (r *Registry) Register(ctx context.Context, userID string, seen Seen) (store.Device, bool, error) {
	now := r.now()
	d, err := r.records.Get(ctx, userID, seen.ID)
	created := false
	switch {
	case errors.Is(err, store.ErrNotFound):
		d = store.Device{ID: seen.ID, FirstSeen: now}
		created = true
	case err != nil:
		return store.Device{}, false, err
	case !d.Active:
		created = true
	}

	d.Active = true
	d.LastSeen = now
	if seen.Info.Type != "" {
		d.Type = seen.Info.Type
	}
	if seen.Info.OS != "" {
		d.OS = seen.Info.OS
	}
	if seen.Info.Browser != "" {
		d.Browser = seen.Info.Browser
	}
	if seen.IP != "" {
		d.LastIP = seen.IP
	}
	if seen.Country != "" {
		d.Country = seen.Country
	}

	if err := r.records.Put(ctx, userID, d); err != nil {
		return store.Device{}, false, err
	}
	return d, created, nil
}

// Trust marks an active device trusted.
func (r *Registry) Trust(ctx context.Context, userID, id string) (store.Device, error) {
	return r.update(ctx, userID, id, func(d *store.Device) {
		if d.Trusted {
			return
		}
		at := r.now()
		d.Trusted = true
		d.TrustedAt = &at
	})
}

// Untrust clears the trust flag.
func (r *Registry) Untrust(ctx context.Context, userID, id string) (store.Device, error) {
	return r.update(ctx, userID, id, func(d *store.Device) {
		d.Trusted = false
		d.TrustedAt = nil
	})
}

// Remove deactivates the device and drops its trust. The record is kept so
// history stays attributable; registering it again starts untrusted.
func (r *Registry) Remove(ctx context.Context, userID, id string) (store.Device, error) {
	return r.update(ctx, userID, id, func(d *store.Device) {
		d.Active = false
		d.Trusted = false
		d.TrustedAt = nil
	})
}

// Get returns an active device.
func (r *Registry) Get(ctx context.Context, userID, id string) (store.Device, error) {
	d, err := r.records.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Device{}, ErrDeviceNotFound
		}
		return store.Device{}, err
	}
	if !d.Active {
		return store.Device{}, ErrDeviceNotFound
	}
	return d, nil
}

// Status reports whether the device is known (registered and active) and
// trusted.
func (r *Registry) Status(ctx context.Context, userID, id string) (known, trusted bool, err error) {
	d, err := r.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, d.Trusted, nil
}

// List returns active devices, most recently seen first.
func (r *Registry) List(ctx context.Context, userID string) ([]store.Device, error) {
	all, err := r.records.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []store.Device
	for _, d := range all {
		if d.Active {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Registry) update(ctx context.Context, userID, id string, mutate func(*store.Device)) (store.Device, error) {
	d, err := r.Get(ctx, userID, id)
	if err != nil {
		return store.Device{}, err
	}
	mutate(&d)
	if err := r.records.Put(ctx, userID, d); err != nil {
		return store.Device{}, err
	}
	return d, nil
}
