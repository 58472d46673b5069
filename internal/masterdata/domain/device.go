package masterdata

import (
	"context"
	"errors"
)

// ErrInvalidDevice is returned when a device misses its identifier.
var ErrInvalidDevice = errors.New("device: empty id")

// Device is a provisioned monitoring unit. Devices are provisioned out of band
// and are read-only here.
type Device struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

// Validate checks device invariants.
func (d Device) Validate() error {
	if d.ID == "" {
		return ErrInvalidDevice
	}
	return nil
}

// DeviceDirectory lists the monitored devices. Get returns nil, nil for an
// unknown id.
type DeviceDirectory interface {
	ListDevices(ctx context.Context) ([]Device, error)
	Get(ctx context.Context, id string) (*Device, error)
}

// IDs returns the identifiers of devices in order.
func IDs(devices []Device) []string {
	ids := make([]string, 0, len(devices))
	for _, device := range devices {
		if device.ID == "" {
			continue
		}
		ids = append(ids, device.ID)
	}
	return ids
}
