package application

import "errors"

var (
	// ErrDeviceNotFound is returned for history requests on unknown devices.
	ErrDeviceNotFound = errors.New("dashboard: device not found")
	// ErrSessionRevoked ends a live session whose sign-in was revoked.
	ErrSessionRevoked = errors.New("dashboard: session revoked")
	// ErrSessionExpired ends a live session whose token expired.
	ErrSessionExpired = errors.New("dashboard: session expired")
)
