package dashboard

import "errors"

var (
	// ErrInvalidInput marks a refresh batch that breaks the caller contract:
	// a device without id or a reading without device or capture time.
	ErrInvalidInput = errors.New("dashboard: invalid refresh input")
	// ErrNilReconciler is returned by methods called on a nil reconciler.
	ErrNilReconciler = errors.New("dashboard: nil reconciler")
)
