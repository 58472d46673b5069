package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	masterdata "soilwatch/internal/masterdata/domain"
	telemetry "soilwatch/internal/telemetry/domain"
)

// Outcome describes what Apply did with a change event.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeSuperseded    Outcome = "superseded"
	OutcomeUnknownDevice Outcome = "unknown_device"
	OutcomeDeleteIgnored Outcome = "delete_ignored"
	OutcomeMalformed     Outcome = "malformed"
)

// DeviceLatestView is one row of the live dashboard.
type DeviceLatestView struct {
	Device masterdata.Device  `json:"device"`
	Latest *telemetry.Reading `json:"latest"`
	Stale  bool               `json:"stale"`
}

// Reconciler keeps the newest reading per known device under bulk refreshes
// and out-of-order, possibly duplicated change events.
//
// Held readings are never mutated; every update replaces a map entry under
// the lock, so readers see either the old or the new entry.
type Reconciler struct {
	threshold time.Duration

	mu      sync.RWMutex
	devices []masterdata.Device
	latest  map[string]*telemetry.Reading
}

// NewReconciler constructs an empty reconciler. A non-positive threshold
// falls back to DefaultFreshnessThreshold.
func NewReconciler(threshold time.Duration) *Reconciler {
	if threshold <= 0 {
		threshold = DefaultFreshnessThreshold
	}
	return &Reconciler{
		threshold: threshold,
		latest:    make(map[string]*telemetry.Reading),
	}
}

// Threshold returns the freshness threshold.
func (r *Reconciler) Threshold() time.Duration {
	if r == nil {
		return DefaultFreshnessThreshold
	}
	return r.threshold
}

// Initialize replaces all state with the newest reading per device taken
// from an unordered batch. Identical created_at values resolve to the higher
// reading id. Readings for unknown devices are ignored.
func (r *Reconciler) Initialize(devices []masterdata.Device, readings []telemetry.Reading) error {
	if r == nil {
		return ErrNilReconciler
	}
	next, err := pickLatest(devices, readings)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.devices = append([]masterdata.Device(nil), devices...)
	r.latest = next
	r.mu.Unlock()
	return nil
}

// Merge applies a bulk refresh like Initialize but never moves a device back
// to an older reading than the one already held. Devices absent from the
// refreshed list are dropped.
func (r *Reconciler) Merge(devices []masterdata.Device, readings []telemetry.Reading) error {
	if r == nil {
		return ErrNilReconciler
	}
	next, err := pickLatest(devices, readings)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, candidate := range next {
		held := r.latest[id]
		if held == nil {
			continue
		}
		if candidate == nil || held.CreatedAt.After(candidate.CreatedAt) {
			next[id] = held
		}
	}
	r.devices = append([]masterdata.Device(nil), devices...)
	r.latest = next
	return nil
}

// Apply folds one change event into the state. It never fails: malformed
// events, deletes and events for unknown devices leave the state untouched.
// An insert or update wins only with a strictly newer created_at.
func (r *Reconciler) Apply(event telemetry.ChangeEvent) Outcome {
	if r == nil {
		return OutcomeMalformed
	}
	if err := event.Validate(); err != nil {
		return OutcomeMalformed
	}
	kind, _ := telemetry.ParseChangeKind(string(event.Kind))

	r.mu.Lock()
	defer r.mu.Unlock()
	held, known := r.latest[event.Reading.DeviceID]
	if !known {
		return OutcomeUnknownDevice
	}
	// Deleting the current latest is not reconciled to an earlier reading;
	// the next refresh settles it.
	if kind == telemetry.ChangeDelete {
		return OutcomeDeleteIgnored
	}
	if held != nil && !event.Reading.CreatedAt.After(held.CreatedAt) {
		return OutcomeSuperseded
	}
	reading := event.Reading
	r.latest[reading.DeviceID] = &reading
	return OutcomeApplied
}

// Latest returns a copy of the held latest reading for a device.
func (r *Reconciler) Latest(deviceID string) (telemetry.Reading, bool) {
	if r == nil {
		return telemetry.Reading{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	held := r.latest[deviceID]
	if held == nil {
		return telemetry.Reading{}, false
	}
	return *held, true
}

// Snapshot returns one view per known device, ordered by name without
// regard to case, then by exact name and id.
func (r *Reconciler) Snapshot(now time.Time) []DeviceLatestView {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	views := make([]DeviceLatestView, 0, len(r.devices))
	for _, device := range r.devices {
		var latest *telemetry.Reading
		if held := r.latest[device.ID]; held != nil {
			copied := *held
			latest = &copied
		}
		views = append(views, DeviceLatestView{
			Device: device,
			Latest: latest,
			Stale:  IsStale(latest, now, r.threshold),
		})
	}
	r.mu.RUnlock()

	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i].Device, views[j].Device
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return views
}

func pickLatest(devices []masterdata.Device, readings []telemetry.Reading) (map[string]*telemetry.Reading, error) {
	next := make(map[string]*telemetry.Reading, len(devices))
	for _, device := range devices {
		if err := device.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		next[device.ID] = nil
	}
	for i := range readings {
		reading := readings[i]
		if err := reading.Validate(); err != nil {
			return nil, fmt.Errorf("%w: reading %d: %v", ErrInvalidInput, reading.ID, err)
		}
		held, known := next[reading.DeviceID]
		if !known {
			continue
		}
		if held == nil || reading.NewerThan(*held) {
			next[reading.DeviceID] = &reading
		}
	}
	return next, nil
}
