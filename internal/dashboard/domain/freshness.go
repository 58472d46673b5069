package dashboard

import (
	"time"

	telemetry "soilwatch/internal/telemetry/domain"
)

// DefaultFreshnessThreshold is the age after which a latest reading is stale.
const DefaultFreshnessThreshold = 12500 * time.Millisecond

// IsStale reports whether a device with the given latest reading is stale at
// now. No reading is always stale; an age equal to the threshold is fresh.
func IsStale(latest *telemetry.Reading, now time.Time, threshold time.Duration) bool {
	if latest == nil {
		return true
	}
	return now.Sub(latest.CreatedAt) > threshold
}
