package dashboard

import (
	"testing"
	"time"

	masterdata "soilwatch/internal/masterdata/domain"
	telemetry "soilwatch/internal/telemetry/domain"
)

func TestIsStaleBoundary(t *testing.T) {
	threshold := DefaultFreshnessThreshold
	latest := &telemetry.Reading{ID: 1, DeviceID: "a", CreatedAt: t0}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"below threshold", t0.Add(threshold - time.Millisecond), false},
		{"at threshold", t0.Add(threshold), false},
		{"above threshold", t0.Add(threshold + time.Millisecond), true},
	}
	for _, tc := range cases {
		if got := IsStale(latest, tc.now, threshold); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
	if !IsStale(nil, t0, threshold) {
		t.Fatalf("missing reading must be stale")
	}
}

func TestSnapshotUsesConfiguredThreshold(t *testing.T) {
	rec := NewReconciler(10 * time.Minute)
	_ = rec.Initialize([]masterdata.Device{{ID: "a", Name: "Zone 1"}}, []telemetry.Reading{reading(1, "a", t0, 70)})
	if rec.Snapshot(t0.Add(5 * time.Minute))[0].Stale {
		t.Fatalf("expected fresh within threshold")
	}
	if !rec.Snapshot(t0.Add(11 * time.Minute))[0].Stale {
		t.Fatalf("expected stale past threshold")
	}
	if NewReconciler(0).Threshold() != DefaultFreshnessThreshold {
		t.Fatalf("expected default threshold")
	}
}
