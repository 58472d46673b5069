package export

import (
	"errors"
	"testing"
	"time"
)

func TestParseRange(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	cases := []struct {
		name     string
		from, to string
		wantFrom time.Time
		wantTo   time.Time
	}{
		{
			name:     "dates",
			from:     "2025-01-01",
			to:       "2025-01-02",
			wantFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, loc),
			wantTo:   time.Date(2025, 1, 2, 23, 59, 59, 999999999, loc),
		},
		{
			name:     "minutes",
			from:     "2025-01-01T08:15",
			to:       "2025-01-01T09:30",
			wantFrom: time.Date(2025, 1, 1, 8, 15, 0, 0, loc),
			wantTo:   time.Date(2025, 1, 1, 9, 30, 59, 999999999, loc),
		},
		{
			name:     "same day",
			from:     "2025-02-28",
			to:       "2025-02-28",
			wantFrom: time.Date(2025, 2, 28, 0, 0, 0, 0, loc),
			wantTo:   time.Date(2025, 2, 28, 23, 59, 59, 999999999, loc),
		},
	}
	for _, tc := range cases {
		from, to, err := ParseRange(tc.from, tc.to, loc)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !from.Equal(tc.wantFrom) || !to.Equal(tc.wantTo) {
			t.Fatalf("%s: got %s..%s", tc.name, from, to)
		}
	}
}

func TestParseRangeErrors(t *testing.T) {
	cases := []struct{ from, to string }{
		{"", "2025-01-01"},
		{"2025-01-01", ""},
		{"01/01/2025", "2025-01-02"},
		{"2025-01-03", "2025-01-02"},
	}
	for _, tc := range cases {
		if _, _, err := ParseRange(tc.from, tc.to, time.UTC); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("%q..%q: expected ErrInvalidRange, got %v", tc.from, tc.to, err)
		}
	}
}
