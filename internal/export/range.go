package export

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout   = "2006-01-02"
	minuteLayout = "2006-01-02T15:04"
)

var (
	// ErrInvalidRange is returned for unparseable or inverted ranges.
	ErrInvalidRange = errors.New("export: invalid range")
)

// ParseRange parses inclusive export bounds given as dates or minutes in
// loc. The end is extended to the last instant of its day or minute.
func ParseRange(fromRaw, toRaw string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	from, _, err := parseBound(fromRaw, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from: %v", ErrInvalidRange, err)
	}
	to, span, err := parseBound(toRaw, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to: %v", ErrInvalidRange, err)
	}
	to = endOf(to, span)
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to before from", ErrInvalidRange)
	}
	return from, to, nil
}

type precision int

const (
	byDay precision = iota
	byMinute
)

func parseBound(raw string, loc *time.Location) (time.Time, precision, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, byDay, errors.New("missing")
	}
	if t, err := time.ParseInLocation(minuteLayout, raw, loc); err == nil {
		return t, byMinute, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, byDay, fmt.Errorf("expected YYYY-MM-DD or YYYY-MM-DDTHH:MM, got %q", raw)
	}
	return t, byDay, nil
}

func endOf(t time.Time, p precision) time.Time {
	if p == byMinute {
		return t.Add(time.Minute - time.Nanosecond)
	}
	next := time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
	return next.Add(-time.Nanosecond)
}
