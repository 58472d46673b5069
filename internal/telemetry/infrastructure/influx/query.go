package influx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"soilwatch/internal/telemetry/domain"
)

const (
	defaultMeasurement    = "readings"
	defaultRecentLookback = 30 * 24 * time.Hour
)

// ReadingQuery reads readings from an InfluxDB bucket. Points carry a
// device_id tag and one field per channel; an optional integer "id" field
// is used as the reading id.
type ReadingQuery struct {
	queryAPI       api.QueryAPI
	bucket         string
	measurement    string
	recentLookback time.Duration
}

// Option configures the reading query.
type Option func(*ReadingQuery)

// WithMeasurement overrides the measurement name.
func WithMeasurement(measurement string) Option {
	return func(q *ReadingQuery) {
		if measurement != "" {
			q.measurement = measurement
		}
	}
}

// WithRecentLookback bounds how far back ListRecent searches.
func WithRecentLookback(lookback time.Duration) Option {
	return func(q *ReadingQuery) {
		if lookback > 0 {
			q.recentLookback = lookback
		}
	}
}

// NewReadingQuery constructs a query over client for org and bucket.
func NewReadingQuery(client influxdb2.Client, org, bucket string, opts ...Option) (*ReadingQuery, error) {
	if client == nil {
		return nil, errors.New("influx reading query: nil client")
	}
	if org == "" || bucket == "" {
		return nil, errors.New("influx reading query: org and bucket are required")
	}
	q := &ReadingQuery{
		queryAPI:       client.QueryAPI(org),
		bucket:         bucket,
		measurement:    defaultMeasurement,
		recentLookback: defaultRecentLookback,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// ListRecent returns up to perDevice newest readings per device, newest first.
func (q *ReadingQuery) ListRecent(ctx context.Context, deviceIDs []string, perDevice int) ([]telemetry.Reading, error) {
	if q == nil || q.queryAPI == nil {
		return nil, errors.New("influx reading query: not configured")
	}
	if perDevice <= 0 {
		return nil, errors.New("influx reading query: invalid per-device limit")
	}
	if len(deviceIDs) == 0 {
		return nil, nil
	}
	readings, err := q.run(ctx, buildRecentFlux(q.bucket, q.measurement, deviceIDs, perDevice, q.recentLookback))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(readings, func(i, j int) bool { return readings[i].NewerThan(readings[j]) })
	return readings, nil
}

// ListHistory returns readings of one device within [from, to], oldest first.
func (q *ReadingQuery) ListHistory(ctx context.Context, deviceID string, from, to time.Time) ([]telemetry.Reading, error) {
	if q == nil || q.queryAPI == nil {
		return nil, errors.New("influx reading query: not configured")
	}
	if deviceID == "" || from.IsZero() || to.IsZero() {
		return nil, errors.New("influx reading query: invalid arguments")
	}
	readings, err := q.run(ctx, buildHistoryFlux(q.bucket, q.measurement, deviceID, from, to))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(readings, func(i, j int) bool { return readings[j].NewerThan(readings[i]) })
	return readings, nil
}

func (q *ReadingQuery) run(ctx context.Context, flux string) ([]telemetry.Reading, error) {
	result, err := q.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx reading query: %w", err)
	}
	defer result.Close()

	var readings []telemetry.Reading
	for result.Next() {
		record := result.Record()
		reading, ok := recordToReading(record.Time(), record.Values())
		if !ok {
			continue
		}
		readings = append(readings, reading)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("influx reading query: %w", err)
	}
	return readings, nil
}

func buildRecentFlux(bucket, measurement string, deviceIDs []string, perDevice int, lookback time.Duration) string {
	quoted := make([]string, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		quoted = append(quoted, strconv.Quote(id))
	}
	return fmt.Sprintf(`from(bucket: %s)
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == %s and contains(value: r.device_id, set: [%s]))
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group(columns: ["device_id"])
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: %d)`,
		strconv.Quote(bucket), int64(lookback/time.Second), strconv.Quote(measurement), strings.Join(quoted, ", "), perDevice)
}

func buildHistoryFlux(bucket, measurement, deviceID string, from, to time.Time) string {
	// range stop is exclusive; push it one nanosecond past the inclusive bound.
	return fmt.Sprintf(`from(bucket: %s)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %s and r.device_id == %s)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"])`,
		strconv.Quote(bucket),
		from.UTC().Format(time.RFC3339Nano),
		to.Add(time.Nanosecond).UTC().Format(time.RFC3339Nano),
		strconv.Quote(measurement),
		strconv.Quote(deviceID))
}

func recordToReading(ts time.Time, values map[string]any) (telemetry.Reading, bool) {
	deviceID, _ := values["device_id"].(string)
	if deviceID == "" || ts.IsZero() {
		return telemetry.Reading{}, false
	}
	reading := telemetry.Reading{DeviceID: deviceID, CreatedAt: ts.UTC()}
	if id, ok := toInt64(values["id"]); ok {
		reading.ID = id
	} else {
		reading.ID = ts.UnixNano()
	}
	refs := reading.ChannelRefs()
	for i, name := range telemetry.ChannelNames {
		if v, ok := toFloat(values[name]); ok && telemetry.Finite(v) {
			*refs[i] = &v
		}
	}
	return reading, true
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
