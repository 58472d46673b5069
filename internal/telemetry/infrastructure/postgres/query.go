package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"soilwatch/internal/telemetry/domain"
)

const (
	defaultReadingsTable = "readings"
	defaultDevicesTable  = "devices"
)

const readingColumns = `id, device_id, created_at,
	soil_moisture_1, soil_moisture_2, soil_moisture_3, soil_moisture_4,
	temperature_1, temperature_2, humidity_1, humidity_2`

// ReadingQuery is a Postgres query implementation over the readings table.
type ReadingQuery struct {
	db           *sql.DB
	table        string
	devicesTable string
}

// NewReadingQuery constructs a query with default table names.
func NewReadingQuery(db *sql.DB, opts ...QueryOption) *ReadingQuery {
	query := &ReadingQuery{db: db, table: defaultReadingsTable, devicesTable: defaultDevicesTable}
	for _, opt := range opts {
		opt(query)
	}
	return query
}

// QueryOption configures the reading query.
type QueryOption func(*ReadingQuery)

// WithQueryTable overrides the default readings table name.
func WithQueryTable(table string) QueryOption {
	return func(query *ReadingQuery) {
		if query != nil && table != "" {
			query.table = table
		}
	}
}

// WithDevicesTable overrides the default devices table name used by exports.
func WithDevicesTable(table string) QueryOption {
	return func(query *ReadingQuery) {
		if query != nil && table != "" {
			query.devicesTable = table
		}
	}
}

// ListRecent returns up to perDevice newest readings per device, newest first.
func (q *ReadingQuery) ListRecent(ctx context.Context, deviceIDs []string, perDevice int) ([]telemetry.Reading, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("reading query: nil db")
	}
	if perDevice <= 0 {
		return nil, errors.New("reading query: invalid per-device limit")
	}
	if len(deviceIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(deviceIDs)+1)
	placeholders := make([]string, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		args = append(args, id)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	args = append(args, perDevice)

	query := fmt.Sprintf(`
SELECT %s
FROM (
	SELECT r.*, ROW_NUMBER() OVER (PARTITION BY r.device_id ORDER BY r.created_at DESC, r.id DESC) AS rn
	FROM %s r
	WHERE r.device_id IN (%s)
) ranked
WHERE rn <= $%d
ORDER BY created_at DESC, id DESC`, readingColumns, q.table, strings.Join(placeholders, ", "), len(args))

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []telemetry.Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListHistory returns readings of one device within [from, to], oldest first.
func (q *ReadingQuery) ListHistory(ctx context.Context, deviceID string, from, to time.Time) ([]telemetry.Reading, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("reading query: nil db")
	}
	if deviceID == "" || from.IsZero() || to.IsZero() {
		return nil, errors.New("reading query: invalid arguments")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE device_id = $1
	AND created_at >= $2
	AND created_at <= $3
ORDER BY created_at ASC, id ASC`, readingColumns, q.table)

	rows, err := q.db.QueryContext(ctx, query, deviceID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []telemetry.Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListExport returns readings joined with their device within [From, To],
// optionally restricted to one device name, oldest first.
func (q *ReadingQuery) ListExport(ctx context.Context, filter telemetry.ExportFilter) ([]telemetry.ExportRow, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("reading query: nil db")
	}
	if filter.From.IsZero() || filter.To.IsZero() || filter.To.Before(filter.From) {
		return nil, errors.New("reading query: invalid export range")
	}

	args := []any{filter.From.UTC(), filter.To.UTC()}
	nameClause := ""
	if filter.DeviceName != "" {
		args = append(args, filter.DeviceName)
		nameClause = "\n\tAND d.name = $3"
	}

	query := fmt.Sprintf(`
SELECT r.id, r.device_id, r.created_at,
	r.soil_moisture_1, r.soil_moisture_2, r.soil_moisture_3, r.soil_moisture_4,
	r.temperature_1, r.temperature_2, r.humidity_1, r.humidity_2,
	d.external_id, d.name
FROM %s r
JOIN %s d ON d.id = r.device_id
WHERE r.created_at >= $1
	AND r.created_at <= $2%s
ORDER BY r.created_at ASC, r.id ASC`, q.table, q.devicesTable, nameClause)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []telemetry.ExportRow
	for rows.Next() {
		var row telemetry.ExportRow
		channels := make([]sql.NullFloat64, len(telemetry.ChannelNames))
		dest := []any{&row.ID, &row.DeviceID, &row.CreatedAt}
		for i := range channels {
			dest = append(dest, &channels[i])
		}
		dest = append(dest, &row.ExternalID, &row.DeviceName)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row.CreatedAt = row.CreatedAt.UTC()
		assignChannels(&row.Reading, channels)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanReading(rows *sql.Rows) (telemetry.Reading, error) {
	var reading telemetry.Reading
	channels := make([]sql.NullFloat64, len(telemetry.ChannelNames))
	dest := []any{&reading.ID, &reading.DeviceID, &reading.CreatedAt}
	for i := range channels {
		dest = append(dest, &channels[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return telemetry.Reading{}, err
	}
	reading.CreatedAt = reading.CreatedAt.UTC()
	assignChannels(&reading, channels)
	return reading, nil
}

func assignChannels(reading *telemetry.Reading, channels []sql.NullFloat64) {
	for i, ref := range reading.ChannelRefs() {
		if channels[i].Valid && telemetry.Finite(channels[i].Float64) {
			v := channels[i].Float64
			*ref = &v
		}
	}
}
