package postgres

import (
	"context"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"soilwatch/internal/telemetry/domain"
)

var readingCols = []string{
	"id", "device_id", "created_at",
	"soil_moisture_1", "soil_moisture_2", "soil_moisture_3", "soil_moisture_4",
	"temperature_1", "temperature_2", "humidity_1", "humidity_2",
}

func TestReadingQuery_ListRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.device_id IN ($1, $2)")).
		WithArgs("a", "b", 5).
		WillReturnRows(sqlmock.NewRows(readingCols).
			AddRow(int64(2), "b", t0.Add(time.Minute), 40.0, nil, nil, nil, 21.5, nil, 55.0, nil).
			AddRow(int64(1), "a", t0, 70.0, 71.0, nil, nil, nil, nil, nil, nil))

	query := NewReadingQuery(db)
	readings, err := query.ListRecent(context.Background(), []string{"a", "b"}, 5)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(readings))
	}
	if readings[0].DeviceID != "b" || readings[0].SoilMoisture1 == nil || *readings[0].SoilMoisture1 != 40 {
		t.Fatalf("unexpected first reading: %+v", readings[0])
	}
	if readings[0].SoilMoisture2 != nil {
		t.Fatalf("expected absent soil_moisture_2")
	}
	if readings[1].SoilMoisture2 == nil || *readings[1].SoilMoisture2 != 71 {
		t.Fatalf("unexpected second reading: %+v", readings[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReadingQuery_ListHistoryDropsNonFinite(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FROM readings")).
		WithArgs("a", from, to).
		WillReturnRows(sqlmock.NewRows(readingCols).
			AddRow(int64(1), "a", from.Add(time.Hour), math.NaN(), 50.0, nil, nil, math.Inf(1), nil, nil, nil))

	readings, err := NewReadingQuery(db).ListHistory(context.Background(), "a", from, to)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(readings))
	}
	r := readings[0]
	if r.SoilMoisture1 != nil || r.Temperature1 != nil {
		t.Fatalf("expected non-finite channels to be absent: %+v", r)
	}
	if r.SoilMoisture2 == nil || *r.SoilMoisture2 != 50 {
		t.Fatalf("expected soil_moisture_2=50: %+v", r)
	}
}

func TestReadingQuery_ListRecentNoDevices(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	readings, err := NewReadingQuery(db).ListRecent(context.Background(), nil, 5)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(readings) != 0 {
		t.Fatalf("expected no readings, got %d", len(readings))
	}
}

func TestReadingQuery_ListExportWithDeviceName(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 2, 23, 59, 59, 999999999, time.UTC)
	cols := append(append([]string{}, readingCols...), "external_id", "name")
	mock.ExpectQuery(regexp.QuoteMeta("AND d.name = $3")).
		WithArgs(from, to, "Zone 1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(7), "a", from.Add(time.Hour), 70.0, nil, nil, nil, nil, nil, nil, nil, "ZN-01", "Zone 1"))

	rows, err := NewReadingQuery(db).ListExport(context.Background(), telemetry.ExportFilter{From: from, To: to, DeviceName: "Zone 1"})
	if err != nil {
		t.Fatalf("list export: %v", err)
	}
	if len(rows) != 1 || rows[0].ExternalID != "ZN-01" || rows[0].DeviceName != "Zone 1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReadingQuery_ListExportRejectsInvertedRange(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	from := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	_, err = NewReadingQuery(db).ListExport(context.Background(), telemetry.ExportFilter{From: from, To: from.Add(-time.Hour)})
	if err == nil {
		t.Fatalf("expected error for inverted range")
	}
}
