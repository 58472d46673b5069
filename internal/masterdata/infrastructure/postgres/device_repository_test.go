package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestDeviceRepository_ListDevices(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM devices")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "name"}).
			AddRow("a", "ZN-01", "Zone 1").
			AddRow("b", "ZN-02", "Zone 2"))

	repo := NewDeviceRepository(db)
	devices, err := repo.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("list devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	if devices[0].ExternalID != "ZN-01" || devices[1].Name != "Zone 2" {
		t.Fatalf("unexpected devices: %+v", devices)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeviceRepository_GetMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "name"}))

	repo := NewDeviceRepository(db, WithDeviceTable("devices"))
	device, err := repo.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if device != nil {
		t.Fatalf("expected nil device, got %+v", device)
	}
}

func TestDeviceRepository_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "name"}).AddRow("a", "ZN-01", "Zone 1"))

	repo := NewDeviceRepository(db)
	device, err := repo.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if device == nil || device.ExternalID != "ZN-01" || device.Name != "Zone 1" {
		t.Fatalf("unexpected device %+v", device)
	}
	if _, err := repo.Get(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
