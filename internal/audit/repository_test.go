package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRepositoryLogExport(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 2, 23, 59, 59, 0, time.UTC)
	metadata := json.RawMessage(`{"rows":3}`)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(sqlmock.AnyArg(), "alice@example.com", ActionExport, "", "csv", "Zone 1",
			sql.NullTime{Time: from, Valid: true}, sql.NullTime{Time: to, Valid: true}, 3,
			[]byte(metadata), DigestJSON(metadata), "10.0.0.1", "curl", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRepository(db)
	err = repo.Log(context.Background(), Entry{
		Actor:        "alice@example.com",
		Action:       ActionExport,
		ExportFormat: "csv",
		DeviceName:   "Zone 1",
		RangeFrom:    from,
		RangeTo:      to,
		RowCount:     3,
		Metadata:     metadata,
		IP:           "10.0.0.1",
		UserAgent:    "curl",
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRepositoryLogSignInUsesCustomTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dashboard_audit")).
		WithArgs(sqlmock.AnyArg(), "alice@example.com", ActionSignIn, "jti-1", "", "",
			sql.NullTime{}, sql.NullTime{}, 0,
			nil, "", "", "", sqlmock.AnyArg()).
		WillReturnError(errors.New("table missing"))

	repo := NewRepository(db, WithTable("dashboard_audit"))
	err = repo.Log(context.Background(), Entry{Actor: "alice@example.com", Action: ActionSignIn, SessionID: "jti-1"})
	if err == nil || !regexp.MustCompile(`audit repo: insert auth.sign_in`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped insert error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRepositoryRejects(t *testing.T) {
	var repo *Repository
	if err := repo.Log(context.Background(), Entry{Action: ActionExport}); err == nil {
		t.Fatalf("expected error for nil repository")
	}
	if NewRepository(nil) != nil {
		t.Fatalf("expected nil repository for nil db")
	}

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	if err := NewRepository(db).Log(context.Background(), Entry{Actor: "alice"}); err == nil {
		t.Fatalf("expected error for empty action")
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{name: "remote addr", remote: "192.0.2.1:1234", want: "192.0.2.1"},
		{name: "real ip", remote: "192.0.2.1:1234", headers: map[string]string{"X-Real-IP": "198.51.100.2"}, want: "198.51.100.2"},
		{name: "forwarded first hop", remote: "192.0.2.1:1234", headers: map[string]string{
			"X-Real-IP":       "198.51.100.2",
			"X-Forwarded-For": "203.0.113.5, 10.0.0.1",
		}, want: "203.0.113.5"},
		{name: "forwarded skips placeholders", remote: "192.0.2.1:1234", headers: map[string]string{
			"X-Forwarded-For": "unknown, 203.0.113.9:443",
		}, want: "203.0.113.9"},
		{name: "ipv6 peer", remote: "[2001:db8::1]:8080", want: "2001:db8::1"},
		{name: "unparseable peer", remote: "pipe", want: "pipe"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = tc.remote
		for k, v := range tc.headers {
			req.Header.Set(k, v)
		}
		if got := ClientIP(req); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}
