package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"soilwatch/internal/audit"
)

var testSecret = []byte("test-secret")

type memoryUsers struct {
	users map[string]*User
	err   error
}

func (m *memoryUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.users[strings.ToLower(email)], nil
}

type recordingAudit struct {
	actions []string
}

func (r *recordingAudit) Log(ctx context.Context, entry audit.Entry) error {
	r.actions = append(r.actions, entry.Action)
	return nil
}

func newTestGate(t *testing.T, opts ...GateOption) *Gate {
	t.Helper()
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := &memoryUsers{users: map[string]*User{
		"alice@example.com": {ID: "user-1", Email: "alice@example.com", PasswordHash: hash},
	}}
	gate, err := NewGate(testSecret, users, NewMemoryRevocationStore(), opts...)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	return gate
}

func mustSignIn(t *testing.T, gate *Gate) (string, *Claims) {
	t.Helper()
	signed, err := gate.SignIn(context.Background(), "alice@example.com", "correct horse")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	return signed.Token, signed.Claims
}

func TestGateSignIn(t *testing.T) {
	recorder := &recordingAudit{}
	gate := newTestGate(t, WithTokenTTL(time.Hour), WithGateAudit(recorder))
	token, claims := mustSignIn(t, gate)

	if claims.Subject != "user-1" || claims.Email != "alice@example.com" || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if ttl := time.Until(claims.Expiry()); ttl <= 59*time.Minute || ttl > time.Hour {
		t.Fatalf("unexpected ttl %s", ttl)
	}
	checked, err := gate.Check(context.Background(), token)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if checked.ID != claims.ID {
		t.Fatalf("jti mismatch")
	}
	if len(recorder.actions) != 1 || recorder.actions[0] != audit.ActionSignIn {
		t.Fatalf("expected sign-in audit, got %v", recorder.actions)
	}
}

func TestGateCheckRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	gate := newTestGate(t, WithTokenTTL(time.Hour), WithGateClock(func() time.Time { return issuedAt }))
	token, claims := mustSignIn(t, gate)

	if !claims.Expiry().Equal(issuedAt.Add(time.Hour).Truncate(time.Second)) {
		t.Fatalf("expiry should follow the gate clock, got %s", claims.Expiry())
	}
	if _, err := gate.Check(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestGateSignInRejects(t *testing.T) {
	gate := newTestGate(t)
	cases := []struct{ email, password string }{
		{"alice@example.com", "wrong"},
		{"bob@example.com", "correct horse"},
		{"", "correct horse"},
		{"alice@example.com", ""},
	}
	for _, tc := range cases {
		if _, err := gate.SignIn(context.Background(), tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%q/%q: expected ErrInvalidCredentials, got %v", tc.email, tc.password, err)
		}
	}

	failing, _ := NewGate(testSecret, &memoryUsers{err: errors.New("db down")}, NewMemoryRevocationStore())
	if _, err := failing.SignIn(context.Background(), "alice@example.com", "x"); err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestGateSignOutEndsWatchers(t *testing.T) {
	gate := newTestGate(t)
	token, claims := mustSignIn(t, gate)

	first, stopFirst := gate.Watch(claims.ID)
	defer stopFirst()
	other, stopOther := gate.Watch("another-session")
	defer stopOther()

	if err := gate.SignOut(context.Background(), claims); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatalf("watcher not notified")
	}
	select {
	case <-other:
		t.Fatalf("unrelated session notified")
	default:
	}
	if _, err := gate.Check(context.Background(), token); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
	if err := gate.SignOut(context.Background(), nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for nil claims, got %v", err)
	}
}

func TestGateWatchStopReleases(t *testing.T) {
	gate := newTestGate(t)
	_, stop := gate.Watch("s1")
	stop()
	gate.mu.Lock()
	defer gate.mu.Unlock()
	if len(gate.watchers) != 0 {
		t.Fatalf("watch not released")
	}
}

func TestParseJWTRejects(t *testing.T) {
	if _, err := ParseJWT("", testSecret); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token: %v", err)
	}
	token, _, _ := IssueJWT([]byte("other"), "user-1", "a@b.c", time.Hour, time.Now())
	if _, err := ParseJWT(token, testSecret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: %v", err)
	}

	noJTI := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, _ := noJTI.SignedString(testSecret)
	if _, err := ParseJWT(signed, testSecret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("missing jti: %v", err)
	}

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ID: "j", Subject: "user-1"},
	})
	signed, _ = noExp.SignedString(testSecret)
	if _, err := ParseJWT(signed, testSecret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("missing exp: %v", err)
	}
}
