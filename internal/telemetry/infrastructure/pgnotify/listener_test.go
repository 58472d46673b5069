package pgnotify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewListenerValidates(t *testing.T) {
	if _, err := NewListener("", nil); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
	l, err := NewListener("postgres://localhost/db", nil, WithChannel("custom"), WithReconnectDelay(time.Second))
	if err != nil {
		t.Fatalf("new listener: %v", err)
	}
	if l.channel != "custom" || l.reconnectDelay != time.Second {
		t.Fatalf("options not applied: %+v", l)
	}
}

func TestNewListenerWarnsOnCustomChannel(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	if _, err := NewListener("postgres://localhost/db", logger); err != nil {
		t.Fatalf("new listener: %v", err)
	}
	if logs.Len() != 0 {
		t.Fatalf("expected no warning for the default channel, got %d", logs.Len())
	}

	if _, err := NewListener("postgres://localhost/db", logger, WithChannel("custom")); err != nil {
		t.Fatalf("new listener: %v", err)
	}
	entries := logs.FilterField(zap.String("channel", "custom")).All()
	if len(entries) != 1 {
		t.Fatalf("expected one warning for a custom channel, got %d", len(entries))
	}
}

func TestListenerRunStopsOnCancel(t *testing.T) {
	l, err := NewListener("postgres://127.0.0.1:1/none?connect_timeout=1", nil, WithReconnectDelay(10*time.Millisecond))
	if err != nil {
		t.Fatalf("new listener: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := l.Run(ctx, func([]byte) {}); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestListenerReceivesNotify(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	l, err := NewListener(dsn, nil, WithChannel("soilwatch_test"))
	if err != nil {
		t.Fatalf("new listener: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	received := make(chan string, 1)
	go func() {
		_ = l.Run(ctx, func(payload []byte) {
			select {
			case received <- string(payload):
			default:
			}
		})
	}()

	sender, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sender.Close(context.Background())

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case payload := <-received:
			if payload != "ping" {
				t.Fatalf("unexpected payload %q", payload)
			}
			return
		case <-ticker.C:
			if _, err := sender.Exec(ctx, "SELECT pg_notify('soilwatch_test', 'ping')"); err != nil {
				t.Fatalf("notify: %v", err)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for notification")
		}
	}
}
