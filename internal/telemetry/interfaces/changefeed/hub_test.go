package changefeed

import (
	"context"
	"testing"
	"time"

	"soilwatch/internal/telemetry/domain"
)

type scriptedSource struct {
	payloads []string
}

func (s scriptedSource) Run(ctx context.Context, emit func([]byte)) error {
	for _, payload := range s.payloads {
		emit([]byte(payload))
	}
	<-ctx.Done()
	return nil
}

func TestHub_FanOutInOrder(t *testing.T) {
	hub := NewHub(nil, nil)
	first := hub.Subscribe()
	second := hub.Subscribe()
	defer first.Close()
	defer second.Close()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		hub.Publish(telemetry.ChangeEvent{
			Kind:    telemetry.ChangeInsert,
			Reading: telemetry.Reading{ID: int64(i), DeviceID: "a", CreatedAt: base.Add(time.Duration(i) * time.Second)},
		})
	}

	for _, sub := range []*Subscription{first, second} {
		for i := 0; i < 3; i++ {
			event := <-sub.Events()
			if event.Reading.ID != int64(i) {
				t.Fatalf("expected event %d, got %d", i, event.Reading.ID)
			}
		}
	}
}

func TestHub_DropsWhenQueueFull(t *testing.T) {
	hub := NewHub(nil, nil, WithSubscriberBuffer(1))
	sub := hub.Subscribe()
	defer sub.Close()

	event := telemetry.ChangeEvent{Kind: telemetry.ChangeInsert, Reading: telemetry.Reading{DeviceID: "a", CreatedAt: time.Now()}}
	hub.Publish(event)
	hub.Publish(event)

	if got := len(sub.Events()); got != 1 {
		t.Fatalf("expected 1 queued event, got %d", got)
	}
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	hub := NewHub(nil, nil)
	sub := hub.Subscribe()
	sub.Close()
	sub.Close()
	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatalf("expected closed channel")
	}
}

func TestHub_RunDispatchesAndClosesOnShutdown(t *testing.T) {
	hub := NewHub(scriptedSource{payloads: []string{
		`garbage`,
		`{"type":"INSERT","record":{"id":1,"device_id":"a","created_at":"2025-01-01T00:00:00Z"}}`,
	}}, nil)
	sub := hub.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	select {
	case event := <-sub.Events():
		if event.Reading.ID != 1 {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatalf("expected subscription closed after shutdown")
	}
	late := hub.Subscribe()
	if _, ok := <-late.Events(); ok {
		t.Fatalf("expected late subscription to be closed")
	}
	sub.Close()
}
