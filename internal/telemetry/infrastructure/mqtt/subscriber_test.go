package mqtt

import (
	"context"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

const testBrokerAddr = "127.0.0.1:18843"

func startBroker(t *testing.T) *mochi.Server {
	t.Helper()
	server := mochi.New(&mochi.Options{InlineClient: true})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("add hook: %v", err)
	}
	if err := server.AddListener(listeners.NewTCP(listeners.Config{ID: "t1", Address: testBrokerAddr})); err != nil {
		t.Fatalf("add listener: %v", err)
	}
	if err := server.Serve(); err != nil {
		t.Fatalf("serve: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func TestSubscriberReceivesPayload(t *testing.T) {
	broker := startBroker(t)
	payload := []byte(`{"type":"INSERT","record":{"id":1,"device_id":"a","created_at":"2025-01-01T00:00:00Z"}}`)
	if err := broker.Publish(defaultTopic, payload, true, 1); err != nil {
		t.Fatalf("publish retained: %v", err)
	}

	sub, err := NewSubscriber(testBrokerAddr, nil, WithClientID("test-sub"), WithReconnectDelay(50*time.Millisecond))
	if err != nil {
		t.Fatalf("new subscriber: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan []byte, 1)
	done := make(chan error, 1)
	go func() {
		done <- sub.Run(ctx, func(p []byte) {
			select {
			case received <- p:
			default:
			}
		})
	}()

	select {
	case got := <-received:
		if string(got) != string(payload) {
			t.Fatalf("unexpected payload %s", got)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for payload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestNewSubscriberValidates(t *testing.T) {
	if _, err := NewSubscriber("", nil); err == nil {
		t.Fatalf("expected error for empty address")
	}
	sub, err := NewSubscriber("localhost:1883", nil, WithTopic("x/#"), WithQoS(0), WithQoS(2))
	if err != nil {
		t.Fatalf("new subscriber: %v", err)
	}
	if sub.topic != "x/#" || sub.qos != 0 {
		t.Fatalf("options not applied: topic=%s qos=%d", sub.topic, sub.qos)
	}
}
