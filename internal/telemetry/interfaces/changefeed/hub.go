package changefeed

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"soilwatch/internal/observability/logging"
	"soilwatch/internal/observability/metrics"
	"soilwatch/internal/telemetry/domain"
)

const defaultSubscriberBuffer = 64

// Source delivers raw change payloads until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, emit func(payload []byte)) error
}

// Hub fans out change events from one upstream source to many subscribers.
// Delivery is best effort: a full subscriber queue drops the event.
type Hub struct {
	source Source
	logger *zap.Logger
	buffer int

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// HubOption configures the hub.
type HubOption func(*Hub)

// WithSubscriberBuffer sets the per-subscriber queue length.
func WithSubscriberBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.buffer = size
		}
	}
}

// NewHub constructs a hub. A nil source yields a hub that only delivers
// events passed to Publish.
func NewHub(source Source, logger *zap.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		source: source,
		logger: logging.OrNop(logger),
		buffer: defaultSubscriberBuffer,
		subs:   make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run drives the upstream source until ctx is done, then closes every
// subscription.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()
	if h.source == nil {
		<-ctx.Done()
		return nil
	}
	return h.source.Run(ctx, h.Dispatch)
}

// Dispatch decodes a raw payload and publishes it. Malformed payloads are
// logged and dropped.
func (h *Hub) Dispatch(payload []byte) {
	event, err := Decode(payload)
	if err != nil {
		metrics.IncChangeEvent("unknown", "malformed")
		h.logger.Warn("change event dropped", zap.Error(err), zap.Int("bytes", len(payload)))
		return
	}
	h.Publish(event)
}

// Publish delivers event to every subscriber without blocking.
func (h *Hub) Publish(event telemetry.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- event:
		default:
			metrics.IncFeedDropped()
			h.logger.Debug("subscriber queue full", zap.String("subscription", sub.ID))
		}
	}
}

// Subscribe registers a new subscription. The caller must Close it.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		ID:  uuid.NewString(),
		ch:  make(chan telemetry.ChangeEvent, h.buffer),
		hub: h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return
	}
	delete(h.subs, sub)
	sub.closed = true
	close(sub.ch)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.closed = true
		close(sub.ch)
	}
}

// Subscription is one consumer's queue of change events. Events arrive in
// delivery order; the channel is closed by Close or hub shutdown.
type Subscription struct {
	ID string

	ch     chan telemetry.ChangeEvent
	hub    *Hub
	closed bool // guarded by hub.mu
}

// Events returns the event channel.
func (s *Subscription) Events() <-chan telemetry.ChangeEvent {
	return s.ch
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.unsubscribe(s)
}
