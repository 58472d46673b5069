package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"soilwatch/internal/observability/logging"
)

const (
	defaultTopic          = "soilwatch/readings/changes"
	defaultKeepAlive      = 30
	defaultReconnectDelay = 5 * time.Second
)

// Subscriber receives change payloads from an MQTT topic filter, one JSON
// change event per message.
type Subscriber struct {
	addr           string
	topic          string
	clientID       string
	qos            byte
	keepAlive      uint16
	reconnectDelay time.Duration
	logger         *zap.Logger
}

// Option configures the subscriber.
type Option func(*Subscriber)

// WithTopic overrides the topic filter.
func WithTopic(topic string) Option {
	return func(s *Subscriber) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// WithClientID overrides the generated client id.
func WithClientID(clientID string) Option {
	return func(s *Subscriber) {
		if clientID != "" {
			s.clientID = clientID
		}
	}
}

// WithQoS sets the subscription QoS (0 or 1).
func WithQoS(qos byte) Option {
	return func(s *Subscriber) {
		if qos <= 1 {
			s.qos = qos
		}
	}
}

// WithReconnectDelay overrides the delay between reconnect attempts.
func WithReconnectDelay(delay time.Duration) Option {
	return func(s *Subscriber) {
		if delay > 0 {
			s.reconnectDelay = delay
		}
	}
}

// NewSubscriber constructs a subscriber for a broker at addr (host:port).
func NewSubscriber(addr string, logger *zap.Logger, opts ...Option) (*Subscriber, error) {
	if addr == "" {
		return nil, errors.New("mqtt subscriber: empty broker address")
	}
	s := &Subscriber{
		addr:           addr,
		topic:          defaultTopic,
		clientID:       "soilwatch-" + uuid.NewString(),
		qos:            1,
		keepAlive:      defaultKeepAlive,
		reconnectDelay: defaultReconnectDelay,
		logger:         logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run subscribes until ctx is cancelled, reconnecting after failures.
func (s *Subscriber) Run(ctx context.Context, emit func(payload []byte)) error {
	for {
		err := s.session(ctx, emit)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("mqtt change subscriber disconnected", zap.String("broker", s.addr), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Subscriber) session(ctx context.Context, emit func(payload []byte)) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}

	lost := make(chan error, 1)
	signal := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: s.clientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(received paho.PublishReceived) (bool, error) {
				emit(received.Packet.Payload)
				return true, nil
			},
		},
		OnClientError: func(err error) {
			signal(err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			signal(fmt.Errorf("mqtt subscriber: server disconnect reason %d", d.ReasonCode))
		},
	})

	connack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   s.clientID,
		KeepAlive:  s.keepAlive,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return err
	}
	if connack.ReasonCode != 0 {
		_ = conn.Close()
		return fmt.Errorf("mqtt subscriber: connect refused reason %d", connack.ReasonCode)
	}

	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: s.topic, QoS: s.qos}},
	}); err != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return err
	}
	s.logger.Info("mqtt change subscriber connected", zap.String("broker", s.addr), zap.String("topic", s.topic))

	select {
	case <-ctx.Done():
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return nil
	case err := <-lost:
		_ = conn.Close()
		return err
	}
}
