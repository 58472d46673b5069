package pgnotify

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"soilwatch/internal/observability/logging"
)

// DefaultChannel is the channel the readings_notify trigger installed by the
// migrations notifies on.
const DefaultChannel = "readings_changes"

const defaultReconnectDelay = 5 * time.Second

// Listener receives change payloads through Postgres LISTEN/NOTIFY on a
// dedicated connection. A dropped connection is re-established after a fixed
// delay; notifications sent while disconnected are lost.
type Listener struct {
	dsn            string
	channel        string
	reconnectDelay time.Duration
	logger         *zap.Logger
}

// Option configures the listener.
type Option func(*Listener)

// WithChannel overrides the notification channel name.
func WithChannel(channel string) Option {
	return func(l *Listener) {
		if channel != "" {
			l.channel = channel
		}
	}
}

// WithReconnectDelay overrides the delay between reconnect attempts.
func WithReconnectDelay(delay time.Duration) Option {
	return func(l *Listener) {
		if delay > 0 {
			l.reconnectDelay = delay
		}
	}
}

// NewListener constructs a listener for dsn.
func NewListener(dsn string, logger *zap.Logger, opts ...Option) (*Listener, error) {
	if dsn == "" {
		return nil, errors.New("pgnotify: empty dsn")
	}
	l := &Listener{
		dsn:            dsn,
		channel:        DefaultChannel,
		reconnectDelay: defaultReconnectDelay,
		logger:         logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.channel != DefaultChannel {
		l.logger.Warn("notify channel differs from the migration default; the readings_notify trigger must be recreated with this channel or only polling will refresh sessions",
			zap.String("channel", l.channel),
			zap.String("default", DefaultChannel))
	}
	return l, nil
}

// Run listens until ctx is cancelled.
func (l *Listener) Run(ctx context.Context, emit func(payload []byte)) error {
	for {
		err := l.listen(ctx, emit)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("change listener disconnected", zap.String("channel", l.channel), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context, emit func(payload []byte)) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return err
	}
	l.logger.Info("change listener connected", zap.String("channel", l.channel))

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		emit([]byte(notification.Payload))
	}
}
