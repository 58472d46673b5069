package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	dashboard "soilwatch/internal/dashboard/domain"
	masterdata "soilwatch/internal/masterdata/domain"
	"soilwatch/internal/observability/logging"
	"soilwatch/internal/observability/metrics"
	telemetry "soilwatch/internal/telemetry/domain"
	"soilwatch/internal/telemetry/interfaces/changefeed"
)

// ChangeFeed hands out change event subscriptions.
type ChangeFeed interface {
	Subscribe() *changefeed.Subscription
}

// SessionWatcher signals sign-out of an authenticated session. The returned
// stop func releases the watch.
type SessionWatcher interface {
	Watch(sessionID string) (<-chan struct{}, func())
}

// Identity is the authenticated user a live session belongs to.
type Identity struct {
	Subject   string
	SessionID string
	ExpiresAt time.Time
}

// Service serves dashboard snapshots, history charts and live sessions.
type Service struct {
	devices  masterdata.DeviceDirectory
	readings telemetry.ReadingQuery
	feed     ChangeFeed
	watcher  SessionWatcher
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionWatcher ends live sessions when their sign-in is revoked.
func WithSessionWatcher(watcher SessionWatcher) Option {
	return func(s *Service) {
		s.watcher = watcher
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logging.OrNop(logger)
	}
}

// NewService constructs a dashboard service.
func NewService(devices masterdata.DeviceDirectory, readings telemetry.ReadingQuery, feed ChangeFeed, cfg Config, opts ...Option) (*Service, error) {
	if devices == nil {
		return nil, errors.New("dashboard service: nil device directory")
	}
	if readings == nil {
		return nil, errors.New("dashboard service: nil reading query")
	}
	if feed == nil {
		return nil, errors.New("dashboard service: nil change feed")
	}
	normalized, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	s := &Service{
		devices:  devices,
		readings: readings,
		feed:     feed,
		cfg:      normalized,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the normalized configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Overview loads devices and their latest readings once.
func (s *Service) Overview(ctx context.Context) ([]dashboard.DeviceLatestView, error) {
	rec := dashboard.NewReconciler(s.cfg.FreshnessThreshold)
	if err := s.refresh(ctx, rec, true); err != nil {
		return nil, err
	}
	return rec.Snapshot(s.now()), nil
}

// History returns bucketed averages for one device over the lookback window
// ending now.
func (s *Service) History(ctx context.Context, deviceID string) ([]dashboard.Bucket, error) {
	if deviceID == "" {
		return nil, ErrDeviceNotFound
	}
	device, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}
	to := s.now()
	from := to.Add(-s.cfg.HistoryLookback)
	readings, err := s.readings.ListHistory(ctx, deviceID, from, to)
	if err != nil {
		return nil, err
	}
	return dashboard.Aggregate(readings, s.cfg.Location(), s.cfg.BucketWidth), nil
}

// Open prepares a live session for an authenticated identity. Nothing is
// acquired until Run.
func (s *Service) Open(identity Identity) *Session {
	return &Session{
		service:    s,
		identity:   identity,
		reconciler: dashboard.NewReconciler(s.cfg.FreshnessThreshold),
	}
}

func (s *Service) refresh(ctx context.Context, rec *dashboard.Reconciler, initial bool) error {
	start := time.Now()
	err := s.loadInto(ctx, rec, initial)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		s.logger.Warn("dashboard refresh failed", zap.Error(err))
	}
	metrics.ObserveRefresh(result, time.Since(start))
	return err
}

func (s *Service) loadInto(ctx context.Context, rec *dashboard.Reconciler, initial bool) error {
	devices, err := s.devices.ListDevices(ctx)
	if err != nil {
		return err
	}
	var readings []telemetry.Reading
	if ids := masterdata.IDs(devices); len(ids) > 0 {
		readings, err = s.readings.ListRecent(ctx, ids, s.cfg.RecentPerDevice)
		if err != nil {
			return err
		}
	}
	if initial {
		return rec.Initialize(devices, readings)
	}
	return rec.Merge(devices, readings)
}
