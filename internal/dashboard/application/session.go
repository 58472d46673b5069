package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	dashboard "soilwatch/internal/dashboard/domain"
	"soilwatch/internal/observability/metrics"
	telemetry "soilwatch/internal/telemetry/domain"
)

// Update is one state change of a live session. Err is set when the
// refresh that produced it failed; Devices then holds the prior state.
type Update struct {
	Devices []dashboard.DeviceLatestView `json:"devices"`
	Err     error                        `json:"-"`
	At      time.Time                    `json:"at"`
}

// Session is one authenticated viewer's live dashboard.
type Session struct {
	service    *Service
	identity   Identity
	reconciler *dashboard.Reconciler
}

// Identity returns the session owner.
func (s *Session) Identity() Identity {
	return s.identity
}

// Snapshot returns the current views.
func (s *Session) Snapshot() []dashboard.DeviceLatestView {
	return s.reconciler.Snapshot(s.service.now())
}

// Run drives the session until ctx is done, the sign-in is revoked or the
// token expires. It holds one change subscription for its whole lifetime
// and releases it on return. Change events are applied one at a time; the
// poll ticker refreshes the full state to cover missed events.
func (s *Session) Run(ctx context.Context, updates chan<- Update) error {
	svc := s.service
	sub := svc.feed.Subscribe()
	defer sub.Close()

	metrics.SessionOpened()
	defer metrics.SessionClosed()

	var revoked <-chan struct{}
	if svc.watcher != nil && s.identity.SessionID != "" {
		ch, stop := svc.watcher.Watch(s.identity.SessionID)
		defer stop()
		revoked = ch
	}

	var expired <-chan time.Time
	if !s.identity.ExpiresAt.IsZero() {
		timer := time.NewTimer(time.Until(s.identity.ExpiresAt))
		defer timer.Stop()
		expired = timer.C
	}

	logger := svc.logger.With(zap.String("subject", s.identity.Subject), zap.String("subscription", sub.ID))
	logger.Info("live session started")
	defer logger.Info("live session ended")

	initialized := false
	refresh := func() bool {
		err := svc.refresh(ctx, s.reconciler, !initialized)
		if err == nil {
			initialized = true
		}
		return s.emit(ctx, updates, err)
	}
	if !refresh() {
		return nil
	}

	ticker := time.NewTicker(svc.cfg.PollInterval)
	defer ticker.Stop()

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-revoked:
			return ErrSessionRevoked
		case <-expired:
			return ErrSessionExpired
		case <-ticker.C:
			if !refresh() {
				return nil
			}
		case event, ok := <-events:
			if !ok {
				logger.Warn("change feed closed; continuing on polling")
				events = nil
				continue
			}
			if s.apply(event) == dashboard.OutcomeApplied {
				if !s.emit(ctx, updates, nil) {
					return nil
				}
			}
		}
	}
}

func (s *Session) apply(event telemetry.ChangeEvent) dashboard.Outcome {
	outcome := s.reconciler.Apply(event)
	metrics.IncChangeEvent(string(event.Kind), string(outcome))
	if outcome == dashboard.OutcomeMalformed {
		s.service.logger.Warn("change event dropped", zap.String("kind", string(event.Kind)))
	}
	return outcome
}

func (s *Session) emit(ctx context.Context, updates chan<- Update, err error) bool {
	update := Update{Devices: s.Snapshot(), Err: err, At: s.service.now()}
	select {
	case updates <- update:
		return true
	case <-ctx.Done():
		return false
	}
}
