package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"soilwatch/internal/audit"
	"soilwatch/internal/observability/logging"
	"soilwatch/internal/observability/metrics"
)

const defaultTokenTTL = 12 * time.Hour

// SignedIn is the result of a successful sign-in.
type SignedIn struct {
	Token  string
	Claims *Claims
}

// Gate authenticates users and tracks sign-out of their sessions.
type Gate struct {
	secret  []byte
	ttl     time.Duration
	users   UserStore
	revoked RevocationStore
	audit   audit.Logger
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

// GateOption configures the gate.
type GateOption func(*Gate)

// WithTokenTTL sets the session token lifetime.
func WithTokenTTL(ttl time.Duration) GateOption {
	return func(g *Gate) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithGateAudit records sign-in and sign-out.
func WithGateAudit(logger audit.Logger) GateOption {
	return func(g *Gate) {
		g.audit = logger
	}
}

// WithGateLogger sets the logger.
func WithGateLogger(logger *zap.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logging.OrNop(logger)
	}
}

// WithGateClock overrides the time source.
func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate constructs a gate.
func NewGate(secret []byte, users UserStore, revoked RevocationStore, opts ...GateOption) (*Gate, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth gate: empty secret")
	}
	if users == nil {
		return nil, errors.New("auth gate: nil user store")
	}
	if revoked == nil {
		return nil, errors.New("auth gate: nil revocation store")
	}
	g := &Gate{
		secret:   secret,
		ttl:      defaultTokenTTL,
		users:    users,
		revoked:  revoked,
		logger:   zap.NewNop(),
		now:      time.Now,
		watchers: make(map[string]map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// SignIn checks the credentials and issues a session token. Any mismatch
// returns ErrInvalidCredentials.
func (g *Gate) SignIn(ctx context.Context, email, password string) (*SignedIn, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		metrics.IncSignIn("rejected")
		return nil, ErrInvalidCredentials
	}
	user, err := g.users.FindByEmail(ctx, email)
	if err != nil {
		metrics.IncSignIn(metrics.ResultError)
		return nil, err
	}
	if user == nil || !checkPassword(user.PasswordHash, password) {
		metrics.IncSignIn("rejected")
		g.logger.Info("sign-in rejected", zap.String("email", email))
		return nil, ErrInvalidCredentials
	}
	token, claims, err := IssueJWT(g.secret, user.ID, user.Email, g.ttl, g.now())
	if err != nil {
		metrics.IncSignIn(metrics.ResultError)
		return nil, err
	}
	metrics.IncSignIn(metrics.ResultSuccess)
	g.logAudit(ctx, audit.ActionSignIn, claims)
	return &SignedIn{Token: token, Claims: claims}, nil
}

// Check validates a token and rejects signed-out sessions.
func (g *Gate) Check(ctx context.Context, token string) (*Claims, error) {
	claims, err := ParseJWT(token, g.secret)
	if err != nil {
		return nil, err
	}
	revoked, err := g.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}

// SignOut revokes the session and ends its live streams.
func (g *Gate) SignOut(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return ErrUnauthorized
	}
	ttl := time.Until(claims.Expiry())
	if err := g.revoked.Revoke(ctx, claims.ID, ttl); err != nil {
		return err
	}
	g.notify(claims.ID)
	g.logAudit(ctx, audit.ActionSignOut, claims)
	return nil
}

// Watch returns a channel closed when the session signs out. stop releases
// the watch.
func (g *Gate) Watch(sessionID string) (<-chan struct{}, func()) {
	ch := make(chan struct{})
	g.mu.Lock()
	set := g.watchers[sessionID]
	if set == nil {
		set = make(map[chan struct{}]struct{})
		g.watchers[sessionID] = set
	}
	set[ch] = struct{}{}
	g.mu.Unlock()

	stop := func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if set, ok := g.watchers[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(g.watchers, sessionID)
			}
		}
	}
	return ch, stop
}

// Run relays revocations from other instances until ctx is done. It
// returns immediately when the store has no feed.
func (g *Gate) Run(ctx context.Context) error {
	feed, ok := g.revoked.(RevocationFeed)
	if !ok {
		return nil
	}
	return feed.Listen(ctx, g.notify)
}

func (g *Gate) notify(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for ch := range g.watchers[sessionID] {
		close(ch)
	}
	delete(g.watchers, sessionID)
}

func (g *Gate) logAudit(ctx context.Context, action string, claims *Claims) {
	if g.audit == nil || claims == nil {
		return
	}
	metadata, _ := json.Marshal(map[string]any{"subject": claims.Subject})
	entry := audit.Entry{
		Actor:     claims.Email,
		Action:    action,
		SessionID: claims.ID,
		Metadata:  metadata,
	}
	if err := g.audit.Log(ctx, entry); err != nil {
		g.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
