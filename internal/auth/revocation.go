package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore remembers signed-out token ids until they would have
// expired anyway.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RevocationFeed delivers revocations made by other instances.
type RevocationFeed interface {
	Listen(ctx context.Context, fn func(jti string)) error
}

const (
	defaultRevocationPrefix  = "soilwatch:revoked:"
	defaultRevocationChannel = "soilwatch:signout"
)

// RedisRevocationStore keeps revocations in Redis and broadcasts them on a
// pub/sub channel so live sessions on every instance end.
type RedisRevocationStore struct {
	client    *redis.Client
	keyPrefix string
	channel   string
}

// NewRedisRevocationStore wraps an existing client.
func NewRedisRevocationStore(client *redis.Client) (*RedisRevocationStore, error) {
	if client == nil {
		return nil, errors.New("revocation store: nil redis client")
	}
	return &RedisRevocationStore{
		client:    client,
		keyPrefix: defaultRevocationPrefix,
		channel:   defaultRevocationChannel,
	}, nil
}

func (s *RedisRevocationStore) key(jti string) string {
	return s.keyPrefix + jti
}

// Revoke stores the jti with a TTL and publishes it.
func (s *RedisRevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.client.Set(ctx, s.key(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, jti).Err(); err != nil {
		return fmt.Errorf("publish revocation: %w", err)
	}
	return nil
}

// IsRevoked checks the jti key.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return exists > 0, nil
}

// Listen calls fn for every published revocation until ctx is done.
func (s *RedisRevocationStore) Listen(ctx context.Context, fn func(jti string)) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe revocations: %w", err)
	}
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			fn(msg.Payload)
		}
	}
}

var (
	_ RevocationStore = (*RedisRevocationStore)(nil)
	_ RevocationFeed  = (*RedisRevocationStore)(nil)
)

// MemoryRevocationStore keeps revocations in process. Suitable for a single
// instance only.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore constructs an empty store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{revoked: make(map[string]time.Time), now: time.Now}
}

// Revoke records the jti until now+ttl.
func (s *MemoryRevocationStore) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = s.now().Add(ttl)
	return nil
}

// IsRevoked reports whether the jti is revoked, pruning expired entries.
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.revoked[jti]
	if !ok {
		return false, nil
	}
	if s.now().After(until) {
		delete(s.revoked, jti)
		return false, nil
	}
	return true, nil
}

var _ RevocationStore = (*MemoryRevocationStore)(nil)
