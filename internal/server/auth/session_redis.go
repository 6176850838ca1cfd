package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "sess:"

// RedisSessionStore keeps sessions in Redis with a TTL, for deployments that
// want sessions to survive process restarts or be shared across instances.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore builds a Redis-backed session store.
func NewRedisSessionStore(addr, password string, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// Ping verifies the Redis connection is alive.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Create issues a new token and writes the marshaled user under it.
// Expiry is enforced by the key TTL, so resolution past expiry sees redis.Nil.
func (s *RedisSessionStore) Create(user SessionUser) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session user: %w", err)
	}

	ctx, cancel := opCtx()
	defer cancel()
	if err := s.client.Set(ctx, sessionKeyPrefix+token, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return token, nil
}

// Resolve returns the bound user iff the token still exists in Redis.
func (s *RedisSessionStore) Resolve(sid string) (SessionUser, bool) {
	ctx, cancel := opCtx()
	defer cancel()

	payload, err := s.client.Get(ctx, sessionKeyPrefix+sid).Bytes()
	if errors.Is(err, redis.Nil) {
		return SessionUser{}, false
	}
	if err != nil {
		slog.Error("redis session lookup failed", "error", err)
		return SessionUser{}, false
	}

	var user SessionUser
	if err := json.Unmarshal(payload, &user); err != nil {
		slog.Error("corrupt session payload", "sid", sid, "error", err)
		return SessionUser{}, false
	}
	return user, true
}

// Destroy removes a session. Removing an absent token is a no-op.
func (s *RedisSessionStore) Destroy(sid string) {
	ctx, cancel := opCtx()
	defer cancel()
	if err := s.client.Del(ctx, sessionKeyPrefix+sid).Err(); err != nil && !errors.Is(err, redis.Nil) {
		slog.Error("failed to destroy session", "error", err)
	}
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*time.Second)
}
