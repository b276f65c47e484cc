package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL applies when Save is called without a positive ttl.
const DefaultTTL = 30 * 24 * time.Hour

type sessionData struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	ExternalID  string    `json:"external_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// RedisStore keeps sessions in Redis, keyed by the SHA-256 of the token so
// raw tokens are never stored.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "session:",
	}
}

func (s *RedisStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + hex.EncodeToString(sum[:])
}

// Save stores the session for token.
func (s *RedisStore) Save(ctx context.Context, token string, user User, ttl time.Duration) error {
	if token == "" || user.ID == "" {
		return fmt.Errorf("token and user id are required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	data, err := json.Marshal(sessionData{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		ExternalID:  user.ExternalID,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Resolve returns the user behind token, or ErrNoSession.
func (s *RedisStore) Resolve(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNoSession
	}

	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return User{}, ErrNoSession
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup session: %w", err)
	}

	var data sessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return User{}, fmt.Errorf("unmarshal session: %w", err)
	}
	if data.UserID == "" {
		return User{}, ErrNoSession
	}

	return User{
		ID:          data.UserID,
		DisplayName: data.DisplayName,
		ExternalID:  data.ExternalID,
	}, nil
}

// Revoke deletes the session for token. Revoking an unknown token is a no-op.
func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
