// SPDX-License-Identifier: MIT

package roomsim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultSessionTTL is applied when no TTL is configured.
const DefaultSessionTTL = 12 * time.Hour

// ErrSessionNotFound is returned for unknown or expired session tokens.
var ErrSessionNotFound = errors.New("roomsim: session not found")

// SessionStore keeps member sessions in Redis. A session token maps to
// the member's user ID; expiry is delegated to Redis TTLs so an expired
// session and a fabricated one are indistinguishable on lookup.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// SessionConfig holds Redis connection configuration.
type SessionConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewSessionStore connects to Redis and verifies the connection.
func NewSessionStore(cfg SessionConfig, logger zerolog.Logger) (*SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis session store")

	return &SessionStore{client: client, ttl: ttl, logger: logger}, nil
}

func (s *SessionStore) Close() error {
	return s.client.Close()
}

func sessionKey(token string) string { return "sess:" + token }

// Create issues a new session token for the given user.
func (s *SessionStore) Create(ctx context.Context, user string) (string, error) {
	token := uuid.New().String()
	if err := s.client.Set(ctx, sessionKey(token), user, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("session create: %w", err)
	}
	return token, nil
}

// Lookup resolves a session token to its user ID. Unknown and expired
// tokens both yield ErrSessionNotFound.
func (s *SessionStore) Lookup(ctx context.Context, token string) (string, error) {
	user, err := s.client.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session lookup: %w", err)
	}
	return user, nil
}

// Revoke deletes a session. Revoking an unknown token is not an error.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("session revoke: %w", err)
	}
	return nil
}
