// Package session resolves browser session cookies to user identities stored in Redis.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

type Identity struct {
	UserID string `json:"userID"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

type Store interface {
	Get(ctx context.Context, sessionID string) (*Identity, error)
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Identity, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	if id.UserID == "" {
		return nil, ErrSessionNotFound
	}
	return &id, nil
}

// Create stores identity under a fresh random session id.
func (s *RedisStore) Create(ctx context.Context, identity Identity) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	sessionID := hex.EncodeToString(buf)

	data, err := json.Marshal(identity)
	if err != nil {
		return "", fmt.Errorf("marshal session failed: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sessionID), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set failed: %w", err)
	}
	return sessionID, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// IDFromCookie extracts the session id from a cookie value. Signed values of
// the form "s:<id>.<signature>" (URL-encoded or not) yield <id>.
func IDFromCookie(value string) string {
	if unescaped, err := url.QueryUnescape(value); err == nil {
		value = unescaped
	}
	if rest, ok := strings.CutPrefix(value, "s:"); ok {
		if i := strings.LastIndex(rest, "."); i > 0 {
			return rest[:i]
		}
		return rest
	}
	return value
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

var _ Store = (*RedisStore)(nil)
