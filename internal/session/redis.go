package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the session in Redis, keyed per device, so a terminal
// restart does not force a re-login.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore creates a store namespaced under "session:<deviceID>".
func NewRedisStore(rdb *redis.Client, deviceID string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "session:" + deviceID}
}

func (s *RedisStore) tokenKey() string   { return s.prefix + ":token" }
func (s *RedisStore) profileKey() string { return s.prefix + ":profile" }

func (s *RedisStore) Token(ctx context.Context) (string, error) {
	val, err := s.rdb.Get(ctx, s.tokenKey()).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: read token: %w", err)
	}
	return val, nil
}

func (s *RedisStore) SetToken(ctx context.Context, token string) error {
	return s.rdb.Set(ctx, s.tokenKey(), token, 0).Err()
}

func (s *RedisStore) Profile(ctx context.Context) (*Profile, error) {
	val, err := s.rdb.Get(ctx, s.profileKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, fmt.Errorf("session: decode profile: %w", err)
	}
	return &p, nil
}

func (s *RedisStore) SetProfile(ctx context.Context, p *Profile) error {
	if p == nil {
		return s.rdb.Del(ctx, s.profileKey()).Err()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("session: encode profile: %w", err)
	}
	return s.rdb.Set(ctx, s.profileKey(), data, 0).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.tokenKey(), s.profileKey()).Err()
}

var _ Store = (*RedisStore)(nil)
