package slotcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisKey is where RedisStore keeps the listing.
const DefaultRedisKey = "turnera:slots:next-available"

// RedisStore keeps the cell in Redis so every gateway replica serves and
// invalidates the same listing.
type RedisStore struct {
	client redis.Cmdable
	key    string
	// expiry set on the key; freshness is still decided from PopulatedAt
	keyTTL time.Duration
}

// NewRedisStore returns a store on client. keyTTL bounds how long Redis
// keeps the key around; zero means no expiry.
func NewRedisStore(client redis.Cmdable, key string, keyTTL time.Duration) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, keyTTL: keyTTL}
}

func (s *RedisStore) Load(ctx context.Context) (Entry, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, nil
	}
	if err != nil {
		return Entry{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("decoding %s: %w", s.key, err)
	}
	return e, nil
}

func (s *RedisStore) Save(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, s.keyTTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", s.key, err)
	}
	return nil
}
