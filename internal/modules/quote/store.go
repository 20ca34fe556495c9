// README: Quote store backed by Redis; quotes expire with their key TTL.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fleetfare/internal/types"
)

const quoteKeyPrefix = "fare:quote:%s"

type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redis *redis.Client) *RedisStore {
	return &RedisStore{redis: redis}
}

func (s *RedisStore) Save(ctx context.Context, q Quote, ttl time.Duration) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	return s.redis.Set(ctx, quoteKey(q.ID), payload, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, id types.ID) (Quote, error) {
	raw, err := s.redis.Get(ctx, quoteKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Quote{}, ErrQuoteNotFound
	}
	if err != nil {
		return Quote{}, err
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return Quote{}, fmt.Errorf("decode quote %s: %w", id, err)
	}
	return q, nil
}

// Take reads and removes a quote in one GETDEL, so only one caller can
// claim it.
func (s *RedisStore) Take(ctx context.Context, id types.ID) (Quote, error) {
	raw, err := s.redis.GetDel(ctx, quoteKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Quote{}, ErrQuoteNotFound
	}
	if err != nil {
		return Quote{}, err
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return Quote{}, fmt.Errorf("decode quote %s: %w", id, err)
	}
	return q, nil
}

func quoteKey(id types.ID) string {
	return fmt.Sprintf(quoteKeyPrefix, string(id))
}
