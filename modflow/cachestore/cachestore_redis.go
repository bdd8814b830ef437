package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

const redisScorePrefix = "modbot/score/"

// Scores shared through redis, fronted by a small in-process TinyLFU so hot images skip the network round-trip.
type RedisCacheStore struct {
	Data *cache.Cache
	TTL  time.Duration
}

var _ CacheStore = (*RedisCacheStore)(nil)

// localSize bounds the in-process tier; zero disables it.
func NewRedisCacheStore(rdb *redis.Client, ttl time.Duration, localSize int) *RedisCacheStore {
	opts := &cache.Options{Redis: rdb}
	if localSize > 0 {
		opts.LocalCache = cache.NewTinyLFU(localSize, ttl)
	}
	return &RedisCacheStore{
		Data: cache.New(opts),
		TTL:  ttl,
	}
}

func (s *RedisCacheStore) GetScore(ctx context.Context, digest string) (float64, bool, error) {
	var score float64
	switch err := s.Data.Get(ctx, redisScorePrefix+digest, &score); {
	case errors.Is(err, cache.ErrCacheMiss):
		return 0, false, nil
	case err != nil:
		return 0, false, err
	}
	return score, true, nil
}

func (s *RedisCacheStore) SetScore(ctx context.Context, digest string, score float64) error {
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisScorePrefix + digest,
		Value: score,
		TTL:   s.TTL,
	})
}
