package countstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCountPrefix = "modbot/count/"

// Counters shared between bot instances through redis. Bucket keys expire once no period can read them.
type RedisCountStore struct {
	Client *redis.Client
}

var _ CountStore = (*RedisCountStore)(nil)

// The client is expected to be connected already; the process shares one client across stores.
func NewRedisCountStore(rdb *redis.Client) *RedisCountStore {
	return &RedisCountStore{Client: rdb}
}

func (s *RedisCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	p, ok := lookupPeriod(period)
	if !ok {
		return 0, nil
	}
	c, err := s.Client.Get(ctx, redisCountPrefix+p.key(name, val, time.Now())).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return c, err
}

func (s *RedisCountStore) Increment(ctx context.Context, name, val string) error {
	now := time.Now()
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range periods {
			key := redisCountPrefix + p.key(name, val, now)
			pipe.Incr(ctx, key)
			if p.retain > 0 {
				pipe.Expire(ctx, key, p.retain)
			}
		}
		return nil
	})
	return err
}
