package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type MemCacheStore struct {
	Data *expirable.LRU[string, float64]
}

var _ CacheStore = MemCacheStore{}

func NewMemCacheStore(capacity int, ttl time.Duration) MemCacheStore {
	return MemCacheStore{
		Data: expirable.NewLRU[string, float64](capacity, nil, ttl),
	}
}

func (s MemCacheStore) GetScore(ctx context.Context, digest string) (float64, bool, error) {
	v, ok := s.Data.Get(digest)
	return v, ok, nil
}

func (s MemCacheStore) SetScore(ctx context.Context, digest string, score float64) error {
	s.Data.Add(digest, score)
	return nil
}
