package cachestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

type CacheStore interface {
	// second return value is false on a cache miss
	GetScore(ctx context.Context, digest string) (float64, bool, error)
	SetScore(ctx context.Context, digest string, score float64) error
}

// Cache key for raw image bytes.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
