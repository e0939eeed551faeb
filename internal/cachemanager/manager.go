package cachemanager

import (
	"context"
	"time"
)

// CacheManager stores values of type V under comparable keys, each with its
// own expiry.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	// GetMultiple reports false when none of keys is present.
	GetMultiple(ctx context.Context, keys []K) (map[K]V, bool)
	// GetWithRefresh is Get that also pushes the expiry out to ttl.
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	// DeletePrefix removes entries whose key begins with prefix and
	// returns how many went.
	DeletePrefix(ctx context.Context, prefix K) int
	Flush(ctx context.Context) error
}
