package cachemanager

import (
	"context"
	"time"
)

// ReadThroughCache answers lookups from a CacheManager and falls back to a
// loader on a miss, keeping whatever the loader returns. A bypassing cache
// calls the loader every time and stores nothing.
type ReadThroughCache[K comparable, V any, I any] struct {
	store  CacheManager[K, V]
	load   func(ctx context.Context, input I) (V, error)
	bypass bool
}

func NewReadThroughCache[K comparable, V any, I any](
	store CacheManager[K, V],
	load func(ctx context.Context, input I) (V, error),
	bypass bool,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{store: store, load: load, bypass: bypass}
}

// Get returns the entry for key, loading it from input when absent.
func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	return r.lookup(ctx, key, input, ttl, r.store.Get)
}

// GetWithRefresh is Get where a hit also restarts the entry's ttl.
func (r *ReadThroughCache[K, V, I]) GetWithRefresh(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	return r.lookup(ctx, key, input, ttl, func(ctx context.Context, key K) (V, bool) {
		return r.store.GetWithRefresh(ctx, key, ttl)
	})
}

func (r *ReadThroughCache[K, V, I]) lookup(
	ctx context.Context,
	key K,
	input I,
	ttl time.Duration,
	hit func(context.Context, K) (V, bool),
) (V, error) {
	if r.bypass {
		return r.load(ctx, input)
	}
	if v, ok := hit(ctx, key); ok {
		return v, nil
	}
	v, err := r.load(ctx, input)
	if err != nil {
		return v, err
	}
	r.store.Set(ctx, key, v, ttl)
	return v, nil
}

// Prime stores value under key without calling the loader.
func (r *ReadThroughCache[K, V, I]) Prime(ctx context.Context, key K, value V, ttl time.Duration) {
	if r.bypass {
		return
	}
	r.store.Set(ctx, key, value, ttl)
}

// Invalidate drops every entry whose key starts with prefix.
func (r *ReadThroughCache[K, V, I]) Invalidate(ctx context.Context, prefix K) int {
	return r.store.DeletePrefix(ctx, prefix)
}
