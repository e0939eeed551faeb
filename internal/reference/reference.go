// Package reference turns objects into opaque handles and back. The central
// API stores handles in its path tree rather than the objects themselves,
// so that the backing store can be swapped without touching callers.
package reference

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zjrosen/turbo/internal/cachemanager"
	"github.com/zjrosen/turbo/internal/log"
)

// ErrUnknownReference is returned when a handle does not resolve.
var ErrUnknownReference = errors.New("unknown reference")

// Store converts data into a reference and back.
type Store interface {
	GenerateReference(ctx context.Context, data any) (any, error)
	DataFromReference(ctx context.Context, ref any) (any, error)
}

// Identity uses the object itself as its reference.
type Identity struct{}

func (Identity) GenerateReference(_ context.Context, data any) (any, error) {
	return data, nil
}

func (Identity) DataFromReference(_ context.Context, ref any) (any, error) {
	return ref, nil
}

// Ref is the handle issued by ObjectStore.
type Ref string

func (r Ref) String() string {
	return string(r)
}

// ObjectStore keeps objects in an in-process cache and hands out uuid refs.
type ObjectStore struct {
	cache cachemanager.CacheManager[Ref, any]
}

// NewObjectStore creates an ObjectStore whose entries never expire.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		cache: cachemanager.NewInMemoryCacheManager[Ref, any]("objects", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
	}
}

func (s *ObjectStore) GenerateReference(ctx context.Context, data any) (any, error) {
	ref := Ref(uuid.New().String())
	s.cache.Set(ctx, ref, data, cachemanager.NoExpiration)
	log.Debug(log.CatCache, "stored object", "ref", ref, "type", fmt.Sprintf("%T", data))
	return ref, nil
}

func (s *ObjectStore) DataFromReference(ctx context.Context, ref any) (any, error) {
	r, ok := ref.(Ref)
	if !ok {
		return nil, fmt.Errorf("%w: %v (%T)", ErrUnknownReference, ref, ref)
	}
	data, ok := s.cache.Get(ctx, r)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReference, r)
	}
	return data, nil
}

// Release forgets the objects behind refs.
func (s *ObjectStore) Release(ctx context.Context, refs ...Ref) error {
	return s.cache.Delete(ctx, refs...)
}
