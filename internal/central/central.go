// Package central implements the central API: a façade over one path tree
// that stores object references, keeps a registry of pluggable extra APIs,
// and dispatches commands to them.
//
// Extra APIs are registered under ["__extra_apis", <id>, <sub path>...] for
// every sub path they serve, plus ["__extra_apis", <id>, "self"]. A command
// addressed to (id, "a/b") runs on whatever API is registered at
// ["__extra_apis", id, "a", "b"].
package central

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/zjrosen/turbo/internal/cachemanager"
	"github.com/zjrosen/turbo/internal/command"
	"github.com/zjrosen/turbo/internal/log"
	"github.com/zjrosen/turbo/internal/pathmap"
	"github.com/zjrosen/turbo/internal/pubsub"
	"github.com/zjrosen/turbo/internal/reference"
)

const (
	// ExtraAPIsRoot is the first segment of every extra API registration.
	ExtraAPIsRoot = "__extra_apis"
	// SelfPath addresses the API object itself inside its registration.
	SelfPath = "self"
)

// ExtraAPI is a pluggable command handler.
type ExtraAPI interface {
	// ID is the registration id commands address.
	ID() string
	// Paths lists the "/"-separated sub paths the API serves.
	Paths() []string
	// Execute runs a command addressed to one of Paths.
	Execute(ctx context.Context, cmd command.Command) (any, error)
}

// Change is the payload of events published on the event bus.
type Change struct {
	Path  string
	APIID string
}

// Option configures the API.
type Option func(*API)

// WithTree uses tree as the backing store.
func WithTree(tree *pathmap.Tree) Option {
	return func(a *API) {
		a.tree = tree
	}
}

// WithReferenceStore sets the reference indirection. Defaults to reference.Identity.
func WithReferenceStore(store reference.Store) Option {
	return func(a *API) {
		a.refs = store
	}
}

// WithEventBus publishes mutations on bus.
func WithEventBus(bus *pubsub.Broker[Change]) Option {
	return func(a *API) {
		a.bus = bus
	}
}

// WithMiddleware wraps Execute. The first middleware is the outermost.
func WithMiddleware(middlewares ...command.Middleware) Option {
	return func(a *API) {
		a.middlewares = append(a.middlewares, middlewares...)
	}
}

// WithAPICache replaces the reference to extra API cache. A zero ttl
// means entries never expire.
func WithAPICache(cache cachemanager.CacheManager[string, ExtraAPI], ttl time.Duration) Option {
	return func(a *API) {
		a.apiCache = cache
		a.apiTTL = ttl
	}
}

// API is the default central API. It is safe for concurrent use; the
// tree serializes access to itself.
type API struct {
	tree        *pathmap.Tree
	refs        reference.Store
	bus         *pubsub.Broker[Change]
	middlewares []command.Middleware
	apiCache    cachemanager.CacheManager[string, ExtraAPI]
	apiTTL      time.Duration

	apis    *cachemanager.ReadThroughCache[string, ExtraAPI, any]
	handler command.Handler
}

// New creates an API.
func New(opts ...Option) *API {
	a := &API{}
	for _, opt := range opts {
		opt(a)
	}

	if a.tree == nil {
		a.tree = pathmap.New()
	}
	if a.refs == nil {
		a.refs = reference.Identity{}
	}
	if a.apiCache == nil {
		a.apiCache = cachemanager.NewInMemoryCacheManager[string, ExtraAPI]("extra_apis", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval)
	}
	if a.apiTTL == 0 {
		a.apiTTL = cachemanager.NoExpiration
	}

	a.apis = cachemanager.NewReadThroughCache[string, ExtraAPI, any](a.apiCache, a.loadAPI, false)
	a.handler = command.ChainMiddleware(command.HandlerFunc(a.execute), a.middlewares...)

	return a
}

// Tree returns the backing tree.
func (a *API) Tree() *pathmap.Tree {
	return a.tree
}

// GenerateReference turns data into the handle stored in the tree.
func (a *API) GenerateReference(ctx context.Context, data any) (any, error) {
	return a.refs.GenerateReference(ctx, data)
}

// DataFromReference resolves a handle produced by GenerateReference.
func (a *API) DataFromReference(ctx context.Context, ref any) (any, error) {
	return a.refs.DataFromReference(ctx, ref)
}

// ObjectReference returns what is stored at ids. A node without a value
// but with children comes back as a directory lookup.
func (a *API) ObjectReference(ctx context.Context, ids pathmap.Path) (pathmap.Lookup, bool) {
	return a.tree.Get(ids)
}

// PutObjectReference stores ref at ids, replacing what was there.
func (a *API) PutObjectReference(ctx context.Context, ids pathmap.Path, ref any) {
	a.tree.Put(ids, ref)
	if isExtraAPIPath(ids) {
		_ = a.apiCache.Delete(ctx, ids.String())
	}
	log.Debug(log.CatCentral, "object stored", "path", ids)
	a.publish(pubsub.ResourcePut, Change{Path: ids.String()})
}

// PutObjectReferenceByPath is PutObjectReference for a path string split on
// the OS path separator.
func (a *API) PutObjectReferenceByPath(ctx context.Context, path string, ref any) pathmap.Path {
	ids := pathmap.ParsePath(path, string(os.PathSeparator))
	a.PutObjectReference(ctx, ids, ref)
	return ids
}

// DeleteObject removes the value at ids and prunes empty ancestors.
func (a *API) DeleteObject(ctx context.Context, ids pathmap.Path) bool {
	if !a.tree.Delete(ids) {
		return false
	}
	if isExtraAPIPath(ids) {
		_ = a.apiCache.Delete(ctx, ids.String())
	}
	log.Debug(log.CatCentral, "object deleted", "path", ids)
	a.publish(pubsub.ResourceDeleted, Change{Path: ids.String()})
	return true
}

// DeleteObjectTree removes everything at and below ids.
func (a *API) DeleteObjectTree(ctx context.Context, ids pathmap.Path) bool {
	if !a.tree.DeleteKey(ids) {
		return false
	}
	if len(ids) == 0 || isExtraAPIPath(ids) {
		_ = a.apiCache.Flush(ctx)
	}
	log.Debug(log.CatCentral, "object tree deleted", "path", ids)
	a.publish(pubsub.ResourceDeleted, Change{Path: ids.String()})
	return true
}

// ListObjects returns every stored resource matching q.
func (a *API) ListObjects(ctx context.Context, q pathmap.Query) []pathmap.Resource {
	return a.tree.Resources(q)
}

// ExtraAPIPath is where a command addressed to (apiID, apiPath) is looked up.
func ExtraAPIPath(apiID, apiPath string) pathmap.Path {
	return pathmap.P(ExtraAPIsRoot, apiID).Join(pathmap.ParsePath(apiPath, pathmap.Separator)...)
}

// PutExtraAPI registers api under every sub path it serves and under its
// self entry. A path and its sub paths all stay registered whatever order
// Paths lists them in. Replacing an existing registration, or dropping one
// that a new path passes through, logs a warning.
func (a *API) PutExtraAPI(ctx context.Context, api ExtraAPI) error {
	id := api.ID()
	if id == "" {
		return ErrInvalidAPI
	}

	// Deepest first: writing a value onto an existing branch keeps the
	// branch, while writing below a value drops it.
	paths := make([]pathmap.Path, 0, len(api.Paths())+1)
	for _, sub := range append(slices.Clone(api.Paths()), SelfPath) {
		paths = append(paths, ExtraAPIPath(id, sub))
	}
	slices.SortStableFunc(paths, func(x, y pathmap.Path) int {
		return len(y) - len(x)
	})

	for _, path := range paths {
		ref, err := a.refs.GenerateReference(ctx, api)
		if err != nil {
			return fmt.Errorf("generate reference for %s: %w", path, err)
		}
		if _, exists := a.tree.Value(path); exists {
			log.Warn(log.CatCentral, "extra api path already registered, overwriting", "api", id, "path", path)
		}
		for n := len(path) - 1; n > 2; n-- {
			if _, exists := a.tree.Value(path[:n]); exists {
				log.Warn(log.CatCentral, "extra api path registered below an existing registration, dropping it",
					"api", id, "path", path, "dropped", path[:n])
				_ = a.apiCache.Delete(ctx, path[:n].String())
			}
		}
		a.tree.Put(path, ref)
		a.apis.Prime(ctx, path.String(), api, a.apiTTL)
	}

	log.Info(log.CatCentral, "extra api registered", "api", id, "paths", len(paths))
	a.publish(pubsub.APIRegistered, Change{Path: pathmap.P(ExtraAPIsRoot, id).String(), APIID: id})
	return nil
}

// RemoveExtraAPI drops every registration of the API with id.
func (a *API) RemoveExtraAPI(ctx context.Context, id string) bool {
	root := pathmap.P(ExtraAPIsRoot, id)
	if !a.tree.DeleteKey(root) {
		return false
	}
	a.apis.Invalidate(ctx, root.String()+pathmap.Separator)

	log.Info(log.CatCentral, "extra api removed", "api", id)
	a.publish(pubsub.APIRemoved, Change{Path: root.String(), APIID: id})
	return true
}

// ExtraAPIByID resolves the API registered with id.
func (a *API) ExtraAPIByID(ctx context.Context, id string) (ExtraAPI, error) {
	path := pathmap.P(ExtraAPIsRoot, id, SelfPath)
	ref, ok := a.tree.Value(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAPINotFound, path)
	}
	return a.apis.Get(ctx, path.String(), ref, a.apiTTL)
}

// ExtraAPIIDs lists the ids of registered extra APIs in registration order.
func (a *API) ExtraAPIIDs(ctx context.Context) []string {
	var ids []string
	for _, p := range a.tree.Paths(pathmap.Query{Prefix: pathmap.P(ExtraAPIsRoot), Suffix: pathmap.Separator + SelfPath}) {
		if len(p) == 3 {
			ids = append(ids, p[1].String())
		}
	}
	return ids
}

// Execute runs cmd on the extra API registered at its path.
func (a *API) Execute(ctx context.Context, cmd command.Command) (any, error) {
	return a.handler.Handle(ctx, cmd)
}

func (a *API) execute(ctx context.Context, cmd command.Command) (any, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	path := ExtraAPIPath(cmd.APIIdentifier(), cmd.APIPath())
	ref, ok := a.tree.Value(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAPINotFound, path)
	}

	api, err := a.apis.Get(ctx, path.String(), ref, a.apiTTL)
	if err != nil {
		return nil, err
	}
	return api.Execute(ctx, cmd)
}

func (a *API) loadAPI(ctx context.Context, ref any) (ExtraAPI, error) {
	data, err := a.refs.DataFromReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	api, ok := data.(ExtraAPI)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotExtraAPI, data)
	}
	return api, nil
}

func (a *API) publish(t pubsub.EventType, c Change) {
	if a.bus != nil {
		a.bus.Publish(t, c)
	}
}

func isExtraAPIPath(p pathmap.Path) bool {
	return len(p) > 0 && p[0] == pathmap.Str(ExtraAPIsRoot)
}
