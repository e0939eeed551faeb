package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/turbo/internal/cachemanager"
	"github.com/zjrosen/turbo/internal/central"
	"github.com/zjrosen/turbo/internal/command"
	"github.com/zjrosen/turbo/internal/config"
	"github.com/zjrosen/turbo/internal/infrastructure/sqlite"
	"github.com/zjrosen/turbo/internal/jobs"
	"github.com/zjrosen/turbo/internal/log"
	"github.com/zjrosen/turbo/internal/reference"
	"github.com/zjrosen/turbo/internal/tracing"
	"github.com/zjrosen/turbo/internal/watcher"
)

// Parameter types every definitions file may name.
const (
	ParamsObject = "object" // map[string]any
	ParamsString = "string"
)

// runtime is the registry with the jobs API wired over it.
type runtime struct {
	central *central.API
	jobs    *jobs.API
	params  *jobs.ParamTypes
	db      *sqlite.DB
	tracer  *tracing.Provider
}

func defaultParamTypes() *jobs.ParamTypes {
	params := jobs.NewParamTypes()
	jobs.RegisterParameters[map[string]any](params, ParamsObject)
	jobs.RegisterParameters[string](params, ParamsString)
	return params
}

// newRuntime builds the registry described by cfg: central with its
// middleware, the jobs API with the default creator, the sqlite instance
// repository, the definitions file and the stored instances.
func newRuntime(ctx context.Context, cfg config.Config) (_ *runtime, err error) {
	rt := &runtime{params: defaultParamTypes()}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	rt.tracer, err = tracing.NewProvider(cfg.Tracing.Provider())
	if err != nil {
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}

	ttl := cfg.Cache.APITTL
	if ttl == 0 {
		ttl = cachemanager.NoExpiration
	}
	cleanup := cfg.Cache.CleanupInterval
	if cleanup == 0 {
		cleanup = cachemanager.DefaultCleanupInterval
	}
	opts := []central.Option{
		central.WithAPICache(cachemanager.NewInMemoryCacheManager[string, central.ExtraAPI]("extra_apis", ttl, cleanup), ttl),
		central.WithMiddleware(
			tracing.NewTracingMiddleware(tracing.TracingMiddlewareConfig{Tracer: rt.tracer.Tracer()}),
			central.NewLoggingMiddleware(),
		),
	}
	if cfg.Cache.ObjectStore {
		opts = append(opts, central.WithReferenceStore(reference.NewObjectStore()))
	}
	rt.central = central.New(opts...)

	jobOpts := []jobs.APIOption{jobs.WithParamTypes(rt.params)}
	if !cfg.Storage.Disabled {
		rt.db, err = sqlite.NewDB(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		jobOpts = append(jobOpts, jobs.WithInstanceRepository(rt.db.InstanceRepository()))
	}
	rt.jobs = jobs.NewAPI(rt.central, jobOpts...)
	if err := rt.central.PutExtraAPI(ctx, rt.jobs); err != nil {
		return nil, fmt.Errorf("registering jobs api: %w", err)
	}
	if err := rt.jobs.RegisterCreator(ctx, jobs.DefaultCreatorID, jobs.NewDefaultCreator(rt.central)); err != nil {
		return nil, fmt.Errorf("registering default creator: %w", err)
	}

	if cfg.Definitions.Path != "" {
		if err := watcher.NewDefinitionsReloader(cfg.Definitions.Path, rt.params, rt.central).Reload(ctx); err != nil {
			return nil, fmt.Errorf("loading definitions: %w", err)
		}
	}

	restored, err := rt.jobs.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("restoring instances: %w", err)
	}
	log.Info(log.CatJobs, "Registry ready", "instances", restored, "definitions", cfg.Definitions.Path)

	return rt, nil
}

// execute runs cmd on central, marking it as issued from the command line.
func (r *runtime) execute(ctx context.Context, cmd interface {
	command.Command
	SetSource(command.Source)
}) (any, error) {
	cmd.SetSource(command.SourceCLI)
	return r.central.Execute(ctx, cmd)
}

// Close releases the database and flushes traces.
func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	if r.tracer != nil {
		errs = append(errs, r.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
