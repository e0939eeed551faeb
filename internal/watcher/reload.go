package watcher

import (
	"context"
	"fmt"

	"github.com/zjrosen/turbo/internal/jobs"
	"github.com/zjrosen/turbo/internal/log"
)

// DefinitionsReloader syncs the stored job definitions with a definitions
// file.
type DefinitionsReloader struct {
	path   string
	params *jobs.ParamTypes
	exec   jobs.Executor
}

// NewDefinitionsReloader creates a reloader for the file at path. Commands
// run on exec, normally the command processor.
func NewDefinitionsReloader(path string, params *jobs.ParamTypes, exec jobs.Executor) *DefinitionsReloader {
	return &DefinitionsReloader{path: path, params: params, exec: exec}
}

// Reload reads the file and syncs its definitions.
func (r *DefinitionsReloader) Reload(ctx context.Context) error {
	defs, err := jobs.LoadDefinitions(r.path, r.params)
	if err != nil {
		return err
	}
	if err := jobs.SyncDefinitions(ctx, r.exec, defs); err != nil {
		return fmt.Errorf("sync definitions from %s: %w", r.path, err)
	}
	return nil
}

// Run reloads on every signal from changes until ctx is done or changes is
// closed. A failed reload is logged and the previous definitions stay in
// place.
func (r *DefinitionsReloader) Run(ctx context.Context, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := r.Reload(ctx); err != nil {
				log.ErrorErr(log.CatWatcher, "definitions reload failed", err, "path", r.path)
				continue
			}
			log.Info(log.CatWatcher, "definitions reloaded", "path", r.path)
		}
	}
}
