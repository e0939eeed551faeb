package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/turbo/internal/api"
	"github.com/zjrosen/turbo/internal/command"
	"github.com/zjrosen/turbo/internal/config"
	"github.com/zjrosen/turbo/internal/flags"
	"github.com/zjrosen/turbo/internal/jobs"
	"github.com/zjrosen/turbo/internal/log"
	"github.com/zjrosen/turbo/internal/processor"
	"github.com/zjrosen/turbo/internal/pubsub"
	"github.com/zjrosen/turbo/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the registry over HTTP",
	Long: `Serve the registry and the jobs API over HTTP.

Commands from HTTP requests are queued and run one at a time. When
definitions.watch is set the definitions file is reloaded on change.

Example:
  turbo serve                          # Listen on server.addr
  turbo serve --addr :8080             # Listen on port 8080
  turbo serve --definitions defs.yaml  # Load definitions from a file`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides server.addr)")
}

// service is everything runServe starts, in shutdown order.
type service struct {
	rt      *runtime
	proc    *processor.CommandProcessor
	events  *pubsub.Broker[processor.CommandLogEvent]
	server  *api.Server
	watcher *watcher.Watcher
	cancel  context.CancelFunc
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	svc, err := startService(context.Background(), cfg)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.server.Start()
	}()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "turbo listening on port %d\n", svc.server.Port())

	// Wait for shutdown signal or error
	var serveErr error
	select {
	case sig := <-sigCh:
		_, _ = fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	svc.shutdown(shutdownCtx)

	_, _ = fmt.Fprintln(out, "Stopped")
	return serveErr
}

// startService builds the runtime and starts the processor, the definitions
// watcher and the (not yet serving) HTTP server.
func startService(ctx context.Context, cfg config.Config) (*service, error) {
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	svc := &service{
		rt:     rt,
		events: pubsub.NewBroker[processor.CommandLogEvent](),
		cancel: cancel,
	}

	middlewares := []command.Middleware{
		processor.NewTimeoutMiddleware(processor.TimeoutMiddlewareConfig{
			WarningThreshold: cfg.Server.SlowCommandThreshold,
		}),
	}
	if cfg.Server.DedupTTL > 0 {
		dedup := processor.NewDeduplicationMiddleware(processor.DeduplicationMiddlewareConfig{
			TTL:   cfg.Server.DedupTTL,
			Match: isCreateCommand,
		})
		middlewares = append([]command.Middleware{dedup.Middleware()}, middlewares...)
	}

	capacity := cfg.Server.QueueCapacity
	if capacity == 0 {
		capacity = processor.DefaultQueueCapacity
	}
	svc.proc = processor.NewCommandProcessor(rt.central,
		processor.WithQueueCapacity(capacity),
		processor.WithEventBus(svc.events),
		processor.WithMiddleware(middlewares...),
	)
	go svc.proc.Run(runCtx)
	if err := svc.proc.WaitForReady(ctx); err != nil {
		svc.shutdown(context.Background())
		return nil, fmt.Errorf("starting command processor: %w", err)
	}

	if cfg.Definitions.Watch {
		w, err := watcher.New(watcher.Config{
			Path:        cfg.Definitions.Path,
			DebounceDur: cfg.Definitions.Debounce,
		})
		if err != nil {
			svc.shutdown(context.Background())
			return nil, err
		}
		changes, err := w.Start()
		if err != nil {
			_ = w.Stop()
			svc.shutdown(context.Background())
			return nil, err
		}
		svc.watcher = w
		reloader := watcher.NewDefinitionsReloader(cfg.Definitions.Path, rt.params, svc.proc)
		go reloader.Run(runCtx, changes)
		log.Info(log.CatWatcher, "Watching definitions", "path", cfg.Definitions.Path)
	}

	var events *pubsub.Broker[processor.CommandLogEvent]
	if flags.New(cfg.Flags).Enabled(flags.FlagEventStream) {
		events = svc.events
	}

	svc.server, err = api.NewServer(api.ServerConfig{
		Addr: cfg.Server.Addr,
		Handler: api.HandlerConfig{
			Executor: svc.proc,
			Objects:  rt.central,
			Coercer:  rt.jobs,
			Events:   events,
		},
	})
	if err != nil {
		svc.shutdown(context.Background())
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	return svc, nil
}

func (s *service) shutdown(ctx context.Context) {
	if s.server != nil {
		if err := s.server.Stop(ctx); err != nil {
			log.ErrorErr(log.CatAPI, "Error stopping API server", err)
		}
	}
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			log.ErrorErr(log.CatWatcher, "Error stopping watcher", err)
		}
	}
	if s.proc != nil {
		s.proc.Drain()
	}
	s.cancel()
	s.events.Close()
	if err := s.rt.Close(ctx); err != nil {
		log.ErrorErr(log.CatDB, "Error closing registry", err)
	}
}

// isCreateCommand selects the commands the deduplication window applies to.
func isCreateCommand(cmd command.Command) bool {
	_, ok := cmd.(*jobs.CreateInstancesCommand)
	return ok
}
