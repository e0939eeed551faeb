// Package processor serializes commands through a single FIFO queue in
// front of the central API. Writers such as the HTTP API and the
// definitions watcher submit here so their commands never interleave.
package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zjrosen/turbo/internal/command"
	"github.com/zjrosen/turbo/internal/log"
	"github.com/zjrosen/turbo/internal/pubsub"
)

// DefaultQueueCapacity is the default buffer size for the command queue.
const DefaultQueueCapacity = 1000

// ErrNotRunning is returned when a command is submitted to a processor
// that is not running.
var ErrNotRunning = errors.New("command processor is not running")

// Executor runs a command, normally the central API.
type Executor interface {
	Execute(ctx context.Context, cmd command.Command) (any, error)
}

// Option configures the CommandProcessor.
type Option func(*CommandProcessor)

// WithQueueCapacity sets the command queue buffer capacity.
func WithQueueCapacity(capacity int) Option {
	return func(p *CommandProcessor) {
		p.queueCapacity = capacity
	}
}

// WithEventBus sets the event bus for publishing command results.
func WithEventBus(bus *pubsub.Broker[CommandLogEvent]) Option {
	return func(p *CommandProcessor) {
		p.eventBus = bus
	}
}

// WithMiddleware adds middleware applied around the executor.
// Middleware is applied in order: first middleware wraps outermost.
func WithMiddleware(middlewares ...command.Middleware) Option {
	return func(p *CommandProcessor) {
		p.middlewares = append(p.middlewares, middlewares...)
	}
}

// CommandProcessor runs commands one at a time in submission order.
//
// Handlers run on the processor goroutine and must not SubmitAndWait on
// the processor that runs them.
type CommandProcessor struct {
	// Command queue (buffered channel)
	queue         chan queueItem
	queueCapacity int

	exec        Executor
	handler     command.Handler
	middlewares []command.Middleware

	eventBus *pubsub.Broker[CommandLogEvent]

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// sendMu keeps Drain from closing the queue during a send.
	sendMu sync.RWMutex

	// State tracking
	running  atomic.Bool
	started  atomic.Bool
	readyCh  chan struct{} // Closed when processor is ready to accept commands
	readyMu  sync.Mutex    // Protects readyCh initialization
	readySet bool          // True after readyCh is closed

	// Metrics
	processedCount atomic.Int64
	errorCount     atomic.Int64
}

// queueItem wraps a command with an optional result channel for SubmitAndWait.
type queueItem struct {
	cmd      command.Command
	resultCh chan *command.Result // nil for fire-and-forget Submit
}

// NewCommandProcessor creates a processor that runs commands on exec.
func NewCommandProcessor(exec Executor, opts ...Option) *CommandProcessor {
	p := &CommandProcessor{
		queueCapacity: DefaultQueueCapacity,
		exec:          exec,
		readyCh:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.handler = command.ChainMiddleware(command.HandlerFunc(exec.Execute), p.middlewares...)
	return p
}

// Run starts the command processing loop.
// This method blocks until the context is cancelled, Stop is called, or a
// Drain completes. Run can only be called once; later calls return
// immediately.
func (p *CommandProcessor) Run(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.queue = make(chan queueItem, p.queueCapacity)

	// Add to wait group BEFORE setting running to avoid race with Drain()
	p.wg.Add(1)
	p.running.Store(true)

	p.readyMu.Lock()
	if !p.readySet {
		close(p.readyCh)
		p.readySet = true
	}
	p.readyMu.Unlock()

	defer func() {
		p.running.Store(false)
		p.wg.Done()
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case item, ok := <-p.queue:
			if !ok {
				// Queue closed during Drain
				return
			}
			p.processItem(item)
		}
	}
}

// WaitForReady blocks until the processor is ready to accept commands.
func (p *CommandProcessor) WaitForReady(ctx context.Context) error {
	select {
	case <-p.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit adds a command to the queue for asynchronous processing.
// Returns command.ErrQueueFull if the queue is at capacity.
func (p *CommandProcessor) Submit(cmd command.Command) error {
	return p.enqueue(queueItem{cmd: cmd})
}

// SubmitAndWait adds a command to the queue and waits for the result.
// A failing command is reported in the Result, not as the error.
func (p *CommandProcessor) SubmitAndWait(ctx context.Context, cmd command.Command) (*command.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resultCh := make(chan *command.Result, 1)
	if err := p.enqueue(queueItem{cmd: cmd, resultCh: resultCh}); err != nil {
		return nil, err
	}

	select {
	case res := <-resultCh:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, context.Canceled
	}
}

func (p *CommandProcessor) enqueue(item queueItem) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	if !p.running.Load() {
		return ErrNotRunning
	}
	select {
	case p.queue <- item:
		return nil
	default:
		return command.ErrQueueFull
	}
}

// Execute submits cmd and waits, returning the command's own data and
// error. It lets the processor stand in wherever an Executor is expected.
func (p *CommandProcessor) Execute(ctx context.Context, cmd command.Command) (any, error) {
	res, err := p.SubmitAndWait(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return res.Data, res.Error
	}
	return res.Data, nil
}

// Stop cancels the processing context and waits for shutdown.
// Any pending commands in the queue are NOT processed.
func (p *CommandProcessor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Drain processes all remaining commands in the queue before stopping.
func (p *CommandProcessor) Drain() {
	p.sendMu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.sendMu.Unlock()
		return
	}
	close(p.queue)
	p.sendMu.Unlock()

	p.wg.Wait()
}

// IsRunning returns true if the processor is currently accepting commands.
func (p *CommandProcessor) IsRunning() bool {
	return p.running.Load()
}

// ProcessedCount returns the total number of commands processed.
func (p *CommandProcessor) ProcessedCount() int64 {
	return p.processedCount.Load()
}

// ErrorCount returns the total number of commands that resulted in errors.
func (p *CommandProcessor) ErrorCount() int64 {
	return p.errorCount.Load()
}

// QueueLength returns the current number of pending commands.
func (p *CommandProcessor) QueueLength() int {
	if p.queue == nil {
		return 0
	}
	return len(p.queue)
}

func (p *CommandProcessor) processItem(item queueItem) {
	start := time.Now()
	result := p.processCommand(item.cmd)

	p.processedCount.Add(1)
	if !result.Success {
		p.errorCount.Add(1)
		log.Warn(log.CatProcessor, "command failed",
			"command_id", item.cmd.ID(),
			"api", item.cmd.APIIdentifier(),
			"path", item.cmd.APIPath(),
			"error", result.Error,
		)
	}
	p.publish(item.cmd, result, time.Since(start))

	if item.resultCh != nil {
		item.resultCh <- result
		close(item.resultCh)
	}
}

func (p *CommandProcessor) processCommand(cmd command.Command) *command.Result {
	if err := cmd.Validate(); err != nil {
		return &command.Result{Success: false, Error: err}
	}

	data, err := p.handler.Handle(p.ctx, cmd)
	if err != nil {
		return &command.Result{Success: false, Data: data, Error: err}
	}
	return &command.Result{Success: true, Data: data}
}

func (p *CommandProcessor) publish(cmd command.Command, result *command.Result, d time.Duration) {
	if p.eventBus == nil {
		return
	}

	event := CommandLogEvent{
		CommandID: cmd.ID(),
		API:       cmd.APIIdentifier(),
		Path:      cmd.APIPath(),
		Success:   result.Success,
		Error:     result.Error,
		Duration:  d,
		Timestamp: time.Now(),
	}
	if hasSource, ok := cmd.(interface{ Source() command.Source }); ok {
		event.Source = hasSource.Source()
	}
	if hasTraceID, ok := cmd.(interface{ TraceID() string }); ok {
		event.TraceID = hasTraceID.TraceID()
	}

	eventType := pubsub.CommandProcessed
	if !result.Success {
		eventType = pubsub.CommandFailed
	}
	p.eventBus.Publish(eventType, event)
}
