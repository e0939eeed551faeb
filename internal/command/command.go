// Package command defines the request objects routed through the central
// API. A command names the extra API that handles it and a "/"-separated
// path inside that API; the central API resolves the pair to a registered
// handler and executes the command there.
package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Command is a request addressed to an extra API.
type Command interface {
	// ID returns unique command identifier for tracing/correlation
	ID() string
	// APIIdentifier names the extra API that should handle the command.
	APIIdentifier() string
	// APIPath is the "/"-separated route inside that API.
	APIPath() string
	// Validate checks command preconditions before execution
	Validate() error
	// CreatedAt returns when command was created
	CreatedAt() time.Time
}

// Source identifies where the command originated.
type Source string

const (
	// SourceInternal is used for commands issued by library code.
	SourceInternal Source = "internal"
	// SourceHTTP is used for commands built by the HTTP API.
	SourceHTTP Source = "http"
	// SourceCLI is used for commands built by the command line.
	SourceCLI Source = "cli"
)

// String returns the string representation of the Source.
func (s Source) String() string {
	return string(s)
}

// BaseCommand provides common fields for all commands.
// Concrete command types should embed this struct.
type BaseCommand struct {
	id          string
	apiID       string
	apiPath     string
	createdAt   time.Time
	source      Source
	traceID     string
	spanContext trace.SpanContext
}

// NewBaseCommand creates a BaseCommand with a generated UUID and current timestamp.
func NewBaseCommand(apiID, apiPath string, source Source) BaseCommand {
	return BaseCommand{
		id:        uuid.New().String(),
		apiID:     apiID,
		apiPath:   strings.Trim(apiPath, "/"),
		createdAt: time.Now(),
		source:    source,
	}
}

// ID returns the unique command identifier.
func (b *BaseCommand) ID() string {
	return b.id
}

// APIIdentifier returns the id of the extra API handling the command.
func (b *BaseCommand) APIIdentifier() string {
	return b.apiID
}

// APIPath returns the route inside the extra API.
func (b *BaseCommand) APIPath() string {
	return b.apiPath
}

// CreatedAt returns when the command was created.
func (b *BaseCommand) CreatedAt() time.Time {
	return b.createdAt
}

// Source returns the origin of this command.
func (b *BaseCommand) Source() Source {
	return b.source
}

// SetSource overrides the origin recorded at construction.
func (b *BaseCommand) SetSource(source Source) {
	b.source = source
}

// TraceID returns the correlation ID for related commands.
// If a valid SpanContext is set, the trace ID is derived from it.
func (b *BaseCommand) TraceID() string {
	if b.spanContext.IsValid() {
		return b.spanContext.TraceID().String()
	}
	return b.traceID
}

// SetTraceID sets the correlation ID for command tracing.
func (b *BaseCommand) SetTraceID(traceID string) {
	b.traceID = traceID
}

// SpanContext returns the OpenTelemetry span context for trace propagation.
func (b *BaseCommand) SpanContext() trace.SpanContext {
	return b.spanContext
}

// SetSpanContext sets the OpenTelemetry span context for trace propagation.
func (b *BaseCommand) SetSpanContext(sc trace.SpanContext) {
	b.spanContext = sc
}

// Validate checks that the command is addressed. Concrete commands that
// override it should call it first.
func (b *BaseCommand) Validate() error {
	if b.apiID == "" {
		return ErrMissingAPI
	}
	return nil
}

// Result contains the outcome of command execution.
type Result struct {
	// Success indicates whether the command executed successfully.
	Success bool
	// Data is whatever the extra API returned.
	Data any
	// Error contains the error if Success is false.
	Error error
}

// Handler executes a command.
type Handler interface {
	Handle(ctx context.Context, cmd Command) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd Command) (any, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cmd Command) (any, error) {
	return f(ctx, cmd)
}

// Middleware wraps a Handler to add additional behavior.
type Middleware func(Handler) Handler

// ChainMiddleware applies middlewares to a handler in reverse order.
// The first middleware in the list will be the outermost wrapper.
// For example: ChainMiddleware(handler, logging, tracing)
// Results in: logging(tracing(handler))
func ChainMiddleware(handler Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

var (
	// ErrQueueFull is returned when the command queue has reached capacity.
	ErrQueueFull = errors.New("command queue is full")
	// ErrMissingAPI is returned by Validate when no API identifier is set.
	ErrMissingAPI = errors.New("command has no api identifier")
)
