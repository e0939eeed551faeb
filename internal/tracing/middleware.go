package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/turbo/internal/command"
)

// TracingMiddlewareConfig configures the tracing middleware.
type TracingMiddlewareConfig struct {
	// Tracer is the OpenTelemetry tracer for creating spans.
	// If nil, the middleware is a pass-through.
	Tracer trace.Tracer
}

// NewTracingMiddleware creates middleware that opens a span per command.
// A span context carried by the command becomes the parent, and the new
// span context is written back so later commands can link to it.
func NewTracingMiddleware(cfg TracingMiddlewareConfig) command.Middleware {
	if cfg.Tracer == nil {
		return func(next command.Handler) command.Handler {
			return next
		}
	}

	return func(next command.Handler) command.Handler {
		return command.HandlerFunc(func(ctx context.Context, cmd command.Command) (any, error) {
			ctx = restoreSpanContext(ctx, cmd)

			spanName := fmt.Sprintf("%s%s/%s", SpanPrefixCommand, cmd.APIIdentifier(), cmd.APIPath())
			ctx, span := cfg.Tracer.Start(ctx, spanName,
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			span.SetAttributes(
				attribute.String(AttrCommandID, cmd.ID()),
				attribute.String(AttrCommandAPI, cmd.APIIdentifier()),
				attribute.String(AttrCommandPath, cmd.APIPath()),
			)
			if hasSource, ok := cmd.(interface{ Source() command.Source }); ok {
				span.SetAttributes(attribute.String(AttrCommandSource, hasSource.Source().String()))
			}
			if setter, ok := cmd.(interface{ SetSpanContext(trace.SpanContext) }); ok {
				setter.SetSpanContext(span.SpanContext())
			}

			result, err := next.Handle(ctx, cmd)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return result, err
			}
			if result != nil {
				span.SetAttributes(attribute.String(AttrResultType, fmt.Sprintf("%T", result)))
			}
			span.SetStatus(codes.Ok, "")
			return result, nil
		})
	}
}

// restoreSpanContext makes a span context carried by cmd the parent of the
// spans created under ctx.
func restoreSpanContext(ctx context.Context, cmd command.Command) context.Context {
	if hasSpanContext, ok := cmd.(interface{ SpanContext() trace.SpanContext }); ok {
		sc := hasSpanContext.SpanContext()
		if sc.IsValid() {
			return trace.ContextWithRemoteSpanContext(ctx, sc)
		}
	}
	return ctx
}
