package central

import (
	"context"
	"time"

	"github.com/zjrosen/turbo/internal/command"
	"github.com/zjrosen/turbo/internal/log"
)

// NewLoggingMiddleware logs every executed command with its duration.
// Failures are logged at error level, successes at debug level.
func NewLoggingMiddleware() command.Middleware {
	return func(next command.Handler) command.Handler {
		return command.HandlerFunc(func(ctx context.Context, cmd command.Command) (any, error) {
			start := time.Now()

			traceID := ""
			if hasTraceID, ok := cmd.(interface{ TraceID() string }); ok {
				traceID = hasTraceID.TraceID()
			}
			source := ""
			if hasSource, ok := cmd.(interface{ Source() command.Source }); ok {
				source = hasSource.Source().String()
			}

			result, err := next.Handle(ctx, cmd)
			duration := time.Since(start)

			if err != nil {
				log.Error(log.CatCommands, "command failed",
					"command_id", cmd.ID(),
					"api", cmd.APIIdentifier(),
					"path", cmd.APIPath(),
					"trace_id", traceID,
					"duration", duration,
					"source", source,
					"error", err.Error(),
				)
			} else {
				log.Debug(log.CatCommands, "command completed",
					"command_id", cmd.ID(),
					"api", cmd.APIIdentifier(),
					"path", cmd.APIPath(),
					"trace_id", traceID,
					"duration", duration,
					"source", source,
				)
			}

			return result, err
		})
	}
}
