package processor

import (
	"time"

	"github.com/zjrosen/turbo/internal/command"
)

// CommandLogEvent is published after each queued command is processed.
type CommandLogEvent struct {
	// CommandID is the unique identifier of the processed command.
	CommandID string
	// API and Path address the extra API route that handled the command.
	API  string
	Path string
	// Source indicates where the command originated.
	Source command.Source
	// Success indicates whether the command executed successfully.
	Success bool
	// Error contains the error if the command failed (nil on success).
	Error error
	// Duration is how long the command took to execute.
	Duration time.Duration
	// Timestamp is when the command finished processing.
	Timestamp time.Time
	// TraceID is the distributed trace ID for correlation (empty if tracing disabled).
	TraceID string
}
