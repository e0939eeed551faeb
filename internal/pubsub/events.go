// Package pubsub provides a generic publish/subscribe event system used to
// observe registry mutations and log output.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// ResourcePut is published after a value is written at a path.
	ResourcePut EventType = "resource_put"
	// ResourceDeleted is published after a value or subtree is removed.
	ResourceDeleted EventType = "resource_deleted"
	// APIRegistered is published after an extra API is registered.
	APIRegistered EventType = "api_registered"
	// APIRemoved is published after an extra API is unregistered.
	APIRemoved EventType = "api_removed"
	// CommandProcessed is published after a queued command succeeds.
	CommandProcessed EventType = "command_processed"
	// CommandFailed is published when a processed command returns an error.
	CommandFailed EventType = "command_failed"
	// LogWritten carries a formatted log line.
	LogWritten EventType = "log_written"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context, types ...EventType) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
