package pubsub

import "context"

// Listener wraps a broker subscription so callers can pull events one at a
// time instead of ranging over the channel.
type Listener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// NewListener subscribes to broker for the given event types.
// The subscription is cleaned up when ctx is cancelled.
func NewListener[T any](ctx context.Context, broker *Broker[T], types ...EventType) *Listener[T] {
	return &Listener[T]{
		ctx: ctx,
		ch:  broker.Subscribe(ctx, types...),
	}
}

// Next blocks until the next event arrives. It returns false once the
// context is cancelled or the subscription is closed.
func (l *Listener[T]) Next() (Event[T], bool) {
	select {
	case <-l.ctx.Done():
		return Event[T]{}, false
	case event, ok := <-l.ch:
		return event, ok
	}
}

// C exposes the underlying channel for select loops.
func (l *Listener[T]) C() <-chan Event[T] {
	return l.ch
}
