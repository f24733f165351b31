// Package messagequeue defines the message queue port used for the
// asynchronous embedding backfill pipeline.
package messagequeue

import "context"

// Handler processes a single message. Returning an error causes the
// message to be redelivered.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for the backfill queue.
type Queue interface {
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe registers a handler and returns a cancel func.
	Subscribe(ctx context.Context, subject string, handler Handler) (func(), error)
}
