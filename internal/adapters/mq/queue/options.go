package queue

import (
	"time"

	"github.com/okian/certifica/pkg/logger"
)

// Option applies a configuration option to the DurableQueue.
type Option func(*DurableQueue)

// WithKey sets the storage key the queue is persisted under.
func WithKey(key string) Option {
	return func(q *DurableQueue) {
		if key != "" {
			q.key = key
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(l logger.Logger) Option {
	return func(q *DurableQueue) {
		if l != nil {
			q.log = l
		}
	}
}

// WithClock sets the time source used to stamp actions.
func WithClock(now func() time.Time) Option {
	return func(q *DurableQueue) {
		if now != nil {
			q.now = now
		}
	}
}
