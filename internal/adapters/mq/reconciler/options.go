package reconciler

import (
	"time"

	"github.com/okian/certifica/internal/domain/dedupe"
	"github.com/okian/certifica/pkg/logger"
)

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithActionTimeout bounds each remote call.
func WithActionTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.actionTimeout = d
		}
	}
}

// WithDeduper sets the tracker of actions already confirmed in this process.
func WithDeduper(d dedupe.Deduper) Option {
	return func(r *Reconciler) {
		if d != nil {
			r.applied = d
		}
	}
}

// WithLogger sets a custom logger for the reconciler.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}
