package service

import (
	"time"

	"github.com/okian/certifica/internal/adapters/connectivity"
	"github.com/okian/certifica/internal/adapters/remote"
	"github.com/okian/certifica/internal/adapters/storage"
	"github.com/okian/certifica/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStorage sets the local durable store for the queue and caches.
func WithStorage(kv storage.KV) Option {
	return func(s *Service) {
		if kv != nil {
			s.kv = kv
		}
	}
}

// WithSink sets the remote mutation sink.
func WithSink(sink remote.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithTaxonomySource sets where the KPI taxonomy is read from.
func WithTaxonomySource(src remote.TaxonomySource) Option {
	return func(s *Service) {
		if src != nil {
			s.taxonomySource = src
		}
	}
}

// WithEvaluationReader sets the reader used for the dashboard.
func WithEvaluationReader(r remote.EvaluationReader) Option {
	return func(s *Service) {
		if r != nil {
			s.evaluations = r
		}
	}
}

// WithMonitor sets the connectivity signal.
func WithMonitor(m connectivity.Monitor) Option {
	return func(s *Service) {
		if m != nil {
			s.monitor = m
		}
	}
}

// WithActionTimeout bounds each remote write.
func WithActionTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.actionTimeout = d
		}
	}
}

// WithDedupeSize sets how many applied action IDs the reconciler remembers.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source for evaluation dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
