package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/okian/certifica/pkg/logger"
	"github.com/okian/certifica/pkg/metrics"
)

const (
	defaultProbeInterval = 5 * time.Second
	defaultProbeTimeout  = 2 * time.Second
)

// Pinger checks the remote store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ProbeMonitor polls a Pinger and flips state on the outcome.
type ProbeMonitor struct {
	*hub
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	log      logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// ProbeOption configures a ProbeMonitor.
type ProbeOption func(*ProbeMonitor)

// WithInterval sets the time between probes.
func WithInterval(d time.Duration) ProbeOption {
	return func(p *ProbeMonitor) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithProbeTimeout bounds a single probe.
func WithProbeTimeout(d time.Duration) ProbeOption {
	return func(p *ProbeMonitor) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the monitor logger.
func WithLogger(l logger.Logger) ProbeOption {
	return func(p *ProbeMonitor) {
		if l != nil {
			p.log = l
		}
	}
}

// NewProbeMonitor creates a monitor that starts disconnected until the first probe.
func NewProbeMonitor(pinger Pinger, opts ...ProbeOption) *ProbeMonitor {
	p := &ProbeMonitor{
		hub:      newHub(false),
		pinger:   pinger,
		interval: defaultProbeInterval,
		timeout:  defaultProbeTimeout,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	metrics.UpdateConnected(false)
	return p
}

// Start runs one probe synchronously and then keeps probing until Stop or ctx ends.
func (p *ProbeMonitor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.Probe(ctx)
	go p.loop(ctx, p.done)
}

func (p *ProbeMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

// Probe pings once and updates the state.
func (p *ProbeMonitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.pinger.Ping(probeCtx)
	cancel()

	connected := err == nil
	if p.set(connected) {
		metrics.UpdateConnected(connected)
		if connected {
			p.log.Info(ctx, "remote store reachable")
		} else {
			p.log.Warn(ctx, "remote store unreachable", logger.Error(err))
		}
	}
	return connected
}

// Stop ends the probe loop and waits for it to exit.
func (p *ProbeMonitor) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
