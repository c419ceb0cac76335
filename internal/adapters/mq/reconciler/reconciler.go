// Package reconciler replays queued offline actions against the remote store.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/certifica/internal/domain/dedupe"
	"github.com/okian/certifica/internal/domain/model"
	"github.com/okian/certifica/pkg/logger"
	"github.com/okian/certifica/pkg/metrics"
)

const (
	defaultActionTimeout = 10 * time.Second
	reconcileKey         = "reconcile"
)

// Pass outcomes reported to metrics.
const (
	outcomeOffline     = "offline"
	outcomeEmpty       = "empty"
	outcomeComplete    = "complete"
	outcomePartial     = "partial"
	outcomeInterrupted = "interrupted"
)

// Sink applies one mutation to the remote store.
type Sink interface {
	Insert(ctx context.Context, resource string, record map[string]any) error
	Update(ctx context.Context, resource, id string, partial map[string]any) error
	Delete(ctx context.Context, resource, id string) error
}

// Queue is the part of the offline queue the reconciler drains.
type Queue interface {
	PeekAll(ctx context.Context) []model.Action
	Remove(ctx context.Context, ids []string) error
}

// Connectivity tells whether the remote store is reachable.
type Connectivity interface {
	IsConnected() bool
}

// Result summarizes one reconciliation pass.
type Result struct {
	Success   bool           `json:"success"`
	Applied   int            `json:"applied"`
	Failed    int            `json:"failed"`
	Total     int            `json:"total"`
	Remaining []model.Action `json:"remaining"`
}

// Reconciler drains the queue in enqueue order. Concurrent Reconcile calls
// join the pass already in flight. A pass outlives the caller that started
// it and is only canceled when Shutdown gives up waiting.
type Reconciler struct {
	queue         Queue
	sink          Sink
	conn          Connectivity
	applied       dedupe.Deduper
	actionTimeout time.Duration
	logger        logger.Logger
	group         singleflight.Group

	life   context.Context
	stop   context.CancelFunc
	mu     sync.Mutex
	closed bool
	passes sync.WaitGroup

	trigger      chan struct{}
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a reconciler.
func New(queue Queue, sink Sink, conn Connectivity, opts ...Option) *Reconciler {
	r := &Reconciler{
		queue:         queue,
		sink:          sink,
		conn:          conn,
		actionTimeout: defaultActionTimeout,
		logger:        logger.Nop(),
		trigger:       make(chan struct{}, 1),
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.applied == nil {
		r.applied = dedupe.NewInMemoryDeduper()
	}
	r.life, r.stop = context.WithCancel(context.Background())
	return r
}

// Reconcile runs a pass, or waits for the one in flight and returns its result.
// A caller whose ctx ends first gets the queue as it stands while the pass
// carries on. Remote errors are logged and counted, never returned.
func (r *Reconciler) Reconcile(ctx context.Context) Result {
	if ctx.Err() != nil {
		return r.pending(ctx)
	}
	ch := r.group.DoChan(reconcileKey, func() (any, error) {
		return r.detachedPass(ctx), nil
	})
	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordSyncShared()
		}
		return res.Val.(Result)
	case <-ctx.Done():
		return r.pending(ctx)
	}
}

// detachedPass runs a pass that keeps the caller's values but not its
// cancellation. Shutdown bounds it instead.
func (r *Reconciler) detachedPass(ctx context.Context) Result {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return r.pending(ctx)
	}
	r.passes.Add(1)
	r.mu.Unlock()
	defer r.passes.Done()

	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	release := context.AfterFunc(r.life, cancel)
	defer release()
	return r.pass(pctx)
}

// pending reports the queue without attempting anything.
func (r *Reconciler) pending(ctx context.Context) Result {
	remaining := r.queue.PeekAll(context.WithoutCancel(ctx))
	if remaining == nil {
		remaining = []model.Action{}
	}
	return Result{Success: len(remaining) == 0, Total: len(remaining), Remaining: remaining}
}

func (r *Reconciler) pass(ctx context.Context) Result {
	start := time.Now()
	outcome := outcomeComplete
	defer func() {
		metrics.RecordSyncPass(outcome, float64(time.Since(start).Milliseconds()))
	}()

	if !r.conn.IsConnected() {
		outcome = outcomeOffline
		remaining := r.queue.PeekAll(ctx)
		return Result{Success: false, Total: len(remaining), Remaining: remaining}
	}

	actions := r.queue.PeekAll(ctx)
	if len(actions) == 0 {
		outcome = outcomeEmpty
		return Result{Success: true, Remaining: []model.Action{}}
	}

	res := Result{Total: len(actions)}
	appliedIDs := make([]string, 0, len(actions))
	interrupted := false
	for _, a := range actions {
		if ctx.Err() != nil || !r.conn.IsConnected() {
			interrupted = true
			break
		}
		if r.applied.SeenAndRecord(ctx, a.ID) {
			// Confirmed by an earlier pass whose queue write failed.
			metrics.RecordSyncAction(string(a.Kind), "skipped", 0)
			appliedIDs = append(appliedIDs, a.ID)
			continue
		}
		if err := r.apply(ctx, a); err != nil {
			r.applied.Unrecord(ctx, a.ID)
			res.Failed++
			metrics.RecordErrorByComponent("reconciler", "remote_error")
			r.logger.Warn(ctx, "replay failed, action stays queued",
				logger.String("action_id", a.ID),
				logger.String("resource", a.Resource),
				logger.String("kind", string(a.Kind)),
				logger.Error(err))
			continue
		}
		appliedIDs = append(appliedIDs, a.ID)
	}
	res.Applied = len(appliedIDs)

	if err := r.queue.Remove(ctx, appliedIDs); err != nil {
		metrics.RecordErrorByComponent("reconciler", "queue_write")
		r.logger.Error(ctx, "remove applied actions", logger.Error(err), logger.Int("applied", res.Applied))
	}
	res.Remaining = r.queue.PeekAll(ctx)
	res.Success = len(res.Remaining) == 0

	switch {
	case interrupted:
		outcome = outcomeInterrupted
	case !res.Success:
		outcome = outcomePartial
	}
	r.logger.Info(ctx, "reconciliation pass finished",
		logger.String("outcome", outcome),
		logger.Int("applied", res.Applied),
		logger.Int("failed", res.Failed),
		logger.Int("total", res.Total),
		logger.Int("remaining", len(res.Remaining)))
	return res
}

// apply dispatches one action with its own deadline.
func (r *Reconciler) apply(ctx context.Context, a model.Action) error {
	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, r.actionTimeout)
	defer cancel()

	var err error
	switch a.Kind {
	case model.ActionInsert:
		err = r.sink.Insert(actx, a.Resource, a.Data)
	case model.ActionUpdate, model.ActionDelete:
		id, ok := a.RecordID()
		if !ok {
			err = fmt.Errorf("%w: %s", ErrMissingRecordID, a.ID)
			break
		}
		if a.Kind == model.ActionUpdate {
			err = r.sink.Update(actx, a.Resource, id, a.Data)
		} else {
			err = r.sink.Delete(actx, a.Resource, id)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownKind, a.Kind)
	}

	result := "applied"
	if err != nil {
		result = "failed"
	}
	metrics.RecordSyncAction(string(a.Kind), result, float64(time.Since(start).Milliseconds()))
	return err
}

// Trigger asks the Run loop for a pass. Triggers that arrive while one is
// pending collapse into it.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run reconciles on every trigger until ctx is canceled or Shutdown is called.
func (r *Reconciler) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdown:
			return
		case <-r.trigger:
			r.Reconcile(ctx)
		}
	}
}

// Shutdown stops the Run loop and waits for the pass in progress. Passes
// still running when ctx ends are canceled. Later Reconcile calls only
// report the queue.
func (r *Reconciler) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() { close(r.shutdown) })
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		<-r.done
		r.passes.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		r.stop()
		return nil
	case <-ctx.Done():
		r.stop()
		r.logger.Warn(ctx, "shutdown timed out, canceling pass in progress")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
