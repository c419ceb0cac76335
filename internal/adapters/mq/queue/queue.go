// Package queue holds the durable offline action queue: mutations recorded
// while the remote store was unreachable, waiting to be replayed in order.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/certifica/internal/adapters/storage"
	"github.com/okian/certifica/internal/domain/model"
	"github.com/okian/certifica/pkg/logger"
	"github.com/okian/certifica/pkg/metrics"
)

// DefaultKey is the storage key the queue is persisted under.
const DefaultKey = "offline_queue"

// corruptSuffix names the key a corrupted queue is copied to before it is
// replaced.
const corruptSuffix = ".corrupt"

// Queue is the contract the reconciler and the application depend on.
type Queue interface {
	// Enqueue appends a mutation and persists the queue.
	Enqueue(ctx context.Context, resource string, kind model.ActionKind, payload map[string]any) (model.Action, error)
	// PeekAll returns the queued actions in enqueue order without changing them.
	PeekAll(ctx context.Context) []model.Action
	// Len returns the number of queued actions.
	Len(ctx context.Context) int
	// Remove drops the given action IDs, keeping everything else in order.
	Remove(ctx context.Context, ids []string) error
	// Clear empties the queue.
	Clear(ctx context.Context) error
}

// DurableQueue persists the whole queue as one JSON array in a storage.KV.
// The stored value is the source of truth; every operation reads it back.
type DurableQueue struct {
	kv  storage.KV
	key string
	log logger.Logger
	now func() time.Time
	mu  sync.Mutex
}

// NewDurableQueue creates a queue backed by kv.
func NewDurableQueue(kv storage.KV, opts ...Option) *DurableQueue {
	q := &DurableQueue{
		kv:  kv,
		key: DefaultKey,
		log: logger.Nop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue validates the mutation, stamps it with a fresh ID and the current
// time, appends it and persists the queue.
func (q *DurableQueue) Enqueue(ctx context.Context, resource string, kind model.ActionKind, payload map[string]any) (model.Action, error) {
	if resource == "" {
		return model.Action{}, ErrEmptyResource
	}
	if !kind.Valid() {
		return model.Action{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	a := model.Action{
		ID:        uuid.NewString(),
		Resource:  resource,
		Kind:      kind,
		Data:      copyPayload(payload),
		Timestamp: q.now().UTC(),
	}
	if kind != model.ActionInsert {
		if _, ok := a.RecordID(); !ok {
			return model.Action{}, fmt.Errorf("%w: %s on %s", ErrMissingRecordID, kind, resource)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	actions, err := q.load(ctx)
	if err != nil {
		return model.Action{}, err
	}
	actions = append(actions, a)
	if err := q.persist(ctx, actions); err != nil {
		return model.Action{}, err
	}
	metrics.RecordQueueEnqueue(resource, string(kind))
	q.log.Info(ctx, "action queued",
		logger.String("action_id", a.ID),
		logger.String("resource", resource),
		logger.String("kind", string(kind)),
		logger.Int("pending", len(actions)))
	return a, nil
}

// PeekAll returns a copy of the queued actions in enqueue order. A queue that
// cannot be read is reported as empty; storage is left untouched.
func (q *DurableQueue) PeekAll(ctx context.Context) []model.Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	actions, err := q.load(ctx)
	if err != nil {
		return nil
	}
	metrics.UpdateQueueSize(len(actions))
	return actions
}

// Len returns the number of queued actions.
func (q *DurableQueue) Len(ctx context.Context) int {
	return len(q.PeekAll(ctx))
}

// Remove drops the actions whose IDs are given. Actions not named, including
// ones enqueued after the caller took its snapshot, keep their order.
func (q *DurableQueue) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	actions, err := q.load(ctx)
	if err != nil {
		return err
	}
	kept := actions[:0]
	for _, a := range actions {
		if _, ok := drop[a.ID]; !ok {
			kept = append(kept, a)
		}
	}
	removed := len(actions) - len(kept)
	if removed == 0 {
		return nil
	}
	if err := q.persist(ctx, kept); err != nil {
		return err
	}
	metrics.RecordQueueRemoved(removed)
	return nil
}

// Clear empties the queue and drops the storage key.
func (q *DurableQueue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.persist(ctx, nil)
}

// load reads the stored queue. Corrupted data is copied under the corrupt
// key and treated as an empty queue. A failed read is returned so callers
// never overwrite a queue they could not see. Must be called with q.mu held.
func (q *DurableQueue) load(ctx context.Context) ([]model.Action, error) {
	raw, err := q.kv.Get(ctx, q.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		metrics.RecordQueueLoadError()
		q.log.Error(ctx, "read offline queue", logger.Error(err))
		return nil, fmt.Errorf("%w: read: %w", ErrPersist, err)
	}
	var actions []model.Action
	if err := json.Unmarshal(raw, &actions); err != nil {
		metrics.RecordQueueLoadError()
		if setErr := q.kv.Set(ctx, q.key+corruptSuffix, raw); setErr != nil {
			q.log.Error(ctx, "back up corrupted offline queue", logger.Error(setErr))
			return nil, fmt.Errorf("%w: back up corrupted queue: %w", ErrPersist, setErr)
		}
		q.log.Warn(ctx, "offline queue is corrupted, treating as empty",
			logger.Error(err),
			logger.Int("bytes", len(raw)),
			logger.String("backup_key", q.key+corruptSuffix))
		return nil, nil
	}
	return actions, nil
}

// persist writes actions, removing the key when there are none. Must be
// called with q.mu held.
func (q *DurableQueue) persist(ctx context.Context, actions []model.Action) error {
	if len(actions) == 0 {
		if err := q.kv.Remove(ctx, q.key); err != nil {
			metrics.RecordQueuePersistError()
			return fmt.Errorf("%w: %w", ErrPersist, err)
		}
		metrics.UpdateQueueSize(0)
		return nil
	}
	raw, err := json.Marshal(actions)
	if err != nil {
		metrics.RecordQueuePersistError()
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := q.kv.Set(ctx, q.key, raw); err != nil {
		metrics.RecordQueuePersistError()
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	metrics.UpdateQueueSize(len(actions))
	return nil
}

func copyPayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
