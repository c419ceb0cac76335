// Package dedupe tracks offline action IDs already confirmed by the remote store.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 10000

// Deduper records applied action IDs so a replay never sends the same action twice
// within one process.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool
	// Unrecord forgets id so a failed attempt can be retried.
	Unrecord(ctx context.Context, id string)
	// Size is the number of recorded IDs.
	Size() int64
}

// inMemoryDeduper keeps IDs in insertion order and evicts the oldest once
// maxSize is reached. maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryDeduper creates a deduper held in process memory.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.(string))
	}
	d.seen[id] = d.order.PushBack(id)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		d.order.Remove(el)
		delete(d.seen, id)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}
