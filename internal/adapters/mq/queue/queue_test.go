package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/certifica/internal/adapters/storage"
	"github.com/okian/certifica/internal/domain/model"
)

func TestDurableQueue_BasicOperations(t *testing.T) {
	ctx := context.Background()
	q := NewDurableQueue(storage.NewMemory())

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	a, err := q.Enqueue(ctx, "evaluations", model.ActionInsert, map[string]any{"id": "e-1", "total_score": 680})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if a.ID == "" {
		t.Error("expected a generated action id")
	}
	if a.Timestamp.IsZero() {
		t.Error("expected an enqueue timestamp")
	}

	actions := q.PeekAll(ctx)
	if len(actions) != 1 || actions[0].ID != a.ID {
		t.Fatalf("expected [%s], got %+v", a.ID, actions)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("peek must not consume, got length %d", l)
	}

	if err := q.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected empty queue after clear, got %d", l)
	}
}

func TestDurableQueue_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	kv, err := storage.NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("file storage: %v", err)
	}

	first := NewDurableQueue(kv)
	var want []string
	for i := 0; i < 3; i++ {
		a, err := first.Enqueue(ctx, "evaluation_scores", model.ActionInsert, map[string]any{"id": fmt.Sprintf("s-%d", i)})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		want = append(want, a.ID)
	}

	// A new queue over the same storage stands in for a process restart.
	restarted := NewDurableQueue(kv)
	got := restarted.PeekAll(ctx)
	if len(got) != len(want) {
		t.Fatalf("expected %d actions after restart, got %d", len(want), len(got))
	}
	for i, a := range got {
		if a.ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], a.ID)
		}
		if a.Resource != "evaluation_scores" || a.Kind != model.ActionInsert {
			t.Errorf("position %d: unexpected action %+v", i, a)
		}
		if id, _ := a.RecordID(); id != fmt.Sprintf("s-%d", i) {
			t.Errorf("position %d: payload id %q", i, id)
		}
	}
}

func TestDurableQueue_RemoveKeepsOrder(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	q := NewDurableQueue(kv)

	var ids []string
	for _, name := range []string{"a", "b", "c", "d"} {
		a, err := q.Enqueue(ctx, "academies", model.ActionUpdate, map[string]any{"id": name})
		if err != nil {
			t.Fatalf("enqueue %s: %v", name, err)
		}
		ids = append(ids, a.ID)
	}

	if err := q.Remove(ctx, []string{ids[0], ids[2], "unknown"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got := q.PeekAll(ctx)
	if len(got) != 2 || got[0].ID != ids[1] || got[1].ID != ids[3] {
		t.Fatalf("expected [%s %s], got %+v", ids[1], ids[3], got)
	}

	if err := q.Remove(ctx, []string{ids[1], ids[3]}); err != nil {
		t.Fatalf("remove rest: %v", err)
	}
	if _, err := kv.Get(ctx, DefaultKey); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected storage key to be dropped once empty, got %v", err)
	}
}

func TestDurableQueue_Validation(t *testing.T) {
	ctx := context.Background()
	q := NewDurableQueue(storage.NewMemory())

	cases := []struct {
		name     string
		resource string
		kind     model.ActionKind
		payload  map[string]any
		want     error
	}{
		{"empty resource", "", model.ActionInsert, nil, ErrEmptyResource},
		{"unknown kind", "academies", model.ActionKind("upsert"), nil, ErrInvalidKind},
		{"update without id", "academies", model.ActionUpdate, map[string]any{"name": "x"}, ErrMissingRecordID},
		{"delete with numeric id", "academies", model.ActionDelete, map[string]any{"id": 4}, ErrMissingRecordID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := q.Enqueue(ctx, tc.resource, tc.kind, tc.payload); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("rejected actions must not be queued, got %d", l)
	}
}

func TestDurableQueue_CorruptedStorage(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	if err := kv.Set(ctx, DefaultKey, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	q := NewDurableQueue(kv)

	if l := q.Len(ctx); l != 0 {
		t.Errorf("corrupted queue should read as empty, got %d", l)
	}
	if _, err := q.Enqueue(ctx, "evaluations", model.ActionInsert, map[string]any{"id": "e-1"}); err != nil {
		t.Fatalf("enqueue over corrupted data: %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected 1 action, got %d", l)
	}
	backup, err := kv.Get(ctx, DefaultKey+corruptSuffix)
	if err != nil {
		t.Fatalf("corrupted queue was not backed up: %v", err)
	}
	if string(backup) != "{not json" {
		t.Errorf("backup = %q, want original bytes", backup)
	}
}

// flakyReadKV fails the next n reads with a transient error.
type flakyReadKV struct {
	storage.KV
	mu    sync.Mutex
	fails int
}

func (f *flakyReadKV) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return nil, errors.New("i/o timeout")
	}
	f.mu.Unlock()
	return f.KV.Get(ctx, key)
}

func (f *flakyReadKV) failNext(n int) {
	f.mu.Lock()
	f.fails = n
	f.mu.Unlock()
}

func TestDurableQueue_ReadFailureKeepsStoredActions(t *testing.T) {
	ctx := context.Background()
	kv := &flakyReadKV{KV: storage.NewMemory()}
	q := NewDurableQueue(kv)
	var ids []string
	for i := 0; i < 3; i++ {
		a, err := q.Enqueue(ctx, "evaluations", model.ActionInsert, map[string]any{"id": fmt.Sprintf("e-%d", i)})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, a.ID)
	}

	kv.failNext(1)
	if _, err := q.Enqueue(ctx, "evaluations", model.ActionInsert, map[string]any{"id": "e-3"}); !errors.Is(err, ErrPersist) {
		t.Fatalf("enqueue on read failure: expected ErrPersist, got %v", err)
	}
	if l := q.Len(ctx); l != 3 {
		t.Fatalf("stored queue changed after read failure: got %d actions, want 3", l)
	}

	kv.failNext(1)
	if err := q.Remove(ctx, ids[:1]); !errors.Is(err, ErrPersist) {
		t.Fatalf("remove on read failure: expected ErrPersist, got %v", err)
	}
	if l := q.Len(ctx); l != 3 {
		t.Fatalf("stored queue changed after failed remove: got %d actions, want 3", l)
	}

	kv.failNext(1)
	if got := q.PeekAll(ctx); len(got) != 0 {
		t.Errorf("peek on read failure should report empty, got %d", len(got))
	}

	if _, err := q.Enqueue(ctx, "evaluations", model.ActionInsert, map[string]any{"id": "e-3"}); err != nil {
		t.Fatalf("enqueue after recovery: %v", err)
	}
	got := q.PeekAll(ctx)
	if len(got) != 4 {
		t.Fatalf("expected 4 actions after recovery, got %d", len(got))
	}
	for i, id := range ids {
		if got[i].ID != id {
			t.Errorf("action %d: id %s, want %s", i, got[i].ID, id)
		}
	}
}

type failingKV struct{ storage.KV }

func (failingKV) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func TestDurableQueue_PersistFailure(t *testing.T) {
	q := NewDurableQueue(failingKV{storage.NewMemory()})
	_, err := q.Enqueue(context.Background(), "evaluations", model.ActionInsert, nil)
	if !errors.Is(err, ErrPersist) {
		t.Errorf("expected ErrPersist, got %v", err)
	}
}

func TestDurableQueue_PayloadIsCopied(t *testing.T) {
	ctx := context.Background()
	q := NewDurableQueue(storage.NewMemory(), WithClock(func() time.Time {
		return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	}))
	payload := map[string]any{"id": "e-1"}
	a, err := q.Enqueue(ctx, "evaluations", model.ActionInsert, payload)
	if err != nil {
		t.Fatal(err)
	}
	payload["id"] = "changed"

	if id, _ := q.PeekAll(ctx)[0].RecordID(); id != "e-1" {
		t.Errorf("caller mutation leaked into the queue: %q", id)
	}
	if !a.Timestamp.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %v", a.Timestamp)
	}
}

func TestDurableQueue_ConcurrentEnqueue(t *testing.T) {
	ctx := context.Background()
	q := NewDurableQueue(storage.NewMemory())
	const producers, perProducer = 5, 20

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if _, err := q.Enqueue(ctx, "evaluation_scores", model.ActionInsert, map[string]any{"id": fmt.Sprintf("%d-%d", p, i)}); err != nil {
					t.Errorf("enqueue: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()

	if l := q.Len(ctx); l != producers*perProducer {
		t.Errorf("expected %d actions, got %d", producers*perProducer, l)
	}
}
