package reconciler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/certifica/internal/adapters/connectivity"
	"github.com/okian/certifica/internal/adapters/mq/queue"
	"github.com/okian/certifica/internal/adapters/mq/reconciler"
	"github.com/okian/certifica/internal/adapters/storage"
	"github.com/okian/certifica/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// mockSink records calls and fails for record ids listed in failIDs.
type mockSink struct {
	mu      sync.Mutex
	calls   []string
	failIDs map[string]bool
	onCall  func(id string)
	block   chan struct{}
	entered chan struct{}
}

func newMockSink() *mockSink {
	return &mockSink{failIDs: make(map[string]bool)}
}

func (m *mockSink) record(ctx context.Context, kind, id string) error {
	if m.entered != nil {
		select {
		case m.entered <- struct{}{}:
		default:
		}
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	m.calls = append(m.calls, kind+":"+id)
	fail := m.failIDs[id]
	hook := m.onCall
	m.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	if fail {
		return errors.New("remote rejected " + id)
	}
	return nil
}

func (m *mockSink) Insert(ctx context.Context, _ string, record map[string]any) error {
	id, _ := record["id"].(string)
	return m.record(ctx, "insert", id)
}

func (m *mockSink) Update(ctx context.Context, _, id string, _ map[string]any) error {
	return m.record(ctx, "update", id)
}

func (m *mockSink) Delete(ctx context.Context, _, id string) error {
	return m.record(ctx, "delete", id)
}

func (m *mockSink) setFail(id string, fail bool) {
	m.mu.Lock()
	m.failIDs[id] = fail
	m.mu.Unlock()
}

func (m *mockSink) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// flakyQueue fails Remove while failRemove is set.
type flakyQueue struct {
	*queue.DurableQueue
	failRemove bool
}

func (f *flakyQueue) Remove(ctx context.Context, ids []string) error {
	if f.failRemove {
		return errors.New("disk full")
	}
	return f.DurableQueue.Remove(ctx, ids)
}

func enqueue(ctx context.Context, q *queue.DurableQueue, kind model.ActionKind, id string) model.Action {
	a, err := q.Enqueue(ctx, "evaluations", kind, map[string]any{"id": id})
	So(err, ShouldBeNil)
	return a
}

func TestReconcile(t *testing.T) {
	Convey("Given a reconciler over a durable queue", t, func() {
		ctx := context.Background()
		q := queue.NewDurableQueue(storage.NewMemory())
		sink := newMockSink()
		conn := connectivity.NewSwitch(true)
		r := reconciler.New(q, sink, conn)

		Convey("When the queue is empty", func() {
			res := r.Reconcile(ctx)

			Convey("Then the pass is a successful no-op", func() {
				So(res.Success, ShouldBeTrue)
				So(res.Applied, ShouldEqual, 0)
				So(res.Remaining, ShouldBeEmpty)
				So(sink.callLog(), ShouldBeEmpty)
			})
		})

		Convey("When offline with queued actions", func() {
			enqueue(ctx, q, model.ActionInsert, "a")
			enqueue(ctx, q, model.ActionInsert, "b")
			conn.Set(false)
			res := r.Reconcile(ctx)

			Convey("Then nothing is attempted and the queue is untouched", func() {
				So(res.Success, ShouldBeFalse)
				So(res.Applied, ShouldEqual, 0)
				So(res.Remaining, ShouldHaveLength, 2)
				So(q.Len(ctx), ShouldEqual, 2)
				So(sink.callLog(), ShouldBeEmpty)
			})
		})

		Convey("When A, B and C are queued and B fails", func() {
			enqueue(ctx, q, model.ActionInsert, "A")
			b := enqueue(ctx, q, model.ActionUpdate, "B")
			enqueue(ctx, q, model.ActionDelete, "C")
			sink.setFail("B", true)

			res := r.Reconcile(ctx)

			Convey("Then A and C are applied in order and only B stays queued", func() {
				So(sink.callLog(), ShouldResemble, []string{"insert:A", "update:B", "delete:C"})
				So(res.Success, ShouldBeFalse)
				So(res.Applied, ShouldEqual, 2)
				So(res.Failed, ShouldEqual, 1)
				So(res.Total, ShouldEqual, 3)
				So(res.Remaining, ShouldHaveLength, 1)
				So(res.Remaining[0].ID, ShouldEqual, b.ID)

				persisted := q.PeekAll(ctx)
				So(persisted, ShouldHaveLength, 1)
				So(persisted[0].ID, ShouldEqual, b.ID)
			})

			Convey("And B succeeds on the next pass", func() {
				sink.setFail("B", false)
				again := r.Reconcile(ctx)

				Convey("Then only B is re-sent and the queue drains", func() {
					So(again.Success, ShouldBeTrue)
					So(again.Applied, ShouldEqual, 1)
					So(sink.callLog(), ShouldResemble, []string{"insert:A", "update:B", "delete:C", "update:B"})
					So(q.Len(ctx), ShouldEqual, 0)
				})
			})
		})

		Convey("When connectivity drops mid-pass", func() {
			enqueue(ctx, q, model.ActionInsert, "first")
			enqueue(ctx, q, model.ActionInsert, "second")
			enqueue(ctx, q, model.ActionInsert, "third")
			sink.onCall = func(string) { conn.Set(false) }

			res := r.Reconcile(ctx)

			Convey("Then the actions not yet attempted stay queued", func() {
				So(sink.callLog(), ShouldResemble, []string{"insert:first"})
				So(res.Applied, ShouldEqual, 1)
				So(res.Success, ShouldBeFalse)
				So(res.Remaining, ShouldHaveLength, 2)
			})
		})

		Convey("When the context is already canceled", func() {
			enqueue(ctx, q, model.ActionInsert, "a")
			canceled, cancel := context.WithCancel(ctx)
			cancel()

			res := r.Reconcile(canceled)

			Convey("Then nothing is attempted", func() {
				So(sink.callLog(), ShouldBeEmpty)
				So(res.Success, ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 1)
			})
		})
	})
}

func TestReconcileGuards(t *testing.T) {
	Convey("Given a queue whose removal fails once", t, func() {
		ctx := context.Background()
		q := &flakyQueue{DurableQueue: queue.NewDurableQueue(storage.NewMemory()), failRemove: true}
		sink := newMockSink()
		r := reconciler.New(q, sink, connectivity.NewSwitch(true))
		enqueue(ctx, q.DurableQueue, model.ActionInsert, "a")

		first := r.Reconcile(ctx)
		So(first.Success, ShouldBeFalse)
		So(first.Remaining, ShouldHaveLength, 1)

		Convey("When the next pass runs with storage healthy", func() {
			q.failRemove = false
			second := r.Reconcile(ctx)

			Convey("Then the confirmed action is dropped without being re-sent", func() {
				So(second.Success, ShouldBeTrue)
				So(second.Applied, ShouldEqual, 1)
				So(sink.callLog(), ShouldResemble, []string{"insert:a"})
			})
		})
	})

	Convey("Given a remote call that never returns", t, func() {
		ctx := context.Background()
		q := queue.NewDurableQueue(storage.NewMemory())
		sink := newMockSink()
		sink.block = make(chan struct{})
		r := reconciler.New(q, sink, connectivity.NewSwitch(true), reconciler.WithActionTimeout(20*time.Millisecond))
		enqueue(ctx, q, model.ActionInsert, "slow")
		enqueue(ctx, q, model.ActionInsert, "also-slow")

		res := r.Reconcile(ctx)

		Convey("Then each action times out and the pass still terminates", func() {
			So(res.Failed, ShouldEqual, 2)
			So(res.Applied, ShouldEqual, 0)
			So(q.Len(ctx), ShouldEqual, 2)
		})
	})

	Convey("Given overlapping reconcile calls", t, func() {
		ctx := context.Background()
		q := queue.NewDurableQueue(storage.NewMemory())
		sink := newMockSink()
		sink.block = make(chan struct{})
		sink.entered = make(chan struct{}, 1)
		r := reconciler.New(q, sink, connectivity.NewSwitch(true))
		enqueue(ctx, q, model.ActionInsert, "once")

		var wg sync.WaitGroup
		results := make([]reconciler.Result, 2)
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[0] = r.Reconcile(ctx)
		}()
		<-sink.entered
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[1] = r.Reconcile(ctx)
		}()
		time.Sleep(20 * time.Millisecond)
		close(sink.block)
		wg.Wait()

		Convey("Then the action is sent exactly once", func() {
			So(sink.callLog(), ShouldResemble, []string{"insert:once"})
			So(results[0].Success, ShouldBeTrue)
			So(results[1].Success, ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 0)
		})
	})
}

func TestReconcileOutlivesCaller(t *testing.T) {
	Convey("Given a pass started by a caller that gives up", t, func() {
		ctx := context.Background()
		q := queue.NewDurableQueue(storage.NewMemory())
		sink := newMockSink()
		sink.block = make(chan struct{})
		sink.entered = make(chan struct{}, 1)
		r := reconciler.New(q, sink, connectivity.NewSwitch(true))
		enqueue(ctx, q, model.ActionInsert, "a")
		enqueue(ctx, q, model.ActionInsert, "b")

		callerCtx, cancel := context.WithCancel(ctx)
		first := make(chan reconciler.Result, 1)
		go func() { first <- r.Reconcile(callerCtx) }()
		<-sink.entered

		joined := make(chan reconciler.Result, 1)
		go func() { joined <- r.Reconcile(ctx) }()
		time.Sleep(20 * time.Millisecond)
		cancel()

		var abandoned reconciler.Result
		select {
		case abandoned = <-first:
		case <-time.After(2 * time.Second):
		}
		close(sink.block)

		var full reconciler.Result
		select {
		case full = <-joined:
		case <-time.After(2 * time.Second):
		}

		Convey("Then the canceled caller returns with the queue as it stood", func() {
			So(abandoned.Success, ShouldBeFalse)
			So(abandoned.Remaining, ShouldHaveLength, 2)
		})

		Convey("Then the pass finishes for the caller still waiting", func() {
			So(full.Success, ShouldBeTrue)
			So(full.Applied, ShouldEqual, 2)
			So(sink.callLog(), ShouldResemble, []string{"insert:a", "insert:b"})
			So(q.Len(ctx), ShouldEqual, 0)
		})
	})

	Convey("Given a pass stuck on the remote store", t, func() {
		ctx := context.Background()
		q := queue.NewDurableQueue(storage.NewMemory())
		sink := newMockSink()
		sink.block = make(chan struct{})
		sink.entered = make(chan struct{}, 1)
		r := reconciler.New(q, sink, connectivity.NewSwitch(true))
		enqueue(ctx, q, model.ActionInsert, "stuck")
		enqueue(ctx, q, model.ActionInsert, "never")
		go r.Run(ctx)
		r.Trigger()
		<-sink.entered

		Convey("When shutdown runs out of time", func() {
			shutdownCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			err := r.Shutdown(shutdownCtx)

			Convey("Then the pass is canceled and nothing is applied", func() {
				So(err, ShouldNotBeNil)
				res := r.Reconcile(ctx)
				So(res.Success, ShouldBeFalse)
				So(res.Remaining, ShouldHaveLength, 2)
				So(sink.callLog(), ShouldBeEmpty)
			})
		})
	})
}

func TestRunLoop(t *testing.T) {
	Convey("Given a running reconciler", t, func() {
		ctx := context.Background()
		q := queue.NewDurableQueue(storage.NewMemory())
		sink := newMockSink()
		r := reconciler.New(q, sink, connectivity.NewSwitch(true))
		go r.Run(ctx)

		Convey("When triggered", func() {
			enqueue(ctx, q, model.ActionInsert, "triggered")
			r.Trigger()
			r.Trigger()

			Convey("Then the queue drains in the background", func() {
				deadline := time.Now().Add(2 * time.Second)
				for q.Len(ctx) > 0 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				So(q.Len(ctx), ShouldEqual, 0)
				So(r.Shutdown(ctx), ShouldBeNil)
			})
		})

		Convey("When shut down", func() {
			So(r.Shutdown(ctx), ShouldBeNil)
		})
	})
}
