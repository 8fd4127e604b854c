package rstore

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reactive-kv/rkv/lib/backend"
	"github.com/reactive-kv/rkv/lib/backend/membed"
	"github.com/reactive-kv/rkv/lib/store"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func newTestStore(t *testing.T, options *Options) store.IStore {
	t.Helper()
	s := NewReactiveStore(func() backend.IBackend {
		return membed.NewMembedBackend(membed.DefaultOptions())
	}, options)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func obj(pairs ...interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out[pairs[i].(string)] = pairs[i+1]
	}
	return out
}

// call is one recorded callback invocation
type call struct {
	value interface{}
	key   string
}

// recorder collects callback invocations in delivery order
type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) callback(value interface{}, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{value: value, key: key})
}

func (r *recorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// --------------------------------------------------------------------------
// Reads and Writes
// --------------------------------------------------------------------------

func TestSetAndGet(t *testing.T) {
	s := newTestStore(t, nil)

	if err := s.Set("test", obj("a", "one", "n", 1)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, loaded, err := s.Get("test")
	if err != nil || !loaded {
		t.Fatalf("Get failed: loaded=%v err=%v", loaded, err)
	}

	// numbers come back in canonical decoded form
	want := obj("a", "one", "n", float64(1))
	if !reflect.DeepEqual(value, want) {
		t.Errorf("Get() = %v, want %v", value, want)
	}
}

func TestGetReturnsPrivateCopy(t *testing.T) {
	s := newTestStore(t, nil)

	if err := s.Set("test", obj("a", "one")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, _, err := s.Get("test")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	value.(map[string]interface{})["a"] = "mutated"

	again, _, _ := s.Get("test")
	if again.(map[string]interface{})["a"] != "one" {
		t.Error("mutating a returned value leaked into store state")
	}
}

func TestGetAbsentKey(t *testing.T) {
	s := newTestStore(t, nil)

	value, loaded, err := s.Get("missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded || value != nil {
		t.Errorf("absent key should yield (nil, false), got (%v, %v)", value, loaded)
	}
}

func TestSetNilRemovesKey(t *testing.T) {
	s := newTestStore(t, nil)

	if err := s.Set("test", obj("a", "one")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set("test", nil); err != nil {
		t.Fatalf("Set(nil) failed: %v", err)
	}

	_, loaded, err := s.Get("test")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded {
		t.Error("key should be removed after Set(key, nil)")
	}
}

func TestMergeDeepMerges(t *testing.T) {
	s := newTestStore(t, nil)

	if err := s.Set("test", obj("a", obj("b", "one"), "c", "two")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Merge("test", obj("a", obj("d", "three"))); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	value, _, err := s.Get("test")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := obj("a", obj("b", "one", "d", "three"), "c", "two")
	if !reflect.DeepEqual(value, want) {
		t.Errorf("merged value = %v, want %v", value, want)
	}
}

func TestMergeOntoAbsentKey(t *testing.T) {
	s := newTestStore(t, nil)

	if err := s.Merge("test", obj("a", "one")); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	value, loaded, err := s.Get("test")
	if err != nil || !loaded {
		t.Fatalf("Get failed: loaded=%v err=%v", loaded, err)
	}
	if !reflect.DeepEqual(value, obj("a", "one")) {
		t.Errorf("merge onto absent key = %v, want %v", value, obj("a", "one"))
	}
}

func TestMergeNullRemovesProperty(t *testing.T) {
	s := newTestStore(t, nil)

	if err := s.Set("test", obj("a", "one", "b", "two")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Merge("test", obj("b", nil)); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	value, _, err := s.Get("test")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(value, obj("a", "one")) {
		t.Errorf("null delta should remove the property, got %v", value)
	}
}

func TestGetAllKeys(t *testing.T) {
	s := newTestStore(t, nil)

	for _, key := range []string{"b", "a", "c"} {
		if err := s.Set(key, obj("v", key)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	keys, err := s.GetAllKeys()
	if err != nil {
		t.Fatalf("GetAllKeys failed: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"a", "b", "c"}) {
		t.Errorf("GetAllKeys() = %v, want [a b c]", keys)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	s := newTestStore(t, nil)

	for _, key := range []string{"a", "b"} {
		if err := s.Set(key, obj("v", key)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	keys, err := s.GetAllKeys()
	if err != nil {
		t.Fatalf("GetAllKeys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("store should be empty after Clear, got keys %v", keys)
	}
}

func TestGetBackendInfo(t *testing.T) {
	s := newTestStore(t, nil)

	if err := s.Set("test", obj("a", "one")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	info, err := s.GetBackendInfo()
	if err != nil {
		t.Fatalf("GetBackendInfo failed: %v", err)
	}
	if info.KeyCount != 1 {
		t.Errorf("KeyCount = %d, want 1", info.KeyCount)
	}
	if info.BackendType != backend.ImplMembed {
		t.Errorf("BackendType = %q, want %q", info.BackendType, backend.ImplMembed)
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s := newTestStore(t, nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err := s.Set("test", obj("a", "one"))
	storeErr, ok := err.(*store.Error)
	if !ok || storeErr.Code != store.RetCStoreClosed {
		t.Errorf("expected RetCStoreClosed, got %v", err)
	}

	if _, err := s.Connect(store.Mapping{Key: "test", Callback: func(interface{}, string) {}}); err == nil {
		t.Error("Connect on a closed store should fail")
	}
}

// --------------------------------------------------------------------------
// Storage Failure
// --------------------------------------------------------------------------

// flakyBackend delegates to a real backend but can be switched into a
// mode where every write fails.
type flakyBackend struct {
	backend.IBackend
	failWrites atomic.Bool
}

func (f *flakyBackend) Set(ctx context.Context, key string, value []byte) error {
	if f.failWrites.Load() {
		return errors.New("disk full")
	}
	return f.IBackend.Set(ctx, key, value)
}

func (f *flakyBackend) Remove(ctx context.Context, key string) error {
	if f.failWrites.Load() {
		return errors.New("disk full")
	}
	return f.IBackend.Remove(ctx, key)
}

func TestStorageFailureRollsBackAndStaysSilent(t *testing.T) {
	flaky := &flakyBackend{IBackend: membed.NewMembedBackend(membed.DefaultOptions())}
	s := NewReactiveStore(func() backend.IBackend { return flaky }, nil)
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Set("test", obj("a", "one")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	rec := &recorder{}
	if _, err := s.Connect(store.Mapping{Key: "test", Callback: rec.callback}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	s.Settle()
	before := rec.count()

	flaky.failWrites.Store(true)
	err := s.Set("test", obj("a", "two"))
	storeErr, ok := err.(*store.Error)
	if !ok || storeErr.Code != store.RetCStorageFailure {
		t.Fatalf("expected RetCStorageFailure, got %v", err)
	}

	// rejected write must not be observable
	value, _, err := s.Get("test")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(value, obj("a", "one")) {
		t.Errorf("failed write leaked into store state: %v", value)
	}

	s.Settle()
	if rec.count() != before {
		t.Errorf("failed write must not notify, got %d extra calls", rec.count()-before)
	}
}

// --------------------------------------------------------------------------
// Write Coalescing
// --------------------------------------------------------------------------

// gatedBackend blocks writes until released, to hold a flush in flight
// while more writes queue up behind it.
type gatedBackend struct {
	backend.IBackend
	entered chan struct{}
	release chan struct{}
	sets    atomic.Int64
}

func (g *gatedBackend) Set(ctx context.Context, key string, value []byte) error {
	g.entered <- struct{}{}
	<-g.release
	g.sets.Add(1)
	return g.IBackend.Set(ctx, key, value)
}

func TestMergesCoalesceWhileFlushInFlight(t *testing.T) {
	gated := &gatedBackend{
		IBackend: membed.NewMembedBackend(membed.DefaultOptions()),
		entered:  make(chan struct{}, 8),
		release:  make(chan struct{}),
	}
	s := NewReactiveStore(func() backend.IBackend { return gated }, nil)

	var wg sync.WaitGroup
	mergeAsync := func(delta map[string]interface{}) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Merge("test", delta); err != nil {
				t.Errorf("Merge failed: %v", err)
			}
		}()
	}

	mergeAsync(obj("a", "one"))
	// first flush is now blocked inside the backend
	<-gated.entered

	mergeAsync(obj("b", "two"))
	mergeAsync(obj("c", nil))

	// release all flushes; entered is buffered so later flushes never block
	close(gated.release)
	go func() {
		for range gated.entered {
		}
	}()
	wg.Wait()
	s.Settle()

	value, _, err := s.Get("test")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got := value.(map[string]interface{})
	if got["a"] != "one" || got["b"] != "two" {
		t.Errorf("coalesced result = %v, want a=one b=two", got)
	}
	if _, ok := got["c"]; ok {
		t.Errorf("nil delete marker was lost in coalescing: %v", got)
	}

	_ = s.Close()
	close(gated.entered)
}

func TestCoalescedDeleteThenMergeDropsStaleKeys(t *testing.T) {
	gated := &gatedBackend{
		IBackend: membed.NewMembedBackend(membed.DefaultOptions()),
		entered:  make(chan struct{}, 8),
		release:  make(chan struct{}),
	}
	s := NewReactiveStore(func() backend.IBackend { return gated }, nil)
	impl := s.(*storeImpl)

	var wg sync.WaitGroup
	mergeAsync := func(delta map[string]interface{}) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Merge("test", delta); err != nil {
				t.Errorf("Merge failed: %v", err)
			}
		}()
	}

	// first flush persists {a:{c:two}} and blocks inside the backend
	mergeAsync(obj("a", obj("c", "two")))
	<-gated.entered

	// queue a delete of the subtree, then a nested merge on top of it;
	// both coalesce into the second flush. The enqueue order matters, so
	// wait for each batch state before issuing the next write.
	mergeAsync(obj("a", nil))
	waitForPending(t, impl, "test", func(b *pendingBatch) bool {
		delta, ok := b.delta.(map[string]interface{})
		if !ok {
			return false
		}
		v, present := delta["a"]
		return present && v == nil
	})
	mergeAsync(obj("a", obj("b", "one")))
	waitForPending(t, impl, "test", func(b *pendingBatch) bool {
		delta, ok := b.delta.(map[string]interface{})
		return ok && delta["a"] != nil
	})

	close(gated.release)
	go func() {
		for range gated.entered {
		}
	}()
	wg.Wait()
	s.Settle()

	value, _, err := s.Get("test")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	// the coalesced delete must drop the old subtree; c must not survive
	want := obj("a", obj("b", "one"))
	if !reflect.DeepEqual(value, want) {
		t.Errorf("coalesced result = %v, want %v", value, want)
	}

	_ = s.Close()
	close(gated.entered)
}

// waitForPending spins until the key's write queue holds a pending batch
// matching the predicate.
func waitForPending(t *testing.T, s *storeImpl, key string, match func(*pendingBatch) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if q, found := s.queues.Load(key); found {
			q.mu.Lock()
			ok := q.pending != nil && match(q.pending)
			q.mu.Unlock()
			if ok {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for pending batch")
}

func TestNotifyAfterCloseIsDropped(t *testing.T) {
	s := newTestStore(t, nil).(*storeImpl)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// a notification slipping past the closed flag must neither panic on
	// the shut-down scheduler nor leave the pending wait group unbalanced
	s.scheduleNotify([]string{"test"})
	s.Settle()

	if s.sched.enqueue(task{keys: []string{"test"}}) {
		t.Error("shut-down scheduler accepted a task")
	}
}

func TestConcurrentWritersSequentialResult(t *testing.T) {
	s := newTestStore(t, nil)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%4))
			if err := s.Merge(key, obj("w", n)); err != nil {
				t.Errorf("Merge failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	s.Settle()

	keys, err := s.GetAllKeys()
	if err != nil {
		t.Fatalf("GetAllKeys failed: %v", err)
	}
	if len(keys) != 4 {
		t.Errorf("expected 4 keys, got %v", keys)
	}
}
