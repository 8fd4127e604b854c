package rstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/brunoga/deep"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/reactive-kv/rkv/lib/backend"
	"github.com/reactive-kv/rkv/lib/logger"
	"github.com/reactive-kv/rkv/lib/merge"
	"github.com/reactive-kv/rkv/lib/serializer"
	"github.com/reactive-kv/rkv/lib/store"
)

var log = logger.GetLogger("rstore")

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

var (
	writesSet             = metrics.GetOrCreateCounter(`rkv_writes_total{op="set"}`)
	writesMerge           = metrics.GetOrCreateCounter(`rkv_writes_total{op="merge"}`)
	writesMergeCollection = metrics.GetOrCreateCounter(`rkv_writes_total{op="merge_collection"}`)

	storageFailures = metrics.GetOrCreateCounter(`rkv_storage_failures_total`)

	notificationsDelivered  = metrics.GetOrCreateCounter(`rkv_notifications_delivered_total`)
	notificationsSuppressed = metrics.GetOrCreateCounter(`rkv_notifications_suppressed_total`)
	projectionFailures      = metrics.GetOrCreateCounter(`rkv_projection_failures_total`)
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a reactive store
type Options struct {
	// Collections lists the key prefixes treated as collections. Any key
	// starting with one of these prefixes is a member of that collection.
	Collections []string

	// Serializer canonicalizes values on write and persists them to the
	// backend. Defaults to JSON.
	Serializer serializer.ISerializer

	// OnProjectionError is invoked whenever a selector or reducer fails
	// for a subscription during a notification pass. The triggering write
	// is still applied; only the failing subscription is skipped.
	// Called from the dispatcher goroutine.
	OnProjectionError func(id store.ConnectionID, key string, err error)
}

// DefaultOptions returns the default store configuration
func DefaultOptions() *Options {
	return &Options{
		Serializer: serializer.NewJSONSerializer(),
	}
}

// --------------------------------------------------------------------------
// Store Implementation
// --------------------------------------------------------------------------

// storeImpl is the single-process reactive store. It combines a
// persistence backend, an in-memory cache, per-key write queues, a
// subscription registry and a notification scheduler.
//
// Thread-safety: all IStore methods are safe for concurrent use.
// Per-key ordering is guaranteed by the write queues, the global
// delivery order by the scheduler's dispatcher goroutine.
type storeImpl struct {
	backend     backend.IBackend
	codec       serializer.ISerializer
	collections []string

	cache    *cache
	registry *registry
	sched    *scheduler
	queues   *xsync.MapOf[string, *writeQueue]

	// mu is held read-side by every write batch; Clear takes it
	// exclusively so no partially-cleared state is observable
	mu      sync.RWMutex
	closed  atomic.Bool
	pending sync.WaitGroup

	onProjectionError func(id store.ConnectionID, key string, err error)
	log               logger.ILogger
}

// NewReactiveStore creates a reactive store on top of the backend
// produced by the given factory.
func NewReactiveStore(factory backend.Factory, options *Options) store.IStore {
	if options == nil {
		options = DefaultOptions()
	}
	codec := options.Serializer
	if codec == nil {
		codec = serializer.NewJSONSerializer()
	}

	s := &storeImpl{
		backend:           factory(),
		codec:             codec,
		collections:       append([]string(nil), options.Collections...),
		cache:             newCache(),
		registry:          newRegistry(),
		queues:            xsync.NewMapOf[string, *writeQueue](),
		onProjectionError: options.OnProjectionError,
		log:               log,
	}
	s.sched = newScheduler(s)
	return s
}

// --------------------------------------------------------------------------
// Subscriptions
// --------------------------------------------------------------------------

func (s *storeImpl) Connect(mapping store.Mapping) (store.ConnectionID, error) {
	if s.closed.Load() {
		return 0, store.NewError(store.RetCStoreClosed, "store is closed")
	}
	if mapping.Key == "" {
		return 0, store.NewError(store.RetCInternalError, "mapping key must not be empty")
	}

	isCollection := s.isCollection(mapping.Key)
	if mapping.WaitForCollectionCallback {
		if !isCollection {
			return 0, store.NewError(store.RetCInternalError,
				fmt.Sprintf("WaitForCollectionCallback requires a configured collection prefix, %q is none", mapping.Key))
		}
		if mapping.CollectionCallback == nil {
			return 0, store.NewError(store.RetCInternalError, "WaitForCollectionCallback requires a CollectionCallback")
		}
	} else if mapping.Callback == nil {
		return 0, store.NewError(store.RetCInternalError, "mapping requires a Callback")
	}

	sub := s.registry.add(mapping, isCollection)

	// exactly one initial notification pass against current state
	s.schedule(task{sub: sub})

	return sub.id, nil
}

func (s *storeImpl) Disconnect(id store.ConnectionID) {
	s.registry.remove(id)
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key string) (interface{}, bool, error) {
	if s.closed.Load() {
		return nil, false, store.NewError(store.RetCStoreClosed, "store is closed")
	}
	value, loaded, err := s.currentValue(key)
	if err != nil {
		return nil, false, err
	}
	return s.copyValue(value), loaded, nil
}

func (s *storeImpl) GetAllKeys() ([]string, error) {
	if s.closed.Load() {
		return nil, store.NewError(store.RetCStoreClosed, "store is closed")
	}
	keys, err := s.backend.GetAllKeys(context.Background())
	if err != nil {
		return nil, store.NewError(store.RetCStorageFailure, err.Error())
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *storeImpl) GetBackendInfo() (backend.BackendInfo, error) {
	if s.closed.Load() {
		return backend.BackendInfo{}, store.NewError(store.RetCStoreClosed, "store is closed")
	}
	return s.backend.GetInfo(), nil
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value interface{}) error {
	if s.closed.Load() {
		return store.NewError(store.RetCStoreClosed, "store is closed")
	}
	writesSet.Inc()

	canonical, err := s.canonicalize(value)
	if err != nil {
		return err
	}
	op := opSet
	if canonical == nil {
		op = opRemove
	}
	return s.submit(key, op, canonical, false)
}

func (s *storeImpl) Merge(key string, delta interface{}) error {
	if s.closed.Load() {
		return store.NewError(store.RetCStoreClosed, "store is closed")
	}
	writesMerge.Inc()

	if delta == nil {
		return nil
	}
	canonical, err := s.canonicalize(delta)
	if err != nil {
		return err
	}
	return s.submit(key, opMerge, canonical, false)
}

func (s *storeImpl) MergeCollection(prefix string, deltas map[string]interface{}) error {
	if s.closed.Load() {
		return store.NewError(store.RetCStoreClosed, "store is closed")
	}
	writesMergeCollection.Inc()

	if !s.isCollection(prefix) {
		return store.NewError(store.RetCInvalidCollectionMember,
			fmt.Sprintf("%q is not a configured collection prefix", prefix))
	}

	// validate and canonicalize every member before mutating anything
	keys := make([]string, 0, len(deltas))
	canonical := make(map[string]interface{}, len(deltas))
	for key, delta := range deltas {
		if !strings.HasPrefix(key, prefix) {
			return store.NewError(store.RetCInvalidCollectionMember,
				fmt.Sprintf("member key %q does not start with collection prefix %q", key, prefix))
		}
		if delta == nil {
			continue
		}
		value, err := s.canonicalize(delta)
		if err != nil {
			return err
		}
		keys = append(keys, key)
		canonical[key] = value
	}
	sort.Strings(keys)

	var applyErr error
	changed := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := s.submit(key, opMerge, canonical[key], true); err != nil {
			applyErr = err
			break
		}
		changed = append(changed, key)
	}

	// one notification pass for the whole batch
	if len(changed) > 0 {
		s.scheduleNotify(changed)
	}
	return applyErr
}

func (s *storeImpl) Clear() error {
	if s.closed.Load() {
		return store.NewError(store.RetCStoreClosed, "store is closed")
	}

	s.mu.Lock()
	ctx := context.Background()
	keys, err := s.backend.GetAllKeys(ctx)
	if err != nil {
		s.mu.Unlock()
		return store.NewError(store.RetCStorageFailure, err.Error())
	}
	for _, key := range keys {
		if err := s.backend.Remove(ctx, key); err != nil {
			s.mu.Unlock()
			storageFailures.Inc()
			return store.NewError(store.RetCStorageFailure, err.Error())
		}
	}
	s.cache.clear()
	s.mu.Unlock()

	s.schedule(task{clear: true})
	return nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Settle blocks until every scheduled notification has been delivered or
// cancelled. Writes block their caller until persisted, so after all
// write calls have returned, Settle establishes full quiescence.
func (s *storeImpl) Settle() {
	s.pending.Wait()
}

// Close shuts the store down. Pending notifications are drained first.
// A Connect or write racing Close may find its notification dropped by
// the shut-down scheduler, but never panics; the backend must not be
// written to after Close returns.
func (s *storeImpl) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.pending.Wait()
	s.sched.shutdown()
	if err := s.backend.Close(); err != nil {
		return store.NewError(store.RetCStorageFailure, err.Error())
	}
	return nil
}

// --------------------------------------------------------------------------
// Internals
// --------------------------------------------------------------------------

// submit routes a write through the key's queue and blocks until the
// batch containing it is persisted.
func (s *storeImpl) submit(key string, op opKind, delta interface{}, quiet bool) error {
	q, _ := s.queues.LoadOrCompute(key, func() *writeQueue {
		return &writeQueue{}
	})
	batch := q.enqueue(s, key, op, delta, quiet)
	<-batch.done
	return batch.err
}

// applyBatch persists one coalesced batch for a key. The cache is only
// touched after the backend accepted the write, so a storage failure
// leaves the store state untouched.
func (s *storeImpl) applyBatch(key string, batch *pendingBatch) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()

	var newValue interface{}
	switch batch.op {
	case opSet:
		newValue = batch.delta
	case opRemove:
		newValue = nil
	case opMerge:
		current, _, err := s.currentValue(key)
		if err != nil {
			return err
		}
		newValue = merge.Merge(current, batch.delta)
	}

	if newValue == nil {
		if err := s.backend.Remove(ctx, key); err != nil {
			storageFailures.Inc()
			return store.NewError(store.RetCStorageFailure, err.Error())
		}
		s.cache.drop(key)
	} else {
		data, err := s.codec.Serialize(newValue)
		if err != nil {
			return store.NewError(store.RetCInternalError, err.Error())
		}
		if err := s.backend.Set(ctx, key, data); err != nil {
			storageFailures.Inc()
			return store.NewError(store.RetCStorageFailure, err.Error())
		}
		s.cache.put(key, newValue)
	}

	if !batch.quiet {
		s.scheduleNotify([]string{key})
	}
	return nil
}

func (s *storeImpl) scheduleNotify(keys []string) {
	s.schedule(task{keys: keys})
}

// schedule registers a task with the pending wait group and hands it to
// the dispatcher. A caller that slipped past the closed flag while Close
// shuts the scheduler down gets its task dropped instead of panicking on
// the closed channel; the wait group is balanced either way.
func (s *storeImpl) schedule(t task) {
	s.pending.Add(1)
	t.done = s.pending.Done
	if !s.sched.enqueue(t) {
		s.pending.Done()
	}
}

// canonicalize round-trips a value through the configured serializer so
// cached values, merge inputs and change detection all operate on the
// exact representation a reader of the backend would decode.
func (s *storeImpl) canonicalize(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	data, err := s.codec.Serialize(value)
	if err != nil {
		return nil, store.NewError(store.RetCInternalError,
			fmt.Sprintf("value is not serializable: %v", err))
	}
	var out interface{}
	if err := s.codec.Deserialize(data, &out); err != nil {
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}
	return out, nil
}

// currentValue returns the decoded value for a key, reading through the
// cache to the backend on a miss.
func (s *storeImpl) currentValue(key string) (interface{}, bool, error) {
	return s.cache.readThrough(context.Background(), key, s.loadFromBackend)
}

func (s *storeImpl) loadFromBackend(ctx context.Context, key string) (interface{}, bool, error) {
	data, loaded, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, false, store.NewError(store.RetCStorageFailure, err.Error())
	}
	if !loaded {
		return nil, false, nil
	}
	var value interface{}
	if err := s.codec.Deserialize(data, &value); err != nil {
		return nil, false, store.NewError(store.RetCInternalError, err.Error())
	}
	return value, true, nil
}

// collectionMemberKeys returns the sorted member keys of a collection
func (s *storeImpl) collectionMemberKeys(prefix string) ([]string, error) {
	keys, err := s.backend.GetAllKeys(context.Background())
	if err != nil {
		return nil, store.NewError(store.RetCStorageFailure, err.Error())
	}
	var members []string
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			members = append(members, key)
		}
	}
	sort.Strings(members)
	return members, nil
}

// isCollection reports whether key is a configured collection prefix
func (s *storeImpl) isCollection(key string) bool {
	for _, prefix := range s.collections {
		if key == prefix {
			return true
		}
	}
	return false
}

// copyValue hands out a private deep copy so callers can never mutate
// store state through a returned or delivered value.
func (s *storeImpl) copyValue(value interface{}) interface{} {
	if value == nil {
		return nil
	}
	copied, err := deep.Copy(value)
	if err != nil {
		s.log.Warningf("deep copy failed, handing out shared value: %v", err)
		return value
	}
	return copied
}

func (s *storeImpl) reportProjectionFailure(sub *subscription, err error) {
	projectionFailures.Inc()
	s.log.Warningf("projection failed for subscription %d on %q: %v", sub.id, sub.mapping.Key, err)
	if s.onProjectionError != nil {
		s.onProjectionError(sub.id, sub.mapping.Key, err)
	}
}
