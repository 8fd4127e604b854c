package rstore

import (
	"reflect"
	"sort"
	"strings"
	"sync"
)

// --------------------------------------------------------------------------
// Notification Scheduler
// --------------------------------------------------------------------------

// task is one unit of dispatcher work: either the initial notification
// pass for a freshly connected subscription, a change pass for a set of
// written keys, or a clear pass touching every subscription.
type task struct {
	sub   *subscription
	keys  []string
	clear bool
	done  func()
}

// scheduler owns notification delivery. All derived-value computation,
// change suppression and callback invocation happens on its single
// dispatcher goroutine, which establishes one global delivery order and
// makes the per-subscription memos race-free.
//
// Liveness is re-checked immediately before every delivery, so a
// Disconnect that races a scheduled notification always wins.
type scheduler struct {
	s       *storeImpl
	tasks   chan task
	stopped chan struct{}

	// mu serializes sends on tasks against shutdown's close. A send that
	// slipped past the store's closed flag would otherwise panic on the
	// closed channel.
	mu     sync.RWMutex
	closed bool
}

func newScheduler(s *storeImpl) *scheduler {
	sched := &scheduler{
		s:       s,
		tasks:   make(chan task, 1024),
		stopped: make(chan struct{}),
	}
	go sched.loop()
	return sched
}

func (sched *scheduler) loop() {
	defer close(sched.stopped)
	for t := range sched.tasks {
		sched.run(t)
		if t.done != nil {
			t.done()
		}
	}
}

// enqueue hands a task to the dispatcher and reports whether it was
// accepted. A shut-down scheduler rejects tasks; the caller must then
// release whatever it registered with the store's pending wait group.
func (sched *scheduler) enqueue(t task) bool {
	sched.mu.RLock()
	defer sched.mu.RUnlock()
	if sched.closed {
		return false
	}
	sched.tasks <- t
	return true
}

// shutdown stops the dispatcher after draining all queued tasks. The
// dispatcher keeps draining until the channel closes, so enqueuers
// holding the read lock cannot block shutdown indefinitely.
func (sched *scheduler) shutdown() {
	sched.mu.Lock()
	if sched.closed {
		sched.mu.Unlock()
		return
	}
	sched.closed = true
	close(sched.tasks)
	sched.mu.Unlock()
	<-sched.stopped
}

func (sched *scheduler) run(t task) {
	switch {
	case t.clear:
		for _, sub := range sched.s.registry.all() {
			sched.notify(sub, nil)
		}

	case t.sub != nil:
		sched.initial(t.sub)

	default:
		for _, sub := range sched.s.registry.affected(t.keys) {
			sched.notify(sub, t.keys)
		}
	}
}

// initial performs the one-time notification pass a new subscription
// receives on connect, reflecting current store state.
func (sched *scheduler) initial(sub *subscription) {
	if !sched.s.registry.active(sub.id) {
		return
	}

	if !sub.isCollection {
		value, loaded, err := sched.s.currentValue(sub.mapping.Key)
		if err != nil {
			sched.s.log.Warningf("initial notification for %q skipped: %v", sub.mapping.Key, err)
			return
		}
		derived, err := sub.mapping.Projection.Apply(value)
		if err != nil {
			sched.s.reportProjectionFailure(sub, err)
			return
		}
		sub.delivered = true
		sub.lastDerived = derived
		if !loaded {
			// no value yet: the subscriber still learns the absent state
			sched.deliver(sub, nil, "")
			return
		}
		sched.deliver(sub, derived, sub.mapping.Key)
		return
	}

	members, err := sched.s.collectionMemberKeys(sub.mapping.Key)
	if err != nil {
		sched.s.log.Warningf("initial notification for collection %q skipped: %v", sub.mapping.Key, err)
		return
	}

	if sub.mapping.WaitForCollectionCallback {
		snapshot, ok := sched.deriveCollection(sub, members)
		if !ok {
			return
		}
		sub.delivered = true
		sub.lastCollection = snapshot
		sched.deliverCollection(sub, snapshot)
		return
	}

	// per-member mode: one callback per member with a non-nil derived
	// value, none when the collection is empty
	sub.delivered = true
	sub.lastMembers = make(map[string]interface{})
	for _, member := range members {
		value, loaded, err := sched.s.currentValue(member)
		if err != nil || !loaded {
			continue
		}
		derived, err := sub.mapping.Projection.Apply(value)
		if err != nil {
			sched.s.reportProjectionFailure(sub, err)
			continue
		}
		if derived == nil {
			continue
		}
		sub.lastMembers[member] = derived
		sched.deliver(sub, derived, member)
	}
}

// notify performs one change pass for a subscription. changedKeys is nil
// for a clear pass, in which case every previously known member of a
// collection subscription is treated as changed.
func (sched *scheduler) notify(sub *subscription, changedKeys []string) {
	if !sched.s.registry.active(sub.id) {
		return
	}

	if !sub.isCollection {
		sched.notifySingle(sub)
		return
	}
	if sub.mapping.WaitForCollectionCallback {
		sched.notifyCollectionBatch(sub)
		return
	}
	sched.notifyCollectionMembers(sub, changedKeys)
}

func (sched *scheduler) notifySingle(sub *subscription) {
	value, _, err := sched.s.currentValue(sub.mapping.Key)
	if err != nil {
		sched.s.log.Warningf("notification for %q skipped: %v", sub.mapping.Key, err)
		return
	}
	derived, err := sub.mapping.Projection.Apply(value)
	if err != nil {
		sched.s.reportProjectionFailure(sub, err)
		return
	}

	if sub.delivered && reflect.DeepEqual(derived, sub.lastDerived) {
		notificationsSuppressed.Inc()
		return
	}
	sub.delivered = true
	sub.lastDerived = derived
	sched.deliver(sub, derived, sub.mapping.Key)
}

func (sched *scheduler) notifyCollectionBatch(sub *subscription) {
	members, err := sched.s.collectionMemberKeys(sub.mapping.Key)
	if err != nil {
		sched.s.log.Warningf("notification for collection %q skipped: %v", sub.mapping.Key, err)
		return
	}
	snapshot, ok := sched.deriveCollection(sub, members)
	if !ok {
		return
	}

	if sub.delivered && reflect.DeepEqual(snapshot, sub.lastCollection) {
		notificationsSuppressed.Inc()
		return
	}
	sub.delivered = true
	sub.lastCollection = snapshot
	sched.deliverCollection(sub, snapshot)
}

func (sched *scheduler) notifyCollectionMembers(sub *subscription, changedKeys []string) {
	var members []string
	if changedKeys == nil {
		// clear pass: every member the subscriber has seen is now gone
		for member := range sub.lastMembers {
			members = append(members, member)
		}
		sort.Strings(members)
	} else {
		for _, key := range changedKeys {
			if strings.HasPrefix(key, sub.mapping.Key) {
				members = append(members, key)
			}
		}
	}

	if sub.lastMembers == nil {
		sub.lastMembers = make(map[string]interface{})
	}
	sub.delivered = true

	for _, member := range members {
		value, _, err := sched.s.currentValue(member)
		if err != nil {
			sched.s.log.Warningf("notification for %q skipped: %v", member, err)
			continue
		}
		derived, err := sub.mapping.Projection.Apply(value)
		if err != nil {
			sched.s.reportProjectionFailure(sub, err)
			continue
		}

		// a member the subscriber never saw counts as nil, so a member
		// appearing with a nil derived value stays silent
		last := sub.lastMembers[member]
		if reflect.DeepEqual(derived, last) {
			notificationsSuppressed.Inc()
			continue
		}
		if derived == nil {
			delete(sub.lastMembers, member)
		} else {
			sub.lastMembers[member] = derived
		}
		sched.deliver(sub, derived, member)
	}
}

// deriveCollection projects every member of a collection into one
// snapshot map. Reports false if the projection failed for a member.
func (sched *scheduler) deriveCollection(sub *subscription, members []string) (map[string]interface{}, bool) {
	snapshot := make(map[string]interface{}, len(members))
	for _, member := range members {
		value, loaded, err := sched.s.currentValue(member)
		if err != nil || !loaded {
			continue
		}
		derived, err := sub.mapping.Projection.Apply(value)
		if err != nil {
			sched.s.reportProjectionFailure(sub, err)
			return nil, false
		}
		snapshot[member] = derived
	}
	return snapshot, true
}

// deliver invokes a subscription's per-value callback with a private
// copy of the derived value. Liveness is re-checked here so a racing
// Disconnect always wins.
func (sched *scheduler) deliver(sub *subscription, derived interface{}, key string) {
	if !sched.s.registry.active(sub.id) {
		return
	}
	if sub.mapping.Callback == nil {
		return
	}
	notificationsDelivered.Inc()
	sub.mapping.Callback(sched.s.copyValue(derived), key)
}

// deliverCollection invokes a subscription's whole-collection callback
// with private copies of all derived member values.
func (sched *scheduler) deliverCollection(sub *subscription, snapshot map[string]interface{}) {
	if !sched.s.registry.active(sub.id) {
		return
	}
	if sub.mapping.CollectionCallback == nil {
		return
	}
	out := make(map[string]interface{}, len(snapshot))
	for member, derived := range snapshot {
		out[member] = sched.s.copyValue(derived)
	}
	notificationsDelivered.Inc()
	sub.mapping.CollectionCallback(out)
}
