package rstore

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/reactive-kv/rkv/lib/store"
)

// --------------------------------------------------------------------------
// Subscription Registry
// --------------------------------------------------------------------------

// subscription is one registered Mapping plus the delivery memo the
// dispatcher keeps for change detection.
//
// Thread-safety: id, mapping and isCollection are immutable after
// creation. The memo fields (delivered, lastDerived, lastMembers,
// lastCollection) are owned by the dispatcher goroutine and must not be
// touched from anywhere else.
type subscription struct {
	id           store.ConnectionID
	mapping      store.Mapping
	isCollection bool

	// dispatcher-owned memos
	delivered      bool
	lastDerived    interface{}
	lastMembers    map[string]interface{}
	lastCollection map[string]interface{}
}

// registry holds the active subscriptions. Lookup structures are
// concurrency-safe; notification order is defined by ascending
// connection id, which equals registration order.
type registry struct {
	subs   *xsync.MapOf[uint64, *subscription]
	nextID atomic.Uint64
}

func newRegistry() *registry {
	return &registry{
		subs: xsync.NewMapOf[uint64, *subscription](),
	}
}

// add registers a mapping and returns the new subscription
func (r *registry) add(mapping store.Mapping, isCollection bool) *subscription {
	sub := &subscription{
		id:           store.ConnectionID(r.nextID.Add(1)),
		mapping:      mapping,
		isCollection: isCollection,
	}
	r.subs.Store(uint64(sub.id), sub)
	return sub
}

// remove drops a subscription. Idempotent.
func (r *registry) remove(id store.ConnectionID) {
	r.subs.Delete(uint64(id))
}

// active reports whether a subscription is still registered
func (r *registry) active(id store.ConnectionID) bool {
	_, ok := r.subs.Load(uint64(id))
	return ok
}

// size returns the number of active subscriptions
func (r *registry) size() int {
	return r.subs.Size()
}

// matches reports whether a subscription is interested in a key
func (s *subscription) matches(key string) bool {
	if s.isCollection {
		return strings.HasPrefix(key, s.mapping.Key)
	}
	return s.mapping.Key == key
}

// affected returns the subscriptions interested in at least one of the
// given keys, in registration order.
func (r *registry) affected(keys []string) []*subscription {
	var out []*subscription
	r.subs.Range(func(_ uint64, sub *subscription) bool {
		for _, key := range keys {
			if sub.matches(key) {
				out = append(out, sub)
				break
			}
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// all returns every subscription in registration order
func (r *registry) all() []*subscription {
	var out []*subscription
	r.subs.Range(func(_ uint64, sub *subscription) bool {
		out = append(out, sub)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
