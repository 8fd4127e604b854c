// Package rstore provides the single-process reactive implementation of
// the store.IStore interface.
//
// Architecture:
//
//   - Write path: every write is canonicalized through the configured
//     serializer, routed through a per-key queue and persisted to the
//     backend. Writes issued while a persistence round-trip for the same
//     key is in flight coalesce into one batch; merge deltas are combined
//     so the batched result equals sequential application. The in-memory
//     cache is only updated after the backend accepted the write.
//
//   - Notification path: each applied batch schedules one pass on the
//     scheduler's dispatcher goroutine. The dispatcher computes every
//     affected subscription's derived value, suppresses deliveries whose
//     derived value did not change, and invokes callbacks in registration
//     order. Because a single goroutine performs all deliveries, there is
//     one global delivery order and per-subscription state needs no
//     locking.
//
//   - Collections: keys sharing a configured prefix form a collection.
//     A subscription on the prefix either receives one callback per
//     changed member, or, with WaitForCollectionCallback, a single
//     callback per change batch carrying the whole collection.
//
// Settle blocks until all scheduled notifications have been delivered,
// which makes tests and shutdown deterministic without sleeping.
package rstore
