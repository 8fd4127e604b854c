package rstore

import (
	"sync"

	"github.com/reactive-kv/rkv/lib/merge"
)

// --------------------------------------------------------------------------
// Per-Key Write Queue
// --------------------------------------------------------------------------

type opKind uint8

const (
	opSet opKind = iota
	opMerge
	opRemove
)

// pendingBatch accumulates writes for one key while a flush for that key
// is in flight. All callers whose write landed in the batch share its
// outcome.
type pendingBatch struct {
	op    opKind
	delta interface{}
	// quiet batches do not schedule their own notification pass; the
	// caller (MergeCollection) schedules one pass for the whole batch.
	quiet bool
	done  chan struct{}
	err   error
}

// writeQueue serializes writes to a single key. At most one backend
// round-trip per key is in flight; writes arriving meanwhile coalesce
// into the next batch.
type writeQueue struct {
	mu       sync.Mutex
	flushing bool
	pending  *pendingBatch
}

// enqueue merges a write into the queue's pending batch, starting a
// flush worker if none is running, and returns the batch to wait on.
//
// Coalescing rules mirror sequential application: a set replaces
// whatever was pending, a merge combines with a pending merge (keeping
// nil delete markers intact) or deep-merges into a pending set.
func (q *writeQueue) enqueue(s *storeImpl, key string, op opKind, delta interface{}, quiet bool) *pendingBatch {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending == nil {
		q.pending = &pendingBatch{
			op:    op,
			delta: delta,
			quiet: quiet,
			done:  make(chan struct{}),
		}
	} else {
		q.coalesce(op, delta)
		q.pending.quiet = q.pending.quiet && quiet
	}

	batch := q.pending
	if !q.flushing {
		q.flushing = true
		go q.flushLoop(s, key)
	}
	return batch
}

// coalesce folds one more write into the pending batch. Caller holds q.mu.
func (q *writeQueue) coalesce(op opKind, delta interface{}) {
	switch op {
	case opSet:
		q.pending.op = opSet
		q.pending.delta = delta

	case opRemove:
		q.pending.op = opRemove
		q.pending.delta = nil

	case opMerge:
		switch q.pending.op {
		case opMerge:
			q.pending.delta = merge.Combine(q.pending.delta, delta)
		case opSet:
			// merging onto a pending set yields a set of the merged value
			q.pending.delta = merge.Merge(q.pending.delta, delta)
		case opRemove:
			// the remove wins over everything before it, the merge then
			// applies to an absent value
			q.pending.op = opSet
			q.pending.delta = merge.Merge(nil, delta)
		}
	}
}

// flushLoop drains the queue, one batch per backend round-trip, and
// exits once no writes are pending.
func (q *writeQueue) flushLoop(s *storeImpl, key string) {
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		if batch == nil {
			q.flushing = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		batch.err = s.applyBatch(key, batch)
		close(batch.done)
	}
}
