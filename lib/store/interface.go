package store

import (
	"fmt"

	"github.com/reactive-kv/rkv/lib/backend"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ConnectionID identifies one registered subscription. IDs are unique for
// the lifetime of a store and assigned in registration order.
type ConnectionID uint64

// Callback is invoked with a subscription's derived value and, for
// per-member collection delivery, the originating key. Values handed to a
// callback are private copies; mutating them never affects store state.
type Callback func(value interface{}, key string)

// CollectionCallback is invoked once per change batch with a full mapping
// of member key to derived value. Used by subscriptions that set
// WaitForCollectionCallback.
type CollectionCallback func(collection map[string]interface{})

// Mapping describes a subscription: which key (or collection prefix) to
// watch, how to project the value before delivery, and how to deliver it.
type Mapping struct {
	// Key is the target key, or a configured collection prefix.
	Key string

	// Callback receives deliveries for single-key subscriptions and for
	// collection subscriptions in per-member mode.
	Callback Callback

	// CollectionCallback receives deliveries for collection subscriptions
	// in WaitForCollectionCallback mode. Ignored otherwise.
	CollectionCallback CollectionCallback

	// Projection is applied to the stored value before change detection
	// and delivery. The zero value is the identity projection.
	Projection Projection

	// WaitForCollectionCallback switches a collection subscription from
	// one callback per changed member to a single callback per change
	// batch carrying the whole collection.
	WaitForCollectionCallback bool
}

// IStore is the public surface of the reactive key-value store.
// All write operations return only an error (nil on success), read
// operations return the requested data along with an error.
type IStore interface {
	// Connect registers a subscription and returns its connection id.
	// Registration triggers exactly one initial notification pass for the
	// new subscription against current store state, even if no value
	// exists yet.
	Connect(mapping Mapping) (id ConnectionID, err error)

	// Disconnect removes a subscription. It is idempotent: disconnecting
	// an unknown or already-removed id is a no-op. No callback fires for
	// the id after Disconnect returns, even if a delivery was already
	// scheduled.
	Disconnect(id ConnectionID)

	// Get returns the current value for a key. The boolean indicates
	// whether a value was found. The returned value is a private copy.
	Get(key string) (value interface{}, loaded bool, err error)

	// GetAllKeys returns every key currently known to the store.
	GetAllKeys() (keys []string, err error)

	// Set overwrites the value for a key and notifies affected
	// subscriptions. Setting nil removes the key.
	Set(key string, value interface{}) (err error)

	// Merge deep-merges a delta into the current value for a key and
	// notifies affected subscriptions. Sequential merges on one key
	// issued before the write settles are coalesced into a single
	// persistence round-trip.
	Merge(key string, delta interface{}) (err error)

	// MergeCollection merges a delta per member key of a collection.
	// Every key in deltas must start with prefix; otherwise the whole
	// call is rejected before any mutation. Affected subscriptions see
	// one coherent batch.
	MergeCollection(prefix string, deltas map[string]interface{}) (err error)

	// Clear removes all keys and notifies every subscription with absent
	// state. No partially-cleared state is observable.
	Clear() (err error)

	// Settle blocks until all pending writes have been applied and every
	// scheduled notification has been delivered or cancelled.
	Settle()

	// GetBackendInfo returns metadata about the backend underlying the
	// store.
	GetBackendInfo() (info backend.BackendInfo, err error)

	// Close shuts the store down. Pending notifications are drained
	// first.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new store Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess                 RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                          // 1: Operation failed due to an internal error.
	RetCInvalidCollectionMember                // 2: A mergeCollection delta key does not match the collection prefix.
	RetCStorageFailure                         // 3: The backend rejected the write; the store was rolled back.
	RetCProjectionFailure                      // 4: A selector/reducer failed; the write itself was applied.
	RetCStoreClosed                            // 5: The store has been closed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidCollectionMember:
		return "InvalidCollectionMember"
	case RetCStorageFailure:
		return "StorageFailure"
	case RetCProjectionFailure:
		return "ProjectionFailure"
	case RetCStoreClosed:
		return "StoreClosed"
	default:
		return "Unknown"
	}
}
