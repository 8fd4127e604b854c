// Package store defines the public surface of the reactive key-value
// store: the IStore interface, the Mapping subscription descriptor, the
// Projection variant and a unified error system.
//
// The store holds arbitrary structured values under string keys. Keys
// sharing a configured prefix form a collection whose members can be
// written together with MergeCollection and observed together by a single
// subscription. Subscribers register a Mapping via Connect and are
// notified whenever their derived value changes. Notifications are
// scheduled synchronously with the triggering write and delivered
// asynchronously after it settles.
//
// Key Components:
//
//   - IStore Interface: connect/disconnect/get/set/merge/mergeCollection/
//     clear. All implementations share this interface, so callers can
//     switch between the local reactive store and the RPC client without
//     code changes.
//
//   - Mapping: a subscription descriptor combining a target key or
//     collection prefix, a Projection, a delivery mode and the callback.
//
//   - Projection: a tagged variant (identity, selector path, reducer)
//     resolved once at subscription creation. The projected ("derived")
//     value is the unit of change detection: callbacks fire if and only
//     if the derived value actually changed, or on first connect.
//
//   - Error System: typed error codes (RetCode) with descriptive
//     messages, allowing applications to react to specific conditions
//     (storage failure, invalid collection member, projection failure)
//     rather than generic errors.
//
// Implementations:
//
//   - Reactive local store: "github.com/reactive-kv/rkv/lib/store/rstore",
//     the single-process implementation backed by a backend.IBackend.
//   - RPC client: "github.com/reactive-kv/rkv/rpc/client", a remote
//     IStore speaking the module's framed RPC protocol.
package store
