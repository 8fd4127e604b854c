// Package backend defines the interface for the durable key-value
// collaborator the reactive store persists into.
//
// The store core (lib/store/rstore) treats the backend as an external,
// asynchronous collaborator: get/set/remove/getAllKeys keyed by string,
// assumed reliable but of arbitrary latency. The interface is deliberately
// byte-oriented: structured values are encoded by lib/serializer before
// they reach a backend, so backends stay agnostic of value shapes.
//
// Key Components:
//
//   - IBackend Interface: The core abstraction for durable key-value
//     operations. All implementations share this interface, allowing the
//     store to switch persistence layers without code changes.
//
//   - Feature Flags: Implementations can vary in their feature support,
//     which callers query with SupportsFeature before relying on optional
//     operations such as Save/Load snapshots.
//
//   - Factory: A function type that abstracts the creation of IBackend
//     instances, providing dependency injection for the store and the test
//     suites.
//
// Implementations:
//
//	The module ships one implementation, the in-memory membed engine in
//	"github.com/reactive-kv/rkv/lib/backend/membed". Additional backends
//	(disk, remote) only need to satisfy IBackend.
package backend
