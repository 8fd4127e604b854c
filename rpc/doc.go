// Package rpc provides the remote procedure call layer of the reactive
// key-value store. It lets a client use a store running in another
// process through the same store.IStore interface the embedded store
// implements, including live subscriptions.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures shared across the RPC system,
//     including the Message protocol and configuration structures.
//
//   - transport: Network communication abstractions with pluggable
//     implementations (TCP, Unix sockets, HTTP). TCP and Unix support
//     server-initiated event pushes for watches; HTTP is
//     request/response only.
//
//   - client: A store.IStore implementation backed by a transport,
//     allowing applications to interact with a remote store
//     transparently.
//
//   - server: RPC server components that host a reactive store and
//     translate incoming messages into store operations, including the
//     watch lifecycle for pushed notifications.
package rpc
