// Package membed implements an in-memory, sharded backend for the
// reactive store based on the backend.IBackend interface. Data is stored
// entirely in memory; Save/Load provide explicit binary snapshots for
// persistence between process restarts.
//
// Implementation Details:
//
//   - Sharding: Keys are distributed across runtime.NumCPU() shards (by
//     default) using a seeded FNV-1a hash, so concurrent writes to
//     different keys rarely contend. Each shard is an independent
//     xsync.MapOf.
//
//   - Value Isolation: Both Set and Get copy the byte slices crossing the
//     API boundary. Callers can never mutate stored data through a
//     retained reference.
//
//   - Snapshots: Save writes a versioned binary file (magic number,
//     format version, length-prefixed key/value pairs). Load atomically
//     replaces the entire data set; all other operations block for its
//     duration.
//
// The backend is synchronous under the hood but satisfies the asynchronous
// IBackend contract: every operation accepts a context and honors
// cancellation before touching data.
package membed
