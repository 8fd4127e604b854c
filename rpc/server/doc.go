// Package server hosts a reactive store behind an RPC transport.
//
// The server owns one rstore instance and translates wire messages into
// store operations through an IRPCServerAdapter. Plain operations (set,
// merge, mergeCollection, get, getAllKeys, clear, settle, info) follow
// the request/response cycle. Watch requests register a store
// subscription whose deliveries are serialized and pushed back to the
// client as event frames tagged with the watch's request id; the
// subscription is torn down by an explicit Unwatch or when the
// connection closes.
//
// The wire serializer doubles as the store's canonical value codec, so
// a value read back over the wire is byte-identical to what was
// written.
//
// When configured, Prometheus metrics are exposed over HTTP under
// /metrics on a separate endpoint.
package server
