// Package base implements the shared core of the socket transports
// (tcp, unix). Connectors inject the medium-specific dialing and
// listening; everything else lives here.
//
// Wire format: every frame carries a 20 byte header (8 byte frame kind,
// 8 byte request id, 4 byte payload length) followed by the payload.
// Responses answer the request with the same id; event frames are
// pushed by the server for an active watch and carry the watch's
// request id.
//
// Server side, each connection runs a bounded worker pool: a counting
// semaphore limits concurrent request handlers per connection, request
// buffers come from a sync.Pool, and all writes (responses and pushed
// events) are serialized over one mutex.
//
// Client side, the transport keeps one or more connections per
// endpoint, picks connections round-robin and retries failed sends with
// exponential backoff. A reader goroutine per connection routes
// response frames to waiting requests and event frames to subscribed
// watch handlers. Watches are pinned to the connection that created
// them and do not survive a reconnect.
package base
