// Package transport defines the interfaces between the RPC layer and
// the concrete transports (tcp, unix, http).
//
// Server transports accept opaque request payloads and hand them to a
// registered ServerHandleFunc together with an IServerConn, which lets
// handlers push event frames back outside the request/response cycle.
// Client transports send opaque payloads and, via Subscribe, keep a
// request id registered so pushed events reach a handler.
package transport
