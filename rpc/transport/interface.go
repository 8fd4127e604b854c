package transport

import (
	"github.com/reactive-kv/rkv/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// IServerConn is the server-side view of one client connection. It lets
// request handlers push event frames back to the client outside the
// request/response cycle, which is how watch notifications travel.
type IServerConn interface {
	// CanPush reports whether the transport supports server push.
	// Request/response-only transports like http return false.
	CanPush() bool

	// Push sends an event frame tagged with the given watch id
	Push(watchID uint64, event []byte) error

	// OnClose registers a function invoked exactly once when the
	// connection closes. Used to tear down server-side watch state.
	OnClose(fn func())
}

// ServerHandleFunc is a function type that handles incoming requests.
// It is called by a server transport layer when a request is received.
// The conn and requestID identify the requester, so handlers can
// register pushes for long-lived subscriptions.
type ServerHandleFunc func(conn IServerConn, requestID uint64, req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport layer and listens for incoming requests
	Listen(config common.ServerConfig) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// EventHandleFunc receives server-pushed event payloads for one watch
type EventHandleFunc func(event []byte)

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error

	// Send sends a request to the server and returns the response
	Send(req []byte) (resp []byte, err error)

	// Subscribe sends a request whose id stays registered after the
	// response: event frames tagged with it are delivered to handler
	// until Unsubscribe. Returns the watch id alongside the response.
	Subscribe(req []byte, handler EventHandleFunc) (watchID uint64, resp []byte, err error)

	// Unsubscribe stops local delivery for a watch id
	Unsubscribe(watchID uint64)

	// Close closes the transport connection
	Close() error
}
