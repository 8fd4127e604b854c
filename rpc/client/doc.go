// Package client provides a store.IStore implementation speaking to a
// remote RPC server, so application code can switch between the local
// reactive store and a remote one without changes.
//
// Subscriptions map onto watches: Connect sends a Watch request and
// registers an event handler under the request's transport id; the
// server pushes serialized derived values as event frames until
// Disconnect sends the matching Unwatch. Identity and selector
// projections travel over the wire; reducer projections are arbitrary
// functions and are rejected.
//
// The serializer passed to NewRPCStore must match the server's, since
// values are encoded with it on both ends of every message.
package client
