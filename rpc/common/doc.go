// Package common holds the shared pieces of the RPC layer: the wire
// Message structure with its factory functions, the MessageType
// constants, and the server/client configuration structs.
//
// A Message is a flat struct serialized as a whole by the configured
// serializer. Store values and merge deltas travel inside it as opaque
// byte slices, encoded with the same serializer, so the wire format
// stays uniform across json, gob and cbor.
//
// Watch requests have no dedicated id field on the way in: the watch id
// is the transport request id of the Watch message, and the server
// pushes Event messages tagged with that id for the lifetime of the
// subscription.
package common
