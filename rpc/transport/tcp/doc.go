// Package tcp provides the TCP implementation of the RPC transport,
// built on the shared base transport. Nagle's algorithm is disabled on
// client connections since the protocol exchanges many small frames.
package tcp
