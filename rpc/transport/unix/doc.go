// Package unix provides the Unix domain socket implementation of the
// RPC transport, built on the shared base transport. Suited for
// same-host deployments where the socket file permissions double as
// access control.
package unix
