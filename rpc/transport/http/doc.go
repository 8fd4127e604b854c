// Package http provides an HTTP implementation of the RPC transport.
// Requests are POSTed as opaque payloads and answered in the response
// body. HTTP is strictly request/response here, so watches (server
// push) are not supported; use the tcp or unix transport for
// subscriptions.
package http
