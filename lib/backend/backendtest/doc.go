// Package backendtest provides a reusable conformance test suite for
// backend.IBackend implementations. A backend package calls
// RunBackendTests with a factory function from its own test file, so all
// implementations are held to the same contract.
package backendtest
