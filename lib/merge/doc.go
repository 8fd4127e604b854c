// Package merge implements the deep-merge semantics of the reactive
// store's Merge and MergeCollection operations.
//
// Object deltas merge key by key with nil acting as a per-key delete
// marker; arrays and scalars replace wholesale. Combine stacks pending
// deltas so that sequential merges on one key can be coalesced into a
// single persistence round-trip.
//
// All functions are pure: inputs are never mutated.
package merge
