// Package serializer provides pluggable codecs that convert structured
// values to and from byte slices.
//
// The reactive store persists structured values into a byte-oriented
// backend, and the RPC layer ships values and messages over byte-oriented
// transports; both go through an ISerializer. Three codecs are available:
//
//   - JSON (NewJSONSerializer): human-readable, interoperable, the default.
//   - GOB (NewGOBSerializer): Go-native binary encoding.
//   - CBOR (NewCBORSerializer): compact binary encoding, recommended for
//     the RPC transports.
//
// Codecs differ in how they decode numbers (JSON yields float64, CBOR
// yields integer types where possible). The store round-trips every
// written value through its configured serializer before caching, so the
// in-memory and persisted representations always agree and change
// detection is never confused by codec-specific decoding.
package serializer
