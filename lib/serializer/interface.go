package serializer

// ISerializer is the interface for all value serializers. It converts
// arbitrary Go values (store values, deltas, RPC messages) to and from
// byte slices for the backend and the wire.
//
// Deserializing into a *interface{} must yield the canonical value shape
// used throughout the store: map[string]interface{} for objects,
// []interface{} for arrays, float64 for numbers, string, bool and nil for
// the remaining scalars. Write paths round-trip values through their
// serializer before caching, so cached and persisted representations can
// never drift apart.
type ISerializer interface {
	// Serialize serializes a value into a byte array.
	Serialize(v interface{}) ([]byte, error)
	// Deserialize deserializes a byte array into the provided target.
	Deserialize(b []byte, v interface{}) error
}
