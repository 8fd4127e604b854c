package serializer

import (
	"bytes"
	"encoding/gob"
	"reflect"
)

func init() {
	// Canonical value shapes must be registered so gob can encode them
	// behind interface{} fields.
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register([]int{})
}

// NewGOBSerializer creates a new serializer using Go's binary gob format.
//
// Structs (messages, metadata) are encoded directly and must be decoded
// into a typed target. Canonical values (maps, slices, scalars) are
// wrapped in an envelope and decoded through a *interface{} target.
// Values of other shapes cannot round-trip through gob into interface{}
// targets; the json and cbor codecs have no such restriction.
func NewGOBSerializer() ISerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl implements the ISerializer interface using gob encoding
type gobSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ISerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	// Structs carry their own concrete type and are decoded into typed
	// targets, so they encode directly. Everything else is a canonical
	// value headed for an interface{} target and needs the envelope.
	if isStructValue(v) {
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	if err := enc.Encode(gobEnvelope{V: v}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, v interface{}) error {
	dec := gob.NewDecoder(bytes.NewBuffer(b))

	if target, ok := v.(*interface{}); ok {
		var env gobEnvelope
		if err := dec.Decode(&env); err != nil {
			return err
		}
		*target = env.V
		return nil
	}

	return dec.Decode(v)
}

// isStructValue reports whether v is a struct or a pointer to one
func isStructValue(v interface{}) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// gobEnvelope wraps arbitrary values for gob encoding
type gobEnvelope struct {
	V interface{}
}
