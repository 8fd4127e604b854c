package serializer

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// NewCBORSerializer creates a new serializer using CBOR encoding.
// CBOR produces the most compact payloads of the available codecs and is
// the recommended choice for the RPC transports.
func NewCBORSerializer() ISerializer {
	decMode, err := cbor.DecOptions{
		// Decode maps to the canonical object shape instead of
		// map[interface{}]interface{}.
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}

	return &cborSerializerImpl{decMode: decMode}
}

// cborSerializerImpl implements the ISerializer interface using CBOR encoding
type cborSerializerImpl struct {
	decMode cbor.DecMode
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ISerializer)
// --------------------------------------------------------------------------

func (c cborSerializerImpl) Serialize(v interface{}) ([]byte, error) {
	return cbor.Marshal(v)
}

func (c cborSerializerImpl) Deserialize(b []byte, v interface{}) error {
	return c.decMode.Unmarshal(b, v)
}
