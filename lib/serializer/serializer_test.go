package serializer

import (
	"reflect"
	"testing"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() ISerializer{
	"JSON": NewJSONSerializer,
	"GOB":  NewGOBSerializer,
	"CBOR": NewCBORSerializer,
}

// TestCanonicalObjectShape verifies that deserializing into an untyped
// target yields the canonical object shape the store relies on.
func TestCanonicalObjectShape(t *testing.T) {
	value := map[string]interface{}{
		"name":   "session",
		"active": true,
		"tags":   []interface{}{"a", "b"},
		"nested": map[string]interface{}{"depth": "two"},
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()

			data, err := s.Serialize(value)
			if err != nil {
				t.Fatalf("Serialize failed: %v", err)
			}

			var decoded interface{}
			if err := s.Deserialize(data, &decoded); err != nil {
				t.Fatalf("Deserialize failed: %v", err)
			}

			obj, ok := decoded.(map[string]interface{})
			if !ok {
				t.Fatalf("expected map[string]interface{}, got %T", decoded)
			}
			if obj["name"] != "session" || obj["active"] != true {
				t.Errorf("scalar fields lost: %+v", obj)
			}
			if _, ok := obj["tags"].([]interface{}); !ok {
				t.Errorf("expected []interface{} for tags, got %T", obj["tags"])
			}
			nested, ok := obj["nested"].(map[string]interface{})
			if !ok || nested["depth"] != "two" {
				t.Errorf("nested object lost: %+v", obj["nested"])
			}
		})
	}
}

// TestRoundTripStability verifies that a value which has already been
// round-tripped once does not change on a second round trip. The store
// depends on this for change detection: cached values are stored in
// round-tripped form.
func TestRoundTripStability(t *testing.T) {
	value := map[string]interface{}{
		"count": 3,
		"ratio": 0.5,
		"label": "x",
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()

			first := roundTrip(t, s, value)
			second := roundTrip(t, s, first)

			if !reflect.DeepEqual(first, second) {
				t.Errorf("round trip not stable:\nfirst:  %#v\nsecond: %#v", first, second)
			}
		})
	}
}

func TestDeserializeScalars(t *testing.T) {
	scalars := []interface{}{"text", 42.5, true}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()
			for _, v := range scalars {
				got := roundTrip(t, s, v)
				if !reflect.DeepEqual(roundTrip(t, s, got), got) {
					t.Errorf("scalar %v unstable after round trip", v)
				}
			}
		})
	}
}

func roundTrip(t *testing.T, s ISerializer, v interface{}) interface{} {
	t.Helper()
	data, err := s.Serialize(v)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	var out interface{}
	if err := s.Deserialize(data, &out); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	return out
}
