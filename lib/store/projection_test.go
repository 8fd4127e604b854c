package store

import (
	"testing"
)

func TestSelectorPath(t *testing.T) {
	value := map[string]interface{}{
		"a": "one",
		"user": map[string]interface{}{
			"name": "kim",
			"address": map[string]interface{}{
				"city": "berlin",
			},
		},
	}

	tests := []struct {
		path string
		want interface{}
	}{
		{"a", "one"},
		{"user.name", "kim"},
		{"user.address.city", "berlin"},
		{"missing", nil},
		{"user.missing", nil},
		{"a.too.deep", nil},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p := SelectorPath(tt.path)
			got, err := p.Apply(value)
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("SelectorPath(%q).Apply() = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSelectorOnAbsentValue(t *testing.T) {
	p := SelectorPath("a")
	got, err := p.Apply(nil)
	if err != nil || got != nil {
		t.Errorf("selector on absent value should yield nil, got (%v, %v)", got, err)
	}
}

func TestIdentityProjection(t *testing.T) {
	value := map[string]interface{}{"a": "one"}

	var p Projection // zero value is identity
	if !p.IsIdentity() {
		t.Fatal("zero Projection should be identity")
	}

	got, err := p.Apply(value)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got.(map[string]interface{})["a"] != "one" {
		t.Errorf("identity projection altered the value: %v", got)
	}
}

func TestReducerPanicIsProjectionFailure(t *testing.T) {
	p := Reducer(func(v interface{}) interface{} {
		return v.(map[string]interface{})["a"] // panics on nil
	})

	_, err := p.Apply(nil)
	if err == nil {
		t.Fatal("expected projection failure from panicking reducer")
	}

	storeErr, ok := err.(*Error)
	if !ok || storeErr.Code != RetCProjectionFailure {
		t.Errorf("expected RetCProjectionFailure, got %v", err)
	}
}

func TestReducerProjection(t *testing.T) {
	p := Reducer(func(v interface{}) interface{} {
		if obj, ok := v.(map[string]interface{}); ok {
			return len(obj)
		}
		return 0
	})

	got, err := p.Apply(map[string]interface{}{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got != 2 {
		t.Errorf("reducer result = %v, want 2", got)
	}
}
