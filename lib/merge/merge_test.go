package merge

import (
	"reflect"
	"testing"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		existing interface{}
		delta    interface{}
		want     interface{}
	}{
		{
			name:     "delta keys override and add",
			existing: map[string]interface{}{"a": "one", "b": "two"},
			delta:    map[string]interface{}{"a": "changed", "c": "three"},
			want:     map[string]interface{}{"a": "changed", "b": "two", "c": "three"},
		},
		{
			name:     "nested objects merge recursively",
			existing: map[string]interface{}{"outer": map[string]interface{}{"x": 1.0, "y": 2.0}},
			delta:    map[string]interface{}{"outer": map[string]interface{}{"y": 3.0}},
			want:     map[string]interface{}{"outer": map[string]interface{}{"x": 1.0, "y": 3.0}},
		},
		{
			name:     "nil delta value removes key",
			existing: map[string]interface{}{"a": "one", "b": "two"},
			delta:    map[string]interface{}{"b": nil},
			want:     map[string]interface{}{"a": "one"},
		},
		{
			name:     "nil removes nested key",
			existing: map[string]interface{}{"outer": map[string]interface{}{"x": 1.0, "y": 2.0}},
			delta:    map[string]interface{}{"outer": map[string]interface{}{"x": nil}},
			want:     map[string]interface{}{"outer": map[string]interface{}{"y": 2.0}},
		},
		{
			name:     "absent base behaves as empty object",
			existing: nil,
			delta:    map[string]interface{}{"a": "one", "gone": nil},
			want:     map[string]interface{}{"a": "one"},
		},
		{
			name:     "scalar delta replaces object",
			existing: map[string]interface{}{"a": "one"},
			delta:    "plain",
			want:     "plain",
		},
		{
			name:     "array delta replaces array wholesale",
			existing: map[string]interface{}{"list": []interface{}{1.0, 2.0, 3.0}},
			delta:    map[string]interface{}{"list": []interface{}{9.0}},
			want:     map[string]interface{}{"list": []interface{}{9.0}},
		},
		{
			name:     "object delta replaces scalar",
			existing: "plain",
			delta:    map[string]interface{}{"a": "one"},
			want:     map[string]interface{}{"a": "one"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.existing, tt.delta)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Merge() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	existing := map[string]interface{}{"a": map[string]interface{}{"x": 1.0}}
	delta := map[string]interface{}{"a": map[string]interface{}{"y": 2.0}}

	Merge(existing, delta)

	if _, ok := existing["a"].(map[string]interface{})["y"]; ok {
		t.Error("Merge mutated the existing value")
	}
	if len(delta["a"].(map[string]interface{})) != 1 {
		t.Error("Merge mutated the delta")
	}
}

func TestCombinePreservesNilMarkers(t *testing.T) {
	earlier := map[string]interface{}{"a": "one", "b": "two"}
	later := map[string]interface{}{"b": nil, "c": "three"}

	combined := Combine(earlier, later)

	obj := combined.(map[string]interface{})
	if v, ok := obj["b"]; !ok || v != nil {
		t.Errorf("nil marker lost in combined delta: %#v", combined)
	}

	// Applying the combined delta must equal applying both in order
	base := map[string]interface{}{"b": "stored", "z": "kept"}
	sequential := Merge(Merge(base, earlier), later)
	atOnce := Merge(base, combined)
	if !reflect.DeepEqual(sequential, atOnce) {
		t.Errorf("combined application diverges:\nsequential: %#v\nat once:    %#v", sequential, atOnce)
	}
}

func TestCombineDeleteThenObjectReplaces(t *testing.T) {
	// deleting a subtree and then merging an object into the same key
	// must not resurrect keys of the deleted subtree on application
	base := map[string]interface{}{"a": map[string]interface{}{"c": 2.0}}
	earlier := map[string]interface{}{"a": nil}
	later := map[string]interface{}{"a": map[string]interface{}{"b": 1.0}}

	combined := Combine(earlier, later)

	sequential := Merge(Merge(base, earlier), later)
	atOnce := Merge(base, combined)
	if !reflect.DeepEqual(sequential, atOnce) {
		t.Errorf("combined application diverges:\nsequential: %#v\nat once:    %#v", sequential, atOnce)
	}

	want := map[string]interface{}{"a": map[string]interface{}{"b": 1.0}}
	if !reflect.DeepEqual(atOnce, want) {
		t.Errorf("deleted subtree leaked into result: got %#v, want %#v", atOnce, want)
	}
}

func TestCombineScalarThenObjectReplaces(t *testing.T) {
	// an intervening scalar discards the stored object, so a later
	// object delta must replace rather than deep-merge
	base := map[string]interface{}{"a": map[string]interface{}{"c": 2.0}}
	earlier := map[string]interface{}{"a": "flat"}
	later := map[string]interface{}{"a": map[string]interface{}{"b": 1.0}}

	combined := Combine(earlier, later)

	sequential := Merge(Merge(base, earlier), later)
	atOnce := Merge(base, combined)
	if !reflect.DeepEqual(sequential, atOnce) {
		t.Errorf("combined application diverges:\nsequential: %#v\nat once:    %#v", sequential, atOnce)
	}

	want := map[string]interface{}{"a": map[string]interface{}{"b": 1.0}}
	if !reflect.DeepEqual(atOnce, want) {
		t.Errorf("overwritten subtree leaked into result: got %#v, want %#v", atOnce, want)
	}
}

func TestCombineStacksAcrossThreeDeltas(t *testing.T) {
	base := map[string]interface{}{"a": map[string]interface{}{"c": 2.0}}
	first := map[string]interface{}{"a": nil}
	second := map[string]interface{}{"a": map[string]interface{}{"b": 1.0}}
	third := map[string]interface{}{"a": map[string]interface{}{"b": nil, "d": 3.0}}

	combined := Combine(Combine(first, second), third)

	sequential := Merge(Merge(Merge(base, first), second), third)
	atOnce := Merge(base, combined)
	if !reflect.DeepEqual(sequential, atOnce) {
		t.Errorf("combined application diverges:\nsequential: %#v\nat once:    %#v", sequential, atOnce)
	}

	want := map[string]interface{}{"a": map[string]interface{}{"d": 3.0}}
	if !reflect.DeepEqual(atOnce, want) {
		t.Errorf("three-delta stack = %#v, want %#v", atOnce, want)
	}
}

func TestCombineLaterSetWins(t *testing.T) {
	earlier := map[string]interface{}{"a": map[string]interface{}{"x": 1.0}}
	later := map[string]interface{}{"a": "replaced"}

	combined := Combine(earlier, later).(map[string]interface{})
	if combined["a"] != "replaced" {
		t.Errorf("later scalar should replace earlier object, got %#v", combined["a"])
	}
}

func TestMergeCollection(t *testing.T) {
	existing := map[string]interface{}{
		"coll_1": map[string]interface{}{"a": "one"},
		"coll_2": map[string]interface{}{"b": "two"},
	}
	deltas := map[string]interface{}{
		"coll_1": map[string]interface{}{"a": "changed"},
		"coll_3": map[string]interface{}{"c": "new"},
	}

	got := MergeCollection(existing, deltas)

	want := map[string]interface{}{
		"coll_1": map[string]interface{}{"a": "changed"},
		"coll_2": map[string]interface{}{"b": "two"},
		"coll_3": map[string]interface{}{"c": "new"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeCollection() = %#v, want %#v", got, want)
	}

	// Untouched members must keep their identity in the source map
	if !reflect.DeepEqual(existing["coll_2"], map[string]interface{}{"b": "two"}) {
		t.Error("MergeCollection mutated the existing map")
	}
}
