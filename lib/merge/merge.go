package merge

// --------------------------------------------------------------------------
// Array Policy
// --------------------------------------------------------------------------

// ArrayPolicy selects how array values are merged. Only wholesale
// replacement is implemented; the type exists as an extension point for a
// positional index-merge policy.
type ArrayPolicy int

const (
	// ArrayReplace replaces an existing array wholesale with the delta
	// array. This matches common expectations for "merge" semantics over
	// lists and is the documented default.
	ArrayReplace ArrayPolicy = iota
)

// --------------------------------------------------------------------------
// Merge Operations
// --------------------------------------------------------------------------

// Merge computes the result of applying a delta onto an existing value.
// Neither input is mutated; object results are freshly allocated maps.
//
// Rules:
//   - Object deltas are deep-merged key by key: delta keys override or
//     add, recursing into nested objects. A nil value in the delta removes
//     the corresponding key from the result.
//   - Arrays are replaced wholesale by the delta array (see ArrayPolicy).
//   - A scalar delta fully replaces the existing value.
//   - Merging into an absent (nil) base behaves as if the base were an
//     empty object: the delta is applied with its nil markers stripped.
func Merge(existing, delta interface{}) interface{} {
	return MergeWithPolicy(existing, delta, ArrayReplace)
}

// MergeWithPolicy is Merge with an explicit array policy.
func MergeWithPolicy(existing, delta interface{}, policy ArrayPolicy) interface{} {
	return mergeValue(existing, delta, policy)
}

// Combine stacks a later delta on top of an earlier one, producing a
// single delta whose application is equivalent to applying both in order.
// Unlike Merge, nil markers in the later delta are preserved: they must
// survive until the combined delta is finally applied, where they delete
// keys from the stored value.
//
// An object delta stacked on an earlier delete, scalar or array is
// wrapped in a replace marker: the intervening delta discarded the stored
// subtree, so at application time the object must replace it wholesale
// instead of deep-merging into it. Merge resolves the markers.
//
// Sequential merges on one key are coalesced with Combine before a single
// persistence round-trip applies the result.
func Combine(earlier, later interface{}) interface{} {
	return combineValue(earlier, later)
}

// MergeCollection applies Merge per member key. Keys present only in the
// delta map are added; keys absent from the delta map are untouched. The
// existing map is not mutated.
func MergeCollection(existing, deltas map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(existing)+len(deltas))
	for k, v := range existing {
		out[k] = v
	}
	for k, delta := range deltas {
		out[k] = Merge(out[k], delta)
	}
	return out
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// replace marks a subtree of a combined delta that must replace the
// stored value wholesale when the delta is applied. Combine inserts it
// where a later object delta follows a delete or a non-object value;
// mergeValue resolves it by applying the wrapped delta onto an empty
// base. Markers only ever live inside combined deltas, which stay
// in-process until applied.
type replace struct {
	delta interface{}
}

// mergeValue applies delta onto existing. Nil delta values delete keys,
// replace markers discard the existing subtree.
func mergeValue(existing, delta interface{}, policy ArrayPolicy) interface{} {
	if r, ok := delta.(replace); ok {
		return mergeValue(nil, r.delta, policy)
	}

	deltaObj, deltaIsObj := delta.(map[string]interface{})
	if !deltaIsObj {
		// Scalar or array delta replaces the existing value. The single
		// implemented array policy is wholesale replacement.
		_ = policy
		return delta
	}

	existingObj, existingIsObj := existing.(map[string]interface{})
	if !existingIsObj {
		// Absent or non-object base: treat as empty object
		existingObj = nil
	}

	out := make(map[string]interface{}, len(existingObj)+len(deltaObj))
	for k, v := range existingObj {
		out[k] = v
	}

	for k, dv := range deltaObj {
		if dv == nil {
			delete(out, k)
			continue
		}
		out[k] = mergeValue(out[k], dv, policy)
	}

	return out
}

// combineValue stacks later onto earlier, keeping nil markers and
// inserting replace markers where deep-merging at application time would
// resurrect state an earlier delta discarded.
func combineValue(earlier, later interface{}) interface{} {
	laterObj, laterIsObj := later.(map[string]interface{})
	if !laterIsObj {
		// A later nil marker, scalar or array wins over everything
		// queued before it
		return later
	}

	switch prev := earlier.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(prev)+len(laterObj))
		for k, v := range prev {
			out[k] = v
		}
		for k, lv := range laterObj {
			if ev, seen := out[k]; seen {
				out[k] = combineValue(ev, lv)
			} else {
				out[k] = lv
			}
		}
		return out

	case replace:
		// Stack onto the wrapped delta; the subtree stays a replacement
		return replace{delta: combineValue(prev.delta, later)}

	default:
		// The earlier delta deleted or overwrote this subtree with a
		// non-object, so the stored value underneath is gone. The later
		// object must replace, not deep-merge, when finally applied.
		return replace{delta: later}
	}
}
