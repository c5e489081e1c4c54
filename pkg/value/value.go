// Package value operates on the dynamic value trees stored in node records.
//
// A value tree is what encoding/json produces for arbitrary payloads:
// map[string]any for mappings, []any for arrays, and string / float64 /
// bool / nil scalars. The package provides path reads, deep equality, a
// copy-on-write deep setter, and content digests.
//
// Trees are treated as immutable once they belong to a committed snapshot;
// the deep setter clones exactly the spine it writes through and shares
// every other subtree, which is how snapshots stay cheap.
package value

import (
	"reflect"

	"github.com/orneryd/ratatosk/pkg/graph"
)

// Get reads the value at path inside root. Missing fields, out-of-range
// indices, and kind mismatches read as nil. A nil path reads nil (a
// parameterized edge has no projection); an empty path reads root itself.
func Get(root any, path graph.Path) any {
	if path == nil {
		return nil
	}
	cur := root
	for _, step := range path {
		if step.IsIndex {
			arr, ok := cur.([]any)
			if !ok || step.Index < 0 || step.Index >= len(arr) {
				return nil
			}
			cur = arr[step.Index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[step.Field]
	}
	return cur
}

// Equal reports deep equality of two value trees. Scalars compare with ==,
// mappings and arrays recurse. Array holes (nil elements) equal explicit
// nulls, matching how payloads round-trip through JSON.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, present := bv[k]
			if !present || !Equal(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		switch b.(type) {
		case map[string]any, []any:
			return false
		}
		return a == b
	}
}

// IsContainer reports whether v is a mapping or an array.
func IsContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// sameTree reports whether a and b are the identical container object.
// This is the aliasing test the copy-on-write setter uses to decide between
// cloning (subtree still belongs to the parent snapshot) and mutating in
// place (subtree was already cloned by this transaction).
func sameTree(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	if va.Kind() != vb.Kind() {
		return false
	}
	switch va.Kind() {
	case reflect.Map:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	return false
}
