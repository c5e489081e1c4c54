package value

import "github.com/orneryd/ratatosk/pkg/graph"

// DeepSet writes v at path inside current and returns the resulting tree.
//
// current is the node's value as staged by the running transaction; parent is
// the same node's value in the parent snapshot (nil for a new node). The
// setter guarantees:
//
//   - the returned tree equals current with path reassigned;
//   - every subtree not on path is shared with current by object identity;
//   - no subtree of parent is ever mutated.
//
// Spine containers that still alias the parent snapshot are shallow-cloned;
// containers already cloned by this transaction are mutated in place. The
// in-place half matters: when a node's value object has already been embedded
// into a holder this transaction, later writes through the node must remain
// visible through the holder without another round of republication.
//
// Intermediate containers are created to match the step kind (index step
// makes an array, field step makes a mapping). Writing nil at an array index
// leaves a hole rather than shortening the array.
func DeepSet(current, parent any, path graph.Path, v any) any {
	if len(path) == 0 {
		return v
	}
	step := path[0]
	rest := path[1:]

	if step.IsIndex {
		arr, isArr := current.([]any)
		parArr, _ := parent.([]any)
		switch {
		case !isArr:
			arr = make([]any, step.Index+1)
		case sameTree(arr, parArr):
			size := len(arr)
			if step.Index >= size {
				size = step.Index + 1
			}
			clone := make([]any, size)
			copy(clone, arr)
			arr = clone
		case step.Index >= len(arr):
			grown := make([]any, step.Index+1)
			copy(grown, arr)
			arr = grown
		}
		var childParent any
		if step.Index < len(parArr) {
			childParent = parArr[step.Index]
		}
		arr[step.Index] = DeepSet(arr[step.Index], childParent, rest, v)
		return arr
	}

	m, isMap := current.(map[string]any)
	parM, _ := parent.(map[string]any)
	switch {
	case !isMap:
		m = make(map[string]any, 1)
	case sameTree(m, parM):
		clone := make(map[string]any, len(m)+1)
		for k, val := range m {
			clone[k] = val
		}
		m = clone
	}
	var childParent any
	if parM != nil {
		childParent = parM[step.Field]
	}
	m[step.Field] = DeepSet(m[step.Field], childParent, rest, v)
	return m
}
