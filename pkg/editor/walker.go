package editor

import (
	"github.com/orneryd/ratatosk/pkg/graph"
	"github.com/orneryd/ratatosk/pkg/query"
	"github.com/orneryd/ratatosk/pkg/value"
)

// walkJob is one container-level traversal: a payload walked against the
// container's current value. Nested jobs are queued rather than recursed so
// arbitrarily deep payloads cannot exhaust the stack, and so entity and
// parameterized descents re-anchor paths at their own container.
type walkJob struct {
	container graph.NodeID
	payload   any
	edges     *query.EdgeTree

	// visitRoot forces classification of the payload's root position. Used
	// for parameterized descents, where the nested payload may itself turn
	// out to be an entity reference.
	visitRoot bool
}

// walker runs phase 1 of a merge: it applies scalar and array-shape edits
// directly to staged values and collects reference edits for phase 2.
type walker struct {
	editor   *Editor
	vars     map[string]any
	queue    []walkJob
	refEdits []refEdit
}

func (w *walker) enqueue(job walkJob) {
	w.queue = append(w.queue, job)
}

func (w *walker) run() error {
	for len(w.queue) > 0 {
		job := w.queue[0]
		w.queue = w.queue[1:]
		if err := w.walk(job); err != nil {
			return err
		}
	}
	return nil
}

// position is one (path, payload) pair inside the current container.
type position struct {
	path    graph.Path
	payload any
	edges   *query.EdgeTree
}

func (w *walker) walk(job walkJob) error {
	stack := []position{{path: graph.Path{}, payload: job.payload, edges: job.edges}}
	for len(stack) > 0 {
		pos := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		atRoot := len(pos.path) == 0
		if !atRoot || job.visitRoot {
			stop, err := w.visit(job.container, pos, atRoot)
			if err != nil {
				return err
			}
			if stop {
				continue
			}
		}

		switch payload := pos.payload.(type) {
		case map[string]any:
			for field, child := range payload {
				step := graph.Field(field)
				stack = append(stack, position{
					path:    pos.path.Child(step),
					payload: child,
					edges:   pos.edges.Child(step),
				})
			}
		case []any:
			for i, child := range payload {
				step := graph.Index(i)
				stack = append(stack, position{
					path:    pos.path.Child(step),
					payload: child,
					edges:   pos.edges.Child(step),
				})
			}
		}
	}
	return nil
}

// visit classifies one position. The returned stop flag ends descent into
// the position's subtree.
//
// Classification priority: parameterized edge, entity reference, array,
// scalar, plain mapping (descend).
func (w *walker) visit(container graph.NodeID, pos position, atRoot bool) (bool, error) {
	// Parameterized edge. Fires only when the position was entered through
	// the field step that selected it: the walk root IS the parameterized
	// node on a parameterized descent, and array elements share their
	// field's selection without re-parameterizing it.
	if pos.edges != nil && pos.edges.Parameterized && !atRoot && !pos.path[len(pos.path)-1].IsIndex {
		args := query.ExpandArgs(pos.edges.Args, w.vars)
		edgeID, err := query.ParameterizedID(container, pos.path, args)
		if err != nil {
			return false, err
		}
		w.editor.ensureParameterizedEdge(container, edgeID)
		w.enqueue(walkJob{container: edgeID, payload: pos.payload, edges: pos.edges, visitRoot: true})
		return true, nil
	}

	nodeValue := value.Get(w.editor.currentValue(container), pos.path)

	// Entity reference.
	var nextID graph.NodeID
	var hasNext bool
	if m, ok := pos.payload.(map[string]any); ok {
		nextID, hasNext = w.editor.cfg.EntityID(m)
	}
	prevID, hasPrev := w.editor.outboundTarget(container, pos.path)
	if hasNext || hasPrev {
		if !hasNext && truthy(pos.payload) {
			// Payload omits the id at a position with a known entity:
			// identity is unchanged and fields merge into it.
			nextID, hasNext = prevID, true
		}
		if prevID != nextID || hasPrev != hasNext {
			w.refEdits = append(w.refEdits, refEdit{
				holder:  container,
				path:    pos.path,
				prev:    prevID,
				next:    nextID,
				hasPrev: hasPrev,
				hasNext: hasNext,
			})
		}
		if hasNext {
			w.enqueue(walkJob{container: nextID, payload: pos.payload, edges: pos.edges})
		}
		return true, nil
	}

	// Array: keep an equal-length array in place, otherwise replace with
	// one sharing the surviving prefix.
	if payloadArr, ok := pos.payload.([]any); ok {
		cur, isArr := nodeValue.([]any)
		if !isArr || len(cur) != len(payloadArr) {
			next := make([]any, len(payloadArr))
			if isArr {
				n := len(cur)
				if n > len(payloadArr) {
					n = len(payloadArr)
				}
				copy(next, cur[:n])
			}
			w.editor.setValue(container, pos.path, next, true)
		}
		return false, nil
	}

	// Scalar.
	if !value.IsContainer(pos.payload) {
		if !value.Equal(pos.payload, nodeValue) {
			w.editor.setValue(container, pos.path, pos.payload, true)
		}
		return true, nil
	}

	// Plain inline mapping: descend field by field.
	return false, nil
}

// truthy mirrors the payload protocol's notion of truthiness: null, false,
// zero, and the empty string are falsy; containers are always truthy.
func truthy(v any) bool {
	switch tv := v.(type) {
	case nil:
		return false
	case bool:
		return tv
	case string:
		return tv != ""
	case float64:
		return tv != 0
	case int:
		return tv != 0
	default:
		return true
	}
}
