// Package query describes write operations against the cache.
//
// A Query pairs a root node id with bound variable values and an edge map:
// a tree mirroring the operation's selection set that marks which field
// positions are parameterized and what their static argument expressions
// are. The edge map is produced outside this module (by whatever parses the
// operation documents) and consumed opaquely by the editor's payload walker.
//
// Example Usage:
//
//	q := &query.Query{
//		Variables: map[string]any{"id": 1},
//		Edges: query.Selection(map[string]*query.EdgeTree{
//			"foo": query.Parameterized(map[string]any{
//				"id":        query.Var("id"),
//				"withExtra": true,
//			}, nil),
//		}),
//	}
package query

import (
	"encoding/json"
	"fmt"

	"github.com/orneryd/ratatosk/pkg/graph"
)

// Variable is a reference to a query variable inside a static argument
// expression. It is resolved against the query's bound variables when the
// containing field's parameterized id is computed.
type Variable struct {
	Name string
}

// Var returns a variable reference for use in argument expressions.
func Var(name string) Variable { return Variable{Name: name} }

// EdgeTree is one node of an edge map. It mirrors a selection-set position:
// Parameterized marks the field as argument-carrying, Args holds the static
// argument expressions, and Children descend into sub-selections by field
// name. Array positions share their element selection, so index steps stay
// on the same tree node.
type EdgeTree struct {
	Parameterized bool
	Args          map[string]any
	Children      map[string]*EdgeTree
}

// Selection returns a plain (non-parameterized) edge-map node with the given
// children. The edge map root is always a Selection.
func Selection(children map[string]*EdgeTree) *EdgeTree {
	return &EdgeTree{Children: children}
}

// Parameterized returns an edge-map node for an argument-carrying field.
func Parameterized(args map[string]any, children map[string]*EdgeTree) *EdgeTree {
	return &EdgeTree{Parameterized: true, Args: args, Children: children}
}

// Child returns the edge-map node one step down, or nil when the selection
// does not descend there. Index steps return the receiver: all elements of
// an array share the field's selection.
func (t *EdgeTree) Child(step graph.Step) *EdgeTree {
	if t == nil {
		return nil
	}
	if step.IsIndex {
		return t
	}
	return t.Children[step.Field]
}

// Query is one write operation: a payload merge target.
type Query struct {
	// RootID is the node the payload merges into. Empty means QueryRootID.
	RootID graph.NodeID

	// Variables are the caller-bound variable values.
	Variables map[string]any

	// Defaults are document-declared variable defaults, applied when the
	// caller leaves a variable unbound.
	Defaults map[string]any

	// Edges is the operation's edge map. Nil means no parameterized fields.
	Edges *EdgeTree
}

// Root returns the merge target id, defaulting to QueryRootID.
func (q *Query) Root() graph.NodeID {
	if q.RootID == "" {
		return graph.QueryRootID
	}
	return q.RootID
}

// Bindings returns the effective variable values: defaults overlaid with the
// caller's variables.
func (q *Query) Bindings() map[string]any {
	if len(q.Defaults) == 0 {
		return q.Variables
	}
	out := make(map[string]any, len(q.Defaults)+len(q.Variables))
	for k, v := range q.Defaults {
		out[k] = v
	}
	for k, v := range q.Variables {
		out[k] = v
	}
	return out
}

// ExpandArgs resolves every Variable reference in a static argument
// expression against the bound variables. Unbound variables resolve to nil.
// Nested mappings and arrays are expanded recursively; everything else
// passes through untouched.
func ExpandArgs(args map[string]any, vars map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = expandValue(v, vars)
	}
	return out
}

func expandValue(v any, vars map[string]any) any {
	switch expr := v.(type) {
	case Variable:
		bound, ok := vars[expr.Name]
		if !ok {
			return nil
		}
		return bound
	case map[string]any:
		out := make(map[string]any, len(expr))
		for k, child := range expr {
			out[k] = expandValue(child, vars)
		}
		return out
	case []any:
		out := make([]any, len(expr))
		for i, child := range expr {
			out[i] = expandValue(child, vars)
		}
		return out
	default:
		return v
	}
}

// Separator delimits the components of a parameterized node id (U+2756).
// ParameterizedID does not check container ids for it; a parameterized
// field nested under another one has the outer parameterized id, separators
// included, as its container id.
const Separator = "❖"

// ParameterizedID builds the deterministic id of a parameterized value node:
//
//	<containerID>❖<JSON(path)>❖<JSON(args)>
//
// Both JSON components are canonical — encoding/json sorts mapping keys
// ascending by code point — so the same (container, path, args) triple always
// yields the same id byte for byte, regardless of how the argument mapping
// was assembled.
func ParameterizedID(container graph.NodeID, path graph.Path, args map[string]any) (graph.NodeID, error) {
	if path == nil {
		path = graph.Path{}
	}
	jsonPath, err := json.Marshal(path)
	if err != nil {
		return "", fmt.Errorf("marshal path: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	jsonArgs, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return container + Separator + graph.NodeID(jsonPath) + Separator + graph.NodeID(jsonArgs), nil
}
