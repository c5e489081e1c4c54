package query

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/ratatosk/pkg/graph"
)

// Descriptor is the YAML form of a Query, used by the CLI and by hosts that
// keep their operations in files instead of building edge maps in code.
//
// Argument expressions use "$name" strings for variable references; a
// literal leading dollar is escaped as "$$".
//
// Example:
//
//	root_id: QueryRoot
//	variables:
//	  id: 1
//	edges:
//	  children:
//	    foo:
//	      parameterized: true
//	      args:
//	        id: $id
//	        withExtra: true
type Descriptor struct {
	RootID    string          `yaml:"root_id"`
	Variables map[string]any  `yaml:"variables"`
	Defaults  map[string]any  `yaml:"defaults"`
	Edges     *EdgeDescriptor `yaml:"edges"`
}

// EdgeDescriptor is the YAML form of an EdgeTree node.
type EdgeDescriptor struct {
	Parameterized bool                       `yaml:"parameterized"`
	Args          map[string]any             `yaml:"args"`
	Children      map[string]*EdgeDescriptor `yaml:"children"`
}

// ParseDescriptor decodes a YAML query descriptor into a Query.
func ParseDescriptor(data []byte) (*Query, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse query descriptor: %w", err)
	}
	edges, err := d.Edges.toEdgeTree()
	if err != nil {
		return nil, err
	}
	return &Query{
		RootID:    graph.NodeID(d.RootID),
		Variables: d.Variables,
		Defaults:  d.Defaults,
		Edges:     edges,
	}, nil
}

func (d *EdgeDescriptor) toEdgeTree() (*EdgeTree, error) {
	if d == nil {
		return nil, nil
	}
	tree := &EdgeTree{Parameterized: d.Parameterized}
	if d.Args != nil {
		tree.Args = make(map[string]any, len(d.Args))
		for k, v := range d.Args {
			expr, err := toArgExpr(v)
			if err != nil {
				return nil, fmt.Errorf("arg %q: %w", k, err)
			}
			tree.Args[k] = expr
		}
	}
	if d.Children != nil {
		tree.Children = make(map[string]*EdgeTree, len(d.Children))
		for name, child := range d.Children {
			sub, err := child.toEdgeTree()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			tree.Children[name] = sub
		}
	}
	return tree, nil
}

func toArgExpr(v any) (any, error) {
	switch expr := v.(type) {
	case string:
		if strings.HasPrefix(expr, "$$") {
			return expr[1:], nil
		}
		if strings.HasPrefix(expr, "$") {
			name := expr[1:]
			if name == "" {
				return nil, fmt.Errorf("empty variable reference")
			}
			return Var(name), nil
		}
		return expr, nil
	case map[string]any:
		out := make(map[string]any, len(expr))
		for k, child := range expr {
			conv, err := toArgExpr(child)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	case []any:
		out := make([]any, len(expr))
		for i, child := range expr {
			conv, err := toArgExpr(child)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case int:
		// yaml decodes integers as int; normalize to float64 so ids match
		// payloads that arrived through encoding/json.
		return float64(expr), nil
	default:
		return v, nil
	}
}
