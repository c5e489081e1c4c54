// Package graph defines the data model for Ratatosk's normalized graph cache.
//
// The cache is an id-indexed table of node records. Each record carries a
// dynamic value tree plus bidirectional edge lists, so the engine can walk
// from any node to everything that references it (inbound) and everything it
// references (outbound) without language-level pointer cycles.
//
// Design Principles:
//   - Immutable snapshots: committed state is never mutated, only replaced
//   - Structural sharing: unchanged records and value subtrees are shared
//     between snapshots by object identity
//   - Bidirectional symmetry: every inbound edge has a matching outbound edge
//   - Testability through small, dependency-free types
//
// Example Usage:
//
//	snap := graph.NewSnapshot()
//	rec := snap.GetSnapshot(graph.QueryRootID)
//	if rec != nil {
//		fmt.Println(rec.Value)
//	}
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidID        = errors.New("invalid node id")
	ErrMissingEntityID  = errors.New("configuration requires an entity id function")
	ErrEdgeNotFound     = errors.New("edge not found")
	ErrIdentityConflict = errors.New("conflicting entity identity")
	ErrSnapshotCorrupt  = errors.New("snapshot corrupt")
	ErrEditorClosed     = errors.New("editor already committed or poisoned")
)

// QueryRootID is the well-known id of the default root node. Every payload
// merged without an explicit root lands under this node, and reachability is
// computed from the snapshot's root set.
const QueryRootID NodeID = "QueryRoot"

// NodeID is a strongly-typed unique identifier for cache nodes.
//
// A node is one of:
//   - an entity, whose id is derived from its payload by the configured
//     EntityIDFunc (content-defined identity),
//   - a parameterized value, whose id is composed from its container id,
//     path, and argument values (see package query), or
//   - a root, a member of the snapshot's fixed root set.
type NodeID string

// EntityIDFunc extracts the entity id from a payload value. It returns false
// when the value does not represent an identifiable entity (an inline value).
//
// The function defines entity identity for the whole cache and is the one
// required piece of configuration.
type EntityIDFunc func(value any) (NodeID, bool)

// EntityIDFromField returns an EntityIDFunc that reads the given field of a
// mapping payload and stringifies it.
//
// This is the conventional GraphQL setup, keyed on "id":
//
//	cfg := editor.Config{EntityID: graph.EntityIDFromField("id")}
//
// Integral numeric ids are rendered without a decimal point, so a payload
// carrying id: 1 and one carrying id: "1" normalize to the same node.
// Fractional ids keep their decimal form (1.5 becomes "1.5").
func EntityIDFromField(field string) EntityIDFunc {
	return func(value any) (NodeID, bool) {
		m, ok := value.(map[string]any)
		if !ok {
			return "", false
		}
		raw, ok := m[field]
		if !ok || raw == nil {
			return "", false
		}
		switch v := raw.(type) {
		case string:
			if v == "" {
				return "", false
			}
			return NodeID(v), true
		case float64:
			if v == float64(int64(v)) {
				return NodeID(fmt.Sprintf("%d", int64(v))), true
			}
			return NodeID(fmt.Sprintf("%g", v)), true
		case int:
			return NodeID(fmt.Sprintf("%d", v)), true
		case int64:
			return NodeID(fmt.Sprintf("%d", v)), true
		default:
			return "", false
		}
	}
}

// Step is a single segment of a Path: either a field name inside a mapping or
// an index inside an array.
type Step struct {
	Field   string
	Index   int
	IsIndex bool
}

// Field returns a mapping-key step.
func Field(name string) Step { return Step{Field: name} }

// Index returns an array-index step.
func Index(i int) Step { return Step{Index: i, IsIndex: true} }

// Path locates a position inside a node's value tree.
//
// A nil Path is meaningful and distinct from an empty one:
//   - nil: the edge has no projection into the holder's value at all. This is
//     how parameterized values hang off their container without being exposed
//     under any field.
//   - Path{}: the root of the holder's value (the whole value is the target).
type Path []Step

// Equal reports whether two paths are the same sequence of steps, treating
// nil and empty as different (see the Path doc).
func (p Path) Equal(other Path) bool {
	if (p == nil) != (other == nil) {
		return false
	}
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the path. Nil stays nil.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Child returns p extended by one step. The receiver is never modified and
// the result never aliases it, so paths recorded on edges stay stable while
// the walker keeps descending.
func (p Path) Child(s Step) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = s
	return out
}

// String renders the path in dotted/bracketed form, e.g. "foo[0].bar".
func (p Path) String() string {
	if p == nil {
		return "<none>"
	}
	s := ""
	for _, step := range p {
		if step.IsIndex {
			s += fmt.Sprintf("[%d]", step.Index)
		} else if s == "" {
			s = step.Field
		} else {
			s += "." + step.Field
		}
	}
	return s
}

// MarshalJSON renders the path as a JSON array of field names and indices,
// e.g. ["one",0,"two"]. This is the canonical form used inside parameterized
// node ids and in persisted snapshots.
func (p Path) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	steps := make([]any, len(p))
	for i, step := range p {
		if step.IsIndex {
			steps[i] = step.Index
		} else {
			steps[i] = step.Field
		}
	}
	return json.Marshal(steps)
}

// UnmarshalJSON parses the canonical array form produced by MarshalJSON.
func (p *Path) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}
	var steps []any
	if err := json.Unmarshal(data, &steps); err != nil {
		return err
	}
	out := make(Path, 0, len(steps))
	for _, s := range steps {
		switch v := s.(type) {
		case string:
			out = append(out, Field(v))
		case float64:
			out = append(out, Index(int(v)))
		default:
			return fmt.Errorf("%w: bad path step %v", ErrSnapshotCorrupt, s)
		}
	}
	*p = out
	return nil
}

// Edge is one half of a bidirectional link between two node records.
//
// On a record's Outbound list, ID names the target node and Path is where the
// target's value is projected inside the holder's value. On the Inbound list,
// ID names the holder and Path is the same projection path inside that
// holder. A nil Path marks a parameterized-value edge: the child is reachable
// only through the edge, never through the holder's value.
type Edge struct {
	ID   NodeID `json:"id"`
	Path Path   `json:"path"`
}

// Record is a single node's entry in a snapshot.
//
// Value is a tree of scalars, arrays, and mappings. Entity projections embed
// the target's value object, so a reference cycle between entities makes the
// in-memory tree cyclic; value.PruneOutbound gives the finite form. Object
// identity of the tree and every subtree encodes "unchanged since the last
// snapshot", which is what lets readers cheaply detect updates.
type Record struct {
	Value    any    `json:"value"`
	Inbound  []Edge `json:"inbound,omitempty"`
	Outbound []Edge `json:"outbound,omitempty"`

	// Digest is a blake2b-256 of the canonical JSON of Value with its
	// outbound projections pruned (value.RecordDigest), stamped at commit
	// when integrity digests are enabled. Detects out-of-band
	// mutation of a committed snapshot.
	Digest []byte `json:"digest,omitempty"`
}

// Clone returns a staging copy of the record: the value tree is shared with
// the receiver (the copy-on-write setter takes care of cloning it on first
// write), the edge lists are copied so they can be mutated freely.
func (r *Record) Clone() *Record {
	out := &Record{Value: r.Value}
	if len(r.Inbound) > 0 {
		out.Inbound = make([]Edge, len(r.Inbound))
		copy(out.Inbound, r.Inbound)
	}
	if len(r.Outbound) > 0 {
		out.Outbound = make([]Edge, len(r.Outbound))
		copy(out.Outbound, r.Outbound)
	}
	if len(r.Digest) > 0 {
		out.Digest = append([]byte(nil), r.Digest...)
	}
	return out
}

// AddInbound appends an inbound edge.
func (r *Record) AddInbound(holder NodeID, path Path) {
	r.Inbound = append(r.Inbound, Edge{ID: holder, Path: path})
}

// AddOutbound appends an outbound edge.
func (r *Record) AddOutbound(target NodeID, path Path) {
	r.Outbound = append(r.Outbound, Edge{ID: target, Path: path})
}

// HasInbound reports whether an inbound edge with this exact holder and path
// is present.
func (r *Record) HasInbound(holder NodeID, path Path) bool {
	return findEdge(r.Inbound, holder, path) >= 0
}

// HasOutbound reports whether an outbound edge with this exact target and
// path is present.
func (r *Record) HasOutbound(target NodeID, path Path) bool {
	return findEdge(r.Outbound, target, path) >= 0
}

// RemoveInbound removes one occurrence of the inbound edge {holder, path}.
// It returns (removed, empty): whether an edge was removed and whether the
// inbound list is empty afterwards. The empty result drives orphan detection.
func (r *Record) RemoveInbound(holder NodeID, path Path) (bool, bool) {
	i := findEdge(r.Inbound, holder, path)
	if i < 0 {
		return false, len(r.Inbound) == 0
	}
	r.Inbound = append(r.Inbound[:i], r.Inbound[i+1:]...)
	return true, len(r.Inbound) == 0
}

// RemoveOutbound removes one occurrence of the outbound edge {target, path}.
func (r *Record) RemoveOutbound(target NodeID, path Path) bool {
	i := findEdge(r.Outbound, target, path)
	if i < 0 {
		return false
	}
	r.Outbound = append(r.Outbound[:i], r.Outbound[i+1:]...)
	return true
}

// OutboundTarget returns the target of the outbound edge recorded at the
// given path, if any.
func (r *Record) OutboundTarget(path Path) (NodeID, bool) {
	for _, e := range r.Outbound {
		if e.Path.Equal(path) {
			return e.ID, true
		}
	}
	return "", false
}

func findEdge(edges []Edge, id NodeID, path Path) int {
	for i, e := range edges {
		if e.ID == id && e.Path.Equal(path) {
			return i
		}
	}
	return -1
}
