// Package graph - immutable snapshots.
package graph

import "sort"

// Snapshot is an immutable mapping from node id to node record.
//
// A snapshot is produced empty by NewSnapshot or by committing an editor
// transaction, and is never modified afterwards: an editor stages a private
// set of replacement records over a parent snapshot and Overlay builds the
// successor. Records that a transaction did not touch are shared between
// parent and child by object identity, so
//
//	old.GetSnapshot(id) == new.GetSnapshot(id)
//
// is the cheap "nothing changed here" test readers rely on.
//
// Thread Safety:
//
//	Snapshots are read-only after construction and safe for concurrent
//	readers. Writers are serialized by the owning cache.
type Snapshot struct {
	records map[NodeID]*Record
	roots   []NodeID
}

// NewSnapshot creates an empty snapshot with the given root set. With no
// arguments the root set is {QueryRootID}.
//
// Roots are never garbage collected: a node with an empty inbound edge list
// survives a commit only if it is a root.
func NewSnapshot(roots ...NodeID) *Snapshot {
	if len(roots) == 0 {
		roots = []NodeID{QueryRootID}
	}
	return &Snapshot{
		records: make(map[NodeID]*Record),
		roots:   append([]NodeID(nil), roots...),
	}
}

// GetSnapshot returns the record for a node id, or nil if absent.
func (s *Snapshot) GetSnapshot(id NodeID) *Record {
	return s.records[id]
}

// Get returns the value of a node, or nil if the node is absent.
func (s *Snapshot) Get(id NodeID) any {
	rec := s.records[id]
	if rec == nil {
		return nil
	}
	return rec.Value
}

// Has reports whether the snapshot contains a record for id.
func (s *Snapshot) Has(id NodeID) bool {
	_, ok := s.records[id]
	return ok
}

// Roots returns the snapshot's root id set.
func (s *Snapshot) Roots() []NodeID {
	return append([]NodeID(nil), s.roots...)
}

// IsRoot reports whether id is a member of the root set.
func (s *Snapshot) IsRoot(id NodeID) bool {
	for _, r := range s.roots {
		if r == id {
			return true
		}
	}
	return false
}

// NodeIDs returns all node ids in the snapshot, sorted for determinism.
func (s *Snapshot) NodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NodeCount returns the number of records.
func (s *Snapshot) NodeCount() int {
	return len(s.records)
}

// EdgeCount returns the number of outbound edges across all records. With
// bidirectional symmetry intact this equals the inbound total.
func (s *Snapshot) EdgeCount() int {
	n := 0
	for _, rec := range s.records {
		n += len(rec.Outbound)
	}
	return n
}

// Each calls fn for every record. Iteration order is unspecified; fn must not
// mutate the snapshot.
func (s *Snapshot) Each(fn func(id NodeID, rec *Record)) {
	for id, rec := range s.records {
		fn(id, rec)
	}
}

// Overlay builds the successor snapshot: the receiver's records with staged
// replacements applied. A nil record in staged is a tombstone and removes the
// node. The receiver is not modified; untouched records are shared.
func (s *Snapshot) Overlay(staged map[NodeID]*Record) *Snapshot {
	next := &Snapshot{
		records: make(map[NodeID]*Record, len(s.records)+len(staged)),
		roots:   s.roots,
	}
	for id, rec := range s.records {
		next.records[id] = rec
	}
	for id, rec := range staged {
		if rec == nil {
			delete(next.records, id)
			continue
		}
		next.records[id] = rec
	}
	return next
}

// Put inserts a record into the snapshot. It is exported for snapshot
// restoration (persist) and tests; committed snapshots must not be modified.
func (s *Snapshot) Put(id NodeID, rec *Record) {
	s.records[id] = rec
}

// Unreachable returns the ids of records that cannot be reached from the
// root set by following outbound edges, sorted. A healthy committed snapshot
// returns none; the orphan collector removes unreachable nodes in the same
// transaction that disconnects them.
func (s *Snapshot) Unreachable() []NodeID {
	seen := make(map[NodeID]struct{}, len(s.records))
	queue := make([]NodeID, 0, len(s.roots))
	for _, r := range s.roots {
		if s.Has(r) {
			seen[r] = struct{}{}
			queue = append(queue, r)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		rec := s.records[id]
		if rec == nil {
			continue
		}
		for _, e := range rec.Outbound {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			if !s.Has(e.ID) {
				continue
			}
			seen[e.ID] = struct{}{}
			queue = append(queue, e.ID)
		}
	}
	var out []NodeID
	for id := range s.records {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckSymmetry verifies bidirectional edge symmetry: every inbound edge
// {holder, path} on a record t must be matched by an outbound edge {t, path}
// on the holder, with equal multiplicity, and vice versa. It returns the ids
// of records on the violating side, sorted.
func (s *Snapshot) CheckSymmetry() []NodeID {
	bad := make(map[NodeID]struct{})
	for id, rec := range s.records {
		for _, in := range rec.Inbound {
			holder := s.records[in.ID]
			if holder == nil || countEdges(holder.Outbound, id, in.Path) != countEdges(rec.Inbound, in.ID, in.Path) {
				bad[id] = struct{}{}
			}
		}
		for _, out := range rec.Outbound {
			target := s.records[out.ID]
			if target == nil || countEdges(target.Inbound, id, out.Path) != countEdges(rec.Outbound, out.ID, out.Path) {
				bad[id] = struct{}{}
			}
		}
	}
	ids := make([]NodeID, 0, len(bad))
	for id := range bad {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func countEdges(edges []Edge, id NodeID, path Path) int {
	n := 0
	for _, e := range edges {
		if e.ID == id && e.Path.Equal(path) {
			n++
		}
	}
	return n
}
