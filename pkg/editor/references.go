package editor

import (
	"fmt"

	"github.com/orneryd/ratatosk/pkg/graph"
)

// refEdit records that the node referenced at (holder, path) changed from
// prev to next. Either side may be absent: an absent prev is a brand-new
// reference, an absent next detaches the position.
type refEdit struct {
	holder  graph.NodeID
	path    graph.Path
	prev    graph.NodeID
	next    graph.NodeID
	hasPrev bool
	hasNext bool
}

// collapseEdits folds multiple edits against the same (holder, path) into
// one. Both edits observed the same pre-merge prev, so keeping the first
// prev and the last next preserves edge multiplicity instead of
// double-removing the old pair. Conflicting nexts are an identity violation:
// strict mode fails, otherwise the last write wins with a warning.
func (e *Editor) collapseEdits(edits []refEdit) ([]refEdit, error) {
	if len(edits) < 2 {
		return edits, nil
	}
	type posKey struct {
		holder graph.NodeID
		path   string
	}
	index := make(map[posKey]int, len(edits))
	out := make([]refEdit, 0, len(edits))
	for _, ed := range edits {
		k := posKey{ed.holder, ed.path.String()}
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, ed)
			continue
		}
		if out[i].next != ed.next || out[i].hasNext != ed.hasNext {
			if e.cfg.Strict {
				return nil, fmt.Errorf("%w: %s at %s resolves to both %q and %q",
					graph.ErrIdentityConflict, ed.holder, ed.path, out[i].next, ed.next)
			}
			e.cfg.Logger.Warningf("conflicting references at %s %s: %q overrides %q",
				ed.holder, ed.path, ed.next, out[i].next)
		}
		out[i].next = ed.next
		out[i].hasNext = ed.hasNext
	}
	return out, nil
}

// applyReferenceEdits runs phase 2: for every edit it projects the target's
// current value into the holder, then repairs both sides of the old and new
// edge pairs, flagging drained nodes as orphan candidates.
func (e *Editor) applyReferenceEdits(edits []refEdit) error {
	for _, ed := range edits {
		var target any
		if ed.hasNext {
			target = e.currentValue(ed.next)
		}
		e.setValue(ed.holder, ed.path, target, true)
		holder := e.stage(ed.holder)

		if ed.hasPrev {
			if !holder.RemoveOutbound(ed.prev, ed.path) {
				if err := e.symmetryViolation("outbound", ed.holder, ed.prev, ed.path); err != nil {
					return err
				}
			}
			prevRec := e.stage(ed.prev)
			removed, empty := prevRec.RemoveInbound(ed.holder, ed.path)
			if !removed {
				if err := e.symmetryViolation("inbound", ed.prev, ed.holder, ed.path); err != nil {
					return err
				}
			}
			if empty && !e.isRoot(ed.prev) {
				e.orphans[ed.prev] = struct{}{}
			}
		}

		if ed.hasNext {
			holder.AddOutbound(ed.next, ed.path)
			e.stage(ed.next).AddInbound(ed.holder, ed.path)
			// Re-referenced this transaction: no longer an orphan candidate.
			delete(e.orphans, ed.next)
		}
	}
	return nil
}

// ensureParameterizedEdge links container to its parameterized child with a
// projection-free edge pair. Idempotent: a parameterized child can collide
// with itself only by construction of its id, so the edge is multiplicity-1.
func (e *Editor) ensureParameterizedEdge(container, child graph.NodeID) {
	holder := e.record(container)
	if holder != nil && holder.HasOutbound(child, nil) {
		return
	}
	e.stage(container).AddOutbound(child, nil)
	e.stage(child).AddInbound(container, nil)
}

// symmetryViolation handles an attempt to remove an edge that is not there:
// fatal in strict mode, a warning otherwise.
func (e *Editor) symmetryViolation(side string, on, other graph.NodeID, path graph.Path) error {
	if e.cfg.Strict {
		return fmt.Errorf("%w: no %s edge on %s for %s at %s", graph.ErrEdgeNotFound, side, on, other, path)
	}
	e.cfg.Logger.Warningf("ignoring missing %s edge on %s for %s at %s", side, on, other, path)
	return nil
}
