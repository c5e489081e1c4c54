package editor

import (
	"sort"

	"github.com/orneryd/ratatosk/pkg/graph"
)

// collectOrphans runs phase 4: breadth-first deletion from the nodes whose
// inbound set drained during reference edits. Deleting a node removes its
// outbound edges, which can drain further inbound sets; the sweep follows
// until the frontier is empty. Deletions are observable and enter the
// edited set. Roots never orphan.
func (e *Editor) collectOrphans() error {
	queue := make([]graph.NodeID, 0, len(e.orphans))
	for id := range e.orphans {
		queue = append(queue, id)
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })
	e.orphans = make(map[graph.NodeID]struct{})

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		rec := e.record(id)
		if rec == nil || len(rec.Inbound) > 0 || e.isRoot(id) {
			continue
		}
		e.staged[id] = nil
		e.edited[id] = struct{}{}
		for _, out := range rec.Outbound {
			target := e.record(out.ID)
			if target == nil {
				continue
			}
			target = e.stage(out.ID)
			removed, empty := target.RemoveInbound(id, out.Path)
			if !removed {
				if err := e.symmetryViolation("inbound", out.ID, id, out.Path); err != nil {
					return err
				}
			}
			if empty && !e.isRoot(out.ID) {
				queue = append(queue, out.ID)
			}
		}
	}
	return nil
}
