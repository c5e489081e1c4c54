package editor

import (
	"sort"

	"github.com/orneryd/ratatosk/pkg/graph"
)

// rebuildInbound runs phase 3: republication. Every node whose content
// changed is deep-set into each of its holders at the recorded path, the
// holders into their holders, and so on up to the roots. Holder values do
// not semantically change — their references simply point at republished
// children — so these writes do not enter the edited set, but the new value
// identity is what lets readers detect the update from any root.
//
// The rebuilt set doubles as the scheduling guard and the cycle breaker:
// reference cycles are ordinary here, and a node is republished at most
// once per merge. Later writes to an already-republished value land in
// place (the deep setter mutates transaction-local subtrees), so holders
// that embedded it earlier still observe them.
//
// Parameterized edges carry no projection path and are skipped: a container
// does not expose its parameterized children in its own value, so their
// updates never republish the container.
func (e *Editor) rebuildInbound() {
	queue := make([]graph.NodeID, 0, len(e.edited))
	rebuilt := make(map[graph.NodeID]struct{}, len(e.edited))
	for id := range e.edited {
		queue = append(queue, id)
		rebuilt[id] = struct{}{}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		rec := e.record(id)
		if rec == nil {
			continue
		}
		for _, in := range rec.Inbound {
			if in.Path == nil {
				continue
			}
			e.setValue(in.ID, in.Path, rec.Value, false)
			if _, done := rebuilt[in.ID]; !done {
				rebuilt[in.ID] = struct{}{}
				queue = append(queue, in.ID)
			}
		}
	}
}
