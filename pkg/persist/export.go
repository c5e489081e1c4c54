package persist

import (
	"encoding/json"
	"fmt"

	"github.com/orneryd/ratatosk/pkg/graph"
	"github.com/orneryd/ratatosk/pkg/value"
)

// Export is the portable JSON form of a snapshot, for moving graphs between
// processes or inspecting them with ordinary tools.
type Export struct {
	Roots []string     `json:"roots"`
	Nodes []ExportNode `json:"nodes"`
}

// ExportNode is one node record in the export format. Paths serialize to
// JSON arrays of field names and indices; a null path marks a
// parameterized-value edge.
type ExportNode struct {
	ID       string       `json:"id"`
	Value    any          `json:"value,omitempty"`
	Inbound  []graph.Edge `json:"inbound,omitempty"`
	Outbound []graph.Edge `json:"outbound,omitempty"`
}

// ToExport renders a snapshot in the export format, nodes sorted by id.
func ToExport(snap *graph.Snapshot) *Export {
	ids := snap.NodeIDs()
	export := &Export{Nodes: make([]ExportNode, 0, len(ids))}
	for _, root := range snap.Roots() {
		export.Roots = append(export.Roots, string(root))
	}
	for _, id := range ids {
		rec := snap.GetSnapshot(id)
		export.Nodes = append(export.Nodes, ExportNode{
			ID:       string(id),
			Value:    value.PruneOutbound(rec),
			Inbound:  rec.Inbound,
			Outbound: rec.Outbound,
		})
	}
	return export
}

// FromExport rebuilds a snapshot from the export format, verifying edge
// symmetry before returning it.
func FromExport(export *Export) (*graph.Snapshot, error) {
	roots := make([]graph.NodeID, 0, len(export.Roots))
	for _, r := range export.Roots {
		roots = append(roots, graph.NodeID(r))
	}
	snap := graph.NewSnapshot(roots...)
	for _, n := range export.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: export node without id", graph.ErrInvalidID)
		}
		snap.Put(graph.NodeID(n.ID), &graph.Record{
			Value:    n.Value,
			Inbound:  n.Inbound,
			Outbound: n.Outbound,
		})
	}
	if bad := snap.CheckSymmetry(); bad != nil {
		return nil, fmt.Errorf("%w: asymmetric edges on %v", graph.ErrSnapshotCorrupt, bad)
	}
	value.ProjectOutbound(snap)
	return snap, nil
}

// MarshalExport renders a snapshot as indented JSON.
func MarshalExport(snap *graph.Snapshot) ([]byte, error) {
	return json.MarshalIndent(ToExport(snap), "", "  ")
}

// UnmarshalExport parses MarshalExport output back into a snapshot.
func UnmarshalExport(data []byte) (*graph.Snapshot, error) {
	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}
	return FromExport(&export)
}
