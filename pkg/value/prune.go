package value

import "github.com/orneryd/ratatosk/pkg/graph"

// PruneOutbound returns the record's value with the subtree at every
// projected outbound edge replaced by nil.
//
// Entity references embed the target's live value object, so a cyclic
// reference graph makes value trees cyclic in memory. Pruning cuts the tree
// at exactly the positions the edge list can restore, producing the finite
// form used for digests and serialization. The record itself is never
// mutated.
func PruneOutbound(rec *graph.Record) any {
	v := rec.Value
	for _, e := range rec.Outbound {
		if e.Path == nil {
			continue
		}
		// Passing the original value as the parent makes the setter clone
		// the spine instead of writing through the live tree.
		v = DeepSet(v, rec.Value, e.Path, nil)
	}
	return v
}

// ProjectOutbound restores what PruneOutbound cut: for every projected
// outbound edge it embeds the target's value object at the recorded path.
// Records must already be present in the snapshot; mutation is in place, so
// cyclic reference graphs knit back into shared, cyclic value trees exactly
// as a live transaction leaves them.
func ProjectOutbound(s *graph.Snapshot) {
	s.Each(func(id graph.NodeID, rec *graph.Record) {
		for _, e := range rec.Outbound {
			if e.Path == nil {
				continue
			}
			target := s.GetSnapshot(e.ID)
			if target == nil {
				continue
			}
			rec.Value = DeepSet(rec.Value, nil, e.Path, target.Value)
		}
	})
}

// RecordDigest digests a record's pruned value. This is the digest stamped
// at commit: stable, finite, and independent of which holders happen to
// share the value object.
func RecordDigest(rec *graph.Record) ([]byte, error) {
	return Digest(PruneOutbound(rec))
}
