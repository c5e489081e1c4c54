package value

import (
	"bytes"
	"encoding/json"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/orneryd/ratatosk/pkg/graph"
)

// Digest returns the blake2b-256 digest of the canonical JSON rendering of a
// value tree. encoding/json sorts mapping keys, so the digest is stable
// across key insertion order.
//
// Digests are stamped onto records at commit when integrity checking is
// enabled, standing in for the deep-freeze a dynamic runtime would use:
// a committed tree cannot be made unwritable, but mutation is detectable.
func Digest(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	sum := blake2b.Sum256(data)
	return sum[:], nil
}

// VerifySnapshot recomputes the digest of every stamped record and returns
// the ids whose value no longer matches, sorted. Records without a stamp are
// skipped. A non-empty result means something mutated a committed snapshot
// out of band.
func VerifySnapshot(s *graph.Snapshot) ([]graph.NodeID, error) {
	var bad []graph.NodeID
	var firstErr error
	s.Each(func(id graph.NodeID, rec *graph.Record) {
		if len(rec.Digest) == 0 || firstErr != nil {
			return
		}
		sum, err := RecordDigest(rec)
		if err != nil {
			firstErr = err
			return
		}
		if !bytes.Equal(sum, rec.Digest) {
			bad = append(bad, id)
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	sort.Slice(bad, func(i, j int) bool { return bad[i] < bad[j] })
	return bad, nil
}
