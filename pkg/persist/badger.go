// Package persist stores committed snapshots durably.
//
// A snapshot is written to BadgerDB as one record per node plus a manifest.
// Saves replace the previous snapshot atomically within badger's transaction
// guarantees, and loads verify the manifest checksum before handing the
// graph back, so a torn or tampered store surfaces as ErrSnapshotCorrupt
// instead of a silently wrong cache.
//
// Key Structure:
//   - Manifest: 0x00 -> JSON(Manifest)
//   - Records:  0x01 + nodeID -> JSON(Record)
package persist

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/crypto/blake2b"

	"github.com/orneryd/ratatosk/pkg/graph"
	"github.com/orneryd/ratatosk/pkg/value"
)

const (
	prefixManifest = byte(0x00)
	prefixRecord   = byte(0x01)
)

// Manifest describes the stored snapshot and anchors its integrity.
type Manifest struct {
	Roots     []graph.NodeID `json:"roots"`
	NodeCount int            `json:"nodeCount"`

	// Checksum is the blake2b-256 of the sorted node id list. Load refuses
	// a store whose record set does not hash to this value.
	Checksum []byte `json:"checksum"`
}

// Options configures the snapshot store.
type Options struct {
	// DataDir is the badger directory. Required unless InMemory.
	DataDir string

	// InMemory keeps the store in RAM. Useful for tests.
	InMemory bool

	// SyncWrites forces fsync after each save.
	SyncWrites bool

	// Logger receives badger's internal diagnostics. Nil silences them.
	Logger badger.Logger
}

// Store is a durable home for one snapshot.
//
// Thread Safety:
//
//	Safe for concurrent use; badger serializes conflicting writes and the
//	cache only saves from its single writer.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) the snapshot store.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	// Snapshot stores are small relative to badger's defaults; keep the
	// table and cache sizes modest.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithBlockCacheSize(32 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored snapshot with snap.
func (s *Store) Save(snap *graph.Snapshot) error {
	ids := snap.NodeIDs()
	manifest := Manifest{
		Roots:     snap.Roots(),
		NodeCount: len(ids),
		Checksum:  idChecksum(ids),
	}
	manifestData, err := json.Marshal(&manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		// Drop records absent from the new snapshot.
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte{prefixRecord}})
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if !snap.Has(graph.NodeID(key[1:])) {
				stale = append(stale, key)
			}
		}
		it.Close()
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		for _, id := range ids {
			rec := snap.GetSnapshot(id)
			// Serialize the pruned form: entity projections are cut so
			// cyclic reference graphs marshal finitely, and restored from
			// the edge lists on load.
			stored := &graph.Record{
				Value:    value.PruneOutbound(rec),
				Inbound:  rec.Inbound,
				Outbound: rec.Outbound,
				Digest:   rec.Digest,
			}
			data, err := json.Marshal(stored)
			if err != nil {
				return fmt.Errorf("marshal record %s: %w", id, err)
			}
			if err := txn.Set(recordKey(id), data); err != nil {
				return err
			}
		}
		return txn.Set([]byte{prefixManifest}, manifestData)
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load restores the stored snapshot. A store that was never saved to
// returns an empty snapshot with the given default roots.
func (s *Store) Load(defaultRoots ...graph.NodeID) (*graph.Snapshot, error) {
	var manifest *Manifest
	records := make(map[graph.NodeID]*graph.Record)

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte{prefixManifest})
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(data []byte) error {
			manifest = &Manifest{}
			return json.Unmarshal(data, manifest)
		}); err != nil {
			return fmt.Errorf("%w: bad manifest: %v", graph.ErrSnapshotCorrupt, err)
		}

		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte{prefixRecord}})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := graph.NodeID(item.Key()[1:])
			err := item.Value(func(data []byte) error {
				rec := &graph.Record{}
				if err := json.Unmarshal(data, rec); err != nil {
					return fmt.Errorf("%w: bad record %s: %v", graph.ErrSnapshotCorrupt, id, err)
				}
				records[id] = rec
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if manifest == nil {
		return graph.NewSnapshot(defaultRoots...), nil
	}
	if manifest.NodeCount != len(records) {
		return nil, fmt.Errorf("%w: manifest counts %d records, store has %d",
			graph.ErrSnapshotCorrupt, manifest.NodeCount, len(records))
	}

	snap := graph.NewSnapshot(manifest.Roots...)
	for id, rec := range records {
		snap.Put(id, rec)
	}
	if !bytes.Equal(idChecksum(snap.NodeIDs()), manifest.Checksum) {
		return nil, fmt.Errorf("%w: checksum mismatch", graph.ErrSnapshotCorrupt)
	}
	value.ProjectOutbound(snap)
	return snap, nil
}

func recordKey(id graph.NodeID) []byte {
	key := make([]byte, 0, len(id)+1)
	key = append(key, prefixRecord)
	return append(key, id...)
}

func idChecksum(ids []graph.NodeID) []byte {
	h, _ := blake2b.New256(nil)
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return h.Sum(nil)
}
