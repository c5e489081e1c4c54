// Package ratatosk provides the main API for embedded cache usage.
//
// A Cache wraps the current immutable snapshot, serializes writers, and
// optionally keeps the snapshot durable on disk. Reads are answered straight
// from the snapshot and never block writes; writes open an editor
// transaction, merge one or more payloads, and atomically publish the
// successor snapshot.
//
// Example Usage:
//
//	cache, err := ratatosk.Open("", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer cache.Close()
//
//	q := &query.Query{
//		Variables: map[string]any{"id": 1},
//		Edges: query.Selection(map[string]*query.EdgeTree{
//			"user": query.Parameterized(map[string]any{"id": query.Var("id")}, nil),
//		}),
//	}
//	edited, err := cache.Write(q, map[string]any{
//		"user": map[string]any{"id": 1, "name": "Alice"},
//	})
//
//	fmt.Println(edited, cache.Get("1"))
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Writers are serialized; a
//	reader always sees a fully committed snapshot.
package ratatosk

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/ratatosk/pkg/editor"
	"github.com/orneryd/ratatosk/pkg/graph"
	"github.com/orneryd/ratatosk/pkg/logger"
	"github.com/orneryd/ratatosk/pkg/persist"
	"github.com/orneryd/ratatosk/pkg/query"
	"github.com/orneryd/ratatosk/pkg/value"
)

// Config holds cache-level settings. The yaml tags let hosts and the CLI
// keep configuration in files.
type Config struct {
	// EntityIDField is the payload field entity ids are read from. Used
	// only when EntityID is nil.
	EntityIDField string `yaml:"entity_id_field"`

	// EntityID overrides EntityIDField with a custom identity function.
	EntityID graph.EntityIDFunc `yaml:"-"`

	// RootIDs is the snapshot root set. Empty means {QueryRoot}.
	RootIDs []string `yaml:"root_ids"`

	// Strict fails merges on invariant violations.
	Strict bool `yaml:"strict"`

	// FreezeSnapshots stamps integrity digests at commit.
	FreezeSnapshots bool `yaml:"freeze_snapshots"`

	// SyncWrites forces fsync on every durable save.
	SyncWrites bool `yaml:"sync_writes"`
}

// DefaultConfig returns the conventional GraphQL setup: entities keyed on
// the "id" field, a single QueryRoot, tolerant merges.
func DefaultConfig() *Config {
	return &Config{EntityIDField: "id"}
}

// ParseConfig decodes a YAML config file.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Cache is an embedded normalized graph cache instance.
type Cache struct {
	config *Config
	log    *logger.Adapter

	mu     sync.RWMutex
	snap   *graph.Snapshot
	store  *persist.Store
	closed bool
}

// Open creates a cache. With a dataDir the stored snapshot is restored and
// every successful write is saved back; with an empty dataDir the cache is
// purely in-memory. A nil config means DefaultConfig().
func Open(dataDir string, cfg *Config) (*Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.EntityID == nil {
		if cfg.EntityIDField == "" {
			return nil, graph.ErrMissingEntityID
		}
		cfg.EntityID = graph.EntityIDFromField(cfg.EntityIDField)
	}

	c := &Cache{config: cfg, log: logger.New()}

	roots := make([]graph.NodeID, 0, len(cfg.RootIDs))
	for _, r := range cfg.RootIDs {
		roots = append(roots, graph.NodeID(r))
	}

	if dataDir == "" {
		c.snap = graph.NewSnapshot(roots...)
		return c, nil
	}

	store, err := persist.Open(persist.Options{DataDir: dataDir, SyncWrites: cfg.SyncWrites})
	if err != nil {
		return nil, err
	}
	snap, err := store.Load(roots...)
	if err != nil {
		store.Close()
		return nil, err
	}
	c.store = store
	c.snap = snap
	c.log.Debugf("restored snapshot: %d nodes, %d edges", snap.NodeCount(), snap.EdgeCount())
	return c, nil
}

// Write merges one payload and publishes the successor snapshot. It returns
// the ids of nodes whose content changed or that were deleted.
func (c *Cache) Write(q *query.Query, payload map[string]any) ([]graph.NodeID, error) {
	return c.WriteAll([]Write{{Query: q, Payload: payload}})
}

// Write is one (query, payload) pair for WriteAll.
type Write struct {
	Query   *query.Query
	Payload map[string]any
}

// WriteAll merges several payloads in one transaction: either every payload
// lands in the published snapshot or none does.
func (c *Cache) WriteAll(writes []Write) ([]graph.NodeID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, graph.ErrEditorClosed
	}

	ed, err := editor.New(editor.Config{
		EntityID:        c.config.EntityID,
		Strict:          c.config.Strict,
		FreezeSnapshots: c.config.FreezeSnapshots,
		Logger:          c.log,
	}, c.snap)
	if err != nil {
		return nil, err
	}
	for _, w := range writes {
		if err := ed.Merge(w.Query, w.Payload); err != nil {
			return nil, err
		}
	}
	snap, edited, err := ed.Commit()
	if err != nil {
		return nil, err
	}

	if c.store != nil {
		if err := c.store.Save(snap); err != nil {
			// The merge is sound; only durability failed. Surface the
			// error without publishing so memory and disk stay agreed.
			return nil, err
		}
	}
	c.snap = snap
	return edited, nil
}

// GetSnapshot returns the current snapshot. It stays valid and immutable
// after subsequent writes.
func (c *Cache) GetSnapshot() *graph.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Get returns the current value of a node, or nil.
func (c *Cache) Get(id graph.NodeID) any {
	return c.GetSnapshot().Get(id)
}

// Stats reports the current snapshot's size.
func (c *Cache) Stats() (nodes, edges int) {
	snap := c.GetSnapshot()
	return snap.NodeCount(), snap.EdgeCount()
}

// CheckIntegrity verifies digests (when enabled), edge symmetry, and
// reachability on the current snapshot. It returns nil when all hold.
func (c *Cache) CheckIntegrity() error {
	snap := c.GetSnapshot()
	if bad, err := value.VerifySnapshot(snap); err != nil {
		return err
	} else if len(bad) > 0 {
		return fmt.Errorf("%w: mutated records %v", graph.ErrSnapshotCorrupt, bad)
	}
	if bad := snap.CheckSymmetry(); bad != nil {
		return fmt.Errorf("%w: asymmetric edges on %v", graph.ErrSnapshotCorrupt, bad)
	}
	if orphaned := snap.Unreachable(); len(orphaned) > 0 {
		return fmt.Errorf("%w: unreachable records %v", graph.ErrSnapshotCorrupt, orphaned)
	}
	return nil
}

// Export renders the current snapshot as indented JSON.
func (c *Cache) Export() ([]byte, error) {
	return persist.MarshalExport(c.GetSnapshot())
}

// Import replaces the cache contents with an exported snapshot.
func (c *Cache) Import(data []byte) error {
	snap, err := persist.UnmarshalExport(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return graph.ErrEditorClosed
	}
	if c.store != nil {
		if err := c.store.Save(snap); err != nil {
			return err
		}
	}
	c.snap = snap
	return nil
}

// Close releases the durable store, if any. The last snapshot remains
// readable.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
