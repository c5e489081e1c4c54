// Package editor implements the write transaction for Ratatosk's normalized
// graph cache.
//
// An Editor stages a private set of replacement node records over a parent
// snapshot. Payloads are merged with Merge, and Commit publishes a successor
// snapshot in which every record the transaction touched has been replaced
// and everything else is shared with the parent by object identity.
//
// # Transaction Semantics
//
// Each Merge runs four strictly ordered phases:
//
//  1. Payload walk: co-traverse the payload against the current node values,
//     writing scalar and array-shape changes directly into staged records and
//     collecting reference edits for positions whose node identity changed.
//  2. Reference edits: project target values into holders, maintain the
//     bidirectional edge lists, and flag nodes whose inbound set drained.
//  3. Inbound rebuild: republish every transitive holder of a changed value
//     so readers observe the update through any path from the roots.
//  4. Orphan collection: transitively delete nodes that became unreachable.
//
// The parent snapshot is never mutated; if a merge fails the editor is
// poisoned and the parent remains valid.
//
// # ELI12
//
// The cache is a wall of sticky notes connected with string. Merging a
// payload is done on a photocopy of just the notes you touch: you scribble
// new numbers on the copies, re-tie strings, throw away notes nothing points
// to anymore, and only at Commit does the new wall go up — whole, consistent,
// and sharing every untouched note with the old wall.
package editor

import (
	"fmt"
	"sort"

	"github.com/orneryd/ratatosk/pkg/graph"
	"github.com/orneryd/ratatosk/pkg/query"
	"github.com/orneryd/ratatosk/pkg/value"
)

// Logger receives non-fatal diagnostics from a transaction. It is shaped so
// a badger.Logger or a zerolog adapter can satisfy it.
type Logger interface {
	Warningf(format string, args ...any)
	Debugf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Warningf(string, ...any) {}
func (nopLogger) Debugf(string, ...any)   {}

// Config carries the editor's injected capabilities and policy switches.
type Config struct {
	// EntityID derives the entity id for a payload value, or reports false
	// for inline values. Required.
	EntityID graph.EntityIDFunc

	// Strict makes invariant violations (double-removed edges, conflicting
	// identities at one position) fail the merge instead of being tolerated
	// with a warning.
	Strict bool

	// FreezeSnapshots stamps every record produced by Commit with a content
	// digest. Go has no object freezing, so immutability is enforced by
	// detection: value.VerifySnapshot reports any record mutated after
	// commit.
	FreezeSnapshots bool

	// Logger receives warnings for tolerated violations. Nil means silent.
	Logger Logger
}

// Editor is a single write transaction over a parent snapshot.
//
// The zero value is not usable; open transactions with New. An editor is
// single-threaded by design — the host serializes writers — and runs each
// Merge to completion without suspending.
type Editor struct {
	cfg    Config
	parent *graph.Snapshot

	// staged maps node id to its replacement record. A nil entry is a
	// tombstone: the node is deleted in the successor snapshot.
	staged map[graph.NodeID]*graph.Record

	// edited holds nodes whose value content changed or that were deleted.
	// Republished-only nodes (new value identity, same content) are not
	// included.
	edited map[graph.NodeID]struct{}

	// orphans accumulates nodes whose inbound set drained during reference
	// edits; consumed by the orphan collector at the end of each merge.
	orphans map[graph.NodeID]struct{}

	err  error
	done bool
}

// New opens a transaction over parent. The configuration must provide
// EntityID; there is no usable default for entity identity.
func New(cfg Config, parent *graph.Snapshot) (*Editor, error) {
	if cfg.EntityID == nil {
		return nil, graph.ErrMissingEntityID
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if parent == nil {
		parent = graph.NewSnapshot()
	}
	return &Editor{
		cfg:     cfg,
		parent:  parent,
		staged:  make(map[graph.NodeID]*graph.Record),
		edited:  make(map[graph.NodeID]struct{}),
		orphans: make(map[graph.NodeID]struct{}),
	}, nil
}

// Merge normalizes one payload into the staged state. It may be called any
// number of times before Commit. On error the editor is poisoned: staged
// state is unusable and the parent snapshot is unaffected.
func (e *Editor) Merge(q *query.Query, payload map[string]any) error {
	if e.done || e.err != nil {
		return graph.ErrEditorClosed
	}
	if q == nil {
		return fmt.Errorf("%w: nil query", graph.ErrInvalidID)
	}
	if err := e.merge(q, payload); err != nil {
		e.err = err
		return err
	}
	return nil
}

func (e *Editor) merge(q *query.Query, payload map[string]any) error {
	w := &walker{
		editor: e,
		vars:   q.Bindings(),
	}
	w.enqueue(walkJob{container: q.Root(), payload: payload, edges: q.Edges})
	if err := w.run(); err != nil {
		return err
	}
	edits, err := e.collapseEdits(w.refEdits)
	if err != nil {
		return err
	}
	if err := e.applyReferenceEdits(edits); err != nil {
		return err
	}
	e.rebuildInbound()
	return e.collectOrphans()
}

// Commit publishes the successor snapshot and the set of nodes whose content
// changed or that were deleted, sorted. The editor cannot be used afterwards.
func (e *Editor) Commit() (*graph.Snapshot, []graph.NodeID, error) {
	if e.done || e.err != nil {
		return nil, nil, graph.ErrEditorClosed
	}
	if e.cfg.FreezeSnapshots {
		for id, rec := range e.staged {
			if rec == nil {
				continue
			}
			sum, err := value.RecordDigest(rec)
			if err != nil {
				e.err = fmt.Errorf("digest %s: %w", id, err)
				return nil, nil, e.err
			}
			rec.Digest = sum
		}
	}
	snap := e.parent.Overlay(e.staged)
	edited := make([]graph.NodeID, 0, len(e.edited))
	for id := range e.edited {
		edited = append(edited, id)
	}
	sort.Slice(edited, func(i, j int) bool { return edited[i] < edited[j] })
	e.done = true
	return snap, edited, nil
}

// record returns the node's current record: the staged replacement when one
// exists (nil for a tombstone), otherwise the parent's record. The result
// must not be mutated unless it came from stage.
func (e *Editor) record(id graph.NodeID) *graph.Record {
	if rec, ok := e.staged[id]; ok {
		return rec
	}
	return e.parent.GetSnapshot(id)
}

// stage promotes a node into the editor's private record table, cloning the
// parent's record on first touch. A tombstoned node is resurrected empty.
func (e *Editor) stage(id graph.NodeID) *graph.Record {
	if rec, ok := e.staged[id]; ok {
		if rec == nil {
			rec = &graph.Record{}
			e.staged[id] = rec
		}
		return rec
	}
	var rec *graph.Record
	if prev := e.parent.GetSnapshot(id); prev != nil {
		rec = prev.Clone()
	} else {
		rec = &graph.Record{}
	}
	e.staged[id] = rec
	return rec
}

// currentValue reads a node's staged value, falling back to the parent.
func (e *Editor) currentValue(id graph.NodeID) any {
	rec := e.record(id)
	if rec == nil {
		return nil
	}
	return rec.Value
}

// parentValue reads a node's value in the parent snapshot. The deep setter
// clones exactly the staged subtrees that still alias this tree.
func (e *Editor) parentValue(id graph.NodeID) any {
	rec := e.parent.GetSnapshot(id)
	if rec == nil {
		return nil
	}
	return rec.Value
}

// setValue deep-sets v at path inside the node's staged value. isEdit marks
// a content change; republication (isEdit=false) changes value identity
// without entering the edited set.
func (e *Editor) setValue(id graph.NodeID, path graph.Path, v any, isEdit bool) {
	rec := e.stage(id)
	rec.Value = value.DeepSet(rec.Value, e.parentValue(id), path, v)
	// Any inherited digest stamp no longer matches; Commit re-stamps when
	// integrity digests are enabled.
	rec.Digest = nil
	if isEdit {
		e.edited[id] = struct{}{}
	}
}

// outboundTarget resolves the node currently referenced at (holder, path).
func (e *Editor) outboundTarget(holder graph.NodeID, path graph.Path) (graph.NodeID, bool) {
	rec := e.record(holder)
	if rec == nil {
		return "", false
	}
	return rec.OutboundTarget(path)
}

// isRoot reports whether id belongs to the parent snapshot's root set.
func (e *Editor) isRoot(id graph.NodeID) bool {
	return e.parent.IsRoot(id)
}
