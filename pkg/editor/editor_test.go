package editor

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/ratatosk/pkg/graph"
	"github.com/orneryd/ratatosk/pkg/query"
)

func testConfig() Config {
	return Config{EntityID: graph.EntityIDFromField("id")}
}

func newEditor(t *testing.T, parent *graph.Snapshot) *Editor {
	t.Helper()
	ed, err := New(testConfig(), parent)
	require.NoError(t, err)
	return ed
}

// payload parses a JSON literal so numbers arrive as float64, exactly as
// they would from a transport layer.
func payload(t *testing.T, raw string) map[string]any {
	t.Helper()
	var p map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func mergeCommit(t *testing.T, parent *graph.Snapshot, q *query.Query, raw string) (*graph.Snapshot, []graph.NodeID) {
	t.Helper()
	ed := newEditor(t, parent)
	require.NoError(t, ed.Merge(q, payload(t, raw)))
	snap, edited, err := ed.Commit()
	require.NoError(t, err)
	return snap, edited
}

// fooQuery is query($id) { foo(id: $id, withExtra: true) { ... } }.
func fooQuery(id any) *query.Query {
	return &query.Query{
		Variables: map[string]any{"id": id},
		Edges: query.Selection(map[string]*query.EdgeTree{
			"foo": query.Parameterized(map[string]any{
				"id":        query.Var("id"),
				"withExtra": true,
			}, nil),
		}),
	}
}

const fooParamID = graph.NodeID(`QueryRoot❖["foo"]❖{"id":1,"withExtra":true}`)

func TestMerge_NewParameterizedField(t *testing.T) {
	snap, edited := mergeCommit(t, graph.NewSnapshot(), fooQuery(float64(1)),
		`{"foo":{"name":"Foo","extra":false}}`)

	param := snap.GetSnapshot(fooParamID)
	require.NotNil(t, param, "parameterized node should exist")
	assert.Equal(t, map[string]any{"name": "Foo", "extra": false}, param.Value)

	root := snap.GetSnapshot(graph.QueryRootID)
	require.NotNil(t, root)
	assert.Equal(t, []graph.Edge{{ID: fooParamID, Path: nil}}, root.Outbound)
	assert.Equal(t, []graph.Edge{{ID: graph.QueryRootID, Path: nil}}, param.Inbound)

	// The parameterized value is not exposed in the container's own value.
	assert.Nil(t, snap.Get(graph.QueryRootID))

	assert.Equal(t, []graph.NodeID{fooParamID}, edited)
}

func TestMerge_UpdateParameterizedScalar(t *testing.T) {
	base, _ := mergeCommit(t, graph.NewSnapshot(), fooQuery(float64(1)),
		`{"foo":{"name":"Foo","extra":false}}`)
	rootBefore := base.GetSnapshot(graph.QueryRootID)

	snap, edited := mergeCommit(t, base, fooQuery(float64(1)),
		`{"foo":{"name":"Foo Bar"}}`)

	assert.Equal(t, map[string]any{"name": "Foo Bar", "extra": false}, snap.Get(fooParamID))
	assert.Same(t, rootBefore, snap.GetSnapshot(graph.QueryRootID),
		"container is untouched by a parameterized child's content change")
	assert.Equal(t, []graph.NodeID{fooParamID}, edited)

	// The base snapshot is unaffected.
	assert.Equal(t, map[string]any{"name": "Foo", "extra": false}, base.Get(fooParamID))
}

func TestMerge_ParameterizedEntityReference(t *testing.T) {
	snap, edited := mergeCommit(t, graph.NewSnapshot(), fooQuery(float64(1)),
		`{"foo":{"id":1,"name":"Foo","extra":false}}`)

	entity := snap.GetSnapshot("1")
	require.NotNil(t, entity)
	assert.Equal(t, map[string]any{"id": float64(1), "name": "Foo", "extra": false}, entity.Value)

	param := snap.GetSnapshot(fooParamID)
	require.NotNil(t, param)
	assert.True(t, sameObject(param.Value, entity.Value),
		"parameterized node projects the entity's value object")

	assert.Equal(t, []graph.Edge{{ID: "1", Path: graph.Path{}}}, param.Outbound)
	assert.Equal(t, []graph.Edge{{ID: fooParamID, Path: graph.Path{}}}, entity.Inbound)
	assert.Equal(t, []graph.NodeID{"1", fooParamID}, edited)
}

func TestMerge_IndirectUpdateThroughOtherQuery(t *testing.T) {
	base, _ := mergeCommit(t, graph.NewSnapshot(), fooQuery(float64(1)),
		`{"foo":{"id":1,"name":"Foo","extra":false}}`)

	snap, edited := mergeCommit(t, base, &query.Query{},
		`{"viewer":{"id":1,"name":"Foo Bar"}}`)

	entity := snap.GetSnapshot("1")
	require.NotNil(t, entity)
	assert.Equal(t, "Foo Bar", entity.Value.(map[string]any)["name"])

	assert.True(t, sameObject(snap.Get(fooParamID), entity.Value),
		"parameterized node republished to the entity's new value")
	root := snap.Get(graph.QueryRootID).(map[string]any)
	assert.True(t, sameObject(root["viewer"], entity.Value))

	assert.Equal(t, []graph.NodeID{"1", graph.QueryRootID}, edited,
		"republished-only nodes stay out of the edited set")
}

func TestMerge_ArrayOfReferencesPartialUpdate(t *testing.T) {
	q := fooQuery(float64(1))
	base, _ := mergeCommit(t, graph.NewSnapshot(), q,
		`{"foo":[{"id":1,"name":"Foo","extra":false},{"id":2,"name":"Bar","extra":true},{"id":3,"name":"Baz","extra":false}]}`)

	snap, _ := mergeCommit(t, base, fooQuery(float64(1)),
		`{"foo":[{"extra":true},{"extra":false},{"extra":true}]}`)

	wantNames := []string{"Foo", "Bar", "Baz"}
	wantExtras := []bool{true, false, true}
	for i, id := range []graph.NodeID{"1", "2", "3"} {
		val := snap.Get(id).(map[string]any)
		assert.Equal(t, wantNames[i], val["name"], "node %s keeps its name", id)
		assert.Equal(t, wantExtras[i], val["extra"], "node %s extra updated", id)
	}

	arr := snap.Get(fooParamID).([]any)
	require.Len(t, arr, 3)
	for i, id := range []graph.NodeID{"1", "2", "3"} {
		assert.True(t, sameObject(arr[i], snap.Get(id)), "element %d projects entity %s", i, id)
	}
}

func nestedQuery(id any) *query.Query {
	return &query.Query{
		Variables: map[string]any{"id": id},
		Edges: query.Selection(map[string]*query.EdgeTree{
			"one": query.Selection(map[string]*query.EdgeTree{
				"two": query.Parameterized(map[string]any{"id": query.Var("id")},
					map[string]*query.EdgeTree{
						"three": query.Selection(map[string]*query.EdgeTree{
							"four": query.Parameterized(map[string]any{"extra": true}, nil),
						}),
					}),
			}),
		}),
	}
}

const (
	nestedCID    = graph.NodeID(`QueryRoot❖["one","two"]❖{"id":1}`)
	nestedChild0 = nestedCID + graph.NodeID(`❖[0,"three","four"]❖{"extra":true}`)
	nestedChild1 = nestedCID + graph.NodeID(`❖[1,"three","four"]❖{"extra":true}`)
)

func TestMerge_NestedParameterizedInsideArray(t *testing.T) {
	snap, _ := mergeCommit(t, graph.NewSnapshot(), nestedQuery(float64(1)),
		`{"one":{"two":[{"three":{"four":{"five":"!"}}},{"three":{"four":{"five":"?"}}}]}}`)

	cid := snap.GetSnapshot(nestedCID)
	require.NotNil(t, cid)
	assert.Equal(t, []any{nil, nil}, cid.Value,
		"parameterized children leave holes in the container's array")

	assert.Equal(t, map[string]any{"five": "!"}, snap.Get(nestedChild0))
	assert.Equal(t, map[string]any{"five": "?"}, snap.Get(nestedChild1))

	assert.True(t, cid.HasOutbound(nestedChild0, nil))
	assert.True(t, cid.HasOutbound(nestedChild1, nil))
	assert.True(t, snap.GetSnapshot(nestedChild0).HasInbound(nestedCID, nil))
	assert.True(t, snap.GetSnapshot(nestedChild1).HasInbound(nestedCID, nil))

	root := snap.GetSnapshot(graph.QueryRootID)
	assert.True(t, root.HasOutbound(nestedCID, nil))
}

func TestMerge_NestedParameterizedRewriteWithNull(t *testing.T) {
	base, _ := mergeCommit(t, graph.NewSnapshot(), nestedQuery(float64(1)),
		`{"one":{"two":[{"three":{"four":{"five":"!"}}},{"three":{"four":{"five":"?"}}}]}}`)
	child0Before := base.GetSnapshot(nestedChild0)

	snap, _ := mergeCommit(t, base, nestedQuery(float64(1)),
		`{"one":{"two":[null,{"three":{"four":{"five":"¡"}}}]}}`)

	assert.Equal(t, []any{nil, nil}, snap.Get(nestedCID))
	assert.Equal(t, map[string]any{"five": "¡"}, snap.Get(nestedChild1))
	assert.Same(t, child0Before, snap.GetSnapshot(nestedChild0),
		"the null element does not disturb its parameterized child")
}

func TestMerge_EntityUpdateMergesFields(t *testing.T) {
	base, _ := mergeCommit(t, graph.NewSnapshot(), &query.Query{},
		`{"viewer":{"id":1,"name":"Alice","role":"admin"}}`)

	snap, _ := mergeCommit(t, base, &query.Query{},
		`{"viewer":{"name":"Alice B"}}`)

	val := snap.Get("1").(map[string]any)
	assert.Equal(t, "Alice B", val["name"])
	assert.Equal(t, "admin", val["role"], "fields absent from the payload survive")
}

func TestMerge_ReferenceReplacementCollectsOrphans(t *testing.T) {
	base, _ := mergeCommit(t, graph.NewSnapshot(), &query.Query{},
		`{"viewer":{"id":1,"name":"A","friend":{"id":2,"name":"B"}}}`)
	require.NotNil(t, base.GetSnapshot("2"))

	snap, edited := mergeCommit(t, base, &query.Query{},
		`{"viewer":{"id":3,"name":"C"}}`)

	assert.Nil(t, snap.GetSnapshot("1"), "replaced entity is collected")
	assert.Nil(t, snap.GetSnapshot("2"), "its exclusive children go with it")
	require.NotNil(t, snap.GetSnapshot("3"))
	assert.Equal(t, []graph.NodeID{"1", "2", "3", graph.QueryRootID}, edited,
		"deletions are observable edits")
}

func TestMerge_DetachReferenceWithNull(t *testing.T) {
	base, _ := mergeCommit(t, graph.NewSnapshot(), &query.Query{},
		`{"viewer":{"id":1,"name":"A"}}`)

	snap, _ := mergeCommit(t, base, &query.Query{}, `{"viewer":null}`)

	assert.Nil(t, snap.GetSnapshot("1"))
	root := snap.Get(graph.QueryRootID).(map[string]any)
	v, present := root["viewer"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestMerge_SharedEntitySurvivesOneHolderDetaching(t *testing.T) {
	base, _ := mergeCommit(t, graph.NewSnapshot(), &query.Query{},
		`{"viewer":{"id":1,"name":"A"},"owner":{"id":1}}`)
	require.NotNil(t, base.GetSnapshot("1"))

	snap, _ := mergeCommit(t, base, &query.Query{}, `{"owner":null}`)

	require.NotNil(t, snap.GetSnapshot("1"), "entity still held via viewer")
	assert.True(t, snap.GetSnapshot("1").HasInbound(graph.QueryRootID, graph.Path{graph.Field("viewer")}))
}

func TestMerge_ArrayShrinksAndGrows(t *testing.T) {
	base, _ := mergeCommit(t, graph.NewSnapshot(), &query.Query{},
		`{"tags":["a","b","c"]}`)
	assert.Equal(t, []any{"a", "b", "c"}, base.Get(graph.QueryRootID).(map[string]any)["tags"])

	shrunk, _ := mergeCommit(t, base, &query.Query{}, `{"tags":["a"]}`)
	assert.Equal(t, []any{"a"}, shrunk.Get(graph.QueryRootID).(map[string]any)["tags"])

	grown, _ := mergeCommit(t, shrunk, &query.Query{}, `{"tags":["a","z","x","y"]}`)
	assert.Equal(t, []any{"a", "z", "x", "y"}, grown.Get(graph.QueryRootID).(map[string]any)["tags"])
}

func TestMerge_CyclicReferences(t *testing.T) {
	base, _ := mergeCommit(t, graph.NewSnapshot(), &query.Query{},
		`{"viewer":{"id":1,"name":"A","friend":{"id":2,"name":"B","friend":{"id":1}}}}`)

	one := base.GetSnapshot("1")
	two := base.GetSnapshot("2")
	require.NotNil(t, one)
	require.NotNil(t, two)
	assert.True(t, one.HasOutbound("2", graph.Path{graph.Field("friend")}))
	assert.True(t, two.HasOutbound("1", graph.Path{graph.Field("friend")}))

	// Updating one side of the cycle terminates and republishes both.
	snap, edited := mergeCommit(t, base, &query.Query{},
		`{"viewer":{"id":1,"name":"A2"}}`)
	assert.Equal(t, []graph.NodeID{"1"}, edited)
	assert.Equal(t, "A2", snap.Get("1").(map[string]any)["name"])
	assert.Equal(t, "A2",
		snap.Get("2").(map[string]any)["friend"].(map[string]any)["name"],
		"the cycle partner observes the update")
}

func TestEditor_ConfigRequiresEntityID(t *testing.T) {
	_, err := New(Config{}, graph.NewSnapshot())
	assert.ErrorIs(t, err, graph.ErrMissingEntityID)
}

func TestEditor_PoisonedAfterError(t *testing.T) {
	ed, err := New(Config{EntityID: graph.EntityIDFromField("id"), Strict: true}, graph.NewSnapshot())
	require.NoError(t, err)

	// Conflicting identities for the same position in one merge.
	err = ed.Merge(&query.Query{}, payload(t,
		`{"a":{"id":1,"friend":{"id":2}},"b":{"id":1,"friend":{"id":3}}}`))
	require.ErrorIs(t, err, graph.ErrIdentityConflict)

	assert.ErrorIs(t, ed.Merge(&query.Query{}, payload(t, `{}`)), graph.ErrEditorClosed)
	_, _, err = ed.Commit()
	assert.ErrorIs(t, err, graph.ErrEditorClosed)
}

func TestEditor_CommitClosesEditor(t *testing.T) {
	ed := newEditor(t, graph.NewSnapshot())
	require.NoError(t, ed.Merge(&query.Query{}, payload(t, `{"x":1}`)))
	_, _, err := ed.Commit()
	require.NoError(t, err)
	_, _, err = ed.Commit()
	assert.ErrorIs(t, err, graph.ErrEditorClosed)
}

func TestEditor_StrictEdgeSymmetry(t *testing.T) {
	// A snapshot whose holder claims an outbound edge the target does not
	// mirror. Replacing the reference trips the inbound removal.
	snap := graph.NewSnapshot()
	snap.Put(graph.QueryRootID, &graph.Record{
		Value:    map[string]any{"viewer": map[string]any{"id": float64(1)}},
		Outbound: []graph.Edge{{ID: "1", Path: graph.Path{graph.Field("viewer")}}},
	})
	snap.Put("1", &graph.Record{Value: map[string]any{"id": float64(1)}})

	ed, err := New(Config{EntityID: graph.EntityIDFromField("id"), Strict: true}, snap)
	require.NoError(t, err)
	err = ed.Merge(&query.Query{}, payload(t, `{"viewer":{"id":2}}`))
	assert.ErrorIs(t, err, graph.ErrEdgeNotFound)
}

func TestEditor_MultipleMergesOneCommit(t *testing.T) {
	ed := newEditor(t, graph.NewSnapshot())
	require.NoError(t, ed.Merge(&query.Query{}, payload(t, `{"viewer":{"id":1,"name":"A"}}`)))
	require.NoError(t, ed.Merge(&query.Query{}, payload(t, `{"viewer":{"id":1,"name":"B"}}`)))
	snap, edited, err := ed.Commit()
	require.NoError(t, err)
	assert.Equal(t, "B", snap.Get("1").(map[string]any)["name"])
	assert.Equal(t, []graph.NodeID{"1", graph.QueryRootID}, edited)
}

// sameObject reports container object identity, the cache's "unchanged"
// signal.
func sameObject(a, b any) bool {
	pa, pb := identityOf(a), identityOf(b)
	return pa != 0 && pa == pb
}

func identityOf(v any) uintptr {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		return rv.Pointer()
	}
	return 0
}
