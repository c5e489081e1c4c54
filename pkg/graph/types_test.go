package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPath_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Path
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs empty", nil, Path{}, false},
		{"empty vs empty", Path{}, Path{}, true},
		{"same steps", Path{Field("a"), Index(0)}, Path{Field("a"), Index(0)}, true},
		{"different field", Path{Field("a")}, Path{Field("b")}, false},
		{"field vs index", Path{Field("0")}, Path{Index(0)}, false},
		{"length", Path{Field("a")}, Path{Field("a"), Field("b")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
			assert.Equal(t, tt.want, tt.b.Equal(tt.a))
		})
	}
}

func TestPath_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		path Path
		json string
	}{
		{"nil is null", nil, `null`},
		{"empty", Path{}, `[]`},
		{"mixed", Path{Field("one"), Index(0), Field("two")}, `["one",0,"two"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.json, string(data))

			var back Path
			require.NoError(t, json.Unmarshal(data, &back))
			assert.True(t, tt.path.Equal(back), "round trip changed the path")
		})
	}
}

func TestPath_ChildDoesNotAliasParent(t *testing.T) {
	base := Path{Field("a")}
	c1 := base.Child(Field("b"))
	c2 := base.Child(Field("c"))
	assert.True(t, c1.Equal(Path{Field("a"), Field("b")}))
	assert.True(t, c2.Equal(Path{Field("a"), Field("c")}))
	assert.True(t, base.Equal(Path{Field("a")}))
}

func TestRecord_EdgeMultiplicity(t *testing.T) {
	rec := &Record{}
	p := Path{Field("x")}
	rec.AddInbound("h", p)
	rec.AddInbound("h", p)

	removed, empty := rec.RemoveInbound("h", p)
	assert.True(t, removed)
	assert.False(t, empty, "one occurrence remains")

	removed, empty = rec.RemoveInbound("h", p)
	assert.True(t, removed)
	assert.True(t, empty)

	removed, empty = rec.RemoveInbound("h", p)
	assert.False(t, removed)
	assert.True(t, empty)
}

func TestRecord_PathlessEdgesAreDistinct(t *testing.T) {
	rec := &Record{}
	rec.AddOutbound("t", nil)
	assert.True(t, rec.HasOutbound("t", nil))
	assert.False(t, rec.HasOutbound("t", Path{}), "nil and empty paths are different edges")
}

func TestRecord_CloneIsolatesEdges(t *testing.T) {
	rec := &Record{Value: map[string]any{"a": 1}}
	rec.AddOutbound("t", Path{Field("a")})

	clone := rec.Clone()
	clone.AddOutbound("u", nil)
	removed, _ := clone.RemoveInbound("nobody", nil)
	assert.False(t, removed)

	assert.Len(t, rec.Outbound, 1, "clone edits must not leak into the original")
	assert.Len(t, clone.Outbound, 2)
}

func TestEntityIDFromField(t *testing.T) {
	idFn := EntityIDFromField("id")

	tests := []struct {
		name   string
		value  any
		want   NodeID
		wantOK bool
	}{
		{"string id", map[string]any{"id": "u1"}, "u1", true},
		{"integral float", map[string]any{"id": float64(7)}, "7", true},
		{"fractional float", map[string]any{"id": 1.5}, "1.5", true},
		{"missing", map[string]any{"name": "x"}, "", false},
		{"null id", map[string]any{"id": nil}, "", false},
		{"empty string", map[string]any{"id": ""}, "", false},
		{"not a mapping", []any{"id"}, "", false},
		{"bool id rejected", map[string]any{"id": true}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := idFn(tt.value)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
