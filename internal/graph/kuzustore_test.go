//go:build cgo

package graph

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a fresh in-memory KuzuStore with an initialized
// schema and closes it when the test finishes.
func newTestStore(t *testing.T) *KuzuStore {
	t.Helper()
	s, err := NewKuzuStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.InitSchema(context.Background()))
	return s
}

func TestKuzuStore_InitSchemaIsRepeatable(t *testing.T) {
	s := newTestStore(t)
	// IF NOT EXISTS everywhere, so a second init is a no-op.
	assert.NoError(t, s.InitSchema(context.Background()))
}

func TestKuzuStore_UpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, FileNode{Path: "a.js", Size: 120, LOC: 8, Summary: "const x = 1;"}))
	require.NoError(t, s.UpsertFunction(ctx, FunctionNode{
		ID: "a.js::foo", Name: "foo", FilePath: "a.js", Kind: "declaration",
		Code: "function foo() {}", StartLine: 2, EndLine: 4, Exported: true,
	}))

	file, err := s.GetFile(ctx, "a.js")
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, 120, file.Size)
	assert.Equal(t, "const x = 1;", file.Summary)

	fn, err := s.GetFunction(ctx, "a.js::foo")
	require.NoError(t, err)
	require.NotNil(t, fn)
	assert.Equal(t, "foo", fn.Name)
	assert.True(t, fn.Exported)
	assert.False(t, fn.External)

	// MERGE + SET overwrites on rekeyed upsert.
	require.NoError(t, s.UpsertFunction(ctx, FunctionNode{
		ID: "a.js::foo", Name: "foo", FilePath: "a.js", StartLine: 9,
	}))
	fn, err = s.GetFunction(ctx, "a.js::foo")
	require.NoError(t, err)
	assert.Equal(t, 9, fn.StartLine)

	missing, err := s.GetFunction(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestKuzuStore_TraversalReads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, f := range []FileNode{{Path: "a.js"}, {Path: "b.js"}} {
		require.NoError(t, s.UpsertFile(ctx, f))
	}
	for _, fn := range []FunctionNode{
		{ID: "a.js::foo", Name: "foo", FilePath: "a.js", StartLine: 1},
		{ID: "a.js::aux", Name: "aux", FilePath: "a.js", StartLine: 5},
		{ID: "b.js::bar", Name: "bar", FilePath: "b.js", StartLine: 1},
	} {
		require.NoError(t, s.UpsertFunction(ctx, fn))
	}
	require.NoError(t, s.UpsertModule(ctx, ModuleNode{Name: "./a"}))

	for _, e := range []Edge{
		{Kind: EdgeContains, SourceID: "a.js", TargetID: "a.js::foo", SourceLabel: LabelFile},
		{Kind: EdgeContains, SourceID: "a.js", TargetID: "a.js::aux", SourceLabel: LabelFile},
		{Kind: EdgeContains, SourceID: "b.js", TargetID: "b.js::bar", SourceLabel: LabelFile},
		{Kind: EdgeCalls, SourceID: "b.js::bar", TargetID: "a.js::foo", SourceLabel: LabelFunction, Count: 1},
		{Kind: EdgeRequires, SourceID: "a.js", TargetID: "./a", SourceLabel: LabelFile, ImportKind: ImportAssignment},
		{Kind: EdgeRequires, SourceID: "b.js", TargetID: "./a", SourceLabel: LabelFile, ImportKind: ImportAssignment},
	} {
		require.NoError(t, s.UpsertEdge(ctx, e))
	}

	// Reachability runs in both directions over CALLS.
	fns, err := s.ReachableFunctions(ctx, "a.js::foo", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.js::bar"}, functionIDs(fns))

	sibs, err := s.SiblingFunctions(ctx, "a.js::foo")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js::aux"}, functionIDs(sibs))

	shared, err := s.SharedModuleFunctions(ctx, "a.js::foo")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.js::bar"}, functionIDs(shared))

	deps, err := s.CrossFileCalls(ctx)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, FileDependency{FromPath: "b.js", ToPath: "a.js", Calls: 1}, deps[0])
}

// Kuzu widens sum() over INT64 to INT128, which the driver surfaces as
// *big.Int. The aggregated call counts must survive that coercion.
func TestKuzuStore_CrossFileCallsSumsCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, f := range []FileNode{{Path: "a.js"}, {Path: "b.js"}} {
		require.NoError(t, s.UpsertFile(ctx, f))
	}
	for _, fn := range []FunctionNode{
		{ID: "a.js::foo", Name: "foo", FilePath: "a.js", StartLine: 1},
		{ID: "a.js::aux", Name: "aux", FilePath: "a.js", StartLine: 5},
		{ID: "b.js::bar", Name: "bar", FilePath: "b.js", StartLine: 1},
	} {
		require.NoError(t, s.UpsertFunction(ctx, fn))
	}
	for _, e := range []Edge{
		{Kind: EdgeCalls, SourceID: "b.js::bar", TargetID: "a.js::foo", SourceLabel: LabelFunction, Count: 2},
		{Kind: EdgeCalls, SourceID: "b.js::bar", TargetID: "a.js::aux", SourceLabel: LabelFunction, Count: 1},
		{Kind: EdgeCalls, SourceID: "b.js", TargetID: "a.js::foo", SourceLabel: LabelFile, Count: 1},
	} {
		require.NoError(t, s.UpsertEdge(ctx, e))
	}

	deps, err := s.CrossFileCalls(ctx)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, FileDependency{FromPath: "b.js", ToPath: "a.js", Calls: 4}, deps[0])
}

func TestToInt(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{int64(7), 7},
		{int32(3), 3},
		{5, 5},
		{float64(2), 2},
		{big.NewInt(4), 4},
		{nil, 0},
		{"oops", 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, toInt(c.in), "toInt(%v)", c.in)
	}
}

func TestKuzuStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, FileNode{Path: "a.js"}))
	require.NoError(t, s.UpsertFunction(ctx, FunctionNode{ID: "a.js::foo", Name: "foo", FilePath: "a.js"}))
	require.NoError(t, s.UpsertEdge(ctx, Edge{
		Kind: EdgeContains, SourceID: "a.js", TargetID: "a.js::foo", SourceLabel: LabelFile,
	}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 1, stats.Functions)
	assert.Equal(t, 1, stats.Edges)
}
