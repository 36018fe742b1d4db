package retrieve

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderag/internal/graph"
	"coderag/internal/vector"
)

// stubSearcher returns canned hits regardless of the query.
type stubSearcher struct {
	hits []vector.Hit
	err  error
}

func (s stubSearcher) Search(_ context.Context, _ string, _ int) ([]vector.Hit, error) {
	return s.hits, s.err
}

// seededStore builds two files: a.js holds foo and aux, b.js holds bar which
// calls foo. Both files import the same module.
func seededStore(t *testing.T) *graph.MemStore {
	t.Helper()
	ctx := context.Background()
	store := graph.NewMemStore()

	for _, f := range []graph.FileNode{{Path: "a.js"}, {Path: "b.js"}} {
		require.NoError(t, store.UpsertFile(ctx, f))
	}
	for _, fn := range []graph.FunctionNode{
		{ID: "a.js::foo", Name: "foo", FilePath: "a.js", StartLine: 1},
		{ID: "a.js::aux", Name: "aux", FilePath: "a.js", StartLine: 10},
		{ID: "b.js::bar", Name: "bar", FilePath: "b.js", StartLine: 3},
	} {
		require.NoError(t, store.UpsertFunction(ctx, fn))
	}
	require.NoError(t, store.UpsertModule(ctx, graph.ModuleNode{Name: "lodash"}))

	for _, e := range []graph.Edge{
		{Kind: graph.EdgeCalls, SourceID: "b.js::bar", TargetID: "a.js::foo", SourceLabel: graph.LabelFunction, Count: 1},
		{Kind: graph.EdgeRequires, SourceID: "a.js", TargetID: "lodash", SourceLabel: graph.LabelFile},
		{Kind: graph.EdgeRequires, SourceID: "b.js", TargetID: "lodash", SourceLabel: graph.LabelFile},
	} {
		require.NoError(t, store.UpsertEdge(ctx, e))
	}
	return store
}

func provenanceByID(results []Result) map[string]string {
	out := make(map[string]string, len(results))
	for _, r := range results {
		out[r.Function.ID] = r.Provenance
	}
	return out
}

func TestRetrieve_SeedAndExpansion(t *testing.T) {
	store := seededStore(t)
	searcher := stubSearcher{hits: []vector.Hit{{ID: "a.js::foo", Score: 0.91}}}

	results, err := NewRetriever(store, searcher, nil).Retrieve(context.Background(), "double a number", Options{})
	require.NoError(t, err)

	prov := provenanceByID(results)
	assert.Equal(t, ProvenanceVector, prov["a.js::foo"])
	assert.Equal(t, ProvenanceGraph, prov["a.js::aux"], "sibling of the seed's file")
	assert.Equal(t, ProvenanceGraph, prov["b.js::bar"], "caller within the hop bound")

	// Ranked by (file path, start line) ascending.
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Function.ID)
	}
	assert.Equal(t, []string{"a.js::foo", "a.js::aux", "b.js::bar"}, ids)
}

func TestRetrieve_CompositeProvenance(t *testing.T) {
	store := seededStore(t)
	// bar is both a vector hit and reachable from foo.
	searcher := stubSearcher{hits: []vector.Hit{
		{ID: "a.js::foo", Score: 0.9},
		{ID: "b.js::bar", Score: 0.6},
	}}

	results, err := NewRetriever(store, searcher, nil).Retrieve(context.Background(), "q", Options{})
	require.NoError(t, err)

	prov := provenanceByID(results)
	assert.Equal(t, ProvenanceCombined, prov["b.js::bar"])

	for _, r := range results {
		if r.Function.ID == "b.js::bar" {
			assert.Equal(t, 0.6, r.Score, "seed score survives the merge")
		}
	}
}

func TestRetrieve_EmptySeedsShortCircuit(t *testing.T) {
	// The store would panic if touched; no seeds means no traversal.
	results, err := NewRetriever(nil, stubSearcher{}, nil).Retrieve(context.Background(), "anything", Options{})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestRetrieve_StaleHitSkipped(t *testing.T) {
	store := seededStore(t)
	searcher := stubSearcher{hits: []vector.Hit{{ID: "gone.js::ghost", Score: 0.8}}}

	results, err := NewRetriever(store, searcher, nil).Retrieve(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Empty(t, results, "a hit missing from the graph contributes nothing")
}

// flakyStore fails call-graph expansion but serves everything else.
type flakyStore struct {
	*graph.MemStore
}

func (f *flakyStore) ReachableFunctions(context.Context, string, int) ([]graph.FunctionNode, error) {
	return nil, fmt.Errorf("traversal unavailable")
}

func TestRetrieve_ExpansionFailureKeepsSeeds(t *testing.T) {
	ctx := context.Background()
	inner := graph.NewMemStore()
	for _, fn := range []graph.FunctionNode{
		{ID: "a.js::foo", Name: "foo", FilePath: "a.js", StartLine: 1},
		{ID: "a.js::aux", Name: "aux", FilePath: "a.js", StartLine: 10},
		{ID: "b.js::bar", Name: "bar", FilePath: "b.js", StartLine: 3},
	} {
		require.NoError(t, inner.UpsertFunction(ctx, fn))
	}
	require.NoError(t, inner.UpsertEdge(ctx, graph.Edge{
		Kind: graph.EdgeCalls, SourceID: "b.js::bar", TargetID: "a.js::foo", SourceLabel: graph.LabelFunction,
	}))

	store := &flakyStore{MemStore: inner}
	searcher := stubSearcher{hits: []vector.Hit{{ID: "a.js::foo", Score: 0.9}}}

	results, err := NewRetriever(store, searcher, nil).Retrieve(context.Background(), "q", Options{})
	require.NoError(t, err, "a failed expansion degrades, it does not fail the query")

	prov := provenanceByID(results)
	assert.Equal(t, ProvenanceVector, prov["a.js::foo"])
	assert.Equal(t, ProvenanceGraph, prov["a.js::aux"], "sibling expansion still ran")
	assert.NotContains(t, prov, "b.js::bar", "call expansion contributed nothing")
}

func TestRetrieve_HopBound(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore()

	// a -> b -> c -> d call chain.
	ids := []string{"a.js::a", "b.js::b", "c.js::c", "d.js::d"}
	for i, id := range ids {
		require.NoError(t, store.UpsertFunction(ctx, graph.FunctionNode{
			ID: id, Name: id, FilePath: id[:4], StartLine: 1,
		}))
		if i > 0 {
			require.NoError(t, store.UpsertEdge(ctx, graph.Edge{
				Kind: graph.EdgeCalls, SourceID: ids[i-1], TargetID: id, SourceLabel: graph.LabelFunction,
			}))
		}
	}

	searcher := stubSearcher{hits: []vector.Hit{{ID: "a.js::a", Score: 1}}}
	results, err := NewRetriever(store, searcher, nil).Retrieve(ctx, "q", Options{MaxHops: 2})
	require.NoError(t, err)

	prov := provenanceByID(results)
	assert.Contains(t, prov, "b.js::b")
	assert.Contains(t, prov, "c.js::c")
	assert.NotContains(t, prov, "d.js::d", "beyond the hop bound")
}
