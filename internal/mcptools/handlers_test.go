package mcptools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderag/internal/config"
	"coderag/internal/extract"
	"coderag/internal/graph"
	"coderag/internal/retrieve"
	"coderag/internal/vector"
)

const fixtureRepo = "../../testdata/fixtures/js_project"

// fixtureEmbedder steers similarity deterministically: the doubling snippet
// and the query asking for it share a vector, everything else is orthogonal.
type fixtureEmbedder struct{}

func (fixtureEmbedder) Dimension() int { return 2 }

func (fixtureEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "x * 2") || strings.Contains(text, "double") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (e fixtureEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	extractor, err := extract.NewExtractor()
	require.NoError(t, err)
	t.Cleanup(func() { extractor.Close() })

	cfg := &config.Config{}
	return NewService(
		extract.NewScanner(extractor, nil),
		graph.NewMemStore(),
		vector.NewIndex(fixtureEmbedder{}, nil),
		cfg,
		nil,
	)
}

func indexFixture(t *testing.T, svc *Service) IndexCodebaseOutput {
	t.Helper()
	_, out, err := svc.IndexCodebase(context.Background(), nil, IndexCodebaseInput{RepoPath: fixtureRepo})
	require.NoError(t, err)
	return out
}

func TestIndexCodebase_BuildsFixtureGraph(t *testing.T) {
	svc := newTestService(t)
	out := indexFixture(t, svc)

	assert.Zero(t, out.ScanFailures)
	assert.Zero(t, out.BuildFailures)
	assert.Equal(t, 3, out.SnippetsIndexed)

	assert.Equal(t, 3, out.Stats.Files)
	assert.Equal(t, 3, out.Stats.Functions)
	assert.Equal(t, 2, out.Stats.Modules)
	assert.Equal(t, 2, out.Stats.Variables)
	assert.Equal(t, 3, out.Stats.Parameters)
	assert.Equal(t, 16, out.Stats.Edges)
}

func TestIndexCodebase_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.IndexCodebase(ctx, nil, IndexCodebaseInput{})
	assert.Error(t, err, "repoPath is required")

	_, _, err = svc.IndexCodebase(ctx, nil, IndexCodebaseInput{RepoPath: fixtureRepo + "/a.js"})
	assert.Error(t, err, "repoPath must be a directory")
}

func TestSearchCode_HybridExpansion(t *testing.T) {
	svc := newTestService(t)
	indexFixture(t, svc)

	_, out, err := svc.SearchCode(context.Background(), nil, SearchCodeInput{
		Query: "double a number",
		TopK:  1,
	})
	require.NoError(t, err)
	require.Equal(t, 3, out.Total)

	// Ranked by (file path, start line): the seed, its caller, its callee.
	assert.Equal(t, "a.js::foo", out.Results[0].Function.ID)
	assert.Equal(t, retrieve.ProvenanceVector, out.Results[0].Provenance)

	assert.Equal(t, "b.js::bar", out.Results[1].Function.ID)
	assert.Equal(t, retrieve.ProvenanceGraph, out.Results[1].Provenance)

	assert.Equal(t, "util.js::clamp", out.Results[2].Function.ID)
	assert.Equal(t, retrieve.ProvenanceGraph, out.Results[2].Provenance)
}

func TestGetFunction(t *testing.T) {
	svc := newTestService(t)
	indexFixture(t, svc)
	ctx := context.Background()

	_, out, err := svc.GetFunction(ctx, nil, GetFunctionInput{ID: "util.js::clamp"})
	require.NoError(t, err)
	assert.Equal(t, "clamp", out.Function.Name)
	assert.True(t, out.Function.Exported)
	assert.Contains(t, out.Function.Code, "Math.min")

	_, _, err = svc.GetFunction(ctx, nil, GetFunctionInput{ID: "nope::nothing"})
	assert.Error(t, err)

	_, _, err = svc.GetFunction(ctx, nil, GetFunctionInput{})
	assert.Error(t, err)
}

func TestGraphStats(t *testing.T) {
	svc := newTestService(t)
	indexFixture(t, svc)

	_, out, err := svc.GraphStats(context.Background(), nil, GraphStatsInput{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Stats.Functions)
}

func TestIndexCodebase_Rerun(t *testing.T) {
	svc := newTestService(t)

	first := indexFixture(t, svc)
	second := indexFixture(t, svc)

	assert.Equal(t, first.Stats, second.Stats, "re-indexing converges")
}
