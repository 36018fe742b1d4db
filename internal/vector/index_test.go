package vector

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder maps texts to fixed vectors so similarity is controlled by
// the test, not by a remote model.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Dimension() int { return 3 }

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func TestIndex_SearchRanksByCosine(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"query":  {1, 0, 0},
		"close":  {0.9, 0.1, 0},
		"far":    {0, 1, 0},
		"middle": {0.5, 0.5, 0},
	}}
	idx := NewIndex(embedder, nil)
	ctx := context.Background()

	require.NoError(t, idx.AddSnippets(ctx, []Snippet{
		{ID: "far", Text: "far"},
		{ID: "close", Text: "close"},
		{ID: "middle", Text: "middle"},
	}))
	require.Equal(t, 3, idx.Len())

	hits, err := idx.Search(ctx, "query", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "close", hits[0].ID)
	assert.Equal(t, "middle", hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestIndex_AddReplacesExistingID(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"query": {1, 0, 0},
		"v1":    {0, 1, 0},
		"v2":    {1, 0, 0},
	}}
	idx := NewIndex(embedder, nil)
	ctx := context.Background()

	require.NoError(t, idx.AddSnippets(ctx, []Snippet{{ID: "fn", Text: "v1"}}))
	require.NoError(t, idx.AddSnippets(ctx, []Snippet{{ID: "fn", Text: "v2"}}))
	assert.Equal(t, 1, idx.Len(), "re-adding an id replaces its vector")

	hits, err := idx.Search(ctx, "query", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestIndex_SearchEmbedFailureIsEmpty(t *testing.T) {
	idx := NewIndex(&stubEmbedder{err: fmt.Errorf("service down")}, nil)

	hits, err := idx.Search(context.Background(), "query", 5)
	require.NoError(t, err, "an unreachable embedder degrades to no results")
	assert.Empty(t, hits)
}

func TestIndex_SkipsEmptySnippets(t *testing.T) {
	idx := NewIndex(&stubEmbedder{}, nil)
	require.NoError(t, idx.AddSnippets(context.Background(), []Snippet{
		{ID: "", Text: "orphan"},
		{ID: "empty", Text: ""},
	}))
	assert.Equal(t, 0, idx.Len())
}

func TestPersistentIndex_RoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "vectors.db")
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"query": {1, 0, 0},
		"kept":  {1, 0, 0},
	}}
	ctx := context.Background()

	first, err := NewPersistentIndex(embedder, dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, first.AddSnippets(ctx, []Snippet{{ID: "a.js::foo", Text: "kept"}}))
	require.NoError(t, first.Close())

	second, err := NewPersistentIndex(embedder, dbPath, nil)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, 1, second.Len(), "vectors survive reopen")
	hits, err := second.Search(ctx, "query", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.js::foo", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}), "length mismatch")
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}), "zero vector")
}

func TestEmbeddingCodec(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.25}
	assert.Equal(t, vec, decodeEmbedding(encodeEmbedding(vec)))
}
