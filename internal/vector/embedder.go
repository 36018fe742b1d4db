package vector

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultEmbeddingModel is the OpenAI model used when none is configured.
const DefaultEmbeddingModel = "text-embedding-3-small"

// defaultDimension is the output width of text-embedding-3-small.
const defaultDimension = 1536

// Embedder generates text embeddings.
type Embedder interface {
	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension.
	Dimension() int
}

// OpenAIEmbedder implements Embedder on the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder builds an embedder from the environment. The API key
// comes from OPENAI_API_KEY unless given explicitly; a missing key is a
// construction error, not a deferred request failure.
func NewOpenAIEmbedder(apiKey, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("vector: OPENAI_API_KEY is not set")
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIEmbedder{
		client:    &client,
		model:     model,
		dimension: defaultDimension,
	}, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	res, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("vector: embeddings request: %w", err)
	}
	if len(res.Data) != len(texts) {
		return nil, fmt.Errorf("vector: expected %d embeddings, got %d", len(texts), len(res.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range res.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}
