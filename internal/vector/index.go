package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	_ "modernc.org/sqlite"
)

// Snippet is one unit of indexable text. For code search the id is the
// graph's function id, so similarity hits map directly onto graph nodes.
type Snippet struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Hit is one similarity result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Searcher is the read side of the index, what retrieval depends on.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Hit, error)
}

// Index is an in-memory embedding index with brute-force cosine search and
// optional SQLite persistence. Adding a snippet under an existing id
// replaces its vector, so re-indexing a corpus converges.
type Index struct {
	mu         sync.RWMutex
	embedder   Embedder
	embeddings map[string][]float32
	log        *slog.Logger

	// SQLite persistence, nil when in-memory only.
	db *sql.DB
}

var _ Searcher = (*Index)(nil)

// NewIndex creates an in-memory index over the given embedder. A nil logger
// defaults to slog.Default().
func NewIndex(embedder Embedder, log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	return &Index{
		embedder:   embedder,
		embeddings: make(map[string][]float32),
		log:        log,
	}
}

// NewPersistentIndex creates an index backed by a SQLite file. Vectors
// stored by earlier sessions are loaded into memory on open.
func NewPersistentIndex(embedder Embedder, dbPath string, log *slog.Logger) (*Index, error) {
	idx := NewIndex(embedder, log)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("vector: open index database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS embeddings (
			id TEXT PRIMARY KEY,
			embedding BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("vector: init index database: %w", err)
	}

	rows, err := db.Query(`SELECT id, embedding FROM embeddings`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("vector: load index: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			db.Close()
			return nil, fmt.Errorf("vector: load index row: %w", err)
		}
		idx.embeddings[id] = decodeEmbedding(blob)
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("vector: load index: %w", err)
	}

	idx.db = db
	return idx, nil
}

// Close releases the persistence handle, if any.
func (idx *Index) Close() error {
	if idx.db != nil {
		return idx.db.Close()
	}
	return nil
}

// Len returns the number of indexed snippets.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.embeddings)
}

// AddSnippets embeds and indexes a batch of snippets. Empty-text snippets
// are skipped.
func (idx *Index) AddSnippets(ctx context.Context, snippets []Snippet) error {
	kept := make([]Snippet, 0, len(snippets))
	texts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		if s.ID == "" || s.Text == "" {
			continue
		}
		kept = append(kept, s)
		texts = append(texts, s.Text)
	}
	if len(kept) == 0 {
		return nil
	}

	vecs, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("vector: embed snippets: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, s := range kept {
		idx.embeddings[s.ID] = vecs[i]
		if err := idx.persistLocked(s.ID, vecs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) persistLocked(id string, vec []float32) error {
	if idx.db == nil {
		return nil
	}
	_, err := idx.db.Exec(
		`INSERT INTO embeddings (id, embedding) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding`,
		id, encodeEmbedding(vec))
	if err != nil {
		return fmt.Errorf("vector: persist embedding: %w", err)
	}
	return nil
}

// Search embeds the query and returns the topK most similar snippet ids by
// cosine similarity, best first. An unreachable embedding service yields an
// empty result with a diagnostic, not an error.
func (idx *Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK <= 0 || query == "" {
		return nil, nil
	}

	qv, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		idx.log.Warn("query embedding failed", "error", err)
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]Hit, 0, len(idx.embeddings))
	for id, vec := range idx.embeddings {
		hits = append(hits, Hit{ID: id, Score: cosineSimilarity(qv, vec)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// encodeEmbedding converts a float32 slice to little-endian bytes.
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding converts little-endian bytes back to a float32 slice.
func decodeEmbedding(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
