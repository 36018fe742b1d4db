package retrieve

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"coderag/internal/graph"
	"coderag/internal/vector"
)

// Provenance values on retrieval results. A result found by both stages
// carries the composite value.
const (
	ProvenanceVector   = "vector_search"
	ProvenanceGraph    = "graph_traversal"
	ProvenanceCombined = "vector_search + graph_traversal"
)

// Default expansion bounds, from the indexing defaults.
const (
	DefaultTopK    = 5
	DefaultMaxHops = 2
)

// Result is one retrieved function with how it was found. Score is the
// similarity of the vector seed, zero for traversal-only results.
type Result struct {
	Function   graph.FunctionNode `json:"function"`
	Score      float64            `json:"score,omitempty"`
	Provenance string             `json:"provenance"`
}

// Options bounds one retrieval.
type Options struct {
	TopK    int
	MaxHops int
}

// Retriever answers code queries by seeding from vector similarity and
// expanding each seed through the graph: call-graph reachability within the
// hop bound in either direction, sibling functions of the seed's file, and
// functions of files sharing an imported module.
type Retriever struct {
	store    graph.Store
	searcher vector.Searcher
	log      *slog.Logger
}

// NewRetriever wires a retriever over a graph store and a vector searcher.
// A nil logger defaults to slog.Default().
func NewRetriever(store graph.Store, searcher vector.Searcher, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{store: store, searcher: searcher, log: log}
}

// Retrieve runs one hybrid query. No vector seeds means an empty result; the
// graph is never walked without a seed. A failed expansion contributes no
// nodes and logs a warning, it does not fail the query.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]Result, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}

	hits, err := r.searcher.Search(ctx, query, opts.TopK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	merged := make(map[string]*Result)
	var mu sync.Mutex

	addSeed := func(fn graph.FunctionNode, score float64) {
		mu.Lock()
		defer mu.Unlock()
		if existing, ok := merged[fn.ID]; ok {
			existing.Score = score
			if existing.Provenance == ProvenanceGraph {
				existing.Provenance = ProvenanceCombined
			}
			return
		}
		merged[fn.ID] = &Result{Function: fn, Score: score, Provenance: ProvenanceVector}
	}
	addExpanded := func(fns []graph.FunctionNode) {
		mu.Lock()
		defer mu.Unlock()
		for _, fn := range fns {
			if existing, ok := merged[fn.ID]; ok {
				if existing.Provenance == ProvenanceVector {
					existing.Provenance = ProvenanceCombined
				}
				continue
			}
			merged[fn.ID] = &Result{Function: fn, Provenance: ProvenanceGraph}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, hit := range hits {
		fn, err := r.store.GetFunction(ctx, hit.ID)
		if err != nil {
			return nil, err
		}
		if fn == nil {
			r.log.Warn("vector hit missing from graph", "id", hit.ID)
			continue
		}
		addSeed(*fn, hit.Score)

		expansions := []func(context.Context, string) ([]graph.FunctionNode, error){
			func(c context.Context, id string) ([]graph.FunctionNode, error) {
				return r.store.ReachableFunctions(c, id, opts.MaxHops)
			},
			r.store.SiblingFunctions,
			r.store.SharedModuleFunctions,
		}
		for _, expand := range expansions {
			g.Go(func() error {
				fns, err := expand(gctx, fn.ID)
				if err != nil {
					r.log.Warn("graph expansion failed", "seed", fn.ID, "error", err)
					return nil
				}
				addExpanded(fns)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(merged))
	for _, res := range merged {
		results = append(results, *res)
	}
	sortResults(results)
	return results, nil
}

// sortResults orders by (file path, start line) ascending, with the id as a
// stable tiebreak. External stubs have no file path and sort first.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i].Function, results[j].Function
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return a.ID < b.ID
	})
}
