package mcptools

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"coderag/internal/config"
	"coderag/internal/extract"
	"coderag/internal/graph"
	"coderag/internal/retrieve"
	"coderag/internal/vector"
)

// Service holds the pipeline pieces used by the MCP tool handlers: the
// scanner, the graph store, the vector index, and the retriever that joins
// them.
type Service struct {
	scanner   *extract.Scanner
	store     graph.Store
	index     *vector.Index
	retriever *retrieve.Retriever
	cfg       *config.Config
	log       *slog.Logger
}

// NewService wires a Service. A nil config gets defaults; a nil logger
// defaults to slog.Default().
func NewService(scanner *extract.Scanner, store graph.Store, index *vector.Index, cfg *config.Config, log *slog.Logger) *Service {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		scanner:   scanner,
		store:     store,
		index:     index,
		retriever: retrieve.NewRetriever(store, index, log),
		cfg:       cfg,
		log:       log,
	}
}

// IndexCodebase scans a repository, builds the graph, and embeds function
// snippets for vector search.
func (s *Service) IndexCodebase(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IndexCodebaseInput,
) (*mcp.CallToolResult, IndexCodebaseOutput, error) {
	if input.RepoPath == "" {
		return nil, IndexCodebaseOutput{}, fmt.Errorf("repoPath is required")
	}
	info, err := os.Stat(input.RepoPath)
	if err != nil {
		return nil, IndexCodebaseOutput{}, fmt.Errorf("cannot access repoPath: %w", err)
	}
	if !info.IsDir() {
		return nil, IndexCodebaseOutput{}, fmt.Errorf("repoPath is not a directory: %s", input.RepoPath)
	}

	excludes := append([]string{}, s.cfg.ExcludeDirs...)
	excludes = append(excludes, input.ExcludeDirs...)

	scan, err := s.scanner.Scan(ctx, input.RepoPath, extract.ScanOptions{
		ExcludeDirs: excludes,
		Workers:     s.cfg.Workers,
	})
	if err != nil {
		return nil, IndexCodebaseOutput{}, fmt.Errorf("scan: %w", err)
	}

	builder := graph.NewBuilder(s.store, s.log)
	report, err := builder.Build(ctx, scan.Files)
	if err != nil {
		return nil, IndexCodebaseOutput{}, fmt.Errorf("build graph: %w", err)
	}

	indexed, err := s.indexSnippets(ctx, scan.Files)
	if err != nil {
		// The graph is usable without embeddings; report and continue.
		s.log.Warn("snippet indexing failed", "error", err)
	}

	out := IndexCodebaseOutput{
		ScanFailures:    len(scan.Failures),
		BuildFailures:   len(report.Failures),
		SnippetsIndexed: indexed,
	}
	if report.Stats != nil {
		out.Stats = *report.Stats
	}
	return nil, out, nil
}

// indexSnippets embeds every function long enough to be a useful snippet.
func (s *Service) indexSnippets(ctx context.Context, files []*extract.CodeFile) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	minLen := s.cfg.MinFunctionLength
	if minLen <= 0 {
		minLen = config.DefaultMinFunctionLength
	}

	var snippets []vector.Snippet
	for _, file := range files {
		for _, name := range file.FunctionNames() {
			fn := file.Functions[name]
			if len(fn.Code) < minLen {
				continue
			}
			snippets = append(snippets, vector.Snippet{
				ID:   graph.FunctionID(file.Path, name),
				Text: fn.Code,
			})
		}
	}
	if len(snippets) == 0 {
		return 0, nil
	}
	if err := s.index.AddSnippets(ctx, snippets); err != nil {
		return 0, err
	}
	return len(snippets), nil
}

// SearchCode runs a hybrid query: vector seeds expanded through the graph.
func (s *Service) SearchCode(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchCodeInput,
) (*mcp.CallToolResult, SearchCodeOutput, error) {
	if input.Query == "" {
		return nil, SearchCodeOutput{}, fmt.Errorf("query is required")
	}
	if s.index == nil {
		return nil, SearchCodeOutput{}, fmt.Errorf("search requires an embedding provider; set OPENAI_API_KEY")
	}

	topK := input.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	maxHops := input.MaxHops
	if maxHops <= 0 {
		maxHops = s.cfg.MaxHops
	}

	results, err := s.retriever.Retrieve(ctx, input.Query, retrieve.Options{
		TopK:    topK,
		MaxHops: maxHops,
	})
	if err != nil {
		return nil, SearchCodeOutput{}, fmt.Errorf("retrieve: %w", err)
	}
	return nil, SearchCodeOutput{Results: results, Total: len(results)}, nil
}

// GetFunction looks up one function node by id.
func (s *Service) GetFunction(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetFunctionInput,
) (*mcp.CallToolResult, GetFunctionOutput, error) {
	if input.ID == "" {
		return nil, GetFunctionOutput{}, fmt.Errorf("id is required")
	}
	fn, err := s.store.GetFunction(ctx, input.ID)
	if err != nil {
		return nil, GetFunctionOutput{}, fmt.Errorf("get function: %w", err)
	}
	if fn == nil {
		return nil, GetFunctionOutput{}, fmt.Errorf("function not found: %s", input.ID)
	}
	return nil, GetFunctionOutput{Function: *fn}, nil
}

// GraphStats returns node and edge counts for the current graph.
func (s *Service) GraphStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ GraphStatsInput,
) (*mcp.CallToolResult, GraphStatsOutput, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, GraphStatsOutput{}, fmt.Errorf("stats: %w", err)
	}
	return nil, GraphStatsOutput{Stats: *stats}, nil
}
