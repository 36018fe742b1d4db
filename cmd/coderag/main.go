package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"coderag/internal/config"
	"coderag/internal/extract"
	"coderag/internal/graph"
	"coderag/internal/mcptools"
	"coderag/internal/retrieve"
	"coderag/internal/vector"
)

// CLI flags parsed from command line.
type cliFlags struct {
	Repo     string
	Query    string
	DBPath   string
	TopK     int
	MaxHops  int
	ServeMCP bool
	Addr     string
	Verbose  bool
	Version  bool
}

// version is set by the linker at build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var flags cliFlags

	fs := flag.NewFlagSet("coderag", flag.ContinueOnError)
	fs.StringVar(&flags.Repo, "repo", "", "path to the repository to index")
	fs.StringVar(&flags.Query, "query", "", "retrieval query to run after indexing")
	fs.StringVar(&flags.DBPath, "db", "", "graph database directory (default: in-memory)")
	fs.IntVar(&flags.TopK, "top-k", 0, "number of vector seed results")
	fs.IntVar(&flags.MaxHops, "max-hops", 0, "call-graph expansion bound in hops")
	fs.BoolVar(&flags.ServeMCP, "serve-mcp", false, "run as an MCP server over HTTP")
	fs.StringVar(&flags.Addr, "addr", ":8781", "listen address for -serve-mcp")
	fs.BoolVar(&flags.Verbose, "verbose", false, "enable debug logging")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Println(version)
		return nil
	}

	level := slog.LevelInfo
	if flags.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfgDir := flags.Repo
	if cfgDir == "" {
		cfgDir = "."
	}
	cfg, err := config.Load(cfgDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.DBPath != "" {
		cfg.DBPath = flags.DBPath
	}
	if flags.TopK > 0 {
		cfg.TopK = flags.TopK
	}
	if flags.MaxHops > 0 {
		cfg.MaxHops = flags.MaxHops
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	index, err := openIndex(cfg, log)
	if err != nil {
		return err
	}
	if index != nil {
		defer index.Close()
	}

	extractor, err := extract.NewExtractor()
	if err != nil {
		return fmt.Errorf("init extractor: %w", err)
	}
	defer extractor.Close()

	scanner := extract.NewScanner(extractor, log)
	svc := mcptools.NewService(scanner, store, index, cfg, log)

	if flags.ServeMCP {
		log.Info("serving MCP", "addr", flags.Addr)
		return mcptools.RunServer(ctx, svc, flags.Addr)
	}

	if flags.Repo == "" {
		return fmt.Errorf("either -repo or -serve-mcp is required")
	}

	out, err := indexRepo(ctx, svc, flags.Repo)
	if err != nil {
		return err
	}
	log.Info("indexed",
		"files", out.Stats.Files,
		"functions", out.Stats.Functions,
		"edges", out.Stats.Edges,
		"snippets", out.SnippetsIndexed,
		"scanFailures", out.ScanFailures,
		"buildFailures", out.BuildFailures)

	if flags.Query == "" {
		return nil
	}
	if index == nil {
		return fmt.Errorf("-query requires an embedding provider; set OPENAI_API_KEY")
	}

	retriever := retrieve.NewRetriever(store, index, log)
	results, err := retriever.Retrieve(ctx, flags.Query, retrieve.Options{
		TopK:    cfg.TopK,
		MaxHops: cfg.MaxHops,
	})
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	printResults(results)
	return nil
}

func openStore(cfg *config.Config) (graph.Store, error) {
	if cfg.DBPath == "" {
		store, err := graph.NewKuzuStore()
		if err != nil {
			return nil, fmt.Errorf("open graph store: %w", err)
		}
		return store, nil
	}
	store, err := graph.NewKuzuFileStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open graph store at %s: %w", cfg.DBPath, err)
	}
	return store, nil
}

// openIndex builds the vector index when an embedding provider is
// configured. Without one the graph still works; only semantic seeding is
// unavailable.
func openIndex(cfg *config.Config, log *slog.Logger) (*vector.Index, error) {
	embedder, err := vector.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Warn("embeddings disabled", "reason", err)
		return nil, nil
	}
	if cfg.VectorDBPath == "" {
		return vector.NewIndex(embedder, log), nil
	}
	return vector.NewPersistentIndex(embedder, cfg.VectorDBPath, log)
}

func indexRepo(ctx context.Context, svc *mcptools.Service, repo string) (mcptools.IndexCodebaseOutput, error) {
	_, out, err := svc.IndexCodebase(ctx, nil, mcptools.IndexCodebaseInput{RepoPath: repo})
	if err != nil {
		return mcptools.IndexCodebaseOutput{}, fmt.Errorf("index %s: %w", repo, err)
	}
	return out, nil
}

func printResults(results []retrieve.Result) {
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for _, res := range results {
		fn := res.Function
		loc := fn.FilePath
		if fn.External {
			loc = "(external)"
		} else if fn.StartLine > 0 {
			loc = fmt.Sprintf("%s:%d", fn.FilePath, fn.StartLine)
		}
		fmt.Printf("%-60s %-12s %s\n", fn.ID, loc, res.Provenance)
	}
}
