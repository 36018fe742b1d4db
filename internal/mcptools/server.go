package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewServer creates an MCP server with the code retrieval tools registered.
func NewServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "coderag",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_codebase",
		Description: "Index a JavaScript/TypeScript repository. Parses source files with tree-sitter, builds the code property graph (functions, calls, imports, variables), and embeds function snippets for semantic search.",
	}, svc.IndexCodebase)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_code",
		Description: "Hybrid code search. Seeds from embedding similarity, then expands each seed through the graph: functions reachable over call edges, siblings in the same file, and functions of files sharing an imported module.",
	}, svc.SearchCode)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_function",
		Description: "Fetch one function node by id (<file path>::<function name>), including its source text and position.",
	}, svc.GetFunction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "graph_stats",
		Description: "Return node and edge counts for the indexed graph.",
	}, svc.GraphStats)

	return server
}

// RunServer starts an HTTP server exposing the retrieval MCP tools.
func RunServer(ctx context.Context, svc *Service, addr string) error {
	server := NewServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
