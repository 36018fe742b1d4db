package mcptools

import (
	"coderag/internal/graph"
	"coderag/internal/retrieve"
)

// --- MCP tool input and output types ---
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// IndexCodebaseInput is the input for the index_codebase MCP tool.
type IndexCodebaseInput struct {
	RepoPath    string   `json:"repoPath" jsonschema:"the absolute path to the repository to index"`
	ExcludeDirs []string `json:"excludeDirs,omitempty" jsonschema:"directories to exclude from indexing (node_modules and .git are always excluded)"`
}

// IndexCodebaseOutput is the result of the index_codebase MCP tool.
type IndexCodebaseOutput struct {
	Stats           graph.Stats `json:"stats"`
	ScanFailures    int         `json:"scanFailures"`
	BuildFailures   int         `json:"buildFailures"`
	SnippetsIndexed int         `json:"snippetsIndexed"`
}

// SearchCodeInput is the input for the search_code MCP tool.
type SearchCodeInput struct {
	Query   string `json:"query" jsonschema:"natural language description of the code to find"`
	TopK    int    `json:"topK,omitempty" jsonschema:"number of vector seed results (default: 5)"`
	MaxHops int    `json:"maxHops,omitempty" jsonschema:"call-graph expansion bound in hops (default: 2)"`
}

// SearchCodeOutput is the result of the search_code MCP tool.
type SearchCodeOutput struct {
	Results []retrieve.Result `json:"results"`
	Total   int               `json:"total"`
}

// GetFunctionInput is the input for the get_function MCP tool.
type GetFunctionInput struct {
	ID string `json:"id" jsonschema:"function id in the form <file path>::<function name>"`
}

// GetFunctionOutput is the result of the get_function MCP tool.
type GetFunctionOutput struct {
	Function graph.FunctionNode `json:"function"`
}

// GraphStatsInput is the input for the graph_stats MCP tool.
type GraphStatsInput struct{}

// GraphStatsOutput is the result of the graph_stats MCP tool.
type GraphStatsOutput struct {
	Stats graph.Stats `json:"stats"`
}
