package graph

import (
	"context"
	"io"
)

// Store is the interface to the property-graph backend. Implementations:
// KuzuStore (production, embedded Cypher engine), MemStore (testing).
//
// All writes are idempotent upserts keyed by the identity scheme in
// schema.go: merge-by-key, then overwrite properties. Repeated application
// of the same input converges to the same graph state.
type Store interface {
	io.Closer

	// Schema setup, called once before any data is written.
	InitSchema(ctx context.Context) error

	// Write operations.
	UpsertFile(ctx context.Context, node FileNode) error
	UpsertFunction(ctx context.Context, node FunctionNode) error
	UpsertModule(ctx context.Context, node ModuleNode) error
	UpsertVariable(ctx context.Context, node VariableNode) error
	UpsertParameter(ctx context.Context, node ParameterNode) error
	UpsertEdge(ctx context.Context, edge Edge) error

	// Point reads.
	GetFile(ctx context.Context, path string) (*FileNode, error)
	GetFunction(ctx context.Context, id string) (*FunctionNode, error)

	// Retrieval read path. ReachableFunctions traverses CALLS edges in
	// either direction up to maxHops; SiblingFunctions returns the other
	// functions contained by the seed's file; SharedModuleFunctions returns
	// functions of files importing at least one module the seed's file also
	// imports.
	ReachableFunctions(ctx context.Context, id string, maxHops int) ([]FunctionNode, error)
	SiblingFunctions(ctx context.Context, id string) ([]FunctionNode, error)
	SharedModuleFunctions(ctx context.Context, id string) ([]FunctionNode, error)

	// CrossFileCalls aggregates CALLS edges whose endpoints live in
	// different files, for recomputing DEPENDS_ON strengths. Edges into
	// external stubs are excluded: a stub has no containing file.
	CrossFileCalls(ctx context.Context) ([]FileDependency, error)

	// Stats.
	Stats(ctx context.Context) (*Stats, error)
}
