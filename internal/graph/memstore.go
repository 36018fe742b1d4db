package graph

import (
	"context"
	"sort"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Upserts are map assignments keyed
// by node id / (kind, src, dst), which gives the same merge-then-overwrite
// semantics as the Cypher MERGE statements in KuzuStore. Thread-safe via
// sync.RWMutex.
type MemStore struct {
	mu         sync.RWMutex
	files      map[string]FileNode
	functions  map[string]FunctionNode
	modules    map[string]ModuleNode
	variables  map[string]VariableNode
	parameters map[string]ParameterNode
	edges      map[string]Edge
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		files:      make(map[string]FileNode),
		functions:  make(map[string]FunctionNode),
		modules:    make(map[string]ModuleNode),
		variables:  make(map[string]VariableNode),
		parameters: make(map[string]ParameterNode),
		edges:      make(map[string]Edge),
	}
}

func edgeKey(e Edge) string {
	return string(e.Kind) + "|" + e.SourceID + "|" + e.TargetID
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }

// --- Writes ---

func (m *MemStore) UpsertFile(_ context.Context, node FileNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[node.Path] = node
	return nil
}

func (m *MemStore) UpsertFunction(_ context.Context, node FunctionNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.functions[node.ID] = node
	return nil
}

func (m *MemStore) UpsertModule(_ context.Context, node ModuleNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules[node.Name] = node
	return nil
}

func (m *MemStore) UpsertVariable(_ context.Context, node VariableNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variables[node.ID] = node
	return nil
}

func (m *MemStore) UpsertParameter(_ context.Context, node ParameterNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parameters[node.ID] = node
	return nil
}

func (m *MemStore) UpsertEdge(_ context.Context, edge Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[edgeKey(edge)] = edge
	return nil
}

// --- Point reads ---

func (m *MemStore) GetFile(_ context.Context, path string) (*FileNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[path]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (m *MemStore) GetFunction(_ context.Context, id string) (*FunctionNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn, ok := m.functions[id]
	if !ok {
		return nil, nil
	}
	return &fn, nil
}

// --- Retrieval read path ---

// ReachableFunctions performs a BFS over CALLS edges in both directions,
// bounded by maxHops. The seed itself is not part of the result. Non-function
// endpoints (a File node making a top-level call) are traversed through but
// not returned.
func (m *MemStore) ReachableFunctions(_ context.Context, id string, maxHops int) ([]FunctionNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if maxHops <= 0 {
		return nil, nil
	}

	visited := map[string]bool{id: true}
	frontier := []string{id}
	var found []FunctionNode

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, cur := range frontier {
			for _, e := range m.edges {
				if e.Kind != EdgeCalls {
					continue
				}
				var nb string
				switch {
				case e.SourceID == cur:
					nb = e.TargetID
				case e.TargetID == cur:
					nb = e.SourceID
				default:
					continue
				}
				if visited[nb] {
					continue
				}
				visited[nb] = true
				next = append(next, nb)
				if fn, ok := m.functions[nb]; ok {
					found = append(found, fn)
				}
			}
		}
		frontier = next
	}

	sortFunctions(found)
	return found, nil
}

// SiblingFunctions returns the other non-external functions contained by the
// seed's file.
func (m *MemStore) SiblingFunctions(_ context.Context, id string) ([]FunctionNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seed, ok := m.functions[id]
	if !ok || seed.FilePath == "" {
		return nil, nil
	}

	var found []FunctionNode
	for _, fn := range m.functions {
		if fn.ID != id && !fn.External && fn.FilePath == seed.FilePath {
			found = append(found, fn)
		}
	}
	sortFunctions(found)
	return found, nil
}

// SharedModuleFunctions returns functions of other files sharing at least
// one imported module with the seed's file. Only file-level REQUIRES edges
// participate; a function-scoped import still belongs to its file there.
func (m *MemStore) SharedModuleFunctions(_ context.Context, id string) ([]FunctionNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seed, ok := m.functions[id]
	if !ok || seed.FilePath == "" {
		return nil, nil
	}

	seedModules := make(map[string]bool)
	for _, e := range m.edges {
		if e.Kind == EdgeRequires && e.SourceID == seed.FilePath {
			if _, isFile := m.files[e.SourceID]; isFile {
				seedModules[e.TargetID] = true
			}
		}
	}
	if len(seedModules) == 0 {
		return nil, nil
	}

	sharingFiles := make(map[string]bool)
	for _, e := range m.edges {
		if e.Kind != EdgeRequires || !seedModules[e.TargetID] {
			continue
		}
		if _, isFile := m.files[e.SourceID]; !isFile {
			continue
		}
		if e.SourceID != seed.FilePath {
			sharingFiles[e.SourceID] = true
		}
	}

	var found []FunctionNode
	for _, fn := range m.functions {
		if !fn.External && sharingFiles[fn.FilePath] {
			found = append(found, fn)
		}
	}
	sortFunctions(found)
	return found, nil
}

// ownerFileLocked maps an edge endpoint id to its containing file path: the
// path itself for File nodes, the declaring file for Function nodes.
// Callers must hold at least the read lock.
func (m *MemStore) ownerFileLocked(id string) string {
	if _, ok := m.files[id]; ok {
		return id
	}
	if fn, ok := m.functions[id]; ok {
		return fn.FilePath
	}
	return ""
}

// CrossFileCalls aggregates CALLS edges whose endpoints live in different
// files. Each edge contributes its call-site count (at least 1).
func (m *MemStore) CrossFileCalls(_ context.Context) ([]FileDependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc := make(map[[2]string]int)
	for _, e := range m.edges {
		if e.Kind != EdgeCalls {
			continue
		}
		target, ok := m.functions[e.TargetID]
		if !ok || target.External || target.FilePath == "" {
			continue
		}
		src := m.ownerFileLocked(e.SourceID)
		if src == "" || src == target.FilePath {
			continue
		}
		count := e.Count
		if count < 1 {
			count = 1
		}
		acc[[2]string{src, target.FilePath}] += count
	}

	deps := make([]FileDependency, 0, len(acc))
	for pair, n := range acc {
		deps = append(deps, FileDependency{FromPath: pair[0], ToPath: pair[1], Calls: n})
	}
	sortDependencies(deps)
	return deps, nil
}

// Stats returns node and edge counts.
func (m *MemStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Stats{
		Files:      len(m.files),
		Functions:  len(m.functions),
		Modules:    len(m.modules),
		Variables:  len(m.variables),
		Parameters: len(m.parameters),
		Edges:      len(m.edges),
	}, nil
}

func sortFunctions(fns []FunctionNode) {
	sort.Slice(fns, func(i, j int) bool { return fns[i].ID < fns[j].ID })
}

func sortDependencies(deps []FileDependency) {
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].FromPath != deps[j].FromPath {
			return deps[i].FromPath < deps[j].FromPath
		}
		return deps[i].ToPath < deps[j].ToPath
	})
}
