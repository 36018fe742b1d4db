package graph

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"coderag/internal/extract"
)

// sourceExtensions are probed, in order, when a relative import specifier
// has no extension.
var sourceExtensions = []string{".js", ".mjs", ".cjs", ".ts"}

// BuildFailure records one file whose graph batch could not be written.
type BuildFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// BuildReport summarizes one graph build.
type BuildReport struct {
	Files     int            `json:"files"`
	Functions int            `json:"functions"`
	Failures  []BuildFailure `json:"failures,omitempty"`
	Stats     *Stats         `json:"stats,omitempty"`
}

// Builder projects extraction results into the property graph. Builds are
// idempotent: every node and edge write is an upsert keyed by stable
// identity, and aggregate properties (call counts, dependency strengths)
// are recomputed from scratch and overwritten, so building the same corpus
// twice leaves the graph in the same state as building it once.
type Builder struct {
	store Store
	log   *slog.Logger
}

// NewBuilder returns a Builder writing to store. A nil logger defaults to
// slog.Default().
func NewBuilder(store Store, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{store: store, log: log}
}

// Build writes the graph for a set of extracted files. A write failure
// aborts only that file's batch; the failure is recorded in the report and
// the build moves on. The returned error covers store-level conditions
// (schema init, final aggregation), not per-file ones.
func (b *Builder) Build(ctx context.Context, files []*extract.CodeFile) (*BuildReport, error) {
	if err := b.store.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("build: init schema: %w", err)
	}

	ordered := make([]*extract.CodeFile, len(files))
	copy(ordered, files)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })

	res := newResolver(ordered)
	report := &BuildReport{}

	for _, file := range ordered {
		if err := b.buildFile(ctx, file, res); err != nil {
			b.log.Warn("graph batch failed", "path", file.Path, "error", err)
			report.Failures = append(report.Failures, BuildFailure{Path: file.Path, Reason: err.Error()})
			continue
		}
		report.Files++
		report.Functions += len(file.Functions)
	}

	if err := b.writeDependencies(ctx, res); err != nil {
		return report, err
	}

	stats, err := b.store.Stats(ctx)
	if err != nil {
		return report, fmt.Errorf("build: stats: %w", err)
	}
	report.Stats = stats
	return report, nil
}

// buildFile writes one file's batch: the file node, its functions with
// parameters and containment, imports, resolved calls, and variables.
func (b *Builder) buildFile(ctx context.Context, file *extract.CodeFile, res *resolver) error {
	if err := b.store.UpsertFile(ctx, fileNode(file)); err != nil {
		return err
	}
	if err := b.writeFunctions(ctx, file); err != nil {
		return err
	}
	if err := b.writeRequires(ctx, file); err != nil {
		return err
	}
	if err := b.writeCalls(ctx, file, res); err != nil {
		return err
	}
	return b.writeVariables(ctx, file)
}

func fileNode(file *extract.CodeFile) FileNode {
	return FileNode{
		Path:    file.Path,
		Size:    len(file.Source),
		LOC:     strings.Count(file.Source, "\n") + 1,
		Summary: firstLine(file.Source),
	}
}

// firstLine returns the first non-empty source line, truncated for display.
func firstLine(source string) string {
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 120 {
			line = line[:120]
		}
		return line
	}
	return ""
}

func (b *Builder) writeFunctions(ctx context.Context, file *extract.CodeFile) error {
	for _, name := range file.FunctionNames() {
		fn := file.Functions[name]
		id := FunctionID(file.Path, name)
		node := FunctionNode{
			ID:        id,
			Name:      name,
			FilePath:  file.Path,
			Kind:      string(fn.Kind),
			Code:      fn.Code,
			StartLine: fn.Pos.StartLine,
			EndLine:   fn.Pos.EndLine,
			Exported:  fn.Exported,
		}
		if err := b.store.UpsertFunction(ctx, node); err != nil {
			return err
		}
		if err := b.store.UpsertEdge(ctx, Edge{
			Kind:        EdgeContains,
			SourceID:    file.Path,
			TargetID:    id,
			SourceLabel: LabelFile,
		}); err != nil {
			return err
		}
		for i, p := range fn.Params {
			pid := ParameterID(id, p.Name)
			if err := b.store.UpsertParameter(ctx, ParameterNode{
				ID:      pid,
				Name:    p.Name,
				Default: p.Default,
				Rest:    p.Rest,
			}); err != nil {
				return err
			}
			if err := b.store.UpsertEdge(ctx, Edge{
				Kind:        EdgeHasParameter,
				SourceID:    id,
				TargetID:    pid,
				SourceLabel: LabelFunction,
				Index:       i,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) writeRequires(ctx context.Context, file *extract.CodeFile) error {
	write := func(req extract.RequireExpr, sourceID, sourceLabel string) error {
		if err := b.store.UpsertModule(ctx, ModuleNode{Name: req.Module}); err != nil {
			return err
		}
		kind := ImportAssignment
		if req.Variable == "" {
			kind = ImportSideEffect
		}
		return b.store.UpsertEdge(ctx, Edge{
			Kind:        EdgeRequires,
			SourceID:    sourceID,
			TargetID:    req.Module,
			SourceLabel: sourceLabel,
			Variable:    req.Variable,
			ImportKind:  kind,
			Line:        req.Pos.StartLine,
		})
	}

	for _, req := range file.Requires {
		if err := write(req, file.Path, LabelFile); err != nil {
			return err
		}
	}
	for _, name := range file.FunctionNames() {
		for _, req := range file.Functions[name].Requires {
			if err := write(req, FunctionID(file.Path, name), LabelFunction); err != nil {
				return err
			}
		}
	}
	return nil
}

// callSite is one resolved call pending aggregation.
type callSite struct {
	sourceID    string
	sourceLabel string
	targetID    string
	call        extract.CallExpr
}

// writeCalls resolves every call site in the file and writes one CALLS edge
// per (source, target) pair. The edge carries the first site's line, args,
// and context in (line, column) order; count is the number of sites, so
// rebuilding overwrites rather than accumulates.
func (b *Builder) writeCalls(ctx context.Context, file *extract.CodeFile, res *resolver) error {
	var sites []callSite
	for _, call := range file.Calls {
		sites = append(sites, callSite{
			sourceID:    file.Path,
			sourceLabel: LabelFile,
			targetID:    res.resolve(ctx, b, file.Path, call.Name),
			call:        call,
		})
	}
	for _, name := range file.FunctionNames() {
		srcID := FunctionID(file.Path, name)
		for _, call := range file.Functions[name].Calls {
			sites = append(sites, callSite{
				sourceID:    srcID,
				sourceLabel: LabelFunction,
				targetID:    res.resolve(ctx, b, file.Path, call.Name),
				call:        call,
			})
		}
	}

	grouped := make(map[[2]string][]callSite)
	var order [][2]string
	for _, s := range sites {
		if s.targetID == "" {
			continue
		}
		key := [2]string{s.sourceID, s.targetID}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], s)
	}

	for _, key := range order {
		group := grouped[key]
		sort.Slice(group, func(i, j int) bool {
			pi, pj := group[i].call.Pos, group[j].call.Pos
			if pi.StartLine != pj.StartLine {
				return pi.StartLine < pj.StartLine
			}
			return pi.StartCol < pj.StartCol
		})
		first := group[0]
		if err := b.store.UpsertEdge(ctx, Edge{
			Kind:        EdgeCalls,
			SourceID:    first.sourceID,
			TargetID:    first.targetID,
			SourceLabel: first.sourceLabel,
			Line:        first.call.Pos.StartLine,
			Args:        strings.Join(first.call.Args, ", "),
			Context:     first.call.CallerContext,
			Count:       len(group),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) writeVariables(ctx context.Context, file *extract.CodeFile) error {
	write := func(v extract.Variable, scopeName, sourceID, sourceLabel string) error {
		id := VariableID(file.Path, scopeName, v.Name)
		if err := b.store.UpsertVariable(ctx, VariableNode{
			ID:       id,
			Name:     v.Name,
			Kind:     string(v.Kind),
			Scope:    string(v.Scope),
			Preview:  v.Preview,
			FilePath: file.Path,
			Line:     v.Pos.StartLine,
		}); err != nil {
			return err
		}
		return b.store.UpsertEdge(ctx, Edge{
			Kind:        EdgeDefinesVar,
			SourceID:    sourceID,
			TargetID:    id,
			SourceLabel: sourceLabel,
		})
	}

	for _, v := range file.Variables {
		if err := write(v, "", file.Path, LabelFile); err != nil {
			return err
		}
	}
	for _, name := range file.FunctionNames() {
		srcID := FunctionID(file.Path, name)
		for _, v := range file.Functions[name].Variables {
			if err := write(v, name, srcID, LabelFunction); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeDependencies recomputes every DEPENDS_ON edge. Resolved local imports
// seed each pair at strength 1; cross-file call volume overrides the seed
// where calls exist.
func (b *Builder) writeDependencies(ctx context.Context, res *resolver) error {
	strengths := make(map[[2]string]int)
	for from, targets := range res.imports {
		for _, to := range targets {
			strengths[[2]string{from, to}] = 1
		}
	}

	deps, err := b.store.CrossFileCalls(ctx)
	if err != nil {
		return fmt.Errorf("build: cross-file calls: %w", err)
	}
	for _, d := range deps {
		strengths[[2]string{d.FromPath, d.ToPath}] = d.Calls
	}

	pairs := make([][2]string, 0, len(strengths))
	for pair := range strengths {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})

	for _, pair := range pairs {
		if err := b.store.UpsertEdge(ctx, Edge{
			Kind:        EdgeDependsOn,
			SourceID:    pair[0],
			TargetID:    pair[1],
			SourceLabel: LabelFile,
			Strength:    strengths[pair],
		}); err != nil {
			return fmt.Errorf("build: depends_on %s -> %s: %w", pair[0], pair[1], err)
		}
	}
	return nil
}

// --- Call target resolution ---

// resolver maps call names to function ids using only the scanned corpus.
// Resolution checks the calling file first, then files it imports through
// relative specifiers, and falls back to an external stub. Import specifiers
// are probed against the scanned path set, never the filesystem.
type resolver struct {
	// functions[path] is the set of function names defined in that file.
	functions map[string]map[string]bool
	// imports[path] lists the corpus paths resolved from that file's
	// relative import specifiers, in deterministic order.
	imports map[string][]string
	// externals tracks which stub nodes were already written this build.
	externals map[string]bool
}

func newResolver(files []*extract.CodeFile) *resolver {
	r := &resolver{
		functions: make(map[string]map[string]bool, len(files)),
		imports:   make(map[string][]string, len(files)),
		externals: make(map[string]bool),
	}

	paths := make(map[string]bool, len(files))
	for _, f := range files {
		paths[f.Path] = true
		names := make(map[string]bool, len(f.Functions))
		for name := range f.Functions {
			names[name] = true
		}
		r.functions[f.Path] = names
	}

	for _, f := range files {
		seen := make(map[string]bool)
		var resolved []string
		add := func(spec string) {
			target := resolveRelative(f.Path, spec, paths)
			if target == "" || target == f.Path || seen[target] {
				return
			}
			seen[target] = true
			resolved = append(resolved, target)
		}
		for _, req := range f.Requires {
			add(req.Module)
		}
		for _, name := range f.FunctionNames() {
			for _, req := range f.Functions[name].Requires {
				add(req.Module)
			}
		}
		sort.Strings(resolved)
		r.imports[f.Path] = resolved
	}
	return r
}

// resolve returns the graph id for a call target, writing the external stub
// node on first use. An empty return means the target could not be stored.
func (r *resolver) resolve(ctx context.Context, b *Builder, fromPath, name string) string {
	if name == "" {
		return ""
	}
	if r.functions[fromPath][name] {
		return FunctionID(fromPath, name)
	}
	for _, imp := range r.imports[fromPath] {
		if r.functions[imp][name] {
			return FunctionID(imp, name)
		}
	}

	id := ExternalID(name)
	if !r.externals[id] {
		if err := b.store.UpsertFunction(ctx, FunctionNode{
			ID:       id,
			Name:     name,
			External: true,
		}); err != nil {
			b.log.Warn("external stub write failed", "name", name, "error", err)
			return ""
		}
		r.externals[id] = true
	}
	return id
}

// resolveRelative maps a relative import specifier to a scanned file path.
// Candidates are probed in order: the literal path, the path with each known
// source extension, then the directory index convention.
func resolveRelative(fromPath, spec string, paths map[string]bool) string {
	if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
		return ""
	}
	base := path.Join(path.Dir(fromPath), spec)

	if paths[base] {
		return base
	}
	for _, ext := range sourceExtensions {
		if cand := base + ext; paths[cand] {
			return cand
		}
	}
	for _, ext := range sourceExtensions {
		if cand := path.Join(base, "index"+ext); paths[cand] {
			return cand
		}
	}
	return ""
}
