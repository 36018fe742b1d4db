package extract

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Language identifies a grammar for parsing.
type Language string

const (
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
)

// ExtToLanguage maps file extensions to the grammar used to parse them.
var ExtToLanguage = map[string]Language{
	".js":  LangJavaScript,
	".mjs": LangJavaScript,
	".cjs": LangJavaScript,
	".ts":  LangTypeScript,
}

// builtinRoots is the fixed set of runtime globals whose member calls
// (console.log, Math.max, ...) are filtered from the call list. A direct
// call of one of these names is kept; only member access through them is
// dropped.
var builtinRoots = map[string]bool{
	"console": true,
	"Object":  true,
	"Array":   true,
	"Promise": true,
	"this":    true,
	"Math":    true,
	"process": true,
	"Buffer":  true,
}

// argPreviewLen bounds the recorded text of a single call argument.
const argPreviewLen = 40

// grammar bundles a tree-sitter language with its compiled queries.
type grammar struct {
	lang      *tree_sitter.Language
	functions *tree_sitter.Query
	calls     *tree_sitter.Query
	requires  *tree_sitter.Query
	variables *tree_sitter.Query
}

// Extractor converts parsed syntax trees into CodeFile entities. Queries are
// compiled once at construction; a compilation failure makes the whole
// extractor unusable, so the constructor returns an error instead of a
// half-initialized value. A new tree-sitter parser is created per Extract
// call, so concurrent Extract calls on the same Extractor are safe.
type Extractor struct {
	grammars map[Language]*grammar
}

// NewExtractor compiles the pattern queries for the JavaScript and
// TypeScript grammars.
func NewExtractor() (*Extractor, error) {
	e := &Extractor{grammars: make(map[Language]*grammar, 2)}

	langs := map[Language]*tree_sitter.Language{
		LangJavaScript: tree_sitter.NewLanguage(tree_sitter_javascript.Language()),
		LangTypeScript: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
	}

	for name, lang := range langs {
		g, err := compileGrammar(lang)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("extract: compile %s queries: %w", name, err)
		}
		e.grammars[name] = g
	}
	return e, nil
}

func compileGrammar(lang *tree_sitter.Language) (*grammar, error) {
	g := &grammar{lang: lang}
	for _, q := range []struct {
		pattern string
		dst     **tree_sitter.Query
	}{
		{functionQuery, &g.functions},
		{callQuery, &g.calls},
		{requireQuery, &g.requires},
		{variableQuery, &g.variables},
	} {
		compiled, err := tree_sitter.NewQuery(lang, q.pattern)
		if err != nil {
			g.close()
			return nil, err
		}
		*q.dst = compiled
	}
	return g, nil
}

func (g *grammar) close() {
	for _, q := range []*tree_sitter.Query{g.functions, g.calls, g.requires, g.variables} {
		if q != nil {
			q.Close()
		}
	}
}

// Close releases the compiled queries.
func (e *Extractor) Close() error {
	for _, g := range e.grammars {
		g.close()
	}
	return nil
}

// Extract parses source and produces one CodeFile. The language is chosen
// from the path's extension; unrecognized extensions are an error.
func (e *Extractor) Extract(path string, source []byte) (*CodeFile, error) {
	lang, ok := ExtToLanguage[extOf(path)]
	if !ok {
		return nil, fmt.Errorf("extract: unsupported extension for %s", path)
	}
	g := e.grammars[lang]

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(g.lang); err != nil {
		return nil, fmt.Errorf("extract: set language: %w", err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("extract: parse failed for %s", path)
	}
	defer tree.Close()

	w := &walker{
		grammar:  g,
		source:   source,
		root:     tree.RootNode(),
		exported: exportedNames(string(source)),
	}

	file := &CodeFile{
		Path:      path,
		Source:    string(source),
		Functions: make(map[string]*Function),
	}

	w.collectFunctions(file)
	w.collectCalls(file)
	w.collectRequires(file)
	w.collectVariables(file)

	return file, nil
}

func extOf(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i:]
	}
	return ""
}

// --- Walker ---

// defSpan records one function definition node's byte span. Spans identify
// definition nodes structurally, so deduplication does not depend on node
// reference identity.
type defSpan struct {
	start, end int
	name       string
}

// walker holds per-file extraction state.
type walker struct {
	grammar  *grammar
	source   []byte
	root     *tree_sitter.Node
	exported map[string]bool

	// defs is sorted by (start, -end) after collectFunctions; used for
	// scope attribution of calls, requires, and variables.
	defs []defSpan
}

// captureMap indexes a query match's captures by capture name. Later
// captures with the same name win, which matters only for the alternation
// patterns where a name appears once per branch.
func captureMap(q *tree_sitter.Query, m *tree_sitter.QueryMatch) map[string]*tree_sitter.Node {
	names := q.CaptureNames()
	caps := make(map[string]*tree_sitter.Node, len(m.Captures))
	for i := range m.Captures {
		cap := &m.Captures[i]
		if int(cap.Index) < len(names) {
			node := cap.Node
			caps[names[cap.Index]] = &node
		}
	}
	return caps
}

func nodePosition(n *tree_sitter.Node) Position {
	start := n.StartPosition()
	end := n.EndPosition()
	return Position{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column),
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column),
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
	}
}

func (w *walker) text(n *tree_sitter.Node) string {
	return n.Utf8Text(w.source)
}

// --- Functions ---

func (w *walker) collectFunctions(file *CodeFile) {
	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	seen := make(map[string]bool) // definition spans already processed

	matches := cursor.Matches(w.grammar.functions, w.root, w.source)
	for m := matches.Next(); m != nil; m = matches.Next() {
		caps := captureMap(w.grammar.functions, m)
		nameNode := caps["function.name"]
		rawDef := caps["function.definition"]
		if nameNode == nil || rawDef == nil {
			continue
		}

		def := definitionBoundary(rawDef)
		spanKey := fmt.Sprintf("%d:%d", def.StartByte(), def.EndByte())
		if seen[spanKey] {
			continue // same definition matched via a second pattern path
		}
		seen[spanKey] = true

		name := w.text(nameNode)
		fn := &Function{
			Name:     name,
			Kind:     functionKind(rawDef, caps["function.value"]),
			Params:   w.params(functionBody(rawDef, caps["function.value"])),
			Code:     w.text(def),
			Pos:      nodePosition(def),
			Exported: w.exported[name],
		}

		file.Functions[name] = fn
		w.defs = append(w.defs, defSpan{
			start: int(def.StartByte()),
			end:   int(def.EndByte()),
			name:  name,
		})
	}

	sort.Slice(w.defs, func(i, j int) bool {
		if w.defs[i].start != w.defs[j].start {
			return w.defs[i].start < w.defs[j].start
		}
		return w.defs[i].end > w.defs[j].end
	})
}

// definitionBoundary widens a matched definition node to the statement that
// spans the whole definition. Only the variable-declarator form needs
// widening; the member-assignment pattern already captures the enclosing
// expression_statement.
func definitionBoundary(def *tree_sitter.Node) *tree_sitter.Node {
	if def.Kind() != "variable_declarator" {
		return def
	}
	for p := def.Parent(); p != nil; p = p.Parent() {
		if k := p.Kind(); k == "lexical_declaration" || k == "variable_declaration" {
			return p
		}
	}
	return def
}

func functionKind(rawDef, value *tree_sitter.Node) FunctionKind {
	switch rawDef.Kind() {
	case "function_declaration":
		return FunctionKindDeclaration
	case "method_definition":
		return FunctionKindMethod
	}
	if value != nil && value.Kind() == "arrow_function" {
		return FunctionKindArrow
	}
	return FunctionKindExpression
}

// functionBody returns the node carrying the parameter list: the definition
// itself for declarations and methods, the bound function/arrow value
// otherwise.
func functionBody(rawDef, value *tree_sitter.Node) *tree_sitter.Node {
	if value != nil {
		return value
	}
	return rawDef
}

func (w *walker) params(fnNode *tree_sitter.Node) []Param {
	if fnNode == nil {
		return nil
	}
	list := fnNode.ChildByFieldName("parameters")
	if list == nil {
		// Bare single-parameter arrow: x => x + 1
		if p := fnNode.ChildByFieldName("parameter"); p != nil {
			return []Param{{Name: w.text(p)}}
		}
		return nil
	}

	var params []Param
	for i := uint(0); i < list.NamedChildCount(); i++ {
		p := list.NamedChild(i)
		if p == nil {
			continue
		}
		switch p.Kind() {
		case "identifier":
			params = append(params, Param{Name: w.text(p)})
		case "assignment_pattern":
			left := p.ChildByFieldName("left")
			right := p.ChildByFieldName("right")
			if left == nil {
				continue
			}
			param := Param{Name: w.text(left)}
			if right != nil {
				param.Default = w.text(right)
			}
			params = append(params, param)
		case "rest_pattern":
			if inner := p.NamedChild(0); inner != nil {
				params = append(params, Param{Name: w.text(inner), Rest: true})
			}
		default:
			// Destructuring and typed patterns are recorded verbatim.
			params = append(params, Param{Name: w.text(p)})
		}
	}
	return params
}

// --- Scope attribution ---

// enclosing returns the names of every function whose definition span
// strictly contains [start, end), outermost first, and the innermost name
// separately. An empty innermost means top level.
func (w *walker) enclosing(start, end int) (all []string, innermost string) {
	for _, d := range w.defs {
		if d.start <= start && end <= d.end && !(d.start == start && d.end == end) {
			all = append(all, d.name)
			innermost = d.name // defs are sorted outermost-first for nested spans
		}
	}
	return all, innermost
}

// --- Calls ---

func (w *walker) collectCalls(file *CodeFile) {
	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	matches := cursor.Matches(w.grammar.calls, w.root, w.source)
	for m := matches.Next(); m != nil; m = matches.Next() {
		caps := captureMap(w.grammar.calls, m)
		callNode := caps["call.expression"]
		if callNode == nil {
			continue
		}

		call, ok := w.classifyCall(caps, callNode)
		if !ok {
			continue
		}

		hosts, _ := w.enclosing(call.Pos.StartByte, call.Pos.EndByte)
		if len(hosts) == 0 {
			file.Calls = append(file.Calls, call)
			continue
		}
		// A call inside a function subtree belongs to every enclosing
		// definition, tagged with that definition's name.
		for _, host := range hosts {
			fn := file.Functions[host]
			if fn == nil {
				continue
			}
			scoped := call
			scoped.CallerContext = host
			fn.Calls = append(fn.Calls, scoped)
		}
	}
}

// classifyCall builds a CallExpr from a call match, applying the builtin
// filter and dropping require() calls, which the import extraction owns.
func (w *walker) classifyCall(caps map[string]*tree_sitter.Node, callNode *tree_sitter.Node) (CallExpr, bool) {
	var name string
	member := false

	if prop := caps["call.target.member"]; prop != nil {
		member = true
		name = w.text(prop)
		if expr := caps["call.target.expression"]; expr != nil {
			obj := expr.ChildByFieldName("object")
			if obj != nil {
				kind := obj.Kind()
				if (kind == "identifier" || kind == "this") && builtinRoots[w.text(obj)] {
					return CallExpr{}, false
				}
			}
		}
	} else if target := caps["call.target"]; target != nil {
		name = w.text(target)
		if name == "require" {
			return CallExpr{}, false
		}
	} else {
		return CallExpr{}, false
	}

	return CallExpr{
		Name:           name,
		Args:           w.argPreviews(caps["call.arguments"]),
		Pos:            nodePosition(callNode),
		IsMemberAccess: member,
	}, true
}

func (w *walker) argPreviews(args *tree_sitter.Node) []string {
	if args == nil {
		return nil
	}
	var previews []string
	for i := uint(0); i < args.NamedChildCount(); i++ {
		a := args.NamedChild(i)
		if a == nil {
			continue
		}
		previews = append(previews, truncate(w.text(a), argPreviewLen))
	}
	return previews
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back off to a rune boundary so the preview stays valid UTF-8.
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// --- Requires ---

func (w *walker) collectRequires(file *CodeFile) {
	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	matches := cursor.Matches(w.grammar.requires, w.root, w.source)
	for m := matches.Next(); m != nil; m = matches.Next() {
		caps := captureMap(w.grammar.requires, m)
		fn := caps["require.func"]
		pathNode := caps["require.path"]
		if fn == nil || pathNode == nil || w.text(fn) != "require" {
			continue
		}

		var span *tree_sitter.Node
		req := RequireExpr{Module: stripQuotes(w.text(pathNode))}
		if req.Module == "" {
			continue
		}

		if v := caps["require.variable"]; v != nil {
			req.Variable = w.text(v)
			span = caps["require.assignment"]
		} else {
			span = caps["require.call"]
			// The bare pattern also matches the call inside an assignment.
			// The declarator pattern owns identifier bindings; destructured
			// bindings only match here, so record the pattern text.
			if span != nil && span.Parent() != nil && span.Parent().Kind() == "variable_declarator" {
				decl := span.Parent()
				if nameN := decl.ChildByFieldName("name"); nameN != nil {
					if nameN.Kind() == "identifier" {
						continue
					}
					req.Variable = w.text(nameN)
					span = decl
				}
			}
		}
		if span == nil {
			continue
		}
		req.Pos = nodePosition(span)

		hosts, _ := w.enclosing(req.Pos.StartByte, req.Pos.EndByte)
		if len(hosts) == 0 {
			file.Requires = append(file.Requires, req)
			continue
		}
		for _, h := range hosts {
			target := file.Functions[h]
			if target == nil {
				continue
			}
			scoped := req
			scoped.CallerContext = h
			target.Requires = append(target.Requires, scoped)
		}
	}
}

func stripQuotes(s string) string {
	return strings.Trim(s, "\"'`")
}

// --- Variables ---

func (w *walker) collectVariables(file *CodeFile) {
	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	matches := cursor.Matches(w.grammar.variables, w.root, w.source)
	for m := matches.Next(); m != nil; m = matches.Next() {
		caps := captureMap(w.grammar.variables, m)
		nameNode := caps["variable.name"]
		decl := caps["variable.declaration"]
		if nameNode == nil || decl == nil {
			continue
		}

		value := caps["variable.value"]
		if isFunctionValue(value) || isRequireCall(value, w.source) {
			continue // owned by the function / import extraction
		}

		name := w.text(nameNode)
		v := Variable{
			Name:     name,
			Kind:     declKind(decl, w.source),
			Preview:  w.valuePreview(value),
			Pos:      nodePosition(decl),
			Scope:    ScopeGlobal,
			Exported: w.exported[name],
		}

		_, host := w.enclosing(v.Pos.StartByte, v.Pos.EndByte)
		if host == "" {
			file.Variables = append(file.Variables, v)
			continue
		}
		// Variables belong only to the innermost enclosing function, not to
		// every function whose subtree contains them.
		v.Scope = ScopeLocal
		if fn := file.Functions[host]; fn != nil {
			fn.Variables = append(fn.Variables, v)
		}
	}
}

func isFunctionValue(value *tree_sitter.Node) bool {
	if value == nil {
		return false
	}
	k := value.Kind()
	return k == "function_expression" || k == "arrow_function" || k == "function_declaration"
}

func isRequireCall(value *tree_sitter.Node, source []byte) bool {
	if value == nil || value.Kind() != "call_expression" {
		return false
	}
	fn := value.ChildByFieldName("function")
	return fn != nil && fn.Kind() == "identifier" && fn.Utf8Text(source) == "require"
}

// declKind reads the declaration keyword from the declaration node's first
// token. Only lexical_declaration exposes a "kind" field in the grammar, so
// the token text is the uniform source of truth.
func declKind(decl *tree_sitter.Node, source []byte) DeclKind {
	if first := decl.Child(0); first != nil {
		switch first.Utf8Text(source) {
		case "let":
			return DeclLet
		case "var":
			return DeclVar
		}
	}
	return DeclConst
}

// previewLiteralKinds are value node kinds recorded verbatim.
var previewLiteralKinds = map[string]bool{
	"number":          true,
	"string":          true,
	"template_string": true,
	"true":            true,
	"false":           true,
	"null":            true,
	"undefined":       true,
	"regex":           true,
}

// valuePreview bounds what is recorded for a variable's value: literal text
// for primitives, a type tag for composites, a kind placeholder otherwise.
func (w *walker) valuePreview(value *tree_sitter.Node) string {
	if value == nil {
		return ""
	}
	kind := value.Kind()
	switch {
	case previewLiteralKinds[kind]:
		return truncate(w.text(value), 80)
	case kind == "object":
		return "object"
	case kind == "array":
		return "array"
	default:
		return "<" + kind + ">"
	}
}

// --- Export detection ---

// exportedNames scans the source for module.exports assignments and returns
// the names they appear to export. This is a best-effort substring heuristic:
// it recognizes `module.exports = { a, b }` and `module.exports.c = ...`
// forms and nothing else.
func exportedNames(source string) map[string]bool {
	names := make(map[string]bool)
	const marker = "module.exports"

	for idx := strings.Index(source, marker); idx >= 0; {
		rest := source[idx+len(marker):]

		switch {
		case strings.HasPrefix(rest, "."):
			// module.exports.name = ...
			name := leadingIdentifier(rest[1:])
			if name != "" {
				names[name] = true
			}
		default:
			// module.exports = { ... }
			if eq := strings.IndexByte(rest, '='); eq >= 0 {
				after := strings.TrimSpace(rest[eq+1:])
				if strings.HasPrefix(after, "{") {
					if close := strings.IndexByte(after, '}'); close > 0 {
						for _, field := range strings.Split(after[1:close], ",") {
							name := strings.TrimSpace(strings.SplitN(field, ":", 2)[0])
							if isIdentifier(name) {
								names[name] = true
							}
						}
					}
				} else if name := leadingIdentifier(after); name != "" {
					names[name] = true
				}
			}
		}

		next := strings.Index(source[idx+len(marker):], marker)
		if next < 0 {
			break
		}
		idx += len(marker) + next
	}
	return names
}

func leadingIdentifier(s string) string {
	end := 0
	for end < len(s) && isIdentByte(s[end], end == 0) {
		end++
	}
	return s[:end]
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i], i == 0) {
			return false
		}
	}
	return true
}

func isIdentByte(b byte, first bool) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b == '_', b == '$':
		return true
	case b >= '0' && b <= '9':
		return !first
	}
	return false
}
