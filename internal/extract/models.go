package extract

import "sort"

// --- Enums ---

// FunctionKind classifies the syntactic form a function was defined with.
type FunctionKind string

const (
	FunctionKindDeclaration FunctionKind = "declaration"
	FunctionKindExpression  FunctionKind = "expression"
	FunctionKindArrow       FunctionKind = "arrow"
	FunctionKindMethod      FunctionKind = "method"
)

// DeclKind is the declaration keyword of a variable.
type DeclKind string

const (
	DeclConst DeclKind = "const"
	DeclLet   DeclKind = "let"
	DeclVar   DeclKind = "var"
)

// Scope tags where a variable was declared.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeLocal  Scope = "local"
)

// --- Models ---

// Position is the span of a syntax node in the original source.
// Lines are 1-based for display, columns are 0-based, and byte offsets
// allow exact text slicing.
type Position struct {
	StartLine int `json:"startLine"`
	StartCol  int `json:"startCol"`
	EndLine   int `json:"endLine"`
	EndCol    int `json:"endCol"`
	StartByte int `json:"startByte"`
	EndByte   int `json:"endByte"`
}

// CallExpr is a single call site.
type CallExpr struct {
	Name           string   `json:"name"`
	Args           []string `json:"args,omitempty"` // argument previews, truncated
	Pos            Position `json:"pos"`
	IsMemberAccess bool     `json:"isMemberAccess"`
	CallerContext  string   `json:"callerContext,omitempty"` // enclosing function name; empty = top level
}

// RequireExpr is a CommonJS import. Variable is empty for the bare
// side-effect form (`require('./x')` with no assignment).
type RequireExpr struct {
	Module        string   `json:"module"`
	Variable      string   `json:"variable,omitempty"`
	Pos           Position `json:"pos"`
	CallerContext string   `json:"callerContext,omitempty"`
}

// Variable is a const/let/var declaration. Preview is the literal text for
// primitive values, a type tag ("object"/"array") for composites, or a
// placeholder naming the node kind for anything else.
type Variable struct {
	Name     string   `json:"name"`
	Kind     DeclKind `json:"kind"`
	Preview  string   `json:"preview,omitempty"`
	Pos      Position `json:"pos"`
	Scope    Scope    `json:"scope"`
	Exported bool     `json:"exported"`
}

// Param is a single declared parameter.
type Param struct {
	Name    string `json:"name"`
	Default string `json:"default,omitempty"` // default value text, if any
	Rest    bool   `json:"rest,omitempty"`
}

// Function is one extracted function definition. Code is the exact source
// text of the definition span. Calls and Requires cover the whole subtree;
// Variables cover only this function's own block, not nested functions.
type Function struct {
	Name      string       `json:"name"`
	Kind      FunctionKind `json:"kind"`
	Params    []Param      `json:"params,omitempty"`
	Code      string       `json:"code"`
	Pos       Position     `json:"pos"`
	Calls     []CallExpr   `json:"calls,omitempty"`
	Requires  []RequireExpr `json:"requires,omitempty"`
	Variables []Variable   `json:"variables,omitempty"`
	Exported  bool         `json:"exported"`
}

// CodeFile is the extraction result for one source file. The path is the
// file's stable identity. Function names are unique within a file; a
// redefinition replaces the earlier entry. Top-level Calls, Requires, and
// Variables are those not attributed to any function subtree.
type CodeFile struct {
	Path      string               `json:"path"`
	Source    string               `json:"source"`
	Functions map[string]*Function `json:"functions"`
	Calls     []CallExpr           `json:"calls,omitempty"`
	Requires  []RequireExpr        `json:"requires,omitempty"`
	Variables []Variable           `json:"variables,omitempty"`
}

// FunctionNames returns the file's function names in sorted order.
func (f *CodeFile) FunctionNames() []string {
	names := make([]string, 0, len(f.Functions))
	for name := range f.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
