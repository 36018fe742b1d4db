package graph

import "fmt"

// --- Labels ---

// Node table names. These constants are the single source of truth for the
// schema: every Cypher statement is built from them once, never interpolated
// per call.
const (
	LabelFile      = "File"
	LabelFunction  = "Function"
	LabelModule    = "Module"
	LabelVariable  = "Variable"
	LabelParameter = "Parameter"
)

// EdgeKind classifies relationships between nodes.
type EdgeKind string

const (
	EdgeContains     EdgeKind = "CONTAINS"      // File -> Function
	EdgeRequires     EdgeKind = "REQUIRES"      // File|Function -> Module
	EdgeCalls        EdgeKind = "CALLS"         // Function|File -> Function
	EdgeDefinesVar   EdgeKind = "DEFINES_VAR"   // File|Function -> Variable
	EdgeHasParameter EdgeKind = "HAS_PARAMETER" // Function -> Parameter
	EdgeDependsOn    EdgeKind = "DEPENDS_ON"    // File -> File, derived aggregate
)

// ImportKind distinguishes the two CommonJS import forms on REQUIRES edges.
const (
	ImportAssignment = "assignment"
	ImportSideEffect = "side_effect"
)

// --- Identity ---

// FunctionID is the stable key of a function defined in a file. It doubles
// as the vector-store snippet id, so similarity hits map directly onto graph
// nodes.
func FunctionID(filePath, name string) string {
	return filePath + "::" + name
}

// ExternalID is the key of a stub node for a call target that resolves to no
// function in the indexed corpus.
func ExternalID(name string) string {
	return "external::" + name
}

// VariableID keys a variable by file, declaring scope, and name. The module
// scope uses a fixed context so file-level and function-level declarations
// of the same name cannot collide.
func VariableID(filePath, context, name string) string {
	if context == "" {
		context = "<module>"
	}
	return fmt.Sprintf("%s::%s::%s", filePath, context, name)
}

// ParameterID keys a parameter by its owning function and name.
func ParameterID(functionID, name string) string {
	return functionID + "::param::" + name
}

// --- Models ---

// FileNode represents one indexed source file.
type FileNode struct {
	Path    string `json:"path"`
	Size    int    `json:"size"` // bytes
	LOC     int    `json:"loc"`
	Summary string `json:"summary,omitempty"` // first non-empty source line
}

// FunctionNode represents a function, or an external stub for an unresolved
// call target. Stubs have External=true and no file or position data.
type FunctionNode struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FilePath  string `json:"filePath,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Code      string `json:"code,omitempty"`
	StartLine int    `json:"startLine,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
	Exported  bool   `json:"exported"`
	External  bool   `json:"external"`
}

// ModuleNode represents an imported module, keyed by the specifier exactly
// as written: relative paths and package names are distinct nodes.
type ModuleNode struct {
	Name string `json:"name"`
}

// VariableNode represents a declared variable.
type VariableNode struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`  // const, let, var
	Scope    string `json:"scope"` // global, local
	Preview  string `json:"preview,omitempty"`
	FilePath string `json:"filePath"`
	Line     int    `json:"line"`
}

// ParameterNode represents one declared parameter of a function.
type ParameterNode struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Default string `json:"default,omitempty"`
	Rest    bool   `json:"rest"`
}

// Edge is a relationship between two nodes, identified by (Kind, SourceID,
// TargetID). The property fields are meaningful per kind; upserting an edge
// overwrites its properties, so repeated builds converge on one state.
type Edge struct {
	Kind     EdgeKind `json:"kind"`
	SourceID string   `json:"sourceId"`
	TargetID string   `json:"targetId"`

	// SourceLabel names the source node table for edge kinds with mixed
	// endpoints (REQUIRES, CALLS, DEFINES_VAR): LabelFile or LabelFunction.
	SourceLabel string `json:"sourceLabel,omitempty"`

	Variable   string `json:"variable,omitempty"`   // REQUIRES: bound variable name
	ImportKind string `json:"importKind,omitempty"` // REQUIRES: assignment | side_effect
	Line       int    `json:"line,omitempty"`       // REQUIRES, CALLS: first site line
	Args       string `json:"args,omitempty"`       // CALLS: argument previews, comma-joined
	Context    string `json:"context,omitempty"`    // CALLS: call-site context
	Count      int    `json:"count,omitempty"`      // CALLS: number of call sites
	Index      int    `json:"index,omitempty"`      // HAS_PARAMETER: position
	Strength   int    `json:"strength,omitempty"`   // DEPENDS_ON: cross-file call volume
}

// FileDependency is one aggregated cross-file call relationship, used to
// recompute DEPENDS_ON strengths.
type FileDependency struct {
	FromPath string `json:"fromPath"`
	ToPath   string `json:"toPath"`
	Calls    int    `json:"calls"`
}

// Stats summarizes the graph's node and edge counts.
type Stats struct {
	Files      int `json:"files"`
	Functions  int `json:"functions"`
	Modules    int `json:"modules"`
	Variables  int `json:"variables"`
	Parameters int `json:"parameters"`
	Edges      int `json:"edges"`
}
