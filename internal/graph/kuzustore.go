//go:build cgo

package graph

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore implements the Store interface using KuzuDB as the graph
// backend. It requires CGO because the go-kuzu driver wraps KuzuDB's C
// library. All statements are parameterized Cypher built once from the
// schema constants; only integer hop bounds are interpolated.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a file-based KuzuDB at the
// given directory path, so the graph survives across sessions. KuzuDB
// creates the leaf directory itself.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ---------- Schema setup ----------

// ddlStatements defines the Cypher DDL executed by InitSchema, assembled
// from the label constants. Node tables must precede relationship tables.
// Edge kinds with mixed endpoints are declared as rel table groups.
var ddlStatements = []string{
	fmt.Sprintf(`CREATE NODE TABLE IF NOT EXISTS %s(
		path STRING,
		size INT64,
		loc INT64,
		summary STRING,
		PRIMARY KEY(path)
	)`, LabelFile),
	fmt.Sprintf(`CREATE NODE TABLE IF NOT EXISTS %s(
		id STRING,
		name STRING,
		file_path STRING,
		kind STRING,
		code STRING,
		start_line INT64,
		end_line INT64,
		exported BOOLEAN,
		external BOOLEAN,
		PRIMARY KEY(id)
	)`, LabelFunction),
	fmt.Sprintf(`CREATE NODE TABLE IF NOT EXISTS %s(
		name STRING,
		PRIMARY KEY(name)
	)`, LabelModule),
	fmt.Sprintf(`CREATE NODE TABLE IF NOT EXISTS %s(
		id STRING,
		name STRING,
		kind STRING,
		scope STRING,
		preview STRING,
		file_path STRING,
		line INT64,
		PRIMARY KEY(id)
	)`, LabelVariable),
	fmt.Sprintf(`CREATE NODE TABLE IF NOT EXISTS %s(
		id STRING,
		name STRING,
		default_value STRING,
		rest BOOLEAN,
		PRIMARY KEY(id)
	)`, LabelParameter),
	fmt.Sprintf(`CREATE REL TABLE IF NOT EXISTS %s(FROM %s TO %s)`,
		EdgeContains, LabelFile, LabelFunction),
	fmt.Sprintf(`CREATE REL TABLE GROUP IF NOT EXISTS %s(
		FROM %s TO %s,
		FROM %s TO %s,
		variable STRING,
		import_kind STRING,
		line INT64
	)`, EdgeRequires, LabelFile, LabelModule, LabelFunction, LabelModule),
	fmt.Sprintf(`CREATE REL TABLE GROUP IF NOT EXISTS %s(
		FROM %s TO %s,
		FROM %s TO %s,
		line INT64,
		args STRING,
		context STRING,
		count INT64
	)`, EdgeCalls, LabelFunction, LabelFunction, LabelFile, LabelFunction),
	fmt.Sprintf(`CREATE REL TABLE GROUP IF NOT EXISTS %s(
		FROM %s TO %s,
		FROM %s TO %s
	)`, EdgeDefinesVar, LabelFile, LabelVariable, LabelFunction, LabelVariable),
	fmt.Sprintf(`CREATE REL TABLE IF NOT EXISTS %s(FROM %s TO %s, idx INT64)`,
		EdgeHasParameter, LabelFunction, LabelParameter),
	fmt.Sprintf(`CREATE REL TABLE IF NOT EXISTS %s(FROM %s TO %s, strength INT64)`,
		EdgeDependsOn, LabelFile, LabelFile),
}

// InitSchema creates all node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// ---------- Write operations ----------

// Node upsert statements: MERGE by primary key, then overwrite properties so
// a rebuild converges to the same state as a fresh build.

var upsertFileCypher = fmt.Sprintf(
	`MERGE (f:%s {path: $path})
	 SET f.size = $size, f.loc = $loc, f.summary = $summary`, LabelFile)

func (s *KuzuStore) UpsertFile(_ context.Context, node FileNode) error {
	return s.exec(upsertFileCypher, map[string]any{
		"path":    node.Path,
		"size":    int64(node.Size),
		"loc":     int64(node.LOC),
		"summary": node.Summary,
	})
}

var upsertFunctionCypher = fmt.Sprintf(
	`MERGE (fn:%s {id: $id})
	 SET fn.name = $name, fn.file_path = $fp, fn.kind = $kind, fn.code = $code,
	     fn.start_line = $sl, fn.end_line = $el, fn.exported = $exported,
	     fn.external = $external`, LabelFunction)

func (s *KuzuStore) UpsertFunction(_ context.Context, node FunctionNode) error {
	return s.exec(upsertFunctionCypher, map[string]any{
		"id":       node.ID,
		"name":     node.Name,
		"fp":       node.FilePath,
		"kind":     node.Kind,
		"code":     node.Code,
		"sl":       int64(node.StartLine),
		"el":       int64(node.EndLine),
		"exported": node.Exported,
		"external": node.External,
	})
}

var upsertModuleCypher = fmt.Sprintf(`MERGE (m:%s {name: $name})`, LabelModule)

func (s *KuzuStore) UpsertModule(_ context.Context, node ModuleNode) error {
	return s.exec(upsertModuleCypher, map[string]any{"name": node.Name})
}

var upsertVariableCypher = fmt.Sprintf(
	`MERGE (v:%s {id: $id})
	 SET v.name = $name, v.kind = $kind, v.scope = $scope, v.preview = $preview,
	     v.file_path = $fp, v.line = $line`, LabelVariable)

func (s *KuzuStore) UpsertVariable(_ context.Context, node VariableNode) error {
	return s.exec(upsertVariableCypher, map[string]any{
		"id":      node.ID,
		"name":    node.Name,
		"kind":    node.Kind,
		"scope":   node.Scope,
		"preview": node.Preview,
		"fp":      node.FilePath,
		"line":    int64(node.Line),
	})
}

var upsertParameterCypher = fmt.Sprintf(
	`MERGE (p:%s {id: $id})
	 SET p.name = $name, p.default_value = $default_value, p.rest = $rest`, LabelParameter)

func (s *KuzuStore) UpsertParameter(_ context.Context, node ParameterNode) error {
	return s.exec(upsertParameterCypher, map[string]any{
		"id":            node.ID,
		"name":          node.Name,
		"default_value": node.Default,
		"rest":          node.Rest,
	})
}

// edgeCypher maps (kind, source label) to a MATCH-MERGE-SET statement.
// Built once at package init from the schema constants.
var edgeCypher = map[EdgeKind]map[string]string{
	EdgeContains: {
		LabelFile: fmt.Sprintf(
			`MATCH (a:%s {path: $src}), (b:%s {id: $dst})
			 MERGE (a)-[:%s]->(b)`, LabelFile, LabelFunction, EdgeContains),
	},
	EdgeRequires: {
		LabelFile: fmt.Sprintf(
			`MATCH (a:%s {path: $src}), (b:%s {name: $dst})
			 MERGE (a)-[r:%s]->(b)
			 SET r.variable = $variable, r.import_kind = $import_kind, r.line = $line`,
			LabelFile, LabelModule, EdgeRequires),
		LabelFunction: fmt.Sprintf(
			`MATCH (a:%s {id: $src}), (b:%s {name: $dst})
			 MERGE (a)-[r:%s]->(b)
			 SET r.variable = $variable, r.import_kind = $import_kind, r.line = $line`,
			LabelFunction, LabelModule, EdgeRequires),
	},
	EdgeCalls: {
		LabelFile: fmt.Sprintf(
			`MATCH (a:%s {path: $src}), (b:%s {id: $dst})
			 MERGE (a)-[r:%s]->(b)
			 SET r.line = $line, r.args = $args, r.context = $context, r.count = $count`,
			LabelFile, LabelFunction, EdgeCalls),
		LabelFunction: fmt.Sprintf(
			`MATCH (a:%s {id: $src}), (b:%s {id: $dst})
			 MERGE (a)-[r:%s]->(b)
			 SET r.line = $line, r.args = $args, r.context = $context, r.count = $count`,
			LabelFunction, LabelFunction, EdgeCalls),
	},
	EdgeDefinesVar: {
		LabelFile: fmt.Sprintf(
			`MATCH (a:%s {path: $src}), (b:%s {id: $dst})
			 MERGE (a)-[:%s]->(b)`, LabelFile, LabelVariable, EdgeDefinesVar),
		LabelFunction: fmt.Sprintf(
			`MATCH (a:%s {id: $src}), (b:%s {id: $dst})
			 MERGE (a)-[:%s]->(b)`, LabelFunction, LabelVariable, EdgeDefinesVar),
	},
	EdgeHasParameter: {
		LabelFunction: fmt.Sprintf(
			`MATCH (a:%s {id: $src}), (b:%s {id: $dst})
			 MERGE (a)-[r:%s]->(b)
			 SET r.idx = $idx`, LabelFunction, LabelParameter, EdgeHasParameter),
	},
	EdgeDependsOn: {
		LabelFile: fmt.Sprintf(
			`MATCH (a:%s {path: $src}), (b:%s {path: $dst})
			 MERGE (a)-[r:%s]->(b)
			 SET r.strength = $strength`, LabelFile, LabelFile, EdgeDependsOn),
	},
}

// UpsertEdge merges a relationship edge between two existing nodes.
func (s *KuzuStore) UpsertEdge(_ context.Context, edge Edge) error {
	label := edge.SourceLabel
	if label == "" {
		label = inferSourceLabel(edge)
	}
	byLabel, ok := edgeCypher[edge.Kind]
	if !ok {
		return fmt.Errorf("kuzu: unsupported edge kind: %s", edge.Kind)
	}
	cypher, ok := byLabel[label]
	if !ok {
		return fmt.Errorf("kuzu: unsupported source label %s for edge kind %s", label, edge.Kind)
	}

	params := map[string]any{"src": edge.SourceID, "dst": edge.TargetID}
	switch edge.Kind {
	case EdgeRequires:
		params["variable"] = edge.Variable
		params["import_kind"] = edge.ImportKind
		params["line"] = int64(edge.Line)
	case EdgeCalls:
		params["line"] = int64(edge.Line)
		params["args"] = edge.Args
		params["context"] = edge.Context
		params["count"] = int64(edge.Count)
	case EdgeHasParameter:
		params["idx"] = int64(edge.Index)
	case EdgeDependsOn:
		params["strength"] = int64(edge.Strength)
	}
	return s.exec(cypher, params)
}

// inferSourceLabel falls back on the identity scheme: function ids always
// contain the "::" separator, file paths do not.
func inferSourceLabel(edge Edge) string {
	switch edge.Kind {
	case EdgeContains, EdgeDependsOn:
		return LabelFile
	case EdgeHasParameter:
		return LabelFunction
	}
	if strings.Contains(edge.SourceID, "::") {
		return LabelFunction
	}
	return LabelFile
}

// ---------- Point reads ----------

var getFileCypher = fmt.Sprintf(
	`MATCH (f:%s {path: $path}) RETURN f.path, f.size, f.loc, f.summary`, LabelFile)

func (s *KuzuStore) GetFile(_ context.Context, path string) (*FileNode, error) {
	rows, err := s.query(getFileCypher, map[string]any{"path": path})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0]
	return &FileNode{
		Path:    toString(r[0]),
		Size:    toInt(r[1]),
		LOC:     toInt(r[2]),
		Summary: toString(r[3]),
	}, nil
}

// functionColumns is the fixed projection used by every function-returning
// query; rowToFunction depends on this column order.
const functionColumns = "b.id, b.name, b.file_path, b.kind, b.code, b.start_line, b.end_line, b.exported, b.external"

var getFunctionCypher = fmt.Sprintf(
	`MATCH (b:%s {id: $id}) RETURN %s`, LabelFunction, functionColumns)

func (s *KuzuStore) GetFunction(_ context.Context, id string) (*FunctionNode, error) {
	rows, err := s.query(getFunctionCypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToFunction(rows[0]), nil
}

// ---------- Retrieval read path ----------

// reachableCypherTemplate needs the hop bound spliced into the Kleene range;
// Cypher does not allow a parameter there. The bound is always an int.
var reachableCypherTemplate = fmt.Sprintf(
	`MATCH (a:%s {id: $id})-[:%s*1..%%d]-(b:%s)
	 WHERE b.id <> $id
	 RETURN DISTINCT %s`, LabelFunction, EdgeCalls, LabelFunction, functionColumns)

// ReachableFunctions returns functions within maxHops CALLS edges of id,
// traversed in either direction.
func (s *KuzuStore) ReachableFunctions(_ context.Context, id string, maxHops int) ([]FunctionNode, error) {
	if maxHops <= 0 {
		return nil, nil
	}
	cypher := fmt.Sprintf(reachableCypherTemplate, maxHops)
	rows, err := s.query(cypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return rowsToFunctions(rows), nil
}

var siblingCypher = fmt.Sprintf(
	`MATCH (f:%s)-[:%s]->(seed:%s {id: $id}), (f)-[:%s]->(b:%s)
	 WHERE b.id <> $id
	 RETURN DISTINCT %s`,
	LabelFile, EdgeContains, LabelFunction, EdgeContains, LabelFunction, functionColumns)

// SiblingFunctions returns the other functions contained by the seed's file.
func (s *KuzuStore) SiblingFunctions(_ context.Context, id string) ([]FunctionNode, error) {
	rows, err := s.query(siblingCypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return rowsToFunctions(rows), nil
}

var sharedModuleCypher = fmt.Sprintf(
	`MATCH (sf:%s)-[:%s]->(seed:%s {id: $id}),
	       (sf)-[:%s]->(m:%s)<-[:%s]-(of:%s),
	       (of)-[:%s]->(b:%s)
	 WHERE of.path <> sf.path
	 RETURN DISTINCT %s`,
	LabelFile, EdgeContains, LabelFunction,
	EdgeRequires, LabelModule, EdgeRequires, LabelFile,
	EdgeContains, LabelFunction, functionColumns)

// SharedModuleFunctions returns functions of other files importing at least
// one module the seed's file also imports. Only file-level REQUIRES edges
// participate; a function-scoped import still belongs to its file there.
func (s *KuzuStore) SharedModuleFunctions(_ context.Context, id string) ([]FunctionNode, error) {
	rows, err := s.query(sharedModuleCypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return rowsToFunctions(rows), nil
}

var crossFileCallsCyphers = []string{
	fmt.Sprintf(
		`MATCH (a:%s)-[r:%s]->(b:%s)
		 WHERE a.file_path <> b.file_path AND b.external = false
		 RETURN a.file_path, b.file_path, sum(r.count)`,
		LabelFunction, EdgeCalls, LabelFunction),
	fmt.Sprintf(
		`MATCH (a:%s)-[r:%s]->(b:%s)
		 WHERE a.path <> b.file_path AND b.external = false
		 RETURN a.path, b.file_path, sum(r.count)`,
		LabelFile, EdgeCalls, LabelFunction),
}

// CrossFileCalls aggregates CALLS edges whose endpoints live in different
// files, from both function-level and file-level call sites.
func (s *KuzuStore) CrossFileCalls(_ context.Context) ([]FileDependency, error) {
	acc := make(map[[2]string]int)
	for _, cypher := range crossFileCallsCyphers {
		rows, err := s.query(cypher, nil)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			from, to := toString(r[0]), toString(r[1])
			if from == "" || to == "" {
				continue
			}
			acc[[2]string{from, to}] += toInt(r[2])
		}
	}

	deps := make([]FileDependency, 0, len(acc))
	for pair, n := range acc {
		deps = append(deps, FileDependency{FromPath: pair[0], ToPath: pair[1], Calls: n})
	}
	sortDependencies(deps)
	return deps, nil
}

// ---------- Stats ----------

// Stats returns counts of all node and edge tables.
func (s *KuzuStore) Stats(_ context.Context) (*Stats, error) {
	stats := &Stats{}
	for _, c := range []struct {
		table string
		dst   *int
	}{
		{LabelFile, &stats.Files},
		{LabelFunction, &stats.Functions},
		{LabelModule, &stats.Modules},
		{LabelVariable, &stats.Variables},
		{LabelParameter, &stats.Parameters},
	} {
		n, err := s.countTable(c.table)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	edges, err := s.countEdges()
	if err != nil {
		return nil, err
	}
	stats.Edges = edges
	return stats, nil
}

// ---------- Internal helpers ----------

// exec runs a parameterized Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// countTable returns the number of rows in a node table.
func (s *KuzuStore) countTable(table string) (int, error) {
	// Table name is a fixed schema constant, not user input.
	cypher := fmt.Sprintf("MATCH (n:%s) RETURN count(n)", table)
	rows, err := s.query(cypher, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// countEdges returns the total edge count across all relationship tables.
func (s *KuzuStore) countEdges() (int, error) {
	kinds := []EdgeKind{EdgeContains, EdgeRequires, EdgeCalls, EdgeDefinesVar, EdgeHasParameter, EdgeDependsOn}
	total := 0
	for _, k := range kinds {
		cypher := fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r)", k)
		rows, err := s.query(cypher, nil)
		if err != nil {
			// Table may not exist yet; treat as zero.
			continue
		}
		if len(rows) > 0 && len(rows[0]) > 0 {
			total += toInt(rows[0][0])
		}
	}
	return total, nil
}

// rowToFunction converts a functionColumns result row into a FunctionNode.
func rowToFunction(r []any) *FunctionNode {
	return &FunctionNode{
		ID:        toString(r[0]),
		Name:      toString(r[1]),
		FilePath:  toString(r[2]),
		Kind:      toString(r[3]),
		Code:      toString(r[4]),
		StartLine: toInt(r[5]),
		EndLine:   toInt(r[6]),
		Exported:  toBool(r[7]),
		External:  toBool(r[8]),
	}
}

func rowsToFunctions(rows [][]any) []FunctionNode {
	out := make([]FunctionNode, 0, len(rows))
	for _, r := range rows {
		out = append(out, *rowToFunction(r))
	}
	sortFunctions(out)
	return out
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string). These
// helpers safely coerce any -> concrete type.

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case float64:
		return int(n)
	case *big.Int:
		// Aggregates over INT64 columns come back as INT128.
		return int(n.Int64())
	default:
		return 0
	}
}

func toBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
