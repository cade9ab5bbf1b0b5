package engine

import (
	"sort"

	"github.com/freeeve/machparse/ast"

	"github.com/yamlbase/yamlbase/internal/catalog"
	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/value"
)

// executeSelect walks a SELECT AST in this order: CTEs, FROM/JOIN, WHERE,
// then either GROUP BY/aggregation and HAVING or, for queries with neither
// GROUP BY nor aggregates, window functions; then projection, ORDER BY,
// DISTINCT, LIMIT/OFFSET. Window functions are not computed for grouped or
// aggregate queries.
// distinctOn carries `DISTINCT ON (k1, k2)` key expressions, which
// machparse's AST has no field for (spec §4.4.8, see sqlfront.ParsedStatement).
func (e *Executor) executeSelect(sel *ast.SelectStmt, distinctOn []ast.Expr) (*QueryResult, error) {
	savedCTEs := e.ctes
	e.ctes = cloneCTEs(savedCTEs)
	defer func() { e.ctes = savedCTEs }()

	if err := e.materializeCTEs(sel.With); err != nil {
		return nil, err
	}

	var rows []*Row
	if name, alias, ok := singleTableRef(sel.From); ok && sel.Where != nil {
		if tbl, tok := e.lookupTable(name); tok {
			if probed, found := e.tryIndexScan(tbl, alias, sel.Where); found {
				rows = probed
			}
		}
	}
	if rows == nil {
		var err error
		rows, err = e.evalFrom(sel.From)
		if err != nil {
			return nil, err
		}
	}

	var err error
	if sel.Where != nil {
		rows, err = e.filter(rows, sel.Where)
		if err != nil {
			return nil, err
		}
	}

	var resultRows [][]value.Value
	var colNames []string
	var colTypes []value.SqlType

	if len(sel.GroupBy) > 0 || hasAggregate(sel.Columns) {
		resultRows, colNames, err = e.executeGrouped(sel, rows)
		colTypes = make([]value.SqlType, len(colNames))
	} else {
		rows, err = e.applyWindows(rows, sel.Columns)
		if err != nil {
			return nil, err
		}
		resultRows, colNames, err = e.project(rows, sel.Columns)
		colTypes = make([]value.SqlType, len(colNames))
	}
	if err != nil {
		return nil, err
	}

	if len(distinctOn) > 0 {
		resultRows, err = e.applyDistinctOn(resultRows, rows, colNames, sel, distinctOn)
		if err != nil {
			return nil, err
		}
	} else {
		if sel.OrderBy != nil {
			if err := e.sortRows(resultRows, colNames, sel); err != nil {
				return nil, err
			}
		}
		if sel.Distinct {
			resultRows = distinctRows(resultRows)
		}
	}

	resultRows = applyLimit(resultRows, sel.Limit)

	columns := make([]ColumnDescriptor, len(colNames))
	for i, n := range colNames {
		columns[i] = ColumnDescriptor{Name: n, Type: colTypes[i]}
	}

	return &QueryResult{Columns: columns, Rows: resultRows, Command: "SELECT"}, nil
}

func cloneCTEs(m map[string]*catalog.Table) map[string]*catalog.Table {
	clone := make(map[string]*catalog.Table, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

func (e *Executor) filter(rows []*Row, where ast.Expr) ([]*Row, error) {
	var out []*Row
	for _, r := range rows {
		if err := e.deadline.checkEvery(); err != nil {
			return nil, err
		}
		v, err := e.Eval(r, where)
		if err != nil {
			return nil, err
		}
		if !v.IsNull() && v.Boolean {
			out = append(out, r)
		}
	}
	return out, nil
}

// project expands `*`/`t.*` and evaluates explicit expressions, choosing
// output names from AS alias, then column name, then expression text
// (spec §4.4, "Projection").
func (e *Executor) project(rows []*Row, exprs []ast.SelectExpr) ([][]value.Value, []string, error) {
	var names []string
	out := make([][]value.Value, 0, len(rows))

	for ri, r := range rows {
		if err := e.deadline.checkEvery(); err != nil {
			return nil, nil, err
		}
		var rowOut []value.Value
		for _, se := range exprs {
			switch n := se.(type) {
			case *ast.StarExpr:
				alias := ""
				if n.HasQualifier {
					alias = n.TableName
				}
				for _, b := range r.sourceFor(alias) {
					if ri == 0 {
						names = append(names, b.declaredName)
					}
					rowOut = append(rowOut, b.value)
				}
			case *ast.AliasedExpr:
				v, err := e.Eval(r, n.Expr)
				if err != nil {
					return nil, nil, err
				}
				if ri == 0 {
					names = append(names, projectionName(n))
				}
				rowOut = append(rowOut, v)
			default:
				return nil, nil, dberrors.New(dberrors.KindUnsupported, "unsupported select expression %T", se)
			}
		}
		out = append(out, rowOut)
	}

	if len(rows) == 0 {
		names = probeProjectionNames(exprs)
	}
	return out, names, nil
}

func projectionName(n *ast.AliasedExpr) string {
	if n.Alias != "" {
		return n.Alias
	}
	if col, ok := n.Expr.(*ast.ColName); ok {
		return col.Name()
	}
	return exprText(n.Expr)
}

// probeProjectionNames derives output column names from the select list
// alone, so an empty result set still reports one column per explicit
// expression; a `*` or `t.*` item is reported as a single column named "*".
func probeProjectionNames(exprs []ast.SelectExpr) []string {
	var names []string
	for _, se := range exprs {
		switch n := se.(type) {
		case *ast.AliasedExpr:
			names = append(names, projectionName(n))
		case *ast.StarExpr:
			names = append(names, "*")
		}
	}
	return names
}

// exprText renders a best-effort textual form of expr for use as a
// fallback output column name when no alias or bare column name applies.
func exprText(expr ast.Expr) string {
	switch n := expr.(type) {
	case *ast.FuncExpr:
		return n.Name
	case *ast.Literal:
		return n.Value
	default:
		return "?column?"
	}
}

func hasAggregate(exprs []ast.SelectExpr) bool {
	for _, se := range exprs {
		ae, ok := se.(*ast.AliasedExpr)
		if !ok {
			continue
		}
		if containsAggregate(ae.Expr) {
			return true
		}
	}
	return false
}

func containsAggregate(expr ast.Expr) bool {
	switch n := expr.(type) {
	case *ast.FuncExpr:
		if n.Over != nil {
			return false
		}
		if isAggregateName(n.Name) {
			return true
		}
		for _, a := range n.Args {
			if containsAggregate(a) {
				return true
			}
		}
	case *ast.BinaryExpr:
		return containsAggregate(n.Left) || containsAggregate(n.Right)
	case *ast.ParenExpr:
		return containsAggregate(n.Expr)
	}
	return false
}

func isAggregateName(name string) bool {
	switch name {
	case "count", "sum", "avg", "min", "max", "COUNT", "SUM", "AVG", "MIN", "MAX":
		return true
	}
	return false
}

func distinctRows(rows [][]value.Value) [][]value.Value {
	seen := make(map[string]bool, len(rows))
	out := make([][]value.Value, 0, len(rows))
	for _, r := range rows {
		key := encodeRowKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func encodeRowKey(row []value.Value) string {
	var b []byte
	for _, v := range row {
		b = append(b, []byte(v.String())...)
		b = append(b, 0)
	}
	return string(b)
}

func applyLimit(rows [][]value.Value, limit *ast.Limit) [][]value.Value {
	if limit == nil {
		return rows
	}
	offset := 0
	if limit.Offset != nil {
		if lit, ok := limit.Offset.(*ast.Literal); ok {
			offset = atoiSafe(lit.Value)
		}
	}
	if offset > len(rows) {
		return nil
	}
	rows = rows[offset:]

	if limit.Count != nil {
		if lit, ok := limit.Count.(*ast.Literal); ok {
			n := atoiSafe(lit.Value)
			if n < len(rows) {
				rows = rows[:n]
			}
		}
	}
	return rows
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func (e *Executor) sortRows(resultRows [][]value.Value, colNames []string, sel *ast.SelectStmt) error {
	keys := orderKeysFor(sel.OrderBy, colNames)

	sort.SliceStable(resultRows, func(i, j int) bool {
		for _, k := range keys {
			if k.index < 0 {
				continue
			}
			a, b := resultRows[i][k.index], resultRows[j][k.index]
			less, distinguishing := compareForSort(a, b, k)
			if !distinguishing {
				continue
			}
			return less
		}
		return false
	})
	return nil
}

// orderKeysFor resolves sel.OrderBy's bare column references against
// colNames, shared by sortRows and applyDistinctOn.
func orderKeysFor(orderBy []*ast.OrderByExpr, colNames []string) []sortKey {
	keys := make([]sortKey, len(orderBy))
	for i, ob := range orderBy {
		idx := -1
		if col, ok := ob.Expr.(*ast.ColName); ok {
			for ci, name := range colNames {
				if value.Equal(value.Text(name), value.Text(col.Name())) {
					idx = ci
					break
				}
			}
		}
		keys[i] = sortKey{index: idx, desc: ob.Desc, nullsFirst: ob.NullsFirst}
	}
	return keys
}

// applyDistinctOn implements `DISTINCT ON (k1, k2) ... ORDER BY ...`
// (spec §4.4.8): sort by the query's ORDER BY (which the spec requires to
// begin with the DISTINCT ON keys), then keep the first row seen per
// DISTINCT ON key tuple. sourceRows must be 1:1 aligned with resultRows
// (true for the ungrouped projection path; GROUP BY + DISTINCT ON together
// is rejected as unsupported).
func (e *Executor) applyDistinctOn(resultRows [][]value.Value, sourceRows []*Row, colNames []string, sel *ast.SelectStmt, distinctOn []ast.Expr) ([][]value.Value, error) {
	if sel.OrderBy == nil {
		return nil, dberrors.New(dberrors.KindUnsupported, "DISTINCT ON requires ORDER BY")
	}
	if len(sourceRows) != len(resultRows) {
		return nil, dberrors.New(dberrors.KindUnsupported, "DISTINCT ON is not supported together with GROUP BY")
	}

	keys := make([]string, len(sourceRows))
	for i, r := range sourceRows {
		var b []byte
		for _, expr := range distinctOn {
			v, err := e.Eval(r, expr)
			if err != nil {
				return nil, err
			}
			b = append(b, []byte(v.String())...)
			b = append(b, 0)
		}
		keys[i] = string(b)
	}

	orderKeys := orderKeysFor(sel.OrderBy, colNames)
	idx := make([]int, len(resultRows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		for _, k := range orderKeys {
			if k.index < 0 {
				continue
			}
			less, distinguishing := compareForSort(resultRows[ia][k.index], resultRows[ib][k.index], k)
			if !distinguishing {
				continue
			}
			return less
		}
		return false
	})

	seen := make(map[string]bool, len(idx))
	out := make([][]value.Value, 0, len(idx))
	for _, i := range idx {
		if seen[keys[i]] {
			continue
		}
		seen[keys[i]] = true
		out = append(out, resultRows[i])
	}
	return out, nil
}

type sortKey struct {
	index      int
	desc       bool
	nullsFirst *bool
}

// compareForSort orders a, b per key, with NULLs last for ASC and first
// for DESC by default (spec §4.4.9, matching PostgreSQL), unless NULLS
// FIRST/LAST was explicit.
func compareForSort(a, b value.Value, k sortKey) (less bool, distinguishing bool) {
	nullsFirst := k.desc // default: ASC -> nulls last, DESC -> nulls first
	if k.nullsFirst != nil {
		nullsFirst = *k.nullsFirst
	}

	if a.IsNull() && b.IsNull() {
		return false, false
	}
	if a.IsNull() {
		return nullsFirst, true
	}
	if b.IsNull() {
		return !nullsFirst, true
	}

	c, ok := value.Compare(a, b)
	if !ok || c == 0 {
		return false, c != 0
	}
	if k.desc {
		return c > 0, true
	}
	return c < 0, true
}
