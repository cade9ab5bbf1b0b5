package engine

import (
	"github.com/freeeve/machparse/ast"

	"github.com/yamlbase/yamlbase/internal/catalog"
	"github.com/yamlbase/yamlbase/internal/value"
)

// binding is one (source alias, column) slot in a row context, assembled
// anew for each row being filtered or projected (spec §3, "Row context").
type binding struct {
	alias        string // folded source alias/table name
	name         string // folded column name
	declaredName string // as declared, for result-set output
	value        value.Value
}

// source describes one FROM item's shape, used for `*` and `t.*` expansion
// and to validate qualified references.
type source struct {
	alias   string // folded
	columns []string // declared column names, in order
}

// Row is the evaluator-local binding for a single row flowing through the
// executor pipeline.
type Row struct {
	bindings []binding
	windows  map[*ast.FuncExpr]value.Value
}

func newRow(cap int) *Row {
	return &Row{bindings: make([]binding, 0, cap)}
}

func (r *Row) append(alias, name, declared string, v value.Value) {
	r.bindings = append(r.bindings, binding{alias: alias, name: name, declaredName: declared, value: v})
}

func (r *Row) extend(other *Row) *Row {
	merged := newRow(len(r.bindings) + len(other.bindings))
	merged.bindings = append(merged.bindings, r.bindings...)
	merged.bindings = append(merged.bindings, other.bindings...)
	return merged
}

// Get resolves a (possibly empty) qualifier and column name against the
// row's bindings. An empty qualifier matches the first binding with that
// column name, scanning in FROM-declaration order.
func (r *Row) Get(qualifier, name string) (value.Value, bool) {
	qualifier, name = catalog.Fold(qualifier), catalog.Fold(name)
	for _, b := range r.bindings {
		if b.name != name {
			continue
		}
		if qualifier == "" || b.alias == qualifier {
			return b.value, true
		}
	}
	return value.Value{}, false
}

// sourceFor returns the bindings belonging to alias (folded), for `t.*`
// expansion; an empty alias returns every binding.
func (r *Row) sourceFor(alias string) []binding {
	if alias == "" {
		return r.bindings
	}
	var out []binding
	for _, b := range r.bindings {
		if b.alias == alias {
			out = append(out, b)
		}
	}
	return out
}

// setWindow records fe's value for this row, computed once by applyWindows
// before projection evaluates the select list.
func (r *Row) setWindow(fe *ast.FuncExpr, v value.Value) {
	if r.windows == nil {
		r.windows = make(map[*ast.FuncExpr]value.Value, 1)
	}
	r.windows[fe] = v
}

func (r *Row) getWindow(fe *ast.FuncExpr) (value.Value, bool) {
	v, ok := r.windows[fe]
	return v, ok
}

func newTableRow(tbl *catalog.Table, alias string, row []value.Value) *Row {
	r := newRow(len(tbl.Columns))
	for i, col := range tbl.Columns {
		r.append(alias, catalog.Fold(col.Name), col.Name, row[i])
	}
	return r
}
