package engine

import (
	"github.com/freeeve/machparse/ast"
	"github.com/freeeve/machparse/token"

	"github.com/yamlbase/yamlbase/internal/catalog"
	"github.com/yamlbase/yamlbase/internal/storage"
	"github.com/yamlbase/yamlbase/internal/value"
)

// tryIndexScan inspects where for a top-level (AND-joined) conjunct of the
// form `<col> = <literal>` naming tbl's primary key or a UNIQUE column,
// and if found, probes the corresponding storage index instead of walking
// every row of tbl (spec §4.1, §4.4.3: "a lookup by a primary-key
// equality predicate in WHERE must use the index"). found is false when no
// such conjunct exists, in which case the caller must fall back to a full
// scan; the caller still re-applies the full WHERE clause over whatever
// rows this returns, which drops a probed row that the rest of the
// predicate rejects. A key absent from the index yields an empty row set,
// with no fallback scan.
func (e *Executor) tryIndexScan(tbl *catalog.Table, alias string, where ast.Expr) (rows []*Row, found bool) {
	if where == nil {
		return nil, false
	}
	for _, conj := range splitAnd(where) {
		col, lit, ok := equalityOn(conj, alias)
		if !ok {
			continue
		}
		ci, ok := tbl.ColumnIndex(col)
		if !ok {
			continue
		}

		if pk := tbl.PrimaryKeyColumns(); len(pk) == 1 && pk[0] == ci {
			idx := e.storage.PrimaryKeyIndex(tbl)
			return probeToRows(tbl, alias, idx, lit), true
		}
		if tbl.Columns[ci].Unique {
			idx := e.storage.UniqueIndex(tbl, ci)
			return probeToRows(tbl, alias, idx, lit), true
		}
	}
	return nil, false
}

func probeToRows(tbl *catalog.Table, alias string, idx map[string]int, key value.Value) []*Row {
	pos, ok := idx[storage.EncodeProbeKey(key)]
	if !ok {
		return []*Row{}
	}
	return []*Row{newTableRow(tbl, catalog.Fold(alias), tbl.Rows[pos])}
}

// splitAnd flattens a chain of AND-joined conjuncts, so an equality probe
// can find its conjunct regardless of what else is ANDed alongside it.
func splitAnd(expr ast.Expr) []ast.Expr {
	b, ok := expr.(*ast.BinaryExpr)
	if !ok || b.Op != token.AND {
		return []ast.Expr{expr}
	}
	return append(splitAnd(b.Left), splitAnd(b.Right)...)
}

// equalityOn reports whether conj is `<col> = <literal>` or
// `<literal> = <col>`, where col is unqualified or qualified with alias.
func equalityOn(conj ast.Expr, alias string) (col string, lit value.Value, ok bool) {
	b, isBin := conj.(*ast.BinaryExpr)
	if !isBin || b.Op != token.EQ {
		return "", value.Value{}, false
	}
	if name, l, matched := splitColLiteral(b.Left, b.Right, alias); matched {
		v, err := evalLiteral(l)
		return name, v, err == nil
	}
	if name, l, matched := splitColLiteral(b.Right, b.Left, alias); matched {
		v, err := evalLiteral(l)
		return name, v, err == nil
	}
	return "", value.Value{}, false
}

func splitColLiteral(a, b ast.Expr, alias string) (col string, lit *ast.Literal, ok bool) {
	cn, isCol := a.(*ast.ColName)
	if !isCol {
		return "", nil, false
	}
	if cn.Table() != "" && catalog.Fold(cn.Table()) != catalog.Fold(alias) {
		return "", nil, false
	}
	l, isLit := b.(*ast.Literal)
	if !isLit || l.Type == ast.LiteralNull {
		return "", nil, false
	}
	return cn.Name(), l, true
}

// joinIndexTarget reports whether on is a single equality between a
// column of rightAlias's table and some other expression, where that
// column is rt's primary key or a UNIQUE column — the shape evalJoin
// needs to drive the join from an index probe instead of a nested-loop
// scan (spec §4.4.4: "primary-key equality in the ON clause MUST attempt
// index probing" / "trigger an index-driven row enumeration at the FROM
// stage instead of a scan"). This check is purely structural (no row
// data), so it is made once per join, not once per row.
func joinIndexTarget(rt *catalog.Table, rightAlias string, on ast.Expr) (colIndex int, otherSide ast.Expr, usePK bool, ok bool) {
	b, isBin := on.(*ast.BinaryExpr)
	if !isBin || b.Op != token.EQ {
		return 0, nil, false, false
	}
	rightCol, other, matched := splitColRef(b.Left, b.Right, rightAlias)
	if !matched {
		rightCol, other, matched = splitColRef(b.Right, b.Left, rightAlias)
	}
	if !matched {
		return 0, nil, false, false
	}
	ci, ok := rt.ColumnIndex(rightCol)
	if !ok {
		return 0, nil, false, false
	}
	if pk := rt.PrimaryKeyColumns(); len(pk) == 1 && pk[0] == ci {
		return ci, other, true, true
	}
	if rt.Columns[ci].Unique {
		return ci, other, false, true
	}
	return 0, nil, false, false
}

// splitColRef reports whether a is a ColName qualified with rightAlias,
// returning its column name and b as the (left-hand) expression it must
// equal.
func splitColRef(a, b ast.Expr, rightAlias string) (col string, other ast.Expr, ok bool) {
	cn, isCol := a.(*ast.ColName)
	if !isCol {
		return "", nil, false
	}
	if cn.Table() == "" || catalog.Fold(cn.Table()) != catalog.Fold(rightAlias) {
		return "", nil, false
	}
	return cn.Name(), b, true
}

// indexJoin drives j over left using the index identified by
// joinIndexTarget: each left row's join key is evaluated once and probed
// directly against the primary-key or unique index of rt, instead of
// scanning every row of rt. Any remaining ON conjuncts are re-checked via
// joinConditionHolds, so a structurally-matched but otherwise-incomplete
// ON clause still produces correct results.
func (e *Executor) indexJoin(j *ast.JoinExpr, left []*Row, rt *catalog.Table, alias string, ci int, otherSide ast.Expr, usePK bool) ([]*Row, error) {
	var idx map[string]int
	if usePK {
		idx = e.storage.PrimaryKeyIndex(rt)
	} else {
		idx = e.storage.UniqueIndex(rt, ci)
	}
	foldedAlias := catalog.Fold(alias)

	var out []*Row
	for _, l := range left {
		if err := e.deadline.checkEvery(); err != nil {
			return nil, err
		}
		v, err := e.Eval(l, otherSide)
		if err != nil {
			return nil, err
		}
		matched := false
		if !v.IsNull() {
			if pos, found := idx[storage.EncodeProbeKey(v)]; found {
				r := newTableRow(rt, foldedAlias, rt.Rows[pos])
				combined := l.extend(r)
				ok, cerr := e.joinConditionHolds(j, l, r, combined)
				if cerr != nil {
					return nil, cerr
				}
				if ok {
					matched = true
					out = append(out, combined)
				}
			}
		}
		if !matched && j.Type == ast.JoinLeft {
			out = append(out, l.extend(nullRowForTable(rt, foldedAlias)))
		}
	}
	return out, nil
}

// nullRowForTable builds a row of NULLs shaped like tbl's columns, used to
// pad an unmatched left row in an index-driven LEFT JOIN.
func nullRowForTable(tbl *catalog.Table, alias string) *Row {
	r := newRow(len(tbl.Columns))
	for _, col := range tbl.Columns {
		r.append(alias, catalog.Fold(col.Name), col.Name, value.Null())
	}
	return r
}
