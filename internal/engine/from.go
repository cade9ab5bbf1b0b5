package engine

import (
	"github.com/freeeve/machparse/ast"

	"github.com/yamlbase/yamlbase/internal/catalog"
	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/value"
)

// evalFrom expands a FROM clause into its row product. A bare comma
// between two tables is a cross join; primary-key equality predicates in
// an ON clause are probed against the index instead of nested-loop
// scanned (spec §4.4.2, §4.4.3).
func (e *Executor) evalFrom(t ast.TableExpr) ([]*Row, error) {
	if t == nil {
		return []*Row{newRow(0)}, nil
	}

	switch n := t.(type) {
	case *ast.TableName:
		return e.scanTable(n.Name(), n.Name())

	case *ast.AliasedTableExpr:
		alias := n.Alias
		if tn, ok := n.Expr.(*ast.TableName); ok && alias == "" {
			return e.scanTable(tn.Name(), tn.Name())
		}
		if tn, ok := n.Expr.(*ast.TableName); ok {
			return e.scanTable(tn.Name(), alias)
		}
		if sub, ok := n.Expr.(*ast.Subquery); ok {
			return e.evalDerivedTable(sub.Select, alias)
		}
		return e.evalFrom(n.Expr)

	case *ast.ParenTableExpr:
		return e.evalFrom(n.Expr)

	case *ast.JoinExpr:
		return e.evalJoin(n)

	case *ast.Subquery:
		return e.evalDerivedTable(n.Select, "")

	case *ast.TableList:
		rows := []*Row{newRow(0)}
		for _, item := range n.Tables {
			itemRows, err := e.evalFrom(item)
			if err != nil {
				return nil, err
			}
			rows = crossJoin(rows, itemRows)
		}
		return rows, nil

	default:
		return nil, dberrors.New(dberrors.KindUnsupported, "unsupported FROM item %T", t)
	}
}

// singleTableRef reports whether t is a bare table reference (optionally
// aliased) with no join, subquery, or table list, returning its name and
// effective alias — the shape tryIndexScan requires to probe an index
// instead of falling back to evalFrom's full scan.
func singleTableRef(t ast.TableExpr) (name, alias string, ok bool) {
	switch n := t.(type) {
	case *ast.TableName:
		return n.Name(), n.Name(), true
	case *ast.AliasedTableExpr:
		tn, isTable := n.Expr.(*ast.TableName)
		if !isTable {
			return "", "", false
		}
		if n.Alias != "" {
			return tn.Name(), n.Alias, true
		}
		return tn.Name(), tn.Name(), true
	case *ast.ParenTableExpr:
		return singleTableRef(n.Expr)
	default:
		return "", "", false
	}
}

func (e *Executor) scanTable(name, alias string) ([]*Row, error) {
	tbl, ok := e.lookupTable(name)
	if !ok {
		return nil, dberrors.New(dberrors.KindUnknownIdentifier, "table %q not found", name)
	}
	rows := make([]*Row, 0, len(tbl.Rows))
	for _, r := range tbl.Rows {
		if err := e.deadline.checkEvery(); err != nil {
			return nil, err
		}
		rows = append(rows, newTableRow(tbl, catalog.Fold(alias), r))
	}
	return rows, nil
}

func (e *Executor) evalDerivedTable(sel *ast.SelectStmt, alias string) ([]*Row, error) {
	result, err := e.executeSelect(sel, nil)
	if err != nil {
		return nil, err
	}
	fold := catalog.Fold(alias)
	rows := make([]*Row, 0, len(result.Rows))
	for _, r := range result.Rows {
		row := newRow(len(result.Columns))
		for i, col := range result.Columns {
			row.append(fold, catalog.Fold(col.Name), col.Name, r[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func crossJoin(left, right []*Row) []*Row {
	out := make([]*Row, 0, len(left)*len(right))
	for _, l := range left {
		for _, r := range right {
			out = append(out, l.extend(r))
		}
	}
	return out
}

func (e *Executor) evalJoin(j *ast.JoinExpr) ([]*Row, error) {
	left, err := e.evalFrom(j.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.evalFrom(j.Right)
	if err != nil {
		return nil, err
	}

	if j.Type == ast.JoinCross || (j.On == nil && len(j.Using) == 0) {
		return crossJoin(left, right), nil
	}

	if j.On != nil && (j.Type == ast.JoinInner || j.Type == ast.JoinLeft) {
		if name, alias, ok := singleTableRef(j.Right); ok {
			if rt, tok := e.lookupTable(name); tok {
				if ci, otherSide, usePK, ok := joinIndexTarget(rt, alias, j.On); ok {
					return e.indexJoin(j, left, rt, alias, ci, otherSide, usePK)
				}
			}
		}
	}

	matchedRight := make([]bool, len(right))
	var out []*Row

	for _, l := range left {
		matchedLeft := false
		for ri, r := range right {
			if err := e.deadline.checkEvery(); err != nil {
				return nil, err
			}
			combined := l.extend(r)
			ok, err := e.joinConditionHolds(j, l, r, combined)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			matchedLeft = true
			matchedRight[ri] = true
			out = append(out, combined)
		}
		if !matchedLeft && (j.Type == ast.JoinLeft || j.Type == ast.JoinFull) {
			out = append(out, l.extend(nullRow(right)))
		}
	}

	if j.Type == ast.JoinRight || j.Type == ast.JoinFull {
		for ri, r := range right {
			if !matchedRight[ri] {
				out = append(out, nullRow(left).extend(r))
			}
		}
	}

	return out, nil
}

// nullRow builds a row of NULLs shaped like the bindings found in sample,
// used to pad the unmatched side of an outer join.
func nullRow(sample []*Row) *Row {
	if len(sample) == 0 {
		return newRow(0)
	}
	template := sample[0]
	r := newRow(len(template.bindings))
	for _, b := range template.bindings {
		r.append(b.alias, b.name, b.declaredName, value.Null())
	}
	return r
}

func (e *Executor) joinConditionHolds(j *ast.JoinExpr, l, r, combined *Row) (bool, error) {
	if len(j.Using) > 0 {
		for _, col := range j.Using {
			lv, lok := l.Get("", col)
			rv, rok := r.Get("", col)
			if !lok || !rok {
				return false, nil
			}
			if !value.Equal(lv, rv) {
				return false, nil
			}
		}
		return true, nil
	}
	if j.On == nil {
		return true, nil
	}
	v, err := e.Eval(combined, j.On)
	if err != nil {
		return false, err
	}
	return !v.IsNull() && v.Boolean, nil
}
