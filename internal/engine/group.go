package engine

import (
	"github.com/freeeve/machparse/ast"

	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/value"
)

// group is one GROUP BY bucket: its key tuple and the member rows, kept in
// first-seen order so COUNT(*) etc. see a stable iteration order.
type group struct {
	key  []value.Value
	rows []*Row
}

// executeGrouped implements GROUP BY / aggregation followed by HAVING
// (spec §4.4.5-6). Rows lacking a GROUP BY clause form a single implicit
// group so bare aggregates over the whole result set work the same way.
func (e *Executor) executeGrouped(sel *ast.SelectStmt, rows []*Row) ([][]value.Value, []string, error) {
	var groups []*group
	index := make(map[string]int)

	if len(sel.GroupBy) == 0 {
		groups = []*group{{rows: rows}}
	} else {
		for _, r := range rows {
			if err := e.deadline.checkEvery(); err != nil {
				return nil, nil, err
			}
			key := make([]value.Value, len(sel.GroupBy))
			for i, ge := range sel.GroupBy {
				v, err := e.Eval(r, ge)
				if err != nil {
					return nil, nil, err
				}
				key[i] = v
			}
			k := encodeRowKey(key)
			if gi, ok := index[k]; ok {
				groups[gi].rows = append(groups[gi].rows, r)
			} else {
				index[k] = len(groups)
				groups = append(groups, &group{key: key, rows: []*Row{r}})
			}
		}
	}

	if sel.Having != nil {
		var kept []*group
		for _, g := range groups {
			v, err := e.evalHaving(g, sel)
			if err != nil {
				return nil, nil, err
			}
			if !v.IsNull() && v.Boolean {
				kept = append(kept, g)
			}
		}
		groups = kept
	}

	var names []string
	out := make([][]value.Value, 0, len(groups))
	for gi, g := range groups {
		rowOut := make([]value.Value, 0, len(sel.Columns))
		for _, se := range sel.Columns {
			ae, ok := se.(*ast.AliasedExpr)
			if !ok {
				return nil, nil, dberrors.New(dberrors.KindUnsupported, "GROUP BY queries must project explicit expressions")
			}
			v, err := e.evalGroupExpr(g, sel.GroupBy, ae.Expr)
			if err != nil {
				return nil, nil, err
			}
			if gi == 0 {
				names = append(names, projectionName(ae))
			}
			rowOut = append(rowOut, v)
		}
		out = append(out, rowOut)
	}
	if len(groups) == 0 {
		for _, se := range sel.Columns {
			if ae, ok := se.(*ast.AliasedExpr); ok {
				names = append(names, projectionName(ae))
			}
		}
	}
	return out, names, nil
}

func (e *Executor) evalHaving(g *group, sel *ast.SelectStmt) (value.Value, error) {
	return e.evalGroupExpr(g, sel.GroupBy, sel.Having)
}

// evalGroupExpr evaluates expr against group g: aggregate calls reduce over
// g.rows; anything else (a grouping key or an expression built from one)
// is deterministic across the group's rows by construction, so it is
// evaluated against an arbitrary member row (spec §4.4.5: "projected
// expressions may reference only grouping keys or aggregates").
func (e *Executor) evalGroupExpr(g *group, groupBy []ast.Expr, expr ast.Expr) (value.Value, error) {
	if containsAggregate(expr) {
		if fe, ok := expr.(*ast.FuncExpr); ok {
			return e.evalAggregate(g, fe)
		}
		return value.Value{}, dberrors.New(dberrors.KindUnsupported, "aggregate must be a bare function call")
	}
	if len(g.rows) == 0 {
		return value.Null(), nil
	}
	return e.Eval(g.rows[0], expr)
}

func (e *Executor) evalAggregate(g *group, fe *ast.FuncExpr) (value.Value, error) {
	switch fe.Name {
	case "count", "COUNT":
		if _, isStar := soleStarArg(fe); isStar {
			return value.Integer(int64(len(g.rows))), nil
		}
		count := int64(0)
		for _, r := range g.rows {
			v, err := e.Eval(r, fe.Args[0])
			if err != nil {
				return value.Value{}, err
			}
			if !v.IsNull() {
				count++
			}
		}
		return value.Integer(count), nil

	case "sum", "SUM", "avg", "AVG":
		var acc value.Value
		count := int64(0)
		for _, r := range g.rows {
			v, err := e.Eval(r, fe.Args[0])
			if err != nil {
				return value.Value{}, err
			}
			if v.IsNull() {
				continue
			}
			count++
			if acc.IsNull() && count == 1 {
				acc = v
			} else {
				acc, err = arith(acc, v, '+')
				if err != nil {
					return value.Value{}, err
				}
			}
		}
		if count == 0 {
			return value.Null(), nil
		}
		if fe.Name == "sum" || fe.Name == "SUM" {
			return acc, nil
		}
		return arith(acc, value.Integer(count), '/')

	case "min", "MIN", "max", "MAX":
		var best value.Value
		want := 1
		if fe.Name == "min" || fe.Name == "MIN" {
			want = -1
		}
		for _, r := range g.rows {
			v, err := e.Eval(r, fe.Args[0])
			if err != nil {
				return value.Value{}, err
			}
			if v.IsNull() {
				continue
			}
			if best.IsNull() {
				best = v
				continue
			}
			if c, ok := value.Compare(v, best); ok && c == want {
				best = v
			}
		}
		return best, nil

	default:
		return value.Value{}, dberrors.New(dberrors.KindUnknownFunction, "unknown aggregate %q", fe.Name)
	}
}

func soleStarArg(fe *ast.FuncExpr) (ast.Expr, bool) {
	if len(fe.Args) != 1 {
		return nil, false
	}
	_, ok := fe.Args[0].(*ast.StarExpr)
	return fe.Args[0], ok
}
