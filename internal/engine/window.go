package engine

import (
	"sort"

	"github.com/freeeve/machparse/ast"

	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/value"
)

// applyWindows computes ROW_NUMBER/RANK/DENSE_RANK for every window-function
// call in the select list and records each row's result so project() can
// read it back out (spec §4.4.7). Rows outside any PARTITION BY form a
// single partition that preserves the FROM/WHERE order.
func (e *Executor) applyWindows(rows []*Row, cols []ast.SelectExpr) ([]*Row, error) {
	var windowFuncs []*ast.FuncExpr
	for _, se := range cols {
		ae, ok := se.(*ast.AliasedExpr)
		if !ok {
			continue
		}
		collectWindowFuncs(ae.Expr, &windowFuncs)
	}
	if len(windowFuncs) == 0 {
		return rows, nil
	}
	for _, fe := range windowFuncs {
		if err := e.computeWindow(rows, fe); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func collectWindowFuncs(expr ast.Expr, out *[]*ast.FuncExpr) {
	switch n := expr.(type) {
	case *ast.FuncExpr:
		if n.Over != nil {
			*out = append(*out, n)
		}
		for _, a := range n.Args {
			collectWindowFuncs(a, out)
		}
	case *ast.BinaryExpr:
		collectWindowFuncs(n.Left, out)
		collectWindowFuncs(n.Right, out)
	case *ast.ParenExpr:
		collectWindowFuncs(n.Expr, out)
	case *ast.CaseExpr:
		for _, w := range n.Whens {
			collectWindowFuncs(w.Result, out)
		}
		if n.Else != nil {
			collectWindowFuncs(n.Else, out)
		}
	}
}

// computeWindow partitions rows by fe.Over.PartitionBy, orders each
// partition by fe.Over.OrderBy (or leaves it in input order if absent), and
// assigns the requested ranking function's value to every row.
func (e *Executor) computeWindow(rows []*Row, fe *ast.FuncExpr) error {
	spec := fe.Over

	partitions := make(map[string][]int)
	var order []string
	for i, r := range rows {
		key, err := e.partitionKey(r, spec.PartitionBy)
		if err != nil {
			return err
		}
		if _, ok := partitions[key]; !ok {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], i)
	}

	for _, key := range order {
		idx := partitions[key]
		if len(spec.OrderBy) > 0 {
			sort.SliceStable(idx, func(a, b int) bool {
				less, _ := e.lessByOrderBy(rows[idx[a]], rows[idx[b]], spec.OrderBy)
				return less
			})
		}
		if err := e.assignRanks(rows, idx, spec.OrderBy, fe); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) partitionKey(r *Row, exprs []ast.Expr) (string, error) {
	var b []byte
	for _, expr := range exprs {
		v, err := e.Eval(r, expr)
		if err != nil {
			return "", err
		}
		b = append(b, []byte(v.String())...)
		b = append(b, 0)
	}
	return string(b), nil
}

// lessByOrderBy compares two rows by a partition's ORDER BY list, NULLs
// last for ASC / first for DESC by default, matching the top-level sort.
func (e *Executor) lessByOrderBy(a, b *Row, orderBy []*ast.OrderByExpr) (bool, error) {
	for _, ob := range orderBy {
		av, err := e.Eval(a, ob.Expr)
		if err != nil {
			return false, err
		}
		bv, err := e.Eval(b, ob.Expr)
		if err != nil {
			return false, err
		}
		k := sortKey{desc: ob.Desc, nullsFirst: ob.NullsFirst}
		less, distinguishing := compareForSort(av, bv, k)
		if distinguishing {
			return less, nil
		}
	}
	return false, nil
}

// tiedByOrderBy reports whether rows at idx[i] and idx[i-1] are peers under
// the partition's ORDER BY (needed so RANK/DENSE_RANK treat ties correctly).
func (e *Executor) tiedByOrderBy(a, b *Row, orderBy []*ast.OrderByExpr) (bool, error) {
	for _, ob := range orderBy {
		av, err := e.Eval(a, ob.Expr)
		if err != nil {
			return false, err
		}
		bv, err := e.Eval(b, ob.Expr)
		if err != nil {
			return false, err
		}
		k := sortKey{desc: ob.Desc, nullsFirst: ob.NullsFirst}
		_, distinguishing := compareForSort(av, bv, k)
		if distinguishing {
			return false, nil
		}
	}
	return true, nil
}

// assignRanks walks one partition in its sorted order, setting fe's value
// on every row per spec §4.4.7: ROW_NUMBER is a dense 1-based ordinal,
// RANK leaves gaps after ties (it jumps to the 1-based position), DENSE_RANK
// does not.
func (e *Executor) assignRanks(rows []*Row, idx []int, orderBy []*ast.OrderByExpr, fe *ast.FuncExpr) error {
	rank, denseRank := 0, 0
	for pos, i := range idx {
		tied := false
		if pos > 0 {
			var err error
			tied, err = e.tiedByOrderBy(rows[idx[pos-1]], rows[i], orderBy)
			if err != nil {
				return err
			}
		}
		switch {
		case pos == 0:
			rank, denseRank = 1, 1
		case tied:
			// rank and denseRank both stay at the previous row's values.
		default:
			rank, denseRank = pos+1, denseRank+1
		}

		var v value.Value
		switch fe.Name {
		case "row_number", "ROW_NUMBER":
			v = value.Integer(int64(pos + 1))
		case "rank", "RANK":
			v = value.Integer(int64(rank))
		case "dense_rank", "DENSE_RANK":
			v = value.Integer(int64(denseRank))
		default:
			return dberrors.New(dberrors.KindUnsupported, "unsupported window function %q", fe.Name)
		}
		rows[i].setWindow(fe, v)
	}
	return nil
}
