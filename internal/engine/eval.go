package engine

import (
	"strings"
	"time"

	"github.com/freeeve/machparse/ast"
	"github.com/freeeve/machparse/token"

	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/functions"
	"github.com/yamlbase/yamlbase/internal/value"
)

// evalCtx carries everything expression evaluation needs beyond the
// current row: scalar-subquery execution and a deadline check, so nested
// SELECTs reuse the same executor.
type evalCtx struct {
	exec     *Executor
	row      *Row
	deadline *deadline
}

// Eval evaluates expr against row, purely functionally (spec §4.3).
func (e *Executor) Eval(row *Row, expr ast.Expr) (value.Value, error) {
	return (&evalCtx{exec: e, row: row}).eval(expr)
}

func (c *evalCtx) eval(expr ast.Expr) (value.Value, error) {
	switch n := expr.(type) {
	case *ast.Literal:
		return evalLiteral(n)
	case *ast.ColName:
		qualifier := n.Table()
		v, ok := c.row.Get(qualifier, n.Name())
		if !ok {
			for i := len(c.exec.outerRows) - 1; i >= 0; i-- {
				if v, ok = c.exec.outerRows[i].Get(qualifier, n.Name()); ok {
					break
				}
			}
		}
		if !ok {
			return value.Value{}, dberrors.New(dberrors.KindUnknownIdentifier, "column %q not found", n.Name())
		}
		return v, nil
	case *ast.ParenExpr:
		return c.eval(n.Expr)
	case *ast.BinaryExpr:
		return c.evalBinary(n)
	case *ast.UnaryExpr:
		return c.evalUnary(n)
	case *ast.FuncExpr:
		return c.evalFunc(n)
	case *ast.CaseExpr:
		return c.evalCase(n)
	case *ast.InExpr:
		return c.evalIn(n)
	case *ast.BetweenExpr:
		return c.evalBetween(n)
	case *ast.LikeExpr:
		return c.evalLike(n)
	case *ast.IsExpr:
		return c.evalIs(n)
	case *ast.ExistsExpr:
		return c.evalExists(n)
	case *ast.Subquery:
		return c.evalScalarSubquery(n.Select)
	case *ast.CastExpr:
		return c.evalCast(n)
	case *ast.ExtractExpr:
		src, err := c.eval(n.Source)
		if err != nil {
			return value.Value{}, err
		}
		fn, _ := functions.Lookup("extract")
		return fn([]value.Value{value.Text(n.Field), src})
	case *ast.SubstringExpr:
		return c.evalSubstring(n)
	case *ast.TrimExpr:
		src, err := c.eval(n.Expr)
		if err != nil {
			return value.Value{}, err
		}
		if src.IsNull() {
			return value.Null(), nil
		}
		switch n.TrimType {
		case ast.TrimLeading:
			return value.Text(strings.TrimLeft(src.Text, " ")), nil
		case ast.TrimTrailing:
			return value.Text(strings.TrimRight(src.Text, " ")), nil
		default:
			return value.Text(strings.TrimSpace(src.Text)), nil
		}
	case *ast.PositionExpr:
		needle, err := c.eval(n.Needle)
		if err != nil {
			return value.Value{}, err
		}
		haystack, err := c.eval(n.Haystack)
		if err != nil {
			return value.Value{}, err
		}
		fn, _ := functions.Lookup("position")
		return fn([]value.Value{needle, haystack})
	case *ast.StarExpr:
		return value.Value{}, dberrors.New(dberrors.KindUnsupported, "* is not a scalar expression")
	default:
		return value.Value{}, dberrors.New(dberrors.KindUnsupported, "unsupported expression %T", expr)
	}
}

func evalLiteral(l *ast.Literal) (value.Value, error) {
	switch l.Type {
	case ast.LiteralNull:
		return value.Null(), nil
	case ast.LiteralInt:
		return parseIntLiteral(l.Value)
	case ast.LiteralFloat:
		return parseFloatLiteral(l.Value)
	case ast.LiteralString:
		return value.Text(l.Value), nil
	case ast.LiteralBool:
		return value.Boolean(strings.EqualFold(l.Value, "true")), nil
	case ast.LiteralBlob:
		return value.Bytes([]byte(l.Value)), nil
	default:
		return value.Value{}, dberrors.New(dberrors.KindUnsupported, "unsupported literal type")
	}
}

func (c *evalCtx) evalBinary(b *ast.BinaryExpr) (value.Value, error) {
	switch b.Op {
	case token.AND:
		return c.evalAnd(b)
	case token.OR:
		return c.evalOr(b)
	}

	left, err := c.eval(b.Left)
	if err != nil {
		return value.Value{}, err
	}
	right, err := c.eval(b.Right)
	if err != nil {
		return value.Value{}, err
	}

	switch b.Op {
	case token.PLUS:
		return arith(left, right, '+')
	case token.MINUS:
		return arith(left, right, '-')
	case token.ASTERISK:
		return arith(left, right, '*')
	case token.SLASH:
		return arith(left, right, '/')
	case token.PERCENT:
		return arith(left, right, '%')
	case token.CONCAT:
		if left.IsNull() || right.IsNull() {
			return value.Null(), nil
		}
		return value.Text(left.String() + right.String()), nil
	case token.EQ:
		return compareBool(left, right, func(c int) bool { return c == 0 })
	case token.NEQ:
		return compareBool(left, right, func(c int) bool { return c != 0 })
	case token.LT:
		return compareBool(left, right, func(c int) bool { return c < 0 })
	case token.GT:
		return compareBool(left, right, func(c int) bool { return c > 0 })
	case token.LTE:
		return compareBool(left, right, func(c int) bool { return c <= 0 })
	case token.GTE:
		return compareBool(left, right, func(c int) bool { return c >= 0 })
	default:
		return value.Value{}, dberrors.New(dberrors.KindUnsupported, "unsupported operator %v", b.Op)
	}
}

// evalAnd implements three-valued AND: NULL·true=NULL, NULL·false=false
// (spec §4.3).
func (c *evalCtx) evalAnd(b *ast.BinaryExpr) (value.Value, error) {
	left, err := c.eval(b.Left)
	if err != nil {
		return value.Value{}, err
	}
	if !left.IsNull() && !left.Boolean {
		return value.Boolean(false), nil
	}
	right, err := c.eval(b.Right)
	if err != nil {
		return value.Value{}, err
	}
	if !right.IsNull() && !right.Boolean {
		return value.Boolean(false), nil
	}
	if left.IsNull() || right.IsNull() {
		return value.Null(), nil
	}
	return value.Boolean(true), nil
}

// evalOr implements three-valued OR, mirroring evalAnd.
func (c *evalCtx) evalOr(b *ast.BinaryExpr) (value.Value, error) {
	left, err := c.eval(b.Left)
	if err != nil {
		return value.Value{}, err
	}
	if !left.IsNull() && left.Boolean {
		return value.Boolean(true), nil
	}
	right, err := c.eval(b.Right)
	if err != nil {
		return value.Value{}, err
	}
	if !right.IsNull() && right.Boolean {
		return value.Boolean(true), nil
	}
	if left.IsNull() || right.IsNull() {
		return value.Null(), nil
	}
	return value.Boolean(false), nil
}

func (c *evalCtx) evalUnary(u *ast.UnaryExpr) (value.Value, error) {
	operand, err := c.eval(u.Operand)
	if err != nil {
		return value.Value{}, err
	}
	switch u.Op {
	case token.NOT:
		if operand.IsNull() {
			return value.Null(), nil
		}
		return value.Boolean(!operand.Boolean), nil
	case token.MINUS:
		if operand.IsNull() {
			return value.Null(), nil
		}
		return arith(value.Integer(0), operand, '-')
	default:
		return value.Value{}, dberrors.New(dberrors.KindUnsupported, "unsupported unary operator %v", u.Op)
	}
}

func (c *evalCtx) evalFunc(f *ast.FuncExpr) (value.Value, error) {
	if f.Over != nil {
		v, ok := c.row.getWindow(f)
		if !ok {
			return value.Value{}, dberrors.New(dberrors.KindUnsupported, "window function not computed for this row")
		}
		return v, nil
	}
	fn, ok := functions.Lookup(f.Name)
	if !ok {
		return value.Value{}, dberrors.New(dberrors.KindUnknownFunction, "unknown function %q", f.Name)
	}
	args := make([]value.Value, 0, len(f.Args))
	for _, a := range f.Args {
		if _, isStar := a.(*ast.StarExpr); isStar {
			continue
		}
		v, err := c.eval(a)
		if err != nil {
			return value.Value{}, err
		}
		args = append(args, v)
	}
	return fn(args)
}

func (c *evalCtx) evalCase(n *ast.CaseExpr) (value.Value, error) {
	var operand *value.Value
	if n.Operand != nil {
		v, err := c.eval(n.Operand)
		if err != nil {
			return value.Value{}, err
		}
		operand = &v
	}
	for _, w := range n.Whens {
		if operand != nil {
			cv, err := c.eval(w.Cond)
			if err != nil {
				return value.Value{}, err
			}
			if !value.Equal(*operand, cv) {
				continue
			}
		} else {
			cv, err := c.eval(w.Cond)
			if err != nil {
				return value.Value{}, err
			}
			if cv.IsNull() || !cv.Boolean {
				continue
			}
		}
		return c.eval(w.Result)
	}
	if n.Else != nil {
		return c.eval(n.Else)
	}
	return value.Null(), nil
}

// evalIn implements IN/NOT IN with NULL-in-list propagating NULL on no
// exact match (spec §4.3).
func (c *evalCtx) evalIn(n *ast.InExpr) (value.Value, error) {
	left, err := c.eval(n.Expr)
	if err != nil {
		return value.Value{}, err
	}
	var candidates []value.Value
	if n.Select != nil {
		rows, err := c.exec.runSubquery(n.Select, c.row)
		if err != nil {
			return value.Value{}, err
		}
		for _, r := range rows {
			if len(r) != 1 {
				return value.Value{}, dberrors.New(dberrors.KindUnsupported, "IN subquery must return one column")
			}
			candidates = append(candidates, r[0])
		}
	} else {
		for _, ve := range n.Values {
			v, err := c.eval(ve)
			if err != nil {
				return value.Value{}, err
			}
			candidates = append(candidates, v)
		}
	}

	if left.IsNull() {
		return value.Null(), nil
	}

	sawNull := false
	found := false
	for _, cand := range candidates {
		if cand.IsNull() {
			sawNull = true
			continue
		}
		if value.Equal(left, cand) {
			found = true
			break
		}
	}

	result := found
	if n.Not {
		if sawNull && !found {
			return value.Null(), nil
		}
		result = !found
	} else if !found && sawNull {
		return value.Null(), nil
	}
	return value.Boolean(result), nil
}

func (c *evalCtx) evalBetween(n *ast.BetweenExpr) (value.Value, error) {
	v, err := c.eval(n.Expr)
	if err != nil {
		return value.Value{}, err
	}
	low, err := c.eval(n.Low)
	if err != nil {
		return value.Value{}, err
	}
	high, err := c.eval(n.High)
	if err != nil {
		return value.Value{}, err
	}
	if v.IsNull() || low.IsNull() || high.IsNull() {
		return value.Null(), nil
	}
	loCmp, _ := value.Compare(v, low)
	hiCmp, _ := value.Compare(v, high)
	between := loCmp >= 0 && hiCmp <= 0
	if n.Not {
		between = !between
	}
	return value.Boolean(between), nil
}

// evalLike implements % (any run) and _ (one char) with backslash escapes
// for \%, \_, \\ (spec §4.3).
func (c *evalCtx) evalLike(n *ast.LikeExpr) (value.Value, error) {
	v, err := c.eval(n.Expr)
	if err != nil {
		return value.Value{}, err
	}
	if v.IsNull() {
		return value.Null(), nil
	}
	pattern, err := c.eval(n.Pattern)
	if err != nil {
		return value.Value{}, err
	}
	if pattern.IsNull() {
		return value.Null(), nil
	}
	subject, pat := v.Text, pattern.Text
	if n.ILike {
		subject, pat = strings.ToLower(subject), strings.ToLower(pat)
	}
	matched := likeMatch(subject, pat)
	if n.Not {
		matched = !matched
	}
	return value.Boolean(matched), nil
}

func likeMatch(s, pattern string) bool {
	re := compileLikePattern(pattern)
	return re.MatchString(s)
}

func (c *evalCtx) evalIs(n *ast.IsExpr) (value.Value, error) {
	v, err := c.eval(n.Expr)
	if err != nil {
		return value.Value{}, err
	}
	var result bool
	switch n.What {
	case ast.IsNull:
		result = v.IsNull()
	case ast.IsTrue:
		result = !v.IsNull() && v.Boolean
	case ast.IsFalse:
		result = !v.IsNull() && !v.Boolean
	case ast.IsUnknown:
		result = v.IsNull()
	}
	if n.Not {
		result = !result
	}
	return value.Boolean(result), nil
}

func (c *evalCtx) evalExists(n *ast.ExistsExpr) (value.Value, error) {
	rows, err := c.exec.runSubquery(n.Subquery.Select, c.row)
	if err != nil {
		return value.Value{}, err
	}
	result := len(rows) > 0
	if n.Not {
		result = !result
	}
	return value.Boolean(result), nil
}

// evalScalarSubquery evaluates a subquery expected to yield at most one
// row and one column (spec §4.3).
func (c *evalCtx) evalScalarSubquery(sel *ast.SelectStmt) (value.Value, error) {
	rows, err := c.exec.runSubquery(sel, c.row)
	if err != nil {
		return value.Value{}, err
	}
	if len(rows) == 0 {
		return value.Null(), nil
	}
	if len(rows) > 1 || len(rows[0]) != 1 {
		return value.Value{}, dberrors.New(dberrors.KindUnsupported, "scalar subquery returned more than one row or column")
	}
	return rows[0][0], nil
}

func (c *evalCtx) evalSubstring(n *ast.SubstringExpr) (value.Value, error) {
	s, err := c.eval(n.Expr)
	if err != nil {
		return value.Value{}, err
	}
	from, err := c.eval(n.From)
	if err != nil {
		return value.Value{}, err
	}
	args := []value.Value{s, from}
	if n.For != nil {
		forV, err := c.eval(n.For)
		if err != nil {
			return value.Value{}, err
		}
		args = append(args, forV)
	}
	fn, _ := functions.Lookup("substring")
	return fn(args)
}

func (c *evalCtx) evalCast(n *ast.CastExpr) (value.Value, error) {
	v, err := c.eval(n.Expr)
	if err != nil {
		return value.Value{}, err
	}
	if v.IsNull() {
		return value.Null(), nil
	}
	return castTo(v, n.Type.Name)
}

// castTo coerces v to the PostgreSQL cast-style type name produced by the
// dialect translator (`::date`, `::time`, `::timestamp`) and by explicit
// CAST/:: in user SQL.
func castTo(v value.Value, typeName string) (value.Value, error) {
	switch strings.ToLower(typeName) {
	case "date":
		t, err := time.Parse("2006-01-02", v.Text)
		if err != nil {
			return value.Value{}, dberrors.Wrap(dberrors.KindTypeMismatch, err, "casting %q to date", v.Text)
		}
		return value.Date(t), nil
	case "time":
		t, err := time.Parse("15:04:05", v.Text)
		if err != nil {
			return value.Value{}, dberrors.Wrap(dberrors.KindTypeMismatch, err, "casting %q to time", v.Text)
		}
		return value.Time(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second), nil
	case "timestamp":
		t, err := time.Parse("2006-01-02 15:04:05", v.Text)
		if err != nil {
			return value.Value{}, dberrors.Wrap(dberrors.KindTypeMismatch, err, "casting %q to timestamp", v.Text)
		}
		return value.Timestamp(t), nil
	case "integer", "int", "bigint":
		return v, nil
	case "text", "varchar":
		return value.Text(v.String()), nil
	default:
		return v, nil
	}
}
