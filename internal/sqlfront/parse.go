// Package sqlfront is the SQL front-end: it applies the dialect pre-pass
// and delegates to the third-party machparse parser, producing the
// standard AST the executor walks (spec §4.2).
package sqlfront

import (
	"regexp"
	"strings"

	"github.com/freeeve/machparse"
	"github.com/freeeve/machparse/ast"

	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/dialect"
)

// distinctOnRe recognizes `SELECT DISTINCT ON (k1, k2) ...`, a PostgreSQL
// extension machparse's grammar has no production for. It is stripped down
// to plain `SELECT DISTINCT ...` before parsing; the captured key list is
// parsed separately and carried alongside the statement.
var distinctOnRe = regexp.MustCompile(`(?is)^(\s*SELECT\s+)DISTINCT\s+ON\s*\(([^)]*)\)\s*`)

// transactionRe recognizes the transaction-control statements spec §4.7
// requires be accepted as no-ops; machparse has no AST node for them, so
// they are matched here rather than handed to the parser.
var transactionRe = regexp.MustCompile(`(?i)^\s*(BEGIN|START\s+TRANSACTION|COMMIT|ROLLBACK)\b`)

// ParsedStatement is a parsed statement plus the out-of-band DISTINCT ON key
// list machparse's AST has no field for (nil unless the statement used it).
// TransactionCommand is set instead of Stmt for BEGIN/COMMIT/ROLLBACK.
type ParsedStatement struct {
	Stmt               ast.Statement
	DistinctOn         []ast.Expr
	TransactionCommand string
}

// Parse translates and parses a single SQL statement.
func Parse(sql string) (*ParsedStatement, error) {
	translated := dialect.Translate(sql)

	if m := transactionRe.FindStringSubmatch(translated); m != nil {
		return &ParsedStatement{TransactionCommand: strings.ToUpper(m[1])}, nil
	}

	var distinctOnExprs []ast.Expr
	if m := distinctOnRe.FindStringSubmatch(translated); m != nil {
		exprs, err := parseExprList(m[2])
		if err != nil {
			return nil, err
		}
		distinctOnExprs = exprs
		translated = m[1] + "DISTINCT " + translated[len(m[0]):]
	}

	stmt, err := machparse.Parse(translated)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.KindParse, err, "parsing %q", sql)
	}
	return &ParsedStatement{Stmt: stmt, DistinctOn: distinctOnExprs}, nil
}

// parseExprList parses a comma-separated expression list by wrapping it in
// a throwaway SELECT and lifting the projected expressions back out, since
// machparse exposes no standalone expression-parsing entry point.
func parseExprList(text string) ([]ast.Expr, error) {
	stmt, err := machparse.Parse("SELECT " + text)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.KindParse, err, "parsing DISTINCT ON column list %q", text)
	}
	sel, ok := stmt.(*ast.SelectStmt)
	if !ok {
		return nil, dberrors.New(dberrors.KindParse, "invalid DISTINCT ON column list %q", text)
	}
	exprs := make([]ast.Expr, 0, len(sel.Columns))
	for _, c := range sel.Columns {
		ae, ok := c.(*ast.AliasedExpr)
		if !ok {
			return nil, dberrors.New(dberrors.KindParse, "invalid DISTINCT ON column list %q", text)
		}
		exprs = append(exprs, ae.Expr)
	}
	return exprs, nil
}

// ParseAll splits sql on statement-terminating semicolons and parses each
// piece with Parse, as the simple query protocol messages of both wire
// dialects allow (each piece gets its own DISTINCT ON / transaction-command
// handling, unlike a single machparse.ParseAll call over the whole batch).
func ParseAll(sql string) ([]*ParsedStatement, error) {
	var out []*ParsedStatement
	for _, stmt := range splitStatements(sql) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		p, err := Parse(stmt)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// splitStatements breaks sql on top-level semicolons, ignoring those inside
// single-quoted string literals. It runs on the client's text before
// dialect translation; a doubled '' is the only escape it recognises, so a
// backslash-escaped quote is taken as the end of the literal.
func splitStatements(sql string) []string {
	var stmts []string
	var cur strings.Builder
	inString := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'':
			inString = !inString
			cur.WriteByte(c)
		case c == ';' && !inString:
			stmts = append(stmts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		stmts = append(stmts, cur.String())
	}
	return stmts
}
