package engine

import (
	"github.com/freeeve/machparse/ast"

	"github.com/yamlbase/yamlbase/internal/catalog"
	"github.com/yamlbase/yamlbase/internal/dberrors"
)

// materializeCTEs evaluates each WITH binding once, in declaration order,
// storing it as a named ephemeral table visible to later bindings and the
// main query. Forward references are errors (spec §4.4.1), detected the
// same way the teacher's generic topological sort flags a cycle: a binding
// whose FROM clause names a CTE declared later in the same WITH list fails,
// even when a base table of that name exists.
func (e *Executor) materializeCTEs(with *ast.WithClause) error {
	if with == nil {
		return nil
	}
	if with.Recursive {
		return dberrors.New(dberrors.KindUnsupported, "recursive CTEs are not supported")
	}

	for _, cte := range with.CTEs {
		fold := catalog.Fold(cte.Name)
		if _, exists := e.ctes[fold]; exists {
			return dberrors.New(dberrors.KindUnsupported, "duplicate CTE name %q", cte.Name)
		}

		sel, ok := cte.Query.(*ast.SelectStmt)
		if !ok {
			return dberrors.New(dberrors.KindUnsupported, "CTE body must be a SELECT")
		}
		if referencesUnmaterializedCTE(sel.From, e.ctes, with.CTEs, cte.Name) {
			return dberrors.New(dberrors.KindUnknownIdentifier, "CTE %q references a later binding", cte.Name)
		}

		result, err := e.executeSelect(sel, nil)
		if err != nil {
			return err
		}

		columns := make([]catalog.Column, len(result.Columns))
		for i, c := range result.Columns {
			name := c.Name
			if i < len(cte.Columns) {
				name = cte.Columns[i]
			}
			columns[i] = catalog.Column{Name: name, Type: c.Type, Nullable: true}
		}
		tbl := catalog.NewTable(cte.Name, columns)
		for _, row := range result.Rows {
			tbl.AppendRow(row)
		}
		e.ctes[fold] = tbl
	}
	return nil
}

// referencesUnmaterializedCTE does a shallow scan of a FROM clause for a
// bare table reference naming a CTE declared later in the same WITH list
// (a forward reference) that isn't already materialized.
func referencesUnmaterializedCTE(from ast.TableExpr, materialized map[string]*catalog.Table, all []*ast.CTE, skip string) bool {
	names := make(map[string]bool)
	for _, c := range all {
		if c.Name == skip {
			break
		}
		names[catalog.Fold(c.Name)] = true
	}

	var laterNames []string
	found := false
	for _, c := range all {
		if c.Name == skip {
			found = true
			continue
		}
		if found {
			laterNames = append(laterNames, catalog.Fold(c.Name))
		}
	}

	var walk func(ast.TableExpr) bool
	walk = func(t ast.TableExpr) bool {
		switch n := t.(type) {
		case *ast.TableName:
			fold := catalog.Fold(n.Name())
			for _, later := range laterNames {
				if fold == later {
					if _, ok := materialized[fold]; !ok {
						return true
					}
				}
			}
		case *ast.AliasedTableExpr:
			return walk(n.Expr)
		case *ast.JoinExpr:
			return walk(n.Left) || walk(n.Right)
		case *ast.ParenTableExpr:
			return walk(n.Expr)
		}
		return false
	}
	if from == nil {
		return false
	}
	return walk(from)
}

// lookupTable resolves a bare table name against materialized CTEs first,
// then the base catalog (spec §4.4.1: CTE bindings shadow base tables of
// the same name for the remainder of the query).
func (e *Executor) lookupTable(name string) (*catalog.Table, bool) {
	if t, ok := e.ctes[catalog.Fold(name)]; ok {
		return t, true
	}
	return e.db.GetTable(name)
}
