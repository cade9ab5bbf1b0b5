package engine

import (
	"github.com/freeeve/machparse/ast"

	"github.com/yamlbase/yamlbase/internal/value"
)

// runSubquery executes sel as a nested SELECT, with outer pushed onto the
// correlation stack so a correlated reference inside sel (a column not
// bound by sel's own FROM) resolves against the enclosing row (spec §4.3,
// "Subqueries").
func (e *Executor) runSubquery(sel *ast.SelectStmt, outer *Row) ([][]value.Value, error) {
	e.outerRows = append(e.outerRows, outer)
	defer func() { e.outerRows = e.outerRows[:len(e.outerRows)-1] }()

	result, err := e.executeSelect(sel, nil)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}
