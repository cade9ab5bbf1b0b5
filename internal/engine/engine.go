// Package engine is the query planner/executor: it walks a parsed SELECT
// AST over a storage reader lease, evaluating expressions and applying
// relational operators to produce a QueryResult (spec §4.3, §4.4).
package engine

import (
	"time"

	"github.com/freeeve/machparse/ast"

	"github.com/yamlbase/yamlbase/internal/catalog"
	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/sqlfront"
	"github.com/yamlbase/yamlbase/internal/storage"
)

// Executor runs one statement against a single, stable storage snapshot.
// The caller acquires the reader lease, builds an Executor around it,
// executes exactly one statement, and releases the lease only after every
// result row has been streamed to the wire (spec §4.1).
type Executor struct {
	db        *catalog.Database
	storage   *storage.Storage
	deadline  *deadline
	ctes      map[string]*catalog.Table
	outerRows []*Row // correlation stack for nested subqueries, innermost last
}

// New builds an Executor over db (typically storage.Reader().Database()).
// timeout <= 0 disables the per-query deadline.
func New(s *storage.Storage, db *catalog.Database, timeout time.Duration) *Executor {
	return &Executor{
		db:       db,
		storage:  s,
		deadline: newDeadline(timeout),
		ctes:     make(map[string]*catalog.Table),
	}
}

// Execute runs a parsed statement and returns its result. Only SELECT and
// the limited catalog-introspection rewrites the dialect translator
// produces are supported; DML is out of scope because the database is a
// read-only snapshot loaded from YAML and replaced wholesale by hot-reload
// (spec §3, Non-goals). BEGIN/COMMIT/ROLLBACK are accepted as no-ops per
// spec §4.7 so clients that wrap every query in a transaction still work.
func (e *Executor) Execute(parsed *sqlfront.ParsedStatement) (*QueryResult, error) {
	if parsed.TransactionCommand != "" {
		return &QueryResult{Command: parsed.TransactionCommand}, nil
	}
	switch n := parsed.Stmt.(type) {
	case *ast.SelectStmt:
		return e.executeSelect(n, parsed.DistinctOn)
	default:
		return nil, dberrors.New(dberrors.KindUnsupported, "statement type %T is not supported", parsed.Stmt)
	}
}
