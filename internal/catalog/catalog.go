// Package catalog holds the descriptive metadata for the in-memory
// database: Column, Table, and Database, independent of the row storage
// and indexing the storage package layers on top.
package catalog

import (
	"fmt"
	"sort"

	"github.com/yamlbase/yamlbase/internal/value"
)

// Column describes a single table column. The foreign-key reference, if
// present, is informational only; the core never enforces it at insert
// time (spec §3).
type Column struct {
	Name       string
	Type       value.SqlType
	PrimaryKey bool
	Nullable   bool
	Unique     bool
	Default    *value.Value
	References *ForeignKeyRef
}

// ForeignKeyRef names the referenced table/column without being validated
// against it.
type ForeignKeyRef struct {
	Table  string
	Column string
}

// Table is the column list, schema-level constraints, and row set for one
// table (spec §3). The storage package layers deferred index construction
// and the reader/writer lease discipline on top; Table itself has no
// concurrency control of its own and must only be mutated under a write
// lease.
type Table struct {
	Name    string // as declared
	foldKey string
	Columns []Column
	Rows    [][]value.Value

	colIndex map[string]int // fold(column name) -> position
}

// NewTable builds an empty Table from a declared name and column list,
// indexing columns by folded name for O(1) lookup.
func NewTable(name string, columns []Column) *Table {
	t := &Table{
		Name:     name,
		foldKey:  Fold(name),
		Columns:  columns,
		colIndex: make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		t.colIndex[Fold(c.Name)] = i
	}
	return t
}

// AppendRow adds row to the table's row set, returning its position.
// Callers are responsible for constraint and type checking before calling.
func (t *Table) AppendRow(row []value.Value) int {
	t.Rows = append(t.Rows, row)
	return len(t.Rows) - 1
}

// FoldKey returns the case-folded name used to key this table in a Database.
func (t *Table) FoldKey() string { return t.foldKey }

// ColumnIndex returns the position of the named column, case-insensitively.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.colIndex[Fold(name)]
	return i, ok
}

// Column returns the column descriptor for the named column.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.ColumnIndex(name)
	if !ok {
		return Column{}, false
	}
	return t.Columns[i], true
}

// PrimaryKeyColumns returns the indexes of columns flagged primary_key, in
// declaration order.
func (t *Table) PrimaryKeyColumns() []int {
	var idx []int
	for i, c := range t.Columns {
		if c.PrimaryKey {
			idx = append(idx, i)
		}
	}
	return idx
}

// UniqueColumns returns the indexes of columns flagged unique (excluding
// primary-key columns, which are covered by the PK index).
func (t *Table) UniqueColumns() []int {
	var idx []int
	for i, c := range t.Columns {
		if c.Unique && !c.PrimaryKey {
			idx = append(idx, i)
		}
	}
	return idx
}

// Database is the named collection of tables, keyed by case-folded name
// (spec §3).
type Database struct {
	Name   string
	tables map[string]*Table
}

// NewDatabase returns an empty, named Database.
func NewDatabase(name string) *Database {
	return &Database{Name: name, tables: make(map[string]*Table)}
}

// AddTable registers t under its folded name. If a table with the same
// folded name is already registered, it returns an error and leaves the
// existing table in place; callers that intend a replace use ReplaceTable.
func (d *Database) AddTable(t *Table) error {
	if _, exists := d.tables[t.foldKey]; exists {
		return fmt.Errorf("table %q already exists", t.Name)
	}
	d.tables[t.foldKey] = t
	return nil
}

// ReplaceTable unconditionally installs t, used by hot-reload to swap in a
// freshly loaded schema.
func (d *Database) ReplaceTable(t *Table) {
	d.tables[t.foldKey] = t
}

// GetTable looks up a table by name, case-insensitively.
func (d *Database) GetTable(name string) (*Table, bool) {
	t, ok := d.tables[Fold(name)]
	return t, ok
}

// Tables returns every table in ascending folded-name order, for
// deterministic information_schema enumeration.
func (d *Database) Tables() []*Table {
	out := make([]*Table, 0, len(d.tables))
	for _, t := range d.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].foldKey < out[j].foldKey })
	return out
}
