package engine

import (
	"github.com/yamlbase/yamlbase/internal/value"
)

// ColumnDescriptor names and types one output column of a QueryResult.
type ColumnDescriptor struct {
	Name string
	Type value.SqlType
}

// QueryResult is the ephemeral output of executing one statement: an
// ordered column descriptor list and ordered row sequence. It lives only
// until serialized back to the client (spec §3).
type QueryResult struct {
	Columns      []ColumnDescriptor
	Rows         [][]value.Value
	RowsAffected int64
	Command      string // "SELECT", "INSERT", "UPDATE", "DELETE", etc.
}
