// Package dialect applies a textual pre-pass that normalizes
// dialect-specific surface SQL forms into the common grammar the parser
// expects, before any AST is built. Ported from the original Rust
// implementation's Teradata-era translator; renamed here since the
// legacy Parcel wire protocol itself is out of scope (spec §4.2, GLOSSARY).
package dialect

import (
	"regexp"
	"strings"
)

var (
	selRe      = regexp.MustCompile(`(?i)^\s*SEL\s+`)
	dateLitRe  = regexp.MustCompile(`(?i)DATE\s*'([^']+)'`)
	tsLitRe    = regexp.MustCompile(`(?i)TIMESTAMP\s*'([^']+)'`)
	timeLitRe  = regexp.MustCompile(`(?i)TIME\s*'([^']+)'`)
	truncRe    = regexp.MustCompile(`(?i)TRUNC\s*\(\s*([^,]+),\s*'(MM|DD|YY|YYYY)'\s*\)`)
	formatRe   = regexp.MustCompile(`(?i)FORMAT\s*\(`)
	zeroIfNull = regexp.MustCompile(`(?i)ZEROIFNULL\s*\(([^)]+)\)`)
	nullIfZero = regexp.MustCompile(`(?i)NULLIFZERO\s*\(([^)]+)\)`)
	samplePct  = regexp.MustCompile(`(?i)\sSAMPLE\s+(\d+)\s+PERCENT`)
	sampleN    = regexp.MustCompile(`(?i)\sSAMPLE\s+(\d+)`)
	modOp      = regexp.MustCompile(`\s+MOD\s+`)
	dbcTables  = regexp.MustCompile(`(?i)DBC\.Tables`)
	dbcColumns = regexp.MustCompile(`(?i)DBC\.Columns`)
	helpTable  = regexp.MustCompile(`(?i)^\s*HELP\s+TABLE\s+(\S+)\s*;?\s*$`)
	showTable  = regexp.MustCompile(`(?i)^\s*SHOW\s+TABLE\s+(\S+)\s*;?\s*$`)
)

// Translate rewrites sql's dialect-specific surface forms into the common
// grammar the parser accepts. Each rule is applied in the documented order
// (spec §4.2); running Translate on already-translated text is a no-op.
func Translate(sql string) string {
	if rewritten, ok := rewriteSystemQuery(sql); ok {
		return rewritten
	}

	out := selRe.ReplaceAllString(sql, "SELECT ")
	out = dateLitRe.ReplaceAllString(out, "'$1'::date")
	out = tsLitRe.ReplaceAllString(out, "'$1'::timestamp")
	out = timeLitRe.ReplaceAllString(out, "'$1'::time")
	out = truncRe.ReplaceAllStringFunc(out, rewriteTrunc)
	out = formatRe.ReplaceAllString(out, "TO_CHAR(")
	out = zeroIfNull.ReplaceAllString(out, "COALESCE($1, 0)")
	out = nullIfZero.ReplaceAllString(out, "NULLIF($1, 0)")
	out = samplePct.ReplaceAllString(out, " TABLESAMPLE BERNOULLI ($1)")
	out = sampleN.ReplaceAllString(out, " LIMIT $1")
	out = modOp.ReplaceAllString(out, " % ")
	out = strings.ReplaceAll(out, "**", "^")
	return out
}

func rewriteTrunc(match string) string {
	groups := truncRe.FindStringSubmatch(match)
	col, unitCode := groups[1], strings.ToUpper(groups[2])
	unit := "day"
	switch unitCode {
	case "MM":
		unit = "month"
	case "YY", "YYYY":
		unit = "year"
	}
	return "DATE_TRUNC('" + unit + "', " + col + ")"
}

// rewriteSystemQuery handles the handful of catalog introspection forms
// (DBC.Tables, DBC.Columns, HELP TABLE, SHOW TABLE) that translate to a
// whole replacement query against information_schema rather than a
// piecewise textual substitution.
func rewriteSystemQuery(sql string) (string, bool) {
	trimmed := strings.TrimSpace(sql)

	if m := helpTable.FindStringSubmatch(trimmed); m != nil {
		table := strings.Trim(m[1], `"`)
		return "SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_name = '" + table + "'", true
	}
	if m := showTable.FindStringSubmatch(trimmed); m != nil {
		table := strings.Trim(m[1], `"`)
		return "SELECT 'CREATE TABLE ' || table_name || ' (' || string_agg(column_name || ' ' || data_type, ', ') || ')' AS ddl " +
			"FROM information_schema.columns WHERE table_name = '" + table + "' GROUP BY table_name", true
	}
	if dbcTables.MatchString(sql) {
		return "SELECT table_name AS TableName, 'T' AS TableKind FROM information_schema.tables " +
			"WHERE table_schema NOT IN ('pg_catalog', 'information_schema')", true
	}
	if dbcColumns.MatchString(sql) {
		return "SELECT column_name AS ColumnName, data_type AS ColumnType FROM information_schema.columns " +
			"WHERE table_schema NOT IN ('pg_catalog', 'information_schema')", true
	}
	return "", false
}
