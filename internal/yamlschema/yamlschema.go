// Package yamlschema loads the YAML-declared schema and data spec.md §6
// describes into a *catalog.Database. This is "external collaborator"
// glue per spec.md §1 (the spec fixes only the entity model it must
// produce) but is implemented in full since the server cannot run without
// it; parsing follows the teacher's `yaml.v3` + `dec.KnownFields(true)`
// idiom (database/database.go's parseGeneratorConfigFromBytes).
package yamlschema

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/yamlbase/yamlbase/internal/catalog"
	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/value"
)

// Auth is the optional credential pair a YAML document may declare under
// database.auth, falling back to CLI-supplied credentials when absent.
type Auth struct {
	Username string
	Password string
}

// doc mirrors the YAML document shape from spec.md §6 verbatim.
type doc struct {
	Database struct {
		Name string `yaml:"name"`
		Auth *struct {
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"auth"`
	} `yaml:"database"`
	Tables map[string]struct {
		Columns map[string]string `yaml:"columns"`
		Data    []map[string]any  `yaml:"data"`
	} `yaml:"tables"`
}

// Load reads and parses path into a Database plus its optional declared
// Auth (nil if the YAML document has no database.auth block).
func Load(path string) (*catalog.Database, *Auth, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, dberrors.Wrap(dberrors.KindIO, err, "reading schema file %q", path)
	}
	return Parse(buf)
}

// Parse builds a Database from raw YAML bytes, in the order in which
// tables and their column lists were declared (Go map iteration is
// randomized, so tableOrder/columnOrder below are recovered via a second,
// order-preserving decode pass).
func Parse(buf []byte) (*catalog.Database, *Auth, error) {
	var d doc
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, nil, dberrors.Wrap(dberrors.KindIO, err, "parsing YAML schema")
	}

	tableOrder, columnOrder, err := declarationOrder(buf)
	if err != nil {
		return nil, nil, err
	}

	if d.Database.Name == "" {
		d.Database.Name = "yamlbase"
	}
	database := catalog.NewDatabase(d.Database.Name)

	for _, tableName := range tableOrder {
		t, ok := d.Tables[tableName]
		if !ok {
			continue
		}
		cols, err := buildColumns(t.Columns, columnOrder[tableName])
		if err != nil {
			return nil, nil, dberrors.Wrap(dberrors.KindConstraintViolation, err, "table %q", tableName)
		}
		tbl := catalog.NewTable(tableName, cols)
		for _, rowMap := range t.Data {
			row, err := buildRow(tbl, rowMap)
			if err != nil {
				return nil, nil, dberrors.Wrap(dberrors.KindConstraintViolation, err, "table %q", tableName)
			}
			tbl.AppendRow(row)
		}
		if err := checkConstraints(tbl); err != nil {
			return nil, nil, dberrors.Wrap(dberrors.KindConstraintViolation, err, "table %q", tableName)
		}
		if err := database.AddTable(tbl); err != nil {
			return nil, nil, dberrors.Wrap(dberrors.KindConstraintViolation, err, "")
		}
	}

	var auth *Auth
	if d.Database.Auth != nil {
		auth = &Auth{Username: d.Database.Auth.Username, Password: d.Database.Auth.Password}
	}
	return database, auth, nil
}

// declarationOrder re-decodes buf into a yaml.Node tree purely to recover
// the mapping-key order yaml.v3's struct decode discards, so table and
// column enumeration order matches the source file (spec.md §3's "ordered
// column list").
func declarationOrder(buf []byte) (tables []string, columns map[string][]string, err error) {
	var root yaml.Node
	if err := yaml.Unmarshal(buf, &root); err != nil {
		return nil, nil, dberrors.Wrap(dberrors.KindIO, err, "parsing YAML schema")
	}
	columns = make(map[string][]string)
	if len(root.Content) == 0 {
		return nil, columns, nil
	}
	top := root.Content[0]
	tablesNode := mapValue(top, "tables")
	if tablesNode == nil {
		return nil, columns, nil
	}
	for i := 0; i+1 < len(tablesNode.Content); i += 2 {
		name := tablesNode.Content[i].Value
		tables = append(tables, name)
		tableNode := tablesNode.Content[i+1]
		colsNode := mapValue(tableNode, "columns")
		if colsNode == nil {
			continue
		}
		for j := 0; j+1 < len(colsNode.Content); j += 2 {
			columns[name] = append(columns[name], colsNode.Content[j].Value)
		}
	}
	return tables, columns, nil
}

func mapValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func buildColumns(specs map[string]string, order []string) ([]catalog.Column, error) {
	cols := make([]catalog.Column, 0, len(order))
	for _, name := range order {
		spec, ok := specs[name]
		if !ok {
			continue
		}
		col, err := ParseColumnSpec(name, spec)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func buildRow(tbl *catalog.Table, rowMap map[string]any) ([]value.Value, error) {
	row := make([]value.Value, len(tbl.Columns))
	for i, col := range tbl.Columns {
		raw, present := rowMap[col.Name]
		if !present || raw == nil {
			if !col.Nullable {
				if col.Default != nil {
					row[i] = *col.Default
					continue
				}
				return nil, fmt.Errorf("column %q is NOT NULL but row omits it", col.Name)
			}
			row[i] = value.Null()
			continue
		}
		v, err := coerce(raw, col.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		row[i] = v
	}
	return row, nil
}

func checkConstraints(tbl *catalog.Table) error {
	for _, ci := range tbl.PrimaryKeyColumns() {
		seen := make(map[string]bool, len(tbl.Rows))
		for _, row := range tbl.Rows {
			k := row[ci].String()
			if seen[k] {
				return fmt.Errorf("duplicate primary key value %q in column %q", k, tbl.Columns[ci].Name)
			}
			seen[k] = true
		}
	}
	for _, ci := range tbl.UniqueColumns() {
		seen := make(map[string]bool, len(tbl.Rows))
		for _, row := range tbl.Rows {
			if row[ci].IsNull() {
				continue
			}
			k := row[ci].String()
			if seen[k] {
				return fmt.Errorf("duplicate unique value %q in column %q", k, tbl.Columns[ci].Name)
			}
			seen[k] = true
		}
	}
	return nil
}

// coerce converts a decoded YAML scalar (string/int/float/bool/time.Time)
// into the Value shape sqlType requires, per spec.md §6's type grammar.
func coerce(raw any, sqlType value.SqlType) (value.Value, error) {
	switch sqlType.Name {
	case value.TypeInteger, value.TypeBigInt:
		switch n := raw.(type) {
		case int:
			return value.Integer(int64(n)), nil
		case int64:
			return value.Integer(n), nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return value.Value{}, err
			}
			return value.Integer(i), nil
		default:
			return value.Value{}, fmt.Errorf("expected integer, got %T", raw)
		}
	case value.TypeFloat, value.TypeDouble:
		switch n := raw.(type) {
		case float64:
			return value.Float(n), nil
		case int:
			return value.Float(float64(n)), nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return value.Value{}, err
			}
			return value.Float(f), nil
		default:
			return value.Value{}, fmt.Errorf("expected float, got %T", raw)
		}
	case value.TypeDecimal:
		d, err := parseDecimal(raw)
		if err != nil {
			return value.Value{}, err
		}
		return value.Dec(d), nil
	case value.TypeBoolean:
		switch b := raw.(type) {
		case bool:
			return value.Boolean(b), nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return value.Value{}, fmt.Errorf("expected boolean, got %q", b)
			}
			return value.Boolean(parsed), nil
		default:
			return value.Value{}, fmt.Errorf("expected boolean, got %T", raw)
		}
	case value.TypeDate:
		if t, ok := raw.(time.Time); ok {
			return value.Date(t), nil
		}
		return parseDate(fmt.Sprint(raw))
	case value.TypeTime:
		if t, ok := raw.(time.Time); ok {
			d := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
			return value.Time(d), nil
		}
		return parseTimeOfDay(fmt.Sprint(raw))
	case value.TypeTimestamp:
		if t, ok := raw.(time.Time); ok {
			return value.Timestamp(t), nil
		}
		return parseTimestamp(fmt.Sprint(raw))
	case value.TypeUUID:
		return parseUUID(fmt.Sprint(raw))
	case value.TypeJSON:
		return value.JSON(fmt.Sprint(raw)), nil
	default:
		return value.Text(fmt.Sprint(raw)), nil
	}
}

// parseDecimal accepts either a YAML scalar decoded as a number or as a
// quoted string, since DECIMAL literals in the data section commonly need
// quoting to avoid float round-tripping through the YAML decoder.
func parseDecimal(raw any) (decimal.Decimal, error) {
	switch n := raw.(type) {
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("expected decimal, got %q", n)
		}
		return d, nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("expected decimal, got %T", raw)
	}
}

// parseDate parses a date-only YAML scalar (spec.md §6's `DATE` columns),
// using the same layout castTo uses for `::date` casts.
func parseDate(s string) (value.Value, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return value.Value{}, fmt.Errorf("expected date (YYYY-MM-DD), got %q", s)
	}
	return value.Date(t), nil
}

// parseTimeOfDay parses a TIME column value into a duration since midnight,
// matching castTo's `::time` handling.
func parseTimeOfDay(s string) (value.Value, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return value.Value{}, fmt.Errorf("expected time (HH:MM:SS), got %q", s)
	}
	d := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
	return value.Time(d), nil
}

// parseTimestamp parses a TIMESTAMP column value, matching castTo's
// `::timestamp` handling.
func parseTimestamp(s string) (value.Value, error) {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return value.Value{}, fmt.Errorf("expected timestamp (YYYY-MM-DD HH:MM:SS), got %q", s)
	}
	return value.Timestamp(t), nil
}

// parseUUID parses a UUID column value in any of uuid.Parse's accepted
// forms (spec.md §6, UUID type).
func parseUUID(s string) (value.Value, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return value.Value{}, fmt.Errorf("expected UUID, got %q", s)
	}
	return value.UUID(u), nil
}
