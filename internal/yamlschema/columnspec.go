package yamlschema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yamlbase/yamlbase/internal/catalog"
	"github.com/yamlbase/yamlbase/internal/value"
)

// ParseColumnSpec parses one YAML `columns:` entry value into a catalog
// Column (spec.md §6): a base type name, optionally parenthesized
// length/precision arguments, followed by zero or more of PRIMARY KEY,
// NOT NULL, UNIQUE, DEFAULT <literal>, REFERENCES <table>(<col>), in any
// order.
func ParseColumnSpec(name, spec string) (catalog.Column, error) {
	toks, err := tokenizeColumnSpec(spec)
	if err != nil {
		return catalog.Column{}, fmt.Errorf("column %q: %w", name, err)
	}
	if len(toks) == 0 {
		return catalog.Column{}, fmt.Errorf("column %q: empty type spec", name)
	}

	sqlType, rest, err := parseBaseType(toks)
	if err != nil {
		return catalog.Column{}, fmt.Errorf("column %q: %w", name, err)
	}

	col := catalog.Column{Name: name, Type: sqlType, Nullable: true}

	for len(rest) > 0 {
		switch strings.ToUpper(rest[0]) {
		case "PRIMARY":
			if len(rest) < 2 || strings.ToUpper(rest[1]) != "KEY" {
				return catalog.Column{}, fmt.Errorf("column %q: expected KEY after PRIMARY", name)
			}
			col.PrimaryKey = true
			col.Nullable = false
			rest = rest[2:]
		case "NOT":
			if len(rest) < 2 || strings.ToUpper(rest[1]) != "NULL" {
				return catalog.Column{}, fmt.Errorf("column %q: expected NULL after NOT", name)
			}
			col.Nullable = false
			rest = rest[2:]
		case "UNIQUE":
			col.Unique = true
			rest = rest[1:]
		case "DEFAULT":
			if len(rest) < 2 {
				return catalog.Column{}, fmt.Errorf("column %q: DEFAULT requires a literal", name)
			}
			v, err := coerce(literalToScalar(rest[1]), sqlType)
			if err != nil {
				return catalog.Column{}, fmt.Errorf("column %q: DEFAULT %w", name, err)
			}
			col.Default = &v
			rest = rest[2:]
		case "REFERENCES":
			if len(rest) < 2 {
				return catalog.Column{}, fmt.Errorf("column %q: REFERENCES requires a table(column)", name)
			}
			table, refCol, err := parseReference(rest[1])
			if err != nil {
				return catalog.Column{}, fmt.Errorf("column %q: %w", name, err)
			}
			col.References = &catalog.ForeignKeyRef{Table: table, Column: refCol}
			rest = rest[2:]
		default:
			return catalog.Column{}, fmt.Errorf("column %q: unexpected token %q", name, rest[0])
		}
	}

	return col, nil
}

// tokenizeColumnSpec splits spec on whitespace, except inside a `(...)`
// argument list, which is kept as one token (e.g. "DECIMAL(10,2)" or the
// "table(col)" operand of REFERENCES).
func tokenizeColumnSpec(spec string) ([]string, error) {
	var toks []string
	var cur strings.Builder
	depth := 0
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range spec {
		switch {
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses in %q", spec)
			}
			cur.WriteRune(r)
		case r == ' ' || r == '\t':
			if depth > 0 {
				cur.WriteRune(r)
			} else {
				flush()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses in %q", spec)
	}
	flush()
	return toks, nil
}

// parseBaseType consumes the leading type token (e.g. "VARCHAR(255)",
// "DECIMAL(10,2)", "INTEGER") and returns the remaining modifier tokens.
func parseBaseType(toks []string) (value.SqlType, []string, error) {
	head := toks[0]
	base, args, err := splitTypeArgs(head)
	if err != nil {
		return value.SqlType{}, nil, err
	}

	switch strings.ToUpper(base) {
	case "INTEGER", "INT":
		return value.SqlType{Name: value.TypeInteger}, toks[1:], nil
	case "BIGINT":
		return value.SqlType{Name: value.TypeBigInt}, toks[1:], nil
	case "FLOAT", "REAL":
		return value.SqlType{Name: value.TypeFloat}, toks[1:], nil
	case "DOUBLE":
		return value.SqlType{Name: value.TypeDouble}, toks[1:], nil
	case "BOOLEAN", "BOOL":
		return value.SqlType{Name: value.TypeBoolean}, toks[1:], nil
	case "TEXT":
		return value.SqlType{Name: value.TypeText}, toks[1:], nil
	case "DATE":
		return value.SqlType{Name: value.TypeDate}, toks[1:], nil
	case "TIME":
		return value.SqlType{Name: value.TypeTime}, toks[1:], nil
	case "TIMESTAMP":
		return value.SqlType{Name: value.TypeTimestamp}, toks[1:], nil
	case "UUID":
		return value.SqlType{Name: value.TypeUUID}, toks[1:], nil
	case "JSON":
		return value.SqlType{Name: value.TypeJSON}, toks[1:], nil
	case "VARCHAR":
		n := 0
		if len(args) == 1 {
			var err error
			n, err = strconv.Atoi(args[0])
			if err != nil {
				return value.SqlType{}, nil, fmt.Errorf("invalid VARCHAR length %q", args[0])
			}
		}
		return value.SqlType{Name: value.TypeVarchar, Length: n}, toks[1:], nil
	case "DECIMAL", "NUMERIC":
		var p, s int
		if len(args) >= 1 {
			var err error
			p, err = strconv.Atoi(args[0])
			if err != nil {
				return value.SqlType{}, nil, fmt.Errorf("invalid DECIMAL precision %q", args[0])
			}
		}
		if len(args) >= 2 {
			var err error
			s, err = strconv.Atoi(args[1])
			if err != nil {
				return value.SqlType{}, nil, fmt.Errorf("invalid DECIMAL scale %q", args[1])
			}
		}
		return value.SqlType{Name: value.TypeDecimal, Precision: p, Scale: s}, toks[1:], nil
	default:
		return value.SqlType{}, nil, fmt.Errorf("unknown type %q", base)
	}
}

// splitTypeArgs splits "VARCHAR(255)" into ("VARCHAR", ["255"]) and
// "DECIMAL(10,2)" into ("DECIMAL", ["10", "2"]); a bare "INTEGER" returns
// no args.
func splitTypeArgs(tok string) (base string, args []string, err error) {
	open := strings.IndexByte(tok, '(')
	if open < 0 {
		return tok, nil, nil
	}
	if !strings.HasSuffix(tok, ")") {
		return "", nil, fmt.Errorf("malformed type %q", tok)
	}
	base = tok[:open]
	inner := tok[open+1 : len(tok)-1]
	for _, part := range strings.Split(inner, ",") {
		args = append(args, strings.TrimSpace(part))
	}
	return base, args, nil
}

// parseReference splits the "table(col)" operand of REFERENCES.
func parseReference(tok string) (table, col string, err error) {
	open := strings.IndexByte(tok, '(')
	if open < 0 || !strings.HasSuffix(tok, ")") {
		return "", "", fmt.Errorf("malformed REFERENCES target %q, expected table(column)", tok)
	}
	return tok[:open], tok[open+1 : len(tok)-1], nil
}

// literalToScalar strips optional quoting from a DEFAULT literal before
// handing it to coerce, which expects the same scalar shapes a YAML
// decoder would produce for a data row value.
func literalToScalar(lit string) any {
	if len(lit) >= 2 && lit[0] == '\'' && lit[len(lit)-1] == '\'' {
		return lit[1 : len(lit)-1]
	}
	return lit
}
