package value

import "fmt"

// TypeName is the base SQL type name, independent of length/precision.
type TypeName int

const (
	TypeInteger TypeName = iota
	TypeBigInt
	TypeFloat
	TypeDouble
	TypeDecimal
	TypeVarchar
	TypeText
	TypeBoolean
	TypeDate
	TypeTime
	TypeTimestamp
	TypeUUID
	TypeJSON
)

func (t TypeName) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeBigInt:
		return "BIGINT"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	case TypeDecimal:
		return "DECIMAL"
	case TypeVarchar:
		return "VARCHAR"
	case TypeText:
		return "TEXT"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeTime:
		return "TIME"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeUUID:
		return "UUID"
	case TypeJSON:
		return "JSON"
	default:
		return "UNKNOWN"
	}
}

// SqlType describes a column's declared type, including the length/precision
// modifiers the YAML schema grammar allows (spec §6).
type SqlType struct {
	Name      TypeName
	Length    int // VARCHAR(n)
	Precision int // DECIMAL(p,s)
	Scale     int
}

func (t SqlType) String() string {
	switch t.Name {
	case TypeVarchar:
		if t.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", t.Length)
		}
		return "VARCHAR"
	case TypeDecimal:
		if t.Precision > 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
		}
		return "DECIMAL"
	default:
		return t.Name.String()
	}
}

// Zero returns the NULL value for the type; types carry no implicit default
// beyond NULL, matching the YAML schema's explicit DEFAULT clause semantics.
func (t SqlType) Zero() Value { return Null() }

// InTriad reports whether t belongs to the numeric triad used for widening
// arithmetic and comparison (spec §3).
func (t SqlType) InTriad() bool {
	switch t.Name {
	case TypeInteger, TypeBigInt, TypeFloat, TypeDouble, TypeDecimal:
		return true
	default:
		return false
	}
}
