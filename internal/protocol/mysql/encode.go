package mysql

import (
	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/engine"
	"github.com/yamlbase/yamlbase/internal/value"
)

// MySQL column type codes, see the MYSQL_TYPE_* constants in the protocol
// documentation. Every value is always sent as text over the wire (spec
// §4.7), so these only need to be plausible enough for clients that branch
// on the reported type.
const (
	colTypeTiny       = 1
	colTypeLong       = 3
	colTypeFloat      = 4
	colTypeDouble     = 5
	colTypeLongLong   = 8
	colTypeDate       = 10
	colTypeTime       = 11
	colTypeDateTime   = 12
	colTypeJSON       = 245
	colTypeNewDecimal = 246
	colTypeVarString  = 253

	statusAutocommit = 0x0002
)

func mysqlColType(t value.SqlType) byte {
	switch t.Name {
	case value.TypeInteger:
		return colTypeLong
	case value.TypeBigInt:
		return colTypeLongLong
	case value.TypeFloat:
		return colTypeFloat
	case value.TypeDouble:
		return colTypeDouble
	case value.TypeDecimal:
		return colTypeNewDecimal
	case value.TypeBoolean:
		return colTypeTiny
	case value.TypeDate:
		return colTypeDate
	case value.TypeTime:
		return colTypeTime
	case value.TypeTimestamp:
		return colTypeDateTime
	case value.TypeJSON:
		return colTypeJSON
	default:
		return colTypeVarString
	}
}

// columnDefPacket builds a ColumnDefinition41 packet body for one result
// column.
func columnDefPacket(col engine.ColumnDescriptor) []byte {
	b := make([]byte, 0, 64)
	b = putLenencString(b, "def")
	b = putLenencString(b, "") // schema
	b = putLenencString(b, "") // table
	b = putLenencString(b, "") // org_table
	b = putLenencString(b, col.Name)
	b = putLenencString(b, col.Name) // org_name
	b = append(b, 0x0c)              // length of fixed fields
	b = append(b, 0x2d, 0x00)        // character set: utf8mb4_general_ci (45)
	b = append(b, 0, 1, 0, 0)        // column length, placeholder
	b = append(b, mysqlColType(col.Type))
	b = append(b, 0, 0) // flags
	b = append(b, 0)    // decimals
	b = append(b, 0, 0) // filler
	return b
}

// textRowPacket builds one COM_QUERY result row, each value as a
// length-encoded string (or the NULL marker 0xfb), reusing
// value.Value.String()'s wire-ready text encoding.
func textRowPacket(row []value.Value) []byte {
	var b []byte
	for _, v := range row {
		if v.IsNull() {
			b = append(b, 0xfb)
			continue
		}
		b = putLenencString(b, v.String())
	}
	return b
}

// okPacket builds an OK packet (header 0x00) reporting affectedRows.
func okPacket(affectedRows uint64) []byte {
	b := []byte{0x00}
	b = putLenencInt(b, affectedRows)
	b = putLenencInt(b, 0) // last insert id
	b = append(b, byte(statusAutocommit), byte(statusAutocommit>>8))
	b = append(b, 0, 0) // warnings
	return b
}

func eofPacket() []byte {
	return []byte{0xfe, 0, 0, byte(statusAutocommit), byte(statusAutocommit >> 8)}
}

// mysqlErrorCodeOf maps a dberrors.Kind to a MySQL error number/SQLSTATE
// pair (spec §7).
func mysqlErrorCodeOf(kind dberrors.Kind) (code uint16, sqlstate string) {
	switch kind {
	case dberrors.KindParse:
		return 1064, "42000" // ER_PARSE_ERROR
	case dberrors.KindUnsupported:
		return 1235, "42000" // ER_NOT_SUPPORTED_YET
	case dberrors.KindUnknownIdentifier:
		return 1054, "42S22" // ER_BAD_FIELD_ERROR
	case dberrors.KindUnknownFunction:
		return 1305, "42000" // ER_SP_DOES_NOT_EXIST
	case dberrors.KindTypeMismatch:
		return 1366, "HY000" // ER_TRUNCATED_WRONG_VALUE
	case dberrors.KindConstraintViolation:
		return 1062, "23000" // ER_DUP_ENTRY
	case dberrors.KindProtocol:
		return 1047, "08S01" // ER_UNKNOWN_COM_ERROR
	case dberrors.KindAuth:
		return 1045, "28000" // ER_ACCESS_DENIED_ERROR
	case dberrors.KindQueryTimeout:
		return 1969, "HY000" // ER_STATEMENT_TIMEOUT
	default:
		return 2013, "HY000" // CR_SERVER_LOST
	}
}

// errPacket builds an ERR packet (header 0xff) from err.
func errPacket(err error) []byte {
	kind, _ := dberrors.KindOf(err)
	code, sqlstate := mysqlErrorCodeOf(kind)
	b := []byte{0xff, byte(code), byte(code >> 8)}
	b = append(b, '#')
	b = append(b, sqlstate...)
	b = append(b, err.Error()...)
	return b
}
