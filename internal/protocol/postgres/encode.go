package postgres

import (
	"strconv"
	"time"

	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/engine"
	"github.com/yamlbase/yamlbase/internal/value"
)

// Postgres type OIDs for the column types spec §3 names. Only the handful
// spec §4.6 requires binary codecs for (int4/int8/bool/date) round-trip
// through decodeParam; every other type is always sent/received as text.
const (
	oidBool      = 16
	oidInt8      = 20
	oidInt4      = 23
	oidText      = 25
	oidJSON      = 114
	oidDate      = 1082
	oidTime      = 1083
	oidVarchar   = 1043
	oidTimestamp = 1114
	oidUUID      = 2950
	oidDecimal   = 1700
	oidFloat4    = 700
	oidFloat8    = 701
)

func oidOf(t value.SqlType) int32 {
	switch t.Name {
	case value.TypeInteger:
		return oidInt4
	case value.TypeBigInt:
		return oidInt8
	case value.TypeFloat:
		return oidFloat4
	case value.TypeDouble:
		return oidFloat8
	case value.TypeDecimal:
		return oidDecimal
	case value.TypeVarchar:
		return oidVarchar
	case value.TypeText:
		return oidText
	case value.TypeBoolean:
		return oidBool
	case value.TypeDate:
		return oidDate
	case value.TypeTime:
		return oidTime
	case value.TypeTimestamp:
		return oidTimestamp
	case value.TypeUUID:
		return oidUUID
	case value.TypeJSON:
		return oidJSON
	default:
		return oidText
	}
}

// rowDescriptionBody builds a RowDescription ('T') message body naming
// cols, all fields reported in text format.
func rowDescriptionBody(cols []engine.ColumnDescriptor) []byte {
	b := &buf{}
	b.int16(int16(len(cols)))
	for _, c := range cols {
		b.cstring(c.Name)
		b.int32(0)              // table OID: none, these are ephemeral result columns
		b.int16(0)              // column attribute number
		b.int32(oidOf(c.Type))  // type OID
		b.int16(typeSize(c.Type))
		b.int32(-1) // type modifier
		b.int16(0)  // format code: text
	}
	return b.b
}

func typeSize(t value.SqlType) int16 {
	switch t.Name {
	case value.TypeBoolean:
		return 1
	case value.TypeInteger:
		return 4
	case value.TypeBigInt:
		return 8
	case value.TypeFloat:
		return 4
	case value.TypeDouble:
		return 8
	default:
		return -1
	}
}

// paramDescriptionBody builds a ParameterDescription ('t') message body
// for a prepared statement's declared parameter OIDs, defaulting any
// client-unspecified (0) OID to text.
func paramDescriptionBody(oids []int32) []byte {
	b := &buf{}
	b.int16(int16(len(oids)))
	for _, o := range oids {
		if o == 0 {
			o = oidText
		}
		b.int32(o)
	}
	return b.b
}

// dataRowBody builds a DataRow ('D') message body, one length-prefixed
// text value per column, -1 for NULL (spec §4.6: values always sent as
// text, matching value.Value.String()'s wire-ready encoding).
func dataRowBody(row []value.Value) []byte {
	b := &buf{}
	b.int16(int16(len(row)))
	for _, v := range row {
		if v.IsNull() {
			b.int32(-1)
			continue
		}
		s := v.String()
		b.int32(int32(len(s)))
		b.bytes([]byte(s))
	}
	return b.b
}

func cstringBody(s string) []byte {
	b := &buf{}
	b.cstring(s)
	return b.b
}

func authCleartextBody() []byte {
	b := &buf{}
	b.int32(3)
	return b.b
}

func authOkBody() []byte {
	b := &buf{}
	b.int32(0)
	return b.b
}

func paramStatusBody(key, val string) []byte {
	b := &buf{}
	b.cstring(key)
	b.cstring(val)
	return b.b
}

func backendKeyBody() []byte {
	b := &buf{}
	b.int32(0) // process ID: no OS process backs a connection here
	b.int32(0) // secret key: cancellation is not implemented
	return b.b
}

// sqlstateOf maps a dberrors.Kind to a SQLSTATE error code (spec §7).
func sqlstateOf(kind dberrors.Kind) string {
	switch kind {
	case dberrors.KindParse:
		return "42601" // syntax_error
	case dberrors.KindUnsupported:
		return "0A000" // feature_not_supported
	case dberrors.KindUnknownIdentifier:
		return "42703" // undefined_column
	case dberrors.KindUnknownFunction:
		return "42883" // undefined_function
	case dberrors.KindTypeMismatch:
		return "42804" // datatype_mismatch
	case dberrors.KindConstraintViolation:
		return "23505" // unique_violation
	case dberrors.KindProtocol:
		return "08P01" // protocol_violation
	case dberrors.KindAuth:
		return "28P01" // invalid_password
	case dberrors.KindQueryTimeout:
		return "57014" // query_canceled
	default:
		return "58000" // system_error
	}
}

// errorResponseBody builds an ErrorResponse ('E') message body from err.
func errorResponseBody(err error) []byte {
	kind, _ := dberrors.KindOf(err)
	b := &buf{}
	b.byte1('S').cstring("ERROR")
	b.byte1('C').cstring(sqlstateOf(kind))
	b.byte1('M').cstring(err.Error())
	b.byte1(0)
	return b.b
}

var postgresEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// decodeParam turns a bound parameter's wire bytes into a value.Value.
// format 0 is text, format 1 is binary; oid is the type the client
// declared for this parameter in Parse (0 if unspecified, treated as
// text/unknown and passed through as a string literal).
func decodeParam(raw []byte, format int16, oid int32) (value.Value, error) {
	if format == 0 {
		return decodeTextParam(string(raw), oid)
	}
	return decodeBinaryParam(raw, oid)
}

func decodeTextParam(s string, oid int32) (value.Value, error) {
	switch oid {
	case oidBool:
		return value.Boolean(s == "t" || s == "true" || s == "1"), nil
	case oidInt4, oidInt8:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return value.Value{}, dberrors.Wrap(dberrors.KindTypeMismatch, err, "parsing integer parameter %q", s)
		}
		return value.Integer(n), nil
	case oidDate:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return value.Value{}, dberrors.Wrap(dberrors.KindTypeMismatch, err, "parsing date parameter %q", s)
		}
		return value.Date(t), nil
	default:
		return value.Text(s), nil
	}
}

func decodeBinaryParam(raw []byte, oid int32) (value.Value, error) {
	switch oid {
	case oidBool:
		if len(raw) != 1 {
			return value.Value{}, dberrors.New(dberrors.KindProtocol, "malformed binary bool parameter")
		}
		return value.Boolean(raw[0] != 0), nil
	case oidInt4:
		if len(raw) != 4 {
			return value.Value{}, dberrors.New(dberrors.KindProtocol, "malformed binary int4 parameter")
		}
		return value.Integer(int64(int32(be32(raw)))), nil
	case oidInt8:
		if len(raw) != 8 {
			return value.Value{}, dberrors.New(dberrors.KindProtocol, "malformed binary int8 parameter")
		}
		return value.Integer(int64(be64(raw))), nil
	case oidDate:
		if len(raw) != 4 {
			return value.Value{}, dberrors.New(dberrors.KindProtocol, "malformed binary date parameter")
		}
		days := int32(be32(raw))
		return value.Date(postgresEpoch.AddDate(0, 0, int(days))), nil
	default:
		return value.Text(string(raw)), nil
	}
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func be64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
