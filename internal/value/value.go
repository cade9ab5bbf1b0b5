// Package value implements the tagged Value variant that flows through
// storage, the expression evaluator, and both wire protocols, plus the
// SqlType column-type descriptor.
package value

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind tags which field of a Value is meaningful.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindDecimal
	KindText
	KindBytes
	KindBoolean
	KindDate
	KindTime
	KindTimestamp
	KindUUID
	KindJSON
)

// Value is a tagged variant over every scalar type the engine understands.
// Only the field matching Kind is meaningful; the rest are zero.
type Value struct {
	Kind    Kind
	Integer int64
	Float   float64
	Decimal decimal.Decimal
	Text    string // also backs KindJSON (stored as raw text)
	Bytes   []byte
	Boolean bool
	Date    time.Time // Y/M/D only, UTC, time-of-day zeroed
	Time    time.Duration
	Stamp   time.Time // no zone: stored and compared in UTC
	UUID    uuid.UUID
}

func Null() Value                { return Value{Kind: KindNull} }
func Integer(v int64) Value      { return Value{Kind: KindInteger, Integer: v} }
func Float(v float64) Value      { return Value{Kind: KindFloat, Float: v} }
func Dec(v decimal.Decimal) Value { return Value{Kind: KindDecimal, Decimal: v} }
func Text(v string) Value        { return Value{Kind: KindText, Text: v} }
func Bytes(v []byte) Value       { return Value{Kind: KindBytes, Bytes: v} }
func Boolean(v bool) Value       { return Value{Kind: KindBoolean, Boolean: v} }
func Date(v time.Time) Value     { return Value{Kind: KindDate, Date: v} }
func Time(v time.Duration) Value { return Value{Kind: KindTime, Time: v} }
func Timestamp(v time.Time) Value { return Value{Kind: KindTimestamp, Stamp: v} }
func UUID(v uuid.UUID) Value     { return Value{Kind: KindUUID, UUID: v} }
func JSON(v string) Value        { return Value{Kind: KindJSON, Text: v} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsNumeric reports whether v participates in the (integer, float, decimal)
// numeric triad per spec §3.
func (v Value) IsNumeric() bool {
	return v.Kind == KindInteger || v.Kind == KindFloat || v.Kind == KindDecimal
}

// AsDecimal widens any numeric-triad value to decimal.Decimal for
// precision-preserving arithmetic.
func (v Value) AsDecimal() decimal.Decimal {
	switch v.Kind {
	case KindInteger:
		return decimal.NewFromInt(v.Integer)
	case KindFloat:
		return decimal.NewFromFloat(v.Float)
	case KindDecimal:
		return v.Decimal
	default:
		return decimal.Zero
	}
}

// AsFloat widens any numeric-triad value to float64.
func (v Value) AsFloat() float64 {
	switch v.Kind {
	case KindInteger:
		return float64(v.Integer)
	case KindFloat:
		return v.Float
	case KindDecimal:
		f, _ := v.Decimal.Float64()
		return f
	default:
		return 0
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return fmt.Sprintf("%d", v.Integer)
	case KindFloat:
		return fmt.Sprintf("%v", v.Float)
	case KindDecimal:
		return v.Decimal.String()
	case KindText, KindJSON:
		return v.Text
	case KindBytes:
		return string(v.Bytes)
	case KindBoolean:
		if v.Boolean {
			return "t"
		}
		return "f"
	case KindDate:
		return v.Date.Format("2006-01-02")
	case KindTime:
		return formatDuration(v.Time)
	case KindTimestamp:
		return v.Stamp.Format("2006-01-02 15:04:05")
	case KindUUID:
		return v.UUID.String()
	default:
		return ""
	}
}

func formatDuration(d time.Duration) string {
	total := int64(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Compare orders two values of the same logical family. NULL compares as
// unknown: ok is false whenever either side is NULL, matching three-valued
// comparison semantics; callers translate "unknown" into their own NULL
// handling.
func Compare(a, b Value) (cmp int, ok bool) {
	if a.IsNull() || b.IsNull() {
		return 0, false
	}
	if a.IsNumeric() && b.IsNumeric() {
		ad, bd := a.AsDecimal(), b.AsDecimal()
		return ad.Cmp(bd), true
	}
	switch a.Kind {
	case KindText, KindJSON:
		return compareStrings(a.Text, b.Text), true
	case KindBytes:
		return compareBytes(a.Bytes, b.Bytes), true
	case KindBoolean:
		return compareBool(a.Boolean, b.Boolean), true
	case KindDate:
		return compareTime(a.Date, b.Date), true
	case KindTime:
		return compareDuration(a.Time, b.Time), true
	case KindTimestamp:
		return compareTime(a.Stamp, b.Stamp), true
	case KindUUID:
		return compareStrings(a.UUID.String(), b.UUID.String()), true
	default:
		return 0, false
	}
}

// Equal reports whether a and b compare equal; NULL never equals anything,
// including another NULL, matching SQL equality semantics.
func Equal(a, b Value) bool {
	c, ok := Compare(a, b)
	return ok && c == 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return compareStrings(fmt.Sprint(len(a)), fmt.Sprint(len(b)))
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func compareDuration(a, b time.Duration) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
