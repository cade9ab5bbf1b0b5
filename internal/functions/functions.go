// Package functions is the built-in scalar function library, dispatched
// by case-folded name from the expression evaluator (spec §4.5).
package functions

import (
	"strings"
	"time"

	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/value"
)

// Func is a built-in scalar function. args have already been evaluated;
// Func validates arity/types itself and returns a typed error on mismatch.
type Func func(args []value.Value) (value.Value, error)

var builtins = map[string]Func{
	"upper":             upperFn,
	"lower":             lowerFn,
	"length":            lengthFn,
	"substring":         substringFn,
	"trim":              trimFn,
	"concat":            concatFn,
	"coalesce":          coalesceFn,
	"nullif":            nullifFn,
	"to_char":           toCharFn,
	"abs":               absFn,
	"round":             roundFn,
	"ceil":              ceilFn,
	"floor":             floorFn,
	"mod":               modFn,
	"current_date":      currentDateFn,
	"current_timestamp": currentTimestampFn,
	"current_time":      currentTimeFn,
	"date_trunc":        dateTruncFn,
	"add_months":        addMonthsFn,
	"last_day":          lastDayFn,
	"position":          positionFn,
	"greatest":          greatestFn,
	"least":             leastFn,
	"extract":           extractFn,
}

// Lookup resolves name (case-folded) against the built-in table.
func Lookup(name string) (Func, bool) {
	f, ok := builtins[strings.ToLower(name)]
	return f, ok
}

func arity(name string, args []value.Value, n int) error {
	if len(args) != n {
		return dberrors.New(dberrors.KindTypeMismatch, "%s expects %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func upperFn(args []value.Value) (value.Value, error) {
	if err := arity("UPPER", args, 1); err != nil {
		return value.Value{}, err
	}
	if args[0].IsNull() {
		return value.Null(), nil
	}
	return value.Text(strings.ToUpper(args[0].Text)), nil
}

func lowerFn(args []value.Value) (value.Value, error) {
	if err := arity("LOWER", args, 1); err != nil {
		return value.Value{}, err
	}
	if args[0].IsNull() {
		return value.Null(), nil
	}
	return value.Text(strings.ToLower(args[0].Text)), nil
}

func lengthFn(args []value.Value) (value.Value, error) {
	if err := arity("LENGTH", args, 1); err != nil {
		return value.Value{}, err
	}
	if args[0].IsNull() {
		return value.Null(), nil
	}
	return value.Integer(int64(len([]rune(args[0].Text)))), nil
}

// substringFn implements SUBSTRING(s FROM a FOR b); the front-end desugars
// the FROM/FOR keywords into positional arguments (s, from, for).
func substringFn(args []value.Value) (value.Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return value.Value{}, dberrors.New(dberrors.KindTypeMismatch, "SUBSTRING expects 2 or 3 arguments, got %d", len(args))
	}
	if args[0].IsNull() {
		return value.Null(), nil
	}
	runes := []rune(args[0].Text)
	from := int(args[1].Integer) - 1
	if from < 0 {
		from = 0
	}
	if from > len(runes) {
		from = len(runes)
	}
	end := len(runes)
	if len(args) == 3 {
		length := int(args[2].Integer)
		if length < 0 {
			length = 0
		}
		if from+length < end {
			end = from + length
		}
	}
	return value.Text(string(runes[from:end])), nil
}

func trimFn(args []value.Value) (value.Value, error) {
	if err := arity("TRIM", args, 1); err != nil {
		return value.Value{}, err
	}
	if args[0].IsNull() {
		return value.Null(), nil
	}
	return value.Text(strings.TrimSpace(args[0].Text)), nil
}

func concatFn(args []value.Value) (value.Value, error) {
	var b strings.Builder
	for _, a := range args {
		if a.IsNull() {
			continue
		}
		b.WriteString(a.String())
	}
	return value.Text(b.String()), nil
}

func coalesceFn(args []value.Value) (value.Value, error) {
	for _, a := range args {
		if !a.IsNull() {
			return a, nil
		}
	}
	return value.Null(), nil
}

func nullifFn(args []value.Value) (value.Value, error) {
	if err := arity("NULLIF", args, 2); err != nil {
		return value.Value{}, err
	}
	if value.Equal(args[0], args[1]) {
		return value.Null(), nil
	}
	return args[0], nil
}

// toCharFn supports the date/timestamp formatting subset (YYYY, MM, DD,
// HH24, MI, SS) that the translator's FORMAT->TO_CHAR rewrite relies on.
func toCharFn(args []value.Value) (value.Value, error) {
	if err := arity("TO_CHAR", args, 2); err != nil {
		return value.Value{}, err
	}
	if args[0].IsNull() {
		return value.Null(), nil
	}
	var t time.Time
	switch args[0].Kind {
	case value.KindDate:
		t = args[0].Date
	case value.KindTimestamp:
		t = args[0].Stamp
	default:
		return value.Value{}, dberrors.New(dberrors.KindTypeMismatch, "TO_CHAR expects a date or timestamp")
	}
	layout := strings.NewReplacer(
		"YYYY", "2006", "MM", "01", "DD", "02",
		"HH24", "15", "MI", "04", "SS", "05",
	).Replace(args[1].Text)
	return value.Text(t.Format(layout)), nil
}

func absFn(args []value.Value) (value.Value, error) {
	if err := arity("ABS", args, 1); err != nil {
		return value.Value{}, err
	}
	if args[0].IsNull() {
		return value.Null(), nil
	}
	return value.Dec(args[0].AsDecimal().Abs()), nil
}

func roundFn(args []value.Value) (value.Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return value.Value{}, dberrors.New(dberrors.KindTypeMismatch, "ROUND expects 1 or 2 arguments, got %d", len(args))
	}
	if args[0].IsNull() {
		return value.Null(), nil
	}
	places := int32(0)
	if len(args) == 2 {
		places = int32(args[1].Integer)
	}
	return value.Dec(args[0].AsDecimal().Round(places)), nil
}

func ceilFn(args []value.Value) (value.Value, error) {
	if err := arity("CEIL", args, 1); err != nil {
		return value.Value{}, err
	}
	if args[0].IsNull() {
		return value.Null(), nil
	}
	return value.Dec(args[0].AsDecimal().Ceil()), nil
}

func floorFn(args []value.Value) (value.Value, error) {
	if err := arity("FLOOR", args, 1); err != nil {
		return value.Value{}, err
	}
	if args[0].IsNull() {
		return value.Null(), nil
	}
	return value.Dec(args[0].AsDecimal().Floor()), nil
}

func modFn(args []value.Value) (value.Value, error) {
	if err := arity("MOD", args, 2); err != nil {
		return value.Value{}, err
	}
	if args[0].IsNull() || args[1].IsNull() {
		return value.Null(), nil
	}
	return value.Dec(args[0].AsDecimal().Mod(args[1].AsDecimal())), nil
}

func currentDateFn(args []value.Value) (value.Value, error) {
	if err := arity("CURRENT_DATE", args, 0); err != nil {
		return value.Value{}, err
	}
	now := time.Now().UTC()
	return value.Date(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)), nil
}

func currentTimestampFn(args []value.Value) (value.Value, error) {
	if err := arity("CURRENT_TIMESTAMP", args, 0); err != nil {
		return value.Value{}, err
	}
	return value.Timestamp(time.Now().UTC()), nil
}

func currentTimeFn(args []value.Value) (value.Value, error) {
	if err := arity("CURRENT_TIME", args, 0); err != nil {
		return value.Value{}, err
	}
	now := time.Now().UTC()
	return value.Time(time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second), nil
}

// dateTruncFn implements DATE_TRUNC(unit, x) for the units the translator
// emits (month/day/year); other units fall back to day.
func dateTruncFn(args []value.Value) (value.Value, error) {
	if err := arity("DATE_TRUNC", args, 2); err != nil {
		return value.Value{}, err
	}
	if args[1].IsNull() {
		return value.Null(), nil
	}
	var t time.Time
	switch args[1].Kind {
	case value.KindDate:
		t = args[1].Date
	case value.KindTimestamp:
		t = args[1].Stamp
	default:
		return value.Value{}, dberrors.New(dberrors.KindTypeMismatch, "DATE_TRUNC expects a date or timestamp")
	}
	switch strings.ToLower(args[0].Text) {
	case "year":
		t = time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	case "month":
		t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	if args[1].Kind == value.KindTimestamp {
		return value.Timestamp(t), nil
	}
	return value.Date(t), nil
}

// addMonthsFn shifts d by n months, clamping the day to the last day of
// the target month (spec §4.5: "the result's day is min(source_day,
// last_day_of_target_month)").
func addMonthsFn(args []value.Value) (value.Value, error) {
	if err := arity("ADD_MONTHS", args, 2); err != nil {
		return value.Value{}, err
	}
	if args[0].IsNull() {
		return value.Null(), nil
	}
	d := args[0].Date
	n := int(args[1].Integer)

	targetFirst := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	lastDayOfTarget := targetFirst.AddDate(0, 1, -1).Day()
	day := d.Day()
	if day > lastDayOfTarget {
		day = lastDayOfTarget
	}
	return value.Date(time.Date(targetFirst.Year(), targetFirst.Month(), day, 0, 0, 0, 0, time.UTC)), nil
}

func lastDayFn(args []value.Value) (value.Value, error) {
	if err := arity("LAST_DAY", args, 1); err != nil {
		return value.Value{}, err
	}
	if args[0].IsNull() {
		return value.Null(), nil
	}
	d := args[0].Date
	firstOfNext := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return value.Date(firstOfNext.AddDate(0, 0, -1)), nil
}

func positionFn(args []value.Value) (value.Value, error) {
	if err := arity("POSITION", args, 2); err != nil {
		return value.Value{}, err
	}
	if args[0].IsNull() || args[1].IsNull() {
		return value.Null(), nil
	}
	idx := strings.Index(args[1].Text, args[0].Text)
	if idx < 0 {
		return value.Integer(0), nil
	}
	return value.Integer(int64(len([]rune(args[1].Text[:idx]))) + 1), nil
}

// extractFn implements EXTRACT(field FROM x); the front-end desugars the
// field keyword into a text literal first argument.
func extractFn(args []value.Value) (value.Value, error) {
	if err := arity("EXTRACT", args, 2); err != nil {
		return value.Value{}, err
	}
	if args[1].IsNull() {
		return value.Null(), nil
	}
	var t time.Time
	switch args[1].Kind {
	case value.KindDate:
		t = args[1].Date
	case value.KindTimestamp:
		t = args[1].Stamp
	default:
		return value.Value{}, dberrors.New(dberrors.KindTypeMismatch, "EXTRACT expects a date or timestamp")
	}
	switch strings.ToUpper(args[0].Text) {
	case "YEAR":
		return value.Integer(int64(t.Year())), nil
	case "MONTH":
		return value.Integer(int64(t.Month())), nil
	case "DAY":
		return value.Integer(int64(t.Day())), nil
	case "HOUR":
		return value.Integer(int64(t.Hour())), nil
	case "MINUTE":
		return value.Integer(int64(t.Minute())), nil
	case "SECOND":
		return value.Integer(int64(t.Second())), nil
	default:
		return value.Value{}, dberrors.New(dberrors.KindUnsupported, "unsupported EXTRACT field %q", args[0].Text)
	}
}

func greatestFn(args []value.Value) (value.Value, error) {
	return extremum(args, 1)
}

func leastFn(args []value.Value) (value.Value, error) {
	return extremum(args, -1)
}

func extremum(args []value.Value, want int) (value.Value, error) {
	if len(args) == 0 {
		return value.Value{}, dberrors.New(dberrors.KindTypeMismatch, "GREATEST/LEAST expects at least 1 argument")
	}
	best := value.Null()
	for _, a := range args {
		if a.IsNull() {
			continue
		}
		if best.IsNull() {
			best = a
			continue
		}
		if c, ok := value.Compare(a, best); ok && c == want {
			best = a
		}
	}
	return best, nil
}
