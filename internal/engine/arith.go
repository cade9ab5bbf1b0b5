package engine

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/value"
)

func parseIntLiteral(s string) (value.Value, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return value.Value{}, dberrors.Wrap(dberrors.KindParse, err, "parsing integer literal %q", s)
	}
	return value.Integer(n), nil
}

func parseFloatLiteral(s string) (value.Value, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return value.Value{}, dberrors.Wrap(dberrors.KindParse, err, "parsing float literal %q", s)
	}
	return value.Float(f), nil
}

// arith applies op over the numeric triad (spec §3) and date arithmetic
// (spec §4.3: date ± integer shifts by days, date − date yields integer
// days; timestamp ± integer also shifts by days, per the day-granularity
// Open Question resolution recorded in DESIGN.md).
func arith(left, right value.Value, op byte) (value.Value, error) {
	if left.IsNull() || right.IsNull() {
		return value.Null(), nil
	}

	if left.Kind == value.KindDate && right.IsNumeric() && (op == '+' || op == '-') {
		days := int(right.AsDecimal().IntPart())
		if op == '-' {
			days = -days
		}
		return value.Date(left.Date.AddDate(0, 0, days)), nil
	}
	if right.Kind == value.KindDate && left.IsNumeric() && op == '+' {
		days := int(left.AsDecimal().IntPart())
		return value.Date(right.Date.AddDate(0, 0, days)), nil
	}
	if left.Kind == value.KindDate && right.Kind == value.KindDate && op == '-' {
		days := int(left.Date.Sub(right.Date).Hours() / 24)
		return value.Integer(int64(days)), nil
	}
	if left.Kind == value.KindTimestamp && right.IsNumeric() && (op == '+' || op == '-') {
		days := int(right.AsDecimal().IntPart())
		if op == '-' {
			days = -days
		}
		return value.Timestamp(left.Stamp.AddDate(0, 0, days)), nil
	}

	if !left.IsNumeric() || !right.IsNumeric() {
		return value.Value{}, dberrors.New(dberrors.KindTypeMismatch, "arithmetic requires numeric operands")
	}

	ld, rd := left.AsDecimal(), right.AsDecimal()
	var result decimal.Decimal
	switch op {
	case '+':
		result = ld.Add(rd)
	case '-':
		result = ld.Sub(rd)
	case '*':
		result = ld.Mul(rd)
	case '/':
		if rd.IsZero() {
			return value.Value{}, dberrors.New(dberrors.KindTypeMismatch, "division by zero")
		}
		result = ld.Div(rd)
	case '%':
		if rd.IsZero() {
			return value.Value{}, dberrors.New(dberrors.KindTypeMismatch, "division by zero")
		}
		result = ld.Mod(rd)
	}

	if left.Kind == value.KindInteger && right.Kind == value.KindInteger && op != '/' {
		return value.Integer(result.IntPart()), nil
	}
	return value.Dec(result), nil
}

func compareBool(left, right value.Value, pred func(int) bool) (value.Value, error) {
	c, ok := value.Compare(left, right)
	if !ok {
		return value.Null(), nil
	}
	return value.Boolean(pred(c)), nil
}

var (
	likeCacheMu sync.Mutex
	likeCache   = make(map[string]*regexp.Regexp)
)

// compileLikePattern translates a SQL LIKE pattern (% any run, _ one char,
// backslash escapes \%, \_, \\) into an anchored regexp, memoized per
// pattern text since the same pattern is typically evaluated per row.
func compileLikePattern(pattern string) *regexp.Regexp {
	likeCacheMu.Lock()
	defer likeCacheMu.Unlock()
	if re, ok := likeCache[pattern]; ok {
		return re
	}

	var b strings.Builder
	b.WriteString("(?s)^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\\':
			if i+1 < len(runes) {
				i++
				b.WriteString(regexp.QuoteMeta(string(runes[i])))
			}
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re := regexp.MustCompile(b.String())
	likeCache[pattern] = re
	return re
}
