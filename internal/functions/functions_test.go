package functions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yamlbase/yamlbase/internal/value"
)

func TestUpperLowerNullPropagation(t *testing.T) {
	upper, _ := Lookup("UPPER")
	out, err := upper([]value.Value{value.Text("abc")})
	assert.NoError(t, err)
	assert.Equal(t, "ABC", out.Text)

	out, err = upper([]value.Value{value.Null()})
	assert.NoError(t, err)
	assert.True(t, out.IsNull())

	lower, _ := Lookup("LOWER")
	out, err = lower([]value.Value{value.Text("ABC")})
	assert.NoError(t, err)
	assert.Equal(t, "abc", out.Text)

	out, err = lower([]value.Value{value.Null()})
	assert.NoError(t, err)
	assert.True(t, out.IsNull())
}

func TestCoalesceFirstNonNull(t *testing.T) {
	fn, _ := Lookup("coalesce")
	out, err := fn([]value.Value{value.Null(), value.Null(), value.Integer(7)})
	assert.NoError(t, err)
	assert.Equal(t, int64(7), out.Integer)
}

func TestAddMonthsClampsToLastDay(t *testing.T) {
	fn, _ := Lookup("ADD_MONTHS")
	jan31 := value.Date(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	out, err := fn([]value.Value{jan31, value.Integer(1)})
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), out.Date)
}

func TestLastDay(t *testing.T) {
	fn, _ := Lookup("last_day")
	feb := value.Date(time.Date(2023, 2, 10, 0, 0, 0, 0, time.UTC))
	out, err := fn([]value.Value{feb})
	assert.NoError(t, err)
	assert.Equal(t, 28, out.Date.Day())
}

func TestExtract(t *testing.T) {
	fn, _ := Lookup("extract")
	ts := value.Timestamp(time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC))
	out, err := fn([]value.Value{value.Text("MONTH"), ts})
	assert.NoError(t, err)
	assert.Equal(t, int64(6), out.Integer)
}

func TestGreatestLeast(t *testing.T) {
	g, _ := Lookup("greatest")
	out, err := g([]value.Value{value.Integer(1), value.Integer(9), value.Integer(4)})
	assert.NoError(t, err)
	assert.Equal(t, int64(9), out.Integer)

	l, _ := Lookup("least")
	out, err = l([]value.Value{value.Integer(1), value.Integer(9), value.Integer(4)})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), out.Integer)
}

func TestUnknownFunctionNotFound(t *testing.T) {
	_, ok := Lookup("frobnicate")
	assert.False(t, ok)
}
