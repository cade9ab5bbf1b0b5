package value

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCompareNumericTriad(t *testing.T) {
	i := Integer(3)
	f := Float(3.0)
	d := Dec(decimal.NewFromInt(3))

	c, ok := Compare(i, f)
	assert.True(t, ok)
	assert.Equal(t, 0, c)

	c, ok = Compare(i, d)
	assert.True(t, ok)
	assert.Equal(t, 0, c)

	c, ok = Compare(Integer(2), Integer(5))
	assert.True(t, ok)
	assert.Equal(t, -1, c)
}

func TestCompareNullIsUnknown(t *testing.T) {
	_, ok := Compare(Null(), Integer(1))
	assert.False(t, ok)

	_, ok = Compare(Null(), Null())
	assert.False(t, ok)

	assert.False(t, Equal(Null(), Null()))
}

func TestEqualText(t *testing.T) {
	assert.True(t, Equal(Text("a"), Text("a")))
	assert.False(t, Equal(Text("a"), Text("b")))
}

func TestSqlTypeString(t *testing.T) {
	vc := SqlType{Name: TypeVarchar, Length: 32}
	assert.Equal(t, "VARCHAR(32)", vc.String())

	dec := SqlType{Name: TypeDecimal, Precision: 10, Scale: 2}
	assert.Equal(t, "DECIMAL(10,2)", dec.String())

	assert.True(t, dec.InTriad())
	assert.False(t, vc.InTriad())
}
