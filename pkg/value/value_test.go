package value

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, dt DataType, v Value, scale int32) Value {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, dt, v))
	got, err := Decode(bufio.NewReader(&buf), dt, v.IsNull(), scale)
	require.NoError(t, err)
	return got
}

func TestRoundTripInt32(t *testing.T) {
	v := Int32(-42)
	got := roundTrip(t, TypeInt32, v, 0)
	assert.True(t, v.Equal(got))
}

func TestRoundTripInt64(t *testing.T) {
	v := Int64(1 << 40)
	got := roundTrip(t, TypeInt64, v, 0)
	assert.True(t, v.Equal(got))
}

func TestRoundTripVarChar(t *testing.T) {
	v := VarChar("alice")
	got := roundTrip(t, TypeVarChar, v, 0)
	assert.True(t, v.Equal(got))
}

func TestRoundTripBool(t *testing.T) {
	for _, b := range []bool{true, false} {
		v := Bool(b)
		got := roundTrip(t, TypeBool, v, 0)
		assert.True(t, v.Equal(got))
	}
}

func TestRoundTripDecimal(t *testing.T) {
	d := decimal.RequireFromString("1234.5678")
	v := Decimal(d, 2)
	got := roundTrip(t, TypeDecimal, v, 2)
	assert.True(t, v.Equal(got))

	gotDec, err := got.AsDecimal()
	require.NoError(t, err)
	assert.Equal(t, "1234.57", gotDec.String())
}

func TestNullSkipsEncoding(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, TypeInt32, Null()))
	assert.Equal(t, 0, buf.Len())

	got, err := Decode(bufio.NewReader(&buf), TypeInt32, true, 0)
	require.NoError(t, err)
	assert.True(t, got.IsNull())
}

func TestAsWrongTypeErrors(t *testing.T) {
	v := Int32(1)
	_, err := v.AsString()
	assert.Error(t, err)
}

func TestEqualAcrossDifferentTypes(t *testing.T) {
	assert.False(t, Int32(1).Equal(Int64(1)))
}
