package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadalog/deduct/value"
)

func TestAddForward(t *testing.T) {
	r, err := Add.Forward(value.Number(1), value.Number(2))
	require.NoError(t, err)
	assert.True(t, r.StrictEqual(value.Number(3)))

	r, err = Add.Forward(value.String("foo"), value.String("bar"))
	require.NoError(t, err)
	assert.True(t, r.StrictEqual(value.String("foobar")))

	r, err = Add.Forward(value.Array([]value.Data{value.Number(1)}), value.Array([]value.Data{value.Number(2)}))
	require.NoError(t, err)
	assert.True(t, r.StrictEqual(value.Array([]value.Data{value.Number(1), value.Number(2)})))
}

func TestAddIncompatible(t *testing.T) {
	_, err := Add.Forward(value.Number(1), value.String("x"))
	assert.Error(t, err)
}

func TestAddReverse(t *testing.T) {
	a, err := Add.Reverse1(value.Number(2), value.Number(5))
	require.NoError(t, err)
	assert.True(t, a.StrictEqual(value.Number(3)))

	b, err := Add.Reverse2(value.Number(3), value.Number(5))
	require.NoError(t, err)
	assert.True(t, b.StrictEqual(value.Number(2)))
}

func TestSubForwardAndReverse(t *testing.T) {
	r, err := Sub.Forward(value.Number(5), value.Number(2))
	require.NoError(t, err)
	assert.True(t, r.StrictEqual(value.Number(3)))

	a, err := Sub.Reverse1(value.Number(2), value.Number(3))
	require.NoError(t, err)
	assert.True(t, a.StrictEqual(value.Number(5)))

	b, err := Sub.Reverse2(value.Number(5), value.Number(3))
	require.NoError(t, err)
	assert.True(t, b.StrictEqual(value.Number(2)))
}

func TestMulForwardAndReverse(t *testing.T) {
	r, err := Mul.Forward(value.Number(3), value.Number(4))
	require.NoError(t, err)
	assert.True(t, r.StrictEqual(value.Number(12)))

	a, err := Mul.Reverse1(value.Number(4), value.Number(12))
	require.NoError(t, err)
	assert.True(t, a.StrictEqual(value.Number(3)))

	_, err = Mul.Reverse1(value.Number(0), value.Number(12))
	assert.Error(t, err)
}

func TestDivForwardAndReverse(t *testing.T) {
	r, err := Div.Forward(value.Number(12), value.Number(4))
	require.NoError(t, err)
	assert.True(t, r.StrictEqual(value.Number(3)))

	b, err := Div.Reverse2(value.Number(12), value.Number(3))
	require.NoError(t, err)
	assert.True(t, b.StrictEqual(value.Number(4)))

	_, err = Div.Reverse2(value.Number(12), value.Number(0))
	assert.Error(t, err)
}

func TestArrayLiftMismatchedLength(t *testing.T) {
	_, err := Sub.Forward(
		value.Array([]value.Data{value.Number(1), value.Number(2)}),
		value.Array([]value.Data{value.Number(1)}),
	)
	assert.Error(t, err)
}

func TestArrayElementwiseLift(t *testing.T) {
	r, err := Sub.Forward(
		value.Array([]value.Data{value.Number(5), value.Number(9)}),
		value.Array([]value.Data{value.Number(1), value.Number(2)}),
	)
	require.NoError(t, err)
	assert.True(t, r.StrictEqual(value.Array([]value.Data{value.Number(4), value.Number(7)})))
}

func TestByName(t *testing.T) {
	op, err := ByName("+")
	require.NoError(t, err)
	assert.Equal(t, "+", op.String())

	_, err = ByName("%")
	assert.Error(t, err)
}
