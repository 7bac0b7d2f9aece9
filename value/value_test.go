package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderingAcrossKinds(t *testing.T) {
	n := Number(1000000)
	s := String("a")
	a := Array([]Data{Number(1)})

	assert.True(t, n.Less(s))
	assert.True(t, s.Less(a))
	assert.True(t, a.Less(Any))
	assert.False(t, Any.Less(n))
}

func TestNumberOrdering(t *testing.T) {
	assert.True(t, Number(1).Less(Number(2)))
	assert.True(t, Number(-1).Less(Number(0)))
	assert.True(t, Number(math.Inf(-1)).Less(Number(0)))
	assert.True(t, Number(0).Less(Number(math.Inf(1))))
}

func TestStringAndArrayOrdering(t *testing.T) {
	assert.True(t, String("abc").Less(String("abd")))
	assert.True(t, Array([]Data{Number(1)}).Less(Array([]Data{Number(1), Number(2)})))
	assert.True(t, Array([]Data{Number(1)}).Less(Array([]Data{Number(2)})))
}

func TestAnyEqualityIsWildcardOnly(t *testing.T) {
	assert.True(t, Any.Equal(Number(42)))
	assert.True(t, Number(42).Equal(Any))
	assert.True(t, Any.Equal(Any))

	// StrictEqual (used for Truth dedup) treats two Anys as equal to each
	// other, but never equal to a concrete value.
	assert.True(t, Any.StrictEqual(Any))
	assert.False(t, Any.StrictEqual(Number(42)))
	assert.False(t, Number(42).StrictEqual(Any))
}

func TestStructuralEquality(t *testing.T) {
	assert.True(t, Number(1).StrictEqual(Number(1)))
	assert.False(t, Number(1).StrictEqual(Number(2)))
	assert.True(t, String("x").StrictEqual(String("x")))
	assert.True(t, Array([]Data{Number(1), String("a")}).StrictEqual(Array([]Data{Number(1), String("a")})))
	assert.False(t, Number(1).StrictEqual(String("1")))
}

func TestNaNHashIsCanonicalAcrossPayloads(t *testing.T) {
	nan1 := Number(math.NaN())
	nan2 := Number(math.Float64frombits(math.Float64bits(math.NaN()) ^ 1))
	require.True(t, math.IsNaN(nan2.num))

	h1, err := nan1.Hash()
	require.NoError(t, err)
	h2, err := nan2.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHashStableAndStructural(t *testing.T) {
	a := Array([]Data{Number(1), String("x")})
	b := Array([]Data{Number(1), String("x")})
	c := Array([]Data{Number(1), String("y")})

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	hc, err := c.Hash()
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.NotEqual(t, ha, hc)
}

func TestPrettyPrint(t *testing.T) {
	assert.Equal(t, "_", Any.String())
	assert.Equal(t, `"hola"`, String("hola").String())
	assert.Equal(t, "[1,2]", Array([]Data{Number(1), Number(2)}).String())
}
