package deduct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadalog/deduct/value"
)

func TestVarContextExtendAgrees(t *testing.T) {
	a := VarContext{}.Set("x", value.Number(1))
	b := VarContext{}.Set("y", value.Number(2))
	merged, ok := a.Extend(b)
	require.True(t, ok)
	x, _ := merged.Get("x")
	y, _ := merged.Get("y")
	assert.True(t, x.StrictEqual(value.Number(1)))
	assert.True(t, y.StrictEqual(value.Number(2)))
}

func TestVarContextExtendDisagrees(t *testing.T) {
	a := VarContext{}.Set("x", value.Number(1))
	b := VarContext{}.Set("x", value.Number(2))
	_, ok := a.Extend(b)
	assert.False(t, ok)
}

func TestVarContextExtendAnyAgrees(t *testing.T) {
	a := VarContext{}.Set("x", value.Any)
	b := VarContext{}.Set("x", value.Number(2))
	merged, ok := a.Extend(b)
	require.True(t, ok)
	x, _ := merged.Get("x")
	assert.True(t, x.Equal(value.Number(2)))
}

func TestUniverseOrUnionsAndCompletenessOrs(t *testing.T) {
	u1 := SingletonUniverse(VarContext{}.Set("x", value.Number(1)))
	u2 := SingletonUniverse(VarContext{}.Set("x", value.Number(2)))
	u2.completeness = Unknown

	result := u1.Or(u2)
	assert.Equal(t, 2, result.Len())
	assert.True(t, result.Completeness().someExtraInfo)
	assert.True(t, result.Completeness().someMissingInfo)
}

func TestUniverseAndCompleteMerges(t *testing.T) {
	u1 := SingletonUniverse(VarContext{}.Set("x", value.Number(1)))
	u2 := SingletonUniverse(VarContext{}.Set("y", value.Number(2)))

	result := u1.And(u2)
	require.Equal(t, 1, result.Len())
	ctx := result.All()[0]
	x, _ := ctx.Get("x")
	y, _ := ctx.Get("y")
	assert.True(t, x.StrictEqual(value.Number(1)))
	assert.True(t, y.StrictEqual(value.Number(2)))
	assert.False(t, result.Completeness().someMissingInfo)
}

func TestUniverseAndDropsDisagreement(t *testing.T) {
	u1 := SingletonUniverse(VarContext{}.Set("x", value.Number(1)))
	u2 := SingletonUniverse(VarContext{}.Set("x", value.Number(2)))

	result := u1.And(u2)
	assert.Equal(t, 0, result.Len())
}

func TestUniverseAndIncompleteUnionsInstead(t *testing.T) {
	u1 := SingletonUniverse(VarContext{}.Set("x", value.Number(1)))
	u1.completeness = Unknown
	u2 := SingletonUniverse(VarContext{}.Set("y", value.Number(2)))

	result := u1.And(u2)
	// One side incomplete: both operands' contexts are unioned rather than
	// merged pairwise.
	assert.Equal(t, 2, result.Len())
	assert.True(t, result.contains(VarContext{}.Set("x", value.Number(1))))
	assert.True(t, result.contains(VarContext{}.Set("y", value.Number(2))))
	assert.True(t, result.Completeness().someMissingInfo)
}

func TestUniverseDifference(t *testing.T) {
	keep := VarContext{}.Set("x", value.Number(1))
	remove := VarContext{}.Set("x", value.Number(2))
	u := NewUniverse(Complete)
	u.Insert(keep)
	u.Insert(remove)

	removeU := SingletonUniverse(remove)
	result := u.Difference(removeU)
	require.Equal(t, 1, result.Len())
	assert.True(t, result.All()[0].StrictEqual(keep))
}

func TestUniverseHashStableAcrossEquivalentContent(t *testing.T) {
	u1 := NewUniverse(Complete)
	u1.Insert(VarContext{}.Set("x", value.Number(1)))
	u1.Insert(VarContext{}.Set("y", value.Number(2)))

	u2 := NewUniverse(Complete)
	u2.Insert(VarContext{}.Set("y", value.Number(2)))
	u2.Insert(VarContext{}.Set("x", value.Number(1)))

	h1, err := u1.Hash()
	require.NoError(t, err)
	h2, err := u2.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
