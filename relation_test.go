package deduct

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadalog/deduct/value"
)

var testLogger = hclog.NewNullLogger()

func rel(name string, args ...value.Data) Truth {
	return Truth{Rel: RelId{Name: name, Arity: len(args)}, Data: args}
}

func TestRelationAddTruthDedup(t *testing.T) {
	r := NewRelation(RelId{Name: "rel", Arity: 1})
	r.AddTruth(rel("rel", value.Number(1)), false)
	r.AddTruth(rel("rel", value.Number(1)), false)
	assert.Len(t, r.GroundTruths(), 1)
}

func TestRelationAddTruthNegatedRemoves(t *testing.T) {
	r := NewRelation(RelId{Name: "rel", Arity: 1})
	r.AddTruth(rel("rel", value.Number(1)), false)
	r.AddTruth(rel("rel", value.Number(1)), true)
	assert.Empty(t, r.GroundTruths())
}

func TestFitsFilterWildcardMatchesEverything(t *testing.T) {
	filter := []Expression{VarExpr(Var("_a")), VarExpr(Var("_b"))}
	_, ok := fitsFilter(filter, []value.Data{value.Number(1), value.String("x")}, VarContext{})
	assert.True(t, ok)
}

func TestFitsFilterLiteralMismatch(t *testing.T) {
	filter := []Expression{Literal(value.Number(2))}
	_, ok := fitsFilter(filter, []value.Data{value.Number(1)}, VarContext{})
	assert.False(t, ok)
}

func TestFitsFilterCrossColumnBinding(t *testing.T) {
	// filter args: (x, x) against truth data (5, 5) should bind x=5 and succeed.
	filter := []Expression{VarExpr(Var("x")), VarExpr(Var("x"))}
	ctx, ok := fitsFilter(filter, []value.Data{value.Number(5), value.Number(5)}, VarContext{})
	require.True(t, ok)
	x, _ := ctx.Get("x")
	assert.True(t, x.StrictEqual(value.Number(5)))
}

func TestFitsFilterCrossColumnMismatchFails(t *testing.T) {
	filter := []Expression{VarExpr(Var("x")), VarExpr(Var("x"))}
	_, ok := fitsFilter(filter, []value.Data{value.Number(5), value.Number(6)}, VarContext{})
	assert.False(t, ok)
}

func TestRelationGetFilteredTruthsCombinesGroundAndConditional(t *testing.T) {
	e := New(8)
	id := RelId{Name: "rel", Arity: 1}
	r := e.relationOrCreate(id)
	r.AddTruth(rel("rel", value.Number(1)), false)

	other := e.relationOrCreate(RelId{Name: "base", Arity: 1})
	other.AddTruth(rel("base", value.Number(2)), false)

	r.AddConditional(ConditionalTruth{
		Template: DeferedRelation{Name: "rel", Args: []Expression{VarExpr(Var("x"))}},
		Body:     RelationStmt(DeferedRelation{Name: "base", Args: []Expression{VarExpr(Var("x"))}}),
	})

	tally := NewRecursionTally(8)
	truths, err := r.GetFilteredTruths(DeferedRelation{Name: "rel", Args: []Expression{VarExpr(Var("_w0"))}}, VarContext{}, e, tally, testLogger)
	require.NoError(t, err)
	SortTruths(truths)
	require.Len(t, truths, 2)
	assert.True(t, truths[0].StrictEqual(rel("rel", value.Number(1))))
	assert.True(t, truths[1].StrictEqual(rel("rel", value.Number(2))))

	want := []Truth{rel("rel", value.Number(1)), rel("rel", value.Number(2))}
	if diff := cmp.Diff(want, truths); diff != "" {
		t.Errorf("filtered truths mismatch (-want +got):\n%s", diff)
	}
}
