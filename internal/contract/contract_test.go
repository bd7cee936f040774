package contract

import (
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhaig/contractcheck/internal/diagnostic"
)

func sampleContract(t *testing.T) *FunctionContract {
	t.Helper()
	c := New("clamp")
	c.Params = []Param{{Name: "x", Type: TypeInt}, {Name: "flag", Type: TypeBool}}
	require.NoError(t, c.AddPrecondition(Precondition("pos", Binary(Gt, Var("x"), Int(0)), diagnostic.Location{})))
	require.NoError(t, c.AddPrecondition(Precondition("flagged", Var("flag"), diagnostic.Location{})))
	require.NoError(t, c.AddPostcondition(Postcondition("nonneg", Binary(Ge, &Result{}, Int(0)), diagnostic.Location{})))
	return c
}

func TestAddRejectsDuplicateNames(t *testing.T) {
	c := sampleContract(t)
	err := c.AddPrecondition(Precondition("pos", Bool(true), diagnostic.Location{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateCondition))

	// the same name in a different list is fine
	assert.NoError(t, c.AddPostcondition(Postcondition("pos", Bool(true), diagnostic.Location{})))
}

func TestAddRequiresNameAndExpr(t *testing.T) {
	c := New("f")
	assert.Error(t, c.AddPrecondition(EnhancedCondition{Expr: Bool(true)}))
	assert.Error(t, c.AddPrecondition(EnhancedCondition{Name: "p"}))
}

func TestFailureActionIndex(t *testing.T) {
	c := sampleContract(t)
	require.NoError(t, c.AddInvariant(Invariant("inv", Bool(true), diagnostic.Location{})))

	a, ok := c.FailureActionFor("pos")
	require.True(t, ok)
	assert.Equal(t, ThrowException, a.Kind)
	assert.Equal(t, "Precondition violation", a.Message)

	a, ok = c.FailureActionFor("nonneg")
	require.True(t, ok)
	assert.Equal(t, "Postcondition violation", a.Message)

	a, ok = c.FailureActionFor("inv")
	require.True(t, ok)
	assert.Equal(t, Abort, a.Kind)

	_, ok = c.FailureActionFor("missing")
	assert.False(t, ok)
	assert.NoError(t, c.Validate())
}

func TestGenerateProofObligations(t *testing.T) {
	c := sampleContract(t)
	obs := c.GenerateProofObligations()
	require.Len(t, obs, 3)

	assert.Equal(t, "clamp_pre_0", obs[0].ID)
	assert.Equal(t, High, obs[0].Priority)
	assert.Equal(t, Satisfiability, obs[0].Kind)
	q, ok := obs[0].Formula.(*Quantifier)
	require.True(t, ok)
	assert.Equal(t, Exists, q.Kind)
	assert.Equal(t, []Binder{{Name: "x", Type: TypeInt}}, q.Vars)

	q, ok = obs[1].Formula.(*Quantifier)
	require.True(t, ok)
	assert.Equal(t, []Binder{{Name: "flag", Type: TypeBool}}, q.Vars)

	post := obs[2]
	assert.Equal(t, "clamp_post_0", post.ID)
	assert.Equal(t, Critical, post.Priority)
	assert.Equal(t, Z3Solver, post.Method)
	assert.Len(t, post.Assumptions, 2)
	assert.Equal(t, "(((x > 0) && flag) ==> (result >= 0))", post.Formula.String())
	assert.Equal(t, obs, c.ProofObligations())
}

func TestGenerateProofObligationsWithoutPreconditions(t *testing.T) {
	c := New("f")
	require.NoError(t, c.AddPostcondition(Postcondition("p", Bool(true), diagnostic.Location{})))
	obs := c.GenerateProofObligations()
	require.Len(t, obs, 1)
	assert.Equal(t, "(true ==> true)", obs[0].Formula.String())
	assert.Empty(t, obs[0].Assumptions)
}

func TestProofObligationsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("regenerating obligations yields the same list", prop.ForAll(
		func(pres, posts []int64) bool {
			c := New("f")
			for i, v := range pres {
				_ = c.AddPrecondition(Precondition(string(rune('a'+i%26))+"_pre", Binary(Gt, Var("x"), Int(v)), diagnostic.Location{}))
			}
			for i, v := range posts {
				_ = c.AddPostcondition(Postcondition(string(rune('a'+i%26))+"_post", Binary(Le, &Result{}, Int(v)), diagnostic.Location{}))
			}
			first := c.GenerateProofObligations()
			second := c.GenerateProofObligations()
			return reflect.DeepEqual(first, second) &&
				len(second) == len(c.Preconditions)+len(c.Postconditions)
		},
		gen.SliceOfN(5, gen.Int64Range(-100, 100)),
		gen.SliceOfN(5, gen.Int64Range(-100, 100)),
	))

	properties.TestingRun(t)
}

func TestAddModifiesDeduplicates(t *testing.T) {
	c := New("f")
	c.AddModifies("a")
	c.AddModifies("b")
	c.AddModifies("a")
	assert.Equal(t, []string{"a", "b"}, c.Modifies)
}
