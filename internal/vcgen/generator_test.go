package vcgen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhaig/contractcheck/internal/contract"
	"github.com/lhaig/contractcheck/internal/diagnostic"
	"github.com/lhaig/contractcheck/internal/invariant"
	"github.com/lhaig/contractcheck/internal/mir"
	"github.com/lhaig/contractcheck/internal/translate"
)

var noLoc = diagnostic.Location{}

// identity is fn(x) { return x }
func identity() *mir.Function {
	b := mir.NewFunction("identity", mir.TypeInt)
	x := b.Param("x", mir.TypeInt)
	return b.Block(0, &mir.Return{}, mir.Set(mir.ReturnPlace, mir.UseOf(mir.CopyOf(x)))).Build()
}

// divide is fn(a, b) { return a / b }
func divide() *mir.Function {
	b := mir.NewFunction("divide", mir.TypeInt)
	a := b.Param("a", mir.TypeInt)
	d := b.Param("b", mir.TypeInt)
	return b.Block(0, &mir.Return{},
		mir.Set(mir.ReturnPlace, mir.Bin(mir.Div, mir.CopyOf(a), mir.CopyOf(d)))).Build()
}

// classify is fn(x) { if x > 10 { return 1 } else { return 0 } }
func classify() *mir.Function {
	b := mir.NewFunction("classify", mir.TypeInt)
	x := b.Param("x", mir.TypeInt)
	c := b.Local("", mir.TypeBool)
	return b.
		Block(0, mir.If(c, 1, 2), mir.Set(c, mir.Bin(mir.Gt, mir.CopyOf(x), mir.IntConst(10)))).
		Block(1, &mir.Goto{Target: 3}, mir.Set(mir.ReturnPlace, mir.UseOf(mir.IntConst(1)))).
		Block(2, &mir.Goto{Target: 3}, mir.Set(mir.ReturnPlace, mir.UseOf(mir.IntConst(0)))).
		Block(3, &mir.Return{}).
		Build()
}

// countUp is fn(n) { i = 0; while i < n { i = i + 1 }; return i }
func countUp() *mir.Function {
	b := mir.NewFunction("count_up", mir.TypeInt)
	n := b.Param("n", mir.TypeInt)
	i := b.Local("i", mir.TypeInt)
	c := b.Local("", mir.TypeBool)
	return b.
		Block(0, &mir.Goto{Target: 1}, mir.Set(i, mir.UseOf(mir.IntConst(0)))).
		Block(1, mir.If(c, 2, 3), mir.Set(c, mir.Bin(mir.Lt, mir.CopyOf(i), mir.CopyOf(n)))).
		Block(2, &mir.Goto{Target: 1}, mir.Set(i, mir.Bin(mir.Add, mir.CopyOf(i), mir.IntConst(1)))).
		Block(3, &mir.Return{}, mir.Set(mir.ReturnPlace, mir.UseOf(mir.CopyOf(i)))).
		Build()
}

func pre(t *testing.T, c *contract.FunctionContract, name string, e contract.Expr) {
	t.Helper()
	require.NoError(t, c.AddPrecondition(contract.Precondition(name, e, noLoc)))
}

func post(t *testing.T, c *contract.FunctionContract, name string, e contract.Expr) {
	t.Helper()
	require.NoError(t, c.AddPostcondition(contract.Postcondition(name, e, noLoc)))
}

func TestNoBranchesNoContractNoVCs(t *testing.T) {
	vcs, err := New().GenerateFunctionVCs(identity(), nil)
	require.NoError(t, err)
	assert.Empty(t, vcs)
}

func TestPostconditionUnderPrecondition(t *testing.T) {
	c := contract.New("identity")
	pre(t, c, "positive", contract.Binary(contract.Gt, contract.Var("x"), contract.Int(0)))
	post(t, c, "nonneg", contract.Binary(contract.Ge, &contract.Result{}, contract.Int(0)))

	vcs, err := New().GenerateFunctionVCs(identity(), c)
	require.NoError(t, err)
	require.Len(t, vcs, 1)
	assert.Equal(t, "postcondition_nonneg_0", vcs[0].Name)
	assert.Equal(t, Postcondition, vcs[0].Kind)
	assert.Equal(t, Validity, vcs[0].Mode)
	assert.Equal(t, "((x > 0) => (x >= 0))", vcs[0].Formula.String())
	assert.Equal(t, []mir.BlockID{0}, vcs[0].Path)
}

func TestDivisionEmitsOneVCPerSite(t *testing.T) {
	vcs, err := New().GenerateFunctionVCs(divide(), nil)
	require.NoError(t, err)
	require.Len(t, vcs, 1)
	assert.Equal(t, DivisionByZero, vcs[0].Kind)
	assert.Equal(t, "division_by_zero_0", vcs[0].Name)
	assert.Equal(t, "(b != 0)", vcs[0].Formula.String())
}

func TestDivisionUnderBranchCarriesPath(t *testing.T) {
	b := mir.NewFunction("guarded", mir.TypeInt)
	a := b.Param("a", mir.TypeInt)
	d := b.Param("d", mir.TypeInt)
	c := b.Local("", mir.TypeBool)
	fn := b.
		Block(0, mir.If(c, 1, 2), mir.Set(c, mir.Bin(mir.Ne, mir.CopyOf(d), mir.IntConst(0)))).
		Block(1, &mir.Return{}, mir.Set(mir.ReturnPlace, mir.Bin(mir.Rem, mir.CopyOf(a), mir.CopyOf(d)))).
		Block(2, &mir.Return{}, mir.Set(mir.ReturnPlace, mir.UseOf(mir.IntConst(0)))).
		Build()

	vcs, err := New().GenerateFunctionVCs(fn, nil)
	require.NoError(t, err)
	require.Len(t, vcs, 1)
	assert.Equal(t, "((d != 0) => (d != 0))", vcs[0].Formula.String())
	assert.Equal(t, []mir.BlockID{0, 1}, vcs[0].Path)
}

func TestBranchesProduceIndependentPostconditions(t *testing.T) {
	c := contract.New("classify")
	result := &contract.Result{}
	post(t, c, "binary", contract.Binary(contract.Or,
		contract.Binary(contract.Eq, result, contract.Int(0)),
		contract.Binary(contract.Eq, result, contract.Int(1))))

	vcs, err := New().GenerateFunctionVCs(classify(), c)
	require.NoError(t, err)
	require.Len(t, vcs, 2)
	assert.Equal(t, "((x > 10) => ((1 = 0) || (1 = 1)))", vcs[0].Formula.String())
	assert.Equal(t, "(!(x > 10) => ((0 = 0) || (0 = 1)))", vcs[1].Formula.String())
	assert.Equal(t, []mir.BlockID{0, 1, 3}, vcs[0].Path)
	assert.Equal(t, []mir.BlockID{0, 2, 3}, vcs[1].Path)
}

func TestAssertTerminator(t *testing.T) {
	for _, expected := range []bool{true, false} {
		b := mir.NewFunction("check", mir.TypeUnit)
		x := b.Param("x", mir.TypeInt)
		c := b.Local("", mir.TypeBool)
		fn := b.
			Block(0, &mir.Assert{Cond: mir.CopyOf(c), Expected: expected, Message: "x positive", Target: 1},
				mir.Set(c, mir.Bin(mir.Gt, mir.CopyOf(x), mir.IntConst(0)))).
			Block(1, &mir.Return{}).
			Build()

		vcs, err := New().GenerateFunctionVCs(fn, nil)
		require.NoError(t, err)
		require.Len(t, vcs, 1)
		assert.Equal(t, Assertion, vcs[0].Kind)
		assert.Equal(t, "assertion_0", vcs[0].Name)
		if expected {
			assert.Equal(t, "(x > 0)", vcs[0].Formula.String())
		} else {
			assert.Equal(t, "!(x > 0)", vcs[0].Formula.String())
		}
	}
}

func TestCallIsOpaqueAndWalkContinues(t *testing.T) {
	b := mir.NewFunction("caller", mir.TypeInt)
	x := b.Param("x", mir.TypeInt)
	y := b.Local("y", mir.TypeInt)
	fn := b.
		Block(0, &mir.Call{Func: "helper", Args: []mir.Operand{mir.CopyOf(x)}, Destination: mir.LocalPlace(y), Target: 1, HasTarget: true}).
		Block(1, &mir.Return{}, mir.Set(mir.ReturnPlace, mir.UseOf(mir.CopyOf(y)))).
		Build()

	c := contract.New("caller")
	post(t, c, "eq", contract.Binary(contract.Eq, &contract.Result{}, contract.Var("x")))

	vcs, err := New().GenerateFunctionVCs(fn, c)
	require.NoError(t, err)
	require.Len(t, vcs, 1)
	assert.Equal(t, "(call_helper_0 = x)", vcs[0].Formula.String())
}

func TestOldRefersToEntryValue(t *testing.T) {
	b := mir.NewFunction("bump", mir.TypeUnit)
	x := b.Param("x", mir.TypeInt)
	fn := b.Block(0, &mir.Return{}, mir.Set(x, mir.Bin(mir.Add, mir.CopyOf(x), mir.IntConst(1)))).Build()

	c := contract.New("bump")
	post(t, c, "grew", contract.Binary(contract.Eq, contract.Var("x"),
		contract.Binary(contract.Add, &contract.Old{Expr: contract.Var("x")}, contract.Int(1))))

	vcs, err := New().GenerateFunctionVCs(fn, c)
	require.NoError(t, err)
	require.Len(t, vcs, 1)
	assert.Equal(t, "((x + 1) = (x + 1))", vcs[0].Formula.String())
}

func TestLoopInvariantVCs(t *testing.T) {
	c := contract.New("count_up")
	pre(t, c, "nonneg", contract.Binary(contract.Ge, contract.Var("n"), contract.Int(0)))
	post(t, c, "exact", contract.Binary(contract.Eq, &contract.Result{}, contract.Var("n")))

	loop := invariant.NewLoop(1)
	loop.AddCondition("bounded", contract.Binary(contract.Le, contract.Var("i"), contract.Var("n")), noLoc)
	loop.SetVariant(contract.Binary(contract.Sub, contract.Var("n"), contract.Var("i")), nil)

	vcs, err := New(WithLoops(loop)).GenerateFunctionVCs(countUp(), c)
	require.NoError(t, err)
	require.Len(t, vcs, 4)

	assert.Equal(t, "loop_invariant_entry_bounded_0", vcs[0].Name)
	assert.Equal(t, "((n >= 0) => (0 <= n))", vcs[0].Formula.String())

	assert.Equal(t, LoopInvariantPreservation, vcs[1].Kind)
	assert.Equal(t, "(((n >= 0) && (i_loop_0 <= n) && (i_loop_0 < n)) => ((i_loop_0 + 1) <= n))", vcs[1].Formula.String())

	assert.Equal(t, Termination, vcs[2].Kind)
	assert.Equal(t, "(((n >= 0) && (i_loop_0 <= n) && (i_loop_0 < n)) => (((n - (i_loop_0 + 1)) < (n - i_loop_0)) && ((n - i_loop_0) >= 0)))", vcs[2].Formula.String())

	assert.Equal(t, "postcondition_exact_3", vcs[3].Name)
	assert.Equal(t, "(((n >= 0) && (i_loop_0 <= n) && !(i_loop_0 < n)) => (i_loop_0 = n))", vcs[3].Formula.String())
	assert.Equal(t, []mir.BlockID{0, 1, 3}, vcs[3].Path)
}

func TestLoopWithoutInvariantStillHavocs(t *testing.T) {
	c := contract.New("count_up")
	post(t, c, "exact", contract.Binary(contract.Eq, &contract.Result{}, contract.Var("n")))

	vcs, err := New().GenerateFunctionVCs(countUp(), c)
	require.NoError(t, err)
	require.Len(t, vcs, 1)
	assert.Equal(t, "(!(i_loop_0 < n) => (i_loop_0 = n))", vcs[0].Formula.String())
}

// twoEntry enters the cycle bb1 <-> bb2 at either block, so neither block
// dominates it.
func twoEntry() *mir.Function {
	b := mir.NewFunction("two_entry", mir.TypeInt)
	flag := b.Param("flag", mir.TypeBool)
	x := b.Param("x", mir.TypeInt)
	c := b.Local("", mir.TypeBool)
	return b.
		Block(0, mir.If(flag, 1, 2)).
		Block(1, &mir.Goto{Target: 2}, mir.Set(x, mir.Bin(mir.Add, mir.CopyOf(x), mir.IntConst(1)))).
		Block(2, mir.If(c, 1, 3), mir.Set(c, mir.Bin(mir.Lt, mir.CopyOf(x), mir.IntConst(10)))).
		Block(3, &mir.Return{}, mir.Set(mir.ReturnPlace, mir.UseOf(mir.CopyOf(x)))).
		Build()
}

func TestEveryEntryOfIrreducibleLoopHavocs(t *testing.T) {
	c := contract.New("two_entry")
	post(t, c, "keeps", contract.Binary(contract.Or, contract.Var("flag"),
		contract.Binary(contract.Eq, &contract.Result{}, &contract.Old{Expr: contract.Var("x")})))

	vcs, err := New().GenerateFunctionVCs(twoEntry(), c)
	require.NoError(t, err)
	require.Len(t, vcs, 2)
	for _, vc := range vcs {
		assert.Equal(t, Postcondition, vc.Kind)
		// the returned x is never the entry value
		assert.Contains(t, vc.Formula.String(), "x_loop_")
		assert.NotContains(t, vc.Formula.String(), "(x = x)")
	}
	assert.Equal(t, []mir.BlockID{0, 2, 3}, vcs[1].Path)
}

func TestDecreasesClauseDrivesTermination(t *testing.T) {
	c := contract.New("count_up")
	c.Decreases = contract.Binary(contract.Sub, contract.Var("n"), contract.Var("i"))

	vcs, err := New().GenerateFunctionVCs(countUp(), c)
	require.NoError(t, err)
	require.Len(t, vcs, 1)
	assert.Equal(t, Termination, vcs[0].Kind)
}

func TestStaticCheckPreconditionEmitsSatisfiabilityVC(t *testing.T) {
	c := contract.New("identity")
	cond := contract.Precondition("positive", contract.Binary(contract.Gt, contract.Var("x"), contract.Int(0)), noLoc)
	cond.VerificationHint = contract.VerificationHint{Kind: contract.StaticCheck}
	require.NoError(t, c.AddPrecondition(cond))

	vcs, err := New().GenerateFunctionVCs(identity(), c)
	require.NoError(t, err)
	require.Len(t, vcs, 1)
	assert.Equal(t, Satisfiability, vcs[0].Mode)
	assert.Equal(t, Precondition, vcs[0].Kind)
	assert.Equal(t, "(x > 0)", vcs[0].Formula.String())
}

func TestRuntimeOnlyPostconditionSkipped(t *testing.T) {
	c := contract.New("identity")
	cond := contract.Postcondition("later", contract.Bool(true), noLoc)
	cond.VerificationHint = contract.VerificationHint{Kind: contract.RuntimeOnly}
	require.NoError(t, c.AddPostcondition(cond))

	vcs, err := New().GenerateFunctionVCs(identity(), c)
	require.NoError(t, err)
	assert.Empty(t, vcs)
}

func TestErrors(t *testing.T) {
	fn := identity()
	fn.Entry = 5
	_, err := New().GenerateFunctionVCs(fn, nil)
	assert.True(t, errors.Is(err, mir.ErrMalformed))

	c := contract.New("identity")
	post(t, c, "named", &contract.Matches{Expr: contract.Var("x"), Pattern: "a+"})
	_, err = New().GenerateFunctionVCs(identity(), c)
	assert.True(t, errors.Is(err, translate.ErrUnsupported))

	b := mir.NewFunction("shift", mir.TypeInt)
	x := b.Param("x", mir.TypeInt)
	shift := b.Block(0, &mir.Return{}, mir.Set(mir.ReturnPlace, mir.Bin(mir.Shl, mir.CopyOf(x), mir.IntConst(1)))).Build()
	_, err = New().GenerateFunctionVCs(shift, nil)
	assert.True(t, errors.Is(err, translate.ErrUnsupported))
}

func TestDeterministicAcrossGenerators(t *testing.T) {
	c := contract.New("classify")
	post(t, c, "small", contract.Binary(contract.Le, &contract.Result{}, contract.Int(1)))

	first, err := New().GenerateFunctionVCs(classify(), c)
	require.NoError(t, err)
	second, err := New().GenerateFunctionVCs(classify(), c)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
