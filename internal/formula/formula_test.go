package formula

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	x := NewVar("x", SortInt)
	tests := []struct {
		f    Formula
		want string
	}{
		{Imply(Bin(OpGt, x, Int(0)), Ge(x, Int(0))), "((x > 0) => (x >= 0))"},
		{Conj(), "true"},
		{Disj(), "false"},
		{Conj(Bool(true), x), "(true && x)"},
		{Negate(Eq(x, Int(1))), "!(x = 1)"},
		{&Select{Array: NewVar("a", SortArray), Index: Int(2)}, "a[2]"},
		{&Store{Array: NewVar("a", SortArray), Index: Int(2), Value: x}, "a[2 := x]"},
		{&Quantifier{Kind: Exists, Vars: []Binder{{Name: "i", Sort: SortInt}}, Body: Bool(true)}, "(exists i: Int. true)"},
		{Real(2), "2.0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.f.String())
	}
}

func TestSMTLib(t *testing.T) {
	x := NewVar("x", SortUnknown)
	r := NewVar("r", SortReal)
	tests := []struct {
		name string
		f    Formula
		want string
	}{
		{"implication", Imply(Bin(OpGt, x, Int(0)), Ge(x, Int(0))), "(=> (> x 0) (>= x 0))"},
		{"negative literal", Eq(x, Int(-5)), "(= x (- 5))"},
		{"not equal", Ne(x, Int(0)), "(not (= x 0))"},
		{"int division", Eq(Bin(OpDiv, x, Int(2)), Int(1)), "(= (div x 2) 1)"},
		{"real division", Eq(Bin(OpDiv, r, Real(2)), Real(1)), "(= (/ r 2.0) 1.0)"},
		{"mod", Eq(Bin(OpMod, x, Int(2)), Int(1)), "(= (mod x 2) 1)"},
		{"nary", Conj(x, Bool(false), Bool(true)), "(and x false true)"},
		{"ite", &Ite{Cond: Bool(true), Then: Int(1), Else: Int(2)}, "(ite true 1 2)"},
		{"quantifier", &Quantifier{Kind: Forall, Vars: []Binder{{Name: "i", Sort: SortInt}}, Body: Ge(NewVar("i", SortUnknown), Int(0))}, "(forall ((i Int)) (>= i 0))"},
		{"array", Eq(&Select{Array: NewVar("a", SortArray), Index: Int(0)}, Int(1)), "(= (select a 0) 1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SMTLib(tt.f, Infer(tt.f)))
		})
	}
}

func TestSymbol(t *testing.T) {
	assert.Equal(t, "__result__", Symbol("__result__"))
	assert.Equal(t, "old_x", Symbol("old_x"))
	assert.Equal(t, "old@x", Symbol("old@x"))
	assert.Equal(t, "|1x|", Symbol("1x"))
	assert.Equal(t, "|a b|", Symbol("a b"))
}

func TestInfer(t *testing.T) {
	b := NewVar("b", SortUnknown)
	x := NewVar("x", SortUnknown)
	r := NewVar("r", SortUnknown)
	a := NewVar("a", SortUnknown)
	f := Conj(
		b,
		Bin(OpLt, x, Int(3)),
		Bin(OpLt, r, Real(1.5)),
		Eq(&Select{Array: a, Index: x}, Int(0)),
		Eq(NewVar("u", SortUnknown), NewVar("v", SortUnknown)),
	)
	env := Infer(f)
	assert.Equal(t, SortBool, env["b"])
	assert.Equal(t, SortInt, env["x"])
	assert.Equal(t, SortReal, env["r"])
	assert.Equal(t, SortArray, env["a"])
	assert.Equal(t, SortInt, env["u"])
	assert.Equal(t, SortInt, env["v"])
}

func TestFreeVarsAndSubstitute(t *testing.T) {
	x := NewVar("x", SortInt)
	y := NewVar("y", SortInt)
	q := &Quantifier{Kind: Forall, Vars: []Binder{{Name: "y", Sort: SortInt}}, Body: Bin(OpLt, x, y)}

	vars := FreeVars(q, y)
	require.Len(t, vars, 2)
	assert.Equal(t, "x", vars[0].Name)
	assert.Equal(t, "y", vars[1].Name)

	out := Substitute(q, map[string]Formula{"x": Bin(OpAdd, y, Int(1))})
	assert.Equal(t, "(forall y_1: Int. ((y + 1) < y_1))", out.String())

	// substitution leaves the input untouched
	assert.Equal(t, "(forall y: Int. (x < y))", q.String())
}

func TestEval(t *testing.T) {
	model := map[string]Value{"x": IntValue(-7), "p": BoolValue(true)}
	x := NewVar("x", SortInt)

	v, err := Eval(Bin(OpDiv, x, Int(2)), model)
	require.NoError(t, err)
	assert.Equal(t, IntValue(-4), v)

	v, err = Eval(Bin(OpMod, x, Int(2)), model)
	require.NoError(t, err)
	assert.Equal(t, IntValue(1), v)

	v, err = Eval(Imply(NewVar("p", SortBool), Ge(x, Int(0))), model)
	require.NoError(t, err)
	assert.False(t, v.Bool)

	_, err = Eval(Bin(OpDiv, x, Int(0)), model)
	assert.True(t, errors.Is(err, ErrNotEvaluable))

	_, err = Eval(NewVar("z", SortInt), model)
	assert.True(t, errors.Is(err, ErrUnbound))
}

func TestScript(t *testing.T) {
	x := NewVar("x", SortInt)
	s := Script("f/postcondition_0", []Formula{Bin(OpGt, x, Int(0))}, Ge(NewVar("__result__", SortInt), Int(0)))
	assert.True(t, strings.Contains(s, "(declare-const __result__ Int)"))
	assert.True(t, strings.Contains(s, "(declare-const x Int)"))
	assert.True(t, strings.Contains(s, "(assert (> x 0))"))
	assert.True(t, strings.Contains(s, "(assert (not (>= __result__ 0)))"))
	assert.True(t, strings.HasSuffix(s, "(check-sat)\n"))
}

func TestTruncDivisionMatchesProgramArithmetic(t *testing.T) {
	x := NewVar("x", SortInt)
	y := NewVar("y", SortInt)
	for _, a := range []int64{-7, -6, -1, 0, 1, 6, 7} {
		for _, b := range []int64{-3, -2, -1, 1, 2, 3} {
			model := map[string]Value{"x": IntValue(a), "y": IntValue(b)}

			q, err := Eval(TruncDiv(x, y), model)
			require.NoError(t, err)
			assert.Equal(t, IntValue(a/b), q, "%d / %d", a, b)

			r, err := Eval(TruncRem(x, y), model)
			require.NoError(t, err)
			assert.Equal(t, IntValue(a%b), r, "%d %% %d", a, b)
		}
	}

	// a non-negative literal dividend needs no case split
	d := TruncDiv(Int(7), x)
	assert.Equal(t, "(div 7 x)", SMTLib(d, Infer(d)))
}
