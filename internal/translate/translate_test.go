package translate

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhaig/contractcheck/internal/contract"
	"github.com/lhaig/contractcheck/internal/formula"
)

func TestTranslateSupported(t *testing.T) {
	x := contract.Var("x")
	tests := []struct {
		name string
		expr contract.Expr
		want string
	}{
		{"comparison", contract.Binary(contract.Gt, x, contract.Int(0)), "(x > 0)"},
		{"float", contract.Binary(contract.Lt, x, contract.Float(1.5)), "(x < 1.5)"},
		{"negation", &contract.UnaryOp{Op: contract.Neg, Operand: x}, "(0 - x)"},
		{"not", contract.Negate(contract.Var("p")), "!p"},
		{"implies", contract.Binary(contract.Implies, contract.Var("p"), contract.Var("q")), "(p => q)"},
		{"result", contract.Binary(contract.Ge, &contract.Result{}, contract.Int(0)), "(__result__ >= 0)"},
		{"old", contract.Binary(contract.Eq, x, &contract.Old{Expr: x}), "(x = old@x)"},
		{"old-looking variable", contract.Binary(contract.Eq, contract.Var("old_x"), contract.Int(1)), "(old_x = 1)"},
		{"array", contract.Binary(contract.Eq, &contract.ArrayAccess{Array: contract.Var("a"), Index: contract.Int(0)}, contract.Int(1)), "(a[0] = 1)"},
		{"flattened and", contract.Conjunction([]contract.Expr{contract.Var("a"), contract.Var("b"), contract.Var("c")}), "(a && b && c)"},
		{"flattened or", contract.Binary(contract.Or, contract.Binary(contract.Or, contract.Var("a"), contract.Var("b")), contract.Var("c")), "(a || b || c)"},
		{"quantifier", &contract.Quantifier{
			Kind: contract.Forall,
			Vars: []contract.Binder{{Name: "i", Type: contract.TypeInt}},
			Body: contract.Binary(contract.Ge, contract.Var("i"), contract.Int(0)),
		}, "(forall i: Int. (i >= 0))"},
		{"let", &contract.Let{
			Bindings: []contract.Binding{{Name: "y", Value: contract.Binary(contract.Add, x, contract.Int(1))}},
			Body:     contract.Binary(contract.Gt, contract.Var("y"), contract.Int(0)),
		}, "((x + 1) > 0)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Translate(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.String())
		})
	}
}

func TestTranslateUnsupported(t *testing.T) {
	x := contract.Var("x")
	tests := []struct {
		name      string
		expr      contract.Expr
		construct string
	}{
		{"string", contract.Str("s"), "string constant"},
		{"null", contract.Null(), "null constant"},
		{"bitand", contract.Binary(contract.BitAnd, x, x), "bitwise &"},
		{"bitnot", &contract.UnaryOp{Op: contract.BitNot, Operand: x}, "bitwise not"},
		{"old of expression", &contract.Old{Expr: contract.Binary(contract.Add, x, x)}, "old"},
		{"semantic", &contract.SemanticPredicate{Name: "is_sorted", Args: []contract.Expr{x}}, "semantic predicate is_sorted"},
		{"temporal", &contract.Temporal{Op: contract.Always, Expr: x}, "temporal always"},
		{"inset", &contract.InSet{Element: x, Set: contract.Var("s")}, "set membership"},
		{"range", &contract.Range{Start: contract.Int(0), End: x}, "range"},
		{"matches", &contract.Matches{Expr: x, Pattern: "a*"}, "pattern match"},
		{"aggregate", &contract.Aggregate{Op: contract.Sum, Collection: x}, "aggregate sum"},
		{"call", &contract.Call{Function: "f"}, "call f"},
		{"nested", contract.Binary(contract.And, x, &contract.Length{Expr: x}), "length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Translate(tt.expr)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnsupported))
			var ue *UnsupportedError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, tt.construct, ue.Construct)
		})
	}
}

func TestDivisionTruncates(t *testing.T) {
	x := contract.Var("x")
	for _, tt := range []struct {
		op   contract.BinOp
		x    int64
		want int64
	}{
		{contract.Div, -7, -3},
		{contract.Div, 7, 3},
		{contract.Mod, -7, -1},
		{contract.Mod, 7, 1},
	} {
		f, err := Translate(contract.Binary(tt.op, x, contract.Int(2)))
		require.NoError(t, err)
		v, err := formula.Eval(f, map[string]formula.Value{"x": formula.IntValue(tt.x)})
		require.NoError(t, err)
		assert.Equal(t, formula.IntValue(tt.want), v, "%d %s 2", tt.x, tt.op)
	}

	// real division stays exact
	f, err := Translate(contract.Binary(contract.Div, x, contract.Float(2)))
	require.NoError(t, err)
	bin, ok := f.(*formula.Binary)
	require.True(t, ok)
	assert.Equal(t, formula.OpDiv, bin.Op)
}

func TestOldNames(t *testing.T) {
	base, ok := OldBase(OldName("count"))
	assert.True(t, ok)
	assert.Equal(t, "count", base)

	_, ok = OldBase("old_count")
	assert.False(t, ok)
}

func TestForContractTypesVariables(t *testing.T) {
	c := contract.New("f")
	c.Params = []contract.Param{{Name: "r", Type: contract.TypeFloat}, {Name: "ok", Type: contract.TypeBool}}

	f, err := ForContract(c).Translate(contract.Binary(contract.And, contract.Var("ok"), contract.Binary(contract.Gt, contract.Var("r"), contract.Int(0))))
	require.NoError(t, err)
	vars := formula.FreeVars(f)
	require.Len(t, vars, 2)
	assert.Equal(t, formula.SortBool, vars[0].Sort)
	assert.Equal(t, formula.SortReal, vars[1].Sort)
}

// translating a let must agree with evaluating the body under the binding
func TestLetRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("T(let y = v in b) == T(b[y := v])", prop.ForAll(
		func(a, b, c, x int64) bool {
			value := contract.Binary(contract.Add, contract.Binary(contract.Mul, contract.Int(a), contract.Var("x")), contract.Int(b))
			body := contract.Binary(contract.Gt, contract.Binary(contract.Sub, contract.Var("y"), contract.Var("x")), contract.Int(c))
			let := &contract.Let{Bindings: []contract.Binding{{Name: "y", Value: value}}, Body: body}

			viaLet, err := Translate(let)
			if err != nil {
				return false
			}
			direct, err := Translate(contract.Substitute(body, map[string]contract.Expr{"y": value}))
			if err != nil || viaLet.String() != direct.String() {
				return false
			}

			fv, _ := Translate(value)
			fb, _ := Translate(body)
			model := map[string]formula.Value{"x": formula.IntValue(x)}
			y, err := formula.Eval(fv, model)
			if err != nil {
				return false
			}
			want, err := formula.Eval(fb, map[string]formula.Value{"x": model["x"], "y": y})
			if err != nil {
				return false
			}
			got, err := formula.Eval(viaLet, model)
			return err == nil && got == want
		},
		gen.Int64Range(-50, 50),
		gen.Int64Range(-50, 50),
		gen.Int64Range(-50, 50),
		gen.Int64Range(-1000, 1000),
	))

	properties.TestingRun(t)
}
