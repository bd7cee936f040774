package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExprString(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"binary", Binary(Add, Var("x"), Int(1)), "(x + 1)"},
		{"implies", Binary(Implies, Bool(true), Var("p")), "(true ==> p)"},
		{"unary", &UnaryOp{Op: Neg, Operand: Var("x")}, "-x"},
		{"old", &Old{Expr: Var("x")}, "old(x)"},
		{"result", &Result{}, "result"},
		{"float", Float(1.5), "1.5"},
		{"string", Str("hi"), `"hi"`},
		{"null", Null(), "null"},
		{"call", &Call{Function: "f", Args: []Expr{Var("a"), Int(2)}}, "f(a, 2)"},
		{"index", &ArrayAccess{Array: Var("a"), Index: Var("i")}, "a[i]"},
		{"field", &FieldAccess{Object: Var("p"), Field: "x"}, "p.x"},
		{"forall", &Quantifier{Kind: Forall, Vars: []Binder{{Name: "i", Type: TypeInt}}, Body: Binary(Ge, Var("i"), Int(0))}, "forall i: int. (i >= 0)"},
		{"range", &Range{Start: Int(0), End: Var("n"), Inclusive: true}, "0..=n"},
		{"aggregate", &Aggregate{Op: Sum, Collection: Var("xs")}, "sum(xs)"},
		{"aggregate filter", &Aggregate{Op: Count, Collection: Var("xs"), Filter: Var("p")}, "count(xs where p)"},
		{"let", &Let{Bindings: []Binding{{Name: "y", Value: Int(1)}}, Body: Var("y")}, "let y = 1 in y"},
		{"matches", &Matches{Expr: Var("s"), Pattern: "a+"}, `s matches "a+"`},
		{"temporal", &Temporal{Op: Eventually, Expr: Var("done")}, "eventually(done)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.expr.String())
		})
	}
}

func TestConjunction(t *testing.T) {
	assert.Equal(t, "true", Conjunction(nil).String())
	assert.Equal(t, "a", Conjunction([]Expr{Var("a")}).String())
	assert.Equal(t, "((a && b) && c)", Conjunction([]Expr{Var("a"), Var("b"), Var("c")}).String())
}

func TestFreeVariables(t *testing.T) {
	e := &Quantifier{
		Kind: Forall,
		Vars: []Binder{{Name: "i"}},
		Body: Binary(Lt, Var("i"), Var("n")),
	}
	assert.Equal(t, []string{"n"}, FreeVariables(Binary(And, e, Var("b"))))

	let := &Let{Bindings: []Binding{{Name: "y", Value: Var("x")}}, Body: Binary(Add, Var("y"), Var("z"))}
	assert.Equal(t, []string{"x", "z"}, FreeVariables(let))
}

func TestSubstituteAvoidsCapture(t *testing.T) {
	q := &Quantifier{Kind: Exists, Vars: []Binder{{Name: "y"}}, Body: Binary(Lt, Var("x"), Var("y"))}
	out := Substitute(q, map[string]Expr{"x": Var("y")})
	assert.Equal(t, "exists y_1: int. (y < y_1)", out.String())

	// bound names shadow the substitution
	shadow := &Quantifier{Kind: Forall, Vars: []Binder{{Name: "x"}}, Body: Var("x")}
	assert.Equal(t, shadow.String(), Substitute(shadow, map[string]Expr{"x": Int(3)}).String())
}

func TestEliminateLetIsSequential(t *testing.T) {
	let := &Let{
		Bindings: []Binding{
			{Name: "a", Value: Int(2)},
			{Name: "b", Value: Binary(Mul, Var("a"), Var("x"))},
		},
		Body: Binary(Add, Var("a"), Var("b")),
	}
	assert.Equal(t, "(2 + (2 * x))", EliminateLet(let).String())

	nested := Binary(Gt, &Let{Bindings: []Binding{{Name: "t", Value: Var("x")}}, Body: Var("t")}, Int(0))
	assert.Equal(t, "(x > 0)", EliminateLet(nested).String())
}

func TestParseType(t *testing.T) {
	ty, ok := ParseType("bool")
	assert.True(t, ok)
	assert.Equal(t, TypeBool, ty)
	_, ok = ParseType("widget")
	assert.False(t, ok)
}
