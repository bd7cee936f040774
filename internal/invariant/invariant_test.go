package invariant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhaig/contractcheck/internal/contract"
	"github.com/lhaig/contractcheck/internal/diagnostic"
)

func TestLoop(t *testing.T) {
	l := NewLoop(3)
	assert.False(t, l.HasVariant())
	l.AddCondition("bounded", InRange("i", 0, 10), diagnostic.Location{})
	l.SetVariant(contract.Binary(contract.Sub, contract.Var("n"), contract.Var("i")), nil)

	require.True(t, l.HasVariant())
	assert.Equal(t, "0", l.Variant.LowerBound.String())
	require.Len(t, l.Conditions, 1)
	assert.Equal(t, "((0 <= i) && (i <= 10))", l.Conditions[0].Expr.String())
}

func TestGlobalScope(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		fn    string
		want  bool
	}{
		{"always", Scope{Kind: Always}, "anything", true},
		{"function match", Scope{Kind: InFunction, Name: "f"}, "f", true},
		{"function miss", Scope{Kind: InFunction, Name: "f"}, "g", false},
		{"module match", Scope{Kind: InModule, Name: "bank"}, "bank::deposit", true},
		{"module dotted", Scope{Kind: InModule, Name: "bank"}, "bank.deposit", true},
		{"module miss", Scope{Kind: InModule, Name: "bank"}, "banking::deposit", false},
		{"conditional", Scope{Kind: Conditional, Guard: contract.Var("on")}, "g", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGlobal("inv", contract.Bool(true), tt.scope, diagnostic.Location{})
			assert.Equal(t, tt.want, g.AppliesTo(tt.fn))
		})
	}
}

func TestGlobalAssumption(t *testing.T) {
	plain := NewGlobal("pos", contract.Binary(contract.Gt, contract.Var("g"), contract.Int(0)), Scope{}, diagnostic.Location{})
	assert.Equal(t, "(g > 0)", plain.Assumption().String())

	guarded := NewGlobal("pos", contract.Var("p"), Scope{Kind: Conditional, Guard: contract.Var("on")}, diagnostic.Location{})
	assert.Equal(t, "(on ==> p)", guarded.Assumption().String())
}

func TestPatterns(t *testing.T) {
	assert.Equal(t, "((0 <= i) && (i < n))", ArrayBounds("i", contract.Var("n")).String())
	assert.Equal(t, "(p != null)", NonNull("p").String())
}
