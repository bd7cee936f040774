package solver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhaig/contractcheck/internal/formula"
)

var (
	x = formula.NewVar("x", formula.SortInt)
	y = formula.NewVar("y", formula.SortInt)
	b = formula.NewVar("b", formula.SortInt)
	r = formula.NewVar("r", formula.SortReal)
	p = formula.NewVar("p", formula.SortBool)
)

func gt(l, r formula.Formula) formula.Formula { return formula.Bin(formula.OpGt, l, r) }

func check(t *testing.T, fs ...formula.Formula) (Status, *Linear) {
	t.Helper()
	s := NewLinear()
	for _, f := range fs {
		require.NoError(t, s.Assert(f))
	}
	status, err := s.CheckSat(context.Background())
	require.NoError(t, err)
	return status, s
}

func TestLinearDecisions(t *testing.T) {
	tests := []struct {
		name string
		fs   []formula.Formula
		want Status
	}{
		{"valid implication negated", []formula.Formula{formula.Negate(formula.Imply(gt(x, formula.Int(0)), formula.Ge(x, formula.Int(0))))}, Unsat},
		{"no integer strictly between 0 and 1", []formula.Formula{gt(x, formula.Int(0)), formula.Lt(x, formula.Int(1))}, Unsat},
		{"even number equals odd constant", []formula.Formula{formula.Eq(formula.Bin(formula.OpMul, formula.Int(2), x), formula.Int(1))}, Unsat},
		{"modulo fixes parity", []formula.Formula{
			formula.Eq(formula.Bin(formula.OpMod, x, formula.Int(2)), formula.Int(1)),
			formula.Eq(x, formula.Int(4)),
		}, Unsat},
		{"contradicting literals", []formula.Formula{p, formula.Negate(p)}, Unsat},
		{"absolute value is never negative", []formula.Formula{formula.Eq(
			&formula.Ite{Cond: formula.Ge(x, formula.Int(0)), Then: x, Else: formula.Bin(formula.OpSub, formula.Int(0), x)},
			formula.Int(-1))}, Unsat},
		{"chained bounds", []formula.Formula{formula.Lt(x, y), formula.Lt(y, b), formula.Le(b, x)}, Unsat},
		{"satisfiable range", []formula.Formula{gt(x, formula.Int(0)), formula.Lt(x, formula.Int(10))}, Sat},
		{"disjunction with one live branch", []formula.Formula{formula.Disj(formula.Lt(x, x), formula.Eq(x, formula.Int(7)))}, Sat},
		{"nonlinear product", []formula.Formula{formula.Eq(formula.Bin(formula.OpMul, x, y), formula.Int(1))}, Unknown},
		{"array read", []formula.Formula{formula.Eq(&formula.Select{Array: formula.NewVar("a", formula.SortArray), Index: x}, formula.Int(1))}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := check(t, tt.fs...)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLinearModelClosestToZero(t *testing.T) {
	status, s := check(t, formula.Negate(formula.Imply(gt(x, formula.Int(0)), formula.Ge(x, formula.Int(10)))))
	require.Equal(t, Sat, status)
	m, err := s.Model()
	require.NoError(t, err)
	assert.Equal(t, Model{"x": formula.IntValue(1)}, m)
}

func TestLinearDivisorCounterexample(t *testing.T) {
	status, s := check(t, formula.Negate(formula.Ne(b, formula.Int(0))))
	require.Equal(t, Sat, status)
	m, err := s.Model()
	require.NoError(t, err)
	assert.Equal(t, formula.IntValue(0), m["b"])
}

func TestLinearRealInterval(t *testing.T) {
	status, s := check(t, gt(r, formula.Real(0.5)), formula.Lt(r, formula.Real(1)))
	require.Equal(t, Sat, status)
	m, err := s.Model()
	require.NoError(t, err)
	assert.InDelta(t, 0.75, m["r"].Real, 1e-9)
}

func TestLinearScopes(t *testing.T) {
	s := NewLinear()
	ctx := context.Background()
	require.NoError(t, s.Assert(gt(x, formula.Int(0))))

	require.NoError(t, s.Push())
	require.NoError(t, s.Assert(formula.Lt(x, formula.Int(0))))
	status, err := s.CheckSat(ctx)
	require.NoError(t, err)
	assert.Equal(t, Unsat, status)
	require.NoError(t, s.Pop())

	status, err = s.CheckSat(ctx)
	require.NoError(t, err)
	assert.Equal(t, Sat, status)

	err = s.Pop()
	assert.True(t, errors.Is(err, ErrSolver))
}

func TestLinearExpiredContextIsTimeout(t *testing.T) {
	s := NewLinear()
	require.NoError(t, s.Assert(gt(x, formula.Int(0))))
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	status, err := s.CheckSat(ctx)
	require.NoError(t, err)
	assert.Equal(t, Timeout, status)
}

func TestLinearModelRequiresSat(t *testing.T) {
	status, s := check(t, formula.Bool(false))
	require.Equal(t, Unsat, status)
	_, err := s.Model()
	assert.True(t, errors.Is(err, ErrSolver))

	require.NoError(t, s.Close())
	assert.True(t, errors.Is(s.Assert(formula.Bool(true)), ErrSolver))
}

func TestLinearIntervalProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("an interval is satisfiable exactly when it is non-empty", prop.ForAll(
		func(lo, hi int64) bool {
			s := NewLinear()
			_ = s.Assert(formula.Ge(x, formula.Int(lo)))
			_ = s.Assert(formula.Le(x, formula.Int(hi)))
			status, err := s.CheckSat(context.Background())
			if err != nil {
				return false
			}
			if lo > hi {
				return status == Unsat
			}
			if status != Sat {
				return false
			}
			m, err := s.Model()
			return err == nil && m["x"].Int >= lo && m["x"].Int <= hi
		},
		gen.Int64Range(-1000, 1000),
		gen.Int64Range(-1000, 1000),
	))

	properties.TestingRun(t)
}
