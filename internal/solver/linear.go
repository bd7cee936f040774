package solver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"go.uber.org/zap"

	"github.com/lhaig/contractcheck/internal/formula"
)

const (
	// maxCubes bounds the disjunctive normal form of one check.
	maxCubes = 4096
	// maxConstraints bounds the constraint set during elimination.
	maxConstraints = 4096
	// maxSteps bounds the model search of one cube.
	maxSteps = 20000
)

var errTooLarge = errors.New("problem too large")

// Linear is a complete-for-refutation decision procedure for quantifier
// free linear integer and real arithmetic with propositional structure.
// Unsat answers come from Fourier-Motzkin elimination over each cube of
// the DNF, with integer constraints tightened after every step. Sat
// answers are only given with a model that evaluates every assertion to
// true. Anything in between is Unknown.
type Linear struct {
	scopes
	logger *zap.Logger
	model  Model
	closed bool
}

// LinearOption configures a Linear solver.
type LinearOption func(*Linear)

// WithLinearLogger sets the logger.
func WithLinearLogger(l *zap.Logger) LinearOption {
	return func(s *Linear) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewLinear returns an empty Linear solver.
func NewLinear(opts ...LinearOption) *Linear {
	s := &Linear{scopes: newScopes(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Linear) Assert(f formula.Formula) error {
	if s.closed {
		return fmt.Errorf("%w: linear solver closed", ErrSolver)
	}
	if f == nil {
		return fmt.Errorf("%w: nil assertion", ErrSolver)
	}
	s.assert(f)
	return nil
}

func (s *Linear) Push() error {
	s.push()
	return nil
}

func (s *Linear) Pop() error { return s.pop() }

func (s *Linear) Close() error {
	s.closed = true
	return nil
}

func (s *Linear) Model() (Model, error) {
	if s.model == nil {
		return nil, fmt.Errorf("%w: no model available", ErrSolver)
	}
	out := make(Model, len(s.model))
	for k, v := range s.model {
		out[k] = v
	}
	return out, nil
}

func (s *Linear) CheckSat(ctx context.Context) (Status, error) {
	s.model = nil
	if ctx.Err() != nil {
		return Timeout, nil
	}
	assertions := s.all()
	p := newProblem(assertions)

	cubes, err := p.dnf(formula.Conj(assertions...), true)
	if errors.Is(err, errTooLarge) {
		s.logger.Debug("formula too large for case split", zap.Int("assertions", len(assertions)))
		return Unknown, nil
	}
	if err != nil {
		return Unknown, err
	}

	undecided := false
	for _, c := range cubes {
		if ctx.Err() != nil {
			return Timeout, nil
		}
		status, model := p.solveCube(ctx, c)
		switch status {
		case Unsat:
			continue
		case Sat:
			s.model = model
			return Sat, nil
		case Timeout:
			return Timeout, nil
		default:
			undecided = true
		}
	}
	if undecided {
		return Unknown, nil
	}
	return Unsat, nil
}

// problem is the per-check state: sorts of the original variables and the
// auxiliary variables introduced while linearizing.
type problem struct {
	assertions []formula.Formula
	env        map[string]formula.Sort
	vars       []*formula.Var
	ints       map[string]bool
	aux        map[string]bool
	terms      map[string]string
	evaluable  bool
}

func newProblem(assertions []formula.Formula) *problem {
	p := &problem{
		assertions: assertions,
		env:        formula.Infer(assertions...),
		vars:       formula.FreeVars(assertions...),
		ints:       make(map[string]bool),
		aux:        make(map[string]bool),
		terms:      make(map[string]string),
		evaluable:  true,
	}
	for _, v := range p.vars {
		if p.sortOf(v) == formula.SortInt {
			p.ints[v.Name] = true
		}
	}
	for _, a := range assertions {
		formula.Walk(a, func(f formula.Formula) bool {
			switch f.(type) {
			case *formula.Quantifier, *formula.Select, *formula.Store:
				p.evaluable = false
			}
			return p.evaluable
		})
	}
	return p
}

func (p *problem) sortOf(v *formula.Var) formula.Sort {
	if v.Sort != formula.SortUnknown {
		return v.Sort
	}
	if s := p.env[v.Name]; s != formula.SortUnknown {
		return s
	}
	return formula.SortInt
}

// cube is a conjunction of linear constraints and propositional literals.
type cube struct {
	cons  []constraint
	bools map[string]bool
}

func (c cube) merge(o cube) (cube, bool) {
	out := cube{
		cons:  append(append([]constraint(nil), c.cons...), o.cons...),
		bools: make(map[string]bool, len(c.bools)+len(o.bools)),
	}
	for k, v := range c.bools {
		out.bools[k] = v
	}
	for k, v := range o.bools {
		if prev, ok := out.bools[k]; ok && prev != v {
			return cube{}, false
		}
		out.bools[k] = v
	}
	return out, true
}

func product(a, b []cube) ([]cube, error) {
	if len(a)*len(b) > maxCubes {
		return nil, errTooLarge
	}
	out := make([]cube, 0, len(a)*len(b))
	for _, x := range a {
		for _, y := range b {
			if c, ok := x.merge(y); ok {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func union(a, b []cube) ([]cube, error) {
	if len(a)+len(b) > maxCubes {
		return nil, errTooLarge
	}
	return append(a, b...), nil
}

func truth() []cube { return []cube{{}} }

func literal(name string, pos bool) []cube {
	return []cube{{bools: map[string]bool{name: pos}}}
}

func atom(cons ...constraint) []cube {
	return []cube{{cons: cons}}
}

// dnf expands f (or its negation when pos is false) into cubes.
func (p *problem) dnf(f formula.Formula, pos bool) ([]cube, error) {
	switch n := f.(type) {
	case *formula.BoolLit:
		if n.Value == pos {
			return truth(), nil
		}
		return nil, nil

	case *formula.Var:
		return literal(n.Name, pos), nil

	case *formula.Not:
		return p.dnf(n.Arg, !pos)

	case *formula.And:
		return p.junction(n.Args, pos, true)

	case *formula.Or:
		return p.junction(n.Args, pos, false)

	case *formula.Implies:
		l, err := p.dnf(n.Left, !pos)
		if err != nil {
			return nil, err
		}
		r, err := p.dnf(n.Right, pos)
		if err != nil {
			return nil, err
		}
		if pos {
			return union(l, r)
		}
		return product(l, r)

	case *formula.Ite:
		return p.dnf(formula.Disj(
			formula.Conj(n.Cond, n.Then),
			formula.Conj(formula.Negate(n.Cond), n.Else),
		), pos)

	case *formula.Binary:
		if !n.Op.IsComparison() {
			break
		}
		if ite := findIte(n); ite != nil {
			return p.dnf(formula.Disj(
				formula.Conj(ite.Cond, replace(n, ite, ite.Then)),
				formula.Conj(formula.Negate(ite.Cond), replace(n, ite, ite.Else)),
			), pos)
		}
		ls := formula.SortOf(n.Left, p.env, nil)
		rs := formula.SortOf(n.Right, p.env, nil)
		if ls == formula.SortBool || rs == formula.SortBool {
			if n.Op != formula.OpEq && n.Op != formula.OpNe {
				break
			}
			iff := formula.Disj(
				formula.Conj(n.Left, n.Right),
				formula.Conj(formula.Negate(n.Left), formula.Negate(n.Right)),
			)
			return p.dnf(iff, pos == (n.Op == formula.OpEq))
		}
		if ls == formula.SortArray || rs == formula.SortArray {
			break
		}
		return p.comparison(n, pos), nil
	}
	return literal(p.opaque(f, formula.SortBool), pos), nil
}

func (p *problem) junction(args []formula.Formula, pos, and bool) ([]cube, error) {
	// a positive And and a negated Or both multiply out
	multiply := pos == and
	var acc []cube
	if multiply {
		acc = truth()
	}
	for _, a := range args {
		next, err := p.dnf(a, pos)
		if err != nil {
			return nil, err
		}
		if multiply {
			acc, err = product(acc, next)
		} else {
			acc, err = union(acc, next)
		}
		if err != nil {
			return nil, err
		}
		if multiply && len(acc) == 0 {
			return nil, nil
		}
	}
	return acc, nil
}

var negatedOp = map[formula.Op]formula.Op{
	formula.OpEq: formula.OpNe,
	formula.OpNe: formula.OpEq,
	formula.OpLt: formula.OpGe,
	formula.OpLe: formula.OpGt,
	formula.OpGt: formula.OpLe,
	formula.OpGe: formula.OpLt,
}

func (p *problem) comparison(n *formula.Binary, pos bool) []cube {
	op := n.Op
	if !pos {
		op = negatedOp[op]
	}
	var side []constraint
	l := p.linearize(n.Left, &side)
	r := p.linearize(n.Right, &side)
	diff := l.plus(r, big.NewRat(-1, 1))
	neg := diff.scaled(big.NewRat(-1, 1))

	with := func(c constraint) []constraint {
		return append(append([]constraint(nil), side...), c)
	}
	switch op {
	case formula.OpEq:
		return atom(with(constraint{linear: diff, rel: relEq})...)
	case formula.OpNe:
		return []cube{
			{cons: with(constraint{linear: diff, rel: relLt})},
			{cons: with(constraint{linear: neg, rel: relLt})},
		}
	case formula.OpLt:
		return atom(with(constraint{linear: diff, rel: relLt})...)
	case formula.OpLe:
		return atom(with(constraint{linear: diff, rel: relLe})...)
	case formula.OpGt:
		return atom(with(constraint{linear: neg, rel: relLt})...)
	default:
		return atom(with(constraint{linear: neg, rel: relLe})...)
	}
}

// linearize turns an arithmetic term into a linear form. Terms outside
// linear arithmetic become auxiliary variables; integer division and
// modulo by a constant introduce a quotient variable whose defining
// constraints are appended to side.
func (p *problem) linearize(t formula.Formula, side *[]constraint) linear {
	switch n := t.(type) {
	case *formula.IntLit:
		return constant(new(big.Rat).SetInt64(n.Value))
	case *formula.RealLit:
		if r := new(big.Rat).SetFloat64(n.Value); r != nil {
			return constant(r)
		}
	case *formula.Var:
		if p.sortOf(n) == formula.SortInt || p.sortOf(n) == formula.SortReal {
			return variable(n.Name)
		}
	case *formula.Binary:
		switch n.Op {
		case formula.OpAdd:
			return p.linearize(n.Left, side).plus(p.linearize(n.Right, side), big.NewRat(1, 1))
		case formula.OpSub:
			return p.linearize(n.Left, side).plus(p.linearize(n.Right, side), big.NewRat(-1, 1))
		case formula.OpMul:
			l := p.linearize(n.Left, side)
			r := p.linearize(n.Right, side)
			if l.isConst() {
				return r.scaled(l.k)
			}
			if r.isConst() {
				return l.scaled(r.k)
			}
		case formula.OpDiv, formula.OpMod:
			return p.division(n, side)
		}
	}
	return variable(p.opaque(t, formula.SortOf(t, p.env, nil)))
}

func (p *problem) division(n *formula.Binary, side *[]constraint) linear {
	l := p.linearize(n.Left, side)
	r := p.linearize(n.Right, side)
	if !r.isConst() || r.k.Sign() == 0 {
		return variable(p.opaque(n, formula.SortOf(n, p.env, nil)))
	}
	if formula.SortOf(n, p.env, nil) == formula.SortReal {
		if n.Op == formula.OpMod {
			return variable(p.opaque(n, formula.SortReal))
		}
		return l.scaled(new(big.Rat).Inv(r.k))
	}
	if !r.k.IsInt() {
		return variable(p.opaque(n, formula.SortInt))
	}

	// a = c*q + m with 0 <= m <= |c|-1
	key := "div(" + n.Left.String() + "," + n.Right.String() + ")"
	q, seen := p.terms[key]
	if !seen {
		q = fmt.Sprintf("q!%d", len(p.terms))
		p.terms[key] = q
		p.aux[q] = true
		p.ints[q] = true
	}
	c := r.k
	m := l.plus(variable(q), new(big.Rat).Neg(c))
	abs := new(big.Rat).Abs(c)
	*side = append(*side,
		constraint{linear: m.scaled(big.NewRat(-1, 1)), rel: relLe},
		constraint{linear: m.plus(constant(new(big.Rat).Sub(abs, big.NewRat(1, 1))), big.NewRat(-1, 1)), rel: relLe},
	)
	if n.Op == formula.OpMod {
		return m
	}
	return variable(q)
}

// opaque names a term the procedure does not interpret. Equal terms share
// a name so repeated occurrences stay related.
func (p *problem) opaque(t formula.Formula, sort formula.Sort) string {
	key := t.String()
	if name, ok := p.terms[key]; ok {
		return name
	}
	name := fmt.Sprintf("t!%d", len(p.terms))
	p.terms[key] = name
	p.aux[name] = true
	if sort != formula.SortReal && sort != formula.SortBool {
		p.ints[name] = true
	}
	return name
}

func findIte(f formula.Formula) *formula.Ite {
	var found *formula.Ite
	formula.Walk(f, func(g formula.Formula) bool {
		if found != nil {
			return false
		}
		if ite, ok := g.(*formula.Ite); ok {
			found = ite
			return false
		}
		_, q := g.(*formula.Quantifier)
		return !q
	})
	return found
}

func replace(f formula.Formula, target, with formula.Formula) formula.Formula {
	if f == target {
		return with
	}
	kids := formula.Children(f)
	if len(kids) == 0 {
		return f
	}
	out := make([]formula.Formula, len(kids))
	for i, k := range kids {
		out[i] = replace(k, target, with)
	}
	return formula.Rebuild(f, out)
}

// solveCube refutes a cube or searches it for a model of the original
// assertions.
func (p *problem) solveCube(ctx context.Context, c cube) (Status, Model) {
	order, unsat, err := eliminate(ctx, c.cons, p.ints)
	switch {
	case err != nil && ctx.Err() != nil:
		return Timeout, nil
	case err != nil:
		return Unknown, nil
	case unsat:
		return Unsat, nil
	case !p.evaluable:
		return Unknown, nil
	}

	var found Model
	accept := func(vals map[string]*big.Rat) bool {
		m := p.model(vals, c.bools)
		v, err := formula.Eval(formula.Conj(p.assertions...), m)
		if err != nil || !v.Bool {
			return false
		}
		found = m
		return true
	}
	budget := maxSteps
	if search(ctx, order, p.ints, accept, &budget) {
		return Sat, found
	}
	if ctx.Err() != nil {
		return Timeout, nil
	}
	return Unknown, nil
}

// model completes a search assignment over the original variables.
// Variables the cube leaves unconstrained default to zero or false.
func (p *problem) model(vals map[string]*big.Rat, bools map[string]bool) Model {
	m := make(Model, len(p.vars))
	for _, v := range p.vars {
		switch p.sortOf(v) {
		case formula.SortBool:
			m[v.Name] = formula.BoolValue(bools[v.Name])
		case formula.SortReal:
			f := 0.0
			if r, ok := vals[v.Name]; ok {
				f, _ = r.Float64()
			}
			m[v.Name] = formula.RealValue(f)
		default:
			var i int64
			if r, ok := vals[v.Name]; ok && r.IsInt() && r.Num().IsInt64() {
				i = r.Num().Int64()
			}
			m[v.Name] = formula.IntValue(i)
		}
	}
	return m
}

func sortedNames(m map[string]*big.Rat) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
