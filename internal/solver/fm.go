package solver

import (
	"context"
	"math/big"
	"sort"
)

// linear is sum(coef[x] * x) + k over exact rationals.
type linear struct {
	coef map[string]*big.Rat
	k    *big.Rat
}

func constant(k *big.Rat) linear {
	return linear{coef: map[string]*big.Rat{}, k: new(big.Rat).Set(k)}
}

func variable(name string) linear {
	return linear{coef: map[string]*big.Rat{name: big.NewRat(1, 1)}, k: new(big.Rat)}
}

// plus returns a + s*b.
func (a linear) plus(b linear, s *big.Rat) linear {
	out := a.scaled(big.NewRat(1, 1))
	for x, c := range b.coef {
		t := new(big.Rat).Mul(c, s)
		if prev, ok := out.coef[x]; ok {
			t.Add(t, prev)
		}
		if t.Sign() == 0 {
			delete(out.coef, x)
		} else {
			out.coef[x] = t
		}
	}
	out.k.Add(out.k, new(big.Rat).Mul(b.k, s))
	return out
}

func (a linear) scaled(s *big.Rat) linear {
	out := linear{coef: make(map[string]*big.Rat, len(a.coef)), k: new(big.Rat).Mul(a.k, s)}
	if s.Sign() == 0 {
		return out
	}
	for x, c := range a.coef {
		out.coef[x] = new(big.Rat).Mul(c, s)
	}
	return out
}

func (a linear) isConst() bool { return len(a.coef) == 0 }

type rel int

const (
	relLe rel = iota // <= 0
	relLt            // < 0
	relEq            // = 0
)

type constraint struct {
	linear
	rel rel
}

// holds evaluates a constraint without variables.
func (c constraint) holds() bool {
	switch c.rel {
	case relEq:
		return c.k.Sign() == 0
	case relLt:
		return c.k.Sign() < 0
	default:
		return c.k.Sign() <= 0
	}
}

// tighten rewrites a constraint over integer variables to integer
// coefficients divided by their gcd, turning < into <=. It reports false
// when the constraint has no integer solution.
func tighten(c constraint, ints map[string]bool) (constraint, bool) {
	if c.isConst() {
		return c, true
	}
	for x := range c.coef {
		if !ints[x] {
			return c, true
		}
	}

	lcm := new(big.Int).Set(c.k.Denom())
	for _, v := range c.coef {
		d := v.Denom()
		g := new(big.Int).GCD(nil, nil, lcm, d)
		lcm.Mul(lcm, new(big.Int).Quo(d, g))
	}
	c.linear = c.scaled(new(big.Rat).SetInt(lcm))
	if c.rel == relLt {
		c.k.Add(c.k, big.NewRat(1, 1))
		c.rel = relLe
	}

	g := new(big.Int)
	for _, v := range c.coef {
		g.GCD(nil, nil, g, new(big.Int).Abs(v.Num()))
	}
	if g.Cmp(big.NewInt(1)) <= 0 {
		return c, true
	}
	gr := new(big.Rat).SetInt(g)
	k := new(big.Rat).Quo(c.k, gr)
	if c.rel == relEq {
		if !k.IsInt() {
			return c, false
		}
	} else {
		k = ceil(k)
	}
	for x, v := range c.coef {
		c.coef[x] = new(big.Rat).Quo(v, gr)
	}
	c.k = k
	return c, true
}

func ceil(r *big.Rat) *big.Rat {
	q, m := new(big.Int).DivMod(r.Num(), r.Denom(), new(big.Int))
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return new(big.Rat).SetInt(q)
}

func floor(r *big.Rat) *big.Rat {
	q, _ := new(big.Int).DivMod(r.Num(), r.Denom(), new(big.Int))
	return new(big.Rat).SetInt(q)
}

// elimination records the constraints that bounded a variable when it
// was projected away, for back-substitution.
type elimination struct {
	name string
	cons []constraint
}

// eliminate projects every variable out of cons. Equalities are solved
// and substituted first; inequalities are combined pairwise. It reports
// unsat once a ground constraint fails.
func eliminate(ctx context.Context, cons []constraint, ints map[string]bool) ([]elimination, bool, error) {
	var order []elimination
	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		if len(cons) > maxConstraints {
			return nil, false, errTooLarge
		}

		live := cons[:0:0]
		for _, c := range cons {
			t, ok := tighten(c, ints)
			if !ok {
				return order, true, nil
			}
			if t.isConst() {
				if !t.holds() {
					return order, true, nil
				}
				continue
			}
			live = append(live, t)
		}
		cons = live
		if len(cons) == 0 {
			return order, false, nil
		}

		if i, x := pickEquality(cons, ints); i >= 0 {
			eq := cons[i]
			order = append(order, elimination{name: x, cons: []constraint{eq}})
			a := eq.coef[x]
			next := make([]constraint, 0, len(cons)-1)
			for j, c := range cons {
				if j == i {
					continue
				}
				if b, ok := c.coef[x]; ok {
					s := new(big.Rat).Quo(b, a)
					c = constraint{linear: c.plus(eq.linear, s.Neg(s)), rel: c.rel}
					delete(c.coef, x)
				}
				next = append(next, c)
			}
			cons = next
			continue
		}

		x := pickVariable(cons)
		var lower, upper, rest []constraint
		for _, c := range cons {
			a, ok := c.coef[x]
			switch {
			case !ok:
				rest = append(rest, c)
			case a.Sign() < 0:
				lower = append(lower, c)
			default:
				upper = append(upper, c)
			}
		}
		order = append(order, elimination{name: x, cons: append(append([]constraint(nil), lower...), upper...)})
		for _, l := range lower {
			for _, u := range upper {
				al := new(big.Rat).Neg(l.coef[x])
				au := u.coef[x]
				combined := l.scaled(au).plus(u.linear, al)
				delete(combined.coef, x)
				r := relLe
				if l.rel == relLt || u.rel == relLt {
					r = relLt
				}
				rest = append(rest, constraint{linear: combined, rel: r})
			}
		}
		cons = rest
	}
}

// pickEquality prefers an equality with a unit coefficient on an integer
// variable, where substitution loses nothing.
func pickEquality(cons []constraint, ints map[string]bool) (int, string) {
	best, bestVar := -1, ""
	for i, c := range cons {
		if c.rel != relEq {
			continue
		}
		for _, x := range sortedNames(c.coef) {
			unit := c.coef[x].IsInt() && new(big.Int).Abs(c.coef[x].Num()).Cmp(big.NewInt(1)) == 0
			if unit || !ints[x] {
				return i, x
			}
			if best < 0 {
				best, bestVar = i, x
			}
		}
	}
	return best, bestVar
}

// pickVariable chooses the variable whose elimination creates the fewest
// new constraints.
func pickVariable(cons []constraint) string {
	type count struct{ lo, hi int }
	counts := make(map[string]*count)
	for _, c := range cons {
		for x, a := range c.coef {
			n := counts[x]
			if n == nil {
				n = &count{}
				counts[x] = n
			}
			if a.Sign() < 0 {
				n.lo++
			} else {
				n.hi++
			}
		}
	}
	names := make([]string, 0, len(counts))
	for x := range counts {
		names = append(names, x)
	}
	sort.Strings(names)
	best, cost := "", 0
	for i, x := range names {
		n := counts[x]
		c := n.lo*n.hi - n.lo - n.hi
		if i == 0 || c < cost {
			best, cost = x, c
		}
	}
	return best
}

// bounds is the interval a variable may take given the values of the
// variables eliminated after it.
type bounds struct {
	lo, hi             *big.Rat
	loStrict, hiStrict bool
	exact              *big.Rat
}

func (b *bounds) admits(v *big.Rat) bool {
	if b.lo != nil {
		if c := v.Cmp(b.lo); c < 0 || c == 0 && b.loStrict {
			return false
		}
	}
	if b.hi != nil {
		if c := v.Cmp(b.hi); c > 0 || c == 0 && b.hiStrict {
			return false
		}
	}
	return true
}

func boundsOf(e elimination, vals map[string]*big.Rat) bounds {
	var b bounds
	for _, c := range e.cons {
		a := c.coef[e.name]
		rest := new(big.Rat).Set(c.k)
		for x, v := range c.coef {
			if x == e.name {
				continue
			}
			rest.Add(rest, new(big.Rat).Mul(v, vals[x]))
		}
		// a*x + rest rel 0
		at := new(big.Rat).Quo(rest.Neg(rest), a)
		strict := c.rel == relLt
		switch {
		case c.rel == relEq:
			b.exact = at
		case a.Sign() > 0:
			if b.hi == nil || at.Cmp(b.hi) < 0 || at.Cmp(b.hi) == 0 && strict {
				b.hi, b.hiStrict = at, strict
			}
		default:
			if b.lo == nil || at.Cmp(b.lo) > 0 || at.Cmp(b.lo) == 0 && strict {
				b.lo, b.loStrict = at, strict
			}
		}
	}
	return b
}

// search assigns the eliminated variables in reverse elimination order,
// trying candidate values closest to zero first and backtracking until
// accept takes a full assignment or the step budget runs out.
func search(ctx context.Context, order []elimination, ints map[string]bool, accept func(map[string]*big.Rat) bool, budget *int) bool {
	vals := make(map[string]*big.Rat, len(order))
	var walk func(i int) bool
	walk = func(i int) bool {
		if i < 0 {
			return accept(vals)
		}
		*budget--
		if *budget < 0 || ctx.Err() != nil {
			return false
		}
		e := order[i]
		b := boundsOf(e, vals)
		for _, v := range candidates(b, ints[e.name]) {
			vals[e.name] = v
			if walk(i - 1) {
				return true
			}
			if *budget < 0 {
				break
			}
		}
		delete(vals, e.name)
		return false
	}
	return walk(len(order) - 1)
}

func candidates(b bounds, integer bool) []*big.Rat {
	if b.exact != nil {
		if b.admits(b.exact) && (!integer || b.exact.IsInt()) {
			return []*big.Rat{b.exact}
		}
		return nil
	}
	if integer {
		return intCandidates(b)
	}
	return realCandidates(b)
}
