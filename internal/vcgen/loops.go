package vcgen

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lhaig/contractcheck/internal/contract"
	"github.com/lhaig/contractcheck/internal/formula"
	"github.com/lhaig/contractcheck/internal/mir"
)

// enterLoop handles the first arrival at a loop header: the invariant must
// hold on entry, then every local the loop writes is replaced by a fresh
// value constrained only by the invariant. The walk continues from there as
// an arbitrary iteration.
func (g *Generator) enterLoop(f *frame, bb *mir.BasicBlock) error {
	loop := g.loops[bb.ID]
	if loop != nil {
		for _, cond := range loop.Conditions {
			inv, err := g.resolve(cond.Expr, f)
			if err != nil {
				return fmt.Errorf("loop invariant %q: %w", cond.Name, err)
			}
			g.emit(f, VC{Kind: LoopInvariantEntry, Condition: cond.Name, Formula: inv, Location: locOr(cond.Location, bb.Location)}, true)
		}
	} else {
		g.logger.Debug("loop without invariant; havocking only",
			zap.String("function", g.fn.Name), zap.Stringer("header", bb.ID))
	}

	for _, id := range g.modified(bb.ID) {
		name := sanitize(g.fn.LocalName(id))
		f.state[id] = g.freshVar(name+"_loop", sortOf(g.fn.LocalType(id)))
	}

	if loop != nil {
		for _, cond := range loop.Conditions {
			inv, err := g.resolve(cond.Expr, f)
			if err != nil {
				return fmt.Errorf("loop invariant %q: %w", cond.Name, err)
			}
			f.assume(inv)
		}
	}

	measure, lower, err := g.measure(f, bb.ID)
	if err != nil {
		return err
	}
	if measure != nil {
		f.loops[bb.ID] = &loopState{measure: measure, lower: lower}
	} else {
		f.loops[bb.ID] = &loopState{}
	}
	return nil
}

// closeLoop handles arrival at a block already on the walk: for a loop
// header the invariant must be re-established and the measure must have
// decreased while staying bounded.
func (g *Generator) closeLoop(f *frame) error {
	st, ok := f.loops[f.block]
	if !ok {
		return unsupported("control flow", fmt.Sprintf("cycle re-enters %s, which is not a loop header on this path", f.block))
	}
	bb := g.fn.Blocks[f.block]

	if loop := g.loops[f.block]; loop != nil {
		for _, cond := range loop.Conditions {
			inv, err := g.resolve(cond.Expr, f)
			if err != nil {
				return fmt.Errorf("loop invariant %q: %w", cond.Name, err)
			}
			g.emit(f, VC{Kind: LoopInvariantPreservation, Condition: cond.Name, Formula: inv, Location: locOr(cond.Location, bb.Location)}, true)
		}
	}

	if st.measure == nil {
		return nil
	}
	now, _, err := g.measure(f, f.block)
	if err != nil {
		return err
	}
	g.emit(f, VC{
		Kind:     Termination,
		Formula:  formula.Conj(formula.Lt(now, st.measure), formula.Ge(st.measure, st.lower)),
		Location: bb.Location,
	}, true)
	return nil
}

// measure evaluates the loop's variant, or the contract's decreases clause,
// in the frame's current state. Both results are nil when neither exists.
func (g *Generator) measure(f *frame, header mir.BlockID) (formula.Formula, formula.Formula, error) {
	var expr, lower contract.Expr
	if loop := g.loops[header]; loop != nil && loop.Variant != nil {
		expr, lower = loop.Variant.Expr, loop.Variant.LowerBound
	} else if g.c != nil && g.c.Decreases != nil {
		expr = g.c.Decreases
	}
	if expr == nil {
		return nil, nil, nil
	}
	if lower == nil {
		lower = contract.Int(0)
	}
	m, err := g.resolve(expr, f)
	if err != nil {
		return nil, nil, fmt.Errorf("loop variant: %w", err)
	}
	lb, err := g.resolve(lower, f)
	if err != nil {
		return nil, nil, fmt.Errorf("loop variant bound: %w", err)
	}
	return m, lb, nil
}

func (g *Generator) modified(header mir.BlockID) []mir.LocalID {
	if ids, ok := g.havoc[header]; ok {
		return ids
	}
	ids := mir.AssignedLocals(g.fn, mir.LoopBody(g.fn, header))
	g.havoc[header] = ids
	return ids
}
