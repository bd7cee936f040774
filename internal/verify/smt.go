package verify

import (
	"fmt"

	"github.com/lhaig/contractcheck/internal/contract"
	"github.com/lhaig/contractcheck/internal/formula"
	"github.com/lhaig/contractcheck/internal/mir"
	"github.com/lhaig/contractcheck/internal/vcgen"
)

// Script is a standalone SMT-LIB 2 problem for one condition.
type Script struct {
	Name string
	Text string
}

// Scripts renders the conditions of fn as SMT-LIB 2 problems that an
// external solver can check. Validity conditions hold when the script is
// unsat; satisfiability conditions hold when it is sat.
func (e *Engine) Scripts(fn *mir.Function, c *contract.FunctionContract) ([]Script, error) {
	if c == nil {
		c, _ = e.Contract(fn.Name)
	}
	gen := vcgen.New(vcgen.WithLogger(e.logger), vcgen.WithLoops(e.loopsFor(fn.Name)...))
	vcs, err := gen.GenerateFunctionVCs(fn, c)
	if err != nil {
		return nil, err
	}
	facts, err := e.background(fn.Name, c)
	if err != nil {
		return nil, err
	}

	out := make([]Script, 0, len(vcs))
	for _, vc := range vcs {
		goal := vc.Formula
		if vc.Mode == vcgen.Satisfiability {
			goal = formula.Negate(goal)
		}
		title := fmt.Sprintf("%s in %s (%s)", vc.Name, fn.Name, vc.Mode)
		out = append(out, Script{Name: vc.Name, Text: formula.Script(title, facts, goal)})
	}
	return out, nil
}
