package solver

import (
	"context"
	"fmt"

	"github.com/lhaig/contractcheck/internal/formula"
)

// Stub decides only ground formulas: the assertions are Sat when they
// evaluate to true without any variables and Unsat otherwise. It is meant
// for smoke tests of the engine plumbing.
type Stub struct {
	scopes
	sat    bool
	closed bool
}

// NewStub returns an empty Stub.
func NewStub() *Stub {
	return &Stub{scopes: newScopes()}
}

func (s *Stub) Assert(f formula.Formula) error {
	if s.closed {
		return fmt.Errorf("%w: stub closed", ErrSolver)
	}
	s.assert(f)
	return nil
}

func (s *Stub) Push() error {
	s.push()
	return nil
}

func (s *Stub) Pop() error { return s.pop() }

func (s *Stub) CheckSat(ctx context.Context) (Status, error) {
	if ctx.Err() != nil {
		return Timeout, nil
	}
	v, err := formula.Eval(formula.Conj(s.all()...), nil)
	s.sat = err == nil && v.Bool
	if s.sat {
		return Sat, nil
	}
	return Unsat, nil
}

func (s *Stub) Model() (Model, error) {
	if !s.sat {
		return nil, fmt.Errorf("%w: no model available", ErrSolver)
	}
	return Model{}, nil
}

func (s *Stub) Close() error {
	s.closed = true
	return nil
}
