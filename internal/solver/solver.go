// Package solver defines the decision-procedure interface used by the
// verification engine and the backends that implement it.
package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/lhaig/contractcheck/internal/formula"
)

// ErrSolver wraps every backend failure.
var ErrSolver = errors.New("solver error")

// Status is the answer to a satisfiability check.
type Status int

const (
	Sat Status = iota
	Unsat
	Unknown
	Timeout
)

func (s Status) String() string {
	switch s {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Value is a concrete model value.
type Value = formula.Value

// Model maps variable names to values after a Sat answer.
type Model map[string]Value

// Solver is an incremental satisfiability checker. Implementations are not
// safe for concurrent use; give each goroutine its own.
type Solver interface {
	// Assert adds f to the current scope.
	Assert(f formula.Formula) error
	// Push opens a scope.
	Push() error
	// Pop discards the innermost scope and everything asserted in it.
	Pop() error
	// CheckSat decides the conjunction of all live assertions. A context
	// deadline that expires first yields Timeout.
	CheckSat(ctx context.Context) (Status, error)
	// Model returns the witness for the last Sat answer.
	Model() (Model, error)
	Close() error
}

// Factory creates independent solvers.
type Factory func() (Solver, error)

// scopes is the assertion stack shared by the in-process backends.
type scopes struct {
	frames [][]formula.Formula
}

func newScopes() scopes {
	return scopes{frames: [][]formula.Formula{nil}}
}

func (s *scopes) assert(f formula.Formula) {
	top := len(s.frames) - 1
	s.frames[top] = append(s.frames[top], f)
}

func (s *scopes) push() {
	s.frames = append(s.frames, nil)
}

func (s *scopes) pop() error {
	if len(s.frames) == 1 {
		return fmt.Errorf("%w: pop without matching push", ErrSolver)
	}
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

func (s *scopes) all() []formula.Formula {
	var out []formula.Formula
	for _, fr := range s.frames {
		out = append(out, fr...)
	}
	return out
}
