// Package vcgen walks a function's CFG and produces the verification
// conditions that together establish its contract.
package vcgen

import (
	"github.com/lhaig/contractcheck/internal/diagnostic"
	"github.com/lhaig/contractcheck/internal/formula"
	"github.com/lhaig/contractcheck/internal/mir"
)

// Kind classifies what a VC establishes.
type Kind int

const (
	Precondition Kind = iota
	Postcondition
	Invariant
	LoopInvariantEntry
	LoopInvariantPreservation
	Termination
	Assertion
	DivisionByZero
)

var kindNames = [...]string{
	"precondition",
	"postcondition",
	"invariant",
	"loop_invariant_entry",
	"loop_invariant_preservation",
	"termination",
	"assertion",
	"division_by_zero",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Mode says how a VC is discharged.
type Mode int

const (
	// Validity VCs hold when their negation is unsatisfiable.
	Validity Mode = iota
	// Satisfiability VCs hold when the formula itself has a model.
	Satisfiability
)

func (m Mode) String() string {
	if m == Satisfiability {
		return "satisfiability"
	}
	return "validity"
}

// VC is one proof goal.
type VC struct {
	Name      string
	Kind      Kind
	Condition string // contract or invariant clause name, if any
	Formula   formula.Formula
	Location  diagnostic.Location
	Mode      Mode
	Path      []mir.BlockID // blocks walked to reach the goal
}
