package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lhaig/contractcheck/internal/diagnostic"
	"github.com/lhaig/contractcheck/internal/mir"
	"github.com/lhaig/contractcheck/internal/solver"
	"github.com/lhaig/contractcheck/internal/translate"
)

// Status is the outcome of one condition.
type Status int

const (
	// StatusProved: the solver refuted the negated goal.
	StatusProved Status = iota
	// StatusRefuted: the solver found a counterexample.
	StatusRefuted
	StatusUnknown
	StatusTimeout
	// StatusSatisfiable: a satisfiability check found a witness.
	StatusSatisfiable
	// StatusVacuous: a satisfiability check found none, so everything
	// guarded by the condition holds trivially.
	StatusVacuous
	StatusError
)

var statusNames = [...]string{"proved", "refuted", "unknown", "timeout", "satisfiable", "vacuous", "error"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "invalid"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for i, n := range statusNames {
		if n == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Undecided reports whether the solver gave no answer.
func (s Status) Undecided() bool { return s == StatusUnknown || s == StatusTimeout }

// ConditionResult is the outcome of one verification condition.
type ConditionResult struct {
	Name     string              `json:"name"`
	Kind     string              `json:"kind"`
	Formula  string              `json:"formula"`
	Status   Status              `json:"status"`
	Verified bool                `json:"verified"`
	Location diagnostic.Location `json:"location"`
	Duration time.Duration       `json:"duration"`
	Message  string              `json:"message,omitempty"`
}

// Counterexample is a model refuting a condition, restricted to the
// condition's variables, with the blocks walked to reach it.
type Counterexample struct {
	Condition   string                  `json:"condition"`
	Assignments map[string]solver.Value `json:"assignments"`
	Trace       []string                `json:"trace"`
}

// ProofCertificate records how a condition was proved.
type ProofCertificate struct {
	ID          string   `json:"id"`
	Condition   string   `json:"condition"`
	Steps       []string `json:"steps"`
	Assumptions []string `json:"assumptions,omitempty"`
	Method      string   `json:"method"`
}

// VerificationResult is the outcome for one function. Verified holds only
// when generation succeeded and every condition was proved or found
// satisfiable.
type VerificationResult struct {
	RunID           string              `json:"run_id"`
	Function        string              `json:"function"`
	Location        diagnostic.Location `json:"location"`
	Verified        bool                `json:"verified"`
	Conditions      []ConditionResult   `json:"conditions"`
	Counterexamples []Counterexample    `json:"counterexamples,omitempty"`
	Proofs          []ProofCertificate  `json:"proofs,omitempty"`
	Err             error               `json:"-"`
	Duration        time.Duration       `json:"duration"`
}

// Worst returns the worst condition status, or StatusProved for a result
// without conditions. A generation error counts as StatusError.
func (r *VerificationResult) Worst() Status {
	if r.Err != nil {
		return StatusError
	}
	worst := StatusProved
	for _, c := range r.Conditions {
		if statusWorse(c.Status, worst) {
			worst = c.Status
		}
	}
	return worst
}

// Counts tallies conditions by status.
func (r *VerificationResult) Counts() map[Status]int {
	out := make(map[Status]int)
	for _, c := range r.Conditions {
		out[c.Status]++
	}
	return out
}

// ErrorKind classifies failures for reporting.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindUnsupported
	KindMalformed
	KindSolver
	KindCanceled
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnsupported:
		return "unsupported construct"
	case KindMalformed:
		return "malformed input"
	case KindSolver:
		return "solver error"
	case KindCanceled:
		return "canceled"
	default:
		return "error"
	}
}

// Classify maps an error to its kind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, translate.ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, mir.ErrMalformed):
		return KindMalformed
	case errors.Is(err, solver.ErrSolver):
		return KindSolver
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindOther
	}
}
