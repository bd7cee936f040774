package contract

import (
	"fmt"

	"github.com/lhaig/contractcheck/internal/diagnostic"
)

// FailureKind tags what a runtime check does when a condition fails.
type FailureKind int

const (
	ThrowException FailureKind = iota
	ReturnError
	LogAndContinue
	Abort
	CustomHandler
)

// FailureAction is the runtime reaction to a violated condition. Message
// carries the exception or error text; Handler names a custom handler.
type FailureAction struct {
	Kind    FailureKind
	Message string
	Handler string
}

func (a FailureAction) String() string {
	switch a.Kind {
	case ThrowException:
		return fmt.Sprintf("throw(%q)", a.Message)
	case ReturnError:
		return fmt.Sprintf("return_error(%q)", a.Message)
	case LogAndContinue:
		return "log_and_continue"
	case Abort:
		return "abort"
	case CustomHandler:
		return fmt.Sprintf("handler(%s)", a.Handler)
	default:
		return "unknown"
	}
}

// HintKind is the advisory solving strategy of a condition.
type HintKind int

const (
	SMTSolver HintKind = iota
	SymbolicExecution
	AbstractInterpretation
	StaticCheck
	RuntimeOnly
	CustomHint
)

// VerificationHint advises the verifier how a condition should be handled.
// Name is only set for CustomHint.
type VerificationHint struct {
	Kind HintKind
	Name string
}

func (h VerificationHint) String() string {
	switch h.Kind {
	case SMTSolver:
		return "smt"
	case SymbolicExecution:
		return "symbolic_execution"
	case AbstractInterpretation:
		return "abstract_interpretation"
	case StaticCheck:
		return "static_check"
	case RuntimeOnly:
		return "runtime_only"
	case CustomHint:
		return "custom(" + h.Name + ")"
	default:
		return "unknown"
	}
}

// EnhancedCondition is a named contract clause with its handling metadata.
type EnhancedCondition struct {
	Name             string
	Expr             Expr
	Location         diagnostic.Location
	ProofHint        string
	FailureAction    FailureAction
	VerificationHint VerificationHint
}

// Precondition builds a condition with the defaults used for requires clauses.
func Precondition(name string, e Expr, loc diagnostic.Location) EnhancedCondition {
	return EnhancedCondition{
		Name:          name,
		Expr:          e,
		Location:      loc,
		FailureAction: FailureAction{Kind: ThrowException, Message: "Precondition violation"},
	}
}

// Postcondition builds a condition with the defaults used for ensures clauses.
func Postcondition(name string, e Expr, loc diagnostic.Location) EnhancedCondition {
	return EnhancedCondition{
		Name:          name,
		Expr:          e,
		Location:      loc,
		FailureAction: FailureAction{Kind: ThrowException, Message: "Postcondition violation"},
	}
}

// Invariant builds a condition with the defaults used for invariants.
func Invariant(name string, e Expr, loc diagnostic.Location) EnhancedCondition {
	return EnhancedCondition{
		Name:          name,
		Expr:          e,
		Location:      loc,
		FailureAction: FailureAction{Kind: Abort},
	}
}
