package contract

// VerificationMethod records how an obligation is expected to be discharged.
type VerificationMethod int

const (
	DirectProof VerificationMethod = iota
	Induction
	Contradiction
	ModelChecking
	SymbolicExecutionMethod
	Z3Solver
)

func (m VerificationMethod) String() string {
	switch m {
	case DirectProof:
		return "direct_proof"
	case Induction:
		return "induction"
	case Contradiction:
		return "contradiction"
	case ModelChecking:
		return "model_checking"
	case SymbolicExecutionMethod:
		return "symbolic_execution"
	case Z3Solver:
		return "z3_solver"
	default:
		return "unknown"
	}
}

// Priority orders obligations for reporting.
type Priority int

const (
	Critical Priority = iota
	High
	Medium
	Low
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

// ObligationKind says whether Formula must be valid or merely satisfiable.
type ObligationKind int

const (
	Validity ObligationKind = iota
	Satisfiability
)

func (k ObligationKind) String() string {
	if k == Satisfiability {
		return "satisfiability"
	}
	return "validity"
}

// ProofObligation is a statement derived from a contract that a solver is
// asked to discharge.
type ProofObligation struct {
	ID          string
	Description string
	Formula     Expr
	Assumptions []Expr
	Method      VerificationMethod
	Priority    Priority
	Kind        ObligationKind
	Condition   string // name of the originating condition
}
