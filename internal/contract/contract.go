package contract

import (
	"errors"
	"fmt"
)

// ErrDuplicateCondition is returned when a condition name is already used
// in the list it is being added to.
var ErrDuplicateCondition = errors.New("duplicate condition name")

// Param is a typed function parameter visible to contract expressions.
type Param struct {
	Name string
	Type Type
}

// FunctionContract collects every clause attached to one function.
type FunctionContract struct {
	Name           string
	Params         []Param
	Preconditions  []EnhancedCondition
	Postconditions []EnhancedCondition
	Invariants     []EnhancedCondition
	Modifies       []string
	Pure           bool
	Decreases      Expr

	obligations    []ProofObligation
	failureActions map[string]FailureAction
}

// New creates an empty contract for the named function.
func New(name string) *FunctionContract {
	return &FunctionContract{
		Name:           name,
		failureActions: make(map[string]FailureAction),
	}
}

// AddPrecondition registers a requires clause with default handling.
func (c *FunctionContract) AddPrecondition(cond EnhancedCondition) error {
	return c.add(&c.Preconditions, "precondition", cond)
}

// AddPostcondition registers an ensures clause.
func (c *FunctionContract) AddPostcondition(cond EnhancedCondition) error {
	return c.add(&c.Postconditions, "postcondition", cond)
}

// AddInvariant registers an invariant that must hold throughout execution.
func (c *FunctionContract) AddInvariant(cond EnhancedCondition) error {
	return c.add(&c.Invariants, "invariant", cond)
}

func (c *FunctionContract) add(list *[]EnhancedCondition, kind string, cond EnhancedCondition) error {
	if cond.Name == "" {
		return fmt.Errorf("%s of %s: condition name is required", kind, c.Name)
	}
	if cond.Expr == nil {
		return fmt.Errorf("%s %q of %s: expression is required", kind, cond.Name, c.Name)
	}
	for _, existing := range *list {
		if existing.Name == cond.Name {
			return fmt.Errorf("%s %q of %s: %w", kind, cond.Name, c.Name, ErrDuplicateCondition)
		}
	}
	*list = append(*list, cond)
	if c.failureActions == nil {
		c.failureActions = make(map[string]FailureAction)
	}
	c.failureActions[cond.Name] = cond.FailureAction
	return nil
}

// AddModifies records a location the function may write.
func (c *FunctionContract) AddModifies(name string) {
	for _, m := range c.Modifies {
		if m == name {
			return
		}
	}
	c.Modifies = append(c.Modifies, name)
}

// FailureActionFor returns the runtime reaction registered for a condition.
func (c *FunctionContract) FailureActionFor(name string) (FailureAction, bool) {
	a, ok := c.failureActions[name]
	return a, ok
}

// ParamType returns the declared type of a parameter, if any.
func (c *FunctionContract) ParamType(name string) (Type, bool) {
	for _, p := range c.Params {
		if p.Name == name {
			return p.Type, true
		}
	}
	return TypeInt, false
}

// Validate checks that every registered condition has an index entry.
func (c *FunctionContract) Validate() error {
	var errs []error
	for _, list := range [][]EnhancedCondition{c.Preconditions, c.Postconditions, c.Invariants} {
		for _, cond := range list {
			if _, ok := c.failureActions[cond.Name]; !ok {
				errs = append(errs, fmt.Errorf("condition %q of %s has no failure action", cond.Name, c.Name))
			}
		}
	}
	return errors.Join(errs...)
}

// ProofObligations returns the obligations from the last call to
// GenerateProofObligations.
func (c *FunctionContract) ProofObligations() []ProofObligation {
	return c.obligations
}

// GenerateProofObligations derives one obligation per precondition (it is
// satisfiable) and one per postcondition (preconditions imply it). Any
// previously derived obligations are replaced.
func (c *FunctionContract) GenerateProofObligations() []ProofObligation {
	obligations := make([]ProofObligation, 0, len(c.Preconditions)+len(c.Postconditions))

	pres := make([]Expr, len(c.Preconditions))
	for i, pre := range c.Preconditions {
		pres[i] = pre.Expr
	}

	for i, pre := range c.Preconditions {
		obligations = append(obligations, ProofObligation{
			ID:          fmt.Sprintf("%s_pre_%d", c.Name, i),
			Description: fmt.Sprintf("precondition %q of %s is satisfiable", pre.Name, c.Name),
			Formula:     &Quantifier{Kind: Exists, Vars: c.binders(pre.Expr), Body: pre.Expr},
			Method:      methodFor(pre.VerificationHint),
			Priority:    High,
			Kind:        Satisfiability,
			Condition:   pre.Name,
		})
	}

	for i, post := range c.Postconditions {
		obligations = append(obligations, ProofObligation{
			ID:          fmt.Sprintf("%s_post_%d", c.Name, i),
			Description: fmt.Sprintf("preconditions of %s establish postcondition %q", c.Name, post.Name),
			Formula:     Binary(Implies, Conjunction(pres), post.Expr),
			Assumptions: append([]Expr(nil), pres...),
			Method:      methodFor(post.VerificationHint),
			Priority:    Critical,
			Kind:        Validity,
			Condition:   post.Name,
		})
	}

	c.obligations = obligations
	return obligations
}

// binders types the free variables of e from the declared parameters,
// defaulting to Int.
func (c *FunctionContract) binders(e Expr) []Binder {
	names := FreeVariables(e)
	out := make([]Binder, len(names))
	for i, n := range names {
		t, _ := c.ParamType(n)
		out[i] = Binder{Name: n, Type: t}
	}
	return out
}

func methodFor(h VerificationHint) VerificationMethod {
	switch h.Kind {
	case SMTSolver:
		return Z3Solver
	case SymbolicExecution:
		return SymbolicExecutionMethod
	default:
		return DirectProof
	}
}
