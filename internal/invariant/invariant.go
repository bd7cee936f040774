// Package invariant describes loop invariants, loop variants and
// program-wide invariants, plus constructors for common shapes.
package invariant

import (
	"strings"

	"github.com/lhaig/contractcheck/internal/contract"
	"github.com/lhaig/contractcheck/internal/diagnostic"
	"github.com/lhaig/contractcheck/internal/mir"
)

// Condition is one named clause of a loop invariant.
type Condition struct {
	Name     string
	Expr     contract.Expr
	Location diagnostic.Location
}

// Variant is a termination measure: it stays at or above LowerBound on
// every iteration and strictly decreases across the back edge.
type Variant struct {
	Expr       contract.Expr
	LowerBound contract.Expr
}

// Loop attaches invariant clauses and an optional variant to the loop
// whose header block is Header.
type Loop struct {
	Header     mir.BlockID
	Conditions []Condition
	Variant    *Variant
}

// NewLoop creates an empty invariant for the loop at header.
func NewLoop(header mir.BlockID) *Loop {
	return &Loop{Header: header}
}

// AddCondition appends an invariant clause.
func (l *Loop) AddCondition(name string, e contract.Expr, loc diagnostic.Location) {
	l.Conditions = append(l.Conditions, Condition{Name: name, Expr: e, Location: loc})
}

// SetVariant sets the termination measure. A nil lower bound means 0.
func (l *Loop) SetVariant(e, lowerBound contract.Expr) {
	if lowerBound == nil {
		lowerBound = contract.Int(0)
	}
	l.Variant = &Variant{Expr: e, LowerBound: lowerBound}
}

// HasVariant reports whether a termination measure is set.
func (l *Loop) HasVariant() bool { return l.Variant != nil }

// ScopeKind selects where a global invariant applies.
type ScopeKind int

const (
	Always ScopeKind = iota
	InFunction
	InModule
	Conditional
)

// Scope restricts a global invariant. Name is the function or module for
// InFunction and InModule; Guard is the condition for Conditional.
type Scope struct {
	Kind  ScopeKind
	Name  string
	Guard contract.Expr
}

// Global is an invariant that holds across functions.
type Global struct {
	Name     string
	Expr     contract.Expr
	Scope    Scope
	Location diagnostic.Location
}

// NewGlobal creates a global invariant.
func NewGlobal(name string, e contract.Expr, scope Scope, loc diagnostic.Location) *Global {
	return &Global{Name: name, Expr: e, Scope: scope, Location: loc}
}

// AppliesTo reports whether the invariant is in force inside function fn.
// Module membership is decided by a "module::" or "module." name prefix.
func (g *Global) AppliesTo(fn string) bool {
	switch g.Scope.Kind {
	case InFunction:
		return g.Scope.Name == fn
	case InModule:
		return strings.HasPrefix(fn, g.Scope.Name+"::") || strings.HasPrefix(fn, g.Scope.Name+".")
	default:
		return true
	}
}

// Assumption is the fact the invariant contributes: the expression itself,
// or guard ==> expression for conditional invariants.
func (g *Global) Assumption() contract.Expr {
	if g.Scope.Kind == Conditional && g.Scope.Guard != nil {
		return contract.Binary(contract.Implies, g.Scope.Guard, g.Expr)
	}
	return g.Expr
}

// ArrayBounds is 0 <= index && index < length.
func ArrayBounds(index string, length contract.Expr) contract.Expr {
	return contract.Binary(contract.And,
		contract.Binary(contract.Le, contract.Int(0), contract.Var(index)),
		contract.Binary(contract.Lt, contract.Var(index), length))
}

// NonNull is v != null.
func NonNull(v string) contract.Expr {
	return contract.Binary(contract.Ne, contract.Var(v), contract.Null())
}

// InRange is low <= v && v <= high.
func InRange(v string, low, high int64) contract.Expr {
	return contract.Binary(contract.And,
		contract.Binary(contract.Le, contract.Int(low), contract.Var(v)),
		contract.Binary(contract.Le, contract.Var(v), contract.Int(high)))
}
