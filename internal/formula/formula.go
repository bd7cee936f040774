// Package formula is the solver-facing logic: a small many-sorted
// first-order language with integer and real arithmetic and arrays.
package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// Sort is the type of a term. The zero value is SortUnknown, which is
// resolved by Infer.
type Sort int

const (
	SortUnknown Sort = iota
	SortInt
	SortReal
	SortBool
	SortArray // Array Int Int
)

func (s Sort) String() string {
	switch s {
	case SortInt:
		return "Int"
	case SortReal:
		return "Real"
	case SortBool:
		return "Bool"
	case SortArray:
		return "(Array Int Int)"
	default:
		return "Unknown"
	}
}

// Formula is a term or proposition. Trees are immutable.
type Formula interface {
	String() string
	formulaNode()
}

// BoolLit is true or false.
type BoolLit struct{ Value bool }

// IntLit is an integer constant.
type IntLit struct{ Value int64 }

// RealLit is a real constant.
type RealLit struct{ Value float64 }

// Var is a free or bound symbol.
type Var struct {
	Name string
	Sort Sort
}

// Op is a binary arithmetic or comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
)

var opText = [...]string{"=", "!=", "<", "<=", ">", ">=", "+", "-", "*", "/", "%"}

func (op Op) String() string {
	if int(op) < len(opText) {
		return opText[op]
	}
	return "?"
}

// IsComparison reports whether op yields a Bool.
func (op Op) IsComparison() bool { return op <= OpGe }

// Binary applies an arithmetic or comparison operator.
type Binary struct {
	Op    Op
	Left  Formula
	Right Formula
}

// And is n-ary conjunction; an empty And is true.
type And struct{ Args []Formula }

// Or is n-ary disjunction; an empty Or is false.
type Or struct{ Args []Formula }

// Not negates its argument.
type Not struct{ Arg Formula }

// Implies is material implication.
type Implies struct {
	Left  Formula
	Right Formula
}

// Ite is if-then-else over terms of any sort.
type Ite struct {
	Cond Formula
	Then Formula
	Else Formula
}

// QuantKind selects the quantifier.
type QuantKind int

const (
	Forall QuantKind = iota
	Exists
)

func (k QuantKind) String() string {
	if k == Exists {
		return "exists"
	}
	return "forall"
}

// Binder is a bound variable.
type Binder struct {
	Name string
	Sort Sort
}

// Quantifier binds Vars in Body.
type Quantifier struct {
	Kind QuantKind
	Vars []Binder
	Body Formula
}

// Select reads Array[Index].
type Select struct {
	Array Formula
	Index Formula
}

// Store is Array with Index updated to Value.
type Store struct {
	Array Formula
	Index Formula
	Value Formula
}

func (*BoolLit) formulaNode()    {}
func (*IntLit) formulaNode()     {}
func (*RealLit) formulaNode()    {}
func (*Var) formulaNode()        {}
func (*Binary) formulaNode()     {}
func (*And) formulaNode()        {}
func (*Or) formulaNode()         {}
func (*Not) formulaNode()        {}
func (*Implies) formulaNode()    {}
func (*Ite) formulaNode()        {}
func (*Quantifier) formulaNode() {}
func (*Select) formulaNode()     {}
func (*Store) formulaNode()      {}

// Constructors.

func Bool(v bool) *BoolLit { return &BoolLit{Value: v} }

func Int(v int64) *IntLit { return &IntLit{Value: v} }

func Real(v float64) *RealLit { return &RealLit{Value: v} }

func NewVar(name string, sort Sort) *Var { return &Var{Name: name, Sort: sort} }

func Bin(op Op, l, r Formula) *Binary { return &Binary{Op: op, Left: l, Right: r} }

func Eq(l, r Formula) *Binary { return Bin(OpEq, l, r) }

func Ne(l, r Formula) *Binary { return Bin(OpNe, l, r) }

func Lt(l, r Formula) *Binary { return Bin(OpLt, l, r) }

func Le(l, r Formula) *Binary { return Bin(OpLe, l, r) }

func Ge(l, r Formula) *Binary { return Bin(OpGe, l, r) }

// Negate wraps f in Not.
func Negate(f Formula) Formula { return &Not{Arg: f} }

// Imply builds l => r.
func Imply(l, r Formula) Formula { return &Implies{Left: l, Right: r} }

// TruncDiv is integer division rounding toward zero, built on the
// Euclidean div of the logic: a >= 0 ? a div b : -((-a) div b).
func TruncDiv(a, b Formula) Formula {
	if lit, ok := a.(*IntLit); ok && lit.Value >= 0 {
		return Bin(OpDiv, a, b)
	}
	return &Ite{
		Cond: Ge(a, Int(0)),
		Then: Bin(OpDiv, a, b),
		Else: Bin(OpSub, Int(0), Bin(OpDiv, Bin(OpSub, Int(0), a), b)),
	}
}

// TruncRem is the remainder paired with TruncDiv; it takes the sign of a.
func TruncRem(a, b Formula) Formula {
	return Bin(OpSub, a, Bin(OpMul, b, TruncDiv(a, b)))
}

// Conj conjoins fs. No arguments yield true and one argument is returned
// unchanged.
func Conj(fs ...Formula) Formula {
	switch len(fs) {
	case 0:
		return Bool(true)
	case 1:
		return fs[0]
	}
	return &And{Args: append([]Formula(nil), fs...)}
}

// Disj disjoins fs. No arguments yield false.
func Disj(fs ...Formula) Formula {
	switch len(fs) {
	case 0:
		return Bool(false)
	case 1:
		return fs[0]
	}
	return &Or{Args: append([]Formula(nil), fs...)}
}

// String renderings.

func (b *BoolLit) String() string { return strconv.FormatBool(b.Value) }

func (i *IntLit) String() string { return strconv.FormatInt(i.Value, 10) }

func (r *RealLit) String() string { return formatReal(r.Value) }

func (v *Var) String() string { return v.Name }

func (b *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

func (a *And) String() string { return joinFormulas(a.Args, " && ", "true") }

func (o *Or) String() string { return joinFormulas(o.Args, " || ", "false") }

func (n *Not) String() string { return "!" + n.Arg.String() }

func (i *Implies) String() string {
	return fmt.Sprintf("(%s => %s)", i.Left, i.Right)
}

func (i *Ite) String() string {
	return fmt.Sprintf("(if %s then %s else %s)", i.Cond, i.Then, i.Else)
}

func (q *Quantifier) String() string {
	vars := make([]string, len(q.Vars))
	for i, b := range q.Vars {
		vars[i] = fmt.Sprintf("%s: %s", b.Name, b.Sort)
	}
	return fmt.Sprintf("(%s %s. %s)", q.Kind, strings.Join(vars, ", "), q.Body)
}

func (s *Select) String() string { return fmt.Sprintf("%s[%s]", s.Array, s.Index) }

func (s *Store) String() string {
	return fmt.Sprintf("%s[%s := %s]", s.Array, s.Index, s.Value)
}

func joinFormulas(fs []Formula, sep, empty string) string {
	if len(fs) == 0 {
		return empty
	}
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func formatReal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
