package contract

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a node of the contract expression language. Trees are immutable
// once built; rewriting functions always return new nodes.
type Expr interface {
	String() string
	exprNode()
}

// Type is the declared type of a quantifier binder, a parameter or an
// is-type test.
type Type int

const (
	TypeInt Type = iota
	TypeFloat
	TypeBool
	TypeString
	TypeArray // array of Int
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeArray:
		return "[]int"
	default:
		return "unknown"
	}
}

// ParseType maps a type name to a Type.
func ParseType(name string) (Type, bool) {
	switch name {
	case "int", "i32", "i64", "integer":
		return TypeInt, true
	case "float", "f32", "f64", "real":
		return TypeFloat, true
	case "bool", "boolean":
		return TypeBool, true
	case "string", "str":
		return TypeString, true
	case "[]int", "array":
		return TypeArray, true
	}
	return TypeInt, false
}

// Variable references a parameter, a named local or a bound variable.
type Variable struct {
	Name string
}

// ConstKind tags the payload of a Constant.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstBool
	ConstString
	ConstNull
)

// Constant is a literal value.
type Constant struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Bool  bool
	Str   string
}

// BinOp is a binary contract operator.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	And
	Or
	Implies
	BitAnd
	BitOr
	BitXor
)

var binOpText = map[BinOp]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Mod: "%",
	Eq: "==", Ne: "!=", Lt: "<", Le: "<=", Gt: ">", Ge: ">=",
	And: "&&", Or: "||", Implies: "==>",
	BitAnd: "&", BitOr: "|", BitXor: "^",
}

func (op BinOp) String() string {
	if s, ok := binOpText[op]; ok {
		return s
	}
	return "?"
}

// BinaryOp applies a binary operator.
type BinaryOp struct {
	Op    BinOp
	Left  Expr
	Right Expr
}

// UnOp is a unary contract operator.
type UnOp int

const (
	Neg UnOp = iota
	Not
	BitNot
)

func (op UnOp) String() string {
	switch op {
	case Neg:
		return "-"
	case Not:
		return "!"
	case BitNot:
		return "~"
	default:
		return "?"
	}
}

// UnaryOp applies a unary operator.
type UnaryOp struct {
	Op      UnOp
	Operand Expr
}

// Call is an uninterpreted function application.
type Call struct {
	Function string
	Args     []Expr
}

// ArrayAccess reads Array[Index].
type ArrayAccess struct {
	Array Expr
	Index Expr
}

// FieldAccess reads Object.Field.
type FieldAccess struct {
	Object Expr
	Field  string
}

// QuantKind selects universal or existential quantification.
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

// Binder is a typed bound variable of a quantifier.
type Binder struct {
	Name string
	Type Type
}

// Quantifier binds Vars over Body.
type Quantifier struct {
	Kind QuantKind
	Vars []Binder
	Body Expr
}

// Old refers to the value of Expr on function entry.
type Old struct {
	Expr Expr
}

// Result refers to the function's return value.
type Result struct{}

// Length is the length of an array or string.
type Length struct {
	Expr Expr
}

// IsType tests the dynamic type of Expr.
type IsType struct {
	Expr Expr
	Type Type
}

// SemanticPredicate is a named domain predicate such as is_sorted.
type SemanticPredicate struct {
	Name string
	Args []Expr
}

// TemporalOp is a temporal logic operator.
type TemporalOp int

const (
	Always TemporalOp = iota
	Eventually
	Until
	Since
	Next
)

func (op TemporalOp) String() string {
	switch op {
	case Always:
		return "always"
	case Eventually:
		return "eventually"
	case Until:
		return "until"
	case Since:
		return "since"
	case Next:
		return "next"
	default:
		return "?"
	}
}

// Temporal applies a temporal operator.
type Temporal struct {
	Op   TemporalOp
	Expr Expr
}

// InSet tests set membership.
type InSet struct {
	Element Expr
	Set     Expr
}

// Range is an integer interval, half-open unless Inclusive.
type Range struct {
	Start     Expr
	End       Expr
	Inclusive bool
}

// Matches tests Expr against a regular expression.
type Matches struct {
	Expr    Expr
	Pattern string
}

// AggOp is an aggregate operator over a collection.
type AggOp int

const (
	Sum AggOp = iota
	Product
	Count
	Min
	Max
	All
	Any
	Average
)

var aggOpText = map[AggOp]string{
	Sum: "sum", Product: "product", Count: "count", Min: "min",
	Max: "max", All: "all", Any: "any", Average: "avg",
}

func (op AggOp) String() string {
	if s, ok := aggOpText[op]; ok {
		return s
	}
	return "?"
}

// Aggregate folds Op over Collection, optionally restricted by Filter.
// A nil Filter means no filter.
type Aggregate struct {
	Op         AggOp
	Collection Expr
	Filter     Expr
}

// Binding is one name = value pair of a Let.
type Binding struct {
	Name  string
	Value Expr
}

// Let introduces sequential bindings visible in later bindings and Body.
type Let struct {
	Bindings []Binding
	Body     Expr
}

func (*Variable) exprNode()          {}
func (*Constant) exprNode()          {}
func (*BinaryOp) exprNode()          {}
func (*UnaryOp) exprNode()           {}
func (*Call) exprNode()              {}
func (*ArrayAccess) exprNode()       {}
func (*FieldAccess) exprNode()       {}
func (*Quantifier) exprNode()        {}
func (*Old) exprNode()               {}
func (*Result) exprNode()            {}
func (*Length) exprNode()            {}
func (*IsType) exprNode()            {}
func (*SemanticPredicate) exprNode() {}
func (*Temporal) exprNode()          {}
func (*InSet) exprNode()             {}
func (*Range) exprNode()             {}
func (*Matches) exprNode()           {}
func (*Aggregate) exprNode()         {}
func (*Let) exprNode()               {}

// Constructors.

func Var(name string) *Variable { return &Variable{Name: name} }

func Int(v int64) *Constant { return &Constant{Kind: ConstInt, Int: v} }

func Float(v float64) *Constant { return &Constant{Kind: ConstFloat, Float: v} }

func Bool(v bool) *Constant { return &Constant{Kind: ConstBool, Bool: v} }

func Str(v string) *Constant { return &Constant{Kind: ConstString, Str: v} }

func Null() *Constant { return &Constant{Kind: ConstNull} }

func Binary(op BinOp, l, r Expr) *BinaryOp { return &BinaryOp{Op: op, Left: l, Right: r} }

func Negate(e Expr) *UnaryOp { return &UnaryOp{Op: Not, Operand: e} }

// Conjunction folds exprs with And. An empty list is true.
func Conjunction(exprs []Expr) Expr {
	if len(exprs) == 0 {
		return Bool(true)
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = Binary(And, out, e)
	}
	return out
}

// String renderings.

func (v *Variable) String() string { return v.Name }

func (c *Constant) String() string {
	switch c.Kind {
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstFloat:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case ConstBool:
		return strconv.FormatBool(c.Bool)
	case ConstString:
		return strconv.Quote(c.Str)
	default:
		return "null"
	}
}

func (b *BinaryOp) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

func (u *UnaryOp) String() string {
	return fmt.Sprintf("%s%s", u.Op, u.Operand)
}

func (c *Call) String() string {
	return fmt.Sprintf("%s(%s)", c.Function, joinExprs(c.Args))
}

func (a *ArrayAccess) String() string {
	return fmt.Sprintf("%s[%s]", a.Array, a.Index)
}

func (f *FieldAccess) String() string {
	return fmt.Sprintf("%s.%s", f.Object, f.Field)
}

func (q *Quantifier) String() string {
	vars := make([]string, len(q.Vars))
	for i, b := range q.Vars {
		vars[i] = fmt.Sprintf("%s: %s", b.Name, b.Type)
	}
	return fmt.Sprintf("%s %s. %s", q.Kind, strings.Join(vars, ", "), q.Body)
}

func (o *Old) String() string { return fmt.Sprintf("old(%s)", o.Expr) }

func (*Result) String() string { return "result" }

func (l *Length) String() string { return fmt.Sprintf("len(%s)", l.Expr) }

func (t *IsType) String() string { return fmt.Sprintf("%s is %s", t.Expr, t.Type) }

func (p *SemanticPredicate) String() string {
	return fmt.Sprintf("%s(%s)", p.Name, joinExprs(p.Args))
}

func (t *Temporal) String() string { return fmt.Sprintf("%s(%s)", t.Op, t.Expr) }

func (s *InSet) String() string { return fmt.Sprintf("%s in %s", s.Element, s.Set) }

func (r *Range) String() string {
	if r.Inclusive {
		return fmt.Sprintf("%s..=%s", r.Start, r.End)
	}
	return fmt.Sprintf("%s..%s", r.Start, r.End)
}

func (m *Matches) String() string {
	return fmt.Sprintf("%s matches %q", m.Expr, m.Pattern)
}

func (a *Aggregate) String() string {
	if a.Filter != nil {
		return fmt.Sprintf("%s(%s where %s)", a.Op, a.Collection, a.Filter)
	}
	return fmt.Sprintf("%s(%s)", a.Op, a.Collection)
}

func (l *Let) String() string {
	parts := make([]string, len(l.Bindings))
	for i, b := range l.Bindings {
		parts[i] = fmt.Sprintf("%s = %s", b.Name, b.Value)
	}
	return fmt.Sprintf("let %s in %s", strings.Join(parts, ", "), l.Body)
}

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
