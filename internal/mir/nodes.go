// Package mir holds the control-flow-graph form of functions handed to the
// verifier by the lowering pipeline.
package mir

import (
	"fmt"
	"strconv"

	"github.com/lhaig/contractcheck/internal/diagnostic"
)

// BlockID identifies a basic block within a function.
type BlockID int

func (b BlockID) String() string { return "bb" + strconv.Itoa(int(b)) }

// LocalID identifies a local slot. Local 0 is the return place and
// parameters occupy the slots named by their Param entries.
type LocalID int

// ReturnPlace is the local holding the function result.
const ReturnPlace LocalID = 0

func (l LocalID) String() string { return "_" + strconv.Itoa(int(l)) }

// Type is the primitive type of a local.
type Type int

const (
	TypeInt Type = iota
	TypeFloat
	TypeBool
	TypeChar
	TypeString
	TypeUnit
	TypeArray
	TypeRef
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeChar:
		return "char"
	case TypeString:
		return "string"
	case TypeUnit:
		return "unit"
	case TypeArray:
		return "[]int"
	case TypeRef:
		return "ref"
	default:
		return "unknown"
	}
}

// Program is a set of lowered functions.
type Program struct {
	Functions []*Function
}

// Function is one lowered function body.
type Function struct {
	Name       string
	Params     []Param
	ReturnType Type
	Locals     map[LocalID]*Local
	Blocks     map[BlockID]*BasicBlock
	Entry      BlockID
	Location   diagnostic.Location
}

// Param binds a parameter name to its local slot.
type Param struct {
	Name  string
	Local LocalID
	Type  Type
}

// Local is a typed slot; Name is empty for compiler temporaries.
type Local struct {
	ID      LocalID
	Name    string
	Type    Type
	Mutable bool
}

// BasicBlock is a straight-line statement list ended by a terminator.
type BasicBlock struct {
	ID         BlockID
	Statements []Stmt
	Terminator Terminator
	Location   diagnostic.Location
}

// LocalType returns the declared type of a local, defaulting to Int.
func (f *Function) LocalType(id LocalID) Type {
	if l, ok := f.Locals[id]; ok {
		return l.Type
	}
	for _, p := range f.Params {
		if p.Local == id {
			return p.Type
		}
	}
	if id == ReturnPlace {
		return f.ReturnType
	}
	return TypeInt
}

// LocalName returns the source name of a local, or its slot name.
func (f *Function) LocalName(id LocalID) string {
	for _, p := range f.Params {
		if p.Local == id && p.Name != "" {
			return p.Name
		}
	}
	if l, ok := f.Locals[id]; ok && l.Name != "" {
		return l.Name
	}
	return id.String()
}

// LocalByName finds a named parameter or local.
func (f *Function) LocalByName(name string) (LocalID, bool) {
	for _, p := range f.Params {
		if p.Name == name {
			return p.Local, true
		}
	}
	for id, l := range f.Locals {
		if l.Name == name {
			return id, true
		}
	}
	return 0, false
}

// Stmt is a non-terminating instruction.
type Stmt interface {
	stmtNode()
}

// Assign stores an rvalue into a place.
type Assign struct {
	Place    Place
	Value    Rvalue
	Location diagnostic.Location
}

// StorageLive marks the start of a local's lifetime.
type StorageLive struct{ Local LocalID }

// StorageDead marks the end of a local's lifetime.
type StorageDead struct{ Local LocalID }

// Nop does nothing.
type Nop struct{}

func (*Assign) stmtNode()      {}
func (*StorageLive) stmtNode() {}
func (*StorageDead) stmtNode() {}
func (*Nop) stmtNode()         {}

// ProjKind is a place projection step.
type ProjKind int

const (
	ProjDeref ProjKind = iota
	ProjField
	ProjIndex
)

// Projection refines a place; Field is used by ProjField and Index by
// ProjIndex.
type Projection struct {
	Kind  ProjKind
	Field int
	Index LocalID
}

// Place is a local with an optional projection path.
type Place struct {
	Local      LocalID
	Projection []Projection
}

func (p Place) String() string {
	s := p.Local.String()
	for _, pr := range p.Projection {
		switch pr.Kind {
		case ProjDeref:
			s = "*" + s
		case ProjField:
			s = fmt.Sprintf("%s.%d", s, pr.Field)
		case ProjIndex:
			s = fmt.Sprintf("%s[%s]", s, pr.Index)
		}
	}
	return s
}

// LocalPlace returns an unprojected place.
func LocalPlace(id LocalID) Place { return Place{Local: id} }

// BinOp is a MIR binary operator.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Rem
	BitXor
	BitAnd
	BitOr
	Shl
	Shr
	Eq
	Lt
	Le
	Ne
	Ge
	Gt
	Offset
)

var binOpNames = [...]string{"+", "-", "*", "/", "%", "^", "&", "|", "<<", ">>", "==", "<", "<=", "!=", ">=", ">", "offset"}

func (op BinOp) String() string {
	if int(op) < len(binOpNames) {
		return binOpNames[op]
	}
	return "?"
}

// UnOp is a MIR unary operator.
type UnOp int

const (
	Not UnOp = iota
	Neg
)

// Rvalue is the right-hand side of an assignment.
type Rvalue interface {
	rvalueNode()
}

// Use copies an operand.
type Use struct{ Operand Operand }

// BinaryOp combines two operands.
type BinaryOp struct {
	Op    BinOp
	Left  Operand
	Right Operand
}

// UnaryOp applies a unary operator.
type UnaryOp struct {
	Op      UnOp
	Operand Operand
}

// Cast converts an operand to Type.
type Cast struct {
	Operand Operand
	Type    Type
}

// CallValue is a call evaluated as an rvalue.
type CallValue struct {
	Func string
	Args []Operand
}

// AggregateKind is the shape built by an Aggregate.
type AggregateKind int

const (
	AggArray AggregateKind = iota
	AggTuple
	AggStruct
)

// Aggregate builds a compound value.
type Aggregate struct {
	Kind     AggregateKind
	Operands []Operand
}

// Ref takes a reference to a place.
type Ref struct {
	Place   Place
	Mutable bool
}

// Len is the length of an array place.
type Len struct{ Place Place }

// Discriminant reads an enum tag.
type Discriminant struct{ Place Place }

func (*Use) rvalueNode()          {}
func (*BinaryOp) rvalueNode()     {}
func (*UnaryOp) rvalueNode()      {}
func (*Cast) rvalueNode()         {}
func (*CallValue) rvalueNode()    {}
func (*Aggregate) rvalueNode()    {}
func (*Ref) rvalueNode()          {}
func (*Len) rvalueNode()          {}
func (*Discriminant) rvalueNode() {}

// Operand is a value read by an rvalue or terminator.
type Operand interface {
	operandNode()
}

// Copy reads a place without invalidating it.
type Copy struct{ Place Place }

// Move reads a place and invalidates it.
type Move struct{ Place Place }

// ConstKind tags a constant payload.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstBool
	ConstChar
	ConstString
	ConstNull
)

// Constant is a literal operand.
type Constant struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Bool  bool
	Char  rune
	Str   string
}

func (*Copy) operandNode()     {}
func (*Move) operandNode()     {}
func (*Constant) operandNode() {}

// IntConst builds an integer constant operand.
func IntConst(v int64) *Constant { return &Constant{Kind: ConstInt, Int: v} }

// BoolConst builds a boolean constant operand.
func BoolConst(v bool) *Constant { return &Constant{Kind: ConstBool, Bool: v} }

// CopyOf reads an unprojected local.
func CopyOf(id LocalID) *Copy { return &Copy{Place: LocalPlace(id)} }

// Terminator ends a basic block.
type Terminator interface {
	// Successors lists the blocks control may flow to.
	Successors() []BlockID
}

// Return leaves the function with the value in ReturnPlace.
type Return struct{}

// Goto jumps unconditionally.
type Goto struct{ Target BlockID }

// SwitchInt branches on an integer or boolean discriminant: Targets[i] is
// taken when the value equals Values[i], Otherwise when none match.
type SwitchInt struct {
	Discriminant Operand
	Values       []int64
	Targets      []BlockID
	Otherwise    BlockID
}

// Call invokes Func, stores into Destination and continues at Target when
// HasTarget is set.
type Call struct {
	Func        string
	Args        []Operand
	Destination Place
	Target      BlockID
	HasTarget   bool
}

// Drop runs a destructor and continues at Target.
type Drop struct {
	Place  Place
	Target BlockID
}

// Assert continues at Target when Cond equals Expected and panics
// otherwise.
type Assert struct {
	Cond     Operand
	Expected bool
	Message  string
	Target   BlockID
	Location diagnostic.Location
}

// Unreachable marks a block control can never reach.
type Unreachable struct{}

func (*Return) Successors() []BlockID { return nil }

func (g *Goto) Successors() []BlockID { return []BlockID{g.Target} }

func (s *SwitchInt) Successors() []BlockID {
	return append(append([]BlockID(nil), s.Targets...), s.Otherwise)
}

func (c *Call) Successors() []BlockID {
	if c.HasTarget {
		return []BlockID{c.Target}
	}
	return nil
}

func (d *Drop) Successors() []BlockID { return []BlockID{d.Target} }

func (a *Assert) Successors() []BlockID { return []BlockID{a.Target} }

func (*Unreachable) Successors() []BlockID { return nil }
