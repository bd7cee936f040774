package bundle

import (
	"strconv"
	"strings"

	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"

	"github.com/lhaig/contractcheck/internal/mir"
)

// scope resolves local names while a function body is parsed.
type scope struct {
	fn *mir.Function
}

var mirBinary = map[string]mir.BinOp{
	operators.Add:           mir.Add,
	operators.Subtract:      mir.Sub,
	operators.Multiply:      mir.Mul,
	operators.Divide:        mir.Div,
	operators.Modulo:        mir.Rem,
	operators.Equals:        mir.Eq,
	operators.NotEquals:     mir.Ne,
	operators.Less:          mir.Lt,
	operators.LessEquals:    mir.Le,
	operators.Greater:       mir.Gt,
	operators.GreaterEquals: mir.Ge,
	"bitand":                mir.BitAnd,
	"bitor":                 mir.BitOr,
	"bitxor":                mir.BitXor,
	"shl":                   mir.Shl,
	"shr":                   mir.Shr,
	"offset":                mir.Offset,
}

func (s *scope) local(name string) (mir.LocalID, error) {
	if name == "result" {
		return mir.ReturnPlace, nil
	}
	if id, ok := s.fn.LocalByName(name); ok {
		return id, nil
	}
	return 0, syntaxf("function %s has no local %q", s.fn.Name, name)
}

// place parses x, x[i], x.f0 or deref(x).
func (s *scope) place(e celast.Expr) (mir.Place, error) {
	switch e.Kind() {
	case celast.IdentKind:
		id, err := s.local(e.AsIdent())
		return mir.LocalPlace(id), err
	case celast.SelectKind:
		sel := e.AsSelect()
		p, err := s.place(sel.Operand())
		if err != nil {
			return p, err
		}
		field, err := strconv.Atoi(strings.TrimPrefix(sel.FieldName(), "f"))
		if err != nil {
			return p, syntaxf("field %q is not a field index", sel.FieldName())
		}
		p.Projection = append(p.Projection, mir.Projection{Kind: mir.ProjField, Field: field})
		return p, nil
	case celast.CallKind:
		call := e.AsCall()
		switch {
		case call.FunctionName() == operators.Index:
			p, err := s.place(call.Args()[0])
			if err != nil {
				return p, err
			}
			idx := call.Args()[1]
			if idx.Kind() != celast.IdentKind {
				return p, syntaxf("array index must be a local")
			}
			id, err := s.local(idx.AsIdent())
			if err != nil {
				return p, err
			}
			p.Projection = append(p.Projection, mir.Projection{Kind: mir.ProjIndex, Index: id})
			return p, nil
		case call.FunctionName() == "deref" && len(call.Args()) == 1:
			p, err := s.place(call.Args()[0])
			if err != nil {
				return p, err
			}
			p.Projection = append(p.Projection, mir.Projection{Kind: mir.ProjDeref})
			return p, nil
		}
	}
	return mir.Place{}, syntaxf("not a place")
}

// operand parses a constant, a place read, or move(place).
func (s *scope) operand(e celast.Expr) (mir.Operand, error) {
	if e.Kind() == celast.LiteralKind {
		switch v := e.AsLiteral().(type) {
		case types.Int:
			return mir.IntConst(int64(v)), nil
		case types.Uint:
			return mir.IntConst(int64(v)), nil
		case types.Double:
			return &mir.Constant{Kind: mir.ConstFloat, Float: float64(v)}, nil
		case types.Bool:
			return mir.BoolConst(bool(v)), nil
		case types.String:
			return &mir.Constant{Kind: mir.ConstString, Str: string(v)}, nil
		case types.Null:
			return &mir.Constant{Kind: mir.ConstNull}, nil
		}
		return nil, syntaxf("unsupported literal")
	}
	if e.Kind() == celast.CallKind {
		call := e.AsCall()
		switch call.FunctionName() {
		case "move":
			if len(call.Args()) != 1 {
				return nil, syntaxf("move takes one place")
			}
			p, err := s.place(call.Args()[0])
			if err != nil {
				return nil, err
			}
			return &mir.Move{Place: p}, nil
		case "char":
			if len(call.Args()) == 1 && call.Args()[0].Kind() == celast.LiteralKind {
				if str, ok := call.Args()[0].AsLiteral().(types.String); ok && len([]rune(string(str))) == 1 {
					return &mir.Constant{Kind: mir.ConstChar, Char: []rune(string(str))[0]}, nil
				}
			}
			return nil, syntaxf("char takes a one-character string")
		case operators.Negate:
			// negative literals the parser did not fold
			if arg := call.Args()[0]; arg.Kind() == celast.LiteralKind {
				switch v := arg.AsLiteral().(type) {
				case types.Int:
					return mir.IntConst(-int64(v)), nil
				case types.Double:
					return &mir.Constant{Kind: mir.ConstFloat, Float: -float64(v)}, nil
				}
			}
		}
	}
	p, err := s.place(e)
	if err != nil {
		return nil, err
	}
	return &mir.Copy{Place: p}, nil
}

func (s *scope) operands(es []celast.Expr) ([]mir.Operand, error) {
	out := make([]mir.Operand, len(es))
	for i, e := range es {
		op, err := s.operand(e)
		if err != nil {
			return nil, err
		}
		out[i] = op
	}
	return out, nil
}

// rvalue parses the right-hand side of an assignment. dest is the type of
// the assigned place, used by cast.
func (s *scope) rvalue(e celast.Expr, dest mir.Type) (mir.Rvalue, error) {
	switch e.Kind() {
	case celast.ListKind:
		ops, err := s.operands(e.AsList().Elements())
		if err != nil {
			return nil, err
		}
		return &mir.Aggregate{Kind: mir.AggArray, Operands: ops}, nil
	case celast.CallKind:
	default:
		op, err := s.operand(e)
		if err != nil {
			return nil, err
		}
		return mir.UseOf(op), nil
	}

	call := e.AsCall()
	name := call.FunctionName()
	args := call.Args()
	if call.IsMemberFunction() {
		return nil, syntaxf("method calls are not rvalues")
	}
	if op, ok := mirBinary[name]; ok {
		if len(args) != 2 {
			return nil, syntaxf("%s takes two operands", name)
		}
		ops, err := s.operands(args)
		if err != nil {
			return nil, err
		}
		return mir.Bin(op, ops[0], ops[1]), nil
	}

	switch name {
	case operators.LogicalNot, operators.Negate:
		if name == operators.Negate && args[0].Kind() == celast.LiteralKind {
			op, err := s.operand(e)
			if err != nil {
				return nil, err
			}
			return mir.UseOf(op), nil
		}
		op, err := s.operand(args[0])
		if err != nil {
			return nil, err
		}
		kind := mir.Not
		if name == operators.Negate {
			kind = mir.Neg
		}
		return &mir.UnaryOp{Op: kind, Operand: op}, nil
	case "cast":
		if len(args) != 1 {
			return nil, syntaxf("cast takes one operand")
		}
		op, err := s.operand(args[0])
		if err != nil {
			return nil, err
		}
		return &mir.Cast{Operand: op, Type: dest}, nil
	case "len", "discriminant", "ref", "ref_mut":
		if len(args) != 1 {
			return nil, syntaxf("%s takes one place", name)
		}
		p, err := s.place(args[0])
		if err != nil {
			return nil, err
		}
		switch name {
		case "len":
			return &mir.Len{Place: p}, nil
		case "discriminant":
			return &mir.Discriminant{Place: p}, nil
		default:
			return &mir.Ref{Place: p, Mutable: name == "ref_mut"}, nil
		}
	case "tuple", "record":
		ops, err := s.operands(args)
		if err != nil {
			return nil, err
		}
		kind := mir.AggTuple
		if name == "record" {
			kind = mir.AggStruct
		}
		return &mir.Aggregate{Kind: kind, Operands: ops}, nil
	case "move", "char", "deref", operators.Index:
		op, err := s.operand(e)
		if err != nil {
			return nil, err
		}
		return mir.UseOf(op), nil
	case operators.LogicalAnd, operators.LogicalOr, operators.Conditional, operators.In:
		return nil, syntaxf("%s must be lowered to branches", name)
	}

	ops, err := s.operands(args)
	if err != nil {
		return nil, err
	}
	return &mir.CallValue{Func: name, Args: ops}, nil
}
