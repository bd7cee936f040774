package vcgen

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lhaig/contractcheck/internal/diagnostic"
	"github.com/lhaig/contractcheck/internal/formula"
	"github.com/lhaig/contractcheck/internal/mir"
	"github.com/lhaig/contractcheck/internal/translate"
)

func unsupported(construct, reason string) error {
	return &translate.UnsupportedError{Construct: construct, Reason: reason}
}

func (g *Generator) operand(f *frame, op mir.Operand) (formula.Formula, error) {
	switch o := op.(type) {
	case *mir.Copy:
		return g.readPlace(f, o.Place), nil
	case *mir.Move:
		return g.readPlace(f, o.Place), nil
	case *mir.Constant:
		switch o.Kind {
		case mir.ConstInt:
			return formula.Int(o.Int), nil
		case mir.ConstFloat:
			return formula.Real(o.Float), nil
		case mir.ConstBool:
			return formula.Bool(o.Bool), nil
		case mir.ConstChar:
			return formula.Int(int64(o.Char)), nil
		default:
			v := g.freshVar("const", formula.SortInt)
			g.logger.Debug("constant abstracted", zap.String("value", v.Name))
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: operand %T", mir.ErrMalformed, op)
}

func (g *Generator) readPlace(f *frame, p mir.Place) formula.Formula {
	base := g.read(f, p.Local)
	if len(p.Projection) == 0 {
		return base
	}
	if len(p.Projection) == 1 && p.Projection[0].Kind == mir.ProjIndex {
		return &formula.Select{Array: base, Index: g.read(f, p.Projection[0].Index)}
	}
	return g.freshVar("place_"+sanitize(g.fn.LocalName(p.Local)), formula.SortInt)
}

func (g *Generator) assign(f *frame, p mir.Place, v formula.Formula) error {
	switch {
	case len(p.Projection) == 0:
		f.state[p.Local] = v
	case len(p.Projection) == 1 && p.Projection[0].Kind == mir.ProjIndex:
		f.state[p.Local] = &formula.Store{
			Array: g.read(f, p.Local),
			Index: g.read(f, p.Projection[0].Index),
			Value: v,
		}
	default:
		// a write through a field or pointer makes the whole local opaque
		f.state[p.Local] = g.freshVar(sanitize(g.fn.LocalName(p.Local)), sortOf(g.fn.LocalType(p.Local)))
	}
	return nil
}

func (g *Generator) rvalue(f *frame, rv mir.Rvalue, dest mir.Type, loc diagnostic.Location) (formula.Formula, error) {
	switch r := rv.(type) {
	case *mir.Use:
		return g.operand(f, r.Operand)

	case *mir.Cast:
		return g.operand(f, r.Operand)

	case *mir.BinaryOp:
		l, err := g.operand(f, r.Left)
		if err != nil {
			return nil, err
		}
		rt, err := g.operand(f, r.Right)
		if err != nil {
			return nil, err
		}
		return g.binary(f, r.Op, l, rt, loc)

	case *mir.UnaryOp:
		v, err := g.operand(f, r.Operand)
		if err != nil {
			return nil, err
		}
		sort := formula.SortOf(v, nil, nil)
		switch {
		case r.Op == mir.Neg && sort == formula.SortReal:
			return formula.Bin(formula.OpSub, formula.Real(0), v), nil
		case r.Op == mir.Neg:
			return formula.Bin(formula.OpSub, formula.Int(0), v), nil
		case sort == formula.SortBool:
			return formula.Negate(v), nil
		}
		return nil, unsupported("bitwise not", "requires bit-vector theory")

	case *mir.CallValue:
		return g.freshVar("call_"+sanitize(r.Func), sortOf(dest)), nil
	case *mir.Aggregate:
		return g.freshVar("aggregate", sortOf(dest)), nil
	case *mir.Ref:
		return g.freshVar("ref", sortOf(dest)), nil
	case *mir.Discriminant:
		return g.freshVar("discriminant", formula.SortInt), nil
	case *mir.Len:
		v := g.freshVar("len", formula.SortInt)
		f.assume(formula.Ge(v, formula.Int(0)))
		return v, nil
	}
	return nil, fmt.Errorf("%w: rvalue %T", mir.ErrMalformed, rv)
}

var directOps = map[mir.BinOp]formula.Op{
	mir.Eq:  formula.OpEq,
	mir.Ne:  formula.OpNe,
	mir.Lt:  formula.OpLt,
	mir.Le:  formula.OpLe,
	mir.Gt:  formula.OpGt,
	mir.Ge:  formula.OpGe,
	mir.Add: formula.OpAdd,
	mir.Sub: formula.OpSub,
	mir.Mul: formula.OpMul,
}

func (g *Generator) binary(f *frame, op mir.BinOp, l, r formula.Formula, loc diagnostic.Location) (formula.Formula, error) {
	if o, ok := directOps[op]; ok {
		return formula.Bin(o, l, r), nil
	}

	isReal := formula.SortOf(l, nil, nil) == formula.SortReal || formula.SortOf(r, nil, nil) == formula.SortReal
	switch op {
	case mir.Div, mir.Rem:
		var zero formula.Formula = formula.Int(0)
		if isReal {
			zero = formula.Real(0)
		}
		g.emit(f, VC{Kind: DivisionByZero, Formula: formula.Ne(r, zero), Location: loc}, true)
		if isReal {
			return formula.Bin(formula.OpDiv, l, r), nil
		}
		if op == mir.Div {
			return formula.TruncDiv(l, r), nil
		}
		return formula.TruncRem(l, r), nil

	case mir.BitAnd, mir.BitOr, mir.BitXor:
		if formula.SortOf(l, nil, nil) == formula.SortBool && formula.SortOf(r, nil, nil) == formula.SortBool {
			switch op {
			case mir.BitAnd:
				return formula.Conj(l, r), nil
			case mir.BitOr:
				return formula.Disj(l, r), nil
			default:
				return formula.Ne(l, r), nil
			}
		}
		return nil, unsupported("bitwise "+op.String(), "requires bit-vector theory")

	case mir.Shl, mir.Shr:
		return nil, unsupported("shift "+op.String(), "requires bit-vector theory")
	}
	return nil, unsupported("operator "+op.String(), "requires a pointer model")
}

