// Package translate lowers contract expressions into solver formulas.
package translate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lhaig/contractcheck/internal/contract"
	"github.com/lhaig/contractcheck/internal/formula"
)

// ResultName is the reserved symbol standing for a function's return value.
const ResultName = "__result__"

// oldPrefix marks entry-value symbols. '@' never occurs in a contract
// identifier, so the names cannot clash with user variables.
const oldPrefix = "old@"

// OldName is the symbol for the entry value of variable name.
func OldName(name string) string { return oldPrefix + name }

// OldBase reports the variable whose entry value symbol is name.
func OldBase(name string) (string, bool) { return strings.CutPrefix(name, oldPrefix) }

// ErrUnsupported marks expressions that have no formula encoding.
var ErrUnsupported = errors.New("unsupported construct")

// UnsupportedError names the construct that could not be translated.
type UnsupportedError struct {
	Construct string
	Reason    string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported construct %s: %s", e.Construct, e.Reason)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

func unsupported(construct, reason string) error {
	return &UnsupportedError{Construct: construct, Reason: reason}
}

// Translator converts expressions; Types gives variables declared sorts.
// The zero value is ready to use and leaves variable sorts to inference.
type Translator struct {
	Types map[string]contract.Type
}

// Translate converts e using a zero Translator.
func Translate(e contract.Expr) (formula.Formula, error) {
	var t Translator
	return t.Translate(e)
}

// ForContract returns a Translator typed by the contract's parameters.
func ForContract(c *contract.FunctionContract) *Translator {
	t := &Translator{Types: make(map[string]contract.Type)}
	if c != nil {
		for _, p := range c.Params {
			t.Types[p.Name] = p.Type
		}
	}
	return t
}

// Translate converts e into a formula or reports the first construct that
// cannot be encoded.
func (t *Translator) Translate(e contract.Expr) (formula.Formula, error) {
	return t.expr(e, nil)
}

// SortOf maps a contract type to a formula sort.
func SortOf(ty contract.Type) (formula.Sort, error) {
	switch ty {
	case contract.TypeInt:
		return formula.SortInt, nil
	case contract.TypeFloat:
		return formula.SortReal, nil
	case contract.TypeBool:
		return formula.SortBool, nil
	case contract.TypeArray:
		return formula.SortArray, nil
	}
	return formula.SortUnknown, unsupported("type "+ty.String(), "requires string theory")
}

func (t *Translator) variable(name string, bound map[string]formula.Sort) formula.Formula {
	if s, ok := bound[name]; ok {
		return formula.NewVar(name, s)
	}
	if ty, ok := t.Types[name]; ok {
		if s, err := SortOf(ty); err == nil {
			return formula.NewVar(name, s)
		}
	}
	return formula.NewVar(name, formula.SortUnknown)
}

func (t *Translator) expr(e contract.Expr, bound map[string]formula.Sort) (formula.Formula, error) {
	switch n := e.(type) {
	case *contract.Variable:
		return t.variable(n.Name, bound), nil

	case *contract.Constant:
		switch n.Kind {
		case contract.ConstInt:
			return formula.Int(n.Int), nil
		case contract.ConstFloat:
			return formula.Real(n.Float), nil
		case contract.ConstBool:
			return formula.Bool(n.Bool), nil
		case contract.ConstString:
			return nil, unsupported("string constant", "requires string theory")
		default:
			return nil, unsupported("null constant", "requires a reference model")
		}

	case *contract.BinaryOp:
		return t.binary(n, bound)

	case *contract.UnaryOp:
		operand, err := t.expr(n.Operand, bound)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case contract.Neg:
			return formula.Bin(formula.OpSub, formula.Int(0), operand), nil
		case contract.Not:
			return formula.Negate(operand), nil
		default:
			return nil, unsupported("bitwise not", "requires bit-vector theory")
		}

	case *contract.Quantifier:
		inner := make(map[string]formula.Sort, len(bound)+len(n.Vars))
		for k, v := range bound {
			inner[k] = v
		}
		vars := make([]formula.Binder, len(n.Vars))
		for i, b := range n.Vars {
			s, err := SortOf(b.Type)
			if err != nil {
				return nil, err
			}
			vars[i] = formula.Binder{Name: b.Name, Sort: s}
			inner[b.Name] = s
		}
		body, err := t.expr(n.Body, inner)
		if err != nil {
			return nil, err
		}
		kind := formula.Forall
		if n.Kind == contract.Exists {
			kind = formula.Exists
		}
		return &formula.Quantifier{Kind: kind, Vars: vars, Body: body}, nil

	case *contract.ArrayAccess:
		arr, err := t.expr(n.Array, bound)
		if err != nil {
			return nil, err
		}
		idx, err := t.expr(n.Index, bound)
		if err != nil {
			return nil, err
		}
		if v, ok := arr.(*formula.Var); ok && v.Sort == formula.SortUnknown {
			arr = formula.NewVar(v.Name, formula.SortArray)
		}
		return &formula.Select{Array: arr, Index: idx}, nil

	case *contract.Old:
		v, ok := n.Expr.(*contract.Variable)
		if !ok {
			return nil, unsupported("old", "only old(variable) is supported")
		}
		inner := t.variable(v.Name, bound).(*formula.Var)
		return formula.NewVar(OldName(v.Name), inner.Sort), nil

	case *contract.Result:
		return formula.NewVar(ResultName, formula.SortUnknown), nil

	case *contract.Let:
		return t.expr(contract.EliminateLet(n), bound)

	case *contract.Call:
		return nil, unsupported("call "+n.Function, "requires uninterpreted function declarations")
	case *contract.FieldAccess:
		return nil, unsupported("field access "+n.Field, "requires a record theory")
	case *contract.Length:
		return nil, unsupported("length", "requires sequence theory")
	case *contract.IsType:
		return nil, unsupported("type test", "requires runtime type information")
	case *contract.SemanticPredicate:
		return nil, unsupported("semantic predicate "+n.Name, "requires predicate unfolding")
	case *contract.Temporal:
		return nil, unsupported("temporal "+n.Op.String(), "requires a temporal logic encoding")
	case *contract.InSet:
		return nil, unsupported("set membership", "requires set or array theory")
	case *contract.Range:
		return nil, unsupported("range", "requires range expansion")
	case *contract.Matches:
		return nil, unsupported("pattern match", "requires string theory")
	case *contract.Aggregate:
		return nil, unsupported("aggregate "+n.Op.String(), "requires an aggregate encoding")
	}
	return nil, unsupported(fmt.Sprintf("%T", e), "unknown expression")
}

var arith = map[contract.BinOp]formula.Op{
	contract.Add: formula.OpAdd,
	contract.Sub: formula.OpSub,
	contract.Mul: formula.OpMul,
	contract.Eq:  formula.OpEq,
	contract.Ne:  formula.OpNe,
	contract.Lt:  formula.OpLt,
	contract.Le:  formula.OpLe,
	contract.Gt:  formula.OpGt,
	contract.Ge:  formula.OpGe,
}

func (t *Translator) binary(n *contract.BinaryOp, bound map[string]formula.Sort) (formula.Formula, error) {
	switch n.Op {
	case contract.BitAnd, contract.BitOr, contract.BitXor:
		return nil, unsupported("bitwise "+n.Op.String(), "requires bit-vector theory")
	}

	l, err := t.expr(n.Left, bound)
	if err != nil {
		return nil, err
	}
	r, err := t.expr(n.Right, bound)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case contract.And:
		return &formula.And{Args: flattenAnd(l, r)}, nil
	case contract.Or:
		return &formula.Or{Args: flattenOr(l, r)}, nil
	case contract.Implies:
		return formula.Imply(l, r), nil
	}
	switch n.Op {
	case contract.Div, contract.Mod:
		return division(n.Op, l, r, bound), nil
	}
	if op, ok := arith[n.Op]; ok {
		return formula.Bin(op, l, r), nil
	}
	return nil, unsupported("operator "+n.Op.String(), "unknown operator")
}

// division gives integer / and % the truncating meaning they have in
// program code; real division stays exact.
func division(op contract.BinOp, l, r formula.Formula, bound map[string]formula.Sort) formula.Formula {
	if formula.SortOf(l, nil, bound) == formula.SortReal || formula.SortOf(r, nil, bound) == formula.SortReal {
		if op == contract.Div {
			return formula.Bin(formula.OpDiv, l, r)
		}
		return formula.Bin(formula.OpMod, l, r)
	}
	if op == contract.Div {
		return formula.TruncDiv(l, r)
	}
	return formula.TruncRem(l, r)
}

// flattenAnd merges nested conjunctions into one argument list.
func flattenAnd(fs ...formula.Formula) []formula.Formula {
	var out []formula.Formula
	for _, f := range fs {
		if a, ok := f.(*formula.And); ok {
			out = append(out, a.Args...)
			continue
		}
		out = append(out, f)
	}
	return out
}

func flattenOr(fs ...formula.Formula) []formula.Formula {
	var out []formula.Formula
	for _, f := range fs {
		if o, ok := f.(*formula.Or); ok {
			out = append(out, o.Args...)
			continue
		}
		out = append(out, f)
	}
	return out
}
