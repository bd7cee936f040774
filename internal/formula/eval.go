package formula

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrUnbound is returned by Eval for a variable missing from the model.
	ErrUnbound = errors.New("unbound variable")
	// ErrNotEvaluable is returned by Eval for terms it cannot compute:
	// quantifiers, arrays and division by zero.
	ErrNotEvaluable = errors.New("term cannot be evaluated")
)

// Value is a concrete Int, Real or Bool.
type Value struct {
	Sort Sort    `json:"sort"`
	Int  int64   `json:"int,omitempty"`
	Real float64 `json:"real,omitempty"`
	Bool bool    `json:"bool,omitempty"`
}

func IntValue(v int64) Value { return Value{Sort: SortInt, Int: v} }

func RealValue(v float64) Value { return Value{Sort: SortReal, Real: v} }

func BoolValue(v bool) Value { return Value{Sort: SortBool, Bool: v} }

func (v Value) String() string {
	switch v.Sort {
	case SortInt:
		return strconv.FormatInt(v.Int, 10)
	case SortReal:
		return formatReal(v.Real)
	case SortBool:
		return strconv.FormatBool(v.Bool)
	default:
		return "?"
	}
}

func (v Value) asReal() float64 {
	if v.Sort == SortInt {
		return float64(v.Int)
	}
	return v.Real
}

// Eval computes f under a total assignment of its free variables.
// Integer division and modulo follow SMT-LIB (Euclidean) semantics.
func Eval(f Formula, model map[string]Value) (Value, error) {
	switch n := f.(type) {
	case *BoolLit:
		return BoolValue(n.Value), nil
	case *IntLit:
		return IntValue(n.Value), nil
	case *RealLit:
		return RealValue(n.Value), nil
	case *Var:
		v, ok := model[n.Name]
		if !ok {
			return Value{}, fmt.Errorf("%w: %s", ErrUnbound, n.Name)
		}
		return v, nil
	case *Binary:
		l, err := Eval(n.Left, model)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(n.Right, model)
		if err != nil {
			return Value{}, err
		}
		return evalBinary(n.Op, l, r)
	case *And:
		for _, a := range n.Args {
			v, err := Eval(a, model)
			if err != nil {
				return Value{}, err
			}
			if !v.Bool {
				return BoolValue(false), nil
			}
		}
		return BoolValue(true), nil
	case *Or:
		for _, a := range n.Args {
			v, err := Eval(a, model)
			if err != nil {
				return Value{}, err
			}
			if v.Bool {
				return BoolValue(true), nil
			}
		}
		return BoolValue(false), nil
	case *Not:
		v, err := Eval(n.Arg, model)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(!v.Bool), nil
	case *Implies:
		l, err := Eval(n.Left, model)
		if err != nil {
			return Value{}, err
		}
		if !l.Bool {
			return BoolValue(true), nil
		}
		return Eval(n.Right, model)
	case *Ite:
		c, err := Eval(n.Cond, model)
		if err != nil {
			return Value{}, err
		}
		if c.Bool {
			return Eval(n.Then, model)
		}
		return Eval(n.Else, model)
	}
	return Value{}, fmt.Errorf("%w: %s", ErrNotEvaluable, f)
}

func evalBinary(op Op, l, r Value) (Value, error) {
	if l.Sort == SortBool || r.Sort == SortBool {
		switch op {
		case OpEq:
			return BoolValue(l.Bool == r.Bool), nil
		case OpNe:
			return BoolValue(l.Bool != r.Bool), nil
		}
		return Value{}, fmt.Errorf("%w: %s on booleans", ErrNotEvaluable, op)
	}

	if l.Sort == SortInt && r.Sort == SortInt {
		a, b := l.Int, r.Int
		switch op {
		case OpEq:
			return BoolValue(a == b), nil
		case OpNe:
			return BoolValue(a != b), nil
		case OpLt:
			return BoolValue(a < b), nil
		case OpLe:
			return BoolValue(a <= b), nil
		case OpGt:
			return BoolValue(a > b), nil
		case OpGe:
			return BoolValue(a >= b), nil
		case OpAdd:
			return IntValue(a + b), nil
		case OpSub:
			return IntValue(a - b), nil
		case OpMul:
			return IntValue(a * b), nil
		case OpDiv, OpMod:
			if b == 0 {
				return Value{}, fmt.Errorf("%w: division by zero", ErrNotEvaluable)
			}
			q, m := euclid(a, b)
			if op == OpDiv {
				return IntValue(q), nil
			}
			return IntValue(m), nil
		}
	}

	a, b := l.asReal(), r.asReal()
	switch op {
	case OpEq:
		return BoolValue(a == b), nil
	case OpNe:
		return BoolValue(a != b), nil
	case OpLt:
		return BoolValue(a < b), nil
	case OpLe:
		return BoolValue(a <= b), nil
	case OpGt:
		return BoolValue(a > b), nil
	case OpGe:
		return BoolValue(a >= b), nil
	case OpAdd:
		return RealValue(a + b), nil
	case OpSub:
		return RealValue(a - b), nil
	case OpMul:
		return RealValue(a * b), nil
	case OpDiv:
		if b == 0 {
			return Value{}, fmt.Errorf("%w: division by zero", ErrNotEvaluable)
		}
		return RealValue(a / b), nil
	}
	return Value{}, fmt.Errorf("%w: %s on reals", ErrNotEvaluable, op)
}

// euclid returns q, r with a = b*q + r and 0 <= r < |b|.
func euclid(a, b int64) (int64, int64) {
	q, r := a/b, a%b
	if r < 0 {
		if b > 0 {
			q--
			r += b
		} else {
			q++
			r -= b
		}
	}
	return q, r
}
