package bundle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"

	"github.com/lhaig/contractcheck/internal/contract"
)

// ErrSyntax marks text that does not parse as a contract, rvalue or
// terminator.
var ErrSyntax = errors.New("syntax error")

func syntaxf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

// Parser turns CEL-syntax text into contract expressions and MIR nodes.
// Macros are disabled so all, exists and friends parse as plain calls.
type Parser struct {
	env *cel.Env
}

func NewParser() (*Parser, error) {
	env, err := cel.NewEnv(cel.ClearMacros())
	if err != nil {
		return nil, fmt.Errorf("bundle: cel environment: %w", err)
	}
	return &Parser{env: env}, nil
}

func (p *Parser) parse(text string) (celast.Expr, error) {
	parsed, iss := p.env.Parse(text)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrSyntax, text, iss.Err())
	}
	return parsed.NativeRep().Expr(), nil
}

// Contract parses a contract expression.
func (p *Parser) Contract(text string) (contract.Expr, error) {
	e, err := p.parse(text)
	if err != nil {
		return nil, err
	}
	out, err := toContract(e)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", text, err)
	}
	return out, nil
}

var contractBinary = map[string]contract.BinOp{
	operators.Add:           contract.Add,
	operators.Subtract:      contract.Sub,
	operators.Multiply:      contract.Mul,
	operators.Divide:        contract.Div,
	operators.Modulo:        contract.Mod,
	operators.Equals:        contract.Eq,
	operators.NotEquals:     contract.Ne,
	operators.Less:          contract.Lt,
	operators.LessEquals:    contract.Le,
	operators.Greater:       contract.Gt,
	operators.GreaterEquals: contract.Ge,
	operators.LogicalAnd:    contract.And,
	operators.LogicalOr:     contract.Or,
	"implies":               contract.Implies,
	"bitand":                contract.BitAnd,
	"bitor":                 contract.BitOr,
	"bitxor":                contract.BitXor,
}

var aggregates = map[string]contract.AggOp{
	"sum": contract.Sum, "product": contract.Product, "count": contract.Count,
	"min": contract.Min, "max": contract.Max, "all": contract.All,
	"any": contract.Any, "avg": contract.Average,
}

var temporals = map[string]contract.TemporalOp{
	"always": contract.Always, "eventually": contract.Eventually,
	"until": contract.Until, "since": contract.Since, "next": contract.Next,
}

func literal(e celast.Expr) (contract.Expr, error) {
	switch v := e.AsLiteral().(type) {
	case types.Int:
		return contract.Int(int64(v)), nil
	case types.Uint:
		return contract.Int(int64(v)), nil
	case types.Double:
		return contract.Float(float64(v)), nil
	case types.Bool:
		return contract.Bool(bool(v)), nil
	case types.String:
		return contract.Str(string(v)), nil
	case types.Null:
		return contract.Null(), nil
	default:
		return nil, syntaxf("unsupported literal %v", v)
	}
}

func toContract(e celast.Expr) (contract.Expr, error) {
	switch e.Kind() {
	case celast.LiteralKind:
		return literal(e)
	case celast.IdentKind:
		if e.AsIdent() == "result" {
			return &contract.Result{}, nil
		}
		return contract.Var(e.AsIdent()), nil
	case celast.SelectKind:
		sel := e.AsSelect()
		obj, err := toContract(sel.Operand())
		if err != nil {
			return nil, err
		}
		return &contract.FieldAccess{Object: obj, Field: sel.FieldName()}, nil
	case celast.CallKind:
		return callToContract(e.AsCall())
	default:
		return nil, syntaxf("unsupported expression form")
	}
}

func contractArgs(args []celast.Expr) ([]contract.Expr, error) {
	out := make([]contract.Expr, len(args))
	for i, a := range args {
		c, err := toContract(a)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func arity(name string, args []celast.Expr, want ...int) error {
	for _, n := range want {
		if len(args) == n {
			return nil
		}
	}
	return syntaxf("%s takes %v arguments, got %d", name, want, len(args))
}

func identArg(name string, e celast.Expr) (string, error) {
	if e.Kind() != celast.IdentKind {
		return "", syntaxf("%s expects a name", name)
	}
	return e.AsIdent(), nil
}

func stringArg(name string, e celast.Expr) (string, error) {
	if e.Kind() == celast.LiteralKind {
		if s, ok := e.AsLiteral().(types.String); ok {
			return string(s), nil
		}
	}
	return "", syntaxf("%s expects a string literal", name)
}

func callToContract(call celast.CallExpr) (contract.Expr, error) {
	name := call.FunctionName()
	raw := call.Args()

	if call.IsMemberFunction() {
		if name != "matches" {
			return nil, syntaxf("unsupported method %s", name)
		}
		if err := arity(name, raw, 1); err != nil {
			return nil, err
		}
		target, err := toContract(call.Target())
		if err != nil {
			return nil, err
		}
		pattern, err := stringArg(name, raw[0])
		if err != nil {
			return nil, err
		}
		return &contract.Matches{Expr: target, Pattern: pattern}, nil
	}

	switch name {
	case "forall", "exists":
		return quantifier(name, raw)
	case "bind":
		return binding(raw)
	case "is_type":
		if err := arity(name, raw, 2); err != nil {
			return nil, err
		}
		x, err := toContract(raw[0])
		if err != nil {
			return nil, err
		}
		tn, err := stringArg(name, raw[1])
		if err != nil {
			return nil, err
		}
		t, ok := contract.ParseType(tn)
		if !ok {
			return nil, syntaxf("unknown type %q", tn)
		}
		return &contract.IsType{Expr: x, Type: t}, nil
	case operators.Conditional:
		return nil, syntaxf("conditional expressions are not part of the contract language")
	}

	args, err := contractArgs(raw)
	if err != nil {
		return nil, err
	}

	if op, ok := contractBinary[name]; ok {
		if err := arity(name, raw, 2); err != nil {
			return nil, err
		}
		return contract.Binary(op, args[0], args[1]), nil
	}
	if op, ok := aggregates[name]; ok {
		if err := arity(name, raw, 1, 2); err != nil {
			return nil, err
		}
		agg := &contract.Aggregate{Op: op, Collection: args[0]}
		if len(args) == 2 {
			agg.Filter = args[1]
		}
		return agg, nil
	}
	if op, ok := temporals[name]; ok {
		if err := arity(name, raw, 1); err != nil {
			return nil, err
		}
		return &contract.Temporal{Op: op, Expr: args[0]}, nil
	}

	switch name {
	case operators.LogicalNot:
		return contract.Negate(args[0]), nil
	case operators.Negate:
		return &contract.UnaryOp{Op: contract.Neg, Operand: args[0]}, nil
	case "bitnot":
		if err := arity(name, raw, 1); err != nil {
			return nil, err
		}
		return &contract.UnaryOp{Op: contract.BitNot, Operand: args[0]}, nil
	case operators.Index:
		return &contract.ArrayAccess{Array: args[0], Index: args[1]}, nil
	case operators.In:
		return &contract.InSet{Element: args[0], Set: args[1]}, nil
	case "old":
		if err := arity(name, raw, 1); err != nil {
			return nil, err
		}
		return &contract.Old{Expr: args[0]}, nil
	case "len", "size":
		if err := arity(name, raw, 1); err != nil {
			return nil, err
		}
		return &contract.Length{Expr: args[0]}, nil
	case "range", "range_inclusive":
		if err := arity(name, raw, 2); err != nil {
			return nil, err
		}
		return &contract.Range{Start: args[0], End: args[1], Inclusive: name == "range_inclusive"}, nil
	}
	if strings.HasPrefix(name, "is_") || strings.HasPrefix(name, "valid_") {
		return &contract.SemanticPredicate{Name: name, Args: args}, nil
	}
	return &contract.Call{Function: name, Args: args}, nil
}

// quantifier parses forall(i, j, body) with Int binders.
func quantifier(name string, raw []celast.Expr) (contract.Expr, error) {
	if len(raw) < 2 {
		return nil, syntaxf("%s needs at least one variable and a body", name)
	}
	q := &contract.Quantifier{Kind: contract.Forall}
	if name == "exists" {
		q.Kind = contract.Exists
	}
	for _, v := range raw[:len(raw)-1] {
		id, err := identArg(name, v)
		if err != nil {
			return nil, err
		}
		q.Vars = append(q.Vars, contract.Binder{Name: id, Type: contract.TypeInt})
	}
	body, err := toContract(raw[len(raw)-1])
	if err != nil {
		return nil, err
	}
	q.Body = body
	return q, nil
}

// binding parses bind(x, value, body); nested binds in body merge into
// one Let.
func binding(raw []celast.Expr) (contract.Expr, error) {
	if err := arity("bind", raw, 3); err != nil {
		return nil, err
	}
	id, err := identArg("bind", raw[0])
	if err != nil {
		return nil, err
	}
	value, err := toContract(raw[1])
	if err != nil {
		return nil, err
	}
	body, err := toContract(raw[2])
	if err != nil {
		return nil, err
	}
	let := &contract.Let{Bindings: []contract.Binding{{Name: id, Value: value}}, Body: body}
	if inner, ok := body.(*contract.Let); ok {
		let.Bindings = append(let.Bindings, inner.Bindings...)
		let.Body = inner.Body
	}
	return let, nil
}
