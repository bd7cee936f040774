package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// SMTLib renders f as an SMT-LIB 2 term. env supplies variable sorts, as
// returned by Infer; it decides between integer and real division.
func SMTLib(f Formula, env map[string]Sort) string {
	var sb strings.Builder
	writeSMT(&sb, f, env, nil)
	return sb.String()
}

func writeSMT(sb *strings.Builder, f Formula, env map[string]Sort, bound map[string]Sort) {
	switch n := f.(type) {
	case *BoolLit:
		sb.WriteString(strconv.FormatBool(n.Value))
	case *IntLit:
		if n.Value < 0 {
			sb.WriteString("(- ")
			sb.WriteString(strconv.FormatInt(n.Value, 10)[1:])
			sb.WriteString(")")
			return
		}
		sb.WriteString(strconv.FormatInt(n.Value, 10))
	case *RealLit:
		if n.Value < 0 {
			sb.WriteString("(- ")
			sb.WriteString(formatReal(-n.Value))
			sb.WriteString(")")
			return
		}
		sb.WriteString(formatReal(n.Value))
	case *Var:
		sb.WriteString(Symbol(n.Name))
	case *Binary:
		if n.Op == OpNe {
			sb.WriteString("(not (= ")
			writeSMT(sb, n.Left, env, bound)
			sb.WriteString(" ")
			writeSMT(sb, n.Right, env, bound)
			sb.WriteString("))")
			return
		}
		sb.WriteString("(")
		sb.WriteString(smtOp(n, env, bound))
		sb.WriteString(" ")
		writeSMT(sb, n.Left, env, bound)
		sb.WriteString(" ")
		writeSMT(sb, n.Right, env, bound)
		sb.WriteString(")")
	case *And:
		writeNary(sb, "and", "true", n.Args, env, bound)
	case *Or:
		writeNary(sb, "or", "false", n.Args, env, bound)
	case *Not:
		sb.WriteString("(not ")
		writeSMT(sb, n.Arg, env, bound)
		sb.WriteString(")")
	case *Implies:
		sb.WriteString("(=> ")
		writeSMT(sb, n.Left, env, bound)
		sb.WriteString(" ")
		writeSMT(sb, n.Right, env, bound)
		sb.WriteString(")")
	case *Ite:
		sb.WriteString("(ite ")
		writeSMT(sb, n.Cond, env, bound)
		sb.WriteString(" ")
		writeSMT(sb, n.Then, env, bound)
		sb.WriteString(" ")
		writeSMT(sb, n.Else, env, bound)
		sb.WriteString(")")
	case *Quantifier:
		inner := make(map[string]Sort, len(bound)+len(n.Vars))
		for k, v := range bound {
			inner[k] = v
		}
		sb.WriteString("(")
		sb.WriteString(n.Kind.String())
		sb.WriteString(" (")
		for i, b := range n.Vars {
			s := b.Sort
			if s == SortUnknown {
				s = SortInt
			}
			inner[b.Name] = s
			if i > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(sb, "(%s %s)", Symbol(b.Name), s)
		}
		sb.WriteString(") ")
		writeSMT(sb, n.Body, env, inner)
		sb.WriteString(")")
	case *Select:
		sb.WriteString("(select ")
		writeSMT(sb, n.Array, env, bound)
		sb.WriteString(" ")
		writeSMT(sb, n.Index, env, bound)
		sb.WriteString(")")
	case *Store:
		sb.WriteString("(store ")
		writeSMT(sb, n.Array, env, bound)
		sb.WriteString(" ")
		writeSMT(sb, n.Index, env, bound)
		sb.WriteString(" ")
		writeSMT(sb, n.Value, env, bound)
		sb.WriteString(")")
	default:
		sb.WriteString("true")
	}
}

func writeNary(sb *strings.Builder, op, empty string, args []Formula, env, bound map[string]Sort) {
	switch len(args) {
	case 0:
		sb.WriteString(empty)
	case 1:
		writeSMT(sb, args[0], env, bound)
	default:
		sb.WriteString("(")
		sb.WriteString(op)
		for _, a := range args {
			sb.WriteString(" ")
			writeSMT(sb, a, env, bound)
		}
		sb.WriteString(")")
	}
}

func smtOp(b *Binary, env, bound map[string]Sort) string {
	switch b.Op {
	case OpEq:
		return "="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		if SortOf(b, env, bound) == SortReal {
			return "/"
		}
		return "div"
	case OpMod:
		return "mod"
	}
	return "?"
}

// Symbol quotes name when it is not a plain SMT-LIB simple symbol.
func Symbol(name string) string {
	if name == "" {
		return "||"
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		case strings.ContainsRune("~!@$%^&*-+=<>.?/", r) && i > 0:
		default:
			return "|" + strings.ReplaceAll(name, "|", "") + "|"
		}
	}
	return name
}

// Declaration renders a declare-const command.
func Declaration(name string, sort Sort) string {
	if sort == SortUnknown {
		sort = SortInt
	}
	return fmt.Sprintf("(declare-const %s %s)", Symbol(name), sort)
}

// Script builds a standalone SMT-LIB 2 problem that checks goal by
// contradiction: assumptions are asserted, goal is asserted negated.
// Output is unsat exactly when the assumptions entail goal.
func Script(title string, assumptions []Formula, goal Formula) string {
	all := append(append([]Formula(nil), assumptions...), goal)
	env := Infer(all...)

	var sb strings.Builder
	sb.WriteString("; Verification condition: ")
	sb.WriteString(title)
	sb.WriteString("\n; Goal: ")
	sb.WriteString(goal.String())
	sb.WriteString("\n\n")

	for _, v := range FreeVars(all...) {
		sb.WriteString(Declaration(v.Name, env[v.Name]))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if len(assumptions) > 0 {
		sb.WriteString("; Assumptions\n")
		for _, a := range assumptions {
			sb.WriteString("(assert ")
			sb.WriteString(SMTLib(a, env))
			sb.WriteString(")\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("; Goal (negated for validity check)\n")
	sb.WriteString("(assert (not ")
	sb.WriteString(SMTLib(goal, env))
	sb.WriteString("))\n")
	sb.WriteString("\n(check-sat)\n")
	return sb.String()
}
