package solver

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/lhaig/contractcheck/internal/formula"
)

// parenDepth is the net parenthesis count of line, ignoring quoted text.
func parenDepth(line string) int {
	depth := 0
	var quote rune
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '|':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
		}
	}
	return depth
}

// sexp is an atom or a list.
type sexp struct {
	atom string
	list []sexp
	leaf bool
}

func tokenize(s string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '|':
			quote = r
			cur.WriteRune(r)
		case r == '(' || r == ')':
			flush()
			toks = append(toks, string(r))
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

func parseSexp(s string) (sexp, error) {
	toks := tokenize(s)
	e, rest, err := parseTokens(toks)
	if err != nil {
		return sexp{}, err
	}
	if len(rest) != 0 {
		return sexp{}, fmt.Errorf("%w: trailing input in %q", ErrSolver, s)
	}
	return e, nil
}

func parseTokens(toks []string) (sexp, []string, error) {
	if len(toks) == 0 {
		return sexp{}, nil, fmt.Errorf("%w: unexpected end of response", ErrSolver)
	}
	switch toks[0] {
	case "(":
		var list []sexp
		rest := toks[1:]
		for {
			if len(rest) == 0 {
				return sexp{}, nil, fmt.Errorf("%w: unbalanced response", ErrSolver)
			}
			if rest[0] == ")" {
				return sexp{list: list}, rest[1:], nil
			}
			var e sexp
			var err error
			e, rest, err = parseTokens(rest)
			if err != nil {
				return sexp{}, nil, err
			}
			list = append(list, e)
		}
	case ")":
		return sexp{}, nil, fmt.Errorf("%w: unbalanced response", ErrSolver)
	}
	return sexp{atom: toks[0], leaf: true}, toks[1:], nil
}

// parseModel reads a get-value response: ((x 1) (y (- 2)) (b true)).
// Values the parser does not understand, such as arrays, are left out.
func parseModel(resp string) (Model, error) {
	e, err := parseSexp(resp)
	if err != nil {
		return nil, err
	}
	if e.leaf {
		return nil, fmt.Errorf("%w: %s", ErrSolver, resp)
	}
	m := make(Model, len(e.list))
	for _, pair := range e.list {
		if pair.leaf || len(pair.list) != 2 || !pair.list[0].leaf {
			return nil, fmt.Errorf("%w: malformed model entry in %s", ErrSolver, resp)
		}
		name := strings.Trim(pair.list[0].atom, "|")
		if v, ok := parseValue(pair.list[1]); ok {
			m[name] = v
		}
	}
	return m, nil
}

func parseValue(e sexp) (formula.Value, bool) {
	if e.leaf {
		switch e.atom {
		case "true":
			return formula.BoolValue(true), true
		case "false":
			return formula.BoolValue(false), true
		}
		if i, err := strconv.ParseInt(e.atom, 10, 64); err == nil {
			return formula.IntValue(i), true
		}
		if r, ok := new(big.Rat).SetString(e.atom); ok {
			f, _ := r.Float64()
			return formula.RealValue(f), true
		}
		return formula.Value{}, false
	}
	if len(e.list) == 0 || !e.list[0].leaf {
		return formula.Value{}, false
	}
	switch op := e.list[0].atom; {
	case op == "-" && len(e.list) == 2:
		v, ok := parseValue(e.list[1])
		if !ok {
			return v, false
		}
		switch v.Sort {
		case formula.SortInt:
			return formula.IntValue(-v.Int), true
		case formula.SortReal:
			return formula.RealValue(-v.Real), true
		}
	case op == "/" && len(e.list) == 3:
		n, ok1 := parseValue(e.list[1])
		d, ok2 := parseValue(e.list[2])
		if !ok1 || !ok2 {
			return formula.Value{}, false
		}
		den := toFloat(d)
		if den == 0 {
			return formula.Value{}, false
		}
		return formula.RealValue(toFloat(n) / den), true
	}
	return formula.Value{}, false
}

func toFloat(v formula.Value) float64 {
	if v.Sort == formula.SortInt {
		return float64(v.Int)
	}
	return v.Real
}
