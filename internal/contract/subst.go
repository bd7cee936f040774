package contract

import (
	"fmt"
	"sort"
)

// Children returns the direct sub-expressions of e in a fixed order.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case *BinaryOp:
		return []Expr{n.Left, n.Right}
	case *UnaryOp:
		return []Expr{n.Operand}
	case *Call:
		return n.Args
	case *ArrayAccess:
		return []Expr{n.Array, n.Index}
	case *FieldAccess:
		return []Expr{n.Object}
	case *Quantifier:
		return []Expr{n.Body}
	case *Old:
		return []Expr{n.Expr}
	case *Length:
		return []Expr{n.Expr}
	case *IsType:
		return []Expr{n.Expr}
	case *SemanticPredicate:
		return n.Args
	case *Temporal:
		return []Expr{n.Expr}
	case *InSet:
		return []Expr{n.Element, n.Set}
	case *Range:
		return []Expr{n.Start, n.End}
	case *Matches:
		return []Expr{n.Expr}
	case *Aggregate:
		if n.Filter != nil {
			return []Expr{n.Collection, n.Filter}
		}
		return []Expr{n.Collection}
	case *Let:
		out := make([]Expr, 0, len(n.Bindings)+1)
		for _, b := range n.Bindings {
			out = append(out, b.Value)
		}
		return append(out, n.Body)
	}
	return nil
}

// withChildren rebuilds e with replacement children in Children order.
func withChildren(e Expr, kids []Expr) Expr {
	switch n := e.(type) {
	case *BinaryOp:
		return &BinaryOp{Op: n.Op, Left: kids[0], Right: kids[1]}
	case *UnaryOp:
		return &UnaryOp{Op: n.Op, Operand: kids[0]}
	case *Call:
		return &Call{Function: n.Function, Args: kids}
	case *ArrayAccess:
		return &ArrayAccess{Array: kids[0], Index: kids[1]}
	case *FieldAccess:
		return &FieldAccess{Object: kids[0], Field: n.Field}
	case *Quantifier:
		return &Quantifier{Kind: n.Kind, Vars: append([]Binder(nil), n.Vars...), Body: kids[0]}
	case *Old:
		return &Old{Expr: kids[0]}
	case *Length:
		return &Length{Expr: kids[0]}
	case *IsType:
		return &IsType{Expr: kids[0], Type: n.Type}
	case *SemanticPredicate:
		return &SemanticPredicate{Name: n.Name, Args: kids}
	case *Temporal:
		return &Temporal{Op: n.Op, Expr: kids[0]}
	case *InSet:
		return &InSet{Element: kids[0], Set: kids[1]}
	case *Range:
		return &Range{Start: kids[0], End: kids[1], Inclusive: n.Inclusive}
	case *Matches:
		return &Matches{Expr: kids[0], Pattern: n.Pattern}
	case *Aggregate:
		agg := &Aggregate{Op: n.Op, Collection: kids[0]}
		if len(kids) > 1 {
			agg.Filter = kids[1]
		}
		return agg
	case *Let:
		bs := make([]Binding, len(n.Bindings))
		for i, b := range n.Bindings {
			bs[i] = Binding{Name: b.Name, Value: kids[i]}
		}
		return &Let{Bindings: bs, Body: kids[len(kids)-1]}
	}
	return e
}

// Walk calls fn for e and every descendant in pre-order. Returning false
// from fn skips the children of that node.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}

// FreeVariables returns the sorted names of variables not bound by an
// enclosing quantifier or let.
func FreeVariables(e Expr) []string {
	seen := make(map[string]bool)
	collectFree(e, map[string]int{}, seen)
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func collectFree(e Expr, bound map[string]int, out map[string]bool) {
	switch n := e.(type) {
	case *Variable:
		if bound[n.Name] == 0 {
			out[n.Name] = true
		}
	case *Quantifier:
		for _, b := range n.Vars {
			bound[b.Name]++
		}
		collectFree(n.Body, bound, out)
		for _, b := range n.Vars {
			bound[b.Name]--
		}
	case *Let:
		for i, b := range n.Bindings {
			collectFree(b.Value, bound, out)
			bound[n.Bindings[i].Name]++
		}
		collectFree(n.Body, bound, out)
		for _, b := range n.Bindings {
			bound[b.Name]--
		}
	default:
		for _, c := range Children(e) {
			collectFree(c, bound, out)
		}
	}
}

// Substitute replaces free occurrences of the mapped variables. Quantifier
// binders that would capture a free variable of a replacement are renamed.
func Substitute(e Expr, bindings map[string]Expr) Expr {
	if len(bindings) == 0 {
		return e
	}
	switch n := e.(type) {
	case *Variable:
		if r, ok := bindings[n.Name]; ok {
			return r
		}
		return n
	case *Quantifier:
		inner := without(bindings, binderNames(n.Vars)...)
		vars := append([]Binder(nil), n.Vars...)
		body := n.Body
		captured := replacementFree(inner)
		avoid := make(map[string]bool, len(captured)+len(inner))
		for k := range captured {
			avoid[k] = true
		}
		for k := range inner {
			avoid[k] = true
		}
		for i, b := range vars {
			if !captured[b.Name] {
				continue
			}
			fresh := freshName(b.Name, avoid, FreeVariables(body))
			avoid[fresh] = true
			body = Substitute(body, map[string]Expr{b.Name: Var(fresh)})
			vars[i].Name = fresh
		}
		return &Quantifier{Kind: n.Kind, Vars: vars, Body: Substitute(body, inner)}
	case *Let:
		bs := make([]Binding, len(n.Bindings))
		cur := bindings
		for i, b := range n.Bindings {
			bs[i] = Binding{Name: b.Name, Value: Substitute(b.Value, cur)}
			cur = without(cur, b.Name)
		}
		return &Let{Bindings: bs, Body: Substitute(n.Body, cur)}
	}
	kids := Children(e)
	if len(kids) == 0 {
		return e
	}
	out := make([]Expr, len(kids))
	for i, k := range kids {
		out[i] = Substitute(k, bindings)
	}
	return withChildren(e, out)
}

// EliminateLet removes every Let by substituting its bindings into the body.
// Bindings are sequential: later values see earlier names.
func EliminateLet(e Expr) Expr {
	if l, ok := e.(*Let); ok {
		body := EliminateLet(l.Body)
		for i := len(l.Bindings) - 1; i >= 0; i-- {
			b := l.Bindings[i]
			body = Substitute(body, map[string]Expr{b.Name: EliminateLet(b.Value)})
		}
		return body
	}
	kids := Children(e)
	if len(kids) == 0 {
		return e
	}
	out := make([]Expr, len(kids))
	for i, k := range kids {
		out[i] = EliminateLet(k)
	}
	return withChildren(e, out)
}

func binderNames(bs []Binder) []string {
	names := make([]string, len(bs))
	for i, b := range bs {
		names[i] = b.Name
	}
	return names
}

func without(m map[string]Expr, names ...string) map[string]Expr {
	drop := false
	for _, n := range names {
		if _, ok := m[n]; ok {
			drop = true
		}
	}
	if !drop {
		return m
	}
	out := make(map[string]Expr, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, n := range names {
		delete(out, n)
	}
	return out
}

func replacementFree(m map[string]Expr) map[string]bool {
	out := make(map[string]bool)
	for _, v := range m {
		for _, n := range FreeVariables(v) {
			out[n] = true
		}
	}
	return out
}

func freshName(base string, avoid map[string]bool, used []string) string {
	taken := make(map[string]bool, len(used))
	for _, u := range used {
		taken[u] = true
	}
	for i := 1; ; i++ {
		cand := fmt.Sprintf("%s_%d", base, i)
		if !avoid[cand] && !taken[cand] {
			return cand
		}
	}
}
