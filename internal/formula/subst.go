package formula

import (
	"fmt"
	"sort"
)

// Children returns the direct subterms of f.
func Children(f Formula) []Formula {
	switch n := f.(type) {
	case *Binary:
		return []Formula{n.Left, n.Right}
	case *And:
		return n.Args
	case *Or:
		return n.Args
	case *Not:
		return []Formula{n.Arg}
	case *Implies:
		return []Formula{n.Left, n.Right}
	case *Ite:
		return []Formula{n.Cond, n.Then, n.Else}
	case *Quantifier:
		return []Formula{n.Body}
	case *Select:
		return []Formula{n.Array, n.Index}
	case *Store:
		return []Formula{n.Array, n.Index, n.Value}
	}
	return nil
}

// Rebuild returns a copy of f with its children replaced, in Children order.
func Rebuild(f Formula, kids []Formula) Formula {
	switch n := f.(type) {
	case *Binary:
		return &Binary{Op: n.Op, Left: kids[0], Right: kids[1]}
	case *And:
		return &And{Args: kids}
	case *Or:
		return &Or{Args: kids}
	case *Not:
		return &Not{Arg: kids[0]}
	case *Implies:
		return &Implies{Left: kids[0], Right: kids[1]}
	case *Ite:
		return &Ite{Cond: kids[0], Then: kids[1], Else: kids[2]}
	case *Quantifier:
		return &Quantifier{Kind: n.Kind, Vars: append([]Binder(nil), n.Vars...), Body: kids[0]}
	case *Select:
		return &Select{Array: kids[0], Index: kids[1]}
	case *Store:
		return &Store{Array: kids[0], Index: kids[1], Value: kids[2]}
	}
	return f
}

// Walk visits f and its subterms in pre-order until fn returns false for a
// node, which skips that node's children.
func Walk(f Formula, fn func(Formula) bool) {
	if f == nil || !fn(f) {
		return
	}
	for _, c := range Children(f) {
		Walk(c, fn)
	}
}

// FreeVars returns the free variables of fs sorted by name. When a name
// occurs with several sorts the first known sort wins.
func FreeVars(fs ...Formula) []*Var {
	seen := make(map[string]*Var)
	for _, f := range fs {
		collectFree(f, map[string]int{}, seen)
	}
	out := make([]*Var, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func collectFree(f Formula, bound map[string]int, out map[string]*Var) {
	switch n := f.(type) {
	case *Var:
		if bound[n.Name] > 0 {
			return
		}
		if prev, ok := out[n.Name]; !ok || prev.Sort == SortUnknown {
			out[n.Name] = &Var{Name: n.Name, Sort: n.Sort}
		}
	case *Quantifier:
		for _, b := range n.Vars {
			bound[b.Name]++
		}
		collectFree(n.Body, bound, out)
		for _, b := range n.Vars {
			bound[b.Name]--
		}
	default:
		for _, c := range Children(f) {
			collectFree(c, bound, out)
		}
	}
}

// Substitute replaces free variables by name. Quantifier binders that would
// capture a variable of a replacement are renamed first.
func Substitute(f Formula, m map[string]Formula) Formula {
	if len(m) == 0 {
		return f
	}
	switch n := f.(type) {
	case *Var:
		if r, ok := m[n.Name]; ok {
			return r
		}
		return n
	case *Quantifier:
		inner := m
		for _, b := range n.Vars {
			if _, ok := inner[b.Name]; ok {
				inner = copyWithout(inner, b.Name)
			}
		}
		avoid := make(map[string]bool)
		for k, v := range inner {
			avoid[k] = true
			for _, fv := range FreeVars(v) {
				avoid[fv.Name] = true
			}
		}
		for _, fv := range FreeVars(n.Body) {
			avoid[fv.Name] = true
		}
		vars := append([]Binder(nil), n.Vars...)
		body := n.Body
		for i, b := range vars {
			if !capturing(inner, b.Name) {
				continue
			}
			fresh := freshName(b.Name, avoid)
			avoid[fresh] = true
			body = Substitute(body, map[string]Formula{b.Name: &Var{Name: fresh, Sort: b.Sort}})
			vars[i].Name = fresh
		}
		return &Quantifier{Kind: n.Kind, Vars: vars, Body: Substitute(body, inner)}
	}
	kids := Children(f)
	if len(kids) == 0 {
		return f
	}
	out := make([]Formula, len(kids))
	for i, k := range kids {
		out[i] = Substitute(k, m)
	}
	return Rebuild(f, out)
}

func capturing(m map[string]Formula, name string) bool {
	for _, v := range m {
		for _, fv := range FreeVars(v) {
			if fv.Name == name {
				return true
			}
		}
	}
	return false
}

func copyWithout(m map[string]Formula, name string) map[string]Formula {
	out := make(map[string]Formula, len(m))
	for k, v := range m {
		if k != name {
			out[k] = v
		}
	}
	return out
}

func freshName(base string, avoid map[string]bool) string {
	for i := 1; ; i++ {
		cand := fmt.Sprintf("%s_%d", base, i)
		if !avoid[cand] {
			return cand
		}
	}
}
