package formula

// Infer resolves the sort of every free variable of fs. An explicit sort on
// a Var wins; otherwise the sort comes from how the variable is used, and
// variables without any hint default to Int.
func Infer(fs ...Formula) map[string]Sort {
	env := make(map[string]Sort)
	// two passes let a sort learned late in one formula flow back into
	// comparisons seen earlier
	for pass := 0; pass < 2; pass++ {
		for _, f := range fs {
			inferSorts(f, SortBool, env, nil)
		}
	}
	for _, v := range FreeVars(fs...) {
		if env[v.Name] == SortUnknown {
			env[v.Name] = SortInt
		}
	}
	return env
}

func inferSorts(f Formula, want Sort, env map[string]Sort, bound map[string]Sort) {
	switch n := f.(type) {
	case *Var:
		if _, ok := bound[n.Name]; ok {
			return
		}
		if n.Sort != SortUnknown {
			if env[n.Name] == SortUnknown {
				env[n.Name] = n.Sort
			}
			return
		}
		if want != SortUnknown && env[n.Name] == SortUnknown {
			env[n.Name] = want
		}
	case *Binary:
		var s Sort
		if n.Op.IsComparison() {
			s = pick(SortOf(n.Left, env, bound), SortOf(n.Right, env, bound))
		} else {
			s = want
			if s != SortInt && s != SortReal {
				s = pick(SortOf(n.Left, env, bound), SortOf(n.Right, env, bound))
			}
			if s == SortUnknown {
				s = SortInt
			}
		}
		inferSorts(n.Left, s, env, bound)
		inferSorts(n.Right, s, env, bound)
	case *And:
		for _, a := range n.Args {
			inferSorts(a, SortBool, env, bound)
		}
	case *Or:
		for _, a := range n.Args {
			inferSorts(a, SortBool, env, bound)
		}
	case *Not:
		inferSorts(n.Arg, SortBool, env, bound)
	case *Implies:
		inferSorts(n.Left, SortBool, env, bound)
		inferSorts(n.Right, SortBool, env, bound)
	case *Ite:
		inferSorts(n.Cond, SortBool, env, bound)
		s := want
		if s == SortUnknown {
			s = pick(SortOf(n.Then, env, bound), SortOf(n.Else, env, bound))
		}
		inferSorts(n.Then, s, env, bound)
		inferSorts(n.Else, s, env, bound)
	case *Quantifier:
		inner := make(map[string]Sort, len(bound)+len(n.Vars))
		for k, v := range bound {
			inner[k] = v
		}
		for _, b := range n.Vars {
			inner[b.Name] = b.Sort
		}
		inferSorts(n.Body, SortBool, env, inner)
	case *Select:
		inferSorts(n.Array, SortArray, env, bound)
		inferSorts(n.Index, SortInt, env, bound)
	case *Store:
		inferSorts(n.Array, SortArray, env, bound)
		inferSorts(n.Index, SortInt, env, bound)
		inferSorts(n.Value, SortInt, env, bound)
	}
}

func pick(a, b Sort) Sort {
	if a != SortUnknown {
		return a
	}
	return b
}

// SortOf computes the sort of a term given the sorts known so far. It
// returns SortUnknown for variables nothing is known about.
func SortOf(f Formula, env map[string]Sort, bound map[string]Sort) Sort {
	switch n := f.(type) {
	case *BoolLit:
		return SortBool
	case *IntLit:
		return SortInt
	case *RealLit:
		return SortReal
	case *Var:
		if s, ok := bound[n.Name]; ok && s != SortUnknown {
			return s
		}
		if n.Sort != SortUnknown {
			return n.Sort
		}
		return env[n.Name]
	case *Binary:
		if n.Op.IsComparison() {
			return SortBool
		}
		return pick(SortOf(n.Left, env, bound), SortOf(n.Right, env, bound))
	case *And, *Or, *Not, *Implies, *Quantifier:
		return SortBool
	case *Ite:
		return pick(SortOf(n.Then, env, bound), SortOf(n.Else, env, bound))
	case *Select:
		return SortInt
	case *Store:
		return SortArray
	}
	return SortUnknown
}
