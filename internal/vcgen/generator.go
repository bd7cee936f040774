package vcgen

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lhaig/contractcheck/internal/contract"
	"github.com/lhaig/contractcheck/internal/diagnostic"
	"github.com/lhaig/contractcheck/internal/formula"
	"github.com/lhaig/contractcheck/internal/invariant"
	"github.com/lhaig/contractcheck/internal/mir"
	"github.com/lhaig/contractcheck/internal/translate"
)

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger used for walk diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithLoops registers loop invariants keyed by their header block.
func WithLoops(loops ...*invariant.Loop) Option {
	return func(g *Generator) {
		for _, l := range loops {
			if l != nil {
				g.loops[l.Header] = l
			}
		}
	}
}

// Generator produces VCs. Its name counter increases across calls; it is
// not safe for concurrent use.
type Generator struct {
	logger  *zap.Logger
	loops   map[mir.BlockID]*invariant.Loop
	counter int

	// per-call state
	fn      *mir.Function
	c       *contract.FunctionContract
	tr      *translate.Translator
	entry   map[mir.LocalID]formula.Formula
	headers map[mir.BlockID]bool
	havoc   map[mir.BlockID][]mir.LocalID
	fresh   int
	vcs     []VC
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		logger: zap.NewNop(),
		loops:  make(map[mir.BlockID]*invariant.Loop),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// loopState is what a walk remembers about a loop it has entered.
type loopState struct {
	measure formula.Formula
	lower   formula.Formula
}

// frame is one pending walk position. A frame owns its state and loop
// maps; path and trail share prefixes and are only ever extended by copy.
type frame struct {
	block  mir.BlockID
	path   []formula.Formula
	state  map[mir.LocalID]formula.Formula
	onPath map[mir.BlockID]bool
	trail  []mir.BlockID
	loops  map[mir.BlockID]*loopState
}

func (f *frame) fork(block mir.BlockID, facts ...formula.Formula) *frame {
	next := &frame{
		block:  block,
		path:   f.path,
		state:  make(map[mir.LocalID]formula.Formula, len(f.state)),
		onPath: make(map[mir.BlockID]bool, len(f.onPath)),
		trail:  f.trail,
		loops:  make(map[mir.BlockID]*loopState, len(f.loops)),
	}
	for k, v := range f.state {
		next.state[k] = v
	}
	for k, v := range f.onPath {
		next.onPath[k] = v
	}
	for k, v := range f.loops {
		next.loops[k] = v
	}
	for _, fact := range facts {
		next.assume(fact)
	}
	return next
}

func (f *frame) assume(fact formula.Formula) {
	f.path = append(f.path[:len(f.path):len(f.path)], fact)
}

// GenerateFunctionVCs walks fn from its entry block and returns the VCs for
// its division sites, assertions, loops and the clauses of c (which may be
// nil). It fails on a malformed CFG or an untranslatable construct.
func (g *Generator) GenerateFunctionVCs(fn *mir.Function, c *contract.FunctionContract) ([]VC, error) {
	if err := mir.Check(fn); err != nil {
		return nil, err
	}

	g.fn = fn
	g.c = c
	g.tr = translate.ForContract(c)
	g.headers = mir.LoopHeaders(fn)
	g.havoc = make(map[mir.BlockID][]mir.LocalID)
	for _, r := range mir.CyclicRegions(fn) {
		if !r.Irreducible() {
			continue
		}
		// every way into the region is a header over all of it
		assigned := mir.AssignedLocals(fn, r.Blocks)
		for _, e := range r.Entries {
			g.headers[e] = true
			g.havoc[e] = assigned
		}
	}
	g.fresh = 0
	g.vcs = nil
	defer func() {
		g.fn, g.c, g.tr, g.entry = nil, nil, nil, nil
	}()

	root := &frame{
		block:  fn.Entry,
		state:  make(map[mir.LocalID]formula.Formula),
		onPath: make(map[mir.BlockID]bool),
		loops:  make(map[mir.BlockID]*loopState),
	}
	for _, p := range fn.Params {
		name := p.Name
		if name == "" {
			name = p.Local.String()
		}
		root.state[p.Local] = formula.NewVar(name, sortOf(p.Type))
	}
	g.entry = make(map[mir.LocalID]formula.Formula, len(root.state))
	for k, v := range root.state {
		g.entry[k] = v
	}

	if err := g.assumeEntry(root); err != nil {
		return nil, err
	}

	stack := []*frame{root}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		next, err := g.step(f)
		if err != nil {
			return nil, fmt.Errorf("function %s %s: %w", fn.Name, f.block, err)
		}
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}

	g.logger.Debug("generated verification conditions",
		zap.String("function", fn.Name),
		zap.Int("count", len(g.vcs)))
	return g.vcs, nil
}

// assumeEntry pushes preconditions and contract invariants as standing
// assumptions.
func (g *Generator) assumeEntry(root *frame) error {
	if g.c == nil {
		return nil
	}
	for _, pre := range g.c.Preconditions {
		f, err := g.resolve(pre.Expr, root)
		if err != nil {
			return fmt.Errorf("function %s: precondition %q: %w", g.fn.Name, pre.Name, err)
		}
		if pre.VerificationHint.Kind == contract.StaticCheck {
			g.emit(root, VC{
				Kind:      Precondition,
				Condition: pre.Name,
				Formula:   formula.Conj(append(append([]formula.Formula(nil), root.path...), f)...),
				Location:  pre.Location,
				Mode:      Satisfiability,
			}, false)
		}
		root.assume(f)
	}
	for _, inv := range g.c.Invariants {
		f, err := g.resolve(inv.Expr, root)
		if err != nil {
			return fmt.Errorf("function %s: invariant %q: %w", g.fn.Name, inv.Name, err)
		}
		root.assume(f)
	}
	return nil
}

// step executes one block and returns the frames for its successors.
func (g *Generator) step(f *frame) ([]*frame, error) {
	if f.onPath[f.block] {
		return nil, g.closeLoop(f)
	}
	f.onPath[f.block] = true
	f.trail = append(f.trail[:len(f.trail):len(f.trail)], f.block)

	bb := g.fn.Blocks[f.block]
	if g.headers[f.block] {
		if err := g.enterLoop(f, bb); err != nil {
			return nil, err
		}
	}

	for _, st := range bb.Statements {
		if err := g.statement(f, bb, st); err != nil {
			return nil, err
		}
	}
	return g.terminator(f, bb)
}

func (g *Generator) statement(f *frame, bb *mir.BasicBlock, st mir.Stmt) error {
	as, ok := st.(*mir.Assign)
	if !ok {
		return nil // storage markers and nops carry no meaning here
	}
	loc := as.Location
	if loc.IsZero() {
		loc = bb.Location
	}
	v, err := g.rvalue(f, as.Value, g.fn.LocalType(as.Place.Local), loc)
	if err != nil {
		return err
	}
	return g.assign(f, as.Place, v)
}

func (g *Generator) terminator(f *frame, bb *mir.BasicBlock) ([]*frame, error) {
	switch t := bb.Terminator.(type) {
	case *mir.Return:
		return nil, g.checkReturn(f, bb)

	case *mir.Goto:
		return []*frame{f.fork(t.Target)}, nil

	case *mir.SwitchInt:
		d, err := g.operand(f, t.Discriminant)
		if err != nil {
			return nil, err
		}
		if len(t.Targets) == 1 {
			pred := switchPredicate(d, t.Values[0])
			return []*frame{
				f.fork(t.Targets[0], pred),
				f.fork(t.Otherwise, formula.Negate(pred)),
			}, nil
		}
		// multi-way switches are walked without branch facts
		next := make([]*frame, 0, len(t.Targets)+1)
		for _, target := range t.Targets {
			next = append(next, f.fork(target))
		}
		return append(next, f.fork(t.Otherwise)), nil

	case *mir.Assert:
		c, err := g.operand(f, t.Cond)
		if err != nil {
			return nil, err
		}
		prop := c
		if !t.Expected {
			prop = formula.Negate(c)
		}
		loc := t.Location
		if loc.IsZero() {
			loc = bb.Location
		}
		g.emit(f, VC{Kind: Assertion, Condition: t.Message, Formula: prop, Location: loc}, true)
		return []*frame{f.fork(t.Target, prop)}, nil

	case *mir.Call:
		if !t.HasTarget {
			return nil, nil
		}
		v := g.freshVar("call_"+sanitize(t.Func), sortOf(g.fn.LocalType(t.Destination.Local)))
		g.logger.Debug("call abstracted", zap.String("callee", t.Func), zap.String("value", v.String()))
		if err := g.assign(f, t.Destination, v); err != nil {
			return nil, err
		}
		return []*frame{f.fork(t.Target)}, nil

	case *mir.Drop:
		return []*frame{f.fork(t.Target)}, nil

	case *mir.Unreachable:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: terminator %T", mir.ErrMalformed, bb.Terminator)
}

// switchPredicate is the fact that holds on the single-value target.
func switchPredicate(d formula.Formula, value int64) formula.Formula {
	if formula.SortOf(d, nil, nil) == formula.SortBool {
		if value == 0 {
			return formula.Negate(d)
		}
		return d
	}
	return formula.Eq(d, formula.Int(value))
}

func (g *Generator) checkReturn(f *frame, bb *mir.BasicBlock) error {
	if g.c == nil {
		return nil
	}
	for _, post := range g.c.Postconditions {
		if post.VerificationHint.Kind == contract.RuntimeOnly {
			g.logger.Debug("postcondition left to runtime checks", zap.String("condition", post.Name))
			continue
		}
		p, err := g.resolve(post.Expr, f)
		if err != nil {
			return fmt.Errorf("postcondition %q: %w", post.Name, err)
		}
		g.emit(f, VC{Kind: Postcondition, Condition: post.Name, Formula: p, Location: locOr(post.Location, bb.Location)}, true)
	}
	for _, inv := range g.c.Invariants {
		p, err := g.resolve(inv.Expr, f)
		if err != nil {
			return fmt.Errorf("invariant %q: %w", inv.Name, err)
		}
		g.emit(f, VC{Kind: Invariant, Condition: inv.Name, Formula: p, Location: locOr(inv.Location, bb.Location)}, true)
	}
	return nil
}

// emit records a VC. Guarded goals are prefixed by the frame's path
// condition as an implication.
func (g *Generator) emit(f *frame, vc VC, guarded bool) {
	if guarded && len(f.path) > 0 {
		vc.Formula = formula.Imply(formula.Conj(f.path...), vc.Formula)
	}
	tag := vc.Kind.String()
	if vc.Condition != "" && vc.Kind != Assertion {
		tag += "_" + sanitize(vc.Condition)
	}
	vc.Name = fmt.Sprintf("%s_%d", tag, g.counter)
	g.counter++
	vc.Path = append([]mir.BlockID(nil), f.trail...)
	g.vcs = append(g.vcs, vc)
}

// resolve translates a contract expression and binds its variables to the
// frame's symbolic state: result to the return place, old(x) to the entry
// value of x, and named locals to their current value.
func (g *Generator) resolve(e contract.Expr, f *frame) (formula.Formula, error) {
	out, err := g.tr.Translate(e)
	if err != nil {
		return nil, err
	}
	m := make(map[string]formula.Formula)
	for _, v := range formula.FreeVars(out) {
		if v.Name == translate.ResultName {
			m[v.Name] = g.read(f, mir.ReturnPlace)
			continue
		}
		if base, ok := translate.OldBase(v.Name); ok {
			if id, ok := g.fn.LocalByName(base); ok {
				if init, ok := g.entry[id]; ok {
					m[v.Name] = init
				} else {
					m[v.Name] = formula.NewVar(v.Name, sortOf(g.fn.LocalType(id)))
				}
			}
			continue
		}
		if id, ok := g.fn.LocalByName(v.Name); ok {
			m[v.Name] = g.read(f, id)
		}
	}
	return formula.Substitute(out, m), nil
}

// read returns the current value of a local. A local never assigned on
// this path becomes an uninterpreted symbol named after it.
func (g *Generator) read(f *frame, id mir.LocalID) formula.Formula {
	if v, ok := f.state[id]; ok {
		return v
	}
	v := formula.NewVar(g.fn.LocalName(id), sortOf(g.fn.LocalType(id)))
	f.state[id] = v
	return v
}

func (g *Generator) freshVar(prefix string, sort formula.Sort) *formula.Var {
	v := formula.NewVar(fmt.Sprintf("%s_%d", prefix, g.fresh), sort)
	g.fresh++
	return v
}

func sortOf(t mir.Type) formula.Sort {
	switch t {
	case mir.TypeFloat:
		return formula.SortReal
	case mir.TypeBool:
		return formula.SortBool
	case mir.TypeArray:
		return formula.SortArray
	default:
		return formula.SortInt
	}
}

func locOr(loc, fallback diagnostic.Location) diagnostic.Location {
	if loc.IsZero() {
		return fallback
	}
	return loc
}

// sanitize keeps VC and symbol names to identifier characters.
func sanitize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
