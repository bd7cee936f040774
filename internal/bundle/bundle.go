// Package bundle loads verification bundles: YAML files describing lowered
// functions, their contracts, loop invariants and global invariants.
// Contract and instruction text uses CEL syntax.
package bundle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	celast "github.com/google/cel-go/common/ast"
	"gopkg.in/yaml.v3"

	"github.com/lhaig/contractcheck/internal/contract"
	"github.com/lhaig/contractcheck/internal/diagnostic"
	"github.com/lhaig/contractcheck/internal/invariant"
	"github.com/lhaig/contractcheck/internal/mir"
)

// Document is the YAML layout of a bundle.
type Document struct {
	Functions []FunctionDoc `yaml:"functions"`
	Globals   []GlobalDoc   `yaml:"globals"`
}

type FunctionDoc struct {
	Name     string              `yaml:"name"`
	Returns  string              `yaml:"returns"`
	Params   []LocalDoc          `yaml:"params"`
	Locals   []LocalDoc          `yaml:"locals"`
	Entry    string              `yaml:"entry"`
	Blocks   map[string]BlockDoc `yaml:"blocks"`
	Contract *ContractDoc        `yaml:"contract"`
	Loops    []LoopDoc           `yaml:"loops"`
	Line     int                 `yaml:"-"`
}

func (f *FunctionDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain FunctionDoc
	if err := n.Decode((*plain)(f)); err != nil {
		return err
	}
	f.Line = n.Line
	return nil
}

type LocalDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// BlockDoc holds statements such as "c = x < n" and a terminator such as
// "branch(c, bb1, bb2)".
type BlockDoc struct {
	Statements []string `yaml:"statements"`
	Terminator string   `yaml:"terminator"`
}

type ContractDoc struct {
	Requires   []ConditionDoc `yaml:"requires"`
	Ensures    []ConditionDoc `yaml:"ensures"`
	Invariants []ConditionDoc `yaml:"invariants"`
	Decreases  string         `yaml:"decreases"`
	Modifies   []string       `yaml:"modifies"`
	Pure       bool           `yaml:"pure"`
}

// ConditionDoc is a named clause. A plain string is accepted as an
// unnamed clause.
type ConditionDoc struct {
	Name      string `yaml:"name"`
	Expr      string `yaml:"expr"`
	Hint      string `yaml:"hint"`
	Message   string `yaml:"message"`
	ProofHint string `yaml:"proof_hint"`
	Line      int    `yaml:"-"`
}

func (c *ConditionDoc) UnmarshalYAML(n *yaml.Node) error {
	c.Line = n.Line
	if n.Kind == yaml.ScalarNode {
		c.Expr = n.Value
		return nil
	}
	type plain ConditionDoc
	if err := n.Decode((*plain)(c)); err != nil {
		return err
	}
	c.Line = n.Line
	return nil
}

type LoopDoc struct {
	Header     string         `yaml:"header"`
	Invariants []ConditionDoc `yaml:"invariants"`
	Decreases  string         `yaml:"decreases"`
	LowerBound string         `yaml:"lower_bound"`
}

type GlobalDoc struct {
	Name   string `yaml:"name"`
	Expr   string `yaml:"expr"`
	Scope  string `yaml:"scope"` // always, function, module, conditional
	Target string `yaml:"target"`
	Guard  string `yaml:"guard"`
}

// Bundle is a loaded document.
type Bundle struct {
	Source    string
	Program   *mir.Program
	Contracts []*contract.FunctionContract
	Loops     map[string][]*invariant.Loop
	Globals   []*invariant.Global
}

// Registry receives the annotations of a bundle.
type Registry interface {
	AddFunctionContract(c *contract.FunctionContract) error
	AddLoopInvariant(fn string, l *invariant.Loop)
	AddGlobalInvariant(g *invariant.Global)
}

// Register hands every contract and invariant to r.
func (b *Bundle) Register(r Registry) error {
	var errs []error
	for _, c := range b.Contracts {
		if err := r.AddFunctionContract(c); err != nil {
			errs = append(errs, err)
		}
	}
	for _, fn := range sortedKeys(b.Loops) {
		for _, l := range b.Loops[fn] {
			r.AddLoopInvariant(fn, l)
		}
	}
	for _, g := range b.Globals {
		r.AddGlobalInvariant(g)
	}
	return errors.Join(errs...)
}

// Function finds a function by name.
func (b *Bundle) Function(name string) (*mir.Function, bool) {
	for _, fn := range b.Program.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// Contract finds the contract of a function.
func (b *Bundle) Contract(name string) (*contract.FunctionContract, bool) {
	for _, c := range b.Contracts {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// LoadFile reads a bundle from path.
func LoadFile(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	defer f.Close()
	return Load(f, path)
}

// Load decodes and builds a bundle; source names it in locations.
func Load(r io.Reader, source string) (*Bundle, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("bundle %s: %w", source, err)
	}
	p, err := NewParser()
	if err != nil {
		return nil, err
	}
	b, err := p.Build(&doc, source)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", source, err)
	}
	return b, nil
}

// Build turns a decoded document into MIR and annotations. Every function
// body is checked for well-formedness.
func (p *Parser) Build(doc *Document, source string) (*Bundle, error) {
	b := &Bundle{
		Source:  source,
		Program: &mir.Program{},
		Loops:   make(map[string][]*invariant.Loop),
	}
	seen := make(map[string]bool)
	for i := range doc.Functions {
		fd := &doc.Functions[i]
		if fd.Name == "" {
			return nil, fmt.Errorf("function %d: name is required", i)
		}
		if seen[fd.Name] {
			return nil, fmt.Errorf("function %s: defined twice", fd.Name)
		}
		seen[fd.Name] = true

		loc := diagnostic.Location{File: source, Line: fd.Line}
		fn, err := p.function(fd, loc)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", fd.Name, err)
		}
		b.Program.Functions = append(b.Program.Functions, fn)

		if fd.Contract != nil {
			c, err := p.functionContract(fd, source)
			if err != nil {
				return nil, fmt.Errorf("function %s: %w", fd.Name, err)
			}
			b.Contracts = append(b.Contracts, c)
		}
		for _, ld := range fd.Loops {
			l, err := p.loop(ld, source)
			if err != nil {
				return nil, fmt.Errorf("function %s: %w", fd.Name, err)
			}
			b.Loops[fd.Name] = append(b.Loops[fd.Name], l)
		}
	}
	for _, gd := range doc.Globals {
		g, err := p.global(gd, source)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", gd.Name, err)
		}
		b.Globals = append(b.Globals, g)
	}
	return b, nil
}

func mirType(name string) (mir.Type, error) {
	switch name {
	case "int", "i32", "i64", "integer", "":
		return mir.TypeInt, nil
	case "float", "f32", "f64", "real":
		return mir.TypeFloat, nil
	case "bool", "boolean":
		return mir.TypeBool, nil
	case "char":
		return mir.TypeChar, nil
	case "string", "str":
		return mir.TypeString, nil
	case "unit", "void":
		return mir.TypeUnit, nil
	case "[]int", "array":
		return mir.TypeArray, nil
	case "ref":
		return mir.TypeRef, nil
	}
	return mir.TypeInt, syntaxf("unknown type %q", name)
}

func blockID(text string) (mir.BlockID, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(text), "bb"))
	if err != nil || !strings.HasPrefix(strings.TrimSpace(text), "bb") || n < 0 {
		return 0, syntaxf("%q is not a block name", text)
	}
	return mir.BlockID(n), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *Parser) function(fd *FunctionDoc, loc diagnostic.Location) (*mir.Function, error) {
	ret := mir.TypeUnit
	if fd.Returns != "" {
		t, err := mirType(fd.Returns)
		if err != nil {
			return nil, err
		}
		ret = t
	}
	bld := mir.NewFunction(fd.Name, ret)
	for _, pd := range fd.Params {
		t, err := mirType(pd.Type)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", pd.Name, err)
		}
		bld.Param(pd.Name, t)
	}
	for _, ld := range fd.Locals {
		t, err := mirType(ld.Type)
		if err != nil {
			return nil, fmt.Errorf("local %s: %w", ld.Name, err)
		}
		bld.Local(ld.Name, t)
	}
	fn := bld.Build()
	fn.Location = loc

	sc := &scope{fn: fn}
	for _, name := range sortedKeys(fd.Blocks) {
		id, err := blockID(name)
		if err != nil {
			return nil, err
		}
		bd := fd.Blocks[name]
		bb := &mir.BasicBlock{ID: id, Location: loc}
		for _, text := range bd.Statements {
			st, err := p.statement(sc, text)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", id, err)
			}
			bb.Statements = append(bb.Statements, st)
		}
		term, err := p.terminator(sc, bd.Terminator)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		bb.Terminator = term
		fn.Blocks[id] = bb
	}
	if fd.Entry != "" {
		id, err := blockID(fd.Entry)
		if err != nil {
			return nil, err
		}
		fn.Entry = id
	}
	if err := mir.Check(fn); err != nil {
		return nil, err
	}
	return fn, nil
}

// assignIndex finds the '=' of an assignment, skipping comparison
// operators.
func assignIndex(text string) int {
	for i := 0; i < len(text); i++ {
		if text[i] != '=' {
			continue
		}
		if i+1 < len(text) && text[i+1] == '=' {
			i++
			continue
		}
		if i > 0 && strings.ContainsRune("=!<>", rune(text[i-1])) {
			continue
		}
		return i
	}
	return -1
}

func (p *Parser) statement(sc *scope, text string) (mir.Stmt, error) {
	text = strings.TrimSpace(text)
	if text == "nop" {
		return &mir.Nop{}, nil
	}
	eq := assignIndex(text)
	if eq < 0 {
		e, err := p.parse(text)
		if err != nil {
			return nil, err
		}
		if e.Kind() == celast.CallKind && len(e.AsCall().Args()) == 1 {
			call := e.AsCall()
			pl, err := sc.place(call.Args()[0])
			if err != nil {
				return nil, err
			}
			switch call.FunctionName() {
			case "storage_live":
				return &mir.StorageLive{Local: pl.Local}, nil
			case "storage_dead":
				return &mir.StorageDead{Local: pl.Local}, nil
			}
		}
		return nil, syntaxf("%q is not a statement", text)
	}

	lhs, err := p.parse(strings.TrimSpace(text[:eq]))
	if err != nil {
		return nil, err
	}
	dst, err := sc.place(lhs)
	if err != nil {
		return nil, err
	}
	rhs, err := p.parse(strings.TrimSpace(text[eq+1:]))
	if err != nil {
		return nil, err
	}
	rv, err := sc.rvalue(rhs, sc.fn.LocalType(dst.Local))
	if err != nil {
		return nil, fmt.Errorf("%q: %w", text, err)
	}
	return &mir.Assign{Place: dst, Value: rv}, nil
}

func blockArg(e celast.Expr) (mir.BlockID, error) {
	if e.Kind() != celast.IdentKind {
		return 0, syntaxf("expected a block name")
	}
	return blockID(e.AsIdent())
}

func (p *Parser) terminator(sc *scope, text string) (mir.Terminator, error) {
	text = strings.TrimSpace(text)
	switch text {
	case "return":
		return &mir.Return{}, nil
	case "unreachable":
		return &mir.Unreachable{}, nil
	case "":
		return nil, syntaxf("missing terminator")
	}
	e, err := p.parse(text)
	if err != nil {
		return nil, err
	}
	if e.Kind() != celast.CallKind {
		return nil, syntaxf("%q is not a terminator", text)
	}
	call := e.AsCall()
	args := call.Args()
	bad := func() (mir.Terminator, error) {
		return nil, syntaxf("malformed %s terminator %q", call.FunctionName(), text)
	}

	switch call.FunctionName() {
	case "goto":
		if len(args) != 1 {
			return bad()
		}
		t, err := blockArg(args[0])
		if err != nil {
			return nil, err
		}
		return &mir.Goto{Target: t}, nil

	case "branch":
		if len(args) != 3 {
			return bad()
		}
		cond, err := sc.operand(args[0])
		if err != nil {
			return nil, err
		}
		then, err := blockArg(args[1])
		if err != nil {
			return nil, err
		}
		otherwise, err := blockArg(args[2])
		if err != nil {
			return nil, err
		}
		return &mir.SwitchInt{Discriminant: cond, Values: []int64{1}, Targets: []mir.BlockID{then}, Otherwise: otherwise}, nil

	case "switch":
		if len(args) != 3 || args[1].Kind() != celast.MapKind {
			return bad()
		}
		d, err := sc.operand(args[0])
		if err != nil {
			return nil, err
		}
		sw := &mir.SwitchInt{Discriminant: d}
		for _, entry := range args[1].AsMap().Entries() {
			me := entry.AsMapEntry()
			k, err := sc.operand(me.Key())
			if err != nil {
				return nil, err
			}
			c, ok := k.(*mir.Constant)
			if !ok || c.Kind != mir.ConstInt {
				return nil, syntaxf("switch values must be integers")
			}
			t, err := blockArg(me.Value())
			if err != nil {
				return nil, err
			}
			sw.Values = append(sw.Values, c.Int)
			sw.Targets = append(sw.Targets, t)
		}
		if sw.Otherwise, err = blockArg(args[2]); err != nil {
			return nil, err
		}
		return sw, nil

	case "assert":
		if len(args) != 3 && len(args) != 4 {
			return bad()
		}
		cond, err := sc.operand(args[0])
		if err != nil {
			return nil, err
		}
		exp, err := sc.operand(args[1])
		if err != nil {
			return nil, err
		}
		c, ok := exp.(*mir.Constant)
		if !ok || c.Kind != mir.ConstBool {
			return nil, syntaxf("assert expects true or false")
		}
		t, err := blockArg(args[2])
		if err != nil {
			return nil, err
		}
		a := &mir.Assert{Cond: cond, Expected: c.Bool, Target: t}
		if len(args) == 4 {
			if a.Message, err = stringArg("assert", args[3]); err != nil {
				return nil, err
			}
		}
		return a, nil

	case "call":
		if len(args) != 2 && len(args) != 3 {
			return bad()
		}
		dst, err := sc.place(args[0])
		if err != nil {
			return nil, err
		}
		if args[1].Kind() != celast.CallKind || args[1].AsCall().IsMemberFunction() {
			return bad()
		}
		inner := args[1].AsCall()
		ops, err := sc.operands(inner.Args())
		if err != nil {
			return nil, err
		}
		c := &mir.Call{Func: inner.FunctionName(), Args: ops, Destination: dst}
		if len(args) == 3 {
			if c.Target, err = blockArg(args[2]); err != nil {
				return nil, err
			}
			c.HasTarget = true
		}
		return c, nil

	case "drop":
		if len(args) != 2 {
			return bad()
		}
		pl, err := sc.place(args[0])
		if err != nil {
			return nil, err
		}
		t, err := blockArg(args[1])
		if err != nil {
			return nil, err
		}
		return &mir.Drop{Place: pl, Target: t}, nil
	}
	return nil, syntaxf("unknown terminator %s", call.FunctionName())
}

func hintOf(name string) contract.VerificationHint {
	switch name {
	case "", "smt":
		return contract.VerificationHint{Kind: contract.SMTSolver}
	case "symbolic":
		return contract.VerificationHint{Kind: contract.SymbolicExecution}
	case "abstract":
		return contract.VerificationHint{Kind: contract.AbstractInterpretation}
	case "static":
		return contract.VerificationHint{Kind: contract.StaticCheck}
	case "runtime":
		return contract.VerificationHint{Kind: contract.RuntimeOnly}
	default:
		return contract.VerificationHint{Kind: contract.CustomHint, Name: name}
	}
}

func (p *Parser) condition(cd ConditionDoc, kind string, i int, source string,
	build func(string, contract.Expr, diagnostic.Location) contract.EnhancedCondition) (contract.EnhancedCondition, error) {
	e, err := p.Contract(cd.Expr)
	if err != nil {
		return contract.EnhancedCondition{}, err
	}
	name := cd.Name
	if name == "" {
		name = fmt.Sprintf("%s_%d", kind, i)
	}
	cond := build(name, e, diagnostic.Location{File: source, Line: cd.Line})
	cond.VerificationHint = hintOf(cd.Hint)
	cond.ProofHint = cd.ProofHint
	if cd.Message != "" {
		cond.FailureAction.Message = cd.Message
	}
	return cond, nil
}

func (p *Parser) functionContract(fd *FunctionDoc, source string) (*contract.FunctionContract, error) {
	cd := fd.Contract
	c := contract.New(fd.Name)
	c.Pure = cd.Pure
	for _, m := range cd.Modifies {
		c.AddModifies(m)
	}
	for _, pd := range fd.Params {
		t, _ := contract.ParseType(pd.Type)
		c.Params = append(c.Params, contract.Param{Name: pd.Name, Type: t})
	}

	for i, d := range cd.Requires {
		cond, err := p.condition(d, "requires", i, source, contract.Precondition)
		if err != nil {
			return nil, err
		}
		if err := c.AddPrecondition(cond); err != nil {
			return nil, err
		}
	}
	for i, d := range cd.Ensures {
		cond, err := p.condition(d, "ensures", i, source, contract.Postcondition)
		if err != nil {
			return nil, err
		}
		if err := c.AddPostcondition(cond); err != nil {
			return nil, err
		}
	}
	for i, d := range cd.Invariants {
		cond, err := p.condition(d, "invariant", i, source, contract.Invariant)
		if err != nil {
			return nil, err
		}
		if err := c.AddInvariant(cond); err != nil {
			return nil, err
		}
	}
	if cd.Decreases != "" {
		e, err := p.Contract(cd.Decreases)
		if err != nil {
			return nil, err
		}
		c.Decreases = e
	}
	return c, nil
}

func (p *Parser) loop(ld LoopDoc, source string) (*invariant.Loop, error) {
	header, err := blockID(ld.Header)
	if err != nil {
		return nil, err
	}
	l := invariant.NewLoop(header)
	for i, cd := range ld.Invariants {
		e, err := p.Contract(cd.Expr)
		if err != nil {
			return nil, err
		}
		name := cd.Name
		if name == "" {
			name = fmt.Sprintf("inv_%d", i)
		}
		l.AddCondition(name, e, diagnostic.Location{File: source, Line: cd.Line})
	}
	if ld.Decreases != "" {
		v, err := p.Contract(ld.Decreases)
		if err != nil {
			return nil, err
		}
		var lower contract.Expr
		if ld.LowerBound != "" {
			if lower, err = p.Contract(ld.LowerBound); err != nil {
				return nil, err
			}
		}
		l.SetVariant(v, lower)
	}
	return l, nil
}

func (p *Parser) global(gd GlobalDoc, source string) (*invariant.Global, error) {
	if gd.Name == "" {
		return nil, errors.New("name is required")
	}
	e, err := p.Contract(gd.Expr)
	if err != nil {
		return nil, err
	}
	sc := invariant.Scope{Name: gd.Target}
	switch gd.Scope {
	case "", "always":
		sc.Kind = invariant.Always
	case "function":
		sc.Kind = invariant.InFunction
	case "module":
		sc.Kind = invariant.InModule
	case "conditional":
		sc.Kind = invariant.Conditional
		if sc.Guard, err = p.Contract(gd.Guard); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown scope %q", gd.Scope)
	}
	return invariant.NewGlobal(gd.Name, e, sc, diagnostic.Location{File: source}), nil
}
