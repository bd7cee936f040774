// Package verify discharges the verification conditions of lowered
// functions against a solver and collects per-condition results.
package verify

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lhaig/contractcheck/internal/cache"
	"github.com/lhaig/contractcheck/internal/contract"
	"github.com/lhaig/contractcheck/internal/formula"
	"github.com/lhaig/contractcheck/internal/invariant"
	"github.com/lhaig/contractcheck/internal/mir"
	"github.com/lhaig/contractcheck/internal/solver"
	"github.com/lhaig/contractcheck/internal/translate"
	"github.com/lhaig/contractcheck/internal/vcgen"
)

// DefaultTimeout bounds each solver check.
const DefaultTimeout = 5 * time.Second

// Engine owns the contracts, invariants and result cache of one
// verification session. Registration and verification may run
// concurrently.
type Engine struct {
	logger       *zap.Logger
	factory      solver.Factory
	workers      int
	timeout      time.Duration
	cache        cache.Cache[*VerificationResult]
	certificates bool
	progress     func(*VerificationResult)

	mu        sync.RWMutex
	contracts map[string]*contract.FunctionContract
	loops     map[string][]*invariant.Loop
	globals   []*invariant.Global
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSolverFactory sets where solvers come from; each function
// verification gets its own.
func WithSolverFactory(f solver.Factory) Option {
	return func(e *Engine) {
		if f != nil {
			e.factory = f
		}
	}
}

// WithWorkers bounds VerifyProgram concurrency.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithTimeout sets the per-condition solver timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCache replaces the result cache; nil disables caching.
func WithCache(c cache.Cache[*VerificationResult]) Option {
	return func(e *Engine) { e.cache = c }
}

// WithCertificates records a certificate for every proved condition.
func WithCertificates(on bool) Option {
	return func(e *Engine) { e.certificates = on }
}

// WithProgress is called once per function finished by VerifyProgram.
// It may be called from several goroutines.
func WithProgress(fn func(*VerificationResult)) Option {
	return func(e *Engine) { e.progress = fn }
}

// New creates an Engine backed by the linear solver unless configured
// otherwise.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:    zap.NewNop(),
		factory:   solver.NewFactory(solver.Config{Backend: solver.BackendLinear}),
		workers:   runtime.NumCPU(),
		timeout:   DefaultTimeout,
		cache:     cache.NewMemory[*VerificationResult](0),
		contracts: make(map[string]*contract.FunctionContract),
		loops:     make(map[string][]*invariant.Loop),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddFunctionContract registers c under its function name, replacing any
// earlier contract.
func (e *Engine) AddFunctionContract(c *contract.FunctionContract) error {
	if c == nil || c.Name == "" {
		return errors.New("contract without function name")
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("contract for %s: %w", c.Name, err)
	}
	e.mu.Lock()
	e.contracts[c.Name] = c
	e.mu.Unlock()
	return nil
}

// Contract returns the registered contract for fn.
func (e *Engine) Contract(fn string) (*contract.FunctionContract, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.contracts[fn]
	return c, ok
}

// AddLoopInvariant attaches a loop annotation to function fn.
func (e *Engine) AddLoopInvariant(fn string, l *invariant.Loop) {
	e.mu.Lock()
	e.loops[fn] = append(e.loops[fn], l)
	e.mu.Unlock()
}

// AddGlobalInvariant registers an invariant assumed by every function in
// its scope.
func (e *Engine) AddGlobalInvariant(g *invariant.Global) {
	e.mu.Lock()
	e.globals = append(e.globals, g)
	e.mu.Unlock()
}

// InvalidateCache drops the cached result for fn.
func (e *Engine) InvalidateCache(ctx context.Context, fn string) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Delete(ctx, fn)
}

// ClearCache drops every cached result.
func (e *Engine) ClearCache(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Clear(ctx)
}

func (e *Engine) loopsFor(fn string) []*invariant.Loop {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*invariant.Loop(nil), e.loops[fn]...)
}

// background translates the global invariants in force in fn.
func (e *Engine) background(fn string, c *contract.FunctionContract) ([]formula.Formula, error) {
	e.mu.RLock()
	globals := append([]*invariant.Global(nil), e.globals...)
	e.mu.RUnlock()

	tr := translate.ForContract(c)
	var out []formula.Formula
	for _, g := range globals {
		if !g.AppliesTo(fn) {
			continue
		}
		f, err := tr.Translate(g.Assumption())
		if err != nil {
			return nil, fmt.Errorf("global invariant %q: %w", g.Name, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// VerifyFunction generates and discharges the conditions of fn under c,
// or under the registered contract when c is nil. The returned result is
// never nil. A generation failure sets result.Err and is also returned;
// solver failures mark their conditions as errors and are returned
// joined.
func (e *Engine) VerifyFunction(ctx context.Context, fn *mir.Function, c *contract.FunctionContract) (*VerificationResult, error) {
	if fn == nil {
		err := mir.Check(fn)
		return &VerificationResult{RunID: uuid.NewString(), Err: err}, err
	}
	if c == nil {
		c, _ = e.Contract(fn.Name)
	}
	if e.cache != nil {
		cached, ok, err := e.cache.Get(ctx, fn.Name)
		if err != nil {
			e.logger.Warn("result cache read failed", zap.String("function", fn.Name), zap.Error(err))
		} else if ok && cached != nil {
			e.logger.Debug("cached result", zap.String("function", fn.Name))
			return cached, nil
		}
	}

	start := time.Now()
	res := &VerificationResult{
		RunID:    uuid.NewString(),
		Function: fn.Name,
		Location: fn.Location,
	}
	finish := func(err error) (*VerificationResult, error) {
		res.Err = err
		res.Verified = err == nil
		for _, cr := range res.Conditions {
			res.Verified = res.Verified && cr.Verified
		}
		res.Duration = time.Since(start)
		e.logger.Info("function verified",
			zap.String("function", fn.Name),
			zap.Bool("verified", res.Verified),
			zap.Int("conditions", len(res.Conditions)),
			zap.Duration("duration", res.Duration),
			zap.NamedError("error", err))
		return res, err
	}

	gen := vcgen.New(vcgen.WithLogger(e.logger), vcgen.WithLoops(e.loopsFor(fn.Name)...))
	vcs, err := gen.GenerateFunctionVCs(fn, c)
	if err != nil {
		return finish(err)
	}
	facts, err := e.background(fn.Name, c)
	if err != nil {
		return finish(err)
	}

	s, err := e.factory()
	if err != nil {
		return finish(fmt.Errorf("function %s: %w", fn.Name, err))
	}
	defer s.Close()

	if err := s.Push(); err != nil {
		return finish(err)
	}
	for _, f := range facts {
		if err := s.Assert(f); err != nil {
			return finish(err)
		}
	}

	var errs []error
	for _, vc := range vcs {
		cr, cex, cert, err := e.discharge(ctx, s, vc, facts)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", vc.Name, err))
		}
		res.Conditions = append(res.Conditions, cr)
		if cex != nil {
			res.Counterexamples = append(res.Counterexamples, *cex)
		}
		if cert != nil {
			res.Proofs = append(res.Proofs, *cert)
		}
	}
	if err := s.Pop(); err != nil {
		errs = append(errs, err)
	}

	out, err := finish(errors.Join(errs...))
	if e.cache != nil && err == nil && cacheable(out) {
		if cerr := e.cache.Set(ctx, fn.Name, out); cerr != nil {
			e.logger.Warn("result cache write failed", zap.String("function", fn.Name), zap.Error(cerr))
		}
	}
	return out, err
}

// cacheable excludes results a later run could decide differently.
func cacheable(r *VerificationResult) bool {
	for _, c := range r.Conditions {
		if c.Status == StatusError || c.Status == StatusTimeout {
			return false
		}
	}
	return true
}

// discharge checks one VC in its own solver scope.
func (e *Engine) discharge(ctx context.Context, s solver.Solver, vc vcgen.VC, facts []formula.Formula) (ConditionResult, *Counterexample, *ProofCertificate, error) {
	start := time.Now()
	cr := ConditionResult{
		Name:     vc.Name,
		Kind:     vc.Kind.String(),
		Formula:  vc.Formula.String(),
		Location: vc.Location,
	}
	fail := func(err error) (ConditionResult, *Counterexample, *ProofCertificate, error) {
		cr.Status = StatusError
		cr.Message = err.Error()
		cr.Duration = time.Since(start)
		e.logger.Warn("condition errored", zap.String("condition", vc.Name), zap.Error(err))
		return cr, nil, nil, err
	}

	goal := vc.Formula
	if vc.Mode == vcgen.Validity {
		goal = formula.Negate(vc.Formula)
	}
	if err := s.Push(); err != nil {
		return fail(err)
	}
	if err := s.Assert(goal); err != nil {
		_ = s.Pop()
		return fail(err)
	}
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	status, err := s.CheckSat(cctx)
	cancel()
	if err != nil {
		_ = s.Pop()
		return fail(err)
	}

	var cex *Counterexample
	var cert *ProofCertificate
	switch {
	case vc.Mode == vcgen.Satisfiability && status == solver.Sat:
		cr.Status, cr.Verified = StatusSatisfiable, true
	case vc.Mode == vcgen.Satisfiability && status == solver.Unsat:
		cr.Status = StatusVacuous
		cr.Message = "condition can never hold"
	case status == solver.Unsat:
		cr.Status, cr.Verified = StatusProved, true
		if e.certificates {
			cert = certificate(vc, facts, s)
		}
	case status == solver.Sat:
		cr.Status = StatusRefuted
		m, err := s.Model()
		if err != nil {
			cr.Message = "counterexample exists; model unavailable"
			e.logger.Debug("model unavailable", zap.String("condition", vc.Name), zap.Error(err))
			break
		}
		cex = counterexample(vc, m)
		cr.Message = "counterexample found"
	case status == solver.Timeout:
		cr.Status = StatusTimeout
		cr.Message = fmt.Sprintf("no answer within %s", e.timeout)
	default:
		cr.Status = StatusUnknown
		cr.Message = "solver could not decide"
	}
	if err := s.Pop(); err != nil {
		return fail(err)
	}
	cr.Duration = time.Since(start)

	if cr.Status.Undecided() {
		e.logger.Warn("condition undecided", zap.String("condition", vc.Name), zap.Stringer("status", cr.Status))
	} else {
		e.logger.Debug("condition checked", zap.String("condition", vc.Name), zap.Stringer("status", cr.Status))
	}
	return cr, cex, cert, nil
}

func counterexample(vc vcgen.VC, m solver.Model) *Counterexample {
	cex := &Counterexample{
		Condition:   vc.Name,
		Assignments: make(map[string]solver.Value),
	}
	for _, v := range formula.FreeVars(vc.Formula) {
		if val, ok := m[v.Name]; ok {
			cex.Assignments[v.Name] = val
		}
	}
	for _, b := range vc.Path {
		cex.Trace = append(cex.Trace, b.String())
	}
	return cex
}

func certificate(vc vcgen.VC, facts []formula.Formula, s solver.Solver) *ProofCertificate {
	cert := &ProofCertificate{
		ID:        uuid.NewString(),
		Condition: vc.Name,
		Method:    fmt.Sprintf("refutation (%T)", s),
		Steps: []string{
			"goal: " + vc.Formula.String(),
			"assert negation: " + formula.Negate(vc.Formula).String(),
			"solver: unsat",
		},
	}
	for _, f := range facts {
		cert.Assumptions = append(cert.Assumptions, f.String())
	}
	return cert
}

// VerifyProgram verifies every function concurrently, at most Workers at
// a time, each with its own solver. A failing function never stops the
// others. Results are ordered by function name.
func (e *Engine) VerifyProgram(ctx context.Context, prog *mir.Program) []*VerificationResult {
	if prog == nil {
		return nil
	}
	results := make([]*VerificationResult, len(prog.Functions))
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, fn := range prog.Functions {
		i, fn := i, fn
		g.Go(func() error {
			res, err := e.VerifyFunction(ctx, fn, nil)
			if err != nil {
				e.logger.Warn("function verification failed",
					zap.String("function", res.Function),
					zap.String("kind", Classify(err).String()),
					zap.Error(err))
			}
			results[i] = res
			if e.progress != nil {
				e.progress(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Function < results[j].Function })
	return results
}

// CheckObligations discharges the proof obligations of c: precondition
// obligations as satisfiability checks, postcondition obligations as
// validity checks of pre ==> post.
func (e *Engine) CheckObligations(ctx context.Context, c *contract.FunctionContract) ([]ConditionResult, error) {
	obligations := c.GenerateProofObligations()
	tr := translate.ForContract(c)
	s, err := e.factory()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	out := make([]ConditionResult, 0, len(obligations))
	var errs []error
	for _, ob := range obligations {
		expr := ob.Formula
		mode := vcgen.Validity
		if ob.Kind == contract.Satisfiability {
			mode = vcgen.Satisfiability
			// an outer existential is decided by satisfiability of its body
			if q, ok := expr.(*contract.Quantifier); ok && q.Kind == contract.Exists {
				expr = q.Body
			}
		}
		f, err := tr.Translate(expr)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ob.ID, err))
			out = append(out, ConditionResult{Name: ob.ID, Kind: ob.Kind.String(), Status: StatusError, Message: err.Error()})
			continue
		}
		cr, _, _, err := e.discharge(ctx, s, vcgen.VC{Name: ob.ID, Formula: f, Mode: mode}, nil)
		cr.Kind = ob.Kind.String()
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, cr)
	}
	return out, errors.Join(errs...)
}
