package solver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lhaig/contractcheck/internal/formula"
)

// DefaultProcessArgs make z3 read SMT-LIB 2 commands from stdin.
var DefaultProcessArgs = []string{"-in", "-smt2"}

// noTimeout is the largest timeout z3 accepts; it disables the limit.
const noTimeout = 4294967295

// Process drives an external SMT-LIB 2 solver over pipes. The session is
// incremental: push and pop map to the solver's own scopes. When a check
// outlives its context the process is killed and transparently restarted,
// replaying the live scopes, on the next call.
type Process struct {
	path   string
	args   []string
	logger *zap.Logger

	frames     []processScope
	sess       *session
	sat        bool
	timeoutSet bool
	closed     bool
}

type processScope struct {
	decls   []decl
	asserts []formula.Formula
}

type decl struct {
	name string
	sort formula.Sort
}

// ProcessOption configures a Process.
type ProcessOption func(*Process)

// WithProcessLogger sets the logger.
func WithProcessLogger(l *zap.Logger) ProcessOption {
	return func(p *Process) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithArgs replaces the solver arguments.
func WithArgs(args ...string) ProcessOption {
	return func(p *Process) { p.args = args }
}

// NewProcess resolves path (a binary name or file) and starts a session.
func NewProcess(path string, opts ...ProcessOption) (*Process, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found on PATH", ErrSolver, path)
	}
	p := &Process{
		path:   resolved,
		args:   DefaultProcessArgs,
		logger: zap.NewNop(),
		frames: []processScope{{}},
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.ensure(); err != nil {
		return nil, err
	}
	return p, nil
}

// session is one running solver process.
type session struct {
	cmd   *exec.Cmd
	in    io.WriteCloser
	lines chan string
}

func (p *Process) start() (*session, error) {
	cmd := exec.Command(p.path, p.args...)
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolver, err)
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolver, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", ErrSolver, p.path, err)
	}
	p.logger.Debug("solver process started",
		zap.String("command", p.path+" "+strings.Join(p.args, " ")),
		zap.Int("pid", cmd.Process.Pid))

	s := &session{cmd: cmd, in: in, lines: make(chan string, 16)}
	go func() {
		sc := bufio.NewScanner(out)
		sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for sc.Scan() {
			s.lines <- sc.Text()
		}
		close(s.lines)
	}()
	return s, nil
}

func (s *session) kill() {
	_ = s.in.Close()
	_ = s.cmd.Process.Kill()
	go func() {
		for range s.lines {
		}
	}()
	_ = s.cmd.Wait()
}

// ensure starts a session if none is running and replays the live scopes
// into it.
func (p *Process) ensure() error {
	if p.closed {
		return fmt.Errorf("%w: process solver closed", ErrSolver)
	}
	if p.sess != nil {
		return nil
	}
	s, err := p.start()
	if err != nil {
		return err
	}
	p.sess = s
	p.timeoutSet = false
	if err := p.command("(set-option :print-success true)"); err != nil {
		return p.fail(err)
	}
	if err := p.command("(set-option :produce-models true)"); err != nil {
		return p.fail(err)
	}
	for i, fr := range p.frames {
		if i > 0 {
			if err := p.command("(push 1)"); err != nil {
				return p.fail(err)
			}
		}
		for _, d := range fr.decls {
			if err := p.command(formula.Declaration(d.name, d.sort)); err != nil {
				return p.fail(err)
			}
		}
		for _, a := range fr.asserts {
			if err := p.command(p.assertion(a)); err != nil {
				return p.fail(err)
			}
		}
	}
	return nil
}

func (p *Process) fail(err error) error {
	if p.sess != nil {
		p.sess.kill()
		p.sess = nil
	}
	return err
}

func (p *Process) write(cmd string) error {
	if _, err := io.WriteString(p.sess.in, cmd+"\n"); err != nil {
		return fmt.Errorf("%w: write: %v", ErrSolver, err)
	}
	return nil
}

func (p *Process) readLine(ctx context.Context) (string, error) {
	for {
		select {
		case line, ok := <-p.sess.lines:
			if !ok {
				return "", fmt.Errorf("%w: solver process exited", ErrSolver)
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			return strings.TrimSpace(line), nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// readSexp reads one balanced response, possibly spanning lines.
func (p *Process) readSexp(ctx context.Context) (string, error) {
	var sb strings.Builder
	depth := 0
	for {
		line, err := p.readLine(ctx)
		if err != nil {
			return "", err
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(line)
		depth += parenDepth(line)
		if depth <= 0 {
			return sb.String(), nil
		}
	}
}

// command sends a command that answers "success" under print-success.
func (p *Process) command(cmd string) error {
	if err := p.write(cmd); err != nil {
		return err
	}
	resp, err := p.readSexp(context.Background())
	if err != nil {
		return err
	}
	if resp != "success" {
		return fmt.Errorf("%w: %s: %s", ErrSolver, cmd, resp)
	}
	return nil
}

func (p *Process) declared() map[string]formula.Sort {
	env := make(map[string]formula.Sort)
	for _, fr := range p.frames {
		for _, d := range fr.decls {
			env[d.name] = d.sort
		}
	}
	return env
}

func (p *Process) assertion(f formula.Formula) string {
	return "(assert " + formula.SMTLib(f, p.declared()) + ")"
}

func (p *Process) Assert(f formula.Formula) error {
	if err := p.ensure(); err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("%w: nil assertion", ErrSolver)
	}
	env := p.declared()
	inferred := formula.Infer(f)
	top := &p.frames[len(p.frames)-1]
	for _, v := range formula.FreeVars(f) {
		if _, ok := env[v.Name]; ok {
			continue
		}
		sort := v.Sort
		if sort == formula.SortUnknown {
			sort = inferred[v.Name]
		}
		if sort == formula.SortUnknown {
			sort = formula.SortInt
		}
		if err := p.command(formula.Declaration(v.Name, sort)); err != nil {
			return err
		}
		top.decls = append(top.decls, decl{name: v.Name, sort: sort})
		env[v.Name] = sort
	}
	if err := p.command("(assert " + formula.SMTLib(f, env) + ")"); err != nil {
		return err
	}
	top.asserts = append(top.asserts, f)
	return nil
}

func (p *Process) Push() error {
	if err := p.ensure(); err != nil {
		return err
	}
	if err := p.command("(push 1)"); err != nil {
		return err
	}
	p.frames = append(p.frames, processScope{})
	return nil
}

func (p *Process) Pop() error {
	if len(p.frames) == 1 {
		return fmt.Errorf("%w: pop without matching push", ErrSolver)
	}
	if err := p.ensure(); err != nil {
		return err
	}
	if err := p.command("(pop 1)"); err != nil {
		return err
	}
	p.frames = p.frames[:len(p.frames)-1]
	return nil
}

func (p *Process) CheckSat(ctx context.Context) (Status, error) {
	p.sat = false
	if ctx.Err() != nil {
		return Timeout, nil
	}
	if err := p.ensure(); err != nil {
		return Unknown, err
	}

	if dl, ok := ctx.Deadline(); ok {
		ms := time.Until(dl).Milliseconds()
		if ms <= 0 {
			return Timeout, nil
		}
		if err := p.command(fmt.Sprintf("(set-option :timeout %d)", ms)); err != nil {
			return Unknown, err
		}
		p.timeoutSet = true
	} else if p.timeoutSet {
		if err := p.command(fmt.Sprintf("(set-option :timeout %d)", uint64(noTimeout))); err != nil {
			return Unknown, err
		}
		p.timeoutSet = false
	}

	if err := p.write("(check-sat)"); err != nil {
		return Unknown, err
	}
	resp, err := p.readLine(ctx)
	if ctx.Err() != nil {
		p.logger.Debug("solver check interrupted; killing process", zap.Error(ctx.Err()))
		p.fail(nil)
		return Timeout, nil
	}
	if err != nil {
		return Unknown, p.fail(err)
	}

	switch resp {
	case "sat":
		p.sat = true
		return Sat, nil
	case "unsat":
		return Unsat, nil
	case "timeout":
		return Timeout, nil
	case "unknown":
		if err := p.write("(get-info :reason-unknown)"); err != nil {
			return Unknown, err
		}
		reason, err := p.readSexp(ctx)
		if err != nil {
			return Unknown, p.fail(err)
		}
		if strings.Contains(reason, "timeout") || strings.Contains(reason, "canceled") {
			return Timeout, nil
		}
		p.logger.Debug("solver returned unknown", zap.String("reason", reason))
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("%w: unexpected check-sat response %q", ErrSolver, resp)
}

func (p *Process) Model() (Model, error) {
	if !p.sat || p.sess == nil {
		return nil, fmt.Errorf("%w: no model available", ErrSolver)
	}
	var all []formula.Formula
	for _, fr := range p.frames {
		all = append(all, fr.asserts...)
	}
	vars := formula.FreeVars(all...)
	if len(vars) == 0 {
		return Model{}, nil
	}
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = formula.Symbol(v.Name)
	}
	if err := p.write("(get-value (" + strings.Join(names, " ") + "))"); err != nil {
		return nil, err
	}
	resp, err := p.readSexp(context.Background())
	if err != nil {
		return nil, p.fail(err)
	}
	return parseModel(resp)
}

func (p *Process) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.sess != nil {
		_ = p.write("(exit)")
		p.sess.kill()
		p.sess = nil
	}
	return nil
}
