package solver

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Backend names accepted by New.
const (
	BackendLinear = "linear"
	BackendZ3     = "z3"
	BackendStub   = "stub"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend string
	Path    string   // solver binary for the z3 backend
	Args    []string // overrides DefaultProcessArgs
	Logger  *zap.Logger
}

// Backends lists the known backend names.
func Backends() []string {
	names := []string{BackendLinear, BackendZ3, BackendStub}
	sort.Strings(names)
	return names
}

// New creates a solver for cfg.Backend; an empty name selects linear.
func New(cfg Config) (Solver, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case "", BackendLinear:
		return NewLinear(WithLinearLogger(logger)), nil
	case BackendStub:
		return NewStub(), nil
	case BackendZ3:
		path := cfg.Path
		if path == "" {
			path = "z3"
		}
		opts := []ProcessOption{WithProcessLogger(logger)}
		if len(cfg.Args) > 0 {
			opts = append(opts, WithArgs(cfg.Args...))
		}
		return NewProcess(path, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrSolver, cfg.Backend)
	}
}

// NewFactory returns a Factory producing solvers for cfg.
func NewFactory(cfg Config) Factory {
	return func() (Solver, error) { return New(cfg) }
}
