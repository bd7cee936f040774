package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lhaig/contractcheck/internal/bundle"
	"github.com/lhaig/contractcheck/internal/cache"
	"github.com/lhaig/contractcheck/internal/config"
	"github.com/lhaig/contractcheck/internal/mir"
	"github.com/lhaig/contractcheck/internal/solver"
	"github.com/lhaig/contractcheck/internal/verify"
)

// errUnverified makes the process exit 1 without printing an error.
var errUnverified = errors.New("not every function verified")

var (
	okStyle   = color.New(color.FgGreen, color.Bold)
	failStyle = color.New(color.FgRed, color.Bold)
	warnStyle = color.New(color.FgHiYellow, color.Bold)
)

// app holds the global flags shared by every command.
type app struct {
	out    io.Writer
	errOut io.Writer

	cfgFile      string
	backend      string
	timeout      time.Duration
	workers      int
	certificates bool
	verbose      bool
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "contractcheck",
		Short:         "contractcheck - static verification of function contracts",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "Path to the configuration file (default "+config.DefaultFile+")")
	pf.StringVar(&a.backend, "backend", "", fmt.Sprintf("Solver backend %v", solver.Backends()))
	pf.DurationVar(&a.timeout, "timeout", 0, "Per-condition solver timeout")
	pf.IntVar(&a.workers, "workers", 0, "Functions verified in parallel")
	pf.BoolVar(&a.certificates, "certificates", false, "Record proof certificates")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Verbose development logging")

	root.AddCommand(a.verifyCmd())
	root.AddCommand(a.obligationsCmd())
	root.AddCommand(a.smtCmd())
	return root
}

// session is everything a command needs to run.
type session struct {
	cfg     *config.Config
	logger  *zap.Logger
	engine  *verify.Engine
	bundles []*bundle.Bundle
	close   func()
}

// program concatenates the functions of every loaded bundle.
func (s *session) program() *mir.Program {
	prog := &mir.Program{}
	for _, b := range s.bundles {
		prog.Functions = append(prog.Functions, b.Program.Functions...)
	}
	return prog
}

func (s *session) function(name string) (*mir.Function, bool) {
	for _, b := range s.bundles {
		if fn, ok := b.Function(name); ok {
			return fn, true
		}
	}
	return nil, false
}

func (a *app) config(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Solver.Backend = a.backend
	}
	if flags.Changed("timeout") {
		cfg.Solver.Timeout = a.timeout
	}
	if flags.Changed("workers") {
		cfg.Workers = a.workers
	}
	if flags.Changed("certificates") {
		cfg.ProofCertificates = a.certificates
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resultCache builds the configured cache. An unreachable Redis falls back
// to memory.
func resultCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache[*verify.VerificationResult], func()) {
	switch cfg.Cache.Backend {
	case config.CacheNone:
		return nil, func() {}
	case config.CacheRedis:
		rc := cache.NewRedis[*verify.VerificationResult](cfg.Cache.RedisAddr, "", cfg.Cache.RedisDB, cfg.Cache.TTL)
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis cache unavailable, using memory", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
			_ = rc.Close()
			break
		}
		return rc, func() { _ = rc.Close() }
	}
	return cache.NewMemory[*verify.VerificationResult](cfg.Cache.TTL), func() {}
}

// open loads configuration and bundles and builds the engine.
func (a *app) open(cmd *cobra.Command, paths []string, progress func(*verify.VerificationResult)) (*session, error) {
	cfg, err := a.config(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger(a.verbose)
	if err != nil {
		return nil, err
	}

	rc, closeCache := resultCache(cmd.Context(), cfg, logger)
	engine := verify.New(
		verify.WithLogger(logger),
		verify.WithSolverFactory(solver.NewFactory(cfg.SolverConfig(logger))),
		verify.WithWorkers(cfg.Workers),
		verify.WithTimeout(cfg.Solver.Timeout),
		verify.WithCache(rc),
		verify.WithCertificates(cfg.ProofCertificates),
		verify.WithProgress(progress),
	)

	s := &session{cfg: cfg, logger: logger, engine: engine, close: func() {
		closeCache()
		_ = logger.Sync()
	}}
	for _, path := range paths {
		b, err := bundle.LoadFile(path)
		if err != nil {
			s.close()
			return nil, err
		}
		if err := b.Register(engine); err != nil {
			s.close()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		s.bundles = append(s.bundles, b)
		logger.Debug("bundle loaded", zap.String("path", path), zap.Int("functions", len(b.Program.Functions)))
	}
	return s, nil
}

func statusStyle(st verify.Status) *color.Color {
	switch st {
	case verify.StatusProved, verify.StatusSatisfiable:
		return okStyle
	case verify.StatusUnknown, verify.StatusTimeout:
		return warnStyle
	default:
		return failStyle
	}
}
