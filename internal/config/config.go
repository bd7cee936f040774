// Package config loads .contractcheck.yaml.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/lhaig/contractcheck/internal/solver"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = ".contractcheck.yaml"

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

type Config struct {
	Solver struct {
		Backend string        `yaml:"backend"`
		Path    string        `yaml:"path"`
		Args    []string      `yaml:"args"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"solver"`
	Workers int `yaml:"workers"`
	Cache   struct {
		Backend   string        `yaml:"backend"`
		RedisAddr string        `yaml:"redis_addr"`
		RedisDB   int           `yaml:"redis_db"`
		TTL       time.Duration `yaml:"ttl"`
	} `yaml:"cache"`
	ProofCertificates bool   `yaml:"proof_certificates"`
	LogLevel          string `yaml:"log_level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	cfg.Solver.Backend = solver.BackendLinear
	cfg.Solver.Path = "z3"
	cfg.Solver.Timeout = 5 * time.Second
	cfg.Workers = runtime.NumCPU()
	cfg.Cache.Backend = CacheMemory
	cfg.Cache.RedisAddr = "localhost:6379"
	cfg.Cache.TTL = time.Hour
	cfg.LogLevel = "info"
	return &cfg
}

// Load reads path over the defaults. A missing file is not an error when
// path is DefaultFile. Environment variables override the file:
// CONTRACTCHECK_SOLVER_PATH and CONTRACTCHECK_REDIS_ADDR.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && path == DefaultFile:
	case err != nil:
		return nil, fmt.Errorf("config: %w", err)
	default:
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if p := os.Getenv("CONTRACTCHECK_SOLVER_PATH"); p != "" {
		cfg.Solver.Path = p
	}
	if addr := os.Getenv("CONTRACTCHECK_REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads a configuration document over the defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(r); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	known := false
	for _, b := range solver.Backends() {
		if b == c.Solver.Backend {
			known = true
		}
	}
	if !known {
		errs = append(errs, fmt.Errorf("solver.backend: unknown backend %q", c.Solver.Backend))
	}
	if c.Solver.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("solver.timeout: must be positive, got %s", c.Solver.Timeout))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers: must be positive, got %d", c.Workers))
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr: required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown cache %q", c.Cache.Backend))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl: must not be negative, got %s", c.Cache.TTL))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

// SolverConfig is the registry configuration for the chosen backend.
func (c *Config) SolverConfig(logger *zap.Logger) solver.Config {
	return solver.Config{
		Backend: c.Solver.Backend,
		Path:    c.Solver.Path,
		Args:    c.Solver.Args,
		Logger:  logger,
	}
}

// Logger builds a production logger at the configured level, or a
// development logger when verbose is set.
func (c *Config) Logger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}
