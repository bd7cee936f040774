package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "linear", cfg.Solver.Backend)
	assert.Equal(t, "z3", cfg.Solver.Path)
	assert.Equal(t, 5*time.Second, cfg.Solver.Timeout)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.False(t, cfg.ProofCertificates)
	assert.NoError(t, cfg.Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
solver:
  backend: z3
  timeout: 250ms
  args: ["-in", "-smt2", "-t:100"]
workers: 3
cache:
  backend: redis
  redis_addr: cache:6379
  ttl: 10m
proof_certificates: true
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, "z3", cfg.Solver.Backend)
	assert.Equal(t, "z3", cfg.Solver.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Solver.Timeout)
	assert.Equal(t, []string{"-in", "-smt2", "-t:100"}, cfg.Solver.Args)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, "cache:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.ProofCertificates)

	sc := cfg.SolverConfig(nil)
	assert.Equal(t, "z3", sc.Backend)
	assert.Equal(t, cfg.Solver.Args, sc.Args)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown backend", "solver: {backend: cvc9}", "unknown backend"},
		{"zero timeout", "solver: {timeout: 0s}", "solver.timeout"},
		{"negative workers", "workers: -1", "workers"},
		{"unknown cache", "cache: {backend: disk}", "unknown cache"},
		{"redis without addr", "cache: {backend: redis, redis_addr: \"\"}", "redis_addr"},
		{"bad level", "log_level: loud", "log_level"},
		{"unknown field", "solvr: {}", "solvr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\n"), 0o644))
	t.Setenv("CONTRACTCHECK_SOLVER_PATH", "/opt/z3/bin/z3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "/opt/z3/bin/z3", cfg.Solver.Path)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMissingDefaultFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "linear", cfg.Solver.Backend)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	l, err := cfg.Logger(false)
	require.NoError(t, err)
	assert.NotNil(t, l)

	l, err = cfg.Logger(true)
	require.NoError(t, err)
	assert.NotNil(t, l)
}
