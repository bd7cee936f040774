package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestVerifyGoodBundle(t *testing.T) {
	out, _, err := run(t, "verify", "--no-progress", "testdata/good.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Contract Verification Report")
	assert.Contains(t, out, "Function: abs")
	assert.Contains(t, out, "Function: divide")
	assert.Contains(t, out, "2 of 2 functions verified")
}

func TestVerifyBadBundleExitsUnverified(t *testing.T) {
	out, errOut, err := run(t, "verify", "--no-progress", "testdata/good.yaml", "testdata/bad.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errUnverified))
	assert.Contains(t, out, "REFUTED")
	assert.Contains(t, out, "counterexample for postcondition_big_0: x = 1")
	assert.Contains(t, out, "2 of 3 functions verified")
	assert.Contains(t, errOut, "identity: postcondition_big_0 does not hold")
	assert.Contains(t, errOut, "1 error, 0 warnings")
}

func TestVerifyJSON(t *testing.T) {
	out, _, err := run(t, "verify", "--json", "testdata/good.yaml")
	require.NoError(t, err)

	var results []struct {
		Function   string `json:"function"`
		Verified   bool   `json:"verified"`
		Conditions []struct {
			Status string `json:"status"`
		} `json:"conditions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "abs", results[0].Function)
	assert.True(t, results[0].Verified)
	require.NotEmpty(t, results[0].Conditions)
	assert.Equal(t, "proved", results[0].Conditions[0].Status)
}

func TestObligations(t *testing.T) {
	out, _, err := run(t, "obligations", "testdata/good.yaml")
	// abs has no precondition, so its postcondition alone is not valid
	assert.True(t, errors.Is(err, errUnverified))
	assert.Contains(t, out, "Function: divide")
	assert.Regexp(t, `divide_pre_0\s+SATISFIABLE`, out)
	assert.Regexp(t, `abs_post_0\s+REFUTED`, out)

	out, _, err = run(t, "obligations", "testdata/bad.yaml")
	assert.True(t, errors.Is(err, errUnverified))
	assert.Regexp(t, `identity_pre_0\s+SATISFIABLE`, out)
	assert.Regexp(t, `identity_post_0\s+REFUTED`, out)
}

func TestSMT(t *testing.T) {
	out, _, err := run(t, "smt", "testdata/good.yaml", "--function", "divide")
	require.NoError(t, err)
	assert.Contains(t, out, "(declare-const b Int)")
	assert.Contains(t, out, "(check-sat)")

	_, _, err = run(t, "smt", "testdata/good.yaml", "--function", "missing")
	assert.Error(t, err)

	_, _, err = run(t, "smt", "testdata/good.yaml")
	assert.Error(t, err)
}

func TestFlagErrors(t *testing.T) {
	_, _, err := run(t, "verify", "--backend", "cvc9", "testdata/good.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")

	_, _, err = run(t, "verify", "--workers=-2", "testdata/good.yaml")
	assert.Error(t, err)

	_, _, err = run(t, "verify", "testdata/missing.yaml")
	assert.Error(t, err)

	_, _, err = run(t, "verify")
	assert.Error(t, err)
}
