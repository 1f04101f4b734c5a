package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bookingFile = "../../examples/workflows/movie-booking.yaml"
	catalogJSON = `{"catalog":[{"id":"m1","name":"Dune","price":10,"providerId":"amc"},` +
		`{"id":"m2","name":"Heat","price":40,"providerId":"amc"}]}`
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func testConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edenkit.yaml")
	body := "logging:\n  level: error\nsettlement:\n  gardens:\n    amc: garden-1\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "edenkit version")
}

func TestValidateValidWorkflow(t *testing.T) {
	out, err := execute(t, "", "validate", bookingFile)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid (movie-booking 1.2.0, 8 steps, 7 transitions)")
}

func TestValidateInvalidWorkflow(t *testing.T) {
	out, err := execute(t, "", "validate", "../../workflow/testdata/invalid.yaml")
	require.Error(t, err)
	assert.Contains(t, out, "is invalid")
	assert.Contains(t, out, "error:")
}

func TestValidateUnknownAction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.yaml")
	body := `name: odd
version: 1.0.0
initialStep: a
finalSteps: [a]
steps:
  - id: a
    kind: output
    actions:
      - type: teleport
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	out, err := execute(t, "", "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, `"teleport" has no handler`)

	_, err = execute(t, "", "validate", "--schema-only", path)
	require.NoError(t, err)
}

func TestRunWithDecisionFlag(t *testing.T) {
	out, err := execute(t, "",
		"run", bookingFile,
		"--config", testConfig(t),
		"--vars-json", catalogJSON,
		"--var", "payer=alice",
		"--balance", "alice=15.00",
		"--decision", "choose_listing=m1",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "[choose_listing] Pick a showing, alice")
	assert.Contains(t, out, "1) Dune at 10 (m1)")
	assert.Contains(t, out, "[root_ca_charge] authority checkpoint, next: root_ca_settle")
	assert.Contains(t, out, "[confirmed] complete")
	assert.Contains(t, out, "completed after")
	assert.Regexp(t, `alice\s+5\.00`, out)
	assert.Regexp(t, `garden-1\s+0\.30`, out)
	assert.Regexp(t, `amc\s+0\.50`, out)
}

func TestRunReadsDecisionFromStdin(t *testing.T) {
	out, err := execute(t, "2\n",
		"run", bookingFile,
		"--config", testConfig(t),
		"--vars-json", catalogJSON,
		"--var", "payer=bob",
		"--balance", "bob=20",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "[payment_failed] complete")
	assert.Regexp(t, `bob\s+20\.00`, out)
}

func TestRunFailsWithoutDecision(t *testing.T) {
	_, err := execute(t, "",
		"run", bookingFile,
		"--config", testConfig(t),
		"--vars-json", catalogJSON,
		"--var", "payer=carol",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no decision for step "choose_listing"`)
}

func TestRunRejectsMalformedFlags(t *testing.T) {
	cfg := testConfig(t)
	_, err := execute(t, "", "run", bookingFile, "--config", cfg, "--var", "novalue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")

	_, err = execute(t, "", "run", bookingFile, "--config", cfg, "--vars-json", "[1]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--vars-json")

	_, err = execute(t, "", "run", bookingFile, "--config", cfg, "--balance", "alice=lots")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--balance alice")
}

func TestSplitPairs(t *testing.T) {
	pairs, err := splitPairs("--var", []string{"a=1", " b =x=y", "c="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "c": ""}, pairs)

	_, err = splitPairs("--var", []string{"=1"})
	assert.Error(t, err)
}

func TestInitialVarsParsesScalars(t *testing.T) {
	opts := &runOptions{
		varsJSON: `{"payer":"alice","limit":3}`,
		vars:     []string{"limit=5", "vip=true", "note=hello world"},
	}
	vars, err := opts.initialVars()
	require.NoError(t, err)
	assert.Equal(t, "alice", vars["payer"])
	assert.Equal(t, 5, vars["limit"])
	assert.Equal(t, true, vars["vip"])
	assert.Equal(t, "hello world", vars["note"])
}
