package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corefin/payrun/internal/payroll"
)

const testRulesetV1 = `{
	"version": "v1",
	"currency": "NOK",
	"policy": {
		"rounding": "integer",
		"employer_tax_rate": 0.141,
		"withholding_rate": 0.25
	}
}`

// env pins the per-test database, ruleset directory, and signing keys.
type env struct {
	db       string
	rulesets string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	rulesets := filepath.Join(dir, "rulesets")
	require.NoError(t, os.Mkdir(rulesets, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rulesets, "v1.json"), []byte(testRulesetV1), 0o644))
	return &env{db: filepath.Join(dir, "payrun.db"), rulesets: rulesets}
}

// execute runs the CLI once and returns stdout.
func (e *env) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--db", e.db, "--rulesets", e.rulesets, "--format", "json"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *env) mustExecute(t *testing.T, args ...string) map[string]any {
	t.Helper()
	out, err := e.execute(t, args...)
	require.NoError(t, err, "output: %s", out)

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestRootRejectsInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "list"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLifecycleThroughCLI(t *testing.T) {
	e := newEnv(t)

	created := e.mustExecute(t, "create",
		"--period-start", "2026-01-01", "--period-end", "2026-01-31",
		"--pay-date", "2026-02-05")
	runID, _ := created["id"].(string)
	require.NotEmpty(t, runID)
	assert.Equal(t, "draft", created["status"])

	added := e.mustExecute(t, "add-inputs", runID,
		"--items", `[{"employee":"e1","line_type":"salary","amount":1000}]`)
	assert.Equal(t, "draft", added["status"])

	calculated := e.mustExecute(t, "calculate", runID)
	assert.Equal(t, "calculated", calculated["status"])
	totals := calculated["totals"].(map[string]any)
	assert.Equal(t, 1000.0, totals["gross_total"])
	assert.Equal(t, 250.0, totals["withholding_total"])
	assert.Equal(t, 141.0, totals["employer_tax_total"])
	assert.Equal(t, 750.0, totals["net_payable"])

	e.mustExecute(t, "approve", runID)
	committed := e.mustExecute(t, "commit", runID)
	assert.Equal(t, "committed", committed["status"])
	assert.NotEmpty(t, committed["checksum"])

	// Five ledger entries, created through committed.
	out, err := e.execute(t, "versions", runID)
	require.NoError(t, err)
	var versionsResp struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &versionsResp))
	require.Len(t, versionsResp.Data, 5)
	assert.Equal(t, payroll.ReasonCreated, versionsResp.Data[0]["reason"])
	assert.Equal(t, payroll.ReasonCommitted, versionsResp.Data[4]["reason"])
}

func TestInvalidTransitionExitsNonZero(t *testing.T) {
	e := newEnv(t)
	created := e.mustExecute(t, "create",
		"--period-start", "2026-01-01", "--period-end", "2026-01-31",
		"--pay-date", "2026-02-05")
	runID := created["id"].(string)

	out, err := e.execute(t, "approve", runID)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, string(payroll.CodeInvalidOperation))
}

func TestVerifyUnsignedExitsNonZero(t *testing.T) {
	e := newEnv(t)
	created := e.mustExecute(t, "create",
		"--period-start", "2026-01-01", "--period-end", "2026-01-31",
		"--pay-date", "2026-02-05")
	runID := created["id"].(string)

	_, err := e.execute(t, "verify", runID)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestValidateRulesetCommand(t *testing.T) {
	e := newEnv(t)

	data := e.mustExecute(t, "validate-ruleset", "v1")
	assert.Equal(t, "v1", data["version"])
	assert.Equal(t, "integer", data["rounding"])
	assert.Equal(t, true, data["legacy_employer_tax_rate"])

	_, err := e.execute(t, "validate-ruleset", "v9")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestForkThroughCLI(t *testing.T) {
	e := newEnv(t)
	created := e.mustExecute(t, "create",
		"--period-start", "2026-01-01", "--period-end", "2026-01-31",
		"--pay-date", "2026-02-05")
	runID := created["id"].(string)

	forked := e.mustExecute(t, "fork", runID)
	assert.Equal(t, runID, forked["parent_run_id"])
	assert.Equal(t, "draft", forked["status"])
	assert.NotEqual(t, runID, forked["id"])
}
