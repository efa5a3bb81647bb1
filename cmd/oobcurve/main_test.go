package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/oobcurve/pkg/errors"
	"github.com/YuminosukeSato/oobcurve/pkg/log"
)

const dump = `{
  "task": "regression",
  "inbag": [[0, 1, 0], [1, 0, 0]],
  "predictions": [[10, 30, 50], [20, 40, 60]],
  "truth": [10, 40, 55]
}`

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Cleanup(func() {
		log.SetLogger(log.Nop())
	})
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func writeDump(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dump.json")
	require.NoError(t, os.WriteFile(path, []byte(dump), 0o644))
	return path
}

func TestRunUsage(t *testing.T) {
	_, stderr, err := runCLI(t)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr, "usage: oobcurve")

	_, _, err = runCLI(t, "plot")
	assert.ErrorContains(t, err, `unknown command "plot"`)

	stdout, _, err := runCLI(t, "help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "commands:")
}

func TestRunMeasures(t *testing.T) {
	stdout, _, err := runCLI(t, "measures", "-task", "regression")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, stdout, "rsq")
	assert.NotContains(t, stdout, "mmce")

	_, _, err = runCLI(t, "measures", "-task", "survival")
	assert.Error(t, err)
}

func TestRunCurve(t *testing.T) {
	path := writeDump(t)

	stdout, _, err := runCLI(t, "curve", "-input", path, "-measures", "mse,mae", "-log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "trees,mse,mae\n1,NA,NA\n2,0,0\n", stdout)

	stdout, _, err = runCLI(t, "curve", "-input", path, "-final", "-log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "mse\t0\n", stdout)

	out := filepath.Join(t.TempDir(), "curve.json")
	_, _, err = runCLI(t, "curve", "-input", path, "-output", out, "-log-level", "error")
	require.NoError(t, err)
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"measures"`)
}

func TestRunCurveErrors(t *testing.T) {
	_, _, err := runCLI(t, "curve", "-log-level", "error")
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, _, err = runCLI(t, "curve", "-input", writeDump(t), "-measures", "auc", "-log-level", "error")
	var merr *errors.MeasureEvaluationError
	assert.True(t, errors.As(err, &merr))

	_, _, err = runCLI(t, "curve", "-log-level", "loud")
	assert.True(t, errors.As(err, &verr))
}

func TestRunSweepRequiresData(t *testing.T) {
	_, _, err := runCLI(t, "sweep", "-hyperparameter", "mtry", "-trainer", "true", "-log-level", "error")
	var verr *errors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "data", verr.ParamName)
}

func TestRunConfig(t *testing.T) {
	stdout, _, err := runCLI(t, "config", "-measures", "mse,rsq")
	require.NoError(t, err)
	assert.Contains(t, stdout, "log_level: info")
	assert.Contains(t, stdout, "- rsq")
	assert.Contains(t, stdout, "num_trees: 500")
}

func TestParseFloats(t *testing.T) {
	got, err := parseFloats("1, 2.5,,3")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, 3}, got)

	_, err = parseFloats("1,x")
	assert.Error(t, err)
}
