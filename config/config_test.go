package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/oobcurve/pkg/errors"
	"github.com/YuminosukeSato/oobcurve/pkg/log"
	"github.com/YuminosukeSato/oobcurve/sweep"
)

const sample = `
log_level: debug
measures: [mmce, auc]
workers: 4
parallel_threshold: 200
curve:
  input: dump.json
  output: curve.csv
  plot: curve.png
sweep:
  hyperparameter: mtry
  values: [1, 2, 3]
  keep_curves: true
  workers: 2
  base:
    num_trees: 100
    seed: 42
  trainer:
    command: python
    args: [train.py, "{request}", "{output}"]
    work_dir: /tmp
server:
  addr: ":9090"
`

func TestDecode(t *testing.T) {
	cfg, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, log.LevelDebug, cfg.Level())
	assert.Equal(t, []string{"mmce", "auc"}, cfg.Measures)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "dump.json", cfg.Curve.Input)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Len(t, cfg.CurveOptions(), 2)

	// 指定のない項目は既定値のまま
	assert.Equal(t, 5, cfg.Sweep.Points)
	assert.True(t, cfg.Sweep.Base.Replace)
	assert.Equal(t, 100, cfg.Sweep.Base.NumTrees)
	assert.Equal(t, int64(42), cfg.Sweep.Base.Seed)

	sc, err := cfg.SweepConfig()
	require.NoError(t, err)
	assert.Equal(t, sweep.FeatureSubsetSize, sc.Hyperparameter)
	assert.Equal(t, []float64{1, 2, 3}, sc.Values)
	assert.Equal(t, []string{"mmce", "auc"}, sc.Measures)
	assert.True(t, sc.KeepCurves)
	assert.Equal(t, 2, sc.Workers)

	tr, err := cfg.Trainer()
	require.NoError(t, err)
	assert.Equal(t, "python", tr.Command)
	assert.Equal(t, []string{"train.py", "{request}", "{output}"}, tr.Args)
	assert.Equal(t, "/tmp", tr.WorkDir)
}

func TestDecodeEmpty(t *testing.T) {
	cfg, err := Decode(strings.NewReader("\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Empty(t, cfg.CurveOptions())
	assert.Equal(t, log.LevelInfo, cfg.Level())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		param string
	}{
		{"bad log level", "log_level: loud", "log_level"},
		{"negative workers", "workers: -1", "workers"},
		{"bad format", "curve:\n  format: parquet", "format"},
		{"negative points", "sweep:\n  points: -2", "points"},
		{"empty measure id", "measures: [mse, \"\"]", "measures"},
		{"missing addr", "server:\n  addr: \"\"", "addr"},
		{"zero trees", "sweep:\n  base:\n    num_trees: 0", "num_trees"},
		{"fraction above one", "sweep:\n  base:\n    subsample_fraction: 1.5", "subsample_fraction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			var target *errors.ValidationError
			require.True(t, errors.As(err, &target), "got %v", err)
			assert.Contains(t, target.ParamName, tt.param)
		})
	}

	t.Run("unknown key", func(t *testing.T) {
		_, err := Decode(strings.NewReader("colour: blue"))
		assert.Error(t, err)
	})
}

func TestSweepAndTrainerRequireSettings(t *testing.T) {
	cfg := Default()
	_, err := cfg.SweepConfig()
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = cfg.Trainer()
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, "sweep.trainer.command", verr.ParamName)
}

func TestLoadAndWriteYAML(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg.Measures = []string{"mse", "rsq"}
	cfg.Sweep.Hyperparameter = string(sweep.MinLeafSize)
	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))

	path := filepath.Join(t.TempDir(), "oobcurve.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInputFormat(t *testing.T) {
	cfg := Default()
	cfg.Curve.Input = t.TempDir()
	assert.Equal(t, FormatNPY, cfg.InputFormat())

	cfg.Curve.Input = "dump.json"
	assert.Equal(t, FormatJSON, cfg.InputFormat())

	cfg.Curve.Format = FormatNPY
	assert.Equal(t, FormatNPY, cfg.InputFormat())
}
