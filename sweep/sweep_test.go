package sweep

import (
	"bytes"
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/ensemble"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
	"github.com/YuminosukeSato/oobcurve/pkg/log"
)

func sweepTask() *model.Task {
	return &model.Task{
		ID:       "toy",
		Type:     model.Regression,
		Target:   []float64{1, 2, 3, 4},
		Features: mat.NewDense(4, 6, nil),
	}
}

// offsetEnsemble は全サンプルが全ツリーで OOB で、予測が正解から offset ずれたアンサンブル。
// 最終ステップの MSE は offset² になる
func offsetEnsemble(task *model.Task, numTrees int, offset float64) model.Ensemble {
	inbag := make([][]int, numTrees)
	values := make([][]float64, numTrees)
	for t := range inbag {
		inbag[t] = make([]int, len(task.Target))
		values[t] = make([]float64, len(task.Target))
		for i, y := range task.Target {
			values[t][i] = y + offset
		}
	}
	return ensemble.NewRegression(inbag, values)
}

func baseConfig(values ...float64) Config {
	return Config{
		Hyperparameter: FeatureSubsetSize,
		Values:         values,
		Base:           model.TrainConfig{NumTrees: 3, Replace: true, Seed: 7},
		Measures:       []string{"mse"},
	}
}

func quiet() Option { return WithLogger(log.Nop()) }

func TestParseHyperparameter(t *testing.T) {
	for in, want := range map[string]Hyperparameter{
		"mtry":                FeatureSubsetSize,
		"feature_subset_size": FeatureSubsetSize,
		"sample.fraction":     SubsampleFraction,
		"Subsample_Fraction":  SubsampleFraction,
		"min.node.size":       MinLeafSize,
		"min_leaf_size":       MinLeafSize,
	} {
		got, err := ParseHyperparameter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseHyperparameter("max_depth")
	var target *errors.ValidationError
	assert.True(t, errors.As(err, &target))
}

func TestGrid(t *testing.T) {
	withFeatures := func(n, p int) *model.Task {
		return &model.Task{Type: model.Regression, Target: make([]float64, n), Features: mat.NewDense(n, p, nil)}
	}

	tests := []struct {
		name   string
		h      Hyperparameter
		task   *model.Task
		points int
		want   []float64
	}{
		{"mtry span", FeatureSubsetSize, withFeatures(5, 10), 4, []float64{1, 4, 7, 10}},
		{"mtry rounded and deduplicated", FeatureSubsetSize, withFeatures(5, 3), 5, []float64{1, 2, 3}},
		{"sample fraction", SubsampleFraction, withFeatures(5, 2), 3, []float64{0.1, 0.55, 1}},
		{"min leaf size", MinLeafSize, withFeatures(20, 2), 4, []float64{1, 2, 3, 4}},
		{"min leaf size tiny task", MinLeafSize, withFeatures(3, 2), 3, []float64{1}},
		{"single point", SubsampleFraction, withFeatures(5, 2), 1, []float64{0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Grid(tt.h, tt.task, tt.points)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, got, 1e-12)
		})
	}

	_, err := Grid(SubsampleFraction, withFeatures(5, 2), 0)
	assert.Error(t, err)
	_, err = Grid(FeatureSubsetSize, &model.Task{Type: model.Regression, Target: []float64{1}}, 3)
	assert.Error(t, err)
}

func TestValidateExplicitValues(t *testing.T) {
	task := sweepTask()
	tests := []struct {
		h Hyperparameter
		v float64
	}{
		{FeatureSubsetSize, 0},
		{FeatureSubsetSize, 7},
		{FeatureSubsetSize, 2.5},
		{SubsampleFraction, 0},
		{SubsampleFraction, 1.5},
		{MinLeafSize, 0},
		{MinLeafSize, math.NaN()},
	}
	for _, tt := range tests {
		var target *errors.ValidationError
		assert.True(t, errors.As(tt.h.Validate(tt.v, task), &target), "%s=%v", tt.h, tt.v)
	}
	assert.NoError(t, SubsampleFraction.Validate(0.632, task))
}

func TestRunPreservesGridOrder(t *testing.T) {
	task := sweepTask()
	values := []float64{1, 2, 3, 4, 5, 6}
	var seen sync.Map
	trainer := model.TrainerFunc(func(ctx context.Context, task *model.Task, cfg model.TrainConfig) (model.Ensemble, error) {
		// 先頭の点ほど遅く終わる
		time.Sleep(time.Duration(7-cfg.FeatureSubsetSize) * 5 * time.Millisecond)
		seen.Store(cfg.FeatureSubsetSize, cfg)
		return offsetEnsemble(task, cfg.NumTrees, float64(cfg.FeatureSubsetSize)), nil
	})

	cfg := baseConfig(values...)
	cfg.Workers = 6
	res, err := Run(context.Background(), trainer, task, nil, cfg, quiet())
	require.NoError(t, err)

	require.Len(t, res.Points, len(values))
	assert.Equal(t, []string{"mse"}, res.Measures)
	for i, p := range res.Points {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, values[i], p.Value)
		assert.InDelta(t, values[i]*values[i], p.Values[0], 1e-12)
		assert.Nil(t, p.Curve)
	}

	got, ok := seen.Load(3)
	require.True(t, ok)
	trained := got.(model.TrainConfig)
	assert.Equal(t, 3, trained.FeatureSubsetSize)
	assert.Equal(t, int64(7), trained.Seed)
	assert.True(t, trained.Replace)

	v, ok := res.Measure(2, "mse")
	assert.True(t, ok)
	assert.InDelta(t, 9.0, v, 1e-12)
}

func TestRunKeepsCurves(t *testing.T) {
	task := sweepTask()
	trainer := model.TrainerFunc(func(ctx context.Context, task *model.Task, cfg model.TrainConfig) (model.Ensemble, error) {
		return offsetEnsemble(task, cfg.NumTrees, cfg.SubsampleFraction), nil
	})

	cfg := baseConfig()
	cfg.Hyperparameter = SubsampleFraction
	cfg.Points = 3
	cfg.KeepCurves = true
	cfg.Measures = []string{"mse", "mae"}
	res, err := Run(context.Background(), trainer, task, nil, cfg, quiet())
	require.NoError(t, err)

	require.Len(t, res.Points, 3)
	for _, p := range res.Points {
		require.NotNil(t, p.Curve)
		assert.Equal(t, 3, p.Curve.Len())
		assert.Equal(t, p.Curve.Rows[2], p.Values)
		assert.InDelta(t, p.Value, p.Values[1], 1e-12)
	}
}

func TestRunAbortsOnTrainingError(t *testing.T) {
	task := sweepTask()
	boom := errors.New("out of memory")
	trainer := model.TrainerFunc(func(ctx context.Context, task *model.Task, cfg model.TrainConfig) (model.Ensemble, error) {
		if cfg.FeatureSubsetSize == 3 {
			return nil, boom
		}
		return offsetEnsemble(task, cfg.NumTrees, 0), nil
	})

	for _, workers := range []int{1, 4} {
		cfg := baseConfig(1, 2, 3, 4, 5)
		cfg.Workers = workers
		res, err := Run(context.Background(), trainer, task, nil, cfg, quiet())
		assert.Nil(t, res)

		var target *errors.TrainingError
		require.True(t, errors.As(err, &target), "workers=%d", workers)
		assert.Equal(t, string(FeatureSubsetSize), target.Hyperparameter)
		assert.Equal(t, 3.0, target.Value)
		assert.True(t, errors.Is(err, boom))
	}
}

func TestRunTrainerPanicsAndNilEnsembles(t *testing.T) {
	task := sweepTask()

	panicking := model.TrainerFunc(func(context.Context, *model.Task, model.TrainConfig) (model.Ensemble, error) {
		panic("segfault in native trainer")
	})
	_, err := Run(context.Background(), panicking, task, nil, baseConfig(2), quiet())
	var trainErr *errors.TrainingError
	require.True(t, errors.As(err, &trainErr))
	var panicErr *errors.PanicError
	assert.True(t, errors.As(err, &panicErr))

	empty := model.TrainerFunc(func(context.Context, *model.Task, model.TrainConfig) (model.Ensemble, error) {
		return nil, nil
	})
	_, err = Run(context.Background(), empty, task, nil, baseConfig(2), quiet())
	assert.True(t, errors.As(err, &trainErr))
}

func TestRunCancelsOnlyAtGridBoundaries(t *testing.T) {
	task := sweepTask()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	var ctxErrDuringTraining error
	trainer := model.TrainerFunc(func(trainCtx context.Context, task *model.Task, cfg model.TrainConfig) (model.Ensemble, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		ctxErrDuringTraining = trainCtx.Err()
		return offsetEnsemble(task, cfg.NumTrees, 0), nil
	})

	cfg := baseConfig(1, 2, 3)
	cfg.Workers = 1
	res, err := Run(ctx, trainer, task, nil, cfg, quiet())
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.NoError(t, ctxErrDuringTraining)
}

func TestRunKeepsResultWhenCancelledAfterLastPoint(t *testing.T) {
	task := sweepTask()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trainer := model.TrainerFunc(func(trainCtx context.Context, task *model.Task, cfg model.TrainConfig) (model.Ensemble, error) {
		if cfg.FeatureSubsetSize == 3 {
			cancel()
		}
		return offsetEnsemble(task, cfg.NumTrees, float64(cfg.FeatureSubsetSize)), nil
	})

	cfg := baseConfig(1, 2, 3)
	cfg.Workers = 1
	res, err := Run(ctx, trainer, task, nil, cfg, quiet())
	require.NoError(t, err)
	require.Len(t, res.Points, 3)
	assert.InDelta(t, 9.0, res.Points[2].Values[0], 1e-12)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestRunRejectsBadInput(t *testing.T) {
	task := sweepTask()
	ok := model.TrainerFunc(func(ctx context.Context, task *model.Task, cfg model.TrainConfig) (model.Ensemble, error) {
		return offsetEnsemble(task, cfg.NumTrees, 0), nil
	})

	_, err := Run(context.Background(), ok, task, nil, baseConfig(0), quiet())
	var validation *errors.ValidationError
	assert.True(t, errors.As(err, &validation))

	cfg := baseConfig(1)
	cfg.Measures = []string{"auc"}
	_, err = Run(context.Background(), ok, task, nil, cfg, quiet())
	var evalErr *errors.MeasureEvaluationError
	assert.True(t, errors.As(err, &evalErr))

	_, err = Run(context.Background(), nil, task, nil, baseConfig(1), quiet())
	assert.Error(t, err)
}

func TestRunLogsGridPoints(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelInfo)
	task := sweepTask()
	trainer := model.TrainerFunc(func(ctx context.Context, task *model.Task, cfg model.TrainConfig) (model.Ensemble, error) {
		return offsetEnsemble(task, cfg.NumTrees, 0), nil
	})

	_, err := Run(context.Background(), trainer, task, nil, baseConfig(2, 4), WithLogger(logger))
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("starting sweep"))
	assert.True(t, logger.ContainsField(log.GridSizeKey, 2.0))
	assert.True(t, logger.ContainsField(log.GridValueKey, 4.0))
	assert.True(t, logger.ContainsMessage("sweep finished"))
}

func TestResultExports(t *testing.T) {
	res := &Result{
		Hyperparameter: MinLeafSize,
		Measures:       []string{"mse", "rsq"},
		Points: []Point{
			{Index: 0, Value: 1, Values: []float64{0.5, math.NaN()}},
			{Index: 1, Value: 5, Values: []float64{0.25, 0.9}},
		},
	}

	var csvBuf bytes.Buffer
	require.NoError(t, res.WriteCSV(&csvBuf))
	assert.Equal(t, "min_leaf_size,mse,rsq\n1,0.5,NA\n5,0.25,0.9\n", csvBuf.String())

	var jsonBuf bytes.Buffer
	require.NoError(t, res.WriteJSON(&jsonBuf))
	var decoded struct {
		Hyperparameter string `json:"hyperparameter"`
		Points         []struct {
			Value    float64             `json:"value"`
			Measures map[string]*float64 `json:"measures"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &decoded))
	assert.Equal(t, "min_leaf_size", decoded.Hyperparameter)
	require.Len(t, decoded.Points, 2)
	assert.Nil(t, decoded.Points[0].Measures["rsq"])
	assert.Equal(t, 0.9, *decoded.Points[1].Measures["rsq"])
	assert.False(t, strings.Contains(jsonBuf.String(), "NaN"))

	dir := t.TempDir()
	require.NoError(t, res.Save(dir+"/sweep.png"))
	assert.Error(t, res.Save(dir+"/sweep.npy"))
}
