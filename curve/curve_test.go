package curve

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/ensemble"
	"github.com/YuminosukeSato/oobcurve/measure"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
	"github.com/YuminosukeSato/oobcurve/pkg/log"
)

func regressionFixture() (model.Ensemble, *model.Task) {
	e := ensemble.NewRegression(
		ensemble.Transpose([][]int{{0, 1}, {1, 0}, {0, 0}}),
		ensemble.Transpose([][]float64{{10, 20}, {30, 40}, {50, 60}}),
	)
	return e, &model.Task{Type: model.Regression, Target: []float64{12, 38, 54}}
}

// separableFixture は各ツリーが確率 accuracy で正解クラスに投票する2クラス問題を作る
func separableFixture(seed int64, n, numTrees int, accuracy float64) (model.Ensemble, *model.Task) {
	rng := rand.New(rand.NewSource(seed))
	classes := []string{"a", "b"}
	labels := make([]string, n)
	for i := range labels {
		labels[i] = classes[i%2]
	}
	inbag := make([][]int, numTrees)
	votes := make([][]string, numTrees)
	for tr := range inbag {
		inbag[tr] = make([]int, n)
		votes[tr] = make([]string, n)
		for i := 0; i < n; i++ {
			if rng.Float64() >= 0.368 {
				inbag[tr][i] = 1
			}
			votes[tr][i] = labels[i]
			if rng.Float64() > accuracy {
				votes[tr][i] = classes[(i+1)%2]
			}
		}
	}
	return ensemble.NewClassification(classes, inbag, votes),
		&model.Task{Type: model.Classification, Labels: labels}
}

func quiet() Option {
	return WithLogger(log.Nop())
}

func TestComputeRegressionScenario(t *testing.T) {
	e, task := regressionFixture()
	c, err := ComputeEnsemble(context.Background(), e, task, measure.Builtins(), []string{"mae", "mse"}, quiet())
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"mae", "mse"}, c.Measures)
	assert.True(t, math.IsNaN(c.Rows[0][0]))
	assert.True(t, math.IsNaN(c.Rows[0][1]))
	assert.InDelta(t, 5.0/3.0, c.Rows[1][0], 1e-12)
	assert.InDelta(t, 3.0, c.Rows[1][1], 1e-12)

	first, err := c.FirstDefined("mse")
	require.NoError(t, err)
	assert.Equal(t, 2, first)

	final := c.Final()
	assert.InDelta(t, 3.0, final["mse"], 1e-12)

	_, err = c.Row(3)
	assert.Error(t, err)
	_, err = c.Column("auc")
	assert.Error(t, err)
}

func TestCurveLengthEqualsTrees(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
	}{
		{"default measure", nil},
		{"one measure", []string{"auc"}},
		{"all measures", []string{"mmce", "acc", "auc", "brier", "logloss"}},
	}
	e, task := separableFixture(1, 20, 17, 0.7)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ComputeEnsemble(context.Background(), e, task, nil, tt.ids, quiet())
			require.NoError(t, err)
			assert.Equal(t, 17, c.Len())
			rows, cols := c.Matrix().Dims()
			assert.Equal(t, 17, rows)
			assert.Equal(t, len(c.Measures), cols)
		})
	}
}

func TestComputeKeepsAllUndefinedSteps(t *testing.T) {
	// ツリー1では全サンプルが in-bag
	e := ensemble.NewRegression([][]int{{1, 1}, {0, 0}}, [][]float64{{1, 2}, {3, 4}})
	task := &model.Task{Type: model.Regression, Target: []float64{3, 4}}

	c, err := ComputeEnsemble(context.Background(), e, task, nil, []string{"mse"}, quiet())
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	assert.True(t, math.IsNaN(c.Rows[0][0]))
	assert.Equal(t, 0.0, c.Rows[1][0])
}

func TestComputeIsIdempotent(t *testing.T) {
	e, task := separableFixture(2, 40, 30, 0.75)
	ids := []string{"mmce", "brier", "auc"}

	a, err := ComputeEnsemble(context.Background(), e, task, nil, ids, quiet())
	require.NoError(t, err)
	b, err := ComputeEnsemble(context.Background(), e, task, nil, ids, quiet(), WithParallelThreshold(0), WithWorkers(3))
	require.NoError(t, err)

	for s := range a.Rows {
		for j := range a.Rows[s] {
			assert.Equal(t, math.Float64bits(a.Rows[s][j]), math.Float64bits(b.Rows[s][j]), "step %d measure %d", s+1, j)
		}
	}
}

func TestErrorTrendsDownOnSeparableData(t *testing.T) {
	e, task := separableFixture(42, 80, 120, 0.8)
	reg := measure.Builtins()
	mmce, _ := reg.Get("mmce")
	require.NoError(t, reg.Register(measure.IgnoreUndefined(mmce)))

	c, err := ComputeEnsemble(context.Background(), e, task, reg, []string{"mmce.defined"}, quiet())
	require.NoError(t, err)
	col, err := c.Column("mmce.defined")
	require.NoError(t, err)

	early := stat.Mean(col[:10], nil)
	late := stat.Mean(col[len(col)-10:], nil)
	assert.Less(t, late, early)
	assert.Less(t, late, 0.05)
}

func TestFinalMatchesLastRow(t *testing.T) {
	e, task := separableFixture(3, 30, 25, 0.7)
	ids := []string{"mmce", "brier"}

	c, err := ComputeEnsemble(context.Background(), e, task, nil, ids, quiet())
	require.NoError(t, err)
	final, err := FinalEnsemble(context.Background(), e, task, nil, ids, quiet())
	require.NoError(t, err)

	assert.Equal(t, c.Rows[c.Len()-1], final)
}

func TestComputeErrors(t *testing.T) {
	e, task := regressionFixture()

	t.Run("measure for other task", func(t *testing.T) {
		_, err := ComputeEnsemble(context.Background(), e, task, nil, []string{"auc"}, quiet())
		var target *errors.MeasureEvaluationError
		assert.True(t, errors.As(err, &target))
	})

	t.Run("missing bookkeeping", func(t *testing.T) {
		bad := &ensemble.Regression{Name: "bare", Values: [][]float64{{1, 2, 3}}}
		_, err := ComputeEnsemble(context.Background(), bad, task, nil, nil, quiet())
		var target *errors.MissingBookkeepingError
		assert.True(t, errors.As(err, &target))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := ComputeEnsemble(ctx, e, task, nil, nil, quiet())
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestComputeLogsProgress(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	e, task := regressionFixture()

	_, err := ComputeEnsemble(context.Background(), e, task, nil, nil, WithLogger(logger))
	require.NoError(t, err)

	assert.True(t, logger.ContainsMessage("computing OOB curve"))
	assert.True(t, logger.ContainsMessage("OOB curve computed"))
	assert.True(t, logger.ContainsField(log.FirstDefinedKey, 2.0))
	assert.True(t, logger.ContainsField(log.TreesKey, 2.0))
	assert.True(t, logger.ContainsField(log.UndefinedKey, 1.0))
}

func TestComputeWarnsOnUndefinedFinalStep(t *testing.T) {
	var mu sync.Mutex
	var warnings []error
	errors.SetZerologWarnFunc(func(w error) {
		mu.Lock()
		defer mu.Unlock()
		warnings = append(warnings, w)
	})
	defer log.RouteWarnings(log.GetLogger())

	// サンプル2は最後まで OOB にならない
	e := ensemble.NewRegression([][]int{{0, 1}}, [][]float64{{1, 2}})
	task := &model.Task{Type: model.Regression, Target: []float64{1, 2}}
	_, err := ComputeEnsemble(context.Background(), e, task, nil, []string{"mse"}, quiet())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, warnings, 1)
	var w *errors.UndefinedMetricWarning
	require.True(t, errors.As(warnings[0], &w))
	assert.Equal(t, "mse", w.Metric)
}
