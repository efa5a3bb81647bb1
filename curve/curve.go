// Package curve はツリー数ごとの OOB 性能曲線を組み立てる。
package curve

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/ensemble"
	"github.com/YuminosukeSato/oobcurve/measure"
	"github.com/YuminosukeSato/oobcurve/oob"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
	"github.com/YuminosukeSato/oobcurve/pkg/log"
)

// Curve はステップ 1..T ごとの指標値の表。Rows[s-1][j] がステップ s の Measures[j] の値。
// 生成後は変更されない。
type Curve struct {
	Task     model.TaskType
	Measures []string
	Rows     [][]float64
}

// Len はステップ数 T を返す
func (c *Curve) Len() int {
	return len(c.Rows)
}

// Row はステップ step（1始まり）の指標 ID から値への対応を返す
func (c *Curve) Row(step int) (map[string]float64, error) {
	if step < 1 || step > len(c.Rows) {
		return nil, errors.NewValueError("Curve.Row", fmt.Sprintf("step %d outside [1, %d]", step, len(c.Rows)))
	}
	out := make(map[string]float64, len(c.Measures))
	for j, id := range c.Measures {
		out[id] = c.Rows[step-1][j]
	}
	return out, nil
}

// Column は指標 id の値をステップ順に返す
func (c *Curve) Column(id string) ([]float64, error) {
	j := c.index(id)
	if j < 0 {
		return nil, errors.NewValueError("Curve.Column", fmt.Sprintf("measure %q not in curve", id))
	}
	out := make([]float64, len(c.Rows))
	for s, row := range c.Rows {
		out[s] = row[j]
	}
	return out, nil
}

// Final は全ツリーを使った最終ステップの値を返す
func (c *Curve) Final() map[string]float64 {
	row, _ := c.Row(len(c.Rows))
	return row
}

// FirstDefined は指標 id が NaN でなくなる最初のステップを返す。最後まで NaN なら0
func (c *Curve) FirstDefined(id string) (int, error) {
	col, err := c.Column(id)
	if err != nil {
		return 0, err
	}
	for s, v := range col {
		if !math.IsNaN(v) {
			return s + 1, nil
		}
	}
	return 0, nil
}

// Matrix は曲線を [T×M] の行列として返す
func (c *Curve) Matrix() *mat.Dense {
	m := mat.NewDense(len(c.Rows), len(c.Measures), nil)
	for s, row := range c.Rows {
		m.SetRow(s, row)
	}
	return m
}

func (c *Curve) index(id string) int {
	for j, m := range c.Measures {
		if m == id {
			return j
		}
	}
	return -1
}

// Option は曲線計算の設定を変更する
type Option func(*options)

type options struct {
	workers   int
	threshold int
	logger    log.Logger
}

// WithWorkers は OOB 集約のサンプル軸の並列数を設定する
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithParallelThreshold は OOB 集約を並列化するサンプル数の下限を設定する
func WithParallelThreshold(n int) Option {
	return func(o *options) { o.threshold = n }
}

// WithLogger は進捗ログの出力先を設定する
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) *options {
	o := &options{threshold: -1}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.GetLoggerWithName("curve")
	}
	return o
}

func (o *options) aggregator(c *ensemble.Canonical) *oob.Aggregator {
	aggOpts := []oob.Option{oob.WithWorkers(o.workers)}
	if o.threshold >= 0 {
		aggOpts = append(aggOpts, oob.WithParallelThreshold(o.threshold))
	}
	return oob.NewAggregator(c, aggOpts...)
}

// Compute はステップ 1..T の全てで集約と評価を行い、曲線を返す。
// 行数は常に T で、全サンプルが未定義のステップも省略しない。
// 列の順序は measures の順序に一致する。
func Compute(ctx context.Context, c *ensemble.Canonical, measures []measure.Measure, opts ...Option) (*Curve, error) {
	if c == nil {
		return nil, errors.NewValueError("curve.Compute", "canonical ensemble is nil")
	}
	o := newOptions(opts)
	ev, err := measure.NewEvaluator(c.Task, c.Truth, measures)
	if err != nil {
		return nil, err
	}

	n, numTrees, k := c.Dims()
	logger := o.logger.With(
		log.OperationKey, log.OperationCurve,
		log.TaskKey, c.Task.String(),
		log.SamplesKey, n,
		log.TreesKey, numTrees,
	)
	logger.Info("computing OOB curve", log.ClassesKey, k, log.MeasuresKey, ev.IDs())
	start := time.Now()

	out := &Curve{
		Task:     c.Task,
		Measures: ev.IDs(),
		Rows:     make([][]float64, numTrees),
	}
	firstDefined := 0
	err = o.aggregator(c).Stream(ctx, func(p *oob.Prediction) error {
		undefined := p.Undefined()
		if undefined == 0 && firstDefined == 0 {
			firstDefined = p.Step
		}
		if logger.Enabled(ctx, log.LevelDebug) {
			logger.Debug("step aggregated", log.StepKey, p.Step, log.UndefinedKey, undefined)
		}
		values, err := ev.Evaluate(p)
		if err != nil {
			return err
		}
		out.Rows[p.Step-1] = values
		return nil
	})
	if err != nil {
		logger.Error("OOB curve failed", err)
		return nil, err
	}

	logger.Info("OOB curve computed",
		log.FirstDefinedKey, firstDefined,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	warnUndefined(out.Measures, out.Rows[numTrees-1], numTrees)
	return out, nil
}

// ComputeEnsemble はアンサンブルを正準形に変換し、reg から ids を解決して曲線を計算する。
// ids が空ならタスクの既定指標を使う。
func ComputeEnsemble(ctx context.Context, e model.Ensemble, task *model.Task, reg *measure.Registry, ids []string, opts ...Option) (*Curve, error) {
	c, measures, err := prepare(e, task, reg, ids)
	if err != nil {
		return nil, err
	}
	return Compute(ctx, c, measures, opts...)
}

// Final は全ツリーを使ったステップだけを評価し、指標値を measures の順に返す
func Final(ctx context.Context, c *ensemble.Canonical, measures []measure.Measure, opts ...Option) ([]float64, error) {
	if c == nil {
		return nil, errors.NewValueError("curve.Final", "canonical ensemble is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	o := newOptions(opts)
	ev, err := measure.NewEvaluator(c.Task, c.Truth, measures)
	if err != nil {
		return nil, err
	}
	agg := o.aggregator(c)
	p, err := agg.At(agg.Steps())
	if err != nil {
		return nil, err
	}
	values, err := ev.Evaluate(p)
	if err != nil {
		return nil, err
	}
	warnUndefined(ev.IDs(), values, p.Step)
	return values, nil
}

// FinalEnsemble は Final のアンサンブル版
func FinalEnsemble(ctx context.Context, e model.Ensemble, task *model.Task, reg *measure.Registry, ids []string, opts ...Option) ([]float64, error) {
	c, measures, err := prepare(e, task, reg, ids)
	if err != nil {
		return nil, err
	}
	return Final(ctx, c, measures, opts...)
}

func prepare(e model.Ensemble, task *model.Task, reg *measure.Registry, ids []string) (*ensemble.Canonical, []measure.Measure, error) {
	if reg == nil {
		reg = measure.Builtins()
	}
	c, err := ensemble.Adapt(e, task)
	if err != nil {
		return nil, nil, err
	}
	measures, err := reg.Resolve(c.Task, ids)
	if err != nil {
		return nil, nil, err
	}
	return c, measures, nil
}

// warnUndefined は最終ステップで NaN になった指標について警告を出す
func warnUndefined(ids []string, values []float64, step int) {
	for j, v := range values {
		if math.IsNaN(v) {
			errors.Warn(errors.NewUndefinedMetricWarning(ids[j],
				fmt.Sprintf("undefined value after %d trees", step), v))
		}
	}
}
