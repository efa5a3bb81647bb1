// Package sweep は1つのハイパーパラメータをグリッド上で動かし、各点で再学習した
// アンサンブルの OOB 性能を集める。
package sweep

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/core/parallel"
	"github.com/YuminosukeSato/oobcurve/curve"
	"github.com/YuminosukeSato/oobcurve/ensemble"
	"github.com/YuminosukeSato/oobcurve/measure"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
	"github.com/YuminosukeSato/oobcurve/pkg/log"
)

// Config はスイープの設定。Values が空なら Points 個の等間隔グリッドを使う
type Config struct {
	Hyperparameter Hyperparameter
	Values         []float64
	Points         int
	Base           model.TrainConfig
	Measures       []string
	// KeepCurves が true なら各点で全ステップの曲線を保持する。
	// false なら最終ステップだけを評価する。
	KeepCurves bool
	// Workers は同時に学習するグリッド点の数。0以下は CPU コア数
	Workers int
}

// Point はグリッド1点の結果
type Point struct {
	Index  int
	Value  float64
	Values []float64
	Curve  *curve.Curve
}

// Result はスイープの結果。Points は入力グリッドと同じ順序
type Result struct {
	Hyperparameter Hyperparameter
	Measures       []string
	Points         []Point
}

// Measure は点 i の指標 id の値を返す
func (r *Result) Measure(i int, id string) (float64, bool) {
	for j, m := range r.Measures {
		if m == id {
			return r.Points[i].Values[j], true
		}
	}
	return 0, false
}

// Option は Run の設定を変更する
type Option func(*runOptions)

type runOptions struct {
	logger    log.Logger
	curveOpts []curve.Option
}

// WithLogger は進捗ログの出力先を設定する
func WithLogger(l log.Logger) Option {
	return func(o *runOptions) { o.logger = l }
}

// WithCurveOptions は各グリッド点の曲線計算に渡すオプションを設定する
func WithCurveOptions(opts ...curve.Option) Option {
	return func(o *runOptions) { o.curveOpts = append(o.curveOpts, opts...) }
}

// GridValues は cfg から評価するグリッド値を求める。明示された値は検証だけして順序を保つ
func (cfg Config) GridValues(task *model.Task) ([]float64, error) {
	if len(cfg.Values) == 0 {
		return Grid(cfg.Hyperparameter, task, cfg.Points)
	}
	for _, v := range cfg.Values {
		if err := cfg.Hyperparameter.Validate(v, task); err != nil {
			return nil, err
		}
	}
	return append([]float64(nil), cfg.Values...), nil
}

// Run はグリッドの各点で trainer を呼んで再学習し、OOB 性能を評価する。
//
// グリッド点は最大 cfg.Workers 個ずつ並行に処理されるが、結果は入力グリッドの順に並ぶ。
// 学習に失敗した点があれば TrainingError でスイープ全体を中断する。
// ctx のキャンセルはグリッド点の境界でのみ効き、学習中の点は最後まで実行される。
func Run(ctx context.Context, trainer model.Trainer, task *model.Task, reg *measure.Registry, cfg Config, opts ...Option) (*Result, error) {
	o := &runOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.GetLoggerWithName("sweep")
	}
	if trainer == nil {
		return nil, errors.NewValueError("sweep.Run", "trainer is nil")
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Base.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = measure.Builtins()
	}
	measures, err := reg.Resolve(task.Type, cfg.Measures)
	if err != nil {
		return nil, err
	}
	values, err := cfg.GridValues(task)
	if err != nil {
		return nil, err
	}

	workers := parallel.Workers(cfg.Workers)
	logger := o.logger.With(
		log.OperationKey, log.OperationSweep,
		log.HyperparamKey, string(cfg.Hyperparameter),
		log.TaskKey, task.Type.String(),
	)
	logger.Info("starting sweep", log.GridSizeKey, len(values), log.WorkersKey, workers)
	start := time.Now()

	curveOpts := append([]curve.Option{curve.WithLogger(log.Nop())}, o.curveOpts...)
	points := make([]Point, len(values))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	dispatched := 0
dispatch:
	for i, v := range values {
		select {
		case <-gctx.Done():
			break dispatch
		default:
		}
		dispatched++
		i, v := i, v
		g.Go(func() error {
			// 境界でのみキャンセルを確認する
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := runPoint(context.WithoutCancel(gctx), trainer, task, measures, cfg, i, v, curveOpts, logger)
			if err != nil {
				return err
			}
			points[i] = *p
			return nil
		})
	}

	err = g.Wait()
	// 全点が完了していればキャンセルは結果に影響しない
	if err == nil && dispatched < len(values) {
		err = ctx.Err()
	}
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			logger.Warn("sweep cancelled", log.DurationMsKey, time.Since(start).Milliseconds())
		} else {
			logger.Error("sweep aborted", err)
		}
		return nil, errors.WithStack(err)
	}

	logger.Info("sweep finished", log.DurationMsKey, time.Since(start).Milliseconds())
	return &Result{
		Hyperparameter: cfg.Hyperparameter,
		Measures:       measure.IDsOf(measures),
		Points:         points,
	}, nil
}

func runPoint(ctx context.Context, trainer model.Trainer, task *model.Task, measures []measure.Measure,
	cfg Config, i int, v float64, curveOpts []curve.Option, logger log.Logger) (*Point, error) {
	pointLogger := logger.With(log.GridIndexKey, i, log.GridValueKey, v)
	pointLogger.Debug("training grid point")
	start := time.Now()

	trainCfg := cfg.Hyperparameter.Apply(cfg.Base, v)
	e, err := errors.SafeCall(fmt.Sprintf("train %s=%g", cfg.Hyperparameter, v), func() (model.Ensemble, error) {
		return trainer.Train(ctx, task, trainCfg)
	})
	if err == nil && e == nil {
		err = errors.New("trainer returned no ensemble")
	}
	if err != nil {
		return nil, errors.NewTrainingError(string(cfg.Hyperparameter), v, err)
	}

	c, err := ensemble.Adapt(e, task)
	if err != nil {
		return nil, err
	}
	p := &Point{Index: i, Value: v}
	if cfg.KeepCurves {
		if p.Curve, err = curve.Compute(ctx, c, measures, curveOpts...); err != nil {
			return nil, err
		}
		p.Values = p.Curve.Rows[p.Curve.Len()-1]
	} else if p.Values, err = curve.Final(ctx, c, measures, curveOpts...); err != nil {
		return nil, err
	}

	pointLogger.Info("grid point evaluated", log.TreesKey, e.NumTrees(), log.DurationMsKey, time.Since(start).Milliseconds())
	return p, nil
}
