package oob

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/core/parallel"
	"github.com/YuminosukeSato/oobcurve/ensemble"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// Aggregator は正準テンソルから各ステップの OOB 集約予測を計算する。
// 入力テンソルは読み取り専用で、複数の Stream / At を並行に呼んでよい。
type Aggregator struct {
	c         *ensemble.Canonical
	votes     []float64
	n, t, k   int
	workers   int
	threshold int
}

// Option は Aggregator の設定を変更する
type Option func(*Aggregator)

// WithWorkers はサンプル軸の並列数を設定する。0以下は CPU コア数
func WithWorkers(n int) Option {
	return func(a *Aggregator) { a.workers = n }
}

// WithParallelThreshold は並列化を始めるサンプル数を設定する
func WithParallelThreshold(n int) Option {
	return func(a *Aggregator) { a.threshold = n }
}

// NewAggregator は Aggregator を作成する
func NewAggregator(c *ensemble.Canonical, opts ...Option) *Aggregator {
	a := &Aggregator{c: c, threshold: parallel.DefaultThreshold}
	a.n, a.t, a.k = c.Dims()
	if c.Task == model.Classification {
		a.votes = c.Votes.Data().([]float64)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Steps はステップ数（ツリー数 T）を返す
func (a *Aggregator) Steps() int {
	return a.t
}

// running はステップをまたいで保持する累積和と OOB カウント
type running struct {
	sum   []float64 // [n×K]
	count []int     // [n]
}

func (a *Aggregator) newRunning() *running {
	return &running{
		sum:   make([]float64, a.n*a.k),
		count: make([]int, a.n),
	}
}

// add は行 [start, end) にツリー tree の OOB 予測を加える
func (a *Aggregator) add(r *running, tree, start, end int) {
	for i := start; i < end; i++ {
		if a.c.Inbag.At(i, tree) != 0 {
			continue
		}
		r.count[i]++
		if a.c.Task == model.Regression {
			r.sum[i] += a.c.Values.At(i, tree)
			continue
		}
		base := (i*a.t + tree) * a.k
		for j := 0; j < a.k; j++ {
			r.sum[i*a.k+j] += a.votes[base+j]
		}
	}
}

// emit は行 [start, end) の累積和を OOB カウントで割って p に書き込む。
// カウントが0の行は 0/0 = NaN になる。
func (a *Aggregator) emit(r *running, p *Prediction, start, end int) {
	for i := start; i < end; i++ {
		p.Counts[i] = r.count[i]
		denom := float64(r.count[i])
		if p.Values != nil {
			p.Values.SetVec(i, r.sum[i]/denom)
			continue
		}
		for j := 0; j < a.k; j++ {
			p.Probs.Set(i, j, r.sum[i*a.k+j]/denom)
		}
	}
}

func (a *Aggregator) newPrediction(step int) *Prediction {
	p := &Prediction{
		Task:   a.c.Task,
		Step:   step,
		Counts: make([]int, a.n),
	}
	if a.c.Task == model.Classification {
		p.Classes = a.c.Classes
		p.Probs = mat.NewDense(a.n, a.k, nil)
	} else {
		p.Values = mat.NewVecDense(a.n, nil)
	}
	return p
}

// Stream はステップ 1..T の集約予測を順に fn に渡す。
// 各行を左から右へ1回走査し、行ごとの累積和だけを保持する。
// ctx はステップの境界で確認され、fn がエラーを返すとそこで止まる。
func (a *Aggregator) Stream(ctx context.Context, fn func(*Prediction) error) error {
	r := a.newRunning()
	for tree := 0; tree < a.t; tree++ {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		p := a.newPrediction(tree + 1)
		parallel.ParallelizeWithThreshold(a.n, a.threshold, a.workers, func(start, end int) {
			a.add(r, tree, start, end)
			a.emit(r, p, start, end)
		})
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// At は先頭 step 本のツリーだけを使った集約予測を返す
func (a *Aggregator) At(step int) (*Prediction, error) {
	if step < 1 || step > a.t {
		return nil, errors.NewValueError("oob.At", fmt.Sprintf("step %d outside [1, %d]", step, a.t))
	}
	r := a.newRunning()
	p := a.newPrediction(step)
	parallel.ParallelizeWithThreshold(a.n, a.threshold, a.workers, func(start, end int) {
		for tree := 0; tree < step; tree++ {
			a.add(r, tree, start, end)
		}
		a.emit(r, p, start, end)
	})
	return p, nil
}

// Counts は oob_count を [n×T] で返す。要素 (i, s-1) は先頭 s 本のうちサンプル i が
// OOB だったツリー数
func (a *Aggregator) Counts() *mat.Dense {
	out := mat.NewDense(a.n, a.t, nil)
	parallel.ParallelizeWithThreshold(a.n, a.threshold, a.workers, func(start, end int) {
		for i := start; i < end; i++ {
			count := 0
			for tree := 0; tree < a.t; tree++ {
				if a.c.Inbag.At(i, tree) == 0 {
					count++
				}
				out.Set(i, tree, float64(count))
			}
		}
	})
	return out
}
