package measure

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/metrics"
	"github.com/YuminosukeSato/oobcurve/oob"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// 組み込み指標の ID
const (
	MMCE    = "mmce"
	ACC     = "acc"
	AUC     = "auc"
	Brier   = "brier"
	LogLoss = "logloss"
	MSE     = "mse"
	RMSE    = "rmse"
	MAE     = "mae"
	RSQ     = "rsq"
)

var (
	classif = []model.TaskType{model.Classification}
	regr    = []model.TaskType{model.Regression}
)

// Builtins は組み込み指標を登録した新しい Registry を返す。
// 呼び出しごとに独立したインスタンスなので、利用者が独自の指標を追加してもよい。
func Builtins() *Registry {
	r := NewRegistry()
	for _, m := range []Measure{
		{ID: MMCE, Name: "Mean misclassification error", Tasks: classif, Minimize: true, Fn: onResponse(metrics.MisclassificationRate)},
		{ID: ACC, Name: "Accuracy", Tasks: classif, Fn: onResponse(metrics.Accuracy)},
		{ID: AUC, Name: "Area under the ROC curve", Tasks: classif, Fn: onProbs(metrics.MulticlassAUC)},
		{ID: Brier, Name: "Brier score", Tasks: classif, Minimize: true, Fn: brier},
		{ID: LogLoss, Name: "Logarithmic loss", Tasks: classif, Minimize: true, Fn: onProbs(metrics.LogLoss)},
		{ID: MSE, Name: "Mean of squared errors", Tasks: regr, Minimize: true, Fn: onValues(metrics.MSE)},
		{ID: RMSE, Name: "Root mean squared error", Tasks: regr, Minimize: true, Fn: onValues(metrics.RMSE)},
		{ID: MAE, Name: "Mean of absolute errors", Tasks: regr, Minimize: true, Fn: onValues(metrics.MAE)},
		{ID: RSQ, Name: "Coefficient of determination", Tasks: regr, Fn: onValues(metrics.R2Score)},
	} {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
	return r
}

// onResponse は予測クラス番号を受け取る指標を Func に変換する
func onResponse(fn func(yTrue, yPred *mat.VecDense) (float64, error)) Func {
	return func(p *oob.Prediction, truth *mat.VecDense) (float64, error) {
		if p.Probs == nil {
			return 0, errors.NewValueError("measure", "classification measure requires class probabilities")
		}
		return fn(truth, p.Response())
	}
}

// onProbs は [n×K] の得票率を受け取る指標を Func に変換する
func onProbs(fn func(yTrue *mat.VecDense, probs mat.Matrix) (float64, error)) Func {
	return func(p *oob.Prediction, truth *mat.VecDense) (float64, error) {
		if p.Probs == nil {
			return 0, errors.NewValueError("measure", "classification measure requires class probabilities")
		}
		return fn(truth, p.Probs)
	}
}

// onValues は回帰の予測値を受け取る指標を Func に変換する
func onValues(fn func(yTrue, yPred *mat.VecDense) (float64, error)) Func {
	return func(p *oob.Prediction, truth *mat.VecDense) (float64, error) {
		if p.Values == nil {
			return 0, errors.NewValueError("measure", "regression measure requires numeric predictions")
		}
		return fn(truth, p.Values)
	}
}

// brier は2クラスでは2番目のクラスを正例とした Brier スコア、
// 3クラス以上では多クラス Brier スコアを返す
func brier(p *oob.Prediction, truth *mat.VecDense) (float64, error) {
	if p.Probs == nil {
		return 0, errors.NewValueError("measure", "classification measure requires class probabilities")
	}
	n, k := p.Probs.Dims()
	if k != 2 {
		return metrics.MulticlassBrier(truth, p.Probs)
	}
	pos := mat.NewVecDense(n, mat.Col(nil, 1, p.Probs))
	y := mat.NewVecDense(n, nil)
	for i := 0; i < truth.Len(); i++ {
		if truth.AtVec(i) == 1 {
			y.SetVec(i, 1)
		}
	}
	return metrics.BrierScore(y, pos)
}

// IgnoreUndefined は集約値が定義されたサンプルだけで m を評価する指標を返す。
// 全サンプルが未定義のステップでは NaN になる。ID には ".defined" が付く。
func IgnoreUndefined(m Measure) Measure {
	inner := m.Fn
	m.ID += ".defined"
	m.Name += " (defined samples only)"
	m.Fn = func(p *oob.Prediction, truth *mat.VecDense) (float64, error) {
		if p.Undefined() == 0 {
			return inner(p, truth)
		}
		keep := make([]int, 0, p.Len())
		for i := 0; i < p.Len(); i++ {
			if p.Defined(i) {
				keep = append(keep, i)
			}
		}
		if len(keep) == 0 {
			return math.NaN(), nil
		}
		return inner(subset(p, keep), subsetVec(truth, keep))
	}
	return m
}

func subset(p *oob.Prediction, rows []int) *oob.Prediction {
	out := &oob.Prediction{
		Task:    p.Task,
		Step:    p.Step,
		Classes: p.Classes,
		Counts:  make([]int, len(rows)),
	}
	for j, i := range rows {
		out.Counts[j] = p.Counts[i]
	}
	if p.Values != nil {
		out.Values = subsetVec(p.Values, rows)
	}
	if p.Probs != nil {
		_, k := p.Probs.Dims()
		out.Probs = mat.NewDense(len(rows), k, nil)
		for j, i := range rows {
			out.Probs.SetRow(j, mat.Row(nil, i, p.Probs))
		}
	}
	return out
}

func subsetVec(v *mat.VecDense, rows []int) *mat.VecDense {
	out := mat.NewVecDense(len(rows), nil)
	for j, i := range rows {
		out.SetVec(j, v.AtVec(i))
	}
	return out
}
