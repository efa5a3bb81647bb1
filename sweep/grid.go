package sweep

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// Hyperparameter はスイープ対象のハイパーパラメータ
type Hyperparameter string

const (
	// FeatureSubsetSize は分割ごとに候補とする特徴量数（mtry）
	FeatureSubsetSize Hyperparameter = "feature_subset_size"
	// SubsampleFraction は各ツリーが抽出するサンプルの割合
	SubsampleFraction Hyperparameter = "subsample_fraction"
	// MinLeafSize は葉の最小サンプル数
	MinLeafSize Hyperparameter = "min_leaf_size"
)

// Hyperparameters は対応するハイパーパラメータの一覧
var Hyperparameters = []Hyperparameter{FeatureSubsetSize, SubsampleFraction, MinLeafSize}

// ParseHyperparameter は名前からハイパーパラメータを得る。ranger の引数名も受け付ける
func ParseHyperparameter(s string) (Hyperparameter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "feature_subset_size", "mtry":
		return FeatureSubsetSize, nil
	case "subsample_fraction", "sample.fraction":
		return SubsampleFraction, nil
	case "min_leaf_size", "min.node.size":
		return MinLeafSize, nil
	}
	return "", errors.NewValidationError("hyperparameter",
		fmt.Sprintf("unknown hyperparameter (want one of %v)", Hyperparameters), s)
}

// Integer は整数値のハイパーパラメータかどうかを返す
func (h Hyperparameter) Integer() bool {
	return h == FeatureSubsetSize || h == MinLeafSize
}

// Range はタスクに対する自然な値域 [lo, hi] を返す
func (h Hyperparameter) Range(task *model.Task) (lo, hi float64, err error) {
	switch h {
	case FeatureSubsetSize:
		p := task.NumFeatures()
		if p < 1 {
			return 0, 0, errors.NewValidationError("hyperparameter",
				"task has no features; pass explicit values for feature_subset_size", p)
		}
		return 1, float64(p), nil
	case SubsampleFraction:
		return 0.1, 1, nil
	case MinLeafSize:
		return 1, math.Max(1, math.Floor(float64(task.NumSamples())/5)), nil
	}
	return 0, 0, errors.NewValidationError("hyperparameter", "unknown hyperparameter", string(h))
}

// Validate は値 v がハイパーパラメータとして妥当かを確認する
func (h Hyperparameter) Validate(v float64, task *model.Task) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.NewValidationError(string(h), "value must be finite", v)
	}
	if h.Integer() && v != math.Trunc(v) {
		return errors.NewValidationError(string(h), "value must be an integer", v)
	}
	switch h {
	case FeatureSubsetSize:
		if v < 1 {
			return errors.NewValidationError(string(h), "must be at least 1", v)
		}
		if p := task.NumFeatures(); p > 0 && v > float64(p) {
			return errors.NewValidationError(string(h), fmt.Sprintf("must not exceed the number of features (%d)", p), v)
		}
	case SubsampleFraction:
		if v <= 0 || v > 1 {
			return errors.NewValidationError(string(h), "must be in (0, 1]", v)
		}
	case MinLeafSize:
		if v < 1 {
			return errors.NewValidationError(string(h), "must be at least 1", v)
		}
	default:
		return errors.NewValidationError("hyperparameter", "unknown hyperparameter", string(h))
	}
	return nil
}

// Apply は cfg の該当ハイパーパラメータを v で上書きした設定を返す
func (h Hyperparameter) Apply(cfg model.TrainConfig, v float64) model.TrainConfig {
	switch h {
	case FeatureSubsetSize:
		cfg.FeatureSubsetSize = int(v)
	case SubsampleFraction:
		cfg.SubsampleFraction = v
	case MinLeafSize:
		cfg.MinLeafSize = int(v)
	}
	return cfg
}

// Grid は自然な値域を points 個に等分したグリッドを返す。
// 整数ハイパーパラメータは丸めたうえで、順序を保って重複を除く。
// points が1のときは値域の下限だけを返す。
func Grid(h Hyperparameter, task *model.Task, points int) ([]float64, error) {
	if points < 1 {
		return nil, errors.NewValidationError("points", "must be at least 1", points)
	}
	lo, hi, err := h.Range(task)
	if err != nil {
		return nil, err
	}
	if points == 1 {
		return []float64{lo}, nil
	}

	values := floats.Span(make([]float64, points), lo, hi)
	if !h.Integer() {
		return values, nil
	}
	out := values[:0]
	seen := make(map[float64]bool, points)
	for _, v := range values {
		r := math.Round(v)
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out, nil
}
