package model

import (
	"context"

	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// TrainConfig は外部トレーナーに渡す学習設定
type TrainConfig struct {
	NumTrees          int     `json:"num_trees" yaml:"num_trees"`
	FeatureSubsetSize int     `json:"mtry,omitempty" yaml:"feature_subset_size"`
	SubsampleFraction float64 `json:"sample_fraction,omitempty" yaml:"subsample_fraction"`
	MinLeafSize       int     `json:"min_node_size,omitempty" yaml:"min_leaf_size"`
	Replace           bool    `json:"replace" yaml:"replace"`
	Seed              int64   `json:"seed,omitempty" yaml:"seed"`
}

// DefaultTrainConfig は既定の学習設定を返す。0 の項目はトレーナー側の既定値を意味する
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		NumTrees: 500,
		Replace:  true,
	}
}

// Validate は学習設定を検証する
func (c TrainConfig) Validate() error {
	if c.NumTrees < 1 {
		return errors.NewValidationError("num_trees", "must be at least 1", c.NumTrees)
	}
	if c.FeatureSubsetSize < 0 {
		return errors.NewValidationError("feature_subset_size", "must not be negative", c.FeatureSubsetSize)
	}
	if c.SubsampleFraction < 0 || c.SubsampleFraction > 1 {
		return errors.NewValidationError("subsample_fraction", "must be in [0, 1]", c.SubsampleFraction)
	}
	if c.MinLeafSize < 0 {
		return errors.NewValidationError("min_leaf_size", "must not be negative", c.MinLeafSize)
	}
	return nil
}

// Trainer は外部のアンサンブル学習器。in-bag カウントを保持したアンサンブルを返す必要がある。
//
// スイープはグリッド点の境界でのみキャンセルするため、Train に渡される ctx は
// キャンセルされない。
type Trainer interface {
	Train(ctx context.Context, task *Task, cfg TrainConfig) (Ensemble, error)
}

// TrainerFunc は関数を Trainer として扱うアダプタ
type TrainerFunc func(ctx context.Context, task *Task, cfg TrainConfig) (Ensemble, error)

// Train は f(ctx, task, cfg) を呼ぶ
func (f TrainerFunc) Train(ctx context.Context, task *Task, cfg TrainConfig) (Ensemble, error) {
	return f(ctx, task, cfg)
}
