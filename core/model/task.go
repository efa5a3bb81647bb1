// Package model はOOB学習曲線の計算で扱うタスクと外部アンサンブルのインターフェースを定義する。
package model

import (
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// TaskType はタスクの種類を表す
type TaskType int

const (
	// UnknownTask は未対応のタスク
	UnknownTask TaskType = iota
	// Classification は分類タスク
	Classification
	// Regression は回帰タスク
	Regression
)

// String はタスク種別の文字列表現を返す
func (t TaskType) String() string {
	switch t {
	case Classification:
		return "classification"
	case Regression:
		return "regression"
	default:
		return "unknown"
	}
}

// Valid は分類または回帰であればtrueを返す
func (t TaskType) Valid() bool {
	return t == Classification || t == Regression
}

// ParseTaskType は文字列からタスク種別を得る。"classif" / "regr" の短縮形も受け付ける。
func ParseTaskType(s string) (TaskType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classification", "classif":
		return Classification, nil
	case "regression", "regr":
		return Regression, nil
	default:
		return UnknownTask, errors.NewUnsupportedTaskTypeError(s)
	}
}

// Task は学習データと正解をまとめたもの。
// 分類では Labels、回帰では Target を正解として使う。
// Features はスイープで外部トレーナーに渡され、特徴量数がグリッド範囲を決める。
type Task struct {
	ID       string
	Type     TaskType
	Features *mat.Dense
	Target   []float64
	Labels   []string
}

// NumSamples はサンプル数を返す
func (t *Task) NumSamples() int {
	switch t.Type {
	case Classification:
		return len(t.Labels)
	case Regression:
		return len(t.Target)
	}
	if t.Features != nil {
		r, _ := t.Features.Dims()
		return r
	}
	return 0
}

// NumFeatures は特徴量数を返す。Features が無い場合は0
func (t *Task) NumFeatures() int {
	if t.Features == nil {
		return 0
	}
	_, c := t.Features.Dims()
	return c
}

// Validate はタスクの整合性を検証する
func (t *Task) Validate() error {
	if t == nil {
		return errors.NewValueError("Task.Validate", "task is nil")
	}
	if !t.Type.Valid() {
		return errors.NewUnsupportedTaskTypeError(t.Type.String())
	}
	n := t.NumSamples()
	if n == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	if t.Type == Regression {
		if err := errors.CheckFinite("Task.Validate", t.Target); err != nil {
			return err
		}
	}
	if t.Features != nil {
		r, _ := t.Features.Dims()
		if r != n {
			return errors.NewDimensionError("Task.Validate", n, r, 0)
		}
	}
	return nil
}
