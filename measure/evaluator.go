package measure

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/oob"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// Evaluator は1ステップの集約予測に対して、要求された指標を順に計算する。
// 入力を変更せず、内部状態も持たない。
type Evaluator struct {
	task     model.TaskType
	truth    *mat.VecDense
	measures []Measure
}

// NewEvaluator は Evaluator を作成する。指標が空なら ErrNoMeasures、
// タスクに対応しない指標があれば MeasureEvaluationError を返す。
func NewEvaluator(task model.TaskType, truth *mat.VecDense, measures []Measure) (*Evaluator, error) {
	if !task.Valid() {
		return nil, errors.NewUnsupportedTaskTypeError(task.String())
	}
	if len(measures) == 0 {
		return nil, errors.WithStack(errors.ErrNoMeasures)
	}
	if truth == nil || truth.Len() == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	for _, m := range measures {
		if m.Fn == nil {
			return nil, errors.NewMeasureEvaluationError(m.ID, 0, errors.New("measure function is nil"))
		}
		if !m.Supports(task) {
			return nil, errors.NewMeasureEvaluationError(m.ID, 0,
				errors.Newf("measure does not support %s tasks", task))
		}
	}
	return &Evaluator{
		task:     task,
		truth:    truth,
		measures: append([]Measure(nil), measures...),
	}, nil
}

// IDs は指標 ID を評価順に返す
func (e *Evaluator) IDs() []string {
	return IDsOf(e.measures)
}

// Evaluate は p に対する各指標の値を要求順に返す。
// 指標がエラーを返すかパニックした場合は MeasureEvaluationError を返す。
// NaN は正当な値としてそのまま返す。
func (e *Evaluator) Evaluate(p *oob.Prediction) ([]float64, error) {
	if p == nil {
		return nil, errors.NewValueError("measure.Evaluate", "prediction is nil")
	}
	out := make([]float64, len(e.measures))
	for j, m := range e.measures {
		if p.Task != e.task {
			return nil, errors.NewMeasureEvaluationError(m.ID, p.Step,
				errors.Newf("prediction is %s but evaluator expects %s", p.Task, e.task))
		}
		if p.Len() != e.truth.Len() {
			return nil, errors.NewMeasureEvaluationError(m.ID, p.Step,
				errors.NewDimensionError("measure.Evaluate", e.truth.Len(), p.Len(), 0))
		}

		fn := m.Fn
		v, err := errors.SafeCall(fmt.Sprintf("measure %s", m.ID), func() (float64, error) {
			return fn(p, e.truth)
		})
		if err != nil {
			return nil, errors.NewMeasureEvaluationError(m.ID, p.Step, err)
		}
		out[j] = v
	}
	return out, nil
}
