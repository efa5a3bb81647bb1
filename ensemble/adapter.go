// Package ensemble はさまざまな学習器のアンサンブル表現を、OOB集約が扱う正準形に変換する。
package ensemble

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
	"github.com/YuminosukeSato/oobcurve/pkg/log"
)

// Canonical はアンサンブルの正準テンソル表現。呼び出しごとに生成され、以後変更されない。
//
//   - Inbag:  [n×T] in-bag回数（0 = OOB）
//   - Values: [n×T] 回帰の木ごとの予測値（分類では nil）
//   - Votes:  [n×T×K] 分類の one-hot 投票（回帰では nil）
//   - Truth:  [n] 回帰の正解値、または分類の正解クラス番号（Classes の0始まり添字）
type Canonical struct {
	Kind    string
	Task    model.TaskType
	Classes []string
	Inbag   *mat.Dense
	Values  *mat.Dense
	Votes   *tensor.Dense
	Truth   *mat.VecDense
}

// Dims はサンプル数、ツリー数、クラス数を返す。回帰ではクラス数は1
func (c *Canonical) Dims() (n, t, k int) {
	n, t = c.Inbag.Dims()
	k = 1
	if c.Task == model.Classification {
		k = len(c.Classes)
	}
	return n, t, k
}

// Vote は分類でサンプルi・ツリーtが予測したクラス番号を返す
func (c *Canonical) Vote(i, t int) int {
	_, _, k := c.Dims()
	for j := 0; j < k; j++ {
		v, _ := c.Votes.At(i, t, j)
		if v.(float64) == 1 {
			return j
		}
	}
	return -1
}

// Adapt はアンサンブルとタスクを検証し、正準形に変換する。
//
// 認識できないアンサンブルは UnsupportedModelError、in-bag カウントが保持されていない場合は
// MissingBookkeepingError、分類でも回帰でもないタスクは UnsupportedTaskTypeError を返す。
// 分類のクラス番号は ClassLabels() の順序に従う。
func Adapt(e model.Ensemble, task *model.Task) (*Canonical, error) {
	if e == nil {
		return nil, errors.NewUnsupportedModelError("<nil>")
	}
	if task == nil {
		return nil, errors.NewValueError("ensemble.Adapt", "task is nil")
	}
	if !task.Type.Valid() {
		return nil, errors.NewUnsupportedTaskTypeError(task.Type.String())
	}
	if !e.TaskType().Valid() {
		return nil, errors.NewUnsupportedTaskTypeError(e.TaskType().String())
	}
	if e.TaskType() != task.Type {
		return nil, errors.NewValueError("ensemble.Adapt",
			fmt.Sprintf("%s ensemble cannot be evaluated on a %s task", e.TaskType(), task.Type))
	}

	n := task.NumSamples()
	if n == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	numTrees := e.NumTrees()
	if numTrees < 1 {
		return nil, errors.NewValueError("ensemble.Adapt", "ensemble has no trees")
	}

	inbag, err := inbagMatrix(e, n, numTrees)
	if err != nil {
		return nil, err
	}

	c := &Canonical{
		Kind:  e.Kind(),
		Task:  task.Type,
		Inbag: inbag,
	}

	switch task.Type {
	case model.Classification:
		ce, ok := e.(model.ClassificationEnsemble)
		if !ok {
			return nil, errors.NewUnsupportedModelError(e.Kind())
		}
		err = c.adaptClassification(ce, task, n, numTrees)
	case model.Regression:
		re, ok := e.(model.RegressionEnsemble)
		if !ok {
			return nil, errors.NewUnsupportedModelError(e.Kind())
		}
		err = c.adaptRegression(re, task, n, numTrees)
	}
	if err != nil {
		return nil, err
	}

	log.GetLoggerWithName("ensemble").Debug("ensemble adapted",
		log.OperationKey, log.OperationAdapt,
		log.TaskKey, task.Type.String(),
		log.SamplesKey, n,
		log.TreesKey, numTrees,
		log.ClassesKey, len(c.Classes),
	)
	return c, nil
}

// inbagMatrix は [T][n] の in-bag カウントを [n×T] の行列に転置する
func inbagMatrix(e model.Ensemble, n, numTrees int) (*mat.Dense, error) {
	counts := e.InbagCounts()
	if len(counts) == 0 {
		return nil, errors.NewMissingBookkeepingError(e.Kind(), "")
	}
	if len(counts) != numTrees {
		return nil, errors.NewMissingBookkeepingError(e.Kind(),
			fmt.Sprintf("in-bag counts cover %d of %d trees", len(counts), numTrees))
	}

	inbag := mat.NewDense(n, numTrees, nil)
	for t, tree := range counts {
		if len(tree) != n {
			return nil, errors.NewDimensionError("ensemble.Adapt", n, len(tree), 0)
		}
		for i, v := range tree {
			if v < 0 {
				return nil, errors.NewValueError("ensemble.Adapt",
					fmt.Sprintf("negative in-bag count %d for sample %d in tree %d", v, i, t))
			}
			inbag.Set(i, t, float64(v))
		}
	}
	return inbag, nil
}

func (c *Canonical) adaptClassification(e model.ClassificationEnsemble, task *model.Task, n, numTrees int) error {
	classes := e.ClassLabels()
	if len(classes) == 0 {
		return errors.NewValueError("ensemble.Adapt", "classification ensemble reports no class labels")
	}
	index := make(map[string]int, len(classes))
	for k, label := range classes {
		if _, dup := index[label]; dup {
			return errors.NewValueError("ensemble.Adapt", fmt.Sprintf("duplicate class label %q", label))
		}
		index[label] = k
	}
	numClasses := len(classes)

	votes := e.TreeVotes()
	if len(votes) != numTrees {
		return errors.NewDimensionError("ensemble.Adapt", numTrees, len(votes), 1)
	}

	backing := make([]float64, n*numTrees*numClasses)
	for t, tree := range votes {
		if len(tree) != n {
			return errors.NewDimensionError("ensemble.Adapt", n, len(tree), 0)
		}
		for i, label := range tree {
			k, ok := index[label]
			if !ok {
				return errors.NewValueError("ensemble.Adapt",
					fmt.Sprintf("tree %d predicted unknown class %q for sample %d", t, label, i))
			}
			backing[(i*numTrees+t)*numClasses+k] = 1
		}
	}

	truth := mat.NewVecDense(n, nil)
	for i, label := range task.Labels {
		k, ok := index[label]
		if !ok {
			return errors.NewValueError("ensemble.Adapt",
				fmt.Sprintf("truth label %q of sample %d is not a class of the ensemble", label, i))
		}
		truth.SetVec(i, float64(k))
	}

	c.Classes = append([]string(nil), classes...)
	c.Votes = tensor.New(tensor.WithShape(n, numTrees, numClasses), tensor.WithBacking(backing))
	c.Truth = truth
	return nil
}

func (c *Canonical) adaptRegression(e model.RegressionEnsemble, task *model.Task, n, numTrees int) error {
	values := e.TreeValues()
	if len(values) != numTrees {
		return errors.NewDimensionError("ensemble.Adapt", numTrees, len(values), 1)
	}

	pred := mat.NewDense(n, numTrees, nil)
	for t, tree := range values {
		if len(tree) != n {
			return errors.NewDimensionError("ensemble.Adapt", n, len(tree), 0)
		}
		for i, v := range tree {
			pred.Set(i, t, v)
		}
	}

	if err := errors.CheckFinite("ensemble.Adapt", task.Target); err != nil {
		return err
	}
	c.Values = pred
	c.Truth = mat.NewVecDense(n, append([]float64(nil), task.Target...))
	return nil
}
