package ensemble

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// NPY dump file names.
const (
	MetaFile        = "meta.json"
	InbagFile       = "inbag.npy"
	PredictionsFile = "predictions.npy"
	TruthFile       = "truth.npy"
)

// Meta describes an NPY dump directory.
type Meta struct {
	Kind    string   `json:"kind,omitempty"`
	Task    string   `json:"task"`
	TaskID  string   `json:"task_id,omitempty"`
	Classes []string `json:"classes,omitempty"`
}

// LoadNPY reads an ensemble from a directory of float64 NPY arrays:
// inbag.npy and predictions.npy are [n×T], truth.npy holds n values.
// For classification, predictions and truth are 0-based indices into Meta.Classes.
func LoadNPY(dir string) (model.Ensemble, *model.Task, error) {
	raw, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "oobcurve: read %s", MetaFile)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, nil, errors.Wrapf(err, "oobcurve: decode %s", MetaFile)
	}
	taskType, err := model.ParseTaskType(meta.Task)
	if err != nil {
		return nil, nil, err
	}
	kind := meta.Kind
	if kind == "" {
		kind = taskType.String()
	}

	inbagPath := filepath.Join(dir, InbagFile)
	if _, err := os.Stat(inbagPath); os.IsNotExist(err) {
		return nil, nil, errors.NewMissingBookkeepingError(kind, InbagFile+" not found")
	}
	inbagM, err := readMatrix(inbagPath)
	if err != nil {
		return nil, nil, err
	}
	predM, err := readMatrix(filepath.Join(dir, PredictionsFile))
	if err != nil {
		return nil, nil, err
	}
	truth, err := readVector(filepath.Join(dir, TruthFile))
	if err != nil {
		return nil, nil, err
	}

	n, numTrees := inbagM.Dims()
	pn, pt := predM.Dims()
	if pn != n {
		return nil, nil, errors.NewDimensionError("ensemble.LoadNPY", n, pn, 0)
	}
	if pt != numTrees {
		return nil, nil, errors.NewDimensionError("ensemble.LoadNPY", numTrees, pt, 1)
	}
	if len(truth) != n {
		return nil, nil, errors.NewDimensionError("ensemble.LoadNPY", n, len(truth), 0)
	}

	inbag := make([][]int, numTrees)
	for t := range inbag {
		inbag[t] = make([]int, n)
		for i := 0; i < n; i++ {
			inbag[t][i] = int(inbagM.At(i, t))
		}
	}

	task := &model.Task{ID: meta.TaskID, Type: taskType}
	switch taskType {
	case model.Classification:
		label := func(v float64) (string, error) {
			k := int(v)
			if float64(k) != v || k < 0 || k >= len(meta.Classes) {
				return "", errors.NewValueError("ensemble.LoadNPY",
					fmt.Sprintf("class index %v outside [0, %d)", v, len(meta.Classes)))
			}
			return meta.Classes[k], nil
		}
		votes := make([][]string, numTrees)
		for t := range votes {
			votes[t] = make([]string, n)
			for i := 0; i < n; i++ {
				if votes[t][i], err = label(predM.At(i, t)); err != nil {
					return nil, nil, err
				}
			}
		}
		task.Labels = make([]string, n)
		for i, v := range truth {
			if task.Labels[i], err = label(v); err != nil {
				return nil, nil, err
			}
		}
		e := NewClassification(meta.Classes, inbag, votes)
		e.Name = kind
		return e, task, nil
	default:
		values := make([][]float64, numTrees)
		for t := range values {
			values[t] = mat.Col(nil, t, predM)
		}
		task.Target = truth
		e := NewRegression(inbag, values)
		e.Name = kind
		return e, task, nil
	}
}

// SaveNPY writes the ensemble and task into dir in the layout LoadNPY reads.
func SaveNPY(dir string, e model.Ensemble, task *model.Task) error {
	c, err := Adapt(e, task)
	if err != nil {
		return err
	}
	n, numTrees, _ := c.Dims()

	meta := Meta{Kind: c.Kind, Task: c.Task.String(), TaskID: task.ID, Classes: c.Classes}
	raw, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "oobcurve: encode meta")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "oobcurve: create %s", dir)
	}
	if err := os.WriteFile(filepath.Join(dir, MetaFile), raw, 0o644); err != nil {
		return errors.Wrapf(err, "oobcurve: write %s", MetaFile)
	}

	pred := c.Values
	if c.Task == model.Classification {
		pred = mat.NewDense(n, numTrees, nil)
		for i := 0; i < n; i++ {
			for t := 0; t < numTrees; t++ {
				pred.Set(i, t, float64(c.Vote(i, t)))
			}
		}
	}

	if err := writeNPY(filepath.Join(dir, InbagFile), c.Inbag); err != nil {
		return err
	}
	if err := writeNPY(filepath.Join(dir, PredictionsFile), pred); err != nil {
		return err
	}
	return writeNPY(filepath.Join(dir, TruthFile), c.Truth.RawVector().Data)
}

func readMatrix(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "oobcurve: open %s", path)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "oobcurve: read npy header %s", path)
	}
	m := &mat.Dense{}
	if err := r.Read(m); err != nil {
		return nil, errors.Wrapf(err, "oobcurve: read %s", path)
	}
	return m, nil
}

func readVector(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "oobcurve: open %s", path)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "oobcurve: read npy header %s", path)
	}
	var v []float64
	if err := r.Read(&v); err != nil {
		return nil, errors.Wrapf(err, "oobcurve: read %s", path)
	}
	return v, nil
}

func writeNPY(path string, val any) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "oobcurve: create %s", path)
	}
	if err := npyio.Write(f, val); err != nil {
		f.Close()
		return errors.Wrapf(err, "oobcurve: write %s", path)
	}
	return errors.Wrapf(f.Close(), "oobcurve: close %s", path)
}
