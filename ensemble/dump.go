package ensemble

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// Layouts of Dump.Inbag and Dump.Predictions.
const (
	// LayoutTreeMajor indexes [tree][sample]. It is the default.
	LayoutTreeMajor = "tree_major"
	// LayoutSampleMajor indexes [sample][tree], as learners that record one row
	// of per-tree output per sample write it.
	LayoutSampleMajor = "sample_major"
)

// Dump is the JSON interchange form of a trained ensemble together with its task.
// Inbag and Predictions are indexed as Layout says, [tree][sample] when empty.
// Predictions and Truth hold class labels for classification and numbers for
// regression. Without Classes, the class levels are the sorted distinct labels
// of Truth and Predictions.
type Dump struct {
	Kind        string          `json:"kind,omitempty"`
	Layout      string          `json:"layout,omitempty"`
	Task        string          `json:"task"`
	TaskID      string          `json:"task_id,omitempty"`
	Classes     []string        `json:"classes,omitempty"`
	Inbag       [][]int         `json:"inbag"`
	Predictions json.RawMessage `json:"predictions"`
	Truth       json.RawMessage `json:"truth,omitempty"`
	Features    [][]float64     `json:"features,omitempty"`
}

// DecodeJSON reads a Dump from r.
func DecodeJSON(r io.Reader) (*Dump, error) {
	var d Dump
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, errors.Wrap(err, "oobcurve: decode ensemble dump")
	}
	return &d, nil
}

// LoadJSON reads an ensemble dump file and returns the ensemble and its task.
func LoadJSON(path string) (model.Ensemble, *model.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "oobcurve: open ensemble dump %s", path)
	}
	defer f.Close()

	d, err := DecodeJSON(f)
	if err != nil {
		return nil, nil, err
	}
	return d.Build()
}

// Build converts the dump into an in-memory ensemble and task.
func (d *Dump) Build() (model.Ensemble, *model.Task, error) {
	taskType, err := model.ParseTaskType(d.Task)
	if err != nil {
		return nil, nil, err
	}
	kind := d.Kind
	if kind == "" {
		kind = taskType.String()
	}
	if len(d.Inbag) == 0 {
		return nil, nil, errors.NewMissingBookkeepingError(kind, "dump has no inbag field")
	}
	sampleMajor := false
	switch d.Layout {
	case "", LayoutTreeMajor:
	case LayoutSampleMajor:
		sampleMajor = true
	default:
		return nil, nil, errors.NewValidationError("layout",
			fmt.Sprintf("want %q or %q", LayoutTreeMajor, LayoutSampleMajor), d.Layout)
	}
	inbag := d.Inbag
	if sampleMajor {
		if err := checkRows(inbag); err != nil {
			return nil, nil, err
		}
		inbag = Transpose(inbag)
	}

	task := &model.Task{ID: d.TaskID, Type: taskType}
	if len(d.Features) > 0 {
		if task.Features, err = denseFromRows(d.Features); err != nil {
			return nil, nil, err
		}
	}

	switch taskType {
	case model.Classification:
		var votes [][]string
		if err := decodeField(d.Predictions, &votes, "predictions"); err != nil {
			return nil, nil, err
		}
		if err := decodeField(d.Truth, &task.Labels, "truth"); err != nil {
			return nil, nil, err
		}
		if sampleMajor {
			if err := checkRows(votes); err != nil {
				return nil, nil, err
			}
			votes = Transpose(votes)
		}
		classes := d.Classes
		if len(classes) == 0 {
			classes = levels(task.Labels, votes)
		}
		e := NewClassification(classes, inbag, votes)
		e.Name = kind
		return e, task, nil
	default:
		var values [][]float64
		if err := decodeField(d.Predictions, &values, "predictions"); err != nil {
			return nil, nil, err
		}
		if err := decodeField(d.Truth, &task.Target, "truth"); err != nil {
			return nil, nil, err
		}
		if sampleMajor {
			if err := checkRows(values); err != nil {
				return nil, nil, err
			}
			values = Transpose(values)
		}
		e := NewRegression(inbag, values)
		e.Name = kind
		return e, task, nil
	}
}

// checkRows verifies that every sample-major row has one entry per tree.
func checkRows[T any](rows [][]T) error {
	for _, row := range rows {
		if len(row) != len(rows[0]) {
			return errors.NewDimensionError("ensemble.Dump.Build", len(rows[0]), len(row), 1)
		}
	}
	return nil
}

// levels returns the sorted distinct labels of truth and votes.
func levels(truth []string, votes [][]string) []string {
	seen := make(map[string]bool, len(truth))
	var out []string
	add := func(label string) {
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	for _, label := range truth {
		add(label)
	}
	for _, tree := range votes {
		for _, label := range tree {
			add(label)
		}
	}
	sort.Strings(out)
	return out
}

// NewDump captures an ensemble and its task in dump form.
func NewDump(e model.Ensemble, task *model.Task) (*Dump, error) {
	if e == nil || task == nil {
		return nil, errors.NewValueError("ensemble.NewDump", "ensemble and task are required")
	}
	d := &Dump{
		Kind:   e.Kind(),
		Task:   e.TaskType().String(),
		TaskID: task.ID,
		Inbag:  e.InbagCounts(),
	}
	if task.Features != nil {
		r, _ := task.Features.Dims()
		d.Features = make([][]float64, r)
		for i := range d.Features {
			d.Features[i] = mat.Row(nil, i, task.Features)
		}
	}

	var preds, truth any
	switch v := e.(type) {
	case model.ClassificationEnsemble:
		d.Classes = v.ClassLabels()
		preds, truth = v.TreeVotes(), task.Labels
	case model.RegressionEnsemble:
		preds, truth = v.TreeValues(), task.Target
	default:
		return nil, errors.NewUnsupportedModelError(e.Kind())
	}

	var err error
	if d.Predictions, err = json.Marshal(preds); err != nil {
		return nil, errors.Wrap(err, "oobcurve: encode predictions")
	}
	if d.Truth, err = json.Marshal(truth); err != nil {
		return nil, errors.Wrap(err, "oobcurve: encode truth")
	}
	return d, nil
}

// WriteJSON encodes the dump to w.
func (d *Dump) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(d), "oobcurve: encode ensemble dump")
}

// HasTruth reports whether the dump carries ground truth.
func (d *Dump) HasTruth() bool {
	return present(d.Truth)
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func decodeField(raw json.RawMessage, dst any, name string) error {
	if !present(raw) {
		return errors.NewValidationError(name, "missing field", nil)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Wrapf(err, "oobcurve: decode %s", name)
	}
	return nil
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	cols := len(rows[0])
	if cols == 0 {
		return nil, errors.NewValidationError("features", "rows have no columns", rows[0])
	}
	m := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errors.NewValidationError("features",
				fmt.Sprintf("row %d has %d columns, expected %d", i, len(row), cols), len(row))
		}
		m.SetRow(i, row)
	}
	return m, nil
}
