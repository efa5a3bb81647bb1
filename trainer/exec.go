// Package trainer runs an external ensemble trainer as a subprocess.
//
// The trainer receives a JSON request describing the task and the training
// configuration, trains a bagged-tree ensemble with in-bag tracking enabled, and
// writes the ensemble as a JSON dump (see ensemble.Dump) to the requested output path.
package trainer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/ensemble"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
	"github.com/YuminosukeSato/oobcurve/pkg/log"
)

// Placeholders substituted in Exec.Args.
const (
	RequestPlaceholder = "{request}"
	OutputPlaceholder  = "{output}"
)

// Request is the JSON document handed to the trainer.
type Request struct {
	Task      string            `json:"task"`
	TaskID    string            `json:"task_id,omitempty"`
	Features  [][]float64       `json:"features,omitempty"`
	Target    []float64         `json:"target,omitempty"`
	Labels    []string          `json:"labels,omitempty"`
	Config    model.TrainConfig `json:"config"`
	KeepInbag bool              `json:"keep_inbag"`
	Output    string            `json:"output"`
}

// Exec is a model.Trainer backed by an external command.
type Exec struct {
	Command string
	Args    []string
	// WorkDir holds the per-call scratch directories. Empty means os.TempDir().
	WorkDir string
	// KeepFiles leaves request and output files on disk after the call.
	KeepFiles bool
	Stdout    io.Writer
	Logger    log.Logger
}

var _ model.Trainer = (*Exec)(nil)

// New returns an Exec running command with args. When args contain neither
// placeholder, the request and output paths are appended in that order.
func New(command string, args ...string) *Exec {
	return &Exec{Command: command, Args: args}
}

// NewRequest builds the trainer request for task and cfg.
func NewRequest(task *model.Task, cfg model.TrainConfig, output string) *Request {
	r := &Request{
		Task:      task.Type.String(),
		TaskID:    task.ID,
		Target:    task.Target,
		Labels:    task.Labels,
		Config:    cfg,
		KeepInbag: true,
		Output:    output,
	}
	if task.Features != nil {
		rows, _ := task.Features.Dims()
		r.Features = make([][]float64, rows)
		for i := range r.Features {
			r.Features[i] = mat.Row(nil, i, task.Features)
		}
	}
	return r
}

// ToTask converts the request's data back into a task.
func (r *Request) ToTask() (*model.Task, error) {
	taskType, err := model.ParseTaskType(r.Task)
	if err != nil {
		return nil, err
	}
	task := &model.Task{ID: r.TaskID, Type: taskType, Target: r.Target, Labels: r.Labels}
	if len(r.Features) > 0 {
		cols := len(r.Features[0])
		task.Features = mat.NewDense(len(r.Features), cols, nil)
		for i, row := range r.Features {
			if len(row) != cols {
				return nil, errors.NewValidationError("features",
					fmt.Sprintf("row %d has %d columns, expected %d", i, len(row), cols), len(row))
			}
			task.Features.SetRow(i, row)
		}
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// LoadTask reads a task in request form from path. Config and output are ignored.
func LoadTask(path string) (*model.Task, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "oobcurve: read task %s", path)
	}
	var r Request
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errors.Wrapf(err, "oobcurve: decode task %s", path)
	}
	return r.ToTask()
}

func (e *Exec) args(request, output string) []string {
	substituted := false
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		if strings.Contains(a, RequestPlaceholder) || strings.Contains(a, OutputPlaceholder) {
			substituted = true
		}
		a = strings.ReplaceAll(a, RequestPlaceholder, request)
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, output)
	}
	if !substituted {
		args = append(args, request, output)
	}
	return args
}

// Train writes the request, runs the command and loads the ensemble dump it produced.
// A dump without a truth field is completed from task.
func (e *Exec) Train(ctx context.Context, task *model.Task, cfg model.TrainConfig) (model.Ensemble, error) {
	if e.Command == "" {
		return nil, errors.NewValidationError("command", "trainer command must not be empty", e.Command)
	}
	logger := e.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("trainer")
	}

	dir, err := os.MkdirTemp(e.WorkDir, "oobcurve-train-")
	if err != nil {
		return nil, errors.Wrap(err, "oobcurve: create trainer work dir")
	}
	if !e.KeepFiles {
		defer os.RemoveAll(dir)
	}

	requestPath := filepath.Join(dir, "request.json")
	outputPath := filepath.Join(dir, "ensemble.json")
	raw, err := json.Marshal(NewRequest(task, cfg, outputPath))
	if err != nil {
		return nil, errors.Wrap(err, "oobcurve: encode trainer request")
	}
	if err := os.WriteFile(requestPath, raw, 0o644); err != nil {
		return nil, errors.Wrap(err, "oobcurve: write trainer request")
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Command, e.args(requestPath, outputPath)...)
	cmd.Dir = dir
	cmd.Stdout = e.Stdout
	cmd.Stderr = &stderr

	logger.Debug("running trainer",
		log.OperationKey, log.OperationTrain,
		"trainer.command", e.Command,
		log.TreesKey, cfg.NumTrees,
	)
	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "oobcurve: trainer %s failed: %s", e.Command, tail(stderr.String(), 512))
	}
	logger.Debug("trainer finished", log.DurationMsKey, time.Since(start).Milliseconds())

	f, err := os.Open(outputPath)
	if err != nil {
		return nil, errors.Wrapf(err, "oobcurve: trainer %s wrote no ensemble", e.Command)
	}
	defer f.Close()
	d, err := ensemble.DecodeJSON(f)
	if err != nil {
		return nil, err
	}
	if d.Task == "" {
		d.Task = task.Type.String()
	}
	if !d.HasTruth() {
		truth := any(task.Target)
		if task.Type == model.Classification {
			truth = task.Labels
		}
		if d.Truth, err = json.Marshal(truth); err != nil {
			return nil, errors.Wrap(err, "oobcurve: encode truth")
		}
	}
	ens, _, err := d.Build()
	if err != nil {
		return nil, err
	}
	if ens.TaskType() != task.Type {
		return nil, errors.NewValueError("trainer.Train",
			fmt.Sprintf("trainer returned a %s ensemble for a %s task", ens.TaskType(), task.Type))
	}
	return ens, nil
}

// tail returns the last n bytes of s, trimmed.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
