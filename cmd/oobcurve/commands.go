package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/oobcurve/config"
	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/curve"
	"github.com/YuminosukeSato/oobcurve/ensemble"
	"github.com/YuminosukeSato/oobcurve/measure"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
	"github.com/YuminosukeSato/oobcurve/pkg/log"
	"github.com/YuminosukeSato/oobcurve/server"
	"github.com/YuminosukeSato/oobcurve/sweep"
	"github.com/YuminosukeSato/oobcurve/trainer"
)

var errUsage = errors.New("missing command")

// common holds the flags shared by every sub-command.
type common struct {
	configPath string
	logLevel   string
	measures   string
	workers    int
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug|info|warn|error")
	fs.StringVar(&c.measures, "measures", "", "comma separated measure ids (default per task)")
	fs.IntVar(&c.workers, "workers", 0, "worker goroutines (0 = number of CPUs)")
}

// load reads the config file and applies flag overrides.
func (c *common) load() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.measures != "" {
		cfg.Measures = splitList(c.measures)
	}
	if c.workers > 0 {
		cfg.Workers = c.workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFloats(s string) ([]float64, error) {
	parts := splitList(s)
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, errors.NewValidationError("values", "not a number", p)
		}
		out[i] = v
	}
	return out, nil
}

// setupCLILogger installs a console logger on stderr.
func setupCLILogger(cfg *config.Config, stderr io.Writer) log.Logger {
	logger := log.NewConsoleLogger(stderr, cfg.Level())
	log.SetLogger(logger)
	return logger
}

func loadEnsemble(cfg *config.Config) (model.Ensemble, *model.Task, error) {
	if cfg.Curve.Input == "" {
		return nil, nil, errors.NewValidationError("input", "an ensemble dump is required", "")
	}
	if cfg.InputFormat() == config.FormatNPY {
		return ensemble.LoadNPY(cfg.Curve.Input)
	}
	return ensemble.LoadJSON(cfg.Curve.Input)
}

func runCurve(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		c     common
		final bool
	)
	fs := newFlagSet("curve", stderr)
	c.register(fs)
	input := fs.String("input", "", "ensemble dump: JSON file or NPY directory")
	format := fs.String("format", "", "input format: json|npy (default by input)")
	output := fs.String("output", "", "output file (.csv, .json, .npy, .png); stdout CSV when empty")
	plotPath := fs.String("plot", "", "PNG plot of the curve")
	fs.BoolVar(&final, "final", false, "evaluate only the full ensemble")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := c.load()
	if err != nil {
		return err
	}
	if *input != "" {
		cfg.Curve.Input = *input
	}
	if *format != "" {
		cfg.Curve.Format = *format
	}
	if *output != "" {
		cfg.Curve.Output = *output
	}
	if *plotPath != "" {
		cfg.Curve.Plot = *plotPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := setupCLILogger(cfg, stderr)

	e, task, err := loadEnsemble(cfg)
	if err != nil {
		return err
	}
	opts := append(cfg.CurveOptions(), curve.WithLogger(logger))
	reg := measure.Builtins()

	if final {
		values, err := curve.FinalEnsemble(ctx, e, task, reg, cfg.Measures, opts...)
		if err != nil {
			return err
		}
		ids := cfg.Measures
		if len(ids) == 0 {
			ids = measure.DefaultIDs(task.Type)
		}
		for j, id := range ids {
			fmt.Fprintf(stdout, "%s\t%s\n", id, curve.FormatValue(values[j]))
		}
		return nil
	}

	cur, err := curve.ComputeEnsemble(ctx, e, task, reg, cfg.Measures, opts...)
	if err != nil {
		return err
	}
	if cfg.Curve.Output == "" {
		if err := cur.WriteCSV(stdout); err != nil {
			return err
		}
	} else if err := cur.Save(cfg.Curve.Output); err != nil {
		return err
	}
	if cfg.Curve.Plot != "" {
		title := "OOB learning curve"
		if task.ID != "" {
			title += ": " + task.ID
		}
		if err := cur.SavePlot(cfg.Curve.Plot, title); err != nil {
			return err
		}
	}
	return nil
}

func runSweep(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var c common
	fs := newFlagSet("sweep", stderr)
	c.register(fs)
	data := fs.String("data", "", "task JSON (task, features, target or labels)")
	hyper := fs.String("hyperparameter", "", "feature_subset_size|subsample_fraction|min_leaf_size")
	points := fs.Int("points", 0, "number of equally spaced grid points")
	values := fs.String("values", "", "comma separated explicit grid values")
	numTrees := fs.Int("num-trees", 0, "trees per ensemble")
	keepCurves := fs.Bool("keep-curves", false, "keep the full curve of every grid point")
	sweepWorkers := fs.Int("sweep-workers", 0, "grid points trained concurrently")
	command := fs.String("trainer", "", "external trainer command")
	trainerArgs := fs.String("trainer-args", "", "space separated trainer arguments; {request} and {output} are substituted")
	output := fs.String("output", "", "output file (.csv, .json, .png); stdout CSV when empty")
	plotPath := fs.String("plot", "", "PNG plot of value against measures")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := c.load()
	if err != nil {
		return err
	}
	if *hyper != "" {
		cfg.Sweep.Hyperparameter = *hyper
	}
	if *points > 0 {
		cfg.Sweep.Points = *points
	}
	if *values != "" {
		if cfg.Sweep.Values, err = parseFloats(*values); err != nil {
			return err
		}
	}
	if *numTrees > 0 {
		cfg.Sweep.Base.NumTrees = *numTrees
	}
	if *keepCurves {
		cfg.Sweep.KeepCurves = true
	}
	if *sweepWorkers > 0 {
		cfg.Sweep.Workers = *sweepWorkers
	}
	if *command != "" {
		cfg.Sweep.Trainer.Command = *command
	}
	if *trainerArgs != "" {
		cfg.Sweep.Trainer.Args = strings.Fields(*trainerArgs)
	}
	if *output != "" {
		cfg.Sweep.Output = *output
	}
	if *plotPath != "" {
		cfg.Sweep.Plot = *plotPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := setupCLILogger(cfg, stderr)

	if *data == "" {
		return errors.NewValidationError("data", "a task file is required", "")
	}
	task, err := trainer.LoadTask(*data)
	if err != nil {
		return err
	}
	sc, err := cfg.SweepConfig()
	if err != nil {
		return err
	}
	tr, err := cfg.Trainer()
	if err != nil {
		return err
	}
	tr.Logger = logger

	res, err := sweep.Run(ctx, tr, task, measure.Builtins(), sc,
		sweep.WithLogger(logger), sweep.WithCurveOptions(cfg.CurveOptions()...))
	if err != nil {
		return err
	}
	if cfg.Sweep.Output == "" {
		if err := res.WriteCSV(stdout); err != nil {
			return err
		}
	} else if err := res.Save(cfg.Sweep.Output); err != nil {
		return err
	}
	if cfg.Sweep.Plot != "" {
		return res.SavePlot(cfg.Sweep.Plot)
	}
	return nil
}

func runMeasures(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("measures", stderr)
	taskName := fs.String("task", "", "classification|regression (default all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reg := measure.Builtins()
	var measures []measure.Measure
	if *taskName != "" {
		task, err := model.ParseTaskType(*taskName)
		if err != nil {
			return err
		}
		measures = reg.ForTask(task)
	} else {
		for _, id := range reg.IDs() {
			m, _ := reg.Get(id)
			measures = append(measures, m)
		}
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTASKS\tMINIMIZE")
	for _, m := range measures {
		tasks := make([]string, len(m.Tasks))
		for i, t := range m.Tasks {
			tasks[i] = t.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", m.ID, m.Name, strings.Join(tasks, ","), m.Minimize)
	}
	return tw.Flush()
}

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	var c common
	fs := newFlagSet("serve", stderr)
	c.register(fs)
	addr := fs.String("addr", "", "listen address (default "+config.DefaultAddr+")")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := c.load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := log.NewZerologLogger(stderr, cfg.Level())
	log.SetLogger(logger)
	if cfg.Level() > log.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	return server.New(measure.Builtins(), logger.With(log.ComponentKey, "server"), cfg.CurveOptions()...).Run(ctx, cfg.Server.Addr)
}

func runConfig(args []string, stdout, stderr io.Writer) error {
	var c common
	fs := newFlagSet("config", stderr)
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := c.load()
	if err != nil {
		return err
	}
	return cfg.WriteYAML(stdout)
}
