// Package config は CLI とサーバーの YAML 設定を読み込み、検証する。
package config

import (
	"bytes"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/curve"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
	"github.com/YuminosukeSato/oobcurve/pkg/log"
	"github.com/YuminosukeSato/oobcurve/sweep"
	"github.com/YuminosukeSato/oobcurve/trainer"
)

// Curve 入力フォーマット
const (
	FormatJSON = "json"
	FormatNPY  = "npy"
)

// DefaultAddr はサーバーの既定の待ち受けアドレス
const DefaultAddr = ":8080"

// Config は設定ファイル全体
type Config struct {
	LogLevel          string       `yaml:"log_level" validate:"oneof=debug info warn error"`
	Measures          []string     `yaml:"measures,omitempty" validate:"dive,required"`
	ParallelThreshold int          `yaml:"parallel_threshold" validate:"gte=0"`
	Workers           int          `yaml:"workers" validate:"gte=0"`
	Curve             CurveConfig  `yaml:"curve"`
	Sweep             SweepConfig  `yaml:"sweep"`
	Server            ServerConfig `yaml:"server"`
}

// CurveConfig は curve サブコマンドの設定
type CurveConfig struct {
	Input  string `yaml:"input"`
	Format string `yaml:"format" validate:"omitempty,oneof=json npy"`
	Output string `yaml:"output"`
	Plot   string `yaml:"plot"`
}

// SweepConfig は sweep サブコマンドの設定
type SweepConfig struct {
	Hyperparameter string            `yaml:"hyperparameter"`
	Points         int               `yaml:"points" validate:"gte=0"`
	Values         []float64         `yaml:"values,omitempty"`
	KeepCurves     bool              `yaml:"keep_curves"`
	Workers        int               `yaml:"workers" validate:"gte=0"`
	Output         string            `yaml:"output"`
	Plot           string            `yaml:"plot"`
	Base           model.TrainConfig `yaml:"base"`
	Trainer        TrainerConfig     `yaml:"trainer"`
}

// TrainerConfig は外部トレーナーコマンドの設定
type TrainerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	WorkDir string   `yaml:"work_dir"`
}

// ServerConfig は serve サブコマンドの設定
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Default は既定値を埋めた設定を返す
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Sweep: SweepConfig{
			Points: 5,
			Base:   model.DefaultTrainConfig(),
		},
		Server: ServerConfig{Addr: DefaultAddr},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load は path の YAML を既定値の上に読み込む。path が空なら既定値を返す
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "oobcurve: open config %s", path)
	}
	defer f.Close()
	return Decode(f)
}

// Decode は r の YAML を既定値の上に読み込み、検証する。未知のキーはエラー
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "oobcurve: read config")
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(raw), yaml.DisallowUnknownField())
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.Wrap(err, "oobcurve: decode config")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は struct タグと学習設定を検証する
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.NewValidationError(fe.Namespace(), "failed on '"+fe.ActualTag()+"' "+fe.Param(), fe.Value())
		}
		return errors.Wrap(err, "oobcurve: validate config")
	}
	return c.Sweep.Base.Validate()
}

// Level は LogLevel を解釈する
func (c *Config) Level() log.Level {
	l, _ := log.ToLogLevel(c.LogLevel)
	return l
}

// WriteYAML は設定を YAML で書き出す
func (c *Config) WriteYAML(w io.Writer) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "oobcurve: encode config")
	}
	_, err = w.Write(raw)
	return errors.Wrap(err, "oobcurve: write config")
}

// CurveOptions は曲線計算のオプションを返す
func (c *Config) CurveOptions() []curve.Option {
	var opts []curve.Option
	if c.Workers > 0 {
		opts = append(opts, curve.WithWorkers(c.Workers))
	}
	if c.ParallelThreshold > 0 {
		opts = append(opts, curve.WithParallelThreshold(c.ParallelThreshold))
	}
	return opts
}

// InputFormat は Curve.Format を返す。未指定なら入力がディレクトリのとき npy、それ以外は json
func (c *Config) InputFormat() string {
	if c.Curve.Format != "" {
		return c.Curve.Format
	}
	if fi, err := os.Stat(c.Curve.Input); err == nil && fi.IsDir() {
		return FormatNPY
	}
	return FormatJSON
}

// SweepConfig はスイープの設定に変換する
func (c *Config) SweepConfig() (sweep.Config, error) {
	h, err := sweep.ParseHyperparameter(c.Sweep.Hyperparameter)
	if err != nil {
		return sweep.Config{}, err
	}
	return sweep.Config{
		Hyperparameter: h,
		Values:         c.Sweep.Values,
		Points:         c.Sweep.Points,
		Base:           c.Sweep.Base,
		Measures:       c.Measures,
		KeepCurves:     c.Sweep.KeepCurves,
		Workers:        c.Sweep.Workers,
	}, nil
}

// Trainer は外部トレーナーを返す
func (c *Config) Trainer() (*trainer.Exec, error) {
	t := c.Sweep.Trainer
	if t.Command == "" {
		return nil, errors.NewValidationError("sweep.trainer.command", "trainer command is required for a sweep", t.Command)
	}
	e := trainer.New(t.Command, t.Args...)
	e.WorkDir = t.WorkDir
	return e, nil
}
