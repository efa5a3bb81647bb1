// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// OOB学習曲線の計算で発生するエラーを型付きで表現し、構造化されたエラー情報を提供します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("oobcurve-warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、全ツリーを使ってもOOBにならなかったサンプルが残っている場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	アンサンブル・学習曲線のエラー型
//
// ===========================================================================

// UnsupportedModelError は渡されたアンサンブルの種類が認識できない場合のエラーです。
type UnsupportedModelError struct {
	Kind string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("oobcurve: unsupported model kind %q: expected a classification or regression tree ensemble", e.Kind)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnsupportedModelError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("kind", e.Kind).
		Str("type", "UnsupportedModelError")
}

// NewUnsupportedModelError は新しいUnsupportedModelErrorを作成し、スタックトレースを付与します。
func NewUnsupportedModelError(kind string) error {
	return errors.WithStack(&UnsupportedModelError{Kind: kind})
}

// MissingBookkeepingError は学習時にin-bagカウントが保持されていなかった場合のエラーです。
type MissingBookkeepingError struct {
	Kind   string
	Reason string
}

func (e *MissingBookkeepingError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("oobcurve: %s: in-bag bookkeeping not available: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("oobcurve: %s: in-bag bookkeeping not available; retrain with in-bag tracking enabled", e.Kind)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MissingBookkeepingError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("kind", e.Kind).
		Str("reason", e.Reason).
		Str("type", "MissingBookkeepingError")
}

// NewMissingBookkeepingError は新しいMissingBookkeepingErrorを作成し、スタックトレースを付与します。
func NewMissingBookkeepingError(kind, reason string) error {
	return errors.WithStack(&MissingBookkeepingError{Kind: kind, Reason: reason})
}

// UnsupportedTaskTypeError はタスクが分類でも回帰でもない場合のエラーです。
type UnsupportedTaskTypeError struct {
	Task string
}

func (e *UnsupportedTaskTypeError) Error() string {
	return fmt.Sprintf("oobcurve: unsupported task type %q: expected classification or regression", e.Task)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnsupportedTaskTypeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("task", e.Task).
		Str("type", "UnsupportedTaskTypeError")
}

// NewUnsupportedTaskTypeError は新しいUnsupportedTaskTypeErrorを作成し、スタックトレースを付与します。
func NewUnsupportedTaskTypeError(task string) error {
	return errors.WithStack(&UnsupportedTaskTypeError{Task: task})
}

// MeasureEvaluationError は評価指標が入力を受け付けなかった場合のエラーです。
// Step は対象のツリー数（1始まり）で、ステップに依存しない検証では0になります。
type MeasureEvaluationError struct {
	Measure string
	Step    int
	Err     error
}

func (e *MeasureEvaluationError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("oobcurve: measure %q failed at %d trees: %v", e.Measure, e.Step, e.Err)
	}
	return fmt.Sprintf("oobcurve: measure %q failed: %v", e.Measure, e.Err)
}

func (e *MeasureEvaluationError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MeasureEvaluationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("measure", e.Measure).
		Int("step", e.Step).
		AnErr("cause", e.Err).
		Str("type", "MeasureEvaluationError")
}

// NewMeasureEvaluationError は新しいMeasureEvaluationErrorを作成し、スタックトレースを付与します。
func NewMeasureEvaluationError(measure string, step int, err error) error {
	return errors.WithStack(&MeasureEvaluationError{Measure: measure, Step: step, Err: err})
}

// TrainingError は外部トレーナーがグリッド点の学習に失敗した場合のエラーです。
type TrainingError struct {
	Hyperparameter string
	Value          float64
	Err            error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("oobcurve: training failed for %s=%g: %v", e.Hyperparameter, e.Value, e.Err)
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *TrainingError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("hyperparameter", e.Hyperparameter).
		Float64("value", e.Value).
		AnErr("cause", e.Err).
		Str("type", "TrainingError")
}

// NewTrainingError は新しいTrainingErrorを作成し、スタックトレースを付与します。
func NewTrainingError(hyperparameter string, value float64, err error) error {
	return errors.WithStack(&TrainingError{Hyperparameter: hyperparameter, Value: value, Err: err})
}

// ===========================================================================
//
//	汎用エラー型
//
// ===========================================================================

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0: サンプル, 1: ツリー, 2: クラス
}

func (e *DimensionError) axisName() string {
	switch e.Axis {
	case 0:
		return "samples"
	case 1:
		return "trees"
	default:
		return "classes"
	}
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("oobcurve: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", e.axisName()).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("oobcurve: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("oobcurve: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNoMeasures は評価指標が一つも指定されなかった場合のエラーです。
	ErrNoMeasures = New("no measures requested")
)
