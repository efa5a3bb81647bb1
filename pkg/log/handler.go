package log

import (
	"context"
	"log/slog"

	crdb "github.com/cockroachdb/errors"

	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// ErrFmtHandler is a slog handler that enriches records carrying an error under
// ErrAttrKey: the cockroachdb stack trace goes under StacktraceAttrKey and the
// taxonomy type (MissingBookkeepingError, TrainingError, ...) under ErrorTypeKey.
type ErrFmtHandler struct {
	handler slog.Handler
}

// WrapByErrFmtHandler wraps handler with error enrichment.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{handler: handler}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key != ErrAttrKey {
			return true
		}
		err, _ = attr.Value.Any().(error)
		return false
	})
	if err == nil {
		return eh.handler.Handle(ctx, r)
	}
	if kind := ErrorType(err); kind != "" {
		r.AddAttrs(slog.String(ErrorTypeKey, kind))
	}
	if stacktrace := extractStacktrace(err); stacktrace != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, stacktrace))
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g)}
}

// ErrorType names the outermost taxonomy error in err's chain, or "" if none.
// A TrainingError wrapping a MeasureEvaluationError reports TrainingError.
func ErrorType(err error) string {
	var (
		training    *errors.TrainingError
		measure     *errors.MeasureEvaluationError
		model       *errors.UnsupportedModelError
		bookkeeping *errors.MissingBookkeepingError
		task        *errors.UnsupportedTaskTypeError
		dimension   *errors.DimensionError
		validation  *errors.ValidationError
		value       *errors.ValueError
		panicked    *errors.PanicError
	)
	switch {
	case errors.As(err, &training):
		return "TrainingError"
	case errors.As(err, &measure):
		return "MeasureEvaluationError"
	case errors.As(err, &model):
		return "UnsupportedModelError"
	case errors.As(err, &bookkeeping):
		return "MissingBookkeepingError"
	case errors.As(err, &task):
		return "UnsupportedTaskTypeError"
	case errors.As(err, &dimension):
		return "DimensionError"
	case errors.As(err, &validation):
		return "ValidationError"
	case errors.As(err, &value):
		return "ValueError"
	case errors.As(err, &panicked):
		return "PanicError"
	}
	return ""
}

func extractStacktrace(err error) string {
	safeDetails := crdb.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}
