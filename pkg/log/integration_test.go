package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// TestLoggerInterface tests the TestLogger implementation of Logger
func TestLoggerInterface(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationCurve)
	testLogger.Warn("warning message", UndefinedKey, 3)
	testLogger.Error("error message", fmt.Errorf("test error"), MeasureKey, "auc")

	require.NotEmpty(t, buffer.String())
	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		assert.True(t, testLogger.ContainsMessage(msg), msg)
	}
	assert.True(t, testLogger.ContainsField("key1", "value1"))
	assert.True(t, testLogger.ContainsField("number", 42.0))
	assert.True(t, testLogger.ContainsField(ErrAttrKey, "test error"))
	assert.True(t, testLogger.ContainsField(MeasureKey, "auc"))
}

func TestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	curveLogger := testLogger.With(ComponentKey, "curve", TaskKey, "classification")
	curveLogger.Info("curve computed", TreesKey, 500)

	assert.True(t, testLogger.ContainsField(ComponentKey, "curve"))
	assert.True(t, testLogger.ContainsField(TaskKey, "classification"))
	assert.True(t, testLogger.ContainsField(TreesKey, 500.0))
}

func TestLoggerEnabled(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	ctx := context.Background()

	assert.True(t, testLogger.Enabled(ctx, LevelInfo))
	assert.True(t, testLogger.Enabled(ctx, LevelError))
	assert.False(t, testLogger.Enabled(ctx, LevelDebug))

	testLogger.Debug("this should not appear")
	testLogger.Info("this should appear")
	assert.False(t, testLogger.ContainsMessage("this should not appear"))
	assert.True(t, testLogger.ContainsMessage("this should appear"))
}

func TestLoggerProviderIntegration(t *testing.T) {
	provider, buffer := NewTestLoggerProvider(LevelDebug)

	provider.GetLogger().Info("provider test message")
	provider.GetLoggerWithName("sweep").Info("named logger message")

	out := buffer.String()
	assert.Contains(t, out, "provider test message")
	assert.Contains(t, out, "named logger message")
	assert.Contains(t, out, `"oob.component":"sweep"`)

	provider.SetLevel(LevelError)
	provider.GetLogger().Info("suppressed")
	assert.NotContains(t, buffer.String(), "suppressed")
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo).With(ComponentKey, "sweep")

	logger.Debug("hidden")
	logger.Info("grid point finished",
		GridIndexKey, 2,
		GridValueKey, 0.5,
		MeasuresKey, []string{"mmce", "auc"},
	)
	logger.Error("sweep aborted", errors.NewTrainingError("mtry", 3, errors.New("exit status 2")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "info", first["level"])
	assert.Equal(t, "sweep", first[ComponentKey])
	assert.Equal(t, 2.0, first[GridIndexKey])
	assert.Equal(t, 0.5, first[GridValueKey])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "error", second["level"])
	assert.Contains(t, second[ErrAttrKey], "training failed for mtry=3")

	assert.False(t, logger.Enabled(context.Background(), LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), LevelWarn))
}

func TestSetLoggerRoutesWarnings(t *testing.T) {
	prev := GetLogger()
	defer func() { SetLogger(prev) }()

	var buf, other bytes.Buffer
	SetLogger(NewZerologLogger(&buf, LevelDebug))
	// 構築だけでは警告の出力先は変わらない
	_ = NewZerologLogger(&other, LevelDebug)

	errors.Warn(errors.NewUndefinedMetricWarning("auc", "only one class in truth", 0.5))
	assert.Contains(t, buf.String(), `"type":"UndefinedMetricWarning"`)
	assert.Contains(t, buf.String(), `"metric":"auc"`)
	assert.Empty(t, other.String())

	t.Run("console backend", func(t *testing.T) {
		var console bytes.Buffer
		SetLogger(NewConsoleLogger(&console, LevelInfo))
		errors.Warn(errors.NewUndefinedMetricWarning("rsq", "constant truth", 0))
		assert.Contains(t, console.String(), "rsq")
	})

	t.Run("non-zerolog backend", func(t *testing.T) {
		logger, _ := NewTestLogger(LevelDebug)
		SetLogger(logger)
		errors.Warn(errors.NewUndefinedMetricWarning("mse", "undefined predictions", 0))
		assert.True(t, logger.ContainsMessage(errors.NewUndefinedMetricWarning("mse", "undefined predictions", 0).Error()))
	})
}

func TestSlogLoggerStacktrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(&buf, LevelInfo)

	logger.Error("adapter failed", errors.NewMissingBookkeepingError("regression", ""))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["severity"])
	assert.Equal(t, "adapter failed", entry["message"])
	assert.NotEmpty(t, entry[StacktraceAttrKey])
	assert.Equal(t, "MissingBookkeepingError", entry[ErrorTypeKey])
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.NewTrainingError("mtry", 2, errors.NewMeasureEvaluationError("auc", 1, errors.New("x"))), "TrainingError"},
		{errors.NewMeasureEvaluationError("auc", 3, errors.New("x")), "MeasureEvaluationError"},
		{errors.Wrap(errors.NewUnsupportedModelError("svm"), "adapt"), "UnsupportedModelError"},
		{errors.NewUnsupportedTaskTypeError("survival"), "UnsupportedTaskTypeError"},
		{errors.NewDimensionError("op", 3, 2, 0), "DimensionError"},
		{errors.NewValidationError("points", "must be at least 1", 0), "ValidationError"},
		{errors.NewValueError("op", "bad"), "ValueError"},
		{errors.NewPanicError("measure", "boom"), "PanicError"},
		{errors.New("plain"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorType(tt.err))
		})
	}
}

func TestToLogLevel(t *testing.T) {
	for name, want := range map[string]Level{"debug": LevelDebug, "info": LevelInfo, "warn": LevelWarn, "error": LevelError} {
		got, err := ToLogLevel(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ToLogLevel("verbose")
	assert.Error(t, err)
}

func TestConcurrentLogging(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	const workers, perWorker = 4, 5
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			l := testLogger.With(GridIndexKey, id)
			for j := 0; j < perWorker; j++ {
				l.Info(fmt.Sprintf("worker %d message %d", id, j))
			}
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, workers*perWorker)
}

func TestNop(t *testing.T) {
	l := Nop().With("k", "v")
	l.Info("ignored")
	assert.False(t, l.Enabled(context.Background(), LevelError))
}

func BenchmarkZerologLogging(b *testing.B) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message", StepKey, i, UndefinedKey, 0)
	}
}
