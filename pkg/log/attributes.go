// Package log defines standard attribute keys for OOB curve and sweep logging.
//
// Keys follow a hierarchical naming convention ("data.samples", "sweep.value") so
// that log lines from the aggregator, the curve assembler and the sweep driver can
// be filtered together.

package log

// Operation context
const (
	// ComponentKey identifies the package emitting the record.
	// Examples: "ensemble", "curve", "sweep", "server"
	ComponentKey = "oob.component"

	// OperationKey specifies the operation being performed.
	// Standard values: OperationAdapt, OperationCurve, OperationSweep, OperationTrain
	OperationKey = "oob.operation"

	// TaskKey records the task type ("classification" or "regression").
	TaskKey = "oob.task"

	// TaskIDKey records a caller supplied task identifier.
	TaskIDKey = "oob.task_id"
)

// Data shape
const (
	// SamplesKey indicates the number of samples (rows of the in-bag matrix).
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features of the task.
	FeaturesKey = "data.features"

	// TreesKey indicates the number of trees in the ensemble.
	TreesKey = "data.trees"

	// ClassesKey indicates the number of class levels for classification.
	ClassesKey = "data.classes"
)

// Curve progress
const (
	// StepKey records the tree-count step (1-based).
	StepKey = "curve.step"

	// MeasureKey records a measure identifier.
	MeasureKey = "curve.measure"

	// MeasuresKey records the list of requested measure identifiers.
	MeasuresKey = "curve.measures"

	// UndefinedKey records how many samples had no out-of-bag tree at a step.
	UndefinedKey = "curve.undefined"

	// FirstDefinedKey records the first step at which every sample was out-of-bag at least once.
	FirstDefinedKey = "curve.first_defined"
)

// Sweep progress
const (
	// HyperparamKey records the swept hyperparameter name.
	HyperparamKey = "sweep.hyperparameter"

	// GridValueKey records the hyperparameter value of a grid point.
	GridValueKey = "sweep.value"

	// GridIndexKey records the 0-based index of a grid point.
	GridIndexKey = "sweep.index"

	// GridSizeKey records the number of grid points.
	GridSizeKey = "sweep.size"

	// WorkersKey records the worker pool size.
	WorkersKey = "sweep.workers"
)

// Performance
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Error context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey provides a hint for resolving the issue.
	SuggestionKey = "error.suggestion"
)

// Standard attribute values.
const (
	OperationAdapt = "adapt"
	OperationCurve = "curve"
	OperationSweep = "sweep"
	OperationTrain = "train"
	OperationServe = "serve"
)
