// Package oobcurve computes out-of-bag (OOB) learning curves for bagged-tree
// ensembles such as random forests.
//
// For every tree count t = 1..T, oobcurve aggregates each sample's predictions over
// the first t trees for which the sample was out-of-bag, and evaluates one or more
// performance measures on those aggregated predictions. The result shows how the
// OOB estimate of generalization performance evolves as trees are added, without
// refitting and without a held-out set.
//
// # Features
//
//   - Classification (majority-vote probabilities) and regression (mean) aggregation
//   - Built-in measures: mmce, acc, auc, brier, logloss, mse, rmse, mae, rsq
//   - User-defined measures through an explicit measure.Registry
//   - Hyperparameter sweeps that retrain through an external trainer command
//   - CSV, JSON, NPY and PNG exports
//   - CLI (cmd/oobcurve) and HTTP server
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//	    "os"
//
//	    "github.com/YuminosukeSato/oobcurve/curve"
//	    "github.com/YuminosukeSato/oobcurve/ensemble"
//	)
//
//	func main() {
//	    e, task, err := ensemble.LoadJSON("forest.json")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    c, err := curve.ComputeEnsemble(context.Background(), e, task, nil, []string{"mmce", "auc"})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    c.WriteCSV(os.Stdout)
//	}
//
// # Undefined values
//
// While few trees have been grown, some samples have not yet been out-of-bag for any
// tree. Their aggregated prediction is NaN, and the built-in measures return NaN for
// such steps. Wrap a measure with measure.IgnoreUndefined to evaluate only the samples
// that are defined.
//
// # Packages
//
//   - core/model: Task, Ensemble and Trainer interfaces
//   - core/parallel: Parallel processing utilities
//   - ensemble: Ensemble adapter and JSON / NPY dumps
//   - oob: Cumulative OOB aggregator
//   - metrics: Evaluation metrics (MSE, MAE, R², misclassification, AUC, Brier)
//   - measure: Measure registry and evaluator
//   - curve: Curve assembler and exports
//   - sweep: Hyperparameter sweep driver
//   - trainer: External trainer command
//   - config, server: YAML configuration and HTTP surface
//
// # Performance
//
// Aggregation is parallelized over samples for datasets with more than 1000 rows
// (see curve.WithParallelThreshold). Sweep grid points are trained concurrently and
// returned in grid order.
package oobcurve
