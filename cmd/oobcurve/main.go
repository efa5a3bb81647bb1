// Command oobcurve computes out-of-bag learning curves for bagged-tree ensembles.
//
// Usage:
//
//	oobcurve curve    -input dump.json -measures mmce,auc -output curve.csv -plot curve.png
//	oobcurve sweep    -data task.json -hyperparameter mtry -points 5 -trainer ./train.sh
//	oobcurve measures -task classification
//	oobcurve serve    -addr :8080
//	oobcurve config
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: oobcurve <command> [flags]

commands:
  curve     compute the OOB learning curve of a trained ensemble dump
  sweep     retrain over a hyperparameter grid and collect final OOB measures
  measures  list the available measures
  serve     serve curve computation over HTTP
  config    print the default configuration as YAML
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "oobcurve: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "curve":
		return runCurve(ctx, rest, stdout, stderr)
	case "sweep":
		return runSweep(ctx, rest, stdout, stderr)
	case "measures":
		return runMeasures(rest, stdout, stderr)
	case "serve":
		return runServe(ctx, rest, stderr)
	case "config":
		return runConfig(rest, stdout, stderr)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}
