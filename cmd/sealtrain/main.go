// sealtrain trains a model from the training history and installs it into the
// artifact repository, without a running server.
//
// Servers watching the fs repository pick the new model up.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/gommon/log"
	sealparams "github.com/opst/sealparams/pkg"
	bindtraining "github.com/opst/sealparams/pkg/api-types-binding/training"
	"github.com/opst/sealparams/pkg/artifact"
	afs "github.com/opst/sealparams/pkg/artifact/fs"
	"github.com/opst/sealparams/pkg/configs"
	"github.com/opst/sealparams/pkg/serving"
	"github.com/opst/sealparams/pkg/training"
	"github.com/opst/sealparams/pkg/utils/echoutil"
)

func main() {
	pconfig := flag.String(
		"config", os.Getenv("SEALPARAMS_CONFIG"), "path to config file",
	)
	out := flag.String("out", "", "directory to write the model to, instead of the configured repository")
	asJSON := flag.Bool("json", false, "print the result as JSON")
	loglevel := flag.String("loglevel", "", "log level. debug|info|warn|error|off. overrides config")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conf, err := configs.LoadConfig(*pconfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "can not read configuration: %s\n", err)
		os.Exit(1)
	}

	logger := log.New("sealtrain")
	logger.SetOutput(os.Stderr)
	level := conf.LogLevel()
	if *loglevel != "" {
		level = *loglevel
	}
	lvl, _ := echoutil.ParseLevel(level)
	logger.SetLevel(lvl)

	comps, err := sealparams.Attach(ctx, conf, logger)
	if err != nil {
		logger.Fatalf("can not start: %+v", err)
	}

	var repo artifact.Repository = comps.Repository()
	if *out != "" {
		if repo, err = afs.New(*out); err != nil {
			logger.Fatalf("can not prepare %s: %+v", *out, err)
		}
	}

	tctx, tcancel := context.WithTimeout(ctx, conf.Training().Timeout())
	defer tcancel()

	svc := serving.New(comps.Loader(), comps.History(), comps.Pipeline(), repo, serving.WithLogger(logger))
	report, err := svc.Train(tctx)
	comps.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "training failed: %s\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(bindtraining.ComposeResponse(report)); err != nil {
			logger.Fatal(err)
		}
		return
	}
	printReport(os.Stdout, report, conf.Training().EvaluateThreshold())
}

func printReport(w io.Writer, report *training.Report, evaluateThreshold int) {
	fmt.Fprintf(w, "model %s is installed (trained at %s)\n", report.Artifact.Version, report.Artifact.TrainedAt)
	fmt.Fprintf(w, "training samples: %d\n", report.TrainSamples)
	fmt.Fprintf(w, "test samples: %d\n", report.TestSamples)

	if report.Metrics == nil {
		fmt.Fprintf(w, "\nWARNING: less than %d successful attempts are found. The model is not evaluated.\n", evaluateThreshold)
		fmt.Fprintln(w, "         Consider collecting more successful attempts.")
		return
	}

	fmt.Fprintln(w, "\nperformance:")
	fmt.Fprintf(w, "  mean absolute error: %.2f\n", report.Metrics.MAE)
	fmt.Fprintf(w, "  R2 score: %.3f\n", report.Metrics.R2)
	fmt.Fprintln(w, "\nper-parameter MAE:")
	for _, m := range report.Metrics.PerOutput {
		fmt.Fprintf(w, "  %s: %.2f\n", m.Name, m.MAE)
	}
}
