package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nathantp/psrs/pkg/benchmark"
	"github.com/nathantp/psrs/pkg/config"
	"github.com/nathantp/psrs/pkg/data"
	"github.com/nathantp/psrs/pkg/launch"
	"github.com/nathantp/psrs/pkg/psrs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type sortResult struct {
	output  []int64
	runLens []int

	// Protocol only, staging input and output is not counted
	elapsed time.Duration
}

// Time taken in the "Xs Yms Zmcs" form
func formatElapsed(d time.Duration) string {
	us := d.Microseconds()
	return fmt.Sprintf("%vs %vms %vmcs", us/1000000, (us/1000)%1000, us%1000)
}

func launchConfig(cfg *config.Config, logger logrus.FieldLogger) launch.Config {
	return launch.Config{
		Procs:          cfg.Procs,
		ConnectTimeout: cfg.ConnectTimeout,
		LocalWorkers:   cfg.LocalWorkers,
		Lockstep:       cfg.Lockstep,
		Verbose:        cfg.Verbose,
		RunsDir:        cfg.RunsDir,
		Stderr:         os.Stderr,
		Logger:         logger,
	}
}

// Name of the in-memory runs array used when no runs directory is set
const scratchRuns = "psrsRuns"

// Where in-process ranks store their runs: the configured runs directory, or
// an in-memory array that only lives for one sort
func runStore(cfg *config.Config) (*data.ArrayFactory, string) {
	if cfg.RunsDir != "" {
		return data.FileArrayFactory, cfg.RunsDir
	}
	return data.MemArrayFactory, scratchRuns
}

// Sort input with the transport cfg asks for
func runSort(ctx context.Context, cfg *config.Config, input []int64, logger logrus.FieldLogger) (*sortResult, error) {
	if cfg.Transport == config.TransportWebsocket {
		start := time.Now()
		res, err := launch.Run(ctx, launchConfig(cfg, logger), input)
		if err != nil {
			return nil, err
		}
		return &sortResult{output: res.Output, runLens: res.RunLens, elapsed: time.Since(start)}, nil
	}

	factory, name := runStore(cfg)
	runs, err := data.RecreateArray(factory, name, cfg.Procs)
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't prepare runs array")
	}
	defer runs.Close()
	if cfg.RunsDir == "" {
		defer runs.Destroy()
	}

	opts := psrs.Options{
		Logger:       logger,
		LocalWorkers: cfg.LocalWorkers,
		Lockstep:     cfg.Lockstep,
		SaveRun: func(rank int, run []int64) error {
			return data.WritePart(runs, rank, run)
		},
	}

	start := time.Now()
	out, err := psrs.SortLocal(ctx, input, cfg.Procs, opts)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	runLens, err := data.PartLens(runs)
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't read run lengths")
	}
	logger.WithFields(logrus.Fields{"runs": runLens, "imbalance": benchmark.RunBalance(runLens).MaxOverMean}).Debug("Sort finished")
	return &sortResult{output: out, runLens: runLens, elapsed: elapsed}, nil
}
