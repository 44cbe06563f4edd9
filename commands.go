package main

import (
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
	"github.com/spf13/cobra"
)

func newSortCmd(state *cliState) *cobra.Command {
	var (
		output   string
		generate int
		seed     uint64
		format   string
		runsDir  string
	)

	cmd := &cobra.Command{
		Use:   "sort [flags] <input>",
		Short: "Sort a file (or generated data) and write the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.cfg
			flags := cmd.Flags()
			if flags.Changed("output") {
				cfg.Output = output
			}
			if flags.Changed("format") {
				cfg.Format = format
			}
			if flags.Changed("runs-dir") {
				cfg.RunsDir = runsDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			fmtType, err := data.ParseFormat(cfg.Format)
			if err != nil {
				return err
			}

			var input []int64
			switch {
			case flags.Changed("generate"):
				if !flags.Changed("seed") {
					seed = (uint64)(time.Now().UnixNano())
				}
				input, err = data.Generate(data.DistUniform, generate, seed)
			case len(args) == 1:
				input, err = data.LoadInput(args[0], fmtType)
			default:
				return fmt.Errorf("File with data to sort has not been passed")
			}
			if err != nil {
				return err
			}

			res, err := runSort(cmd.Context(), cfg, input, state.logger)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Time taken: %v\n", formatElapsed(res.elapsed))
			return data.StoreOutput(cfg.Output, fmtType, res.output, res.runLens)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", "Where to write the sorted data (default from config, output.txt)")
	f.IntVarP(&generate, "generate", "g", 0, "Sort this many random values instead of reading input")
	f.Uint64Var(&seed, "seed", 0, "Seed for --generate (default: time based)")
	f.StringVar(&format, "format", "", "Input and output format: text or array (default from config)")
	f.StringVar(&runsDir, "runs-dir", "", "Also store each rank's sorted run as a partition of this file array")
	return cmd
}

func newGenCmd(state *cliState) *cobra.Command {
	var (
		n      int
		dist   string
		seed   uint64
		format string
	)

	cmd := &cobra.Command{
		Use:   "gen [flags] <output>",
		Short: "Generate input data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := data.ParseDistribution(dist)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("format") {
				format = state.cfg.Format
			}
			fmtType, err := data.ParseFormat(format)
			if err != nil {
				return err
			}

			vals, err := data.Generate(d, n, seed)
			if err != nil {
				return err
			}
			state.logger.WithField("n", n).WithField("dist", d).Debug("Generated input")
			return data.StoreOutput(args[0], fmtType, vals, nil)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&n, "count", "n", 1000, "Number of values")
	f.StringVar(&dist, "dist", string(data.DistUniform), "Distribution of the values")
	f.Uint64Var(&seed, "seed", 1, "Random seed")
	f.StringVar(&format, "format", "", "Output format: text or array (default from config)")
	return cmd
}

func newCheckCmd(state *cliState) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "check [flags] <input> <output>",
		Short: "Verify that output is the sorted input",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("format") {
				format = state.cfg.Format
			}
			fmtType, err := data.ParseFormat(format)
			if err != nil {
				return err
			}

			orig, err := data.LoadInput(args[0], fmtType)
			if err != nil {
				return errors.Wrap(err, "Couldn't load input")
			}
			sorted, err := data.LoadInput(args[1], fmtType)
			if err != nil {
				return errors.Wrap(err, "Couldn't load output")
			}

			if err := psrs.CheckSort(orig, sorted); err != nil {
				return errors.Wrap(err, "Sorted Wrong")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %v values sorted\n", len(sorted))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Format of both files: text or array (default from config)")
	return cmd
}

func newBenchCmd(state *cliState) *cobra.Command {
	var (
		sizes   []int
		repeat  int
		dists   []string
		procs   []int
		runsDir string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time repeated sorts over sizes, distributions and process counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.cfg
			flags := cmd.Flags()
			if flags.Changed("sizes") {
				cfg.Bench.Sizes = sizes
			}
			if flags.Changed("repeat") {
				cfg.Bench.Repeat = repeat
			}
			if flags.Changed("dists") {
				cfg.Bench.Dists = dists
			}
			if flags.Changed("bench-procs") {
				cfg.Bench.Procs = procs
			}
			if flags.Changed("runs-dir") {
				cfg.RunsDir = runsDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			cases, err := benchmark.RunBenchmarks(cmd.Context(), cfg.Bench, newSorter(cfg, state.logger), state.logger)
			benchmark.ReportCases(cases, cmd.OutOrStdout())
			return err
		},
	}

	f := cmd.Flags()
	f.IntSliceVar(&sizes, "sizes", nil, "Input sizes")
	f.IntVar(&repeat, "repeat", 3, "Repetitions per case")
	f.StringSliceVar(&dists, "dists", nil, "Input distributions")
	f.IntSliceVar(&procs, "bench-procs", nil, "Process counts")
	f.StringVar(&runsDir, "runs-dir", "", "Keep the runs of the latest sort as partitions of this file array")
	return cmd
}

func newWorkerCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run one rank of a websocket sort (started by sort and bench)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return launch.WorkerMain(cmd.Context(), os.Stdin, cmd.OutOrStdout(), state.logger)
		},
	}
}

// Build the benchmark sorter for the configured transport. Either way a
// configured runs directory holds the runs of the latest sort.
func newSorter(cfg *config.Config, logger logrus.FieldLogger) benchmark.Sorter {
	if cfg.Transport == config.TransportWebsocket {
		return benchmark.LaunchSorter(launchConfig(cfg, logger))
	}
	opts := psrs.Options{
		Logger:       logger,
		LocalWorkers: cfg.LocalWorkers,
		Lockstep:     cfg.Lockstep,
	}
	if cfg.RunsDir != "" {
		return benchmark.LocalSorter(opts, data.FileArrayFactory, cfg.RunsDir)
	}
	return benchmark.LocalSorter(opts, nil, "")
}
