package benchmark

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"slices"

	"github.com/nathantp/psrs/pkg/config"
	"github.com/nathantp/psrs/pkg/data"
	"github.com/nathantp/psrs/pkg/psrs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Sorts input with nproc ranks, reporting progress to obs. The local and the
// multi-process drivers both fit this.
type Sorter func(ctx context.Context, input []int64, nproc int, obs psrs.Observer) ([]int64, error)

type Case struct {
	Dist  data.Distribution
	NElem int
	Procs int
}

func (self Case) String() string {
	return fmt.Sprintf("%v/n=%v/p=%v", self.Dist, self.NElem, self.Procs)
}

type CaseStats struct {
	Case
	Stats SortStats

	// MaxOverMean of every repetition
	Imbalance []float64
}

// Time one sort of input and check its output. The input is not modified.
func BenchOne(ctx context.Context, sorter Sorter, input []int64, nproc int, stats *CaseStats) error {
	obs := NewPhaseObserver()

	TTotal := stats.Stats.Timer("TTotal")
	TTotal.Start()
	out, err := sorter(ctx, input, nproc, obs)
	TTotal.Record()
	if err != nil {
		return err
	}

	runLens := obs.Finish(stats.Stats, nproc)
	stats.Imbalance = append(stats.Imbalance, RunBalance(runLens).MaxOverMean)

	if err := psrs.CheckSort(input, out); err != nil {
		return errors.Wrap(err, "Sort returned wrong output")
	}
	return nil
}

// This runs manual benchmarks (not managed by Go's benchmarking tool) over
// every size, distribution and process count in cfg. Even if an error is
// returned, the returned stats contain valid results up until the error.
func RunBenchmarks(ctx context.Context, cfg config.BenchConfig, sorter Sorter, logger logrus.FieldLogger) ([]*CaseStats, error) {
	var results []*CaseStats

	for _, distName := range cfg.Dists {
		dist, err := data.ParseDistribution(distName)
		if err != nil {
			return results, err
		}

		for _, nElem := range cfg.Sizes {
			input, err := data.Generate(dist, nElem, cfg.Seed)
			if err != nil {
				return results, errors.Wrap(err, "Failed to generate inputs")
			}

			for _, nproc := range cfg.Procs {
				cs := &CaseStats{Case: Case{Dist: dist, NElem: nElem, Procs: nproc}, Stats: make(SortStats)}
				results = append(results, cs)

				for i := 0; i < cfg.Repeat; i++ {
					logger.WithFields(logrus.Fields{"case": cs.Case.String(), "iter": i}).Info("Benchmarking")
					if err := BenchOne(ctx, sorter, input, nproc, cs); err != nil {
						return results, errors.Wrapf(err, "Failed to benchmark %v", cs.Case)
					}
					runtime.GC()
				}
			}
		}
	}
	return results, nil
}

func ReportCases(cases []*CaseStats, writer io.Writer) {
	for _, cs := range cases {
		fmt.Fprintf(writer, "== %v\n", cs.Case)
		ReportStats(cs.Stats, writer)
		if len(cs.Imbalance) != 0 {
			fmt.Fprintf(writer, "Imbalance (mean max/mean):\t%v\n", stat.Mean(cs.Imbalance, nil))
			fmt.Fprintf(writer, "Imbalance (worst max/mean):\t%v\n", slices.Max(cs.Imbalance))
		}
	}
}
