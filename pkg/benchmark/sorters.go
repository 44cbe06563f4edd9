package benchmark

import (
	"context"

	"github.com/nathantp/psrs/pkg/data"
	"github.com/nathantp/psrs/pkg/launch"
	"github.com/nathantp/psrs/pkg/psrs"
)

// Sort with in-process ranks. opts.Observer is replaced for every sort. If
// runs is non-nil every sort also stores each rank's run in a fresh array
// called runsName, replacing the previous sort's.
func LocalSorter(opts psrs.Options, runs *data.ArrayFactory, runsName string) Sorter {
	return func(ctx context.Context, input []int64, nproc int, obs psrs.Observer) ([]int64, error) {
		opts := opts
		opts.Observer = obs

		if runs != nil {
			arr, err := data.RecreateArray(runs, runsName, nproc)
			if err != nil {
				return nil, err
			}
			defer arr.Close()
			opts.SaveRun = func(rank int, run []int64) error {
				return data.WritePart(arr, rank, run)
			}
		}
		return psrs.SortLocal(ctx, input, nproc, opts)
	}
}

// Sort with one worker process per rank. cfg.Procs and cfg.Observer are
// replaced for every sort.
func LaunchSorter(cfg launch.Config) Sorter {
	return func(ctx context.Context, input []int64, nproc int, obs psrs.Observer) ([]int64, error) {
		cfg := cfg
		cfg.Procs = nproc
		cfg.Observer = obs
		res, err := launch.Run(ctx, cfg, input)
		if err != nil {
			return nil, err
		}
		return res.Output, nil
	}
}
