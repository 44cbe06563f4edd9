package launch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nathantp/psrs/pkg/comm"
	"github.com/nathantp/psrs/pkg/data"
	"github.com/nathantp/psrs/pkg/psrs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Collects what a worker reports back about its own rank
type workerObserver struct {
	mu     sync.Mutex
	phases []int64
	runLen int
}

func (self *workerObserver) PhaseDone(rank int, phase psrs.Phase, elapsed time.Duration) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.phases[phase] += (int64)(elapsed)
}

func (self *workerObserver) RunDone(rank int, runLen int) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.runLen = runLen
}

func fetchInput(refs []*FilePartRef) ([]int64, error) {
	localRefs := make([]*data.PartRef, len(refs))
	for i, ref := range refs {
		var err error
		localRefs[i], err = LoadFilePartRef(ref)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad input ref %v", i)
		}
	}
	return data.FetchPartRefs(localRefs)
}

// Write a run to partition part of the file array at path
func saveToArray(path string, part int, vals []int64) error {
	arr, err := data.OpenFileDistribArray(path)
	if err != nil {
		return err
	}
	defer arr.Close()
	return data.WritePart(arr, part, vals)
}

// RunWorker runs one rank of a network sort. Failures are reported in the
// response rather than returned.
func RunWorker(ctx context.Context, arg *WorkerArg, logger logrus.FieldLogger) *WorkerResp {
	resp := &WorkerResp{Rank: arg.Rank}
	if err := runWorker(ctx, arg, logger, resp); err != nil {
		resp.Err = err.Error()
		return resp
	}
	resp.Success = true
	return resp
}

func runWorker(ctx context.Context, arg *WorkerArg, logger logrus.FieldLogger, resp *WorkerResp) error {
	log := logger.WithField("rank", arg.Rank)

	var input []int64
	if arg.Rank == psrs.Coordinator {
		var err error
		input, err = fetchInput(arg.Input)
		if err != nil {
			return errors.Wrap(err, "Failed to fetch input")
		}
		log.WithField("len", len(input)).Debug("Fetched input")
	}

	c, err := comm.NewNetwork(ctx, comm.NetworkConfig{
		Addrs:          arg.Addrs,
		Rank:           arg.Rank,
		ConnectTimeout: arg.ConnectTimeout,
		Logger:         log,
	})
	if err != nil {
		return errors.Wrap(err, "Failed to join the mesh")
	}
	defer c.Close()

	obs := &workerObserver{phases: make([]int64, len(psrs.Phases))}
	opts := psrs.Options{
		Logger:       log,
		LocalWorkers: arg.LocalWorkers,
		Lockstep:     arg.Lockstep,
		Observer:     obs,
	}
	if arg.RunsDir != "" {
		opts.SaveRun = func(rank int, run []int64) error {
			return saveToArray(arg.RunsDir, rank, run)
		}
	}

	out, err := psrs.Sort(ctx, c, input, opts)
	if err != nil {
		return err
	}

	if arg.Rank == psrs.Coordinator {
		if err := saveToArray(arg.Output, 0, out); err != nil {
			return errors.Wrap(err, "Failed to store output")
		}
	}

	resp.RunLen = obs.runLen
	resp.Phases = obs.phases
	return nil
}

// WorkerMain is the body of a worker process: a JSON WorkerArg on in, a JSON
// WorkerResp on out. Only a malformed argument (or a failed write) is returned
// as an error.
func WorkerMain(ctx context.Context, in io.Reader, out io.Writer, logger *logrus.Logger) error {
	var arg WorkerArg
	if err := json.NewDecoder(in).Decode(&arg); err != nil {
		return errors.Wrap(err, "Couldn't parse worker argument")
	}
	if arg.Rank < 0 || arg.Rank >= len(arg.Addrs) {
		return fmt.Errorf("Rank %v out of range for %v addresses", arg.Rank, len(arg.Addrs))
	}
	if arg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	resp := RunWorker(ctx, &arg, logger)
	if !resp.Success {
		logger.WithField("rank", arg.Rank).Error(resp.Err)
	}

	if err := json.NewEncoder(out).Encode(resp); err != nil {
		return errors.Wrap(err, "Failed to write worker response")
	}
	return nil
}
