// Package launch runs a network sort as a group of local worker processes.
// The launching process starts one copy of a worker binary per rank, hands
// each its WorkerArg as JSON on stdin and reads a WorkerResp back from stdout.
// Bulk data never goes through the pipes: input and output travel as file
// arrays in a scratch directory.
package launch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/nathantp/psrs/pkg/data"
	"github.com/nathantp/psrs/pkg/psrs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Procs int

	// Worker binary and its arguments. Defaults to this executable with the
	// single argument "worker".
	Binary string
	Args   []string

	// Extra environment for the workers
	Env []string

	ConnectTimeout time.Duration
	LocalWorkers   int
	Lockstep       bool
	Verbose        bool

	// File array to store every rank's run in, one partition per rank. It is
	// recreated for every Run.
	RunsDir string

	// Worker stderr is copied here. Nil discards it.
	Stderr io.Writer

	Logger   logrus.FieldLogger
	Observer psrs.Observer
}

type Result struct {
	Output  []int64
	RunLens []int
}

// Reserve a loopback address per rank. The ports are released again before
// the workers bind them, so another process could grab one in between; the
// affected worker then fails to listen and the whole launch fails.
func loopbackAddrs(n int) ([]string, error) {
	addrs := make([]string, n)
	for i := 0; i < n; i++ {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, errors.Wrap(err, "Failed to reserve a loopback port")
		}
		addrs[i] = lis.Addr().String()
		lis.Close()
	}
	return addrs, nil
}

// Run sorts input with cfg.Procs worker processes talking over websockets.
// The first worker to fail kills all the others.
func Run(ctx context.Context, cfg Config, input []int64) (*Result, error) {
	if cfg.Procs < 1 {
		return nil, &psrs.ConfigurationError{Reason: fmt.Sprintf("process count must be at least 1, got %v", cfg.Procs)}
	}

	logger := cfg.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}

	binary := cfg.Binary
	args := cfg.Args
	if binary == "" {
		var err error
		binary, err = os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "Couldn't locate own executable")
		}
		args = []string{"worker"}
	}

	scratch, err := os.MkdirTemp("", "psrsLaunch")
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't create scratch directory")
	}
	defer os.RemoveAll(scratch)

	inArr, err := data.CreateFileDistribArray(filepath.Join(scratch, "input"), 1)
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't create input array")
	}
	if err := data.WritePart(inArr, 0, input); err != nil {
		return nil, errors.Wrap(err, "Couldn't stage input")
	}
	inRef, err := FilePartRefToWorker(&data.PartRef{Arr: inArr, PartIdx: 0, Start: 0, NElem: len(input)})
	if err != nil {
		return nil, err
	}

	outArr, err := data.CreateFileDistribArray(filepath.Join(scratch, "output"), 1)
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't create output array")
	}

	if cfg.RunsDir != "" {
		runs, err := data.RecreateArray(data.FileArrayFactory, cfg.RunsDir, cfg.Procs)
		if err != nil {
			return nil, errors.Wrap(err, "Couldn't prepare runs array")
		}
		runs.Close()
	}

	addrs, err := loopbackAddrs(cfg.Procs)
	if err != nil {
		return nil, err
	}
	logger.WithField("addrs", addrs).Debug("Launching workers")

	resps := make([]*WorkerResp, cfg.Procs)
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < cfg.Procs; rank++ {
		arg := &WorkerArg{
			Rank:           rank,
			Addrs:          addrs,
			ConnectTimeout: cfg.ConnectTimeout,
			LocalWorkers:   cfg.LocalWorkers,
			Lockstep:       cfg.Lockstep,
			Verbose:        cfg.Verbose,
			RunsDir:        cfg.RunsDir,
		}
		if rank == psrs.Coordinator {
			arg.Input = []*FilePartRef{inRef}
			arg.Output = outArr.RootPath
		}

		g.Go(func() error {
			resp, err := invokeWorker(gctx, binary, args, cfg.Env, cfg.Stderr, arg)
			if err != nil {
				return errors.Wrapf(err, "Worker %v failed", arg.Rank)
			}
			resps[arg.Rank] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out, err := data.ReadArray(outArr)
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't read sorted output")
	}

	res := &Result{Output: out, RunLens: make([]int, cfg.Procs)}
	for rank, resp := range resps {
		res.RunLens[rank] = resp.RunLen
		if cfg.Observer != nil {
			for phase, ns := range resp.Phases {
				cfg.Observer.PhaseDone(rank, (psrs.Phase)(phase), (time.Duration)(ns))
			}
			cfg.Observer.RunDone(rank, resp.RunLen)
		}
	}
	return res, nil
}

// Run one worker process to completion. The process is killed if ctx is
// cancelled.
func invokeWorker(ctx context.Context, binary string, args []string, env []string,
	stderr io.Writer, arg *WorkerArg) (*WorkerResp, error) {

	jsonArg, err := json.Marshal(arg)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to marshal worker argument")
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdin = bytes.NewReader(jsonArg)

	// Keep the tail of stderr for error reports
	errBuf := new(bytes.Buffer)
	if stderr != nil {
		cmd.Stderr = io.MultiWriter(stderr, errBuf)
	} else {
		cmd.Stderr = errBuf
	}

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "Worker killed")
		}
		return nil, errors.Wrapf(err, "Worker exited abnormally: %s", tail(errBuf.Bytes(), 512))
	}

	var resp WorkerResp
	err = json.Unmarshal(out, &resp)
	if err != nil {
		return nil, errors.Wrapf(err, "Couldn't parse worker response: %q", out)
	}

	if !resp.Success {
		return nil, fmt.Errorf("Remote worker error: %v", resp.Err)
	}
	return &resp, nil
}

func tail(b []byte, n int) []byte {
	if len(b) > n {
		return b[len(b)-n:]
	}
	return b
}
