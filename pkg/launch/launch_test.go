package launch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nathantp/psrs/pkg/data"
	"github.com/nathantp/psrs/pkg/psrs"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	workerEnv   = "PSRS_LAUNCH_TEST_WORKER"
	failRankEnv = "PSRS_LAUNCH_TEST_FAIL_RANK"
)

// The test binary doubles as the worker binary
func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		os.Exit(testWorker())
	}
	os.Exit(m.Run())
}

func testWorker() int {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// A worker told to fail reports an error without joining the mesh
	if failRank := os.Getenv(failRankEnv); failRank != "" {
		var arg WorkerArg
		if err := json.Unmarshal(raw, &arg); err == nil && strconv.Itoa(arg.Rank) == failRank {
			json.NewEncoder(os.Stdout).Encode(&WorkerResp{Rank: arg.Rank, Err: "Injected failure"})
			return 0
		}
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	if err := WorkerMain(context.Background(), bytes.NewReader(raw), os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func testConfig(procs int) Config {
	return Config{
		Procs:          procs,
		Binary:         os.Args[0],
		Env:            []string{workerEnv + "=1"},
		ConnectTimeout: 10 * time.Second,
	}
}

func runLaunch(t *testing.T, cfg Config, input []int64) (*Result, error) {
	type result struct {
		res *Result
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := Run(context.Background(), cfg, input)
		done <- result{res, err}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-time.After(60 * time.Second):
		t.Fatalf("Timeout")
		return nil, nil
	}
}

func TestLaunchSort(t *testing.T) {
	input := make([]int64, 5001)
	for i := range input {
		input[i] = rand.Int63() - rand.Int63()
	}

	for _, procs := range []int{1, 3} {
		obs := psrs.NewRecordingObserver()
		cfg := testConfig(procs)
		cfg.Observer = obs

		res, err := runLaunch(t, cfg, input)
		require.Nilf(t, err, "Launch with %v processes failed", procs)
		require.Nil(t, psrs.CheckSort(input, res.Output))

		total := 0
		for _, l := range res.RunLens {
			total += l
		}
		require.Equal(t, len(input), total, "Run lengths don't add up")
		for rank := 0; rank < procs; rank++ {
			require.Equal(t, psrs.Phases, obs.Phases[rank], "Phases not reported for rank %v", rank)
			require.Equal(t, res.RunLens[rank], obs.RunLens[rank])
		}
	}
}

func TestLaunchSmall(t *testing.T) {
	res, err := runLaunch(t, testConfig(2), []int64{5, 3, 3, 1, 9, 2, 8, 4})
	require.Nil(t, err)
	require.Equal(t, []int64{1, 2, 3, 3, 4, 5, 8, 9}, res.Output)
	require.Equal(t, []int{4, 4}, res.RunLens)

	res, err = runLaunch(t, testConfig(3), []int64{})
	require.Nil(t, err)
	require.Equal(t, 0, len(res.Output))
}

func TestLaunchRunsDir(t *testing.T) {
	// A stale array with the wrong partition count is replaced
	runsPath := filepath.Join(t.TempDir(), "runs")
	stale, err := data.CreateFileDistribArray(runsPath, 2)
	require.Nil(t, err)
	require.Nil(t, data.WritePart(stale, 1, []int64{-1, -2}))

	input := make([]int64, 900)
	for i := range input {
		input[i] = (int64)((i * 7919) % 1000)
	}

	cfg := testConfig(3)
	cfg.RunsDir = runsPath
	res, err := runLaunch(t, cfg, input)
	require.Nil(t, err)

	runs, err := data.OpenFileDistribArray(runsPath)
	require.Nil(t, err, "Runs array missing")
	shape, err := runs.GetShape()
	require.Nil(t, err)
	require.Equal(t, 3, shape.NPart())
	for rank := 0; rank < 3; rank++ {
		require.Equal(t, res.RunLens[rank], shape.NElem(rank), "Run %v has the wrong size on disk", rank)
	}

	stored, err := data.ReadArray(runs)
	require.Nil(t, err)
	require.Equal(t, res.Output, stored, "Stored runs don't concatenate to the output")

	// Repeated runs with a different process count replace the runs again
	cfg = testConfig(2)
	cfg.RunsDir = runsPath
	for i := 0; i < 2; i++ {
		res, err = runLaunch(t, cfg, input)
		require.Nil(t, err)
	}
	runs, err = data.OpenFileDistribArray(runsPath)
	require.Nil(t, err)
	stored, err = data.ReadArray(runs)
	require.Nil(t, err)
	require.Equal(t, res.Output, stored, "Runs appended across launches")
}

func TestLaunchWorkerFailure(t *testing.T) {
	// One failing rank takes down the ranks waiting for it
	cfg := testConfig(3)
	cfg.Env = append(cfg.Env, failRankEnv+"=1")
	_, err := runLaunch(t, cfg, []int64{3, 2, 1})
	require.NotNil(t, err, "Worker failure was not reported")
	require.Contains(t, err.Error(), "Injected failure")

	// Runs array that can't be created: nothing is launched
	notDir := filepath.Join(t.TempDir(), "file")
	require.Nil(t, os.WriteFile(notDir, []byte("x"), 0644))
	cfg = testConfig(3)
	cfg.RunsDir = filepath.Join(notDir, "runs")
	_, err = runLaunch(t, cfg, []int64{3, 2, 1})
	require.NotNil(t, err, "Bad runs array accepted")

	cfg = testConfig(2)
	cfg.Binary = filepath.Join(t.TempDir(), "no-such-binary")
	_, err = runLaunch(t, cfg, []int64{1})
	require.NotNil(t, err, "Missing worker binary was not reported")

	_, err = Run(context.Background(), testConfig(0), nil)
	require.True(t, psrs.IsConfigurationError(err))
}

func TestFilePartRef(t *testing.T) {
	origRootPath := filepath.Join(t.TempDir(), "TestFilePartRef")

	arr, err := data.CreateFileDistribArray(origRootPath, 2)
	require.Nilf(t, err, "Failed to initialize array: %v", err)
	require.Nil(t, data.WritePart(arr, 1, []int64{10, 20, 30, 40}))

	localRef := &data.PartRef{Arr: arr, PartIdx: 1, Start: 1, NElem: 2}

	workerRef, err := FilePartRefToWorker(localRef)
	require.Nil(t, err, "Failed to convert local PartRef")
	require.Equal(t, arr.RootPath, workerRef.ArrayPath, "Array path not converted")
	require.Equal(t, localRef.PartIdx, workerRef.PartId, "Part ID not converted")
	require.Equal(t, localRef.Start, workerRef.Start, "Start not converted")
	require.Equal(t, localRef.NElem, workerRef.NElem, "NElem not converted")

	vals, err := fetchInput([]*FilePartRef{workerRef})
	require.Nil(t, err)
	require.Equal(t, []int64{20, 30}, vals)

	memArr, err := data.CreateMemDistribArray("TestFilePartRefMem", 1)
	require.Nil(t, err)
	defer memArr.Destroy()
	_, err = FilePartRefToWorker(&data.PartRef{Arr: memArr})
	require.NotNil(t, err, "Memory array can't be passed to a worker")
}

func TestWorkerMainBadArg(t *testing.T) {
	logger := logrus.New()
	out := new(bytes.Buffer)

	err := WorkerMain(context.Background(), strings.NewReader("{not json"), out, logger)
	require.NotNil(t, err, "Malformed argument accepted")

	err = WorkerMain(context.Background(), strings.NewReader(`{"rank": 2, "addrs": ["127.0.0.1:1"]}`), out, logger)
	require.NotNil(t, err, "Out of range rank accepted")
	require.Zero(t, out.Len(), "Response written for a rejected argument")
}
