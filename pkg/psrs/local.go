package psrs

import (
	"context"
	"math"
	"runtime"
	"slices"

	psort "github.com/exascience/pargo/sort"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Buffers shorter than twice this are sorted sequentially
const minParallelChunk = 1 << 14

// Sample value used by ranks that own no data. It sorts after every real
// value so empty ranks only push pivots upwards.
const EmptySample = math.MaxInt64

// All ranks in a process share one pool of sort workers, otherwise P
// in-process ranks with W workers each would oversubscribe the CPU P times.
type workerReserver struct {
	sem  *semaphore.Weighted
	size int
}

func newWorkerReserver(size int) *workerReserver {
	return &workerReserver{semaphore.NewWeighted((int64)(size)), size}
}

// Reserve up to n workers, never more than the pool holds. Returns how many
// were reserved.
func (self *workerReserver) reserve(ctx context.Context, n int) (int, error) {
	n = min(n, self.size)
	if err := self.sem.Acquire(ctx, (int64)(n)); err != nil {
		return 0, err
	}
	return n, nil
}

func (self *workerReserver) release(n int) {
	self.sem.Release((int64)(n))
}

var sortWorkers = newWorkerReserver(runtime.GOMAXPROCS(0))

// Adapts []int64 to the parallel sorter
type int64Slice []int64

func (s int64Slice) SequentialSort(i, j int) {
	slices.Sort(s[i:j])
}

func (s int64Slice) Len() int {
	return len(s)
}

func (s int64Slice) Less(i, j int) bool {
	return s[i] < s[j]
}

func (s int64Slice) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

// LocalSort sorts buf in place, ascending. With workers > 1 large buffers are
// sorted with a parallel quicksort while holding that many slots of the
// process-wide worker pool; the result is identical to the sequential sort.
func LocalSort(ctx context.Context, buf []int64, workers int) error {
	if workers <= 1 || len(buf) < 2*minParallelChunk {
		slices.Sort(buf)
		return nil
	}

	n, err := sortWorkers.reserve(ctx, workers)
	if err != nil {
		return errors.Wrap(err, "Failed to reserve sort workers")
	}
	defer sortWorkers.release(n)

	psort.Sort(int64Slice(buf))
	return nil
}

// RegularSamples picks p samples from the ascending slice sorted, at
// positions floor(k*L/p) for k = 0..p-1. Short inputs produce repeated
// samples. An empty input yields p copies of EmptySample because every rank
// must contribute exactly p values to the gather.
func RegularSamples(sorted []int64, p int) []int64 {
	samples := make([]int64, p)
	l := len(sorted)
	if l == 0 {
		for k := range samples {
			samples[k] = EmptySample
		}
		return samples
	}

	for k := 0; k < p; k++ {
		idx := (int64)(k) * (int64)(l) / (int64)(p)
		samples[k] = sorted[idx]
	}
	return samples
}
