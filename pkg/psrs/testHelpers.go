package psrs

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Records everything an Observer is told. Safe for concurrent ranks.
type RecordingObserver struct {
	mu      sync.Mutex
	Phases  map[int][]Phase
	RunLens map[int]int
}

func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{
		Phases:  make(map[int][]Phase),
		RunLens: make(map[int]int),
	}
}

func (self *RecordingObserver) PhaseDone(rank int, phase Phase, elapsed time.Duration) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.Phases[rank] = append(self.Phases[rank], phase)
}

func (self *RecordingObserver) RunDone(rank int, runLen int) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.RunLens[rank] = runLen
}

// SortLocalTest sorts input with nproc in-process ranks, checks the output
// against a reference sort, and verifies the input was left alone.
func SortLocalTest(t *testing.T, input []int64, nproc int, opts Options) []int64 {
	orig := slices.Clone(input)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	out, err := SortLocal(ctx, input, nproc, opts)
	require.Nilf(t, err, "Sort with %v processes failed", nproc)
	require.NotNil(t, out, "Coordinator returned no output")
	require.Nil(t, CheckSort(orig, out), "Sorted wrong with %v processes", nproc)
	require.Equal(t, orig, input, "Input was modified")
	return out
}
