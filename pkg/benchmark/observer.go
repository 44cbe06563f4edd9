package benchmark

import (
	"sync"
	"time"

	"github.com/nathantp/psrs/pkg/psrs"
)

// Collects per-rank phase timings and run lengths for one sort at a time. A
// phase is as slow as its slowest rank, so Finish records the maximum across
// ranks for every phase.
type PhaseObserver struct {
	mu      sync.Mutex
	phases  map[psrs.Phase]time.Duration
	runLens map[int]int
}

func NewPhaseObserver() *PhaseObserver {
	self := &PhaseObserver{}
	self.reset()
	return self
}

func (self *PhaseObserver) reset() {
	self.phases = make(map[psrs.Phase]time.Duration)
	self.runLens = make(map[int]int)
}

func (self *PhaseObserver) PhaseDone(rank int, phase psrs.Phase, elapsed time.Duration) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if elapsed > self.phases[phase] {
		self.phases[phase] = elapsed
	}
}

func (self *PhaseObserver) RunDone(rank int, runLen int) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.runLens[rank] = runLen
}

// Finish moves the current sort's measurements into stats and returns its
// run lengths in rank order. The observer is then ready for the next sort.
func (self *PhaseObserver) Finish(stats SortStats, nproc int) []int {
	self.mu.Lock()
	defer self.mu.Unlock()

	for phase, d := range self.phases {
		stats.Timer("T" + phase.String()).RecordDuration(d)
	}

	lens := make([]int, nproc)
	for rank, l := range self.runLens {
		if rank < nproc {
			lens[rank] = l
		}
	}
	self.reset()
	return lens
}
