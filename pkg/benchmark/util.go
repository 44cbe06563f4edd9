package benchmark

import (
	"fmt"
	"io"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// A helper object for timing events, the timer can be reused multiple times in
// order to derive averages or other statistics (Record() saves the current
// measurement and begins a new measurement).
type PerfTimer struct {
	Vals  []float64 // the stats module wants float64
	cur   time.Duration
	start time.Time
}

// Begin (or resume) the timer
func (self *PerfTimer) Start() {
	self.start = time.Now()
}

// Stop (or pause) the timer
func (self *PerfTimer) Stop() {
	self.cur += time.Since(self.start)
}

// Finalize the timer, adding it as a new datapoint and resetting the timer to
// 0.
func (self *PerfTimer) Record() {
	self.Stop()
	self.RecordDuration(self.cur)
	self.cur = 0
}

// Add a datapoint measured elsewhere
func (self *PerfTimer) RecordDuration(d time.Duration) {
	self.Vals = append(self.Vals, (float64)(d))
}

// Add the recorded values from new to the current object. Does not modify new.
func (self *PerfTimer) Update(new *PerfTimer) {
	self.Vals = append(self.Vals, new.Vals...)
}

// Collects statistics about a sort, one timer per measured step
type SortStats map[string]*PerfTimer

// Get the named timer, creating it if needed
func (self SortStats) Timer(name string) *PerfTimer {
	timer, ok := self[name]
	if !ok {
		timer = &PerfTimer{}
		self[name] = timer
	}
	return timer
}

func ReportStats(stats SortStats, writer io.Writer) {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		timer := stats[name]
		if len(timer.Vals) == 0 {
			continue
		}
		mean, stdev := stat.MeanStdDev(timer.Vals, nil)
		fmt.Fprintf(writer, "%v (mean):\t%vs\n", name, mean/1e9)
		fmt.Fprintf(writer, "%v (std):\t%vs\n", name, stdev/1e9)
	}
}

// How unevenly the output is spread across ranks after one sort
type Balance struct {
	// Largest run over the mean run length. 1 is perfect balance, P means one
	// rank got everything.
	MaxOverMean float64

	// Standard deviation of the run lengths, in elements
	Std float64
}

func RunBalance(runLens []int) Balance {
	if len(runLens) == 0 {
		return Balance{}
	}

	lens := make([]float64, len(runLens))
	for i, l := range runLens {
		lens[i] = (float64)(l)
	}

	mean, std := stat.MeanStdDev(lens, nil)
	if len(lens) == 1 {
		std = 0
	}
	if mean == 0 {
		return Balance{MaxOverMean: 1, Std: std}
	}
	return Balance{MaxOverMean: floats.Max(lens) / mean, Std: std}
}
