package psrs

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Rank that holds the input before the sort and the output after it
const Coordinator = 0

// The collective channel the protocol runs over. Every rank must issue the
// same sequence of calls; a missing call stalls (or, with a cancelled context,
// aborts) all ranks. Results of rooted operations are only meaningful at the
// root, other ranks get nil. Send buffers are never retained.
type Communicator interface {
	Rank() int
	Size() int

	// Replicate root's buf to every rank.
	Bcast(ctx context.Context, buf []int64, root int) ([]int64, error)

	// Deliver send[offsets[i]:offsets[i]+counts[i]] from root to rank i.
	// send, counts and offsets are only read at the root.
	Scatterv(ctx context.Context, send []int64, counts, offsets []int, root int) ([]int64, error)

	// Concatenate every rank's send (all the same length) at root, in rank
	// order.
	Gather(ctx context.Context, send []int64, root int) ([]int64, error)

	// Place rank i's send at offsets[i] of root's result. counts and offsets
	// are only read at the root.
	Gatherv(ctx context.Context, send []int64, counts, offsets []int, root int) ([]int64, error)

	Barrier(ctx context.Context) error
}

// Receives timing and balance information as a rank moves through the
// protocol. Implementations must be safe for concurrent use because
// in-process ranks report from their own goroutines.
type Observer interface {
	PhaseDone(rank int, phase Phase, elapsed time.Duration)
	RunDone(rank int, runLen int)
}

type Options struct {
	// Debug-level progress is logged here. Nil discards it.
	Logger logrus.FieldLogger

	// Goroutines used by LocalSort. 0 or 1 sorts sequentially.
	LocalWorkers int

	// End every local-only phase with a barrier so that all ranks enter
	// each phase together (and phase timings line up across ranks).
	Lockstep bool

	Observer Observer

	// Called on every rank with its sorted run once the merge is done, e.g.
	// to persist it. run must not be retained. An error aborts the sort.
	SaveRun func(rank int, run []int64) error
}

type sorter struct {
	comm     Communicator
	rank     int
	size     int
	opts     Options
	log      logrus.FieldLogger
	observer Observer
}

type nopObserver struct{}

func (nopObserver) PhaseDone(int, Phase, time.Duration) {}
func (nopObserver) RunDone(int, int)                    {}

func newSorter(comm Communicator, opts Options) (*sorter, error) {
	size := comm.Size()
	rank := comm.Rank()
	if size < 1 {
		return nil, configErrorf("process count must be at least 1, got %v", size)
	}
	if rank < 0 || rank >= size {
		return nil, configErrorf("rank %v out of range for %v processes", rank, size)
	}
	if opts.LocalWorkers < 0 {
		return nil, configErrorf("local workers must not be negative, got %v", opts.LocalWorkers)
	}

	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}

	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &sorter{
		comm:     comm,
		rank:     rank,
		size:     size,
		opts:     opts,
		log:      logger.WithField("rank", rank),
		observer: observer,
	}, nil
}

// Sort runs the whole PSRS protocol for this rank. input is only read at the
// coordinator (rank 0) and is left unmodified; the sorted result is returned
// at the coordinator and is nil on every other rank. Any failure aborts the
// run: no partial output is ever returned.
func Sort(ctx context.Context, comm Communicator, input []int64, opts Options) ([]int64, error) {
	s, err := newSorter(comm, opts)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, input)
}

func (self *sorter) isRoot() bool {
	return self.rank == Coordinator
}

// Run fn as the given phase. local marks phases without a collective of their
// own; in lockstep mode they end with a barrier.
func (self *sorter) phase(ctx context.Context, p Phase, local bool, fn func() error) error {
	start := time.Now()
	log := self.log.WithField("phase", p.String())
	log.Debug("Starting phase")

	if err := ctx.Err(); err != nil {
		return commError(p, err, "Aborted before %v", p)
	}
	if err := fn(); err != nil {
		return err
	}

	if local && self.opts.Lockstep {
		if err := self.comm.Barrier(ctx); err != nil {
			return commError(p, err, "Barrier after %v failed", p)
		}
	}

	elapsed := time.Since(start)
	self.observer.PhaseDone(self.rank, p, elapsed)
	log.WithField("elapsed", elapsed).Debug("Finished phase")
	return nil
}

func (self *sorter) run(ctx context.Context, input []int64) ([]int64, error) {
	var (
		table   *DistributionTable
		local   []int64
		samples []int64
		pivots  []int64
		classes ClassMap
		frags   [][]int64
		run     []int64
		result  []int64
	)

	err := self.phase(ctx, PhasePlan, false, func() error {
		var err error
		table, err = self.plan(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = self.phase(ctx, PhaseScatter, false, func() error {
		var err error
		local, err = self.scatter(ctx, input, table)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = self.phase(ctx, PhaseLocalSort, true, func() error {
		self.log.WithField("len", len(local)).Debug("Sorting local partition")
		return LocalSort(ctx, local, self.opts.LocalWorkers)
	})
	if err != nil {
		return nil, err
	}

	err = self.phase(ctx, PhaseSample, true, func() error {
		samples = RegularSamples(local, self.size)
		self.log.WithField("samples", samples).Debug("Regular samples")
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = self.phase(ctx, PhaseAggregate, false, func() error {
		var err error
		pivots, err = self.aggregate(ctx, samples)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = self.phase(ctx, PhaseBroadcast, false, func() error {
		var err error
		pivots, err = self.broadcastPivots(ctx, pivots)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = self.phase(ctx, PhasePartition, true, func() error {
		classes = Partition(local, pivots)
		self.log.WithField("lengths", classes.Lengths).Debug("Class lengths")
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = self.phase(ctx, PhaseExchange, false, func() error {
		var err error
		frags, err = self.exchange(ctx, local, classes)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = self.phase(ctx, PhaseMerge, true, func() error {
		run = KWayMerge(frags)
		self.observer.RunDone(self.rank, len(run))
		self.log.WithField("len", len(run)).Debug("Merged sorted run")
		if self.opts.SaveRun != nil {
			if err := self.opts.SaveRun(self.rank, run); err != nil {
				return errors.Wrapf(err, "Failed to save run of rank %v", self.rank)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = self.phase(ctx, PhaseCollect, false, func() error {
		var err error
		result, err = self.collect(ctx, run, table.Len())
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// The element count is only known at the coordinator; it is broadcast and
// every rank then derives the same table from it.
func (self *sorter) plan(ctx context.Context, input []int64) (*DistributionTable, error) {
	var nBuf []int64
	if self.isRoot() {
		nBuf = []int64{(int64)(len(input))}
	}

	nBuf, err := self.comm.Bcast(ctx, nBuf, Coordinator)
	if err != nil {
		return nil, commError(PhasePlan, err, "Failed to broadcast element count")
	}
	if len(nBuf) != 1 {
		return nil, commError(PhasePlan, fmt.Errorf("got %v values", len(nBuf)), "Malformed element count")
	}

	table, err := Plan((int)(nBuf[0]), self.size)
	if err != nil {
		return nil, err
	}
	self.log.WithFields(logrus.Fields{
		"total":  nBuf[0],
		"count":  table.Counts[self.rank],
		"offset": table.Offsets[self.rank],
	}).Debug("Data distribution")
	return table, nil
}

func (self *sorter) scatter(ctx context.Context, input []int64, table *DistributionTable) ([]int64, error) {
	var send []int64
	if self.isRoot() {
		send = input
	}

	local, err := self.comm.Scatterv(ctx, send, table.Counts, table.Offsets, Coordinator)
	if err != nil {
		return nil, commError(PhaseScatter, err, "Failed to scatter input")
	}
	if len(local) != table.Counts[self.rank] {
		return nil, commError(PhaseScatter,
			fmt.Errorf("expected %v elements, got %v", table.Counts[self.rank], len(local)),
			"Local partition has the wrong size")
	}
	return local, nil
}

// Gather every rank's samples at the coordinator and pick the pivots there.
// Returns nil on other ranks.
func (self *sorter) aggregate(ctx context.Context, samples []int64) ([]int64, error) {
	all, err := self.comm.Gather(ctx, samples, Coordinator)
	if err != nil {
		return nil, commError(PhaseAggregate, err, "Failed to gather samples")
	}
	if !self.isRoot() {
		return nil, nil
	}

	pivots, err := SelectPivots(all, self.size)
	if err != nil {
		return nil, commError(PhaseAggregate, err, "Gathered samples are malformed")
	}
	self.log.WithField("pivots", pivots).Debug("Selected pivots")
	return pivots, nil
}

func (self *sorter) broadcastPivots(ctx context.Context, pivots []int64) ([]int64, error) {
	pivots, err := self.comm.Bcast(ctx, pivots, Coordinator)
	if err != nil {
		return nil, commError(PhaseBroadcast, err, "Failed to broadcast pivots")
	}
	if len(pivots) != self.size-1 {
		return nil, commError(PhaseBroadcast,
			fmt.Errorf("expected %v pivots, got %v", self.size-1, len(pivots)),
			"Malformed pivot broadcast")
	}
	return pivots, nil
}

// Class c of every rank is gathered at rank c, one round per class. The
// returned fragments (one per source rank, in rank order) are only non-nil
// for the round this rank was the root of.
func (self *sorter) exchange(ctx context.Context, local []int64, classes ClassMap) ([][]int64, error) {
	var frags [][]int64

	for c := 0; c < self.size; c++ {
		lens, err := self.comm.Gather(ctx, []int64{(int64)(classes.Lengths[c])}, c)
		if err != nil {
			return nil, commError(PhaseExchange, err, "Failed to gather lengths of class %v", c)
		}

		var counts, offsets []int
		if self.rank == c {
			if len(lens) != self.size {
				return nil, commError(PhaseExchange,
					fmt.Errorf("expected %v lengths, got %v", self.size, len(lens)),
					"Malformed class %v lengths", c)
			}
			counts = make([]int, self.size)
			for i, l := range lens {
				counts[i] = (int)(l)
			}
			offsets = offsetsFor(counts)
		}

		recv, err := self.comm.Gatherv(ctx, classes.Class(local, c), counts, offsets, c)
		if err != nil {
			return nil, commError(PhaseExchange, err, "Failed to gather class %v", c)
		}

		if self.rank == c {
			total := offsets[self.size-1] + counts[self.size-1]
			if len(recv) != total {
				return nil, commError(PhaseExchange,
					fmt.Errorf("expected %v elements, got %v", total, len(recv)),
					"Class %v has the wrong size", c)
			}
			frags = make([][]int64, self.size)
			for i := 0; i < self.size; i++ {
				frags[i] = recv[offsets[i] : offsets[i]+counts[i]]
			}
			self.log.WithField("counts", counts).Debug("Received class fragments")
		}
	}
	return frags, nil
}

// Concatenate all sorted runs at the coordinator in rank order. Returns nil on
// other ranks.
func (self *sorter) collect(ctx context.Context, run []int64, total int) ([]int64, error) {
	lens, err := self.comm.Gather(ctx, []int64{(int64)(len(run))}, Coordinator)
	if err != nil {
		return nil, commError(PhaseCollect, err, "Failed to gather run lengths")
	}

	var counts, offsets []int
	if self.isRoot() {
		if len(lens) != self.size {
			return nil, commError(PhaseCollect,
				fmt.Errorf("expected %v lengths, got %v", self.size, len(lens)),
				"Malformed run lengths")
		}
		counts = make([]int, self.size)
		for i, l := range lens {
			counts[i] = (int)(l)
		}
		offsets = offsetsFor(counts)
	}

	result, err := self.comm.Gatherv(ctx, run, counts, offsets, Coordinator)
	if err != nil {
		return nil, commError(PhaseCollect, err, "Failed to gather sorted runs")
	}
	if !self.isRoot() {
		return nil, nil
	}

	if len(result) != total {
		return nil, commError(PhaseCollect,
			fmt.Errorf("expected %v elements, got %v", total, len(result)),
			"Collected output has the wrong size")
	}
	self.log.WithField("counts", counts).Debug("Collected sorted runs")
	if result == nil {
		result = []int64{}
	}
	return result, nil
}
