package psrs

// Phase identifies one step of the protocol. Phases run strictly in the order
// they are declared here.
type Phase int

const (
	PhasePlan Phase = iota
	PhaseScatter
	PhaseLocalSort
	PhaseSample
	PhaseAggregate
	PhaseBroadcast
	PhasePartition
	PhaseExchange
	PhaseMerge
	PhaseCollect
)

var phaseNames = [...]string{
	PhasePlan:      "plan",
	PhaseScatter:   "scatter",
	PhaseLocalSort: "localSort",
	PhaseSample:    "sample",
	PhaseAggregate: "aggregate",
	PhaseBroadcast: "broadcast",
	PhasePartition: "partition",
	PhaseExchange:  "exchange",
	PhaseMerge:     "merge",
	PhaseCollect:   "collect",
}

// All phases in execution order
var Phases = []Phase{
	PhasePlan, PhaseScatter, PhaseLocalSort, PhaseSample, PhaseAggregate,
	PhaseBroadcast, PhasePartition, PhaseExchange, PhaseMerge, PhaseCollect,
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}
