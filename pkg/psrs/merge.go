package psrs

import (
	"container/heap"
)

// Head of one input fragment inside the merge heap
type mergeHead struct {
	value int64
	frag  int // index of the fragment this value came from
	pos   int // position of value within its fragment
}

// Min-heap ordered by ascending value, ties broken by ascending fragment
// index. Implements heap.Interface.
type mergeHeap []mergeHead

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if h[i].value != h[j].value {
		return h[i].value < h[j].value
	}
	return h[i].frag < h[j].frag
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x interface{}) {
	*h = append(*h, x.(mergeHead))
}

func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	top := old[n-1]
	*h = old[:n-1]
	return top
}

// KWayMerge merges individually ascending fragments (any of which may be
// empty) into one new ascending slice of their combined length. The inputs
// are not modified.
func KWayMerge(frags [][]int64) []int64 {
	total := 0
	for _, f := range frags {
		total += len(f)
	}
	out := make([]int64, 0, total)

	h := make(mergeHeap, 0, len(frags))
	for i, f := range frags {
		if len(f) > 0 {
			h = append(h, mergeHead{value: f[0], frag: i, pos: 0})
		}
	}
	heap.Init(&h)

	for h.Len() > 0 {
		top := h[0]
		out = append(out, top.value)

		next := top.pos + 1
		if next < len(frags[top.frag]) {
			// Replace the root in place instead of pop+push
			h[0] = mergeHead{value: frags[top.frag][next], frag: top.frag, pos: next}
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
		}
	}
	return out
}
