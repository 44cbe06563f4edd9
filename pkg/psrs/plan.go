package psrs

// How the global sequence is split into contiguous chunks, one per rank.
// Counts[i] elements starting at Offsets[i] belong to rank i.
type DistributionTable struct {
	Counts  []int
	Offsets []int
}

// Plan splits n elements over p ranks. Every rank gets ceil(n/p) elements
// until the input runs out, so trailing ranks may receive fewer (or zero)
// elements. Any rank can compute this independently from n and p.
func Plan(n int, p int) (*DistributionTable, error) {
	if p < 1 {
		return nil, configErrorf("process count must be at least 1, got %v", p)
	}
	if n < 0 {
		return nil, configErrorf("element count must not be negative, got %v", n)
	}

	perRank := (n + p - 1) / p

	table := &DistributionTable{
		Counts:  make([]int, p),
		Offsets: make([]int, p),
	}

	remaining := n
	pos := 0
	for i := 0; i < p; i++ {
		cur := min(remaining, perRank)
		table.Counts[i] = cur
		table.Offsets[i] = pos
		pos += cur
		remaining -= cur
	}
	return table, nil
}

// Total number of elements described by the table
func (self *DistributionTable) Len() int {
	total := 0
	for _, c := range self.Counts {
		total += c
	}
	return total
}

// Prefix-sum offsets for a list of counts (offsets[0] is always 0).
func offsetsFor(counts []int) []int {
	offsets := make([]int, len(counts))
	for i := 1; i < len(counts); i++ {
		offsets[i] = offsets[i-1] + counts[i-1]
	}
	return offsets
}
