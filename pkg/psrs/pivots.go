package psrs

import "github.com/pkg/errors"

// SelectPivots is run by the coordinator on the gathered samples. samples is
// a p*p matrix in row-major order, row i holding rank i's (ascending) regular
// samples. The rows are merged and the values at positions (k+1)*p,
// k = 0..p-2, become the p-1 global pivots.
//
// The pivots approximate quantiles of the whole input. Skewed inputs can still
// produce very uneven classes; that is a property of regular sampling.
func SelectPivots(samples []int64, p int) ([]int64, error) {
	if p < 1 {
		return nil, configErrorf("process count must be at least 1, got %v", p)
	}
	if len(samples) != p*p {
		return nil, errors.Errorf("Expected %v samples (%v per rank), got %v", p*p, p, len(samples))
	}

	rows := make([][]int64, p)
	for i := 0; i < p; i++ {
		rows[i] = samples[i*p : (i+1)*p]
	}
	merged := KWayMerge(rows)

	pivots := make([]int64, p-1)
	for k := 0; k < p-1; k++ {
		pivots[k] = merged[(k+1)*p]
	}
	return pivots, nil
}
