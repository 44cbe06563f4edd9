package data

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// Spread of the normal and exponential distributions
const generateScale = 1e6

type Distribution string

const (
	DistUniform     Distribution = "uniform"     // full int64 range
	DistNormal      Distribution = "normal"      // mean 0
	DistExponential Distribution = "exponential" // non-negative, long tail
	DistConstant    Distribution = "constant"    // one repeated value
	DistSorted      Distribution = "sorted"      // uniform, ascending
	DistReversed    Distribution = "reversed"    // uniform, descending
	DistFewUnique   Distribution = "fewunique"   // 8 distinct values
)

var Distributions = []Distribution{
	DistUniform,
	DistNormal,
	DistExponential,
	DistConstant,
	DistSorted,
	DistReversed,
	DistFewUnique,
}

func ParseDistribution(s string) (Distribution, error) {
	for _, d := range Distributions {
		if (string)(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("Unknown distribution %q", s)
}

func clampFloat(f float64) int64 {
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	if f <= math.MinInt64 {
		return math.MinInt64
	}
	return (int64)(f)
}

// Generate returns n values drawn from dist. The same seed always produces
// the same values.
func Generate(dist Distribution, n int, seed uint64) ([]int64, error) {
	if n < 0 {
		return nil, fmt.Errorf("Invalid number of elements: %v", n)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]int64, n)

	switch dist {
	case DistUniform, DistSorted, DistReversed:
		for i := range out {
			out[i] = (int64)(rng.Uint64())
		}
		if dist == DistSorted {
			slices.Sort(out)
		} else if dist == DistReversed {
			slices.Sort(out)
			slices.Reverse(out)
		}

	case DistNormal:
		for i := range out {
			out[i] = clampFloat(rng.NormFloat64() * generateScale)
		}

	case DistExponential:
		for i := range out {
			out[i] = clampFloat(rng.ExpFloat64() * generateScale)
		}

	case DistConstant:
		v := rng.Int64N(1000)
		for i := range out {
			out[i] = v
		}

	case DistFewUnique:
		var vals [8]int64
		for i := range vals {
			vals[i] = (int64)(rng.Uint64())
		}
		for i := range out {
			out[i] = vals[rng.IntN(len(vals))]
		}

	default:
		return nil, fmt.Errorf("Unknown distribution %q", dist)
	}
	return out, nil
}
