package psrs

import (
	"context"
	"fmt"
	"slices"

	"github.com/nathantp/psrs/pkg/comm"
)

// SortLocal sorts input with nproc in-process ranks and returns the
// coordinator's output.
func SortLocal(ctx context.Context, input []int64, nproc int, opts Options) ([]int64, error) {
	if nproc < 1 {
		return nil, configErrorf("process count must be at least 1, got %v", nproc)
	}

	var out []int64
	err := comm.RunLocal(ctx, nproc, func(ctx context.Context, c *comm.Comm) error {
		res, err := Sort(ctx, c, input, opts)
		if err != nil {
			return err
		}
		if c.Rank() == Coordinator {
			out = res
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CheckSort verifies that sorted is exactly the ascending permutation of orig.
// Neither slice is modified.
func CheckSort(orig []int64, sorted []int64) error {
	if len(orig) != len(sorted) {
		return fmt.Errorf("Lengths do not match: Expected %v, Got %v", len(orig), len(sorted))
	}

	for i := 1; i < len(sorted); i++ {
		if sorted[i] < sorted[i-1] {
			return fmt.Errorf("Out of order at index %v: %v < %v", i, sorted[i], sorted[i-1])
		}
	}

	// Full match against a reference sort of orig
	ref := slices.Clone(orig)
	slices.Sort(ref)
	for i := range ref {
		if ref[i] != sorted[i] {
			return fmt.Errorf("Response doesn't match reference at %v: Expected %v, Got %v", i, ref[i], sorted[i])
		}
	}
	return nil
}
